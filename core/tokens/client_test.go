package tokens

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchToken(t *testing.T) {
	var query map[string]string
	var apiKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/convai/conversation/token" {
			http.NotFound(w, r)
			return
		}
		query = map[string]string{
			"agent_id": r.URL.Query().Get("agent_id"),
			"source":   r.URL.Query().Get("source"),
			"version":  r.URL.Query().Get("version"),
		}
		apiKey = r.Header.Get("xi-api-key")
		_, _ = w.Write([]byte(`{"token":"tok_123"}`))
	}))
	defer server.Close()

	client := NewClient(WithBaseURL(server.URL+"/"), WithAPIKey("key"))
	token, err := client.Fetch(context.Background(), Request{AgentID: "agent_1", Source: "go_sdk", Version: "0.1.0"})
	if err != nil {
		t.Fatalf("expected token fetch to succeed, got %v", err)
	}
	if token != "tok_123" {
		t.Fatalf("unexpected token %q", token)
	}
	if query["agent_id"] != "agent_1" || query["source"] != "go_sdk" || query["version"] != "0.1.0" {
		t.Fatalf("unexpected query %v", query)
	}
	if apiKey != "key" {
		t.Fatalf("expected api key header, got %q", apiKey)
	}
}

func TestFetchTokenFailures(t *testing.T) {
	testCases := []struct {
		name       string
		status     int
		body       string
		wantStatus int
	}{
		{name: "non-2xx", status: http.StatusNotFound, body: `{"detail":"agent not found"}`, wantStatus: http.StatusNotFound},
		{name: "malformed body", status: http.StatusOK, body: `not json`, wantStatus: http.StatusOK},
		{name: "missing token", status: http.StatusOK, body: `{}`, wantStatus: http.StatusOK},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(testCase.status)
				_, _ = w.Write([]byte(testCase.body))
			}))
			defer server.Close()

			_, err := NewClient(WithBaseURL(server.URL)).Fetch(context.Background(), Request{AgentID: "a"})
			var tokenErr *Error
			if !errors.As(err, &tokenErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if tokenErr.StatusCode != testCase.wantStatus {
				t.Fatalf("expected status %d, got %d", testCase.wantStatus, tokenErr.StatusCode)
			}
		})
	}
}

func TestFetchTokenNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(WithBaseURL(url)).Fetch(context.Background(), Request{AgentID: "a"})
	var tokenErr *Error
	if !errors.As(err, &tokenErr) || tokenErr.Cause == nil {
		t.Fatalf("expected *Error with a cause, got %v", err)
	}
}
