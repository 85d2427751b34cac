package webrtc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/convai-core/core/events"
	"github.com/koscakluka/convai-core/core/transport"
	"github.com/pion/webrtc/v3"
)

func loopbackAPI(t *testing.T) *webrtc.API {
	t.Helper()

	settings := webrtc.SettingEngine{}
	settings.SetIncludeLoopbackCandidate(true)
	settings.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	api, err := NewAPI(webrtc.WithSettingEngine(settings))
	if err != nil {
		t.Fatalf("failed to create api: %v", err)
	}
	return api
}

type answeringServer struct {
	*httptest.Server

	mu            sync.Mutex
	authorization string
	received      []string
	channel       *webrtc.DataChannel
	peers         []*webrtc.PeerConnection
}

func newAnsweringServer(t *testing.T) *answeringServer {
	t.Helper()

	api := loopbackAPI(t)
	server := &answeringServer{}
	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offer, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		peer, err := api.NewPeerConnection(webrtc.Configuration{})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		peer.OnDataChannel(func(dc *webrtc.DataChannel) {
			dc.OnOpen(func() {
				server.mu.Lock()
				server.channel = dc
				server.mu.Unlock()
			})
			dc.OnMessage(func(msg webrtc.DataChannelMessage) {
				server.mu.Lock()
				server.received = append(server.received, string(msg.Data))
				server.mu.Unlock()
			})
		})

		if err := peer.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: string(offer)}); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		answer, err := peer.CreateAnswer(nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		gathered := webrtc.GatheringCompletePromise(peer)
		if err := peer.SetLocalDescription(answer); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		<-gathered

		server.mu.Lock()
		server.authorization = r.Header.Get("Authorization")
		server.peers = append(server.peers, peer)
		server.mu.Unlock()

		w.Header().Set("Location", "/v1/rooms/room_conv_test123")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(peer.LocalDescription().SDP))
	}))
	t.Cleanup(func() {
		server.Close()
		server.mu.Lock()
		defer server.mu.Unlock()
		for _, peer := range server.peers {
			_ = peer.Close()
		}
	})
	return server
}

func (s *answeringServer) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func waitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition was not met within %s", timeout)
}

func TestConnectOverLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("establishes a real peer connection")
	}

	server := newAnsweringServer(t)
	tr := New(WithAPI(loopbackAPI(t)), WithConfiguration(webrtc.Configuration{}))

	var (
		mu       sync.Mutex
		changes  []transport.StateChange
		received []string
	)
	tr.ObserveState(func(change transport.StateChange) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, change)
	})
	tr.ObserveMessages(func(message []byte) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, string(message))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := tr.Connect(ctx, "token-1", server.URL, transport.SessionParams{
		Initiation: &events.InitiationClientData{UserID: "user-1"},
	})
	if err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}
	defer tr.Disconnect()

	mu.Lock()
	last := changes[len(changes)-1]
	mu.Unlock()
	if last.State != transport.StateConnected || last.ConversationID != "conv_test123" {
		t.Fatalf("expected connected with conversation id, got %+v", last)
	}

	if err := tr.Send([]byte(`{"type":"user_activity"}`)); err != nil {
		t.Fatalf("expected send to succeed, got %v", err)
	}
	waitForCondition(t, 5*time.Second, func() bool { return len(server.messages()) == 2 })
	messages := server.messages()
	if !strings.Contains(messages[0], "conversation_initiation_client_data") {
		t.Fatalf("expected initiation first, got %s", messages[0])
	}
	if messages[1] != `{"type":"user_activity"}` {
		t.Fatalf("unexpected second message %s", messages[1])
	}

	server.mu.Lock()
	channel, authorization := server.channel, server.authorization
	server.mu.Unlock()
	if authorization != "Bearer token-1" {
		t.Fatalf("expected bearer token, got %q", authorization)
	}
	if err := channel.SendText(`{"type":"ping","ping_event":{"event_id":1}}`); err != nil {
		t.Fatalf("server failed to send: %v", err)
	}
	waitForCondition(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})

	if err := tr.Disconnect(); err != nil {
		t.Fatalf("expected disconnect to succeed, got %v", err)
	}
	if tr.State() != transport.StateDisconnected {
		t.Fatalf("expected disconnected state, got %s", tr.State())
	}
}

func TestConnectRejectedOffer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer server.Close()

	tr := New(WithAPI(loopbackAPI(t)), WithConfiguration(webrtc.Configuration{}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := tr.Connect(ctx, "bad", server.URL, transport.SessionParams{})
	var transportErr *transport.Error
	if !errors.As(err, &transportErr) || transportErr.Op != "exchange offer" {
		t.Fatalf("expected offer exchange error, got %v", err)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status in error, got %v", err)
	}
	if tr.State() != transport.StateError {
		t.Fatalf("expected error state, got %s", tr.State())
	}
}

func TestDefaultAPICreatesOffer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer server.Close()

	tr := New(WithConfiguration(webrtc.Configuration{}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Reaching the offer exchange means the offer with the audio
	// transceiver was created and gathered.
	err := tr.Connect(ctx, "bad", server.URL, transport.SessionParams{})
	var transportErr *transport.Error
	if !errors.As(err, &transportErr) || transportErr.Op != "exchange offer" {
		t.Fatalf("expected offer exchange error, got %v", err)
	}
}

func TestICEGateHoldsChangesUntilEstablished(t *testing.T) {
	gate := newICEGate()

	if change, ok := gate.observe(webrtc.ICEConnectionStateConnected); ok {
		t.Fatalf("expected ICE connected to be held back before Connect finishes, got %+v", change)
	}
	select {
	case <-gate.failed:
		t.Fatalf("expected no failure signal yet")
	default:
	}

	gate.observe(webrtc.ICEConnectionStateFailed)
	gate.observe(webrtc.ICEConnectionStateFailed)
	select {
	case <-gate.failed:
	default:
		t.Fatalf("expected an ICE failure to be signalled to Connect")
	}

	gate.establish()
	change, ok := gate.observe(webrtc.ICEConnectionStateDisconnected)
	if !ok || change.State != transport.StateReconnecting {
		t.Fatalf("expected reconnecting after establish, got %+v ok=%t", change, ok)
	}
}

func TestSendRequiresConnection(t *testing.T) {
	tr := New()
	if err := tr.Send([]byte(`{}`)); !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := tr.Disconnect(); err != nil {
		t.Fatalf("expected disconnect before connect to succeed, got %v", err)
	}
}

func TestStateFromICE(t *testing.T) {
	testCases := []struct {
		ice      webrtc.ICEConnectionState
		expected transport.ConnectionState
		mapped   bool
	}{
		{webrtc.ICEConnectionStateConnected, transport.StateConnected, true},
		{webrtc.ICEConnectionStateCompleted, transport.StateConnected, true},
		{webrtc.ICEConnectionStateDisconnected, transport.StateReconnecting, true},
		{webrtc.ICEConnectionStateFailed, transport.StateError, true},
		{webrtc.ICEConnectionStateClosed, transport.StateDisconnected, true},
		{webrtc.ICEConnectionStateChecking, 0, false},
		{webrtc.ICEConnectionStateNew, 0, false},
	}

	for _, testCase := range testCases {
		change, ok := stateFromICE(testCase.ice)
		if ok != testCase.mapped {
			t.Fatalf("%s: expected mapped=%t, got %t", testCase.ice, testCase.mapped, ok)
		}
		if ok && change.State != testCase.expected {
			t.Fatalf("%s: expected %s, got %s", testCase.ice, testCase.expected, change.State)
		}
		if change.State == transport.StateError && change.Err == nil {
			t.Fatalf("%s: expected error state to carry an error", testCase.ice)
		}
	}
}
