package convai

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/convai-core/core/audio"
	"github.com/koscakluka/convai-core/core/tokens"
	"github.com/koscakluka/convai-core/core/transport"
)

type stubTransport struct {
	state transport.StateTracker

	mu             sync.Mutex
	onMessage      func([]byte)
	sent           []string
	connectErr     error
	conversationID string
	token          string
	serverURL      string
	params         transport.SessionParams
	connects       int
	disconnects    int
	audio          [][]byte
}

func (t *stubTransport) Connect(_ context.Context, token, serverURL string, params transport.SessionParams) error {
	t.mu.Lock()
	t.connects++
	t.token, t.serverURL, t.params = token, serverURL, params
	connectErr, conversationID := t.connectErr, t.conversationID
	t.mu.Unlock()

	t.state.Transition(transport.StateChange{State: transport.StateConnecting})
	if connectErr != nil {
		err := &transport.Error{Op: "dial", Err: connectErr}
		t.state.Transition(transport.StateChange{State: transport.StateError, Err: err})
		return err
	}
	t.state.Transition(transport.StateChange{State: transport.StateConnected, ConversationID: conversationID})
	return nil
}

func (t *stubTransport) Disconnect() error {
	t.mu.Lock()
	t.disconnects++
	t.mu.Unlock()
	t.state.Transition(transport.StateChange{State: transport.StateDisconnected})
	return nil
}

func (t *stubTransport) Send(message []byte) error {
	if t.state.State() != transport.StateConnected {
		return transport.ErrNotConnected
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, string(message))
	return nil
}

func (t *stubTransport) SendAudio(chunk []byte) error {
	if t.state.State() != transport.StateConnected {
		return transport.ErrNotConnected
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.audio = append(t.audio, append([]byte(nil), chunk...))
	return nil
}

func (t *stubTransport) State() transport.ConnectionState { return t.state.State() }

func (t *stubTransport) ObserveState(observer func(transport.StateChange)) {
	t.state.Observe(observer)
}

func (t *stubTransport) ObserveMessages(observer func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = observer
}

// deliver simulates a message from the agent.
func (t *stubTransport) deliver(message string) {
	t.mu.Lock()
	onMessage := t.onMessage
	t.mu.Unlock()
	if onMessage != nil {
		onMessage([]byte(message))
	}
}

// remoteClose simulates the server ending the connection.
func (t *stubTransport) remoteClose(err error) {
	if err != nil {
		t.state.Transition(transport.StateChange{State: transport.StateError, Err: err})
		return
	}
	t.state.Transition(transport.StateChange{State: transport.StateDisconnected})
}

func (t *stubTransport) messages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

// sentOfType returns the decoded outbound messages with the given type.
func (t *stubTransport) sentOfType(kind string) []map[string]any {
	var matching []map[string]any
	for _, message := range t.messages() {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(message), &decoded); err != nil {
			continue
		}
		if decoded["type"] == kind {
			matching = append(matching, decoded)
		}
	}
	return matching
}

type stubTokens struct {
	mu       sync.Mutex
	token    string
	err      error
	requests []tokens.Request
}

func (s *stubTokens) Fetch(_ context.Context, request tokens.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, request)
	return s.token, s.err
}

type stubAudio struct {
	mu       sync.Mutex
	onAudio  func([]byte)
	played   [][]byte
	cleared  int
	closed   bool
	muted    bool
	playing  bool
	encoding audio.EncodingInfo
}

func (a *stubAudio) Stream(ctx context.Context, onAudio func([]byte)) error {
	a.mu.Lock()
	a.onAudio = onAudio
	a.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (a *stubAudio) EncodingInfo() audio.EncodingInfo {
	if a.encoding.IsZero() {
		return audio.GetDefaultEncodingInfo()
	}
	return a.encoding
}

func (a *stubAudio) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
}

func (a *stubAudio) SendAudio(chunk []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.played = append(a.played, chunk)
	return nil
}

func (a *stubAudio) ClearBuffer() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleared++
}

func (a *stubAudio) StartPlayback(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.playing = true
	return nil
}

func (a *stubAudio) StopPlayback() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.playing = false
	return nil
}

// capture feeds a microphone frame once streaming has started.
func (a *stubAudio) capture(frame []byte) bool {
	a.mu.Lock()
	onAudio := a.onAudio
	a.mu.Unlock()
	if onAudio == nil {
		return false
	}
	onAudio(frame)
	return true
}

func (a *stubAudio) snapshot() (played int, cleared int, playing bool, closed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.played), a.cleared, a.playing, a.closed
}

type mutingAudio struct {
	*stubAudio
}

func (a mutingAudio) SetMuted(muted bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.muted = muted
	return nil
}

type deniedMicrophone struct {
	*stubAudio
}

func (deniedMicrophone) HasMicrophonePermission() bool { return false }

func newTestSession(t *testing.T, cfg Config, opts ...Option) (*Session, *stubTransport) {
	t.Helper()

	tr := &stubTransport{conversationID: "conv_test"}
	opts = append([]Option{
		WithTransport(tr),
		WithTokenFetcher(&stubTokens{token: "token-1"}),
	}, opts...)
	session, err := NewSession(cfg, opts...)
	if err != nil {
		t.Fatalf("expected session to be created, got %v", err)
	}
	t.Cleanup(session.End)
	return session, tr
}

func startTestSession(t *testing.T, cfg Config, opts ...Option) (*Session, *stubTransport) {
	t.Helper()

	session, tr := newTestSession(t, cfg, opts...)
	if err := session.Start(context.Background()); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	waitForCondition(t, time.Second, "connected status", func() bool {
		return session.Status() == StatusConnected
	})
	return session, tr
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

type recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

func (r *recorder[T]) record(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}
