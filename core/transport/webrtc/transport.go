// Package webrtc implements [transport.Transport] over a WebRTC peer
// connection. Events travel on a reliable data channel, audio on RTP tracks.
//
// The SDP offer is POSTed to the server url with the conversation token as
// bearer credentials; the answer's Location header names the room the
// conversation id is taken from.
package webrtc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"sync"

	"github.com/koscakluka/convai-core/core/transport"
	"github.com/koscakluka/convai-core/internal/utils"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const dataChannelLabel = "convai-events"

type Transport struct {
	api        *webrtc.API
	config     webrtc.Configuration
	httpClient *http.Client
	localTrack webrtc.TrackLocal
	onTrack    func(*webrtc.TrackRemote)

	state transport.StateTracker

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	onMessage func([]byte)
}

type Option func(*Transport)

// WithAPI sets the pion API used to create peer connections. It must have
// codecs registered, see [NewAPI].
func WithAPI(api *webrtc.API) Option {
	return func(t *Transport) {
		if api != nil {
			t.api = api
		}
	}
}

func WithConfiguration(config webrtc.Configuration) Option {
	return func(t *Transport) {
		t.config = config
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(t *Transport) {
		if client != nil {
			t.httpClient = client
		}
	}
}

// WithLocalAudioTrack sends track (normally the microphone) to the agent.
func WithLocalAudioTrack(track webrtc.TrackLocal) Option {
	return func(t *Transport) {
		t.localTrack = track
	}
}

// WithRemoteTrackHandler is called with the agent's audio track once it
// arrives.
func WithRemoteTrackHandler(handler func(*webrtc.TrackRemote)) Option {
	return func(t *Transport) {
		t.onTrack = handler
	}
}

// NewAPI returns a pion API with the default codecs and interceptors, the
// same set webrtc.NewPeerConnection uses. Without registered codecs an offer
// with an audio transceiver cannot be created.
func NewAPI(options ...func(*webrtc.API)) (*webrtc.API, error) {
	media := &webrtc.MediaEngine{}
	if err := media.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}
	interceptors := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(media, interceptors); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}
	options = append([]func(*webrtc.API){
		webrtc.WithMediaEngine(media),
		webrtc.WithInterceptorRegistry(interceptors),
	}, options...)
	return webrtc.NewAPI(options...), nil
}

func New(opts ...Option) *Transport {
	t := &Transport{
		config: webrtc.Configuration{
			ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
		},
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) State() transport.ConnectionState { return t.state.State() }

func (t *Transport) ObserveState(observer func(transport.StateChange)) {
	t.state.Observe(observer)
}

func (t *Transport) ObserveMessages(observer func([]byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = observer
}

func (t *Transport) Connect(ctx context.Context, token, serverURL string, params transport.SessionParams) error {
	ctx, span := tracer.Start(ctx, "connect webrtc")
	defer span.End()

	switch t.state.State() {
	case transport.StateConnecting, transport.StateConnected, transport.StateReconnecting:
		return transport.ErrAlreadyConnected
	}
	t.state.Transition(transport.StateChange{State: transport.StateConnecting})

	api := t.api
	if api == nil {
		var err error
		if api, err = NewAPI(); err != nil {
			return t.fail("create api", err)
		}
	}
	pc, err := api.NewPeerConnection(t.config)
	if err != nil {
		return t.fail("create peer connection", err)
	}

	if t.localTrack != nil {
		if _, err := pc.AddTrack(t.localTrack); err != nil {
			pc.Close()
			return t.fail("add local track", err)
		}
	} else if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return t.fail("add audio transceiver", err)
	}

	dc, err := pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{Ordered: utils.Ptr(true)})
	if err != nil {
		pc.Close()
		return t.fail("create data channel", err)
	}

	opened := make(chan struct{})
	var openOnce sync.Once
	gate := newICEGate()
	dc.OnOpen(func() { openOnce.Do(func() { close(opened) }) })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.mu.Lock()
		onMessage := t.onMessage
		t.mu.Unlock()
		if onMessage != nil {
			onMessage(msg.Data)
		}
	})
	dc.OnClose(func() {
		switch t.state.State() {
		case transport.StateConnected, transport.StateReconnecting:
			t.state.Transition(transport.StateChange{State: transport.StateDisconnected})
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Debug("received remote track", "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		if t.onTrack != nil && track.Kind() == webrtc.RTPCodecTypeAudio {
			t.onTrack(track)
		}
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if change, ok := gate.observe(state); ok {
			t.state.Transition(change)
		}
	})

	t.mu.Lock()
	t.pc, t.dc = pc, dc
	t.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.teardown()
		return t.fail("create offer", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		t.teardown()
		return t.fail("set local description", err)
	}

	select {
	case <-webrtc.GatheringCompletePromise(pc):
	case <-ctx.Done():
		t.teardown()
		return t.fail("gather candidates", ctx.Err())
	}

	answer, room, err := t.exchangeOffer(ctx, token, serverURL, pc.LocalDescription().SDP)
	if err != nil {
		t.teardown()
		return t.fail("exchange offer", err)
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		t.teardown()
		return t.fail("set remote description", err)
	}

	select {
	case <-opened:
	case <-gate.failed:
		t.teardown()
		return t.fail("open data channel", fmt.Errorf("ice connection failed"))
	case <-ctx.Done():
		t.teardown()
		return t.fail("open data channel", ctx.Err())
	}

	initiation, err := params.EncodeInitiation()
	if err != nil {
		t.teardown()
		return t.fail("encode initiation", err)
	}
	if initiation != nil {
		if err := dc.Send(initiation); err != nil {
			t.teardown()
			return t.fail("send initiation", err)
		}
	}

	if !t.state.Transition(transport.StateChange{
		State:          transport.StateConnected,
		ConversationID: transport.ConversationIDFromRoom(room),
	}) {
		t.teardown()
		return transport.ErrNotConnected
	}
	gate.establish()
	return nil
}

// iceGate holds back ICE-driven state changes until Connect has reported
// Connected. Before that only a failure is recorded, for Connect to act on.
type iceGate struct {
	failed   chan struct{}
	failOnce sync.Once

	mu          sync.Mutex
	established bool
}

func newICEGate() *iceGate {
	return &iceGate{failed: make(chan struct{})}
}

func (g *iceGate) establish() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.established = true
}

// observe returns the transport change to apply for an ICE state, if any.
func (g *iceGate) observe(state webrtc.ICEConnectionState) (transport.StateChange, bool) {
	g.mu.Lock()
	established := g.established
	g.mu.Unlock()

	if !established {
		if state == webrtc.ICEConnectionStateFailed {
			g.failOnce.Do(func() { close(g.failed) })
		}
		return transport.StateChange{}, false
	}
	return stateFromICE(state)
}

// exchangeOffer posts the local SDP and returns the answer SDP and the room
// name from the Location header.
func (t *Transport) exchangeOffer(ctx context.Context, token, serverURL, sdp string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, bytes.NewReader([]byte(sdp)))
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Content-Type", "application/sdp")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("failed to read answer: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", "", fmt.Errorf("sdp exchange failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	room := ""
	if location := resp.Header.Get("Location"); location != "" {
		room = path.Base(location)
	}
	return string(body), room, nil
}

// stateFromICE maps ICE connection states to transport states once the
// connection is established.
func stateFromICE(state webrtc.ICEConnectionState) (transport.StateChange, bool) {
	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return transport.StateChange{State: transport.StateConnected}, true
	case webrtc.ICEConnectionStateDisconnected:
		return transport.StateChange{State: transport.StateReconnecting}, true
	case webrtc.ICEConnectionStateFailed:
		return transport.StateChange{
			State: transport.StateError,
			Err:   &transport.Error{Op: "ice", Err: fmt.Errorf("ice connection failed")},
		}, true
	case webrtc.ICEConnectionStateClosed:
		return transport.StateChange{State: transport.StateDisconnected}, true
	}
	return transport.StateChange{}, false
}

func (t *Transport) fail(op string, err error) error {
	err = &transport.Error{Op: op, Err: err}
	t.state.Transition(transport.StateChange{State: transport.StateError, Err: err})
	return err
}

func (t *Transport) Send(message []byte) error {
	if t.state.State() != transport.StateConnected {
		return transport.ErrNotConnected
	}

	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return transport.ErrNotConnected
	}
	if err := dc.Send(message); err != nil {
		return &transport.Error{Op: "send", Err: err}
	}
	return nil
}

func (t *Transport) Disconnect() error {
	err := t.teardown()
	t.state.Transition(transport.StateChange{State: transport.StateDisconnected})
	if err != nil {
		return &transport.Error{Op: "disconnect", Err: err}
	}
	return nil
}

func (t *Transport) teardown() error {
	t.mu.Lock()
	pc, dc := t.pc, t.dc
	t.pc, t.dc = nil, nil
	t.mu.Unlock()

	if dc != nil {
		if err := dc.Close(); err != nil {
			logger.Debug("failed to close data channel", "error", err)
		}
	}
	if pc != nil {
		return pc.Close()
	}
	return nil
}

var _ transport.Transport = (*Transport)(nil)
