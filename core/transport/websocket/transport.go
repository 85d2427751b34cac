// Package websocket implements [transport.Transport] over a single
// websocket connection carrying JSON text frames.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/koscakluka/convai-core/core/events"
	"github.com/koscakluka/convai-core/core/transport"
)

const closeGracePeriod = time.Second

type Transport struct {
	dialer *gws.Dialer
	header http.Header

	state transport.StateTracker

	mu        sync.Mutex
	conn      *connection
	onMessage func([]byte)
}

type connection struct {
	ws *gws.Conn
	// writeMu serialises writes; gorilla allows one concurrent writer.
	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

type Option func(*Transport)

func WithDialer(dialer *gws.Dialer) Option {
	return func(t *Transport) {
		if dialer != nil {
			t.dialer = dialer
		}
	}
}

// WithHeader adds a header to the handshake request.
func WithHeader(key, value string) Option {
	return func(t *Transport) {
		t.header.Add(key, value)
	}
}

func New(opts ...Option) *Transport {
	t := &Transport{
		dialer: &gws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		header: http.Header{},
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
	switch t.state.State() {
	case transport.StateConnecting, transport.StateConnected, transport.StateReconnecting:
		return transport.ErrAlreadyConnected
	}
	t.state.Transition(transport.StateChange{State: transport.StateConnecting})

	header := t.header.Clone()
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := t.dialer.DialContext(ctx, serverURL, header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return t.fail("dial", err)
	}

	conn := &connection{ws: ws, closed: make(chan struct{})}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	initiation, err := params.EncodeInitiation()
	if err != nil {
		conn.close()
		return t.fail("encode initiation", err)
	}
	if initiation != nil {
		if err := conn.write(initiation); err != nil {
			conn.close()
			return t.fail("send initiation", err)
		}
	}

	if !t.state.Transition(transport.StateChange{State: transport.StateConnected}) {
		// Disconnect won the race while we were dialing.
		conn.close()
		return transport.ErrNotConnected
	}
	go t.readLoop(conn)
	return nil
}

func (t *Transport) fail(op string, err error) error {
	err = &transport.Error{Op: op, Err: err}
	t.state.Transition(transport.StateChange{State: transport.StateError, Err: err})
	return err
}

func (t *Transport) readLoop(conn *connection) {
	for {
		_, message, err := conn.ws.ReadMessage()
		if err != nil {
			select {
			case <-conn.closed:
				return
			default:
			}
			conn.close()

			if gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway) {
				t.state.Transition(transport.StateChange{State: transport.StateDisconnected})
				return
			}
			t.state.Transition(transport.StateChange{
				State: transport.StateError,
				Err:   &transport.Error{Op: "read", Err: err},
			})
			return
		}

		t.mu.Lock()
		onMessage := t.onMessage
		t.mu.Unlock()
		if onMessage != nil {
			onMessage(message)
		}
	}
}

func (t *Transport) Send(message []byte) error {
	if t.state.State() != transport.StateConnected {
		return transport.ErrNotConnected
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return transport.ErrNotConnected
	}

	if err := conn.write(message); err != nil {
		return &transport.Error{Op: "send", Err: err}
	}
	return nil
}

// SendAudio sends a chunk of microphone audio as a user_audio_chunk message.
func (t *Transport) SendAudio(chunk []byte) error {
	message, err := events.Encode(events.NewUserAudioChunk(chunk))
	if err != nil {
		return err
	}
	return t.Send(message)
}

func (t *Transport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.shutdown()
	}
	t.state.Transition(transport.StateChange{State: transport.StateDisconnected})
	if err != nil {
		return &transport.Error{Op: "disconnect", Err: err}
	}
	return nil
}

func (c *connection) write(message []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(gws.TextMessage, message)
}

// shutdown performs the close handshake before closing the socket.
func (c *connection) shutdown() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		writeErr := c.ws.WriteControl(gws.CloseMessage,
			gws.FormatCloseMessage(gws.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		if writeErr != nil && !errors.Is(writeErr, gws.ErrCloseSent) {
			logger.Debug("failed to send close frame", "error", writeErr)
		}

		err = c.ws.Close()
	})
	return err
}

func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

var (
	_ transport.Transport   = (*Transport)(nil)
	_ transport.AudioSender = (*Transport)(nil)
)
