// Package miniaudio drives the default capture and playback devices through
// miniaudio. A [Client] satisfies the audio input, output, playback control
// and muting capabilities of a conversation session.
package miniaudio

import (
	"context"
	"fmt"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/convai-core/core/audio"
)

type Client struct {
	// audioContext is kept only so Close can release it.
	audioContext *malgo.AllocatedContext
	encoding     audio.EncodingInfo

	chunkDuration time.Duration
	maxBuffered   time.Duration

	microphone microphone
	speaker    speaker
}

type Option func(*Client)

// WithSampleRate configures both devices for linear16 audio at sampleRate,
// normally the rate negotiated with the agent.
func WithSampleRate(sampleRate int) Option {
	return func(c *Client) {
		if sampleRate > 0 {
			c.encoding.SampleRate = sampleRate
		}
	}
}

// WithChunkDuration sets how much microphone audio is sent per chunk.
func WithChunkDuration(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.chunkDuration = d
		}
	}
}

// WithMaxBuffered bounds agent audio queued for the speaker.
func WithMaxBuffered(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.maxBuffered = d
		}
	}
}

func NewClient(opts ...Option) (*Client, error) {
	client := &Client{
		encoding:      audio.GetDefaultEncodingInfo(),
		chunkDuration: audio.DefaultChunkDuration,
		maxBuffered:   audio.DefaultMaxBuffered,
	}
	for _, opt := range opts {
		opt(client)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	client.audioContext = audioCtx

	if err := client.speaker.open(audioCtx, client.encoding, client.maxBuffered); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.microphone.open(audioCtx, client.encoding, client.chunkDuration); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) Stream(_ context.Context, onAudio func(audio []byte)) error {
	return c.microphone.start(onAudio)
}

func (c *Client) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	return c.microphone.start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.microphone.stop()
}

func (c *Client) SetMuted(muted bool) error {
	c.microphone.muted.Store(muted)
	return nil
}

func (c *Client) StartPlayback(_ context.Context) error {
	return c.speaker.start()
}

func (c *Client) StopPlayback() error {
	return c.speaker.stop()
}

// Close releases both devices and the audio context. It is safe to call
// more than once.
func (c *Client) Close() {
	c.microphone.close()
	c.speaker.close()
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
}

func (c *Client) SendAudio(audio []byte) error {
	return c.speaker.play(audio)
}

func (c *Client) ClearBuffer() {
	if c.speaker.queue != nil {
		c.speaker.queue.Clear()
	}
}

// Buffered is the agent audio still waiting to be played.
func (c *Client) Buffered() time.Duration {
	if c.speaker.queue == nil {
		return 0
	}
	return c.speaker.queue.Buffered()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}
