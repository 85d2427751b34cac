// Package portaudio drives a full-duplex PortAudio stream for capture and
// playback of linear16 audio.
package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/convai-core/core/audio"
)

type Client struct {
	framesPerBuffer int
	stream          *portaudio.Stream
	encoding        audio.EncodingInfo

	in  []int16
	out []int16

	chunker *audio.Chunker
	queue   *audio.PlaybackQueue
	// writeMu serialises out and the blocking stream writes.
	writeMu sync.Mutex

	muted     atomic.Bool
	closeOnce sync.Once
}

// NewClient opens the default devices with framesPerBuffer samples per
// read and write.
func NewClient(framesPerBuffer int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	encoding := audio.GetDefaultEncodingInfo()
	in := make([]int16, framesPerBuffer)
	out := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 1, float64(encoding.SampleRate), framesPerBuffer, in, out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start PortAudio stream: %w", err)
	}

	return &Client{
		framesPerBuffer: framesPerBuffer,
		stream:          stream,
		encoding:        encoding,
		in:              in,
		out:             out,
		chunker:         audio.NewChunker(encoding, audio.DefaultChunkDuration),
		queue:           audio.NewPlaybackQueue(encoding, audio.DefaultMaxBuffered),
	}, nil
}

// Stream reads the microphone until ctx is done and emits fixed-size
// chunks. Audio read while muted is dropped.
func (c *Client) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	logger.Info("microphone capture started", "chunk_bytes", c.chunker.Size())
	frame := make([]byte, 2*c.framesPerBuffer)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.stream.Read(); err != nil {
			logger.Warn("failed to read from PortAudio stream", "error", err)
			continue
		}
		if c.muted.Load() {
			c.chunker.Reset()
			continue
		}

		for i, sample := range c.in {
			binary.LittleEndian.PutUint16(frame[2*i:], uint16(sample))
		}
		c.chunker.Write(frame, onAudio)
	}
}

func (c *Client) SetMuted(muted bool) error {
	c.muted.Store(muted)
	return nil
}

// Close stops the stream and terminates PortAudio. Repeated calls are
// no-ops.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.stream.Close()
		portaudio.Terminate()
	})
}

// SendAudio queues agent audio and writes every complete buffer to the
// stream. The remainder waits for the next call.
func (c *Client) SendAudio(chunk []byte) error {
	if dropped := c.queue.Push(chunk); dropped > 0 {
		logger.Warn("playback buffer full, dropped oldest audio", "bytes", dropped)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for {
		block, ok := c.queue.Next(2 * c.framesPerBuffer)
		if !ok {
			return nil
		}
		for i := range c.out {
			c.out[i] = int16(binary.LittleEndian.Uint16(block[2*i:]))
		}
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to PortAudio stream: %w", err)
		}
	}
}

func (c *Client) ClearBuffer() {
	c.queue.Clear()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encoding
}
