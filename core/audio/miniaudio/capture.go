package miniaudio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/convai-core/core/audio"
)

var errNoDevice = errors.New("device not initialized")

// microphone captures mono linear16 audio and hands it out in fixed-size
// chunks.
type microphone struct {
	device  *malgo.Device
	chunker *audio.Chunker

	mu      sync.Mutex
	onChunk func(chunk []byte)

	muted atomic.Bool
}

func (m *microphone) open(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo, chunkDuration time.Duration) error {
	m.chunker = audio.NewChunker(encoding, chunkDuration)

	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = uint32(encoding.SampleRate)
	config.Capture.Format = malgo.FormatS16
	config.Capture.Channels = 1
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{Data: m.onFrames})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}
	m.device = device
	return nil
}

func (m *microphone) onFrames(_, input []byte, frameCount uint32) {
	n := min(int(frameCount)*2, len(input))
	if n == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.onChunk == nil {
		return
	}
	if m.muted.Load() {
		m.chunker.Reset()
		return
	}
	m.chunker.Write(input[:n], m.onChunk)
}

func (m *microphone) start(onChunk func(chunk []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return errNoDevice
	}

	m.chunker.Reset()
	m.onChunk = onChunk
	if m.device.IsStarted() {
		return nil
	}
	if err := m.device.Start(); err != nil {
		m.onChunk = nil
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	logger.Info("microphone capture started", "chunk_bytes", m.chunker.Size())
	return nil
}

func (m *microphone) stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return errNoDevice
	}

	if m.onChunk != nil && !m.muted.Load() {
		m.chunker.Flush(m.onChunk)
	}
	m.onChunk = nil
	if !m.device.IsStarted() {
		return nil
	}
	if err := m.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (m *microphone) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		m.device.Uninit()
		m.device = nil
	}
	m.onChunk = nil
}
