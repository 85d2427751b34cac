package miniaudio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/convai-core/core/audio"
)

// speaker plays agent audio pulled from a playback queue. The device
// callback pads gaps with silence.
type speaker struct {
	device *malgo.Device
	queue  *audio.PlaybackQueue

	mu sync.Mutex
}

func (s *speaker) open(audioContext *malgo.AllocatedContext, encoding audio.EncodingInfo, maxBuffered time.Duration) error {
	s.queue = audio.NewPlaybackQueue(encoding, maxBuffered)

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = uint32(encoding.SampleRate)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = uint32(encoding.SampleRate / 10)
	config.Periods = 4

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			s.queue.Read(output[:min(int(frameCount)*2, len(output))])
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	s.device = device
	return nil
}

func (s *speaker) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return errNoDevice
	}
	if s.device.IsStarted() {
		return nil
	}
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

func (s *speaker) stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return errNoDevice
	}
	s.queue.Clear()
	if !s.device.IsStarted() {
		return nil
	}
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}
	return nil
}

func (s *speaker) play(chunk []byte) error {
	s.mu.Lock()
	started := s.device != nil && s.device.IsStarted()
	s.mu.Unlock()
	if !started {
		return fmt.Errorf("playback device not started")
	}

	if dropped := s.queue.Push(chunk); dropped > 0 {
		logger.Warn("playback buffer full, dropped oldest audio", "bytes", dropped)
	}
	return nil
}

func (s *speaker) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
}
