package convai

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/convai-core/core/audio"
)

// AudioInput is a microphone. Stream blocks while audio is captured and
// delivers frames to onAudio.
type AudioInput interface {
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	EncodingInfo() audio.EncodingInfo
	Close()
}

// AudioInputFine is implemented by inputs that can start and stop capture
// without being closed.
type AudioInputFine interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

// AudioOutput is a speaker fed with agent audio.
type AudioOutput interface {
	SendAudio(audio []byte) error
	ClearBuffer()
	EncodingInfo() audio.EncodingInfo
}

// PlaybackController is implemented by outputs whose playback has to be
// started explicitly.
type PlaybackController interface {
	StartPlayback(ctx context.Context) error
	StopPlayback() error
}

// Muter is implemented by inputs that can silence capture themselves.
// Inputs without it are muted by dropping their frames.
type Muter interface {
	SetMuted(muted bool) error
}

// MicrophonePermission is implemented by inputs that know whether the user
// allowed microphone access. Inputs without it are assumed to be allowed.
type MicrophonePermission interface {
	HasMicrophonePermission() bool
}

// audioIO drives the optional audio devices of a session. Every method is a
// no-op when the corresponding device is not configured.
type audioIO struct {
	input  AudioInput
	fine   AudioInputFine
	muter  Muter
	output AudioOutput
	player PlaybackController

	onInputAudio func(audio []byte)

	muted     atomic.Bool
	capturing atomic.Bool
	playing   atomic.Bool

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func newAudioIO(input AudioInput, output AudioOutput) *audioIO {
	a := &audioIO{}
	if !isNil(input) {
		a.input = input
		a.fine, _ = input.(AudioInputFine)
		a.muter, _ = input.(Muter)
	}
	if !isNil(output) {
		a.output = output
		a.player, _ = output.(PlaybackController)
	}
	return a
}

func (a *audioIO) hasInput() bool  { return a.input != nil }
func (a *audioIO) hasOutput() bool { return a.output != nil }

func (a *audioIO) hasMicrophonePermission() bool {
	if permission, ok := a.input.(MicrophonePermission); ok {
		return permission.HasMicrophonePermission()
	}
	return a.input != nil
}

// start begins playback and, when capture is set, microphone capture.
// Capture errors that only surface later are logged.
func (a *audioIO) start(ctx context.Context, capture bool, onInputAudio func([]byte)) error {
	a.mu.Lock()
	a.onInputAudio = onInputAudio
	ctx, cancel := context.WithCancel(ctx)
	a.ctx, a.cancel = ctx, cancel
	a.mu.Unlock()

	var errs error
	if capture && a.input != nil && a.capturing.CompareAndSwap(false, true) {
		if a.fine != nil {
			if err := a.fine.StartCapture(ctx, a.onAudio); err != nil {
				a.capturing.Store(false)
				errs = errors.Join(errs, err)
			}
		} else {
			go func() {
				if err := a.input.Stream(ctx, a.onAudio); err != nil && ctx.Err() == nil {
					logger.Error("audio input stopped", "error", err)
				}
				a.capturing.Store(false)
			}()
		}
	}
	if err := a.startPlayback(ctx); err != nil {
		errs = errors.Join(errs, err)
	}
	return errs
}

func (a *audioIO) startPlayback(ctx context.Context) error {
	if a.player == nil || !a.playing.CompareAndSwap(false, true) {
		return nil
	}
	if err := a.player.StartPlayback(ctx); err != nil {
		a.playing.Store(false)
		return err
	}
	return nil
}

// ensurePlayback starts playback if it is not already running. It does
// nothing before start or after stop.
func (a *audioIO) ensurePlayback() {
	a.mu.Lock()
	ctx := a.ctx
	a.mu.Unlock()
	if ctx == nil {
		return
	}

	if err := a.startPlayback(ctx); err != nil {
		logger.Warn("failed to start playback", "error", err)
	}
}

func (a *audioIO) onAudio(frame []byte) {
	if a.muted.Load() && a.muter == nil {
		return
	}

	a.mu.Lock()
	onInputAudio := a.onInputAudio
	a.mu.Unlock()
	if onInputAudio != nil {
		onInputAudio(frame)
	}
}

func (a *audioIO) setMuted(muted bool) error {
	a.muted.Store(muted)
	if a.muter != nil {
		return a.muter.SetMuted(muted)
	}
	return nil
}

func (a *audioIO) play(chunk []byte) {
	if a.output == nil {
		return
	}
	if err := a.output.SendAudio(chunk); err != nil {
		logger.Warn("failed to play agent audio", "error", err)
	}
}

func (a *audioIO) clear() {
	if a.output != nil {
		a.output.ClearBuffer()
	}
}

func (a *audioIO) inputEncoding() audio.EncodingInfo {
	if a.input == nil {
		return audio.GetDefaultEncodingInfo()
	}
	return a.input.EncodingInfo()
}

func (a *audioIO) outputEncoding() audio.EncodingInfo {
	if a.output == nil {
		return audio.GetDefaultEncodingInfo()
	}
	return a.output.EncodingInfo()
}

// stop halts capture and playback and releases the input device.
func (a *audioIO) stop() error {
	a.mu.Lock()
	cancel := a.cancel
	a.ctx, a.cancel = nil, nil
	a.onInputAudio = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	var errs error
	if a.fine != nil && a.capturing.Swap(false) {
		errs = errors.Join(errs, a.fine.StopCapture())
	}
	if a.player != nil && a.playing.Swap(false) {
		errs = errors.Join(errs, a.player.StopPlayback())
	}
	a.clear()
	if a.input != nil {
		a.input.Close()
	}
	return errs
}

// isNil detects typed-nil interface values.
func isNil(client any) bool {
	if client == nil {
		return true
	}

	v := reflect.ValueOf(client)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
