// Package audio describes the raw audio exchanged with an agent and the
// device capabilities a session can drive.
package audio

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DefaultSampleRate = 16000
	DefaultFormat     = EncodingLinear16
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: DefaultFormat}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	}
	return 0
}

// BytesPerSecond is the data rate of mono audio in this encoding.
func (e EncodingInfo) BytesPerSecond() int {
	return e.SampleRate * e.Format.ByteSize()
}

func (e EncodingInfo) String() string {
	return fmt.Sprintf("%s@%d", e.Format.Name(), e.SampleRate)
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)

// wireFormats maps the format prefixes used by the agent protocol, e.g.
// "pcm_16000" or "ulaw_8000".
var wireFormats = map[string]encodingFormat{
	"pcm":  EncodingLinear16,
	"ulaw": EncodingMulaw,
	"alaw": EncodingALaw,
}

// ParseFormat converts a protocol audio format name into EncodingInfo.
func ParseFormat(name string) (EncodingInfo, error) {
	prefix, rate, ok := strings.Cut(name, "_")
	if !ok {
		return EncodingInfo{}, fmt.Errorf("invalid audio format %q", name)
	}
	format, ok := wireFormats[prefix]
	if !ok {
		return EncodingInfo{}, fmt.Errorf("unsupported audio encoding %q", prefix)
	}
	sampleRate, err := strconv.Atoi(rate)
	if err != nil || sampleRate <= 0 {
		return EncodingInfo{}, fmt.Errorf("invalid sample rate in audio format %q", name)
	}
	return EncodingInfo{SampleRate: sampleRate, Format: format}, nil
}
