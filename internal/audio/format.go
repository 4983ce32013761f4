package audio

import (
	"fmt"
	"strings"
	"time"
)

// Encoding names as the upstream agent spells them.
const (
	EncodingLinear16 = "linear16"
	EncodingMulaw    = "mulaw"
)

// Format describes mono audio as it travels over both legs of a bridge.
type Format struct {
	Name          string
	Encoding      string
	SampleRate    int
	SampleWidth   int // bytes per sample
	FrameDuration time.Duration
}

var (
	// PCM16k is 16-bit linear PCM at 16 kHz, the browser microphone default.
	PCM16k = Format{
		Name:          "pcm16k",
		Encoding:      EncodingLinear16,
		SampleRate:    16000,
		SampleWidth:   2,
		FrameDuration: 20 * time.Millisecond,
	}

	// Mulaw8k is 8-bit companded audio at 8 kHz as used on phone lines.
	Mulaw8k = Format{
		Name:          "mulaw8k",
		Encoding:      EncodingMulaw,
		SampleRate:    8000,
		SampleWidth:   1,
		FrameDuration: 20 * time.Millisecond,
	}
)

// FrameBytes returns the byte length of one frame.
func (f Format) FrameBytes() int {
	samples := int(int64(f.SampleRate) * int64(f.FrameDuration) / int64(time.Second))
	return samples * f.SampleWidth
}

// ParseFormat resolves a format by name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PCM16k.Name, "linear16":
		return PCM16k, nil
	case Mulaw8k.Name, "mulaw", "ulaw":
		return Mulaw8k, nil
	default:
		return Format{}, fmt.Errorf("unsupported audio format: %s", name)
	}
}
