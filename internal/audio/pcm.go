// Package audio converts between raw 16-bit PCM byte streams and the
// per-channel float32 sample buffers the playback pipeline works with.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

const bytesPerSample = 2 // signed 16-bit little-endian

// Format describes a PCM stream. The same Format value must be used for
// decoding a payload and for opening the output that will play it.
type Format struct {
	SampleRate int
	Channels   int
}

// Validate reports whether the format can describe real audio.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", f.Channels)
	}
	return nil
}

// FrameBytes returns the size of one frame (one sample per channel).
func (f Format) FrameBytes() int {
	return bytesPerSample * f.Channels
}

// Buffer holds decoded audio, one sample slice per channel, values in [-1, 1).
type Buffer struct {
	Format  Format
	Samples [][]float32
}

// Frames returns the number of frames in the buffer.
func (b *Buffer) Frames() int {
	if len(b.Samples) == 0 {
		return 0
	}
	return len(b.Samples[0])
}

// Duration returns the playback time of the buffer at its sample rate.
func (b *Buffer) Duration() time.Duration {
	if b.Format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.Format.SampleRate)
}

// Decode converts interleaved signed 16-bit little-endian PCM bytes into one
// float32 buffer per channel, each sample divided by 32768. Trailing bytes
// that do not form a complete frame are dropped rather than rejected, so a
// truncated stream still yields its complete frames.
func Decode(raw []byte, format Format) (*Buffer, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	frames := len(raw) / format.FrameBytes()
	if frames == 0 {
		return nil, fmt.Errorf("payload of %d bytes holds no complete frame", len(raw))
	}

	samples := make([][]float32, format.Channels)
	for c := range samples {
		samples[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < format.Channels; c++ {
			offset := (i*format.Channels + c) * bytesPerSample
			value := int16(binary.LittleEndian.Uint16(raw[offset:]))
			samples[c][i] = float32(value) / 32768.0
		}
	}

	return &Buffer{Format: format, Samples: samples}, nil
}

// DecodeBase64 decodes a standard-base64 PCM payload and converts it.
func DecodeBase64(encoded string, format Format) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 audio: %w", err)
	}
	return Decode(raw, format)
}

// Encode converts a buffer back to interleaved signed 16-bit little-endian
// PCM bytes, clamping samples to the int16 range.
func Encode(buf *Buffer) []byte {
	frames := buf.Frames()
	channels := len(buf.Samples)
	raw := make([]byte, frames*channels*bytesPerSample)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			scaled := int32(buf.Samples[c][i] * 32768.0)
			if scaled > 32767 {
				scaled = 32767
			} else if scaled < -32768 {
				scaled = -32768
			}
			offset := (i*channels + c) * bytesPerSample
			binary.LittleEndian.PutUint16(raw[offset:], uint16(int16(scaled)))
		}
	}
	return raw
}
