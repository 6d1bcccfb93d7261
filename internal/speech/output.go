package speech

import (
	"github.com/swaralabs/wicara/internal/audio"
)

// Outputs acquires platform audio outputs. The controller opens one Output
// per playback session and closes it when the session ends, on every exit
// path.
type Outputs interface {
	Open(format audio.Format) (Output, error)
}

// Output is an acquired audio output context.
type Output interface {
	// NewSource wires a decoded buffer into a playable source.
	NewSource(buffer *audio.Buffer) (Source, error)
	// Close releases the output. Called exactly once per session.
	Close() error
}

// Source plays a single buffer once.
type Source interface {
	Start() error
	// Stop halts playback. Safe to call after playback already finished.
	Stop()
	// Done is closed when playback ends, whether it ran to completion or
	// was stopped.
	Done() <-chan struct{}
}
