// Package speech turns messages into audible playback: it fetches a
// synthesized rendition, decodes it, and plays it through an audio output,
// holding at most one playback session at a time.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/swaralabs/wicara/domain/repositories"
	"github.com/swaralabs/wicara/internal/audio"
)

// State identifies where the controller is in the playback lifecycle
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StatePlaying  State = "playing"
)

// FailureKind identifies which stage of a playback attempt failed
type FailureKind string

const (
	FailureSynthesis FailureKind = "synthesis"
	FailureDecode    FailureKind = "decode"
	FailurePlayback  FailureKind = "playback"
)

var (
	// ErrControllerClosed is returned by Toggle after Close
	ErrControllerClosed = errors.New("speech controller is closed")
	// ErrEmptyText is returned when there is nothing to speak
	ErrEmptyText = errors.New("text cannot be empty")
)

const defaultFetchTimeout = 30 * time.Second

// Notifier receives exactly one call per failed playback attempt. It backs
// the user-visible notice; implementations must not block and must not call
// back into the controller.
type Notifier interface {
	SpeechFailed(kind FailureKind, err error)
}

// ControllerConfig holds configuration for a playback controller
// Required fields:
// - Synthesizer: the speech synthesis provider
// - Outputs: the audio output factory
// - Format: PCM format shared by synthesis, decoding, and output
// Optional fields:
// - Notifier: receives failure notices (default: none)
// - OnChange: observes every state transition; must not block and must not
//   call back into the controller (default: none)
// - FetchTimeout: synthesis deadline (default: 30s)
type ControllerConfig struct {
	Synthesizer  repositories.TextToSpeech
	Outputs      Outputs
	Format       audio.Format
	Notifier     Notifier
	OnChange     func(State)
	FetchTimeout time.Duration
}

// Controller drives the playback lifecycle of spoken replies. It moves
// through Idle, Fetching, and Playing, and Toggle flips between starting a
// rendition and cancelling whichever one is underway. All transitions are
// serialized behind one mutex; a generation counter keeps results of
// cancelled fetches from leaking into later sessions.
type Controller struct {
	synth    repositories.TextToSpeech
	outputs  Outputs
	format   audio.Format
	notifier Notifier
	onChange func(State)
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	state   State
	gen     uint64
	cancel  context.CancelFunc // set while a fetch is in flight
	session *playbackSession   // set while playing
	closed  bool
}

// playbackSession is the resource pair of an active playback: the acquired
// output and the started source. Both are released together, exactly once.
type playbackSession struct {
	output Output
	source Source
}

// NewController creates a playback controller
func NewController(config ControllerConfig, logger *zap.Logger) (*Controller, error) {
	if config.Synthesizer == nil {
		return nil, fmt.Errorf("synthesizer is required")
	}
	if config.Outputs == nil {
		return nil, fmt.Errorf("outputs is required")
	}
	if err := config.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audio format: %w", err)
	}

	timeout := config.FetchTimeout
	if timeout == 0 {
		timeout = defaultFetchTimeout
	}

	return &Controller{
		synth:    config.Synthesizer,
		outputs:  config.Outputs,
		format:   config.Format,
		notifier: config.Notifier,
		onChange: config.OnChange,
		timeout:  timeout,
		logger:   logger,
		state:    StateIdle,
	}, nil
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Toggle flips playback. While Fetching or Playing it cancels the active
// session and returns to Idle, regardless of text. While Idle it starts a
// new session for text: synthesis runs in the background and, if this
// session is still live when the audio arrives, playback begins.
func (c *Controller) Toggle(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrControllerClosed
	}

	if c.state != StateIdle {
		c.stopSessionLocked()
		c.setStateLocked(StateIdle)
		return nil
	}

	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	c.gen++
	c.cancel = cancel
	c.setStateLocked(StateFetching)

	go c.fetch(fetchCtx, c.gen, text)
	return nil
}

// Close tears the controller down: any in-flight fetch is cancelled, any
// playing source is stopped, and the output is released. Resources are
// released exactly once no matter how often Close is called.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.state != StateIdle {
		c.stopSessionLocked()
		c.setStateLocked(StateIdle)
	}
	return nil
}

// fetch runs the synthesis half of a session and, when the session is still
// live, hands the decoded audio to a fresh output.
func (c *Controller) fetch(ctx context.Context, gen uint64, text string) {
	data, err := c.synth.Synthesize(ctx, text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.liveLocked(gen, StateFetching) {
		// The session was toggled away or the controller closed while the
		// request was in flight. Its result belongs to nobody.
		c.logger.Debug("Discarding stale synthesis result", zap.Uint64("generation", gen))
		return
	}

	c.cancel()
	c.cancel = nil

	if err != nil {
		c.failLocked(FailureSynthesis, fmt.Errorf("failed to synthesize speech: %w", err))
		return
	}

	buffer, err := audio.Decode(data, c.format)
	if err != nil {
		c.failLocked(FailureDecode, fmt.Errorf("failed to decode audio: %w", err))
		return
	}

	output, err := c.outputs.Open(c.format)
	if err != nil {
		c.failLocked(FailurePlayback, fmt.Errorf("failed to open audio output: %w", err))
		return
	}

	source, err := output.NewSource(buffer)
	if err != nil {
		c.closeOutput(output)
		c.failLocked(FailurePlayback, fmt.Errorf("failed to create audio source: %w", err))
		return
	}

	if err := source.Start(); err != nil {
		c.closeOutput(output)
		c.failLocked(FailurePlayback, fmt.Errorf("failed to start playback: %w", err))
		return
	}

	c.session = &playbackSession{output: output, source: source}
	c.setStateLocked(StatePlaying)
	c.logger.Debug("Playback started",
		zap.Uint64("generation", gen),
		zap.Duration("duration", buffer.Duration()))

	go c.watch(gen, source.Done())
}

// watch waits for the source to finish and returns the controller to Idle
// when the session ran to natural completion.
func (c *Controller) watch(gen uint64, done <-chan struct{}) {
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.liveLocked(gen, StatePlaying) {
		// Stop already released this session.
		return
	}

	c.closeOutput(c.session.output)
	c.session = nil
	c.setStateLocked(StateIdle)
}

// liveLocked reports whether generation gen is still the active session in
// the given state. A stale generation means the session was cancelled.
func (c *Controller) liveLocked(gen uint64, state State) bool {
	return !c.closed && c.gen == gen && c.state == state
}

// stopSessionLocked cancels whatever the active session is doing and
// releases its resources. Bumping the generation orphans the session's
// background goroutines.
func (c *Controller) stopSessionLocked() {
	c.gen++

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if c.session != nil {
		c.session.source.Stop()
		c.closeOutput(c.session.output)
		c.session = nil
	}
}

func (c *Controller) closeOutput(output Output) {
	if err := output.Close(); err != nil {
		c.logger.Warn("Failed to close audio output", zap.Error(err))
	}
}

// failLocked handles a failed playback attempt: log it, notify the user
// once, return to Idle. There is no automatic retry; the user may toggle
// again.
func (c *Controller) failLocked(kind FailureKind, err error) {
	c.logger.Error("Speech playback failed",
		zap.String("stage", string(kind)),
		zap.Error(err))

	c.setStateLocked(StateIdle)
	if c.notifier != nil {
		c.notifier.SpeechFailed(kind, err)
	}
}

func (c *Controller) setStateLocked(state State) {
	c.state = state
	if c.onChange != nil {
		c.onChange(state)
	}
}
