package speech

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/swaralabs/wicara/internal/audio"
)

// fakeSynthesizer returns canned audio, optionally blocking until released.
type fakeSynthesizer struct {
	mu      sync.Mutex
	calls   int
	data    []byte
	err     error
	release chan struct{} // when set, Synthesize waits for it
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	release := f.release
	data, err := f.data, f.err
	f.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return data, err
}

func (f *fakeSynthesizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeOutputs struct {
	mu        sync.Mutex
	opened    []*fakeOutput
	openErr   error
	sourceErr error // propagated to opened outputs
	startErr  error // propagated to created sources
}

func (f *fakeOutputs) Open(format audio.Format) (Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	output := &fakeOutput{sourceErr: f.sourceErr, startErr: f.startErr}
	f.opened = append(f.opened, output)
	return output, nil
}

func (f *fakeOutputs) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opened)
}

func (f *fakeOutputs) lastOutput() *fakeOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.opened) == 0 {
		return nil
	}
	return f.opened[len(f.opened)-1]
}

type fakeOutput struct {
	mu        sync.Mutex
	closes    int
	source    *fakeSource
	sourceErr error
	startErr  error
}

func (f *fakeOutput) NewSource(buffer *audio.Buffer) (Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sourceErr != nil {
		return nil, f.sourceErr
	}
	f.source = &fakeSource{
		done:     make(chan struct{}),
		startErr: f.startErr,
	}
	return f.source, nil
}

func (f *fakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeOutput) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeOutput) currentSource() *fakeSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.source
}

type fakeSource struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
	done     chan struct{}
	once     sync.Once
}

func (f *fakeSource) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeSource) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	f.once.Do(func() { close(f.done) })
}

// finish simulates playback running to natural completion.
func (f *fakeSource) finish() {
	f.once.Do(func() { close(f.done) })
}

func (f *fakeSource) Done() <-chan struct{} {
	return f.done
}

func (f *fakeSource) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeNotifier struct {
	mu    sync.Mutex
	kinds []FailureKind
}

func (f *fakeNotifier) SpeechFailed(kind FailureKind, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.kinds)
}

func (f *fakeNotifier) lastKind() FailureKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.kinds) == 0 {
		return ""
	}
	return f.kinds[len(f.kinds)-1]
}

// pcmSamples builds a valid little-endian PCM payload.
func pcmSamples(values ...int16) []byte {
	raw := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(v))
	}
	return raw
}

func testFormat() audio.Format {
	return audio.Format{SampleRate: 24000, Channels: 1}
}

func newTestController(t *testing.T, config ControllerConfig) (*Controller, chan State) {
	t.Helper()

	states := make(chan State, 32)
	config.OnChange = func(state State) { states <- state }
	if config.Format == (audio.Format{}) {
		config.Format = testFormat()
	}

	controller, err := NewController(config, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	t.Cleanup(func() { controller.Close() })
	return controller, states
}

func expectState(t *testing.T, states chan State, want State) {
	t.Helper()
	select {
	case got := <-states:
		if got != want {
			t.Fatalf("Expected state %s, got %s", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for state %s", want)
	}
}

func TestPlaybackLifecycle(t *testing.T) {
	synth := &fakeSynthesizer{data: pcmSamples(100, 200, 300, 400)}
	outputs := &fakeOutputs{}
	notifier := &fakeNotifier{}

	controller, states := newTestController(t, ControllerConfig{
		Synthesizer: synth,
		Outputs:     outputs,
		Notifier:    notifier,
	})

	if err := controller.Toggle(context.Background(), "hello there"); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}

	expectState(t, states, StateFetching)
	expectState(t, states, StatePlaying)

	if outputs.openCount() != 1 {
		t.Fatalf("Expected 1 output opened, got %d", outputs.openCount())
	}
	source := outputs.lastOutput().currentSource()
	if source == nil {
		t.Fatal("Expected a source to be created")
	}

	// Natural completion returns the controller to Idle and releases the
	// output.
	source.finish()
	expectState(t, states, StateIdle)

	if outputs.lastOutput().closeCount() != 1 {
		t.Errorf("Expected output closed once, got %d", outputs.lastOutput().closeCount())
	}
	if notifier.count() != 0 {
		t.Errorf("Expected no failure notices, got %d", notifier.count())
	}
	if controller.State() != StateIdle {
		t.Errorf("Expected final state idle, got %s", controller.State())
	}
}

func TestDoubleToggleCancelsFetch(t *testing.T) {
	release := make(chan struct{})
	synth := &fakeSynthesizer{data: pcmSamples(100, 200), release: release}
	outputs := &fakeOutputs{}
	notifier := &fakeNotifier{}

	controller, states := newTestController(t, ControllerConfig{
		Synthesizer: synth,
		Outputs:     outputs,
		Notifier:    notifier,
	})

	text := "the same message toggled twice"
	if err := controller.Toggle(context.Background(), text); err != nil {
		t.Fatalf("First toggle failed: %v", err)
	}
	expectState(t, states, StateFetching)

	// Second toggle lands while the fetch is still in flight.
	if err := controller.Toggle(context.Background(), text); err != nil {
		t.Fatalf("Second toggle failed: %v", err)
	}
	expectState(t, states, StateIdle)

	// Let the orphaned fetch resolve; its result must be discarded.
	close(release)
	time.Sleep(50 * time.Millisecond)

	if controller.State() != StateIdle {
		t.Errorf("Expected final state idle, got %s", controller.State())
	}
	if outputs.openCount() != 0 {
		t.Errorf("Expected no output to be opened, got %d", outputs.openCount())
	}
	if notifier.count() != 0 {
		t.Errorf("Expected no failure notices, got %d", notifier.count())
	}
}

func TestToggleWhilePlayingStops(t *testing.T) {
	synth := &fakeSynthesizer{data: pcmSamples(100, 200, 300)}
	outputs := &fakeOutputs{}

	controller, states := newTestController(t, ControllerConfig{
		Synthesizer: synth,
		Outputs:     outputs,
	})

	if err := controller.Toggle(context.Background(), "playing message"); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	expectState(t, states, StateFetching)
	expectState(t, states, StatePlaying)

	if err := controller.Toggle(context.Background(), "playing message"); err != nil {
		t.Fatalf("Toggle off failed: %v", err)
	}
	expectState(t, states, StateIdle)

	output := outputs.lastOutput()
	if output.currentSource().stopCount() != 1 {
		t.Errorf("Expected source stopped once, got %d", output.currentSource().stopCount())
	}
	if output.closeCount() != 1 {
		t.Errorf("Expected output closed once, got %d", output.closeCount())
	}

	// The watcher saw the stop as well; it must not close a second time.
	time.Sleep(50 * time.Millisecond)
	if output.closeCount() != 1 {
		t.Errorf("Expected output to stay closed once, got %d", output.closeCount())
	}
}

func TestStaleFetchDoesNotHijackNewSession(t *testing.T) {
	release := make(chan struct{})
	synth := &fakeSynthesizer{data: pcmSamples(100, 200), release: release}
	outputs := &fakeOutputs{}

	controller, states := newTestController(t, ControllerConfig{
		Synthesizer: synth,
		Outputs:     outputs,
	})

	if err := controller.Toggle(context.Background(), "first message"); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	expectState(t, states, StateFetching)

	if err := controller.Toggle(context.Background(), "first message"); err != nil {
		t.Fatalf("Toggle off failed: %v", err)
	}
	expectState(t, states, StateIdle)

	// Start a second session that resolves immediately.
	synth.mu.Lock()
	synth.release = nil
	synth.mu.Unlock()

	if err := controller.Toggle(context.Background(), "second message"); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	expectState(t, states, StateFetching)
	expectState(t, states, StatePlaying)

	// Now let the first fetch resolve late. It must not open another
	// output or disturb the playing session.
	close(release)
	time.Sleep(50 * time.Millisecond)

	if outputs.openCount() != 1 {
		t.Errorf("Expected 1 output opened, got %d", outputs.openCount())
	}
	if controller.State() != StatePlaying {
		t.Errorf("Expected state playing, got %s", controller.State())
	}
	if synth.callCount() != 2 {
		t.Errorf("Expected 2 synthesis calls, got %d", synth.callCount())
	}
}

func TestSynthesisFailureNotifiesOnce(t *testing.T) {
	synth := &fakeSynthesizer{err: errors.New("service unavailable")}
	outputs := &fakeOutputs{}
	notifier := &fakeNotifier{}

	controller, states := newTestController(t, ControllerConfig{
		Synthesizer: synth,
		Outputs:     outputs,
		Notifier:    notifier,
	})

	if err := controller.Toggle(context.Background(), "doomed message"); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	expectState(t, states, StateFetching)
	expectState(t, states, StateIdle)

	if notifier.count() != 1 {
		t.Fatalf("Expected exactly 1 failure notice, got %d", notifier.count())
	}
	if notifier.lastKind() != FailureSynthesis {
		t.Errorf("Expected synthesis failure, got %s", notifier.lastKind())
	}
	if outputs.openCount() != 0 {
		t.Errorf("Expected no output opened, got %d", outputs.openCount())
	}

	// No retry happens on its own.
	time.Sleep(50 * time.Millisecond)
	if synth.callCount() != 1 {
		t.Errorf("Expected 1 synthesis call, got %d", synth.callCount())
	}
}

func TestDecodeFailureNotifiesOnce(t *testing.T) {
	// A single byte cannot hold one 16-bit frame.
	synth := &fakeSynthesizer{data: []byte{0x7F}}
	outputs := &fakeOutputs{}
	notifier := &fakeNotifier{}

	controller, states := newTestController(t, ControllerConfig{
		Synthesizer: synth,
		Outputs:     outputs,
		Notifier:    notifier,
	})

	if err := controller.Toggle(context.Background(), "garbled message"); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	expectState(t, states, StateFetching)
	expectState(t, states, StateIdle)

	if notifier.count() != 1 {
		t.Fatalf("Expected exactly 1 failure notice, got %d", notifier.count())
	}
	if notifier.lastKind() != FailureDecode {
		t.Errorf("Expected decode failure, got %s", notifier.lastKind())
	}
}

func TestOutputFailuresReleaseResources(t *testing.T) {
	t.Run("open fails", func(t *testing.T) {
		synth := &fakeSynthesizer{data: pcmSamples(100, 200)}
		outputs := &fakeOutputs{openErr: errors.New("no output available")}
		notifier := &fakeNotifier{}

		controller, states := newTestController(t, ControllerConfig{
			Synthesizer: synth,
			Outputs:     outputs,
			Notifier:    notifier,
		})

		if err := controller.Toggle(context.Background(), "message"); err != nil {
			t.Fatalf("Toggle failed: %v", err)
		}
		expectState(t, states, StateFetching)
		expectState(t, states, StateIdle)

		if notifier.count() != 1 || notifier.lastKind() != FailurePlayback {
			t.Errorf("Expected 1 playback failure notice, got %d %s", notifier.count(), notifier.lastKind())
		}
	})

	t.Run("source creation fails", func(t *testing.T) {
		synth := &fakeSynthesizer{data: pcmSamples(100, 200)}
		outputs := &fakeOutputs{sourceErr: errors.New("buffer rejected")}
		notifier := &fakeNotifier{}

		controller, states := newTestController(t, ControllerConfig{
			Synthesizer: synth,
			Outputs:     outputs,
			Notifier:    notifier,
		})

		if err := controller.Toggle(context.Background(), "message"); err != nil {
			t.Fatalf("Toggle failed: %v", err)
		}
		expectState(t, states, StateFetching)
		expectState(t, states, StateIdle)

		if notifier.count() != 1 || notifier.lastKind() != FailurePlayback {
			t.Errorf("Expected 1 playback failure notice, got %d %s", notifier.count(), notifier.lastKind())
		}
		// The acquired output must still be released.
		if outputs.lastOutput().closeCount() != 1 {
			t.Errorf("Expected output closed once, got %d", outputs.lastOutput().closeCount())
		}
	})

	t.Run("start fails", func(t *testing.T) {
		synth := &fakeSynthesizer{data: pcmSamples(100, 200)}
		outputs := &fakeOutputs{startErr: errors.New("device busy")}
		notifier := &fakeNotifier{}

		controller, states := newTestController(t, ControllerConfig{
			Synthesizer: synth,
			Outputs:     outputs,
			Notifier:    notifier,
		})

		if err := controller.Toggle(context.Background(), "message"); err != nil {
			t.Fatalf("Toggle failed: %v", err)
		}
		expectState(t, states, StateFetching)
		expectState(t, states, StateIdle)

		if notifier.count() != 1 || notifier.lastKind() != FailurePlayback {
			t.Errorf("Expected 1 playback failure notice, got %d %s", notifier.count(), notifier.lastKind())
		}
		if outputs.lastOutput().closeCount() != 1 {
			t.Errorf("Expected output closed once, got %d", outputs.lastOutput().closeCount())
		}
	})
}

func TestCloseDuringPlaybackReleasesOnce(t *testing.T) {
	synth := &fakeSynthesizer{data: pcmSamples(100, 200, 300)}
	outputs := &fakeOutputs{}

	controller, states := newTestController(t, ControllerConfig{
		Synthesizer: synth,
		Outputs:     outputs,
	})

	if err := controller.Toggle(context.Background(), "message"); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	expectState(t, states, StateFetching)
	expectState(t, states, StatePlaying)

	if err := controller.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	output := outputs.lastOutput()
	if output.currentSource().stopCount() != 1 {
		t.Errorf("Expected source stopped once, got %d", output.currentSource().stopCount())
	}
	if output.closeCount() != 1 {
		t.Errorf("Expected output closed once, got %d", output.closeCount())
	}

	// A second close must not touch the released resources again.
	if err := controller.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if output.closeCount() != 1 {
		t.Errorf("Expected output to stay closed once, got %d", output.closeCount())
	}

	if err := controller.Toggle(context.Background(), "message"); !errors.Is(err, ErrControllerClosed) {
		t.Errorf("Expected ErrControllerClosed after close, got %v", err)
	}
}

func TestCloseDuringFetchDiscardsResult(t *testing.T) {
	release := make(chan struct{})
	synth := &fakeSynthesizer{data: pcmSamples(100, 200), release: release}
	outputs := &fakeOutputs{}
	notifier := &fakeNotifier{}

	controller, states := newTestController(t, ControllerConfig{
		Synthesizer: synth,
		Outputs:     outputs,
		Notifier:    notifier,
	})

	if err := controller.Toggle(context.Background(), "message"); err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	expectState(t, states, StateFetching)

	if err := controller.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	close(release)
	time.Sleep(50 * time.Millisecond)

	if outputs.openCount() != 0 {
		t.Errorf("Expected no output opened after close, got %d", outputs.openCount())
	}
	if notifier.count() != 0 {
		t.Errorf("Expected no failure notices after close, got %d", notifier.count())
	}
}

func TestToggleRejectsEmptyText(t *testing.T) {
	synth := &fakeSynthesizer{data: pcmSamples(100)}
	controller, _ := newTestController(t, ControllerConfig{
		Synthesizer: synth,
		Outputs:     &fakeOutputs{},
	})

	if err := controller.Toggle(context.Background(), ""); !errors.Is(err, ErrEmptyText) {
		t.Errorf("Expected ErrEmptyText, got %v", err)
	}
	if err := controller.Toggle(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("Expected ErrEmptyText for whitespace, got %v", err)
	}
	if controller.State() != StateIdle {
		t.Errorf("Expected state idle, got %s", controller.State())
	}
}

func TestNewControllerValidation(t *testing.T) {
	logger := zaptest.NewLogger(t)
	synth := &fakeSynthesizer{}
	outputs := &fakeOutputs{}

	if _, err := NewController(ControllerConfig{Outputs: outputs, Format: testFormat()}, logger); err == nil {
		t.Error("Expected error when synthesizer is missing")
	}
	if _, err := NewController(ControllerConfig{Synthesizer: synth, Format: testFormat()}, logger); err == nil {
		t.Error("Expected error when outputs is missing")
	}
	if _, err := NewController(ControllerConfig{Synthesizer: synth, Outputs: outputs}, logger); err == nil {
		t.Error("Expected error for zero format")
	}
}
