package websocket

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/swaralabs/wicara/internal/audio"
	"github.com/swaralabs/wicara/internal/speech"
)

// Open implements speech.Outputs: the client connection is the platform
// audio output, receiving PCM frames paced at roughly playback speed so the
// widget can feed them straight into its audio stack.
func (c *Client) Open(format audio.Format) (speech.Output, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &streamOutput{
		client:        c,
		format:        format,
		target:        c.currentSpeakTarget(),
		chunkDuration: c.hub.chunkDuration,
	}, nil
}

// streamOutput is one acquired playback stream toward the client.
type streamOutput struct {
	client        *Client
	format        audio.Format
	target        string
	chunkDuration time.Duration

	mu     sync.Mutex
	closed bool
}

// NewSource slices the buffer into chunk-duration frames ready to stream
func (o *streamOutput) NewSource(buffer *audio.Buffer) (speech.Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, fmt.Errorf("audio stream already closed")
	}

	raw := audio.Encode(buffer)
	frameBytes := o.format.FrameBytes()

	framesPerChunk := int(o.chunkDuration * time.Duration(o.format.SampleRate) / time.Second)
	if framesPerChunk < 1 {
		framesPerChunk = 1
	}
	bytesPerChunk := framesPerChunk * frameBytes

	var chunks [][]byte
	for start := 0; start < len(raw); start += bytesPerChunk {
		end := start + bytesPerChunk
		if end > len(raw) {
			end = len(raw)
		}
		chunks = append(chunks, raw[start:end])
	}

	lastFrames := (len(raw) - (len(chunks)-1)*bytesPerChunk) / frameBytes
	lastDuration := time.Duration(lastFrames) * time.Second / time.Duration(o.format.SampleRate)

	return &streamSource{
		client:        o.client,
		target:        o.target,
		format:        o.format,
		chunks:        chunks,
		chunkDuration: o.chunkDuration,
		lastDuration:  lastDuration,
		cancel:        make(chan struct{}),
		done:          make(chan struct{}),
	}, nil
}

// Close releases the stream. The source has already signalled the end of
// audio; nothing further goes on the wire.
func (o *streamOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

// streamSource pushes one buffer to the client as paced binary frames.
type streamSource struct {
	client        *Client
	target        string
	format        audio.Format
	chunks        [][]byte
	chunkDuration time.Duration
	lastDuration  time.Duration

	cancel     chan struct{}
	done       chan struct{}
	cancelOnce sync.Once
	endOnce    sync.Once
	doneOnce   sync.Once
}

// Start announces the stream format and begins pacing frames out
func (s *streamSource) Start() error {
	s.client.sendJSON(CreateSpeechStartMessage(s.target, s.format.SampleRate, s.format.Channels))
	go s.stream()
	return nil
}

func (s *streamSource) stream() {
	for i, chunk := range s.chunks {
		s.client.enqueue(websocket.BinaryMessage, chunk)

		wait := s.chunkDuration
		if i == len(s.chunks)-1 {
			// The tail chunk may be shorter than a full slice; waiting
			// its real duration keeps Done aligned with audible playback.
			wait = s.lastDuration
		}
		select {
		case <-time.After(wait):
		case <-s.cancel:
			return
		}
	}
	s.finish(false)
}

// Stop cuts the stream short. Safe to call after the stream completed.
func (s *streamSource) Stop() {
	s.cancelOnce.Do(func() { close(s.cancel) })
	s.finish(true)
}

func (s *streamSource) Done() <-chan struct{} {
	return s.done
}

// finish emits exactly one speech_end per stream and unblocks Done
func (s *streamSource) finish(stopped bool) {
	s.endOnce.Do(func() {
		s.client.sendJSON(CreateSpeechEndMessage(s.target, stopped))
	})
	s.doneOnce.Do(func() { close(s.done) })
}
