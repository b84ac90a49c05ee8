package agui

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// defaultQueueSize bounds the event queue per run. When the client stalls
// past this depth the producer blocks at its next emit until the queue
// drains or the client disconnects.
const defaultQueueSize = 256

// Stream is the single writer of one AG-UI run. Producers emit events
// through it from any goroutine; one writer goroutine serialises them
// onto the wire, preserving emit order.
type Stream struct {
	runID    string
	threadID string
	queue    chan Event
	cancel   context.CancelFunc
	log      zerolog.Logger

	mu           sync.Mutex
	started      bool
	terminal     bool
	openMessages map[string]bool
}

// NewStream creates a stream for one run. cancel is invoked when the
// client disconnects so the orchestration context unwinds.
func NewStream(threadID string, cancel context.CancelFunc, log zerolog.Logger) *Stream {
	return &Stream{
		runID:        uuid.NewString(),
		threadID:     threadID,
		queue:        make(chan Event, defaultQueueSize),
		cancel:       cancel,
		openMessages: make(map[string]bool),
		log:          log.With().Str("component", "agui-stream").Logger(),
	}
}

// RunID returns the stream's run identifier.
func (s *Stream) RunID() string { return s.runID }

// Serve writes queued events to w until the stream closes or the client
// disconnects. It must run on the HTTP handler goroutine.
func (s *Stream) Serve(ctx context.Context, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)

	for {
		select {
		case <-ctx.Done():
			// Client gone: cancel the run, drain nothing further.
			s.cancel()
			return
		case event, ok := <-s.queue:
			if !ok {
				return
			}
			if err := s.write(w, flusher, event); err != nil {
				s.log.Warn().Err(err).Str("run_id", s.runID).Msg("Stream write failed, cancelling run")
				s.cancel()
				return
			}
			if event.Type == EventRunFinished || event.Type == EventRunError {
				return
			}
		}
	}
}

func (s *Stream) write(w io.Writer, flusher http.Flusher, event Event) error {
	frame, err := event.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}

// emit enqueues one event, blocking on a full queue until the writer
// drains it or the run context dies.
func (s *Stream) emit(ctx context.Context, event Event) {
	s.mu.Lock()
	if s.terminal {
		s.mu.Unlock()
		return
	}
	if event.Type == EventRunFinished || event.Type == EventRunError {
		s.terminal = true
	}
	s.mu.Unlock()

	select {
	case s.queue <- event:
	case <-ctx.Done():
	}
}

// RunStarted emits the opening event. It must be called exactly once,
// before any other emit.
func (s *Stream) RunStarted(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	s.emit(ctx, Event{Type: EventRunStarted, RunID: s.runID, ThreadID: s.threadID})
}

// StartMessage opens a text message and returns its id.
func (s *Stream) StartMessage(ctx context.Context) string {
	messageID := uuid.NewString()
	s.mu.Lock()
	s.openMessages[messageID] = true
	s.mu.Unlock()
	s.emit(ctx, Event{Type: EventTextMessageStart, MessageID: messageID})
	return messageID
}

// Content appends a delta to an open message.
func (s *Stream) Content(ctx context.Context, messageID, delta string) {
	s.mu.Lock()
	open := s.openMessages[messageID]
	s.mu.Unlock()
	if !open || delta == "" {
		return
	}
	s.emit(ctx, Event{Type: EventTextMessageContent, MessageID: messageID, Delta: delta})
}

// EndMessage closes an open message. Unmatched ids are ignored.
func (s *Stream) EndMessage(ctx context.Context, messageID string) {
	s.mu.Lock()
	open := s.openMessages[messageID]
	delete(s.openMessages, messageID)
	s.mu.Unlock()
	if !open {
		return
	}
	s.emit(ctx, Event{Type: EventTextMessageEnd, MessageID: messageID})
}

// Snapshot emits a STATE_SNAPSHOT. Snapshots are idempotent on the
// client; the last one wins.
func (s *Stream) Snapshot(ctx context.Context, snapshot StateSnapshot) {
	s.emit(ctx, Event{Type: EventStateSnapshot, Snapshot: snapshot})
}

// Finish emits the terminal success event.
func (s *Stream) Finish(ctx context.Context) {
	s.emit(ctx, Event{Type: EventRunFinished, RunID: s.runID})
}

// Error emits the terminal failure event.
func (s *Stream) Error(ctx context.Context, message, code string) {
	s.emit(ctx, Event{Type: EventRunError, Message: message, Code: code})
}
