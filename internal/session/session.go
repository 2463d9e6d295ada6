// Package session owns the streaming generation turn: the stream session
// state machine that consumes a provider's token stream, and the
// orchestrator that sequences provider selection, streaming, artifact
// extraction, preview rendering, and history persistence per user turn.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pagesmith-dev/pagesmith/internal/llm"
	"github.com/pagesmith-dev/pagesmith/internal/models"
)

// State is the lifecycle state of a stream session.
type State int

const (
	// StatePending is the state before the first token arrives.
	StatePending State = iota
	// StateStreaming is the state while tokens are being consumed.
	StateStreaming
	// StateCompleted is the terminal state after a natural end-of-stream.
	StateCompleted
	// StateFailed is the terminal state after a classified failure.
	StateFailed
)

// EventKind discriminates the events a session emits.
type EventKind int

const (
	// EventTokenAppended reports an increment appended to the accumulated text.
	EventTokenAppended EventKind = iota
	// EventCompleted reports the final assembled assistant message.
	EventCompleted
	// EventFailed reports a classified terminal failure.
	EventFailed
)

// Event is a single observation from a stream session. Exactly one terminal
// event (Completed xor Failed) is emitted per session, after which the event
// channel is closed. A canceled session closes the channel with no terminal
// event.
type Event struct {
	Kind    EventKind
	Token   string
	Message models.Message
	Err     *models.Error
}

// Session owns one request/response exchange with a provider. It is created
// when a user turn is submitted and replaced when the next turn starts; only
// the session itself mutates its accumulated text and state.
type Session struct {
	events chan Event
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.Mutex
	state       State
	accumulated strings.Builder
	canceled    bool
}

// Start validates the transcript and begins streaming from the provider.
// A malformed transcript (empty, non-alternating roles, or not ending in a
// user message) fails fast with InvalidInput before any network call.
//
// The timeout bounds the total wall-clock streaming time; exceeding it
// terminates the session with Failed(Timeout).
func Start(
	ctx context.Context,
	transcript []models.Message,
	provider llm.Provider,
	timeout time.Duration,
) (*Session, error) {
	if err := models.ValidateTranscript(transcript); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)

	s := &Session{
		events: make(chan Event, 64),
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StatePending,
	}

	go s.run(ctx, transcript, provider)

	return s, nil
}

// Events returns the session's event stream. The channel is closed after the
// terminal event, or without one when the session is canceled.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text returns the accumulated response text so far. It is append-only while
// the session is streaming.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accumulated.String()
}

// Cancel stops the session cooperatively: event emission stops promptly, the
// event channel is closed without a terminal event, and in-flight data still
// arriving from the network is discarded. Canceling a session that already
// reached a terminal state is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.canceled || s.state == StateCompleted || s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	s.canceled = true
	close(s.done)
	s.mu.Unlock()

	s.cancel()
}

func (s *Session) isCanceled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canceled
}

func (s *Session) run(ctx context.Context, transcript []models.Message, provider llm.Provider) {
	defer close(s.events)
	defer s.cancel()

	s.mu.Lock()
	s.state = StateStreaming
	s.mu.Unlock()

	for token, err := range provider.Generate(ctx, transcript) {
		if err != nil {
			if s.isCanceled() {
				return
			}
			s.fail(llm.Classify(err))
			return
		}

		s.mu.Lock()
		if s.canceled {
			s.mu.Unlock()
			return
		}
		s.accumulated.WriteString(token)
		s.mu.Unlock()

		if !s.emit(Event{Kind: EventTokenAppended, Token: token}) {
			return
		}
	}

	// The provider iterator ends silently when its context is done. Only a
	// user cancel stays silent; any other context end, the timeout included,
	// must still produce the terminal event.
	if ctx.Err() != nil {
		if s.isCanceled() {
			return
		}
		s.fail(llm.Classify(ctx.Err()))
		return
	}

	s.complete()
}

func (s *Session) complete() {
	s.mu.Lock()
	s.state = StateCompleted
	text := s.accumulated.String()
	s.mu.Unlock()

	msg := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleAssistant,
		Content:   text,
		Timestamp: time.Now(),
	}
	s.emit(Event{Kind: EventCompleted, Message: msg})
}

func (s *Session) fail(err *models.Error) {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()

	s.emit(Event{Kind: EventFailed, Err: err})
}

func (s *Session) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}
