package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pagesmith-dev/pagesmith/internal/artifact"
	"github.com/pagesmith-dev/pagesmith/internal/llm"
	"github.com/pagesmith-dev/pagesmith/internal/models"
)

// Renderer displays an extracted artifact in an isolated preview surface.
// Render fully replaces prior content; it never patches incrementally.
type Renderer interface {
	Render(a artifact.Artifact)
	Clear()
}

// HistoryStore persists the full message list for a user as at most one
// record per user.
type HistoryStore interface {
	Save(ctx context.Context, userKey string, messages []models.Message) error
}

// Notifier fans session progress out to the user's UI. Implementations must
// not block for long; token updates arrive at streaming rate.
type Notifier interface {
	// TokenAppended delivers the running assistant text after each increment.
	TokenAppended(userKey, text string)
	// TurnCompleted delivers the final assistant message and the artifact
	// extracted from it, if any.
	TurnCompleted(userKey string, msg models.Message, art *artifact.Artifact)
	// TurnFailed delivers a classified terminal failure.
	TurnFailed(userKey string, err *models.Error)
	// Notice delivers a non-blocking informational message, such as a
	// best-effort save failure.
	Notice(userKey, text string)
}

// SelectProvider chooses the backend for one request. The choice is made
// once per submit and never re-evaluated mid-stream.
type SelectProvider func() (llm.Provider, error)

const defaultStreamTimeout = 30 * time.Second
const saveTimeout = 10 * time.Second

// Orchestrator sequences one user's turns: submit, stream, extract, render,
// persist. It exclusively owns the user's transcript, the current stream
// session, and the current artifact; at most one session may be streaming at
// a time.
type Orchestrator struct {
	userKey        string
	selectProvider SelectProvider
	renderer       Renderer
	history        HistoryStore
	notifier       Notifier
	streamTimeout  time.Duration

	logger *slog.Logger

	mu         sync.Mutex
	transcript []models.Message
	current    *Session
	artifact   *artifact.Artifact
}

// Config carries the collaborators an orchestrator sequences.
type Config struct {
	UserKey        string
	SelectProvider SelectProvider
	Renderer       Renderer
	History        HistoryStore
	Notifier       Notifier

	// InitialTranscript rehydrates a previously persisted conversation.
	InitialTranscript []models.Message

	// StreamTimeout bounds the wall-clock duration of one streaming turn.
	// Zero means the default of 30 seconds.
	StreamTimeout time.Duration

	Logger *slog.Logger
}

// NewOrchestrator creates an orchestrator for a single user session.
func NewOrchestrator(cfg Config) *Orchestrator {
	timeout := cfg.StreamTimeout
	if timeout == 0 {
		timeout = defaultStreamTimeout
	}

	o := &Orchestrator{
		userKey:        cfg.UserKey,
		selectProvider: cfg.SelectProvider,
		renderer:       cfg.Renderer,
		history:        cfg.History,
		notifier:       cfg.Notifier,
		streamTimeout:  timeout,
		logger:         cfg.Logger.With(slog.String("module", "orchestrator")),
		transcript:     append([]models.Message(nil), cfg.InitialTranscript...),
	}

	if art, ok := lastArtifact(cfg.InitialTranscript); ok {
		o.artifact = &art
		o.renderer.Render(art)
	}

	return o
}

// lastArtifact recovers the most recent generated document from a persisted
// transcript so the preview survives a page reload.
func lastArtifact(messages []models.Message) (artifact.Artifact, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != models.RoleAssistant {
			continue
		}
		if art, ok := artifact.Extract(messages[i].Content); ok {
			return art, true
		}
	}
	return artifact.Artifact{}, false
}

// Submit starts a new turn with the given user text. It rejects empty input
// with InvalidInput, a submit while a turn is in flight with Busy, and a
// missing provider configuration with NoProviderConfigured — all
// synchronously, before any session starts and without altering the
// transcript. On success the user message is returned and streaming proceeds
// in the background, detached from ctx's cancellation; progress is observed
// through the Notifier. Resubmitting after a failed or canceled turn
// replaces that turn's user message rather than stacking a second one.
func (o *Orchestrator) Submit(ctx context.Context, text string) (models.Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.Message{}, models.NewError(models.KindInvalidInput, "message is empty")
	}

	provider, err := o.selectProvider()
	if err != nil {
		return models.Message{}, err
	}

	userMsg := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Content:   trimmed,
		Timestamp: time.Now(),
	}

	o.mu.Lock()
	if o.current != nil {
		o.mu.Unlock()
		return models.Message{}, models.NewError(models.KindBusy,
			"a response is already being generated")
	}

	base := o.transcript
	// A failed or canceled turn leaves its user message as the transcript
	// tail. The retry replaces it so roles keep alternating.
	if n := len(base); n > 0 && base[n-1].Role == models.RoleUser {
		base = base[:n-1]
	}
	transcript := append(append([]models.Message(nil), base...), userMsg)

	// The stream must outlive the submitting request; only Cancel or the
	// timeout ends it.
	sess, err := Start(context.WithoutCancel(ctx), transcript, provider, o.streamTimeout)
	if err != nil {
		o.mu.Unlock()
		return models.Message{}, err
	}

	o.transcript = transcript
	o.current = sess
	o.mu.Unlock()

	o.logger.Info("Turn started",
		slog.String("userKey", o.userKey),
		slog.String("provider", provider.Name()))

	go o.drain(sess)

	return userMsg, nil
}

// Cancel abandons the in-flight stream session, if any. The transcript is
// not mutated and the prior artifact and preview are left untouched.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	sess := o.current
	o.mu.Unlock()

	if sess != nil {
		sess.Cancel()
	}
}

// Busy reports whether a turn is currently awaiting its response.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil
}

// Transcript returns a copy of the user's message history.
func (o *Orchestrator) Transcript() []models.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.Message(nil), o.transcript...)
}

// Artifact returns the current artifact, if one exists.
func (o *Orchestrator) Artifact() (artifact.Artifact, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.artifact == nil {
		return artifact.Artifact{}, false
	}
	return *o.artifact, true
}

// drain consumes the session's events until the channel closes. Token events
// for one turn are fully drained before the next turn can start: the session
// slot is released only after the loop ends.
func (o *Orchestrator) drain(sess *Session) {
	for ev := range sess.Events() {
		switch ev.Kind {
		case EventTokenAppended:
			o.notifier.TokenAppended(o.userKey, sess.Text())
		case EventCompleted:
			o.finishTurn(ev.Message)
		case EventFailed:
			o.failTurn(ev.Err)
		}
	}

	o.mu.Lock()
	if o.current == sess {
		o.current = nil
	}
	o.mu.Unlock()
}

// finishTurn appends the assistant message, extracts and renders the
// artifact if one is present, and fires the best-effort history save. The
// turn is considered successful once rendering happened; persistence outcome
// never rolls it back.
func (o *Orchestrator) finishTurn(msg models.Message) {
	o.mu.Lock()
	o.transcript = append(o.transcript, msg)
	snapshot := append([]models.Message(nil), o.transcript...)
	o.mu.Unlock()

	art, found := artifact.Extract(msg.Content)
	if found {
		o.mu.Lock()
		o.artifact = &art
		o.mu.Unlock()
		o.renderer.Render(art)
	}

	go o.save(snapshot)

	if found {
		o.notifier.TurnCompleted(o.userKey, msg, &art)
	} else {
		o.notifier.TurnCompleted(o.userKey, msg, nil)
	}
}

// failTurn surfaces a classified failure. No assistant message is appended
// and the prior artifact and render state are left untouched.
func (o *Orchestrator) failTurn(err *models.Error) {
	o.logger.Error("Turn failed",
		slog.String("userKey", o.userKey),
		slog.String("kind", string(err.Kind)),
		slog.String("error", err.Message))

	o.notifier.TurnFailed(o.userKey, err)
}

// save upserts the transcript for this user. A failure is reported as a
// non-blocking notice and logged, never escalated to fail the turn.
func (o *Orchestrator) save(messages []models.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := o.history.Save(ctx, o.userKey, messages); err != nil {
		storeErr := models.NewError(models.KindStoreUnavailable, err.Error())
		o.logger.Error("Failed to save chat history",
			slog.String("userKey", o.userKey),
			slog.String("error", err.Error()))
		o.notifier.Notice(o.userKey, storeErr.UserMessage())
	}
}
