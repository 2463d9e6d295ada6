package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"sync"
	"time"

	pagesmith "github.com/pagesmith-dev/pagesmith"
	"github.com/pagesmith-dev/pagesmith/internal/account"
	"github.com/pagesmith-dev/pagesmith/internal/artifact"
	"github.com/pagesmith-dev/pagesmith/internal/models"
	"github.com/pagesmith-dev/pagesmith/internal/preview"
	"github.com/pagesmith-dev/pagesmith/internal/session"
	"github.com/tmaxmax/go-sse"
)

// HistoryStore defines the persistence interface the handlers depend on:
// an upsert keyed on the user key plus rehydration of the stored transcript.
type HistoryStore interface {
	Save(ctx context.Context, userKey string, messages []models.Message) error
	Load(ctx context.Context, userKey string) ([]models.Message, error)
}

// Accounts defines the account operations the handlers depend on.
type Accounts interface {
	SignUp(ctx context.Context, name, email, password string) (*account.User, error)
	LogIn(ctx context.Context, email, password string) (string, *account.User, error)
	UserByToken(ctx context.Context, token string) (*account.User, error)
	LogOut(ctx context.Context, token string) error
}

// SSE event types for real-time updates.
var (
	messageSSEType = sse.Type("message")
	turnSSEType    = sse.Type("turn")
	errorSSEType   = sse.Type("error")
	noticeSSEType  = sse.Type("notice")
)

const errLoggerKey = "err"

// Main handles the core functionality of the application, managing
// server-sent events, HTML templates, and the per-user session orchestrators.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	accounts       Accounts
	history        HistoryStore
	selectProvider session.SelectProvider
	streamTimeout  time.Duration

	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*userSession
}

// userSession bundles the collaborators owned by one signed-in user: the
// orchestrator sequencing their turns and the renderer holding their
// preview document.
type userSession struct {
	orchestrator *session.Orchestrator
	renderer     *preview.Renderer
}

// Config carries the dependencies for NewMain.
type Config struct {
	Accounts       Accounts
	History        HistoryStore
	SelectProvider session.SelectProvider
	StreamTimeout  time.Duration
	Logger         *slog.Logger
}

// NewMain creates a new Main instance. It parses the embedded HTML templates
// and configures the SSE server so each client subscribes to its own user
// topic, resolved from the authenticated request.
func NewMain(cfg Config) (*Main, error) {
	tmpl, err := template.ParseFS(
		pagesmith.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return nil, err
	}

	m := &Main{
		templates:      tmpl,
		accounts:       cfg.Accounts,
		history:        cfg.History,
		selectProvider: cfg.SelectProvider,
		streamTimeout:  cfg.StreamTimeout,
		logger:         cfg.Logger.With(slog.String("module", "handlers")),
		sessions:       make(map[string]*userSession),
	}

	m.sseSrv = &sse.Server{
		OnSession: func(s *sse.Session) (sse.Subscription, bool) {
			userKey := userKeyFromRequest(s.Req)
			if userKey == "" {
				return sse.Subscription{}, false
			}
			return sse.Subscription{
				Client:      s,
				LastEventID: s.LastEventID,
				Topics:      []string{sse.DefaultTopic, userTopic(userKey)},
			}, true
		},
	}

	return m, nil
}

func userTopic(userKey string) string {
	return fmt.Sprintf("user-%s", userKey)
}

// userSessionFor returns the session owned by the given user, creating it on
// first use with the transcript rehydrated from the history store.
func (m *Main) userSessionFor(ctx context.Context, userKey string) (*userSession, error) {
	m.mu.Lock()
	if us, ok := m.sessions[userKey]; ok {
		m.mu.Unlock()
		return us, nil
	}
	m.mu.Unlock()

	initial, err := m.history.Load(ctx, userKey)
	if err != nil {
		// A store failure must not lock the user out of generating; start
		// with an empty transcript and report.
		m.logger.Error("Failed to load chat history",
			slog.String("userKey", userKey),
			slog.String(errLoggerKey, err.Error()))
		initial = nil
	}

	renderer := preview.NewRenderer()
	orchestrator := session.NewOrchestrator(session.Config{
		UserKey:           userKey,
		SelectProvider:    m.selectProvider,
		Renderer:          renderer,
		History:           m.history,
		Notifier:          sseNotifier{main: m},
		InitialTranscript: initial,
		StreamTimeout:     m.streamTimeout,
		Logger:            m.logger,
	})

	us := &userSession{orchestrator: orchestrator, renderer: renderer}

	m.mu.Lock()
	// A concurrent request may have created the session in the meantime.
	if existing, ok := m.sessions[userKey]; ok {
		us = existing
	} else {
		m.sessions[userKey] = us
	}
	m.mu.Unlock()

	return us, nil
}

// sseNotifier fans orchestrator events out to the owning user's SSE topic.
type sseNotifier struct {
	main *Main
}

func (n sseNotifier) TokenAppended(userKey, text string) {
	markup, err := models.RenderContent(text)
	if err != nil {
		n.main.logger.Error("Failed to render streaming content",
			slog.String(errLoggerKey, err.Error()))
		return
	}
	n.main.publish(userKey, messageSSEType, map[string]any{"html": markup})
}

func (n sseNotifier) TurnCompleted(userKey string, msg models.Message, art *artifact.Artifact) {
	markup, err := models.RenderContent(msg.Content)
	if err != nil {
		n.main.logger.Error("Failed to render completed content",
			slog.String(errLoggerKey, err.Error()))
		markup = template.HTMLEscapeString(msg.Content)
	}
	n.main.publish(userKey, turnSSEType, map[string]any{
		"html":     markup,
		"artifact": art != nil,
	})
}

func (n sseNotifier) TurnFailed(userKey string, err *models.Error) {
	n.main.publish(userKey, errorSSEType, map[string]any{
		"kind":    string(err.Kind),
		"message": err.UserMessage(),
	})
}

func (n sseNotifier) Notice(userKey, text string) {
	n.main.publish(userKey, noticeSSEType, map[string]any{"message": text})
}

func (m *Main) publish(userKey string, typ sse.EventType, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("Failed to marshal SSE payload",
			slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{Type: typ}
	msg.AppendData(string(data))

	if err := m.sseSrv.Publish(&msg, userTopic(userKey)); err != nil {
		m.logger.Error("Failed to publish SSE message",
			slog.String("userKey", userKey),
			slog.String(errLoggerKey, err.Error()))
	}
}

// Shutdown gracefully terminates the SSE server. It broadcasts a close
// message to all connected clients and waits up to 5 seconds for
// connections to terminate.
func (m *Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	e.AppendData("bye")
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
