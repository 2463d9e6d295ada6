package handlers

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/pagesmith-dev/pagesmith/internal/identity"
	"github.com/pagesmith-dev/pagesmith/internal/models"
)

// messageView is a message prepared for template rendering: the body is
// already converted to HTML markup.
type messageView struct {
	ID        string
	Role      string
	HTML      template.HTML
	Timestamp time.Time
}

type chatPageData struct {
	UserName    string
	Messages    []messageView
	HasArtifact bool
	PreviewRev  uint64
}

func userKeyFromRequest(r *http.Request) string {
	return identity.UserKeyFromContext(r.Context())
}

// statusForKind maps a classified error to the HTTP status of a synchronous
// rejection. Streaming failures never reach this path; they are delivered
// over SSE.
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindInvalidInput:
		return http.StatusBadRequest
	case models.KindBusy:
		return http.StatusConflict
	case models.KindNoProviderConfigured:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// HandleChatPage renders the chat workspace with the user's rehydrated
// transcript and the current preview state.
func (m *Main) HandleChatPage(w http.ResponseWriter, r *http.Request) {
	userKey := userKeyFromRequest(r)

	us, err := m.userSessionFor(r.Context(), userKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	transcript := us.orchestrator.Transcript()
	views := make([]messageView, 0, len(transcript))
	for _, msg := range transcript {
		markup, err := models.RenderContent(msg.Content)
		if err != nil {
			m.logger.Error("Failed to render message",
				slog.String("messageID", msg.ID),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		views = append(views, messageView{
			ID:        msg.ID,
			Role:      string(msg.Role),
			HTML:      template.HTML(markup), //nolint:gosec // rendered through goldmark
			Timestamp: msg.Timestamp,
		})
	}

	_, hasArtifact := us.orchestrator.Artifact()
	_, rev := us.renderer.Snapshot()

	data := chatPageData{
		UserName:    identity.UserNameFromContext(r.Context()),
		Messages:    views,
		HasArtifact: hasArtifact,
		PreviewRev:  rev,
	}
	if err := m.templates.ExecuteTemplate(w, "chat.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleSubmit processes a user turn submitted through an HTTP POST. The
// handler expects a "message" form field; empty input, a turn already in
// flight, and a missing provider configuration are rejected synchronously.
// For accepted turns it renders the user's message bubble plus an assistant
// placeholder that the SSE stream fills in.
func (m *Main) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userKey := userKeyFromRequest(r)

	us, err := m.userSessionFor(r.Context(), userKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	userMsg, err := us.orchestrator.Submit(r.Context(), r.FormValue("message"))
	if err != nil {
		var classified *models.Error
		if !errors.As(err, &classified) {
			classified = models.NewError(models.KindUnknown, err.Error())
		}
		m.logger.Error("Submit rejected",
			slog.String("userKey", userKey),
			slog.String("kind", string(classified.Kind)),
			slog.String(errLoggerKey, classified.Message))
		http.Error(w, classified.UserMessage(), statusForKind(classified.Kind))
		return
	}

	markup, err := models.RenderContent(userMsg.Content)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	err = m.templates.ExecuteTemplate(w, "user_message", messageView{
		ID:        userMsg.ID,
		Role:      string(userMsg.Role),
		HTML:      template.HTML(markup), //nolint:gosec // rendered through goldmark
		Timestamp: userMsg.Timestamp,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := m.templates.ExecuteTemplate(w, "assistant_placeholder", nil); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleCancel abandons the in-flight turn, if any. The transcript is left
// untouched.
func (m *Main) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userKey := userKeyFromRequest(r)

	us, err := m.userSessionFor(r.Context(), userKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	us.orchestrator.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

// HandleSSE subscribes the client to its per-user event stream.
func (m *Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// HandlePreview serves the current artifact document into the sandboxed
// preview frame.
func (m *Main) HandlePreview(w http.ResponseWriter, r *http.Request) {
	userKey := userKeyFromRequest(r)

	us, err := m.userSessionFor(r.Context(), userKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	us.renderer.ServeHTTP(w, r)
}
