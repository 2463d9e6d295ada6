package session_test

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pagesmith-dev/pagesmith/internal/artifact"
	"github.com/pagesmith-dev/pagesmith/internal/llm"
	"github.com/pagesmith-dev/pagesmith/internal/models"
	"github.com/pagesmith-dev/pagesmith/internal/session"
)

type mockRenderer struct {
	mu       sync.Mutex
	rendered []artifact.Artifact
}

func (m *mockRenderer) Render(a artifact.Artifact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rendered = append(m.rendered, a)
}

func (m *mockRenderer) Clear() {}

func (m *mockRenderer) renderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rendered)
}

type mockHistory struct {
	mu    sync.Mutex
	saved [][]models.Message
	err   error
	done  chan struct{}
}

func newMockHistory(err error) *mockHistory {
	return &mockHistory{err: err, done: make(chan struct{}, 8)}
}

func (m *mockHistory) Save(_ context.Context, _ string, messages []models.Message) error {
	m.mu.Lock()
	m.saved = append(m.saved, append([]models.Message(nil), messages...))
	m.mu.Unlock()
	m.done <- struct{}{}
	return m.err
}

func (m *mockHistory) lastSaved() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil
	}
	return m.saved[len(m.saved)-1]
}

// mockNotifier funnels every callback into channels so tests can wait on
// turn completion deterministically.
type mockNotifier struct {
	completed chan models.Message
	failed    chan *models.Error
	notices   chan string
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{
		completed: make(chan models.Message, 8),
		failed:    make(chan *models.Error, 8),
		notices:   make(chan string, 8),
	}
}

func (m *mockNotifier) TokenAppended(string, string) {}

func (m *mockNotifier) TurnCompleted(_ string, msg models.Message, _ *artifact.Artifact) {
	m.completed <- msg
}

func (m *mockNotifier) TurnFailed(_ string, err *models.Error) {
	m.failed <- err
}

func (m *mockNotifier) Notice(_ string, text string) {
	m.notices <- text
}

func staticProvider(p llm.Provider) session.SelectProvider {
	return func() (llm.Provider, error) { return p, nil }
}

type orchestratorFixture struct {
	orchestrator *session.Orchestrator
	renderer     *mockRenderer
	history      *mockHistory
	notifier     *mockNotifier
}

func newFixture(t *testing.T, provider llm.Provider, historyErr error) orchestratorFixture {
	t.Helper()

	renderer := &mockRenderer{}
	history := newMockHistory(historyErr)
	notifier := newMockNotifier()

	o := session.NewOrchestrator(session.Config{
		UserKey:        "user-1",
		SelectProvider: staticProvider(provider),
		Renderer:       renderer,
		History:        history,
		Notifier:       notifier,
		Logger:         slog.Default(),
	})

	return orchestratorFixture{orchestrator: o, renderer: renderer, history: history, notifier: notifier}
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		panic("unreachable")
	}
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	f := newFixture(t, fakeProvider{tokens: []string{"x"}}, nil)

	_, err := f.orchestrator.Submit(context.Background(), "   ")
	if kind := models.KindOf(err); kind != models.KindInvalidInput {
		t.Errorf("KindOf() = %v, want %v", kind, models.KindInvalidInput)
	}
	if got := f.orchestrator.Transcript(); len(got) != 0 {
		t.Errorf("Transcript() = %v, want empty after rejection", got)
	}
}

func TestSubmitRejectsWhenBusy(t *testing.T) {
	f := newFixture(t, fakeProvider{tokens: []string{"a"}, blockAtEnd: true}, nil)

	if _, err := f.orchestrator.Submit(context.Background(), "first"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !f.orchestrator.Busy() {
		t.Fatal("Busy() = false, want true while streaming")
	}

	_, err := f.orchestrator.Submit(context.Background(), "second")
	if kind := models.KindOf(err); kind != models.KindBusy {
		t.Errorf("KindOf() = %v, want %v", kind, models.KindBusy)
	}

	transcript := f.orchestrator.Transcript()
	if len(transcript) != 1 || transcript[0].Content != "first" {
		t.Errorf("Transcript() = %v, rejection must not alter it", transcript)
	}

	f.orchestrator.Cancel()
}

func TestSubmitSurfacesSelectorError(t *testing.T) {
	renderer := &mockRenderer{}
	history := newMockHistory(nil)

	o := session.NewOrchestrator(session.Config{
		UserKey: "user-1",
		SelectProvider: func() (llm.Provider, error) {
			return nil, models.NewError(models.KindNoProviderConfigured, "no provider credentials configured")
		},
		Renderer: renderer,
		History:  history,
		Notifier: newMockNotifier(),
		Logger:   slog.Default(),
	})

	_, err := o.Submit(context.Background(), "hello")
	if kind := models.KindOf(err); kind != models.KindNoProviderConfigured {
		t.Errorf("KindOf() = %v, want %v", kind, models.KindNoProviderConfigured)
	}
	if len(o.Transcript()) != 0 {
		t.Error("Transcript() should stay empty when no provider is configured")
	}
}

func TestTurnWithArtifact(t *testing.T) {
	response := []string{"Here it is:\n", "```html\n<html><body>bakery</body></html>\n```"}
	f := newFixture(t, fakeProvider{tokens: response}, nil)

	userMsg, err := f.orchestrator.Submit(context.Background(), "Make a bakery landing page")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if userMsg.Role != models.RoleUser {
		t.Errorf("Submit() role = %v, want user", userMsg.Role)
	}

	assistant := waitFor(t, f.notifier.completed, "turn completion")
	if assistant.Role != models.RoleAssistant {
		t.Errorf("completed role = %v, want assistant", assistant.Role)
	}

	art, ok := f.orchestrator.Artifact()
	if !ok {
		t.Fatal("Artifact() not found after completed turn")
	}
	if art.SourceText != "<html><body>bakery</body></html>" {
		t.Errorf("Artifact() = %q, want extracted page", art.SourceText)
	}
	if f.renderer.renderCount() != 1 {
		t.Errorf("renderer calls = %d, want 1", f.renderer.renderCount())
	}

	waitFor(t, f.history.done, "history save")
	saved := f.history.lastSaved()
	if len(saved) != 2 {
		t.Fatalf("saved %d messages, want 2", len(saved))
	}
	if saved[0].Role != models.RoleUser || saved[1].Role != models.RoleAssistant {
		t.Errorf("saved roles = %v, %v; want user, assistant", saved[0].Role, saved[1].Role)
	}
}

func TestTurnWithoutArtifactKeepsPriorPreview(t *testing.T) {
	f := newFixture(t, fakeProvider{tokens: []string{"Sorry, tell me more about the page."}}, nil)

	if _, err := f.orchestrator.Submit(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, f.notifier.completed, "turn completion")
	waitFor(t, f.history.done, "history save")

	if _, ok := f.orchestrator.Artifact(); ok {
		t.Error("Artifact() found, want none for a turn without a fenced block")
	}
	if f.renderer.renderCount() != 0 {
		t.Errorf("renderer calls = %d, want 0", f.renderer.renderCount())
	}
	if saved := f.history.lastSaved(); len(saved) != 2 {
		t.Errorf("saved %d messages, want 2; persistence is independent of extraction", len(saved))
	}
}

func TestFailedTurnAppendsNothing(t *testing.T) {
	f := newFixture(t, fakeProvider{
		tokens: []string{"partial"},
		err:    errors.New("You exceeded your current quota"),
	}, nil)

	if _, err := f.orchestrator.Submit(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	failure := waitFor(t, f.notifier.failed, "turn failure")
	if failure.Kind != models.KindQuotaExceeded {
		t.Errorf("failure kind = %v, want %v", failure.Kind, models.KindQuotaExceeded)
	}

	transcript := f.orchestrator.Transcript()
	if len(transcript) != 1 {
		t.Fatalf("Transcript() has %d messages, want only the user turn", len(transcript))
	}
	if f.renderer.renderCount() != 0 {
		t.Error("failed turn must not touch the preview")
	}
}

func TestStoreFailureIsReportedNotFatal(t *testing.T) {
	response := []string{"```html\n<p>ok</p>\n```"}
	f := newFixture(t, fakeProvider{tokens: response}, errors.New("disk full"))

	if _, err := f.orchestrator.Submit(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	waitFor(t, f.notifier.completed, "turn completion")
	notice := waitFor(t, f.notifier.notices, "save failure notice")
	if notice == "" {
		t.Error("notice should carry a user-facing message")
	}

	// The turn itself stays successful.
	if len(f.orchestrator.Transcript()) != 2 {
		t.Error("transcript should keep both messages despite the save failure")
	}
	if _, ok := f.orchestrator.Artifact(); !ok {
		t.Error("artifact should survive the save failure")
	}
}

func TestCancelLeavesTranscriptIntact(t *testing.T) {
	f := newFixture(t, fakeProvider{tokens: []string{"a"}, blockAtEnd: true}, nil)

	if _, err := f.orchestrator.Submit(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	f.orchestrator.Cancel()

	deadline := time.After(5 * time.Second)
	for f.orchestrator.Busy() {
		select {
		case <-deadline:
			t.Fatal("orchestrator stayed busy after cancel")
		case <-time.After(10 * time.Millisecond):
		}
	}

	transcript := f.orchestrator.Transcript()
	if len(transcript) != 1 || transcript[0].Role != models.RoleUser {
		t.Errorf("Transcript() = %v, want only the user message", transcript)
	}

	select {
	case msg := <-f.notifier.completed:
		t.Errorf("canceled turn completed with %v", msg)
	case err := <-f.notifier.failed:
		t.Errorf("canceled turn failed with %v", err)
	default:
	}

	// The next turn can start immediately.
	if _, err := f.orchestrator.Submit(context.Background(), "again"); err != nil {
		t.Errorf("Submit() after cancel error = %v", err)
	}
	f.orchestrator.Cancel()
}

// gatedProvider yields one token, then holds the stream open until released,
// so a test can interleave work with an in-flight turn.
type gatedProvider struct {
	release chan struct{}
}

func (g gatedProvider) Name() string { return "gated" }

func (g gatedProvider) Generate(ctx context.Context, _ []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !yield("Sure!\n", nil) {
			return
		}
		select {
		case <-g.release:
		case <-ctx.Done():
			return
		}
		yield("```html\n<p>done</p>\n```", nil)
	}
}

func TestResubmitAfterFailedTurn(t *testing.T) {
	f := newFixture(t, fakeProvider{
		tokens: []string{"partial"},
		err:    errors.New("You exceeded your current quota"),
	}, nil)

	if _, err := f.orchestrator.Submit(context.Background(), "first try"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, f.notifier.failed, "first failure")

	deadline := time.After(5 * time.Second)
	for f.orchestrator.Busy() {
		select {
		case <-deadline:
			t.Fatal("orchestrator stayed busy after failure")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if _, err := f.orchestrator.Submit(context.Background(), "second try"); err != nil {
		t.Fatalf("Submit() after failed turn = %v, want nil", err)
	}
	waitFor(t, f.notifier.failed, "second failure")

	transcript := f.orchestrator.Transcript()
	if len(transcript) != 1 {
		t.Fatalf("Transcript() has %d messages, want the retry's user message only", len(transcript))
	}
	if transcript[0].Content != "second try" {
		t.Errorf("Transcript() tail = %q, want the retry to replace the failed turn", transcript[0].Content)
	}
}

func TestTurnSurvivesCallerContextCancel(t *testing.T) {
	provider := gatedProvider{release: make(chan struct{})}
	f := newFixture(t, provider, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := f.orchestrator.Submit(ctx, "make a page"); err != nil {
		t.Fatal(err)
	}

	// The submitting request finishes while the stream is still open.
	cancel()
	close(provider.release)

	assistant := waitFor(t, f.notifier.completed, "turn completion")
	if assistant.Role != models.RoleAssistant {
		t.Errorf("completed role = %v, want assistant", assistant.Role)
	}
	if _, ok := f.orchestrator.Artifact(); !ok {
		t.Error("Artifact() not found; the turn should outlive the caller's context")
	}
	waitFor(t, f.history.done, "history save")
}

func TestRehydrateRestoresArtifact(t *testing.T) {
	renderer := &mockRenderer{}
	initial := []models.Message{
		{ID: "1", Role: models.RoleUser, Content: "make a page"},
		{ID: "2", Role: models.RoleAssistant, Content: "```html\n<p>restored</p>\n```"},
	}

	o := session.NewOrchestrator(session.Config{
		UserKey:           "user-1",
		SelectProvider:    staticProvider(fakeProvider{}),
		Renderer:          renderer,
		History:           newMockHistory(nil),
		Notifier:          newMockNotifier(),
		InitialTranscript: initial,
		Logger:            slog.Default(),
	})

	art, ok := o.Artifact()
	if !ok {
		t.Fatal("Artifact() not restored from initial transcript")
	}
	if art.SourceText != "<p>restored</p>" {
		t.Errorf("Artifact() = %q, want restored page", art.SourceText)
	}
	if renderer.renderCount() != 1 {
		t.Errorf("renderer calls = %d, want 1 on rehydration", renderer.renderCount())
	}
}
