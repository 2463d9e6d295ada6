package history_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pagesmith-dev/pagesmith/internal/history"
	"github.com/pagesmith-dev/pagesmith/internal/models"
)

func newStore(t *testing.T) history.BoltStore {
	t.Helper()

	store, err := history.NewBoltStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSaveAndLoad(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	messages := []models.Message{
		{ID: "1", Role: models.RoleUser, Content: "make a page"},
		{ID: "2", Role: models.RoleAssistant, Content: "here you go"},
	}

	if err := store.Save(ctx, "user-1", messages); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Load() returned %d messages, want 2", len(got))
	}
	if got[0].Content != "make a page" || got[1].Content != "here you go" {
		t.Errorf("Load() = %v, want saved contents back", got)
	}
}

func TestSaveOverwrites(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first := []models.Message{{ID: "1", Role: models.RoleUser, Content: "v1"}}
	second := []models.Message{
		{ID: "1", Role: models.RoleUser, Content: "v1"},
		{ID: "2", Role: models.RoleAssistant, Content: "v2"},
	}

	if err := store.Save(ctx, "user-1", first); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, "user-1", second); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Load() returned %d messages, want the latest snapshot only", len(got))
	}
}

func TestLoadUnknownUser(t *testing.T) {
	store := newStore(t)

	got, err := store.Load(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Load() = %v, want empty transcript for unknown user", got)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "alice", []models.Message{{ID: "1", Role: models.RoleUser, Content: "a"}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(ctx, "bob", []models.Message{{ID: "2", Role: models.RoleUser, Content: "b"}}); err != nil {
		t.Fatal(err)
	}

	got, err := store.Load(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Content != "a" {
		t.Errorf("Load(alice) = %v, want only alice's record", got)
	}
}
