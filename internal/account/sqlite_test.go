package account_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/pagesmith-dev/pagesmith/internal/account"
)

func newStore(t *testing.T) *account.SQLiteStore {
	t.Helper()

	store, err := account.NewSQLite(filepath.Join(t.TempDir(), "accounts.db"))
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSignUp(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	user, err := store.SignUp(ctx, "Ada", "Ada@Example.com", "secret1")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if user.ID == "" {
		t.Error("SignUp() should assign an ID")
	}
	if user.Email != "ada@example.com" {
		t.Errorf("SignUp() email = %q, want lowercased", user.Email)
	}

	t.Run("Duplicate email", func(t *testing.T) {
		_, err := store.SignUp(ctx, "Other", "ada@example.com", "secret2")
		if !errors.Is(err, account.ErrEmailTaken) {
			t.Errorf("SignUp() error = %v, want ErrEmailTaken", err)
		}
	})

	t.Run("Short password", func(t *testing.T) {
		_, err := store.SignUp(ctx, "Bob", "bob@example.com", "12345")
		if err == nil {
			t.Error("SignUp() with a 5 character password should fail")
		}
	})

	t.Run("Missing fields", func(t *testing.T) {
		_, err := store.SignUp(ctx, "", "carol@example.com", "secret1")
		if err == nil {
			t.Error("SignUp() without a name should fail")
		}
	})
}

func TestLogInAndSessions(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if _, err := store.SignUp(ctx, "Ada", "ada@example.com", "secret1"); err != nil {
		t.Fatal(err)
	}

	token, user, err := store.LogIn(ctx, "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("LogIn() error = %v", err)
	}
	if token == "" {
		t.Fatal("LogIn() should issue a token")
	}

	resolved, err := store.UserByToken(ctx, token)
	if err != nil {
		t.Fatalf("UserByToken() error = %v", err)
	}
	if resolved.ID != user.ID {
		t.Errorf("UserByToken() ID = %q, want %q", resolved.ID, user.ID)
	}

	t.Run("Wrong password", func(t *testing.T) {
		_, _, err := store.LogIn(ctx, "ada@example.com", "nope12")
		if !errors.Is(err, account.ErrInvalidCredentials) {
			t.Errorf("LogIn() error = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("Unknown email", func(t *testing.T) {
		_, _, err := store.LogIn(ctx, "ghost@example.com", "secret1")
		if !errors.Is(err, account.ErrInvalidCredentials) {
			t.Errorf("LogIn() error = %v, want ErrInvalidCredentials", err)
		}
	})

	t.Run("LogOut invalidates the token", func(t *testing.T) {
		if err := store.LogOut(ctx, token); err != nil {
			t.Fatalf("LogOut() error = %v", err)
		}
		if _, err := store.UserByToken(ctx, token); !errors.Is(err, account.ErrSessionNotFound) {
			t.Errorf("UserByToken() error = %v, want ErrSessionNotFound", err)
		}
	})
}

func TestUserByTokenUnknown(t *testing.T) {
	store := newStore(t)

	if _, err := store.UserByToken(context.Background(), "deadbeef"); !errors.Is(err, account.ErrSessionNotFound) {
		t.Errorf("UserByToken() error = %v, want ErrSessionNotFound", err)
	}
}
