package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pagesmith-dev/pagesmith/internal/account"
	"github.com/pagesmith-dev/pagesmith/internal/identity"
)

type authPageData struct {
	Error string
}

// HandleLanding renders the marketing landing page. A visitor holding a
// valid session cookie is sent straight to the chat workspace.
func (m *Main) HandleLanding(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(identity.SessionCookieName); err == nil && c.Value != "" {
		if _, err := m.accounts.UserByToken(r.Context(), c.Value); err == nil {
			http.Redirect(w, r, "/chat", http.StatusSeeOther)
			return
		}
	}

	if err := m.templates.ExecuteTemplate(w, "landing.html", authPageData{}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleSignupPage renders the sign-up form.
func (m *Main) HandleSignupPage(w http.ResponseWriter, r *http.Request) {
	if err := m.templates.ExecuteTemplate(w, "signup.html", authPageData{}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleSignup creates an account from the submitted form and logs the new
// user in directly.
func (m *Main) HandleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.FormValue("name")
	email := r.FormValue("email")
	password := r.FormValue("password")

	user, err := m.accounts.SignUp(r.Context(), name, email, password)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, account.ErrEmailTaken) {
			status = http.StatusConflict
		}
		w.WriteHeader(status)
		if tmplErr := m.templates.ExecuteTemplate(w, "signup.html", authPageData{Error: err.Error()}); tmplErr != nil {
			m.logger.Error("Failed to render signup page", slog.String(errLoggerKey, tmplErr.Error()))
		}
		return
	}

	token, _, err := m.accounts.LogIn(r.Context(), user.Email, password)
	if err != nil {
		m.logger.Error("Failed to log in after signup",
			slog.String("email", user.Email),
			slog.String(errLoggerKey, err.Error()))
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	identity.SetSessionCookie(w, token, r.TLS != nil)
	http.Redirect(w, r, "/chat", http.StatusSeeOther)
}

// HandleLogin checks the submitted credentials and issues the session cookie.
func (m *Main) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	token, _, err := m.accounts.LogIn(r.Context(), r.FormValue("email"), r.FormValue("password"))
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		if tmplErr := m.templates.ExecuteTemplate(w, "landing.html", authPageData{Error: "Invalid email or password."}); tmplErr != nil {
			m.logger.Error("Failed to render landing page", slog.String(errLoggerKey, tmplErr.Error()))
		}
		return
	}

	identity.SetSessionCookie(w, token, r.TLS != nil)
	http.Redirect(w, r, "/chat", http.StatusSeeOther)
}

// HandleLogout deletes the login session and clears the cookie.
func (m *Main) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if c, err := r.Cookie(identity.SessionCookieName); err == nil && c.Value != "" {
		if err := m.accounts.LogOut(r.Context(), c.Value); err != nil {
			m.logger.Error("Failed to delete session", slog.String(errLoggerKey, err.Error()))
		}
	}

	identity.ClearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
