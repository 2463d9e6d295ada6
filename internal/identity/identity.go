// Package identity resolves the session cookie to a stable user key and
// injects it into the request context. Everything downstream of this
// middleware can assume an authenticated user.
package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/pagesmith-dev/pagesmith/internal/account"
)

// SessionCookieName is the cookie carrying the opaque login session token.
const SessionCookieName = "pagesmith_session"

const cookieMaxAge = 30 * 24 * time.Hour

type contextKey int

const (
	userKeyKey contextKey = iota
	userNameKey
)

// UserKeyFromContext extracts the stable user key from the request context.
func UserKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userKeyKey).(string); ok {
		return v
	}
	return ""
}

// UserNameFromContext extracts the display name from the request context.
func UserNameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userNameKey).(string); ok {
		return v
	}
	return ""
}

// SetSessionCookie writes the login session cookie.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		Expires:  time.Now().Add(cookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// ClearSessionCookie expires the login session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware resolves the session cookie to a user and stores the user key
// in the request context. Requests without a valid session are redirected to
// the landing page.
func Middleware(accounts *account.SQLiteStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(SessionCookieName)
			if err != nil || c.Value == "" {
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}

			user, err := accounts.UserByToken(r.Context(), c.Value)
			if err != nil {
				ClearSessionCookie(w)
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), userKeyKey, user.ID)
			ctx = context.WithValue(ctx, userNameKey, user.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
