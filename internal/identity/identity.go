// Package identity resolves the conversation session id of an HTTP request.
package identity

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/ashureev/deskroute/internal/session"
)

const (
	SessionCookieName = "deskroute_session"
	SessionHeaderName = "X-Session-ID"
	sessionCookieAge  = 24 * time.Hour
)

type contextKey int

const sessionIDKey contextKey = iota

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// SessionIDFromContext extracts the session id from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSessionID returns a copy of ctx carrying id.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey, id)
}

// Sanitize returns id when it is a usable session id, otherwise "".
func Sanitize(id string) string {
	id = strings.TrimSpace(id)
	if !sessionIDPattern.MatchString(id) {
		return ""
	}
	return id
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return session.NewID()
}

func sessionIDFromRequest(r *http.Request) (string, bool) {
	if sid := Sanitize(r.Header.Get(SessionHeaderName)); sid != "" {
		return sid, false
	}
	if sid := Sanitize(r.URL.Query().Get("session_id")); sid != "" {
		return sid, false
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		if sid := Sanitize(c.Value); sid != "" {
			return sid, false
		}
	}
	return NewSessionID(), true
}

// Middleware resolves the session id from the X-Session-ID header, the
// session_id query parameter or the session cookie, minting a new one when
// none is present. The id is echoed in the response header and cookie.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID, minted := sessionIDFromRequest(r)

			w.Header().Set(SessionHeaderName, sessionID)
			if minted {
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    sessionID,
					Path:     "/",
					MaxAge:   int(sessionCookieAge.Seconds()),
					Expires:  time.Now().Add(sessionCookieAge),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
					Secure:   !isDev,
				})
			}

			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sessionID)))
		})
	}
}
