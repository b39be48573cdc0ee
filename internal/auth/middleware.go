package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey int

const userContextKey contextKey = iota

// ContextWithUser returns a new context carrying the given user.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext extracts the user from the context, or nil if not present.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey).(*User)
	return user
}

// Authenticator resolves the acting user from a bearer token or, failing
// that, from the token held in the cookie session.
type Authenticator struct {
	lookup  SessionLookup
	cookies *CookieSessions
}

// NewAuthenticator creates an Authenticator. cookies may be nil, in which
// case only bearer tokens are accepted.
func NewAuthenticator(lookup SessionLookup, cookies *CookieSessions) *Authenticator {
	return &Authenticator{lookup: lookup, cookies: cookies}
}

// Token returns the session token presented by r, or "".
func (a *Authenticator) Token(r *http.Request) string {
	if tok := extractBearerToken(r); tok != "" {
		return tok
	}
	if a.cookies == nil {
		return ""
	}
	return a.cookies.Load(r).Token()
}

func (a *Authenticator) resolve(r *http.Request) *User {
	token := a.Token(r)
	if token == "" {
		return nil
	}
	user, err := a.lookup.LookupSession(r.Context(), token)
	if err != nil {
		return nil
	}
	return user
}

// RequireUser rejects requests without a valid session with 401 and injects
// the user into the context otherwise.
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := a.resolve(r)
		if user == nil {
			writeUnauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

// OptionalUser injects the user into the context when a valid session is
// present and lets every request through.
func (a *Authenticator) OptionalUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := a.resolve(r); user != nil {
			r = r.WithContext(ContextWithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{
			Code:    "unauthorized",
			Message: message,
		},
	})
}
