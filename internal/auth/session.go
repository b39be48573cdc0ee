package auth

import (
	"crypto/sha256"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	tokenKey             = "token"
	pendingInvitationKey = "pending_invitation"
)

// CookieSessions stores per-browser state in a signed and encrypted cookie:
// the login token and the id of an invitation awaiting registration.
type CookieSessions struct {
	store *sessions.CookieStore
	name  string
}

// NewCookieSessions creates a cookie-backed session store. The encryption key
// is derived from secret so a single configured value covers both keys.
func NewCookieSessions(secret, cookieName string, secure bool, maxAge time.Duration) *CookieSessions {
	blockKey := sha256.Sum256([]byte("perfecto-session-block:" + secret))
	store := sessions.NewCookieStore([]byte(secret), blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &CookieSessions{store: store, name: cookieName}
}

// Load returns the session state for r. A cookie that fails to decode is
// treated as an empty session.
func (c *CookieSessions) Load(r *http.Request) *SessionState {
	sess, err := c.store.Get(r, c.name)
	if err != nil || sess == nil {
		sess = sessions.NewSession(c.store, c.name)
		opts := *c.store.Options
		sess.Options = &opts
		sess.IsNew = true
	}
	return &SessionState{sess: sess}
}

// SessionState is a view over one request's cookie session.
type SessionState struct {
	sess *sessions.Session
}

func (s *SessionState) str(key string) string {
	v, _ := s.sess.Values[key].(string)
	return v
}

// Token returns the stored login token, or "" if none.
func (s *SessionState) Token() string { return s.str(tokenKey) }

// SetToken stores the login token.
func (s *SessionState) SetToken(token string) { s.sess.Values[tokenKey] = token }

// PendingInvitation returns the id of an invitation the visitor tried to
// accept before having an account.
func (s *SessionState) PendingInvitation() string { return s.str(pendingInvitationKey) }

// SetPendingInvitation remembers an invitation id for replay after
// registration.
func (s *SessionState) SetPendingInvitation(id string) { s.sess.Values[pendingInvitationKey] = id }

// ClearPendingInvitation forgets the pending invitation.
func (s *SessionState) ClearPendingInvitation() { delete(s.sess.Values, pendingInvitationKey) }

// Clear drops all session values and expires the cookie on save.
func (s *SessionState) Clear() {
	for k := range s.sess.Values {
		delete(s.sess.Values, k)
	}
	s.sess.Options.MaxAge = -1
}

// Save writes the session cookie.
func (s *SessionState) Save(r *http.Request, w http.ResponseWriter) error {
	return s.sess.Save(r, w)
}
