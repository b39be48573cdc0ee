package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// --- mock lookup ---

type mockSessionLookup struct {
	users map[string]*User
}

func (m *mockSessionLookup) LookupSession(ctx context.Context, token string) (*User, error) {
	u, ok := m.users[token]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

// --- token tests ---

func TestGenerateSessionToken(t *testing.T) {
	plaintext, hash, err := GenerateSessionToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 32 bytes -> 43 base64url chars without padding
	if len(plaintext) != 43 {
		t.Errorf("expected token length 43, got %d", len(plaintext))
	}
	if hash != HashToken(plaintext) {
		t.Error("hash does not match HashToken(plaintext)")
	}
}

func TestGenerateSessionToken_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok, _, err := GenerateSessionToken()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated: %s", tok)
		}
		seen[tok] = true
	}
}

func TestHashToken(t *testing.T) {
	if HashToken("a") != HashToken("a") {
		t.Error("same input should produce same hash")
	}
	if HashToken("a") == HashToken("b") {
		t.Error("different inputs should produce different hashes")
	}
	if len(HashToken("anything")) != 64 {
		t.Errorf("expected hash length 64, got %d", len(HashToken("anything")))
	}
}

// --- context helpers ---

func TestUserContext_RoundTrip(t *testing.T) {
	u := &User{ID: 7, Email: "ann@example.com", Name: "Ann"}
	got := UserFromContext(ContextWithUser(context.Background(), u))
	if got == nil || got.ID != 7 {
		t.Fatalf("expected user 7 from context, got %+v", got)
	}
}

func TestUserFromContext_Empty(t *testing.T) {
	if got := UserFromContext(context.Background()); got != nil {
		t.Errorf("expected nil from empty context, got %+v", got)
	}
}

// --- middleware tests ---

func newTestAuthenticator() (*Authenticator, *CookieSessions) {
	lookup := &mockSessionLookup{users: map[string]*User{
		"good-token": {ID: 1, Email: "ann@example.com", Name: "Ann"},
	}}
	cookies := NewCookieSessions(strings.Repeat("s", 32), "test_session", false, time.Hour)
	return NewAuthenticator(lookup, cookies), cookies
}

// sessionCookie returns the cookie a handler would set after storing token.
func sessionCookie(t *testing.T, cookies *CookieSessions, token string) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	state := cookies.Load(req)
	state.SetToken(token)
	if err := state.Save(req, rr); err != nil {
		t.Fatalf("saving session: %v", err)
	}
	res := rr.Result()
	defer res.Body.Close()
	for _, c := range res.Cookies() {
		if c.Name == "test_session" {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestRequireUser(t *testing.T) {
	a, cookies := newTestAuthenticator()

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			t.Error("expected user in context inside handler")
		}
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		authHeader string
		cookie     string
		wantStatus int
	}{
		{name: "valid bearer", authHeader: "Bearer good-token", wantStatus: http.StatusOK},
		{name: "valid cookie", cookie: "good-token", wantStatus: http.StatusOK},
		{name: "unknown bearer", authHeader: "Bearer bad-token", wantStatus: http.StatusUnauthorized},
		{name: "unknown cookie token", cookie: "bad-token", wantStatus: http.StatusUnauthorized},
		{name: "missing credentials", wantStatus: http.StatusUnauthorized},
		{name: "malformed header", authHeader: "Token good-token", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.cookie != "" {
				req.AddCookie(sessionCookie(t, cookies, tt.cookie))
			}
			rr := httptest.NewRecorder()

			a.RequireUser(okHandler).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				assertJSONError(t, rr)
			}
		})
	}
}

func TestOptionalUser(t *testing.T) {
	a, _ := newTestAuthenticator()

	var seen *User
	handler := a.OptionalUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || seen != nil {
		t.Errorf("anonymous request: status %d, user %+v", rr.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || seen == nil || seen.ID != 1 {
		t.Errorf("authenticated request: status %d, user %+v", rr.Code, seen)
	}
}

// --- cookie session tests ---

func TestSessionState_PendingInvitation(t *testing.T) {
	cookies := NewCookieSessions(strings.Repeat("k", 32), "test_session", false, time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	state := cookies.Load(req)
	state.SetPendingInvitation("inv-1")
	if err := state.Save(req, rr); err != nil {
		t.Fatalf("saving session: %v", err)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rr.Result().Cookies() {
		req2.AddCookie(c)
	}
	state2 := cookies.Load(req2)
	if got := state2.PendingInvitation(); got != "inv-1" {
		t.Fatalf("expected pending invitation inv-1, got %q", got)
	}
	state2.ClearPendingInvitation()
	if got := state2.PendingInvitation(); got != "" {
		t.Errorf("expected cleared pending invitation, got %q", got)
	}
}

func TestCookieSessions_TamperedCookie(t *testing.T) {
	cookies := NewCookieSessions(strings.Repeat("k", 32), "test_session", false, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "test_session", Value: "garbage"})

	state := cookies.Load(req)
	if state.Token() != "" {
		t.Errorf("expected empty token from tampered cookie, got %q", state.Token())
	}
}

func TestSessionState_Clear(t *testing.T) {
	cookies := NewCookieSessions(strings.Repeat("k", 32), "test_session", false, time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	state := cookies.Load(req)
	state.SetToken("tok")
	state.SetPendingInvitation("inv")
	state.Clear()
	if state.Token() != "" || state.PendingInvitation() != "" {
		t.Error("expected all values cleared")
	}
}

// assertJSONError checks that the response body contains the expected error JSON structure.
func assertJSONError(t *testing.T, rr *httptest.ResponseRecorder) {
	t.Helper()

	ct := rr.Header().Get("Content-Type")
	if !strings.Contains(ct, "application/json") {
		t.Errorf("expected Content-Type application/json, got %q", ct)
	}

	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if resp.Error.Code != "unauthorized" {
		t.Errorf("expected error code 'unauthorized', got %q", resp.Error.Code)
	}
	if resp.Error.Message == "" {
		t.Error("expected non-empty error message")
	}
}
