package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/perfecto-hq/perfecto/internal/auth"
	"github.com/perfecto-hq/perfecto/internal/invitation"
	"github.com/perfecto-hq/perfecto/internal/metrics"
	"github.com/perfecto-hq/perfecto/internal/org"
	"github.com/perfecto-hq/perfecto/internal/review"
	"github.com/perfecto-hq/perfecto/internal/user"
	"github.com/perfecto-hq/perfecto/internal/validate"
)

// accountsHandler groups registration, login and profile handlers.
type accountsHandler struct {
	users       *user.Service
	orgs        *org.Service
	reviews     *review.Service
	invitations *invitation.Service
	authn       *auth.Authenticator
	sessions    *auth.CookieSessions
	metrics     *metrics.Metrics
}

type sessionResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *user.User `json:"user"`

	// Set when registration replayed a pending invitation.
	Invitation       *invitation.Invitation `json:"invitation,omitempty"`
	InvitationStatus invitation.Status      `json:"invitation_status,omitempty"`
}

// startSession logs u in: it creates a login session and stores its token
// in the cookie session state.
func (h *accountsHandler) startSession(r *http.Request, state *auth.SessionState, u *user.User) (*sessionResponse, error) {
	token, expiresAt, err := h.users.StartSession(r.Context(), u.ID)
	if err != nil {
		return nil, err
	}
	state.SetToken(token)
	return &sessionResponse{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

// Register handles POST /accounts/register/. A new account is logged in
// straight away. An invitation left in the session by an anonymous visit to
// its accept link is replayed once for the new user and then forgotten,
// whatever the outcome.
func (h *accountsHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in user.RegisterInput
	if !decodeBody(w, r, &in) {
		return
	}

	u, err := h.users.Register(r.Context(), in)
	if err != nil {
		h.metrics.IncAuthEvent("register", false)
		writeServiceError(w, r, err)
		return
	}
	h.metrics.IncAuthEvent("register", true)
	auditLog(r, "user.register", "user", u.ID, "user_email", u.Email)

	state := h.sessions.Load(r)
	resp, err := h.startSession(r, state, u)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if pending := state.PendingInvitation(); pending != "" {
		state.ClearPendingInvitation()
		h.replayInvitation(r, u, pending, resp)
	}

	if err := state.Save(r, w); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *accountsHandler) replayInvitation(r *http.Request, u *user.User, id string, resp *sessionResponse) {
	inv, err := h.invitations.Accept(r.Context(), u.ID, id)
	switch {
	case err == nil:
		h.metrics.IncInvitation(string(inv.Type), "accepted")
		auditLog(r, "invitation.accept", "invitation", inv.ID, "user_id", u.ID)
		resp.Invitation = inv
		resp.InvitationStatus = invitation.StatusPending
	case errors.Is(err, invitation.ErrExpired):
		h.metrics.IncInvitation(string(inv.Type), "expired")
		resp.Invitation = inv
		resp.InvitationStatus = invitation.StatusExpired
	default:
		slog.Warn("pending invitation not accepted",
			"invitation_id", id,
			"user_id", u.ID,
			"error", err,
		)
	}
}

// Login handles POST /accounts/login/.
func (h *accountsHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required"`
		Password string `json:"password" validate:"required"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.IncAuthEvent("login", false)
		writeServiceError(w, r, err)
		return
	}

	state := h.sessions.Load(r)
	resp, err := h.startSession(r, state, u)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := state.Save(r, w); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.metrics.IncAuthEvent("login", true)
	auditLog(r, "user.login", "user", u.ID, "user_email", u.Email)
	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /accounts/logout/. It is safe to call without a
// session.
func (h *accountsHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.users.EndSession(r.Context(), h.authn.Token(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	state := h.sessions.Load(r)
	state.Clear()
	if err := state.Save(r, w); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.metrics.IncAuthEvent("logout", true)
	auditLog(r, "user.logout", "user", actorID(r))
	w.WriteHeader(http.StatusNoContent)
}

// TelegramLogin handles POST /accounts/telegram-login/. No bot is wired in,
// so the handle is only validated and echoed back.
func (h *accountsHandler) TelegramLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TelegramUsername string `json:"telegram_username" validate:"required,max=255"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	req.TelegramUsername = strings.TrimSpace(req.TelegramUsername)
	if err := validate.Struct(req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.metrics.IncAuthEvent("telegram_link", true)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":            "link_sent",
		"telegram_username": req.TelegramUsername,
	})
}

// Dashboard handles GET /accounts/dashboard/.
func (h *accountsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := actorID(r)

	u, err := h.users.Get(ctx, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	companies, err := h.orgs.ListCompanies(ctx, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	teams, err := h.orgs.ListTeams(ctx, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	reviews, err := h.reviews.ListReviews(ctx, id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": u,
		"counts": map[string]int{
			"companies":        len(companies),
			"teams":            len(teams),
			"my_reviews":       len(reviews.MyReviews),
			"reviews_to_score": len(reviews.ReviewsToScore),
			"team_reviews":     len(reviews.TeamReviews),
		},
	})
}

// GetProfile handles GET /accounts/profile/.
func (h *accountsHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// UpdateProfile handles PATCH /accounts/profile/.
func (h *accountsHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in user.UpdateProfileInput
	if !decodeBody(w, r, &in) {
		return
	}

	u, err := h.users.UpdateProfile(r.Context(), actorID(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	auditLog(r, "user.update_profile", "user", u.ID)
	writeJSON(w, http.StatusOK, u)
}
