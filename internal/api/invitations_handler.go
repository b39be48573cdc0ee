package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/perfecto-hq/perfecto/internal/auth"
	"github.com/perfecto-hq/perfecto/internal/invitation"
	"github.com/perfecto-hq/perfecto/internal/metrics"
	"github.com/perfecto-hq/perfecto/internal/validate"
)

// registerPath is where anonymous visitors of an accept link are sent.
const registerPath = "/accounts/register/"

// invitationsHandler groups invitation HTTP handlers.
type invitationsHandler struct {
	invitations *invitation.Service
	sessions    *auth.CookieSessions
	metrics     *metrics.Metrics
}

type createdInvitation struct {
	Invitation *invitation.Invitation `json:"invitation"`
	AcceptURL  string                 `json:"accept_url"`
}

// CreateForCompany handles POST /invitations/company/{companyID}/invite/.
func (h *invitationsHandler) CreateForCompany(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(w, r, "companyID")
	if !ok {
		return
	}
	var in invitation.CreateInput
	if !decodeBody(w, r, &in) {
		return
	}

	inv, err := h.invitations.CreateCompanyInvitation(r.Context(), actorID(r), companyID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.created(w, r, inv)
}

// CreateForTeam handles POST /invitations/team/{teamID}/invite/.
func (h *invitationsHandler) CreateForTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	var in invitation.CreateInput
	if !decodeBody(w, r, &in) {
		return
	}

	inv, err := h.invitations.CreateTeamInvitation(r.Context(), actorID(r), teamID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.created(w, r, inv)
}

func (h *invitationsHandler) created(w http.ResponseWriter, r *http.Request, inv *invitation.Invitation) {
	h.metrics.IncInvitation(string(inv.Type), "created")
	auditLog(r, "invitation.create", "invitation", inv.ID,
		"type", inv.Type,
		"company_id", inv.CompanyID,
		"is_manager_invite", inv.IsManagerInvite,
		"expires_at", inv.ExpiresAt,
	)
	writeJSON(w, http.StatusCreated, createdInvitation{
		Invitation: inv,
		AcceptURL:  h.invitations.AcceptURL(inv.ID),
	})
}

// Accept handles GET and POST /invitations/accept/{token}/.
//
// An expired invitation is shown with status "expired" to everyone. Anonymous
// callers otherwise get the token parked in their session and are redirected
// to registration, which replays it. Signed-in callers see the invitation on
// GET and answer it on POST with {"action": "accept"|"decline"}.
func (h *invitationsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	view, err := h.invitations.View(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if view.Status == invitation.StatusExpired {
		h.metrics.IncInvitation(string(view.Invitation.Type), "expired")
		writeJSON(w, http.StatusOK, view)
		return
	}

	u := auth.UserFromContext(r.Context())
	if u == nil {
		state := h.sessions.Load(r)
		state.SetPendingInvitation(view.Invitation.ID)
		if err := state.Save(r, w); err != nil {
			writeServiceError(w, r, err)
			return
		}
		http.Redirect(w, r, registerPath, http.StatusSeeOther)
		return
	}

	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, view)
		return
	}

	var req struct {
		Action string `json:"action" validate:"required,oneof=accept decline"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	if req.Action == "decline" {
		h.decline(w, r, token)
		return
	}

	inv, err := h.invitations.Accept(r.Context(), u.ID, token)
	if errors.Is(err, invitation.ErrExpired) {
		view.Status = invitation.StatusExpired
		h.metrics.IncInvitation(string(inv.Type), "expired")
		writeJSON(w, http.StatusOK, view)
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.metrics.IncInvitation(string(inv.Type), "accepted")
	auditLog(r, "invitation.accept", "invitation", inv.ID, "type", inv.Type)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "accepted",
		"invitation": inv,
		"company_id": inv.CompanyID,
		"team_id":    inv.TeamID,
	})
}

func (h *invitationsHandler) decline(w http.ResponseWriter, r *http.Request, token string) {
	inv, err := h.invitations.Decline(r.Context(), token)
	if errors.Is(err, invitation.ErrExpired) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":     invitation.StatusExpired,
			"invitation": inv,
		})
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.metrics.IncInvitation(string(inv.Type), "declined")
	auditLog(r, "invitation.decline", "invitation", inv.ID, "type", inv.Type)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "declined",
		"invitation": inv,
	})
}

// Mine handles GET /invitations/my-invitations/.
func (h *invitationsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	p, err := h.invitations.ListForCreator(r.Context(), actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
