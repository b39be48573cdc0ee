package api

import (
	"net/http"

	"github.com/perfecto-hq/perfecto/internal/metrics"
	"github.com/perfecto-hq/perfecto/internal/org"
)

// teamsHandler groups team HTTP handlers.
type teamsHandler struct {
	orgs    *org.Service
	metrics *metrics.Metrics
}

// List handles GET /teams/.
func (h *teamsHandler) List(w http.ResponseWriter, r *http.Request) {
	teams, err := h.orgs.ListTeams(r.Context(), actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if teams == nil {
		teams = []org.Team{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"teams": teams})
}

// Create handles POST /teams/company/{companyID}/create/.
func (h *teamsHandler) Create(w http.ResponseWriter, r *http.Request) {
	companyID, ok := pathID(w, r, "companyID")
	if !ok {
		return
	}
	var in org.TeamInput
	if !decodeBody(w, r, &in) {
		return
	}

	t, err := h.orgs.CreateTeam(r.Context(), actorID(r), companyID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.metrics.IncOrgEvent("team_created")
	auditLog(r, "team.create", "team", t.ID, "company_id", companyID, "name", t.Name)
	writeJSON(w, http.StatusCreated, t)
}

// Detail handles GET /teams/{teamID}/.
func (h *teamsHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}

	d, err := h.orgs.TeamDetail(r.Context(), actorID(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// AddUser handles POST /teams/{teamID}/add_user/.
func (h *teamsHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	var in org.AddUserInput
	if !decodeBody(w, r, &in) {
		return
	}

	if err := h.orgs.AddTeamUser(r.Context(), actorID(r), id, in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.metrics.IncOrgEvent("team_user_added")
	auditLog(r, "team.add_user", "team", id, "member_id", in.UserID, "is_manager", in.IsManager)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"team_id":    id,
		"user_id":    in.UserID,
		"is_manager": in.IsManager,
	})
}
