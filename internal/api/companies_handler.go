package api

import (
	"net/http"

	"github.com/perfecto-hq/perfecto/internal/metrics"
	"github.com/perfecto-hq/perfecto/internal/org"
)

// companiesHandler groups company HTTP handlers.
type companiesHandler struct {
	orgs    *org.Service
	metrics *metrics.Metrics
}

// List handles GET /companies/.
func (h *companiesHandler) List(w http.ResponseWriter, r *http.Request) {
	companies, err := h.orgs.ListCompanies(r.Context(), actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if companies == nil {
		companies = []org.Company{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"companies": companies})
}

// Create handles POST /companies/create/.
func (h *companiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in org.CompanyInput
	if !decodeBody(w, r, &in) {
		return
	}

	c, err := h.orgs.CreateCompany(r.Context(), actorID(r), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.metrics.IncOrgEvent("company_created")
	auditLog(r, "company.create", "company", c.ID, "name", c.Name)
	writeJSON(w, http.StatusCreated, c)
}

// Detail handles GET /companies/{companyID}/.
func (h *companiesHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "companyID")
	if !ok {
		return
	}

	d, err := h.orgs.CompanyDetail(r.Context(), actorID(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// AddUser handles POST /companies/{companyID}/add_user/.
func (h *companiesHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "companyID")
	if !ok {
		return
	}
	var in org.AddUserInput
	if !decodeBody(w, r, &in) {
		return
	}

	if err := h.orgs.AddCompanyUser(r.Context(), actorID(r), id, in); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.metrics.IncOrgEvent("company_user_added")
	auditLog(r, "company.add_user", "company", id, "member_id", in.UserID, "is_manager", in.IsManager)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"company_id": id,
		"user_id":    in.UserID,
		"is_manager": in.IsManager,
	})
}
