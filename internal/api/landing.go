package api

import (
	"net/http"

	"github.com/perfecto-hq/perfecto/internal/auth"
)

// Version is reported by the landing endpoint. The CLI overrides it.
var Version = "dev"

// Landing handles GET /. It describes the service and, when the caller is
// signed in, who they are.
func Landing(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"name":        "Perfecto",
		"description": "Performance reviews for companies and teams",
		"version":     Version,
		"endpoints": map[string]string{
			"register":       "/accounts/register/",
			"login":          "/accounts/login/",
			"dashboard":      "/accounts/dashboard/",
			"companies":      "/companies/",
			"teams":          "/teams/",
			"invitations":    "/invitations/my-invitations/",
			"reviews":        "/reviews/",
			"health":         "/health-check/",
			"metrics":        "/metrics",
			"metricsSummary": "/metrics/summary",
		},
	}
	if u := auth.UserFromContext(r.Context()); u != nil {
		body["user"] = u
	}
	writeJSON(w, http.StatusOK, body)
}

// HealthCheck handles GET /health-check/.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
