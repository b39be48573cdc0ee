package api

import (
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/perfecto-hq/perfecto/internal/auth"
	"github.com/perfecto-hq/perfecto/internal/invitation"
	"github.com/perfecto-hq/perfecto/internal/metrics"
	"github.com/perfecto-hq/perfecto/internal/org"
	"github.com/perfecto-hq/perfecto/internal/ratelimit"
	"github.com/perfecto-hq/perfecto/internal/review"
	"github.com/perfecto-hq/perfecto/internal/user"
)

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Users       *user.Service
	Orgs        *org.Service
	Invitations *invitation.Service
	Reviews     *review.Service

	Auth     *auth.Authenticator
	Sessions *auth.CookieSessions

	// AuthLimiter throttles credential endpoints per client IP. Nil disables it.
	AuthLimiter *ratelimit.Limiter
	Metrics     *metrics.Metrics

	AllowedOrigins []string

	// TrustedProxies are the peers whose forwarded client address headers
	// are honoured. Empty means RemoteAddr is used as is.
	TrustedProxies []netip.Prefix
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(realIP(deps.TrustedProxies))
	r.Use(requestIDMiddleware)
	r.Use(slogRequestLogger(deps.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(secureHeaders)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	// Health check and metrics.
	r.Get("/health-check/", HealthCheck)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Prometheus())
		r.Get("/metrics/summary", deps.Metrics.Handler())
	}

	if deps.Auth == nil {
		return r
	}

	accounts := &accountsHandler{
		users:       deps.Users,
		orgs:        deps.Orgs,
		reviews:     deps.Reviews,
		invitations: deps.Invitations,
		authn:       deps.Auth,
		sessions:    deps.Sessions,
		metrics:     deps.Metrics,
	}
	companies := &companiesHandler{orgs: deps.Orgs, metrics: deps.Metrics}
	teams := &teamsHandler{orgs: deps.Orgs, metrics: deps.Metrics}
	invitations := &invitationsHandler{invitations: deps.Invitations, sessions: deps.Sessions, metrics: deps.Metrics}
	reviews := &reviewsHandler{reviews: deps.Reviews, metrics: deps.Metrics}

	// Public routes that adapt to an optional session.
	r.Group(func(pr chi.Router) {
		pr.Use(deps.Auth.OptionalUser)

		pr.Get("/", Landing)
		pr.Post("/accounts/logout/", accounts.Logout)
		pr.Get("/invitations/accept/{token}/", invitations.Accept)
		pr.Post("/invitations/accept/{token}/", invitations.Accept)
	})

	// Credential endpoints (rate limited per client IP).
	r.Group(func(cr chi.Router) {
		cr.Use(ratelimit.Middleware(deps.AuthLimiter, func() {
			deps.Metrics.IncRateLimitRejection("auth")
		}))

		cr.Post("/accounts/register/", accounts.Register)
		cr.Post("/accounts/login/", accounts.Login)
		cr.Post("/accounts/telegram-login/", accounts.TelegramLogin)
	})

	// Signed-in routes.
	r.Group(func(ar chi.Router) {
		ar.Use(deps.Auth.RequireUser)

		ar.Get("/accounts/dashboard/", accounts.Dashboard)
		ar.Get("/accounts/profile/", accounts.GetProfile)
		ar.Patch("/accounts/profile/", accounts.UpdateProfile)

		ar.Route("/companies", func(cr chi.Router) {
			cr.Get("/", companies.List)
			cr.Post("/create/", companies.Create)
			cr.Get("/{companyID}/", companies.Detail)
			cr.Post("/{companyID}/add_user/", companies.AddUser)
		})

		ar.Route("/teams", func(tr chi.Router) {
			tr.Get("/", teams.List)
			tr.Post("/company/{companyID}/create/", teams.Create)
			tr.Get("/{teamID}/", teams.Detail)
			tr.Post("/{teamID}/add_user/", teams.AddUser)
		})

		ar.Post("/invitations/company/{companyID}/invite/", invitations.CreateForCompany)
		ar.Post("/invitations/team/{teamID}/invite/", invitations.CreateForTeam)
		ar.Get("/invitations/my-invitations/", invitations.Mine)

		ar.Route("/reviews", func(rr chi.Router) {
			rr.Get("/", reviews.List)
			rr.Post("/team/{teamID}/create/", reviews.CreateForTeam)
			rr.Post("/team/{teamID}/user/{userID}/create/", reviews.CreateForUser)
			rr.Get("/{reviewID}/", reviews.Detail)
			rr.Post("/{reviewID}/achievement/create/", reviews.CreateAchievement)
			rr.Get("/achievement/{achievementID}/score/", reviews.Score)
			rr.Post("/achievement/{achievementID}/score/", reviews.Score)
		})
	})

	return r
}
