package api

import (
	"net/http"

	"github.com/perfecto-hq/perfecto/internal/metrics"
	"github.com/perfecto-hq/perfecto/internal/review"
)

// reviewsHandler groups review, achievement and score handlers.
type reviewsHandler struct {
	reviews *review.Service
	metrics *metrics.Metrics
}

// List handles GET /reviews/.
func (h *reviewsHandler) List(w http.ResponseWriter, r *http.Request) {
	l, err := h.reviews.ListReviews(r.Context(), actorID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if l.MyReviews == nil {
		l.MyReviews = []review.Review{}
	}
	if l.ReviewsToScore == nil {
		l.ReviewsToScore = []review.Review{}
	}
	if l.TeamReviews == nil {
		l.TeamReviews = []review.Review{}
	}
	writeJSON(w, http.StatusOK, l)
}

// CreateForTeam handles POST /reviews/team/{teamID}/create/. It creates one
// review per current team member.
func (h *reviewsHandler) CreateForTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}

	reviews, err := h.reviews.CreateTeamReviews(r.Context(), actorID(r), teamID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.metrics.AddReviewsCreated(len(reviews))
	auditLog(r, "review.create_team", "team", teamID, "count", len(reviews))
	writeJSON(w, http.StatusCreated, map[string]interface{}{"reviews": reviews})
}

// CreateForUser handles POST /reviews/team/{teamID}/user/{userID}/create/.
func (h *reviewsHandler) CreateForUser(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r, "teamID")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	rv, err := h.reviews.CreateUserReview(r.Context(), actorID(r), teamID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.metrics.AddReviewsCreated(1)
	auditLog(r, "review.create", "review", rv.ID, "team_id", teamID, "subject_id", userID)
	writeJSON(w, http.StatusCreated, rv)
}

// Detail handles GET /reviews/{reviewID}/.
func (h *reviewsHandler) Detail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "reviewID")
	if !ok {
		return
	}

	d, err := h.reviews.ReviewDetail(r.Context(), actorID(r), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// CreateAchievement handles POST /reviews/{reviewID}/achievement/create/.
func (h *reviewsHandler) CreateAchievement(w http.ResponseWriter, r *http.Request) {
	reviewID, ok := pathID(w, r, "reviewID")
	if !ok {
		return
	}
	var in review.AchievementInput
	if !decodeBody(w, r, &in) {
		return
	}

	a, err := h.reviews.CreateAchievement(r.Context(), actorID(r), reviewID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.metrics.IncAchievementCreated()
	auditLog(r, "achievement.create", "achievement", a.ID, "review_id", reviewID, "reviewers", len(a.ReviewerIDs))
	writeJSON(w, http.StatusCreated, a)
}

// Score handles GET and POST /reviews/achievement/{achievementID}/score/.
// GET returns the caller's current score or null; POST creates or updates it.
func (h *reviewsHandler) Score(w http.ResponseWriter, r *http.Request) {
	achievementID, ok := pathID(w, r, "achievementID")
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		a, sc, err := h.reviews.GetScore(r.Context(), actorID(r), achievementID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"achievement": a,
			"score":       sc,
		})
		return
	}

	var in review.ScoreInput
	if !decodeBody(w, r, &in) {
		return
	}
	sc, created, err := h.reviews.SubmitScore(r.Context(), actorID(r), achievementID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.metrics.IncScoreSubmission(created)
	auditLog(r, "score.submit", "achievement", achievementID, "score", sc.Score, "created", created)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, sc)
}
