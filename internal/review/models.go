package review

import "time"

// Review is one performance review of a user within a team. A user may have
// several reviews for the same team.
type Review struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	TeamID    int64     `json:"team_id"`
	CompanyID int64     `json:"company_id"`
	UserName  string    `json:"user_name"`
	TeamName  string    `json:"team_name"`
	CreatedAt time.Time `json:"created_at"`
}

// Achievement is a self-assessed item within a review, scored by its
// designated reviewers.
type Achievement struct {
	ID          int64     `json:"id"`
	ReviewID    int64     `json:"review_id"`
	Title       string    `json:"title"`
	SelfScore   int       `json:"self_score"`
	ReviewerIDs []int64   `json:"reviewer_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasReviewer reports whether userID is a designated reviewer.
func (a *Achievement) HasReviewer(userID int64) bool {
	for _, id := range a.ReviewerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Score is one reviewer's score of an achievement. There is at most one per
// (achievement, user) pair.
type Score struct {
	ID            int64     `json:"id"`
	AchievementID int64     `json:"achievement_id"`
	UserID        int64     `json:"user_id"`
	Score         int       `json:"score"`
	Comment       string    `json:"comment"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AchievementInput holds the fields for a new achievement.
type AchievementInput struct {
	Title       string  `json:"title" validate:"required,max=255"`
	SelfScore   int     `json:"self_score" validate:"required,min=1,max=5"`
	ReviewerIDs []int64 `json:"reviewer_ids"`
}

// ScoreInput holds a reviewer's submission.
type ScoreInput struct {
	Score   int    `json:"score" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=5000"`
}

// List groups the reviews relevant to one user.
type List struct {
	MyReviews      []Review `json:"my_reviews"`
	ReviewsToScore []Review `json:"reviews_to_score"`
	TeamReviews    []Review `json:"team_reviews"`
}

// AchievementDetail is an achievement with every score submitted for it.
type AchievementDetail struct {
	Achievement
	Scores []Score `json:"scores"`
}

// Detail is a review as seen by one viewer. Scored is only set when the
// viewer reviews at least one achievement.
type Detail struct {
	Review       *Review             `json:"review"`
	Achievements []AchievementDetail `json:"achievements"`
	IsSubject    bool                `json:"is_subject"`
	IsManager    bool                `json:"is_manager"`
	Scored       map[int64]bool      `json:"scored,omitempty"`
}
