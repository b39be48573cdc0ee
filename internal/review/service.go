// Package review implements the review aggregate: reviews contain
// achievements, and achievements collect one score per reviewer.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/perfecto-hq/perfecto/internal/org"
	"github.com/perfecto-hq/perfecto/internal/permission"
	"github.com/perfecto-hq/perfecto/internal/validate"
)

var (
	ErrReviewNotFound      = errors.New("review not found")
	ErrAchievementNotFound = errors.New("achievement not found")
	ErrScoreNotFound       = errors.New("score not found")
)

// Repository persists reviews, achievements and scores.
type Repository interface {
	CreateReview(ctx context.Context, userID, teamID int64, createdAt time.Time) (*Review, error)
	GetReview(ctx context.Context, id int64) (*Review, error)
	ListReviewsForUser(ctx context.Context, userID int64) ([]Review, error)
	// ListReviewsToScore returns reviews of other users that contain an
	// achievement userID is a reviewer of.
	ListReviewsToScore(ctx context.Context, userID int64) ([]Review, error)
	// ListManagedTeamReviews returns reviews of other users in teams where
	// userID holds a team manager row.
	ListManagedTeamReviews(ctx context.Context, userID int64) ([]Review, error)

	CreateAchievement(ctx context.Context, a *Achievement) error
	GetAchievement(ctx context.Context, id int64) (*Achievement, error)
	ListAchievements(ctx context.Context, reviewID int64) ([]Achievement, error)

	GetScore(ctx context.Context, achievementID, userID int64) (*Score, error)
	CreateScore(ctx context.Context, sc *Score) error
	UpdateScore(ctx context.Context, sc *Score) error
	ListScores(ctx context.Context, achievementID int64) ([]Score, error)
}

// Teams is the subset of the org repository the review service reads.
type Teams interface {
	GetTeam(ctx context.Context, id int64) (*org.Team, error)
	TeamMembers(ctx context.Context, teamID int64) ([]org.Member, error)
	CompanyRole(ctx context.Context, userID, companyID int64) (*permission.Role, error)
}

// Service implements review operations.
type Service struct {
	repo     Repository
	teams    Teams
	resolver *permission.Resolver
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a review service.
func NewService(repo Repository, teams Teams, resolver *permission.Resolver, opts ...Option) *Service {
	s := &Service{repo: repo, teams: teams, resolver: resolver, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateTeamReviews creates one review for every current member of the team.
func (s *Service) CreateTeamReviews(ctx context.Context, actorID, teamID int64) ([]Review, error) {
	t, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.RequireTeam(ctx, actorID, teamID, t.CompanyID); err != nil {
		return nil, err
	}

	members, err := s.teams.TeamMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	reviews := make([]Review, 0, len(members))
	for _, m := range members {
		r, err := s.repo.CreateReview(ctx, m.UserID, teamID, now)
		if err != nil {
			return nil, fmt.Errorf("creating review for user %d: %w", m.UserID, err)
		}
		reviews = append(reviews, *r)
	}
	return reviews, nil
}

// CreateUserReview creates a review of a single team member. The subject may
// create their own review; anyone else needs manager capability on the team.
func (s *Service) CreateUserReview(ctx context.Context, actorID, teamID, userID int64) (*Review, error) {
	t, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if actorID != userID {
		if err := s.resolver.RequireTeam(ctx, actorID, teamID, t.CompanyID); err != nil {
			return nil, err
		}
	}

	members, err := s.teams.TeamMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	found := false
	for _, m := range members {
		if m.UserID == userID {
			found = true
			break
		}
	}
	if !found {
		return nil, validate.Field("user_id", "user is not a member of this team")
	}
	return s.repo.CreateReview(ctx, userID, teamID, s.now())
}

// ListReviews returns the reviews relevant to the actor.
func (s *Service) ListReviews(ctx context.Context, actorID int64) (*List, error) {
	mine, err := s.repo.ListReviewsForUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	toScore, err := s.repo.ListReviewsToScore(ctx, actorID)
	if err != nil {
		return nil, err
	}
	team, err := s.repo.ListManagedTeamReviews(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return &List{MyReviews: mine, ReviewsToScore: toScore, TeamReviews: team}, nil
}

// ReviewDetail returns a review with its achievements and scores. The viewer
// must be the subject, a manager of the team, or a reviewer of one of its
// achievements.
func (s *Service) ReviewDetail(ctx context.Context, actorID, reviewID int64) (*Detail, error) {
	r, err := s.repo.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	isManager, err := s.resolver.CanManageTeam(ctx, actorID, r.TeamID, r.CompanyID)
	if err != nil {
		return nil, err
	}
	achievements, err := s.repo.ListAchievements(ctx, reviewID)
	if err != nil {
		return nil, err
	}

	d := &Detail{
		Review:       r,
		Achievements: make([]AchievementDetail, 0, len(achievements)),
		IsSubject:    r.UserID == actorID,
		IsManager:    isManager,
	}
	for _, a := range achievements {
		scores, err := s.repo.ListScores(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		d.Achievements = append(d.Achievements, AchievementDetail{Achievement: a, Scores: scores})

		if !a.HasReviewer(actorID) {
			continue
		}
		if d.Scored == nil {
			d.Scored = map[int64]bool{}
		}
		d.Scored[a.ID] = false
		for _, sc := range scores {
			if sc.UserID == actorID {
				d.Scored[a.ID] = true
				break
			}
		}
	}

	if !d.IsSubject && !d.IsManager && d.Scored == nil {
		return nil, permission.ErrForbidden
	}
	return d, nil
}

// CreateAchievement adds an achievement to a review. Allowed for the subject
// and for team managers. Reviewers must be members of the review's company.
func (s *Service) CreateAchievement(ctx context.Context, actorID, reviewID int64, in AchievementInput) (*Achievement, error) {
	r, err := s.repo.GetReview(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if r.UserID != actorID {
		if err := s.resolver.RequireTeam(ctx, actorID, r.TeamID, r.CompanyID); err != nil {
			return nil, err
		}
	}

	in.Title = strings.TrimSpace(in.Title)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	reviewers := make([]int64, 0, len(in.ReviewerIDs))
	seen := make(map[int64]bool, len(in.ReviewerIDs))
	for _, id := range in.ReviewerIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		role, err := s.teams.CompanyRole(ctx, id, r.CompanyID)
		if err != nil {
			return nil, fmt.Errorf("looking up reviewer: %w", err)
		}
		if role == nil {
			return nil, validate.Field("reviewer_ids",
				fmt.Sprintf("select a valid choice. %d is not one of the available choices", id))
		}
		reviewers = append(reviewers, id)
	}

	a := &Achievement{
		ReviewID:    reviewID,
		Title:       in.Title,
		SelfScore:   in.SelfScore,
		ReviewerIDs: reviewers,
		CreatedAt:   s.now(),
	}
	if err := s.repo.CreateAchievement(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// scoringContext loads an achievement and checks the actor may score it.
func (s *Service) scoringContext(ctx context.Context, actorID, achievementID int64) (*Achievement, error) {
	a, err := s.repo.GetAchievement(ctx, achievementID)
	if err != nil {
		return nil, err
	}
	if a.HasReviewer(actorID) {
		return a, nil
	}
	r, err := s.repo.GetReview(ctx, a.ReviewID)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.RequireTeam(ctx, actorID, r.TeamID, r.CompanyID); err != nil {
		return nil, err
	}
	return a, nil
}

// GetScore returns the actor's existing score for an achievement, or nil.
func (s *Service) GetScore(ctx context.Context, actorID, achievementID int64) (*Achievement, *Score, error) {
	a, err := s.scoringContext(ctx, actorID, achievementID)
	if err != nil {
		return nil, nil, err
	}
	sc, err := s.repo.GetScore(ctx, achievementID, actorID)
	if errors.Is(err, ErrScoreNotFound) {
		return a, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return a, sc, nil
}

// SubmitScore records the actor's score for an achievement. A second
// submission by the same user updates the existing row. created reports
// whether a new row was inserted.
func (s *Service) SubmitScore(ctx context.Context, actorID, achievementID int64, in ScoreInput) (sc *Score, created bool, err error) {
	if _, err := s.scoringContext(ctx, actorID, achievementID); err != nil {
		return nil, false, err
	}
	if err := validate.Struct(in); err != nil {
		return nil, false, err
	}

	now := s.now()
	existing, err := s.repo.GetScore(ctx, achievementID, actorID)
	switch {
	case err == nil:
		existing.Score = in.Score
		existing.Comment = in.Comment
		existing.UpdatedAt = now
		if err := s.repo.UpdateScore(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	case errors.Is(err, ErrScoreNotFound):
		sc = &Score{
			AchievementID: achievementID,
			UserID:        actorID,
			Score:         in.Score,
			Comment:       in.Comment,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.CreateScore(ctx, sc); err != nil {
			return nil, false, err
		}
		return sc, true, nil
	default:
		return nil, false, err
	}
}
