package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/perfecto-hq/perfecto/internal/review"
)

// Reviews implements review.Repository.
type Reviews struct {
	db *DB
}

// view must be called with mu held.
func (db *DB) view(r *reviewRow) review.Review {
	out := review.Review{
		ID:        r.id,
		UserID:    r.userID,
		TeamID:    r.teamID,
		CreatedAt: r.createdAt,
	}
	if t, ok := db.teams[r.teamID]; ok {
		out.CompanyID, out.TeamName = t.CompanyID, t.Name
	}
	if u, ok := db.users[r.userID]; ok {
		out.UserName = u.Name
	}
	return out
}

// listReviews must be called with mu held.
func (db *DB) listReviews(keep func(*reviewRow) bool) []review.Review {
	out := []review.Review{}
	for _, r := range db.reviews {
		if keep(r) {
			out = append(out, db.view(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *Reviews) CreateReview(ctx context.Context, userID, teamID int64, createdAt time.Time) (*review.Review, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	r := &reviewRow{
		id:        s.db.nextID("reviews"),
		userID:    userID,
		teamID:    teamID,
		createdAt: createdAt,
	}
	s.db.reviews[r.id] = r
	v := s.db.view(r)
	return &v, nil
}

func (s *Reviews) GetReview(ctx context.Context, id int64) (*review.Review, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	r, ok := s.db.reviews[id]
	if !ok {
		return nil, review.ErrReviewNotFound
	}
	v := s.db.view(r)
	return &v, nil
}

func (s *Reviews) ListReviewsForUser(ctx context.Context, userID int64) ([]review.Review, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return s.db.listReviews(func(r *reviewRow) bool { return r.userID == userID }), nil
}

func (s *Reviews) ListReviewsToScore(ctx context.Context, userID int64) ([]review.Review, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	reviewing := map[int64]bool{}
	for _, a := range s.db.achievements {
		if a.HasReviewer(userID) {
			reviewing[a.ReviewID] = true
		}
	}
	return s.db.listReviews(func(r *reviewRow) bool {
		return r.userID != userID && reviewing[r.id]
	}), nil
}

func (s *Reviews) ListManagedTeamReviews(ctx context.Context, userID int64) ([]review.Review, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	managed := map[int64]bool{}
	for k, m := range s.db.teamUsers {
		if k.userID == userID && m.role.IsManager {
			managed[k.targetID] = true
		}
	}
	return s.db.listReviews(func(r *reviewRow) bool {
		return r.userID != userID && managed[r.teamID]
	}), nil
}

func copyAchievement(a *review.Achievement) review.Achievement {
	cp := *a
	cp.ReviewerIDs = append([]int64{}, a.ReviewerIDs...)
	return cp
}

func (s *Reviews) CreateAchievement(ctx context.Context, a *review.Achievement) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	a.ID = s.db.nextID("achievements")
	stored := copyAchievement(a)
	sort.Slice(stored.ReviewerIDs, func(i, j int) bool { return stored.ReviewerIDs[i] < stored.ReviewerIDs[j] })
	s.db.achievements[a.ID] = &stored
	return nil
}

func (s *Reviews) GetAchievement(ctx context.Context, id int64) (*review.Achievement, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	a, ok := s.db.achievements[id]
	if !ok {
		return nil, review.ErrAchievementNotFound
	}
	cp := copyAchievement(a)
	return &cp, nil
}

func (s *Reviews) ListAchievements(ctx context.Context, reviewID int64) ([]review.Achievement, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := []review.Achievement{}
	for _, a := range s.db.achievements {
		if a.ReviewID == reviewID {
			out = append(out, copyAchievement(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Reviews) GetScore(ctx context.Context, achievementID, userID int64) (*review.Score, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	for _, sc := range s.db.scores {
		if sc.AchievementID == achievementID && sc.UserID == userID {
			cp := *sc
			return &cp, nil
		}
	}
	return nil, review.ErrScoreNotFound
}

func (s *Reviews) CreateScore(ctx context.Context, sc *review.Score) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, existing := range s.db.scores {
		if existing.AchievementID == sc.AchievementID && existing.UserID == sc.UserID {
			existing.Score, existing.Comment, existing.UpdatedAt = sc.Score, sc.Comment, sc.UpdatedAt
			sc.ID, sc.CreatedAt = existing.ID, existing.CreatedAt
			return nil
		}
	}
	sc.ID = s.db.nextID("scores")
	cp := *sc
	s.db.scores[sc.ID] = &cp
	return nil
}

func (s *Reviews) UpdateScore(ctx context.Context, sc *review.Score) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	existing, ok := s.db.scores[sc.ID]
	if !ok {
		return review.ErrScoreNotFound
	}
	existing.Score, existing.Comment, existing.UpdatedAt = sc.Score, sc.Comment, sc.UpdatedAt
	return nil
}

func (s *Reviews) ListScores(ctx context.Context, achievementID int64) ([]review.Score, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := []review.Score{}
	for _, sc := range s.db.scores {
		if sc.AchievementID == achievementID {
			out = append(out, *sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ScoreCount returns the number of score rows. Tests use it to check that
// resubmission does not add rows.
func (s *Reviews) ScoreCount() int {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return len(s.db.scores)
}

// ReviewCount returns the number of review rows.
func (s *Reviews) ReviewCount() int {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	return len(s.db.reviews)
}
