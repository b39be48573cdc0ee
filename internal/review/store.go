package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for the review aggregate.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new review store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const reviewSelect = `SELECT r.id, r.user_id, r.team_id, t.company_id, u.name, t.name, r.created_at
	FROM perf_reviews r
	JOIN teams t ON t.id = r.team_id
	JOIN users u ON u.id = r.user_id`

func scanReview(row pgx.Row) (*Review, error) {
	r := &Review{}
	if err := row.Scan(&r.ID, &r.UserID, &r.TeamID, &r.CompanyID, &r.UserName, &r.TeamName, &r.CreatedAt); err != nil {
		return nil, err
	}
	return r, nil
}

// CreateReview inserts a review of userID in teamID.
func (s *Store) CreateReview(ctx context.Context, userID, teamID int64, createdAt time.Time) (*Review, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO perf_reviews (user_id, team_id, created_at) VALUES ($1, $2, $3) RETURNING id`,
		userID, teamID, createdAt,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("creating review: %w", err)
	}
	return s.GetReview(ctx, id)
}

// GetReview retrieves a review by id.
func (s *Store) GetReview(ctx context.Context, id int64) (*Review, error) {
	r, err := scanReview(s.pool.QueryRow(ctx, reviewSelect+` WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, fmt.Errorf("getting review: %w", err)
	}
	return r, nil
}

// ListReviewsForUser returns the reviews whose subject is userID.
func (s *Store) ListReviewsForUser(ctx context.Context, userID int64) ([]Review, error) {
	return s.listReviews(ctx, reviewSelect+`
		WHERE r.user_id = $1
		ORDER BY r.created_at DESC, r.id DESC`, userID)
}

// ListReviewsToScore returns reviews of other users with an achievement
// userID reviews.
func (s *Store) ListReviewsToScore(ctx context.Context, userID int64) ([]Review, error) {
	return s.listReviews(ctx, reviewSelect+`
		WHERE r.user_id <> $1 AND EXISTS (
			SELECT 1 FROM achievements a
			JOIN achievement_reviewers ar ON ar.achievement_id = a.id
			WHERE a.review_id = r.id AND ar.user_id = $1)
		ORDER BY r.created_at DESC, r.id DESC`, userID)
}

// ListManagedTeamReviews returns reviews of other users in teams where userID
// has a team row with is_manager set.
func (s *Store) ListManagedTeamReviews(ctx context.Context, userID int64) ([]Review, error) {
	return s.listReviews(ctx, reviewSelect+`
		WHERE r.user_id <> $1 AND r.team_id IN (
			SELECT team_id FROM team_users WHERE user_id = $1 AND is_manager)
		ORDER BY r.created_at DESC, r.id DESC`, userID)
}

func (s *Store) listReviews(ctx context.Context, query string, args ...any) ([]Review, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	defer rows.Close()

	reviews := []Review{}
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning review: %w", err)
		}
		reviews = append(reviews, *r)
	}
	return reviews, rows.Err()
}

// CreateAchievement inserts an achievement and its reviewer set in one
// transaction. a.ID is set on success.
func (s *Store) CreateAchievement(ctx context.Context, a *Achievement) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	err = tx.QueryRow(ctx,
		`INSERT INTO achievements (review_id, title, self_score, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		a.ReviewID, a.Title, a.SelfScore, a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("creating achievement: %w", err)
	}

	if len(a.ReviewerIDs) > 0 {
		_, err = tx.Exec(ctx,
			`INSERT INTO achievement_reviewers (achievement_id, user_id)
			 SELECT $1, unnest($2::bigint[])`,
			a.ID, a.ReviewerIDs,
		)
		if err != nil {
			return fmt.Errorf("adding reviewers: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing achievement: %w", err)
	}
	return nil
}

const achievementSelect = `SELECT a.id, a.review_id, a.title, a.self_score, a.created_at,
		COALESCE(array_agg(ar.user_id ORDER BY ar.user_id) FILTER (WHERE ar.user_id IS NOT NULL), '{}')
	FROM achievements a
	LEFT JOIN achievement_reviewers ar ON ar.achievement_id = a.id`

func scanAchievement(row pgx.Row) (*Achievement, error) {
	a := &Achievement{}
	if err := row.Scan(&a.ID, &a.ReviewID, &a.Title, &a.SelfScore, &a.CreatedAt, &a.ReviewerIDs); err != nil {
		return nil, err
	}
	return a, nil
}

// GetAchievement retrieves an achievement with its reviewer ids.
func (s *Store) GetAchievement(ctx context.Context, id int64) (*Achievement, error) {
	a, err := scanAchievement(s.pool.QueryRow(ctx,
		achievementSelect+` WHERE a.id = $1 GROUP BY a.id`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAchievementNotFound
		}
		return nil, fmt.Errorf("getting achievement: %w", err)
	}
	return a, nil
}

// ListAchievements returns the achievements of a review in creation order.
func (s *Store) ListAchievements(ctx context.Context, reviewID int64) ([]Achievement, error) {
	rows, err := s.pool.Query(ctx,
		achievementSelect+` WHERE a.review_id = $1 GROUP BY a.id ORDER BY a.id`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("listing achievements: %w", err)
	}
	defer rows.Close()

	achievements := []Achievement{}
	for rows.Next() {
		a, err := scanAchievement(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning achievement: %w", err)
		}
		achievements = append(achievements, *a)
	}
	return achievements, rows.Err()
}

const scoreColumns = `id, achievement_id, user_id, score, comment, created_at, updated_at`

func scanScore(row pgx.Row) (*Score, error) {
	sc := &Score{}
	if err := row.Scan(&sc.ID, &sc.AchievementID, &sc.UserID, &sc.Score, &sc.Comment, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
		return nil, err
	}
	return sc, nil
}

// GetScore returns userID's score for an achievement.
func (s *Store) GetScore(ctx context.Context, achievementID, userID int64) (*Score, error) {
	sc, err := scanScore(s.pool.QueryRow(ctx,
		`SELECT `+scoreColumns+` FROM achievement_scores WHERE achievement_id = $1 AND user_id = $2`,
		achievementID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScoreNotFound
		}
		return nil, fmt.Errorf("getting score: %w", err)
	}
	return sc, nil
}

// CreateScore inserts a score. A row inserted concurrently for the same pair
// is overwritten rather than reported as a conflict.
func (s *Store) CreateScore(ctx context.Context, sc *Score) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO achievement_scores (achievement_id, user_id, score, comment, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (achievement_id, user_id)
		 DO UPDATE SET score = EXCLUDED.score, comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		sc.AchievementID, sc.UserID, sc.Score, sc.Comment, sc.CreatedAt, sc.UpdatedAt,
	).Scan(&sc.ID, &sc.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating score: %w", err)
	}
	return nil
}

// UpdateScore overwrites the score and comment of an existing row.
func (s *Store) UpdateScore(ctx context.Context, sc *Score) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE achievement_scores SET score = $1, comment = $2, updated_at = $3 WHERE id = $4`,
		sc.Score, sc.Comment, sc.UpdatedAt, sc.ID)
	if err != nil {
		return fmt.Errorf("updating score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrScoreNotFound
	}
	return nil
}

// ListScores returns every score for an achievement.
func (s *Store) ListScores(ctx context.Context, achievementID int64) ([]Score, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+scoreColumns+` FROM achievement_scores WHERE achievement_id = $1 ORDER BY id`,
		achievementID)
	if err != nil {
		return nil, fmt.Errorf("listing scores: %w", err)
	}
	defer rows.Close()

	scores := []Score{}
	for rows.Next() {
		sc, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		scores = append(scores, *sc)
	}
	return scores, rows.Err()
}
