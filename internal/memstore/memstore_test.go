package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/perfecto-hq/perfecto/internal/org"
	"github.com/perfecto-hq/perfecto/internal/permission"
	"github.com/perfecto-hq/perfecto/internal/review"
	"github.com/perfecto-hq/perfecto/internal/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers_EmailUniqueCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	users := New().Users()

	_, err := users.Create(ctx, user.CreateUserInput{Email: "ann@example.com", Name: "Ann"})
	require.NoError(t, err)

	_, err = users.Create(ctx, user.CreateUserInput{Email: "ANN@example.com", Name: "Ann 2"})
	assert.ErrorIs(t, err, user.ErrEmailTaken)

	got, err := users.GetByEmail(ctx, "Ann@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
}

func TestUsers_SessionExpiry(t *testing.T) {
	ctx := context.Background()
	users := New().Users()
	u, err := users.Create(ctx, user.CreateUserInput{Email: "ann@example.com", Name: "Ann"})
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, users.CreateSession(ctx, user.Session{TokenHash: "h", UserID: u.ID, ExpiresAt: now.Add(time.Hour)}))

	_, err = users.GetSessionUser(ctx, "h", now)
	assert.NoError(t, err)
	_, err = users.GetSessionUser(ctx, "h", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func TestOrgs_EnsureLeavesExistingRow(t *testing.T) {
	ctx := context.Background()
	orgs := New().Orgs()
	c, err := orgs.CreateCompany(ctx, org.CompanyInput{Name: "Acme"}, 1)
	require.NoError(t, err)

	require.NoError(t, orgs.EnsureCompanyMember(ctx, c.ID, 1, permission.Role{}))
	role, err := orgs.CompanyRole(ctx, 1, c.ID)
	require.NoError(t, err)
	assert.Equal(t, &permission.Role{IsManager: true, IsOwner: true}, role)
}

func TestOrgs_SetManagerKeepsOwner(t *testing.T) {
	ctx := context.Background()
	orgs := New().Orgs()
	c, err := orgs.CreateCompany(ctx, org.CompanyInput{Name: "Acme"}, 1)
	require.NoError(t, err)

	require.NoError(t, orgs.SetCompanyManager(ctx, c.ID, 1, false))
	role, err := orgs.CompanyRole(ctx, 1, c.ID)
	require.NoError(t, err)
	assert.Equal(t, &permission.Role{IsManager: false, IsOwner: true}, role)

	require.NoError(t, orgs.SetCompanyManager(ctx, c.ID, 2, true))
	role, err = orgs.CompanyRole(ctx, 2, c.ID)
	require.NoError(t, err)
	assert.Equal(t, &permission.Role{IsManager: true}, role)
}

func TestOrgs_RoleAbsent(t *testing.T) {
	role, err := New().Orgs().TeamRole(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Nil(t, role)
}

func TestReviews_CreateScoreOverwritesPair(t *testing.T) {
	ctx := context.Background()
	reviews := New().Reviews()

	first := &review.Score{AchievementID: 1, UserID: 2, Score: 3}
	require.NoError(t, reviews.CreateScore(ctx, first))
	second := &review.Score{AchievementID: 1, UserID: 2, Score: 5, Comment: "better"}
	require.NoError(t, reviews.CreateScore(ctx, second))

	assert.Equal(t, 1, reviews.ScoreCount())
	assert.Equal(t, first.ID, second.ID)
	got, err := reviews.GetScore(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Score)
	assert.Equal(t, "better", got.Comment)
}

func TestReviews_AchievementCopiesReviewers(t *testing.T) {
	ctx := context.Background()
	reviews := New().Reviews()

	a := &review.Achievement{ReviewID: 1, Title: "Shipped", SelfScore: 4, ReviewerIDs: []int64{3, 2}}
	require.NoError(t, reviews.CreateAchievement(ctx, a))
	a.ReviewerIDs[0] = 99

	got, err := reviews.GetAchievement(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, got.ReviewerIDs)
}
