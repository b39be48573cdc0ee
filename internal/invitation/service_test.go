package invitation_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/perfecto-hq/perfecto/internal/invitation"
	"github.com/perfecto-hq/perfecto/internal/memstore"
	"github.com/perfecto-hq/perfecto/internal/org"
	"github.com/perfecto-hq/perfecto/internal/permission"
	"github.com/perfecto-hq/perfecto/internal/user"
	"github.com/perfecto-hq/perfecto/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db      *memstore.DB
	orgs    *memstore.Orgs
	svc     *invitation.Service
	now     time.Time
	owner   int64
	company *org.Company
	team    *org.Team
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := memstore.New()
	f := &fixture{
		db:   db,
		orgs: db.Orgs(),
		now:  time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = invitation.NewService(db.Invitations(), f.orgs, permission.NewResolver(f.orgs),
		invitation.WithClock(func() time.Time { return f.now }),
		invitation.WithBaseURL("https://perfecto.example/"),
	)

	f.owner = f.user(t, "owner")
	var err error
	f.company, err = f.orgs.CreateCompany(ctx, org.CompanyInput{Name: "Acme"}, f.owner)
	require.NoError(t, err)
	f.team, err = f.orgs.CreateTeam(ctx, f.company.ID, org.TeamInput{Name: "Platform"}, f.owner)
	require.NoError(t, err)
	return f
}

func (f *fixture) user(t *testing.T, name string) int64 {
	t.Helper()
	u, err := f.db.Users().Create(context.Background(), user.CreateUserInput{Email: name + "@example.com", Name: name})
	require.NoError(t, err)
	return u.ID
}

func TestCreateCompanyInvitation(t *testing.T) {
	f := newFixture(t)
	inv, err := f.svc.CreateCompanyInvitation(context.Background(), f.owner, f.company.ID, invitation.CreateInput{
		Email:           "new@example.com",
		IsManagerInvite: true,
	})
	require.NoError(t, err)

	assert.Len(t, inv.ID, 36)
	assert.Equal(t, invitation.TypeCompany, inv.Type)
	assert.Nil(t, inv.TeamID)
	assert.Equal(t, f.now.Add(7*24*time.Hour), inv.ExpiresAt)
	assert.Equal(t, "https://perfecto.example/invitations/accept/"+inv.ID+"/", f.svc.AcceptURL(inv.ID))
}

func TestCreateInvitation_TokensAreUnique(t *testing.T) {
	f := newFixture(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		inv, err := f.svc.CreateCompanyInvitation(context.Background(), f.owner, f.company.ID, invitation.CreateInput{})
		require.NoError(t, err)
		require.False(t, seen[inv.ID], "duplicate token %s", inv.ID)
		seen[inv.ID] = true
	}
}

func TestCreateInvitation_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plain, companyMgr := f.user(t, "plain"), f.user(t, "mgr")
	require.NoError(t, f.orgs.SetCompanyManager(ctx, f.company.ID, plain, false))
	require.NoError(t, f.orgs.SetCompanyManager(ctx, f.company.ID, companyMgr, true))

	_, err := f.svc.CreateCompanyInvitation(ctx, plain, f.company.ID, invitation.CreateInput{})
	assert.ErrorIs(t, err, permission.ErrForbidden)

	_, err = f.svc.CreateTeamInvitation(ctx, plain, f.team.ID, invitation.CreateInput{})
	assert.ErrorIs(t, err, permission.ErrForbidden)

	// Company manager without a team row falls back to the company role.
	inv, err := f.svc.CreateTeamInvitation(ctx, companyMgr, f.team.ID, invitation.CreateInput{})
	require.NoError(t, err)
	require.NotNil(t, inv.TeamID)
	assert.Equal(t, f.team.ID, *inv.TeamID)
	assert.Equal(t, f.company.ID, inv.CompanyID)

	_, err = f.svc.CreateTeamInvitation(ctx, f.owner, 999, invitation.CreateInput{})
	assert.ErrorIs(t, err, org.ErrTeamNotFound)
}

func TestCreateInvitation_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := f.now.Add(-time.Minute)

	tests := []struct {
		name  string
		in    invitation.CreateInput
		field string
	}{
		{"bad email", invitation.CreateInput{Email: "nope"}, "email"},
		{"expiry in the past", invitation.CreateInput{ExpiresAt: &past}, "expires_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateCompanyInvitation(ctx, f.owner, f.company.ID, tt.in)
			var verr *validate.Error
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}

	custom := f.now.Add(time.Hour)
	inv, err := f.svc.CreateCompanyInvitation(ctx, f.owner, f.company.ID, invitation.CreateInput{ExpiresAt: &custom})
	require.NoError(t, err)
	assert.Equal(t, custom, inv.ExpiresAt)
}

func TestIsExpired(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	inv := &invitation.Invitation{ExpiresAt: at}

	assert.False(t, inv.IsExpired(at.Add(-time.Second)))
	assert.False(t, inv.IsExpired(at), "expiry is strict")
	assert.True(t, inv.IsExpired(at.Add(time.Nanosecond)))
	assert.Equal(t, invitation.StatusExpired, inv.StatusAt(at.Add(time.Second)))
	assert.Equal(t, invitation.StatusPending, inv.StatusAt(at))
}

func TestAcceptCompanyInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.user(t, "bob")

	inv, err := f.svc.CreateCompanyInvitation(ctx, f.owner, f.company.ID, invitation.CreateInput{IsManagerInvite: true})
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, bob, inv.ID)
	require.NoError(t, err)

	role, err := f.orgs.CompanyRole(ctx, bob, f.company.ID)
	require.NoError(t, err)
	assert.Equal(t, &permission.Role{IsManager: true}, role)
}

func TestAcceptTeamInvitation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.user(t, "bob")

	inv, err := f.svc.CreateTeamInvitation(ctx, f.owner, f.team.ID, invitation.CreateInput{IsManagerInvite: true})
	require.NoError(t, err)

	_, err = f.svc.Accept(ctx, bob, inv.ID)
	require.NoError(t, err)

	companyRole, err := f.orgs.CompanyRole(ctx, bob, f.company.ID)
	require.NoError(t, err)
	assert.Equal(t, &permission.Role{}, companyRole)

	teamRole, err := f.orgs.TeamRole(ctx, bob, f.team.ID)
	require.NoError(t, err)
	assert.Equal(t, &permission.Role{IsManager: true}, teamRole)
}

func TestAccept_LeavesExistingMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.user(t, "bob")
	require.NoError(t, f.orgs.SetCompanyManager(ctx, f.company.ID, bob, true))

	inv, err := f.svc.CreateTeamInvitation(ctx, f.owner, f.team.ID, invitation.CreateInput{})
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, bob, inv.ID)
	require.NoError(t, err)

	role, err := f.orgs.CompanyRole(ctx, bob, f.company.ID)
	require.NoError(t, err)
	assert.True(t, role.IsManager, "existing company row must not be demoted")
}

func TestAccept_Reacceptable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob, carol := f.user(t, "bob"), f.user(t, "carol")

	inv, err := f.svc.CreateCompanyInvitation(ctx, f.owner, f.company.ID, invitation.CreateInput{})
	require.NoError(t, err)

	for _, u := range []int64{bob, carol, bob} {
		_, err := f.svc.Accept(ctx, u, inv.ID)
		require.NoError(t, err)
	}
	company, _ := f.orgs.MembershipCount()
	assert.Equal(t, 3, company)
}

func TestAccept_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bob := f.user(t, "bob")

	inv, err := f.svc.CreateCompanyInvitation(ctx, f.owner, f.company.ID, invitation.CreateInput{})
	require.NoError(t, err)

	f.now = inv.ExpiresAt.Add(time.Second)
	_, err = f.svc.Accept(ctx, bob, inv.ID)
	assert.ErrorIs(t, err, invitation.ErrExpired)

	role, err := f.orgs.CompanyRole(ctx, bob, f.company.ID)
	require.NoError(t, err)
	assert.Nil(t, role)
}

func TestDecline_NoMembershipChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.CreateTeamInvitation(ctx, f.owner, f.team.ID, invitation.CreateInput{})
	require.NoError(t, err)

	companyBefore, teamBefore := f.orgs.MembershipCount()
	_, err = f.svc.Decline(ctx, inv.ID)
	require.NoError(t, err)
	companyAfter, teamAfter := f.orgs.MembershipCount()

	assert.Equal(t, companyBefore, companyAfter)
	assert.Equal(t, teamBefore, teamAfter)
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, invitation.ErrNotFound)

	_, err = f.svc.Get(ctx, "7d444840-9dc0-11d1-b245-5ffdce74fad2")
	assert.ErrorIs(t, err, invitation.ErrNotFound)
}

func TestGet_AcceptsAlternateTokenSpellings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, err := f.svc.CreateCompanyInvitation(ctx, f.owner, f.company.ID, invitation.CreateInput{})
	require.NoError(t, err)

	for _, id := range []string{
		strings.ToUpper(inv.ID),
		"{" + inv.ID + "}",
		"urn:uuid:" + inv.ID,
	} {
		got, err := f.svc.Get(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, inv.ID, got.ID, id)
	}
}

func TestView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.CreateTeamInvitation(ctx, f.owner, f.team.ID, invitation.CreateInput{})
	require.NoError(t, err)

	v, err := f.svc.View(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusPending, v.Status)
	assert.Equal(t, "Acme", v.CompanyName)
	assert.Equal(t, "Platform", v.TeamName)

	f.now = f.now.Add(8 * 24 * time.Hour)
	v, err = f.svc.View(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invitation.StatusExpired, v.Status)
}

func TestListForCreator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	soon := f.now.Add(time.Hour)
	short, err := f.svc.CreateCompanyInvitation(ctx, f.owner, f.company.ID, invitation.CreateInput{ExpiresAt: &soon})
	require.NoError(t, err)

	f.now = f.now.Add(time.Minute)
	long, err := f.svc.CreateTeamInvitation(ctx, f.owner, f.team.ID, invitation.CreateInput{})
	require.NoError(t, err)

	p, err := f.svc.ListForCreator(ctx, f.owner)
	require.NoError(t, err)
	require.Len(t, p.Active, 2)
	assert.Equal(t, long.ID, p.Active[0].ID, "newest first")
	assert.Empty(t, p.Expired)

	f.now = f.now.Add(2 * time.Hour)
	p, err = f.svc.ListForCreator(ctx, f.owner)
	require.NoError(t, err)
	require.Len(t, p.Expired, 1)
	assert.Equal(t, short.ID, p.Expired[0].ID)
	require.Len(t, p.Active, 1)
}
