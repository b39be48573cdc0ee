package memstore

import (
	"context"
	"sort"

	"github.com/perfecto-hq/perfecto/internal/org"
	"github.com/perfecto-hq/perfecto/internal/permission"
)

// Orgs implements org.Repository.
type Orgs struct {
	db *DB
}

func (o *Orgs) CreateCompany(ctx context.Context, in org.CompanyInput, ownerID int64) (*org.Company, error) {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()

	now := o.db.now()
	c := &org.Company{
		ID:          o.db.nextID("companies"),
		Name:        in.Name,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	o.db.companies[c.ID] = c
	o.db.companyUsers[memberKey{c.ID, ownerID}] = membership{
		role:      permission.Role{IsManager: true, IsOwner: true},
		createdAt: now,
	}
	cp := *c
	return &cp, nil
}

func (o *Orgs) GetCompany(ctx context.Context, id int64) (*org.Company, error) {
	o.db.mu.RLock()
	defer o.db.mu.RUnlock()

	c, ok := o.db.companies[id]
	if !ok {
		return nil, org.ErrCompanyNotFound
	}
	cp := *c
	return &cp, nil
}

func (o *Orgs) ListCompaniesForUser(ctx context.Context, userID int64) ([]org.Company, error) {
	o.db.mu.RLock()
	defer o.db.mu.RUnlock()

	out := []org.Company{}
	for k := range o.db.companyUsers {
		if k.userID != userID {
			continue
		}
		if c, ok := o.db.companies[k.targetID]; ok {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (o *Orgs) CompanyRole(ctx context.Context, userID, companyID int64) (*permission.Role, error) {
	o.db.mu.RLock()
	defer o.db.mu.RUnlock()
	return roleOf(o.db.companyUsers, companyID, userID), nil
}

func (o *Orgs) TeamRole(ctx context.Context, userID, teamID int64) (*permission.Role, error) {
	o.db.mu.RLock()
	defer o.db.mu.RUnlock()
	return roleOf(o.db.teamUsers, teamID, userID), nil
}

func roleOf(rows map[memberKey]membership, targetID, userID int64) *permission.Role {
	m, ok := rows[memberKey{targetID, userID}]
	if !ok {
		return nil
	}
	r := m.role
	return &r
}

func (o *Orgs) CompanyMembers(ctx context.Context, companyID int64) ([]org.Member, error) {
	o.db.mu.RLock()
	defer o.db.mu.RUnlock()
	return o.db.members(o.db.companyUsers, companyID), nil
}

func (o *Orgs) TeamMembers(ctx context.Context, teamID int64) ([]org.Member, error) {
	o.db.mu.RLock()
	defer o.db.mu.RUnlock()
	return o.db.members(o.db.teamUsers, teamID), nil
}

// members must be called with mu held.
func (db *DB) members(rows map[memberKey]membership, targetID int64) []org.Member {
	out := []org.Member{}
	for k, m := range rows {
		if k.targetID != targetID {
			continue
		}
		mem := org.Member{
			UserID:    k.userID,
			IsManager: m.role.IsManager,
			IsOwner:   m.role.IsOwner,
			JoinedAt:  m.createdAt,
		}
		if u, ok := db.users[k.userID]; ok {
			mem.Email, mem.Name = u.Email, u.Name
		}
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (o *Orgs) SetCompanyManager(ctx context.Context, companyID, userID int64, isManager bool) error {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	o.db.setManager(o.db.companyUsers, companyID, userID, isManager)
	return nil
}

func (o *Orgs) SetTeamManager(ctx context.Context, teamID, userID int64, isManager bool) error {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	o.db.setManager(o.db.teamUsers, teamID, userID, isManager)
	return nil
}

// setManager must be called with mu held for writing.
func (db *DB) setManager(rows map[memberKey]membership, targetID, userID int64, isManager bool) {
	k := memberKey{targetID, userID}
	m, ok := rows[k]
	if !ok {
		m = membership{createdAt: db.now()}
	}
	m.role.IsManager = isManager
	rows[k] = m
}

func (o *Orgs) EnsureCompanyMember(ctx context.Context, companyID, userID int64, role permission.Role) error {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	o.db.ensure(o.db.companyUsers, companyID, userID, role)
	return nil
}

func (o *Orgs) EnsureTeamMember(ctx context.Context, teamID, userID int64, role permission.Role) error {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	o.db.ensure(o.db.teamUsers, teamID, userID, role)
	return nil
}

// ensure must be called with mu held for writing.
func (db *DB) ensure(rows map[memberKey]membership, targetID, userID int64, role permission.Role) {
	k := memberKey{targetID, userID}
	if _, ok := rows[k]; ok {
		return
	}
	rows[k] = membership{role: role, createdAt: db.now()}
}

func (o *Orgs) CreateTeam(ctx context.Context, companyID int64, in org.TeamInput, ownerID int64) (*org.Team, error) {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()

	if _, ok := o.db.companies[companyID]; !ok {
		return nil, org.ErrCompanyNotFound
	}
	now := o.db.now()
	t := &org.Team{
		ID:          o.db.nextID("teams"),
		CompanyID:   companyID,
		Name:        in.Name,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	o.db.teams[t.ID] = t
	o.db.teamUsers[memberKey{t.ID, ownerID}] = membership{
		role:      permission.Role{IsManager: true, IsOwner: true},
		createdAt: now,
	}
	cp := *t
	return &cp, nil
}

func (o *Orgs) GetTeam(ctx context.Context, id int64) (*org.Team, error) {
	o.db.mu.RLock()
	defer o.db.mu.RUnlock()

	t, ok := o.db.teams[id]
	if !ok {
		return nil, org.ErrTeamNotFound
	}
	cp := *t
	return &cp, nil
}

func (o *Orgs) ListTeamsForCompany(ctx context.Context, companyID int64) ([]org.Team, error) {
	o.db.mu.RLock()
	defer o.db.mu.RUnlock()

	out := []org.Team{}
	for _, t := range o.db.teams {
		if t.CompanyID == companyID {
			out = append(out, *t)
		}
	}
	sortTeams(out)
	return out, nil
}

func (o *Orgs) ListTeamsForUser(ctx context.Context, userID int64) ([]org.Team, error) {
	o.db.mu.RLock()
	defer o.db.mu.RUnlock()

	out := []org.Team{}
	for k := range o.db.teamUsers {
		if k.userID != userID {
			continue
		}
		if t, ok := o.db.teams[k.targetID]; ok {
			out = append(out, *t)
		}
	}
	sortTeams(out)
	return out, nil
}

func sortTeams(teams []org.Team) {
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].Name != teams[j].Name {
			return teams[i].Name < teams[j].Name
		}
		return teams[i].ID < teams[j].ID
	})
}

// MembershipCount returns the number of company and team membership rows.
func (o *Orgs) MembershipCount() (company, team int) {
	o.db.mu.RLock()
	defer o.db.mu.RUnlock()
	return len(o.db.companyUsers), len(o.db.teamUsers)
}
