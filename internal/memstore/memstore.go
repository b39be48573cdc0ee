// Package memstore keeps every repository in process memory. It backs the
// "memory" database driver and the service and handler tests.
package memstore

import (
	"sync"
	"time"

	"github.com/perfecto-hq/perfecto/internal/invitation"
	"github.com/perfecto-hq/perfecto/internal/org"
	"github.com/perfecto-hq/perfecto/internal/permission"
	"github.com/perfecto-hq/perfecto/internal/review"
	"github.com/perfecto-hq/perfecto/internal/user"
)

type memberKey struct {
	targetID int64
	userID   int64
}

type membership struct {
	role      permission.Role
	createdAt time.Time
}

type reviewRow struct {
	id        int64
	userID    int64
	teamID    int64
	createdAt time.Time
}

// DB holds all tables behind one lock.
type DB struct {
	mu  sync.RWMutex
	now func() time.Time
	seq map[string]int64

	users    map[int64]*user.User
	sessions map[string]user.Session

	companies    map[int64]*org.Company
	teams        map[int64]*org.Team
	companyUsers map[memberKey]membership
	teamUsers    map[memberKey]membership

	invitations map[string]*invitation.Invitation

	reviews      map[int64]*reviewRow
	achievements map[int64]*review.Achievement
	scores       map[int64]*review.Score
}

// New creates an empty database.
func New() *DB {
	return &DB{
		now:          time.Now,
		seq:          make(map[string]int64),
		users:        make(map[int64]*user.User),
		sessions:     make(map[string]user.Session),
		companies:    make(map[int64]*org.Company),
		teams:        make(map[int64]*org.Team),
		companyUsers: make(map[memberKey]membership),
		teamUsers:    make(map[memberKey]membership),
		invitations:  make(map[string]*invitation.Invitation),
		reviews:      make(map[int64]*reviewRow),
		achievements: make(map[int64]*review.Achievement),
		scores:       make(map[int64]*review.Score),
	}
}

// SetClock overrides the time source used for server-side timestamps.
func (db *DB) SetClock(now func() time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.now = now
}

// nextID must be called with mu held for writing.
func (db *DB) nextID(table string) int64 {
	db.seq[table]++
	return db.seq[table]
}

// Users returns the user repository view.
func (db *DB) Users() *Users { return &Users{db: db} }

// Orgs returns the company and team repository view.
func (db *DB) Orgs() *Orgs { return &Orgs{db: db} }

// Invitations returns the invitation repository view.
func (db *DB) Invitations() *Invitations { return &Invitations{db: db} }

// Reviews returns the review repository view.
func (db *DB) Reviews() *Reviews { return &Reviews{db: db} }

var (
	_ user.Repository       = (*Users)(nil)
	_ org.Repository        = (*Orgs)(nil)
	_ invitation.Repository = (*Invitations)(nil)
	_ review.Repository     = (*Reviews)(nil)
)
