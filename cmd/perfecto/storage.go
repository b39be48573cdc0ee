package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/perfecto-hq/perfecto/internal/config"
	"github.com/perfecto-hq/perfecto/internal/crypto"
	"github.com/perfecto-hq/perfecto/internal/invitation"
	"github.com/perfecto-hq/perfecto/internal/memstore"
	"github.com/perfecto-hq/perfecto/internal/metrics"
	"github.com/perfecto-hq/perfecto/internal/org"
	"github.com/perfecto-hq/perfecto/internal/review"
	"github.com/perfecto-hq/perfecto/internal/user"
)

// sessionCleanupInterval is how often expired login sessions are purged.
const sessionCleanupInterval = time.Hour

// repositories bundles the persistence layer selected by database.driver.
type repositories struct {
	users       user.Repository
	orgs        org.Repository
	invitations invitation.Repository
	reviews     review.Repository

	// pool is nil for the memory driver.
	pool *pgxpool.Pool
}

func (r *repositories) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

func openRepositories(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (*repositories, error) {
	if cfg.Database.Driver == "memory" {
		slog.Warn("using in-memory storage; data is lost on exit")
		db := memstore.New()
		return &repositories{
			users:       db.Users(),
			orgs:        db.Orgs(),
			invitations: db.Invitations(),
			reviews:     db.Reviews(),
		}, nil
	}

	cipher, err := crypto.NewFieldCipher(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("creating field cipher: %w", err)
	}
	if cipher == nil {
		slog.Warn("security.encryption_key is empty; profile fields are stored in plaintext")
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	slog.Info("connected to database")

	if m != nil {
		m.RegisterDBPoolCollector(func() (int32, int32, int32) {
			s := pool.Stat()
			return s.TotalConns(), s.IdleConns(), s.AcquiredConns()
		})
	}

	return &repositories{
		users:       user.NewStore(pool, cipher),
		orgs:        org.NewStore(pool),
		invitations: invitation.NewStore(pool),
		reviews:     review.NewStore(pool),
		pool:        pool,
	}, nil
}

// cleanSessions purges expired login sessions until ctx is cancelled.
func cleanSessions(ctx context.Context, store *user.Store) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.CleanExpiredSessions(ctx)
			if err != nil {
				slog.Error("cleaning expired sessions", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("cleaned expired sessions", "count", n)
			}
		}
	}
}
