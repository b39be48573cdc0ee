package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/perfecto-hq/perfecto/internal/api"
	"github.com/perfecto-hq/perfecto/internal/auth"
	"github.com/perfecto-hq/perfecto/internal/config"
	"github.com/perfecto-hq/perfecto/internal/invitation"
	"github.com/perfecto-hq/perfecto/internal/metrics"
	"github.com/perfecto-hq/perfecto/internal/org"
	"github.com/perfecto-hq/perfecto/internal/permission"
	"github.com/perfecto-hq/perfecto/internal/ratelimit"
	"github.com/perfecto-hq/perfecto/internal/review"
	"github.com/perfecto-hq/perfecto/internal/user"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Perfecto HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	repos, err := openRepositories(ctx, cfg, m)
	if err != nil {
		return err
	}
	defer repos.Close()

	if store, ok := repos.users.(*user.Store); ok {
		go cleanSessions(ctx, store)
	}

	resolver := permission.NewResolver(repos.orgs)
	users := user.NewService(repos.users, user.WithSessionTTL(cfg.Session.MaxAge))
	orgs := org.NewService(repos.orgs, repos.users, resolver)
	invitations := invitation.NewService(repos.invitations, repos.orgs, resolver,
		invitation.WithTTL(cfg.Invitations.DefaultTTL),
		invitation.WithBaseURL(cfg.Invitations.BaseURL),
	)
	reviews := review.NewService(repos.reviews, repos.orgs, resolver)

	sessions := auth.NewCookieSessions(cfg.Session.Secret, cfg.Session.CookieName, cfg.Session.Secure, cfg.Session.MaxAge)
	authenticator := auth.NewAuthenticator(user.NewAuthAdapter(users), sessions)

	limiter := ratelimit.New(cfg.RateLimit.Auth, cfg.RateLimit.Window)
	if limiter.Enabled() {
		go limiter.Run(ctx, cfg.RateLimit.Window)
	}

	trusted, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return err
	}

	api.Version = version
	router := api.NewRouter(api.RouterDeps{
		Users:          users,
		Orgs:           orgs,
		Invitations:    invitations,
		Reviews:        reviews,
		Auth:           authenticator,
		Sessions:       sessions,
		AuthLimiter:    limiter,
		Metrics:        m,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		TrustedProxies: trusted,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr(), "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}
