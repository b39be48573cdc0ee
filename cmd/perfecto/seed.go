package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/perfecto-hq/perfecto/internal/config"
	"github.com/perfecto-hq/perfecto/internal/invitation"
	"github.com/perfecto-hq/perfecto/internal/org"
	"github.com/perfecto-hq/perfecto/internal/permission"
	"github.com/perfecto-hq/perfecto/internal/user"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo company, team and users",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

const demoPassword = "perfecto-demo"

var demoUsers = []user.RegisterInput{
	{Email: "owner@perfecto.local", Name: "Olivia Owner", Job: "CEO"},
	{Email: "manager@perfecto.local", Name: "Max Manager", Job: "Engineering Manager"},
	{Email: "dev@perfecto.local", Name: "Dana Developer", Job: "Software Engineer"},
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == "memory" {
		slog.Warn("seeding the memory driver has no lasting effect")
	}

	ctx := context.Background()
	repos, err := openRepositories(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer repos.Close()

	users := user.NewService(repos.users)
	resolver := permission.NewResolver(repos.orgs)
	orgs := org.NewService(repos.orgs, repos.users, resolver)
	invitations := invitation.NewService(repos.invitations, repos.orgs, resolver,
		invitation.WithTTL(cfg.Invitations.DefaultTTL),
		invitation.WithBaseURL(cfg.Invitations.BaseURL),
	)

	// Check if seed has already run.
	if _, err := repos.users.GetByEmail(ctx, demoUsers[0].Email); err == nil {
		slog.Info("demo data already exists, skipping seed")
		return nil
	} else if !errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("checking existing users: %w", err)
	}

	ids := make([]int64, len(demoUsers))
	for i, in := range demoUsers {
		in.Password1, in.Password2 = demoPassword, demoPassword
		u, err := users.Register(ctx, in)
		if err != nil {
			return fmt.Errorf("creating user %q: %w", in.Email, err)
		}
		ids[i] = u.ID
		slog.Info("created user", "email", u.Email, "id", u.ID)
	}
	owner, manager, dev := ids[0], ids[1], ids[2]

	company, err := orgs.CreateCompany(ctx, owner, org.CompanyInput{
		Name:        "Acme Corp",
		Description: "Demo company created by perfecto seed.",
	})
	if err != nil {
		return fmt.Errorf("creating company: %w", err)
	}
	team, err := orgs.CreateTeam(ctx, owner, company.ID, org.TeamInput{Name: "Platform"})
	if err != nil {
		return fmt.Errorf("creating team: %w", err)
	}

	for _, m := range []struct {
		id      int64
		manager bool
	}{{manager, true}, {dev, false}} {
		in := org.AddUserInput{UserID: m.id, IsManager: m.manager}
		if err := orgs.AddCompanyUser(ctx, owner, company.ID, in); err != nil {
			return fmt.Errorf("adding company user %d: %w", m.id, err)
		}
		if err := orgs.AddTeamUser(ctx, owner, team.ID, in); err != nil {
			return fmt.Errorf("adding team user %d: %w", m.id, err)
		}
	}

	inv, err := invitations.CreateTeamInvitation(ctx, manager, team.ID, invitation.CreateInput{})
	if err != nil {
		return fmt.Errorf("creating invitation: %w", err)
	}

	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Company:    %s (%d)\n", company.Name, company.ID)
	fmt.Printf("Team:       %s (%d)\n", team.Name, team.ID)
	for _, u := range demoUsers {
		fmt.Printf("User:       %s / %s\n", u.Email, demoPassword)
	}
	fmt.Printf("Invitation: %s\n", invitations.AcceptURL(inv.ID))

	return nil
}
