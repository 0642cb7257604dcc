package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fundimart.org/internal/admin"
	"fundimart.org/internal/auth"
	"fundimart.org/internal/config"
	"fundimart.org/internal/ids"
	"fundimart.org/internal/migrate"
	"fundimart.org/internal/obs"
	"fundimart.org/internal/store/pg"
	"fundimart.org/ops/migrations"
)

func main() {
	v := config.New()
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply fundimart schema migrations and seeds",
		SilenceUsage: true,
	}
	if err := config.BindFlags(root, v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	root.AddCommand(
		managerCmd(v, "up", "Apply pending migrations", func(ctx context.Context, m *migrate.Manager) error {
			return m.Up(ctx)
		}),
		managerCmd(v, "down", "Roll back the latest migration", func(ctx context.Context, m *migrate.Manager) error {
			return m.Down(ctx)
		}),
		managerCmd(v, "seed", "Apply pending seeds", func(ctx context.Context, m *migrate.Manager) error {
			return m.Seed(ctx)
		}),
		managerCmd(v, "status", "List applied migrations", func(ctx context.Context, m *migrate.Manager) error {
			history, err := m.Status(ctx)
			for _, item := range history {
				fmt.Println(item)
			}
			return err
		}),
		managerCmd(v, "pending", "List migrations not yet applied", func(ctx context.Context, m *migrate.Manager) error {
			pending, err := m.Pending(ctx)
			for _, item := range pending {
				fmt.Println(item)
			}
			return err
		}),
		bootstrapCmd(v),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openStore(v *viper.Viper) (*pg.Store, error) {
	if err := obs.SetLevel(v.GetString("log_level")); err != nil {
		return nil, err
	}
	dsn := v.GetString("pg_dsn")
	if dsn == "" {
		return nil, errors.New("missing DSN: provide via --pg-dsn or FUNDIMART_PG_DSN")
	}
	return pg.Open(dsn)
}

func managerCmd(v *viper.Viper, use, short string, fn func(context.Context, *migrate.Manager) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(v)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			mgr := migrate.NewManager(store.DB(), migrations.FS, "sql", "seeds")
			if err := fn(ctx, mgr); err != nil {
				return fmt.Errorf("migrate %s: %w", use, err)
			}
			return nil
		},
	}
}

// bootstrapCmd creates the first super-admin so the API can be administered.
func bootstrapCmd(v *viper.Viper) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the initial super-admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email = strings.TrimSpace(strings.ToLower(email))
			if email == "" || len(password) < 12 {
				return errors.New("--email and a --password of at least 12 characters are required")
			}
			store, err := openStore(v)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			perms, err := auth.ResolvePermissions(auth.RoleSuperAdmin, nil)
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			acct := auth.Account{
				ID:           ids.WithPrefix("usr"),
				Email:        email,
				PasswordHash: hash,
				Role:         auth.RoleClient,
				Status:       auth.AccountStatusActive,
				CreatedAt:    now,
			}
			if err := store.CreateAccount(ctx, acct); err != nil {
				return fmt.Errorf("create account: %w", err)
			}
			err = store.CreateProfile(ctx, admin.Profile{
				ID:          ids.WithPrefix("adm"),
				UserID:      acct.ID,
				Role:        auth.RoleSuperAdmin,
				Permissions: perms,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			if err != nil {
				return fmt.Errorf("create profile: %w", err)
			}
			obs.Logger().Info().Str("user_id", acct.ID).Str("email", email).Msg("super-admin created")
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&email, "email", "", "login email of the super-admin")
	fs.StringVar(&password, "password", "", "initial password")
	return cmd
}
