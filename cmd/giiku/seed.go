// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/roito2356/giiku-23/internal/access"
	"github.com/roito2356/giiku-23/internal/auth"
	"github.com/roito2356/giiku-23/internal/config"
	"github.com/roito2356/giiku-23/internal/logging"
)

// SeedPasswordEnv supplies the administrator password without a prompt.
const SeedPasswordEnv = "GIIKU_SEED_PASSWORD"

const defaultSeedTimeout = 30 * time.Second

type seedConfig struct {
	email    string
	username string
	timeout  time.Duration
	promote  bool
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	return newSeedCmd(nil)
}

func newSeedCmd(deps *Deps) *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the initial administrator account",
		Long: `Creates an administrator account. Administrators cannot register
themselves, so this is how the first one is made. Running it again for an
existing email or username does nothing unless --promote is given, in which
case an existing account with that email is made an administrator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSeed(cmd, appCfg, cfg, deps)
		},
	}

	cmd.Flags().StringVar(&cfg.email, "email", "", "administrator email (required)")
	cmd.Flags().StringVar(&cfg.username, "username", "admin", "administrator username")
	cmd.Flags().BoolVar(&cfg.promote, "promote", false, "make an existing account with this email an administrator")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for storage operations (e.g., 30s, 1m)")

	return cmd
}

func runSeed(cmd *cobra.Command, appCfg *config.Config, cfg *seedConfig, deps *Deps) error {
	deps = deps.withDefaults()

	if strings.TrimSpace(cfg.email) == "" {
		return oops.Code("CONFIG_INVALID").With("flag", "email").Errorf("--email is required")
	}
	if appCfg.Store.Backend == config.BackendMemory {
		cmd.PrintErrln("warning: the memory store is discarded when seed exits")
	}

	// cmd.Context() carries SIGINT/SIGTERM cancellation.
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	logger := logging.Setup(logging.Options{
		Service: "giiku",
		Version: version,
		Format:  appCfg.Log.Format,
		Level:   appCfg.LogLevel(),
		Writer:  cmd.ErrOrStderr(),
	})

	rt, err := deps.OpenBackends(ctx, appCfg)
	if err != nil {
		return oops.With("operation", "open backends").Wrap(err)
	}
	defer rt.Close()

	components, err := buildComponents(rt, appCfg, logger)
	if err != nil {
		return err
	}
	ctx = access.WithSystemSubject(ctx)

	if cfg.promote {
		existing, err := components.Directory.FindByEmail(ctx, cfg.email)
		switch {
		case err == nil:
			return promoteAdministrator(ctx, cmd, components.Directory, existing)
		case !errors.Is(err, auth.ErrNotFound):
			return oops.Code("SEED_FAILED").With("operation", "look up account").Wrap(err)
		}
	}

	password := os.Getenv(SeedPasswordEnv)
	if password == "" {
		password, err = deps.PasswordReader(fmt.Sprintf("Password for %s: ", cfg.email))
		if err != nil {
			return oops.Code("SEED_FAILED").With("operation", "read password").Wrap(err)
		}
	}

	user, err := components.Directory.Register(ctx, cfg.email, cfg.username, password, auth.RoleAdministrator)
	switch auth.KindOf(err) {
	case "":
	case auth.KindDuplicate:
		cmd.Printf("An account with that %s already exists, skipping seed\n", auth.FieldOf(err))
		return nil
	default:
		return oops.Code("SEED_FAILED").With("operation", "create administrator").Wrap(err)
	}

	logger.InfoContext(ctx, "administrator created", "user_id", user.ID.String())
	cmd.Printf("Created administrator %s (%s)\n", user.Username, user.ID)
	return nil
}

func promoteAdministrator(ctx context.Context, cmd *cobra.Command, dir *auth.Directory, user *auth.User) error {
	if user.IsAdmin() {
		cmd.Printf("%s is already an administrator\n", user.Email)
		return nil
	}
	promoted, err := dir.SetRole(ctx, user.ID, auth.RoleAdministrator)
	if err != nil {
		return oops.Code("SEED_FAILED").With("operation", "promote account").Wrap(err)
	}
	cmd.Printf("Promoted %s (%s) to administrator\n", promoted.Username, promoted.ID)
	return nil
}

// readPasswordFromTerminal prompts on stderr and reads without echo.
func readPasswordFromTerminal(prompt string) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // file descriptors fit in int
	if !term.IsTerminal(fd) {
		return "", oops.Code("NO_TERMINAL").Errorf("stdin is not a terminal; set %s", SeedPasswordEnv)
	}
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", oops.Wrap(err)
	}
	return string(raw), nil
}
