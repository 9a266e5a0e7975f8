package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehp-platform/authcore/principal/sqlstore"
)

var (
	flagDSN string

	PrincipalCmd = &cobra.Command{
		Use:   "principal",
		Short: "Inspect and repair principal records in PostgreSQL",
		Long: `
Usage: authctl principal <subcommand> [options]

  The connection string is read from --dsn or DATABASE_URL.

  Show the authentication state of a principal:

      $ authctl principal show alice@example.com

  Clear the lockout counter of principal 42:

      $ authctl principal unlock 42

  Disable principal 42 and revoke its sessions:

      $ authctl principal disable 42
`,
	}

	PrincipalShowCmd = &cobra.Command{
		Use:           "show <email-or-username>",
		Short:         "Print the authentication state of a principal",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPrincipalShow,
	}

	PrincipalUnlockCmd = &cobra.Command{
		Use:           "unlock <principal-id>",
		Short:         "Reset the failed login counter",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPrincipalUnlock,
	}

	PrincipalDisableCmd = &cobra.Command{
		Use:           "disable <principal-id>",
		Short:         "Deactivate a principal and wipe its sessions",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPrincipalDisable,
	}
)

func init() {
	PrincipalCmd.PersistentFlags().StringVar(&flagDSN, "dsn", "", "PostgreSQL connection string (can also use DATABASE_URL env var)")

	PrincipalCmd.AddCommand(PrincipalShowCmd)
	PrincipalCmd.AddCommand(PrincipalUnlockCmd)
	PrincipalCmd.AddCommand(PrincipalDisableCmd)
}

func openPrincipalStore(ctx context.Context) (*sqlstore.Store, error) {
	dsn := flagDSN
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, errors.New("no database configured: set --dsn or DATABASE_URL")
	}
	return sqlstore.Open(ctx, dsn)
}

func runPrincipalShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openPrincipalStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := store.FindByIdentifier(ctx, args[0])
	if err != nil {
		return fmt.Errorf("error reading principal: %w", err)
	}

	lastAttempt := "never"
	if !p.LastLoginAttempt.IsZero() {
		lastAttempt = p.LastLoginAttempt.UTC().Format(time.RFC3339)
	}
	printKeyValues(cmd.OutOrStdout(), [][2]any{
		{"id", p.ID},
		{"username", p.Username},
		{"email", p.Email},
		{"active", p.IsActive},
		{"confirmed", p.IsConfirmed},
		{"retry_count", p.RetryCount},
		{"last_login_attempt", lastAttempt},
		{"reset_pending", p.ResetPending},
		{"pending_email", p.PendingEmail},
	})
	return nil
}

func runPrincipalUnlock(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openPrincipalStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := store.FindByID(ctx, args[0])
	if err != nil {
		return fmt.Errorf("error reading principal: %w", err)
	}
	p.RetryCount = 0
	if err := store.Update(ctx, p); err != nil {
		return fmt.Errorf("error updating principal: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Success! Cleared failed login counter of principal %s\n", p.ID)
	return nil
}

func runPrincipalDisable(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openPrincipalStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := store.FindByID(ctx, args[0])
	if err != nil {
		return fmt.Errorf("error reading principal: %w", err)
	}
	p.IsActive = false
	if err := store.Update(ctx, p); err != nil {
		return fmt.Errorf("error updating principal: %w", err)
	}

	rt, err := openRuntime(ctx)
	if err != nil {
		return fmt.Errorf("principal disabled but sessions were not wiped: %w", err)
	}
	defer rt.Close()

	n, err := rt.sessions.WipeSessions(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("principal disabled but session wipe failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Success! Disabled principal %s and deleted %d session(s)\n", p.ID, n)
	return nil
}
