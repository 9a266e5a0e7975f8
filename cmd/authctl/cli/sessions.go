package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	SessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "List and revoke the sessions of a principal",
		Long: `
Usage: authctl sessions <subcommand> [options]

  List the live sessions of principal 42:

      $ authctl sessions list 42

  Revoke one session:

      $ authctl sessions revoke 42 <session-id>

  Revoke every session of principal 42:

      $ authctl sessions wipe 42
`,
	}

	SessionsListCmd = &cobra.Command{
		Use:           "list <principal-id>",
		Short:         "List live sessions ordered by issue time",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSessionsList,
	}

	SessionsRevokeCmd = &cobra.Command{
		Use:           "revoke <principal-id> <session-id>",
		Short:         "Delete a single session",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSessionsRevoke,
	}

	SessionsWipeCmd = &cobra.Command{
		Use:           "wipe <principal-id>",
		Short:         "Delete every session of a principal",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSessionsWipe,
	}
)

func init() {
	SessionsCmd.AddCommand(SessionsListCmd)
	SessionsCmd.AddCommand(SessionsRevokeCmd)
	SessionsCmd.AddCommand(SessionsWipeCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sessions, err := rt.sessions.ListSessions(ctx, args[0])
	if err != nil {
		return fmt.Errorf("error listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No live sessions")
		return nil
	}

	var data [][]any
	for _, s := range sessions {
		data = append(data, []any{
			s.SessionID,
			time.Unix(s.IssuedAt, 0).UTC().Format(time.RFC3339),
			time.Unix(s.ExpiresAt, 0).UTC().Format(time.RFC3339),
		})
	}
	printTable(cmd.OutOrStdout(), []string{"Session", "Issued", "Token Expires"}, data)
	return nil
}

func runSessionsRevoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.sessions.RemoveSession(ctx, args[0], args[1]); err != nil {
		return fmt.Errorf("error revoking session: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Success! Revoked session %s\n", args[1])
	return nil
}

func runSessionsWipe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	n, err := rt.sessions.WipeSessions(ctx, args[0])
	if err != nil {
		return fmt.Errorf("error wiping sessions (%d deleted): %w", n, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Success! Deleted %d session(s) of principal %s\n", n, args[0])
	return nil
}
