package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehp-platform/authcore/jwt"
	"github.com/ehp-platform/authcore/session"
)

var (
	flagTokenEmail        string
	flagTokenRefresh      bool
	flagTokenNoStore      bool
	flagTokenVerifyExpiry bool

	TokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Issue and inspect session tokens",
		Long: `
Usage: authctl token <subcommand> [options]

  Issue a session for a principal:

      $ authctl token issue 42 --email alice@example.com

  Decode and verify a token:

      $ authctl token decode eyJhbGciOi...
`,
	}

	TokenIssueCmd = &cobra.Command{
		Use:           "issue <principal-id>",
		Short:         "Mint a token pair and record its session",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runTokenIssue,
	}

	TokenDecodeCmd = &cobra.Command{
		Use:           "decode <token>",
		Short:         "Verify a token and print its claims and session state",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runTokenDecode,
	}
)

func init() {
	TokenIssueCmd.Flags().StringVar(&flagTokenEmail, "email", "", "Email claim of the access token")
	TokenIssueCmd.Flags().BoolVar(&flagTokenRefresh, "refresh", false, "Also mint a refresh token")
	TokenIssueCmd.Flags().BoolVar(&flagTokenNoStore, "no-store", false, "Mint the tokens without recording a session")

	TokenDecodeCmd.Flags().BoolVar(&flagTokenVerifyExpiry, "verify-expiry", true, "Reject expired tokens")

	TokenCmd.AddCommand(TokenIssueCmd)
	TokenCmd.AddCommand(TokenDecodeCmd)
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	var pair *jwt.TokenPair
	if flagTokenNoStore {
		pair, err = rt.codec.Generate(args[0], flagTokenEmail, flagTokenRefresh)
	} else {
		pair, err = rt.sessions.CreateSession(ctx, args[0], flagTokenEmail, flagTokenRefresh)
	}
	if err != nil {
		return fmt.Errorf("error issuing token: %w", err)
	}

	rows := [][2]any{
		{"access_token", pair.AccessToken},
		{"token_type", pair.TokenType},
		{"expires_at", time.Unix(pair.ExpiresAt, 0).UTC().Format(time.RFC3339)},
	}
	if pair.RefreshToken != "" {
		rows = append(rows, [2]any{"refresh_token", pair.RefreshToken})
	}
	printKeyValues(cmd.OutOrStdout(), rows)
	return nil
}

func runTokenDecode(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	claims, err := rt.codec.Decode(args[0], flagTokenVerifyExpiry)
	if err != nil {
		return fmt.Errorf("error decoding token: %w", err)
	}

	state := "active"
	if claims.Kind == jwt.KindRefresh {
		revoked, err := rt.sessions.Store().Revoked(ctx, claims.Subject, claims.ID, claims.IssuedAtTime())
		if err != nil {
			return fmt.Errorf("error reading revocation state: %w", err)
		}
		if revoked {
			state = "revoked"
		}
	} else if _, err := rt.sessions.Store().Get(ctx, claims.ID, 0); err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			return fmt.Errorf("error reading session: %w", err)
		}
		state = "revoked"
	}

	printKeyValues(cmd.OutOrStdout(), [][2]any{
		{"sub", claims.Subject},
		{"email", claims.Email},
		{"kind", claims.Kind},
		{"iss", claims.Issuer},
		{"iat", claims.IssuedAtTime().Format(time.RFC3339Nano)},
		{"exp", claims.ExpiresAtTime().Format(time.RFC3339)},
		{"jti", claims.ID},
		{"session", state},
	})
	return nil
}
