package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flag for the log level override
	flagLogLevel string
	// Skips the Secrets Manager lookup and signs with SECRET_KEY only
	flagNoSecretsManager bool

	authctlCmd = &cobra.Command{
		Use:   "authctl",
		Short: "authctl inspects and operates authcore sessions",
		Long: `authctl is the operator companion of the authcore engine. It reads the same
environment as the services embedding the engine (APP_ISSUER, SESSION_TIMEOUT,
REDIS_HOST, JWT_SECRET_NAME, ...) and works directly against the session store.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagLogLevel != "" {
				os.Setenv("LOG_LEVEL", flagLogLevel)
			}
		},
	}
)

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := authctlCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	authctlCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level for the command (can also use LOG_LEVEL env var)")
	authctlCmd.PersistentFlags().BoolVar(&flagNoSecretsManager, "no-secrets-manager", false, "Use SECRET_KEY without querying AWS Secrets Manager")

	authctlCmd.AddCommand(TokenCmd)
	authctlCmd.AddCommand(SessionsCmd)
	authctlCmd.AddCommand(PrincipalCmd)
	authctlCmd.AddCommand(HealthCmd)
	authctlCmd.AddCommand(LoadtestCmd)
}
