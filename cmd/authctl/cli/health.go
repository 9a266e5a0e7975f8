package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	HealthCmd = &cobra.Command{
		Use:           "health",
		Short:         "Check the signing secret, Redis and optionally PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runHealth,
	}
)

func init() {
	HealthCmd.Flags().StringVar(&flagDSN, "dsn", "", "Also check this PostgreSQL connection string")
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	rows := [][2]any{{"signing_secret", "ok"}}

	latency, err := rt.sessions.Ping(ctx)
	if err != nil {
		rows = append(rows, [2]any{"redis", err.Error()})
		printKeyValues(cmd.OutOrStdout(), rows)
		return fmt.Errorf("redis unhealthy: %w", err)
	}
	rows = append(rows, [2]any{"redis", fmt.Sprintf("ok (%s)", latency.Round(time.Microsecond))})

	if flagDSN != "" {
		store, err := openPrincipalStore(ctx)
		if err != nil {
			rows = append(rows, [2]any{"postgres", err.Error()})
			printKeyValues(cmd.OutOrStdout(), rows)
			return fmt.Errorf("postgres unhealthy: %w", err)
		}
		_ = store.Close()
		rows = append(rows, [2]any{"postgres", "ok"})
	}

	printKeyValues(cmd.OutOrStdout(), rows)
	return nil
}
