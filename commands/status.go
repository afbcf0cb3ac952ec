package commands

import (
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewStatusCommand returns the `siteqa status` subcommand.
func NewStatusCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the configured stack and indexed chunk count",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			app, err := NewApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer app.Close()

			bold := color.New(color.Bold).SprintFunc()
			fmt.Printf("%s %s (%s)\n", bold("model:"), cfg.Model.Name, cfg.Model.Provider)
			fmt.Printf("%s %s (%d dims)\n", bold("embedder:"), cfg.Embed.Model, cfg.Embed.Dimensions)
			store := "memory"
			if cfg.DatabaseDSN() != "" {
				store = "postgres"
			}
			fmt.Printf("%s %s\n", bold("store:"), store)

			count, err := app.Store.Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("count chunks: %w", err)
			}
			fmt.Printf("%s %d\n", bold("chunks indexed:"), count)
			return nil
		},
	}
}
