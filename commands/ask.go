package commands

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/siteqa/siteqa/query"
)

// NewAskCommand returns the `siteqa ask` subcommand.
func NewAskCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against the indexed corpus",
		Args:  cobra.MinimumNArgs(1),
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

			question := strings.Join(args, " ")
			answer := app.Engine.Query(cmd.Context(), question)
			if answer.Err != nil {
				return fmt.Errorf("query failed: %w", answer.Err)
			}

			printAnswer(answer)
			return nil
		},
	}
	return cmd
}

func printAnswer(answer query.Answer) {
	bold := color.New(color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	fmt.Println(answer.Answer)
	if len(answer.Citations) > 0 {
		fmt.Println()
		fmt.Println(bold("Sources:"))
		for i, c := range answer.Citations {
			title := c.Title
			if title == "" {
				title = "Source"
			}
			fmt.Printf("  [%d] %s %s\n", i+1, title, cyan(c.URL))
		}
	}
	fmt.Println()
	fmt.Println(faint(fmt.Sprintf("%d docs retrieved, %d tokens in, %d tokens out, $%.6f, %s",
		answer.Metrics.DocsRetrieved,
		answer.Metrics.InputTokens,
		answer.Metrics.OutputTokens,
		answer.Metrics.EstimatedCost,
		answer.Metrics.TotalLatency.Round(time.Millisecond))))
}
