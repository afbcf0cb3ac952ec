package commands

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/siteqa/siteqa/notify"
)

// NewBatchCommand returns the `siteqa batch` subcommand.
func NewBatchCommand(configPath *string) *cobra.Command {
	var (
		sequential  bool
		callbackURL string
	)

	cmd := &cobra.Command{
		Use:   "batch <questions-file>",
		Short: "Answer a file of questions, one per line",
		Long: `Answer every question in the given file (one question per line,
blank lines skipped). Questions run concurrently unless --sequential
is set; answers print in file order either way.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			questions, err := readQuestions(args[0])
			if err != nil {
				return err
			}
			if len(questions) == 0 {
				return fmt.Errorf("no questions in %s", args[0])
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			app, err := NewApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer app.Close()

			answers, metrics := app.Engine.BatchQuery(cmd.Context(), questions, !sequential)

			bold := color.New(color.Bold).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()
			for i, answer := range answers {
				fmt.Printf("%s %s\n", bold(fmt.Sprintf("Q%d:", i+1)), answer.Question)
				if answer.Err != nil {
					fmt.Printf("%s %v\n\n", red("error:"), answer.Err)
					continue
				}
				printAnswer(answer)
				fmt.Println()
			}

			faint := color.New(color.Faint).SprintFunc()
			fmt.Println(faint(fmt.Sprintf("%d questions, %d failed, $%.6f, %s wall clock",
				metrics.Questions,
				metrics.Failed,
				metrics.EstimatedCost,
				metrics.TotalLatency.Round(time.Millisecond))))

			if callbackURL != "" {
				payload := notify.BatchQueryPayload{
					Status:    notify.StatusSuccess,
					Results:   notify.BatchResults(answers),
					Metrics:   metrics,
					Timestamp: time.Now().UTC(),
				}
				if metrics.Failed > 0 && metrics.Failed == metrics.Questions {
					payload.Status = notify.StatusFailed
				}
				delivery := app.Notifier.Notify(cmd.Context(), callbackURL, payload)
				fmt.Printf("callback: %s after %d attempt(s)\n", delivery.Outcome, len(delivery.Attempts))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&sequential, "sequential", false, "Run questions one at a time")
	cmd.Flags().StringVar(&callbackURL, "callback", "", "Webhook URL to deliver results to")
	return cmd
}

// readQuestions loads one question per line, skipping blanks.
func readQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open questions file: %w", err)
	}
	defer f.Close()

	var questions []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		questions = append(questions, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read questions file: %w", err)
	}
	return questions, nil
}
