package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/siteqa/siteqa/ingest"
	"github.com/siteqa/siteqa/notify"
)

// NewIngestCommand returns the `siteqa ingest` subcommand.
func NewIngestCommand(configPath *string) *cobra.Command {
	var (
		pageTypes   []string
		callbackURL string
	)

	cmd := &cobra.Command{
		Use:   "ingest <url> [url...]",
		Short: "Crawl and index one or more sites",
		Long: `Crawl the given seed URLs, extract readable content, chunk it,
embed it, and index it into the vector store.

The crawl stays on the seed's host and only follows links whose paths
match the configured page types.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if len(pageTypes) == 0 {
				pageTypes = cfg.Crawl.PageTypes
			}

			app, err := NewApp(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer app.Close()

			bold := color.New(color.Bold).SprintFunc()
			fmt.Printf("Ingesting %s\n", bold(fmt.Sprintf("%d seed(s)", len(args))))

			metrics, err := app.Pipeline.Run(cmd.Context(), args, pageTypes)
			if err != nil {
				return fmt.Errorf("ingestion failed: %w", err)
			}

			green := color.New(color.FgGreen, color.Bold).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()
			fmt.Println(green("Ingestion complete"))
			fmt.Printf("  pages scraped:  %d\n", metrics.PagesScraped)
			if metrics.PagesFailed > 0 {
				fmt.Printf("  pages failed:   %s\n", red(fmt.Sprint(metrics.PagesFailed)))
			}
			fmt.Printf("  chunks indexed: %d\n", metrics.TotalChunksCreated)
			fmt.Printf("  tokens:         %d\n", metrics.TotalTokensProcessed)
			fmt.Printf("  duration:       %s\n", metrics.TotalDuration.Round(time.Millisecond))
			for _, e := range metrics.Errors {
				fmt.Printf("  %s %s: %s\n", red("✗"), e.URL, e.Error)
			}

			if callbackURL != "" {
				deliverIngestReport(cmd, app, args, metrics, callbackURL)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&pageTypes, "page-types", nil, "Path segments to crawl (defaults to config)")
	cmd.Flags().StringVar(&callbackURL, "callback", "", "Webhook URL to deliver the run report to")
	return cmd
}

func deliverIngestReport(cmd *cobra.Command, app *App, urls []string, metrics *ingest.Metrics, callbackURL string) {
	payload := notify.IngestionPayload{
		Status:    notify.StatusSuccess,
		JobID:     uuid.NewString(),
		URLs:      urls,
		Metrics:   metrics.Payload(),
		Timestamp: time.Now().UTC(),
	}
	delivery := app.Notifier.Notify(cmd.Context(), callbackURL, payload)
	fmt.Printf("  callback:       %s after %d attempt(s)\n", delivery.Outcome, len(delivery.Attempts))
}
