// Package main provides the siteqa binary entry point.
// Siteqa crawls websites into a vector index and answers questions
// about them with cited sources.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/siteqa/siteqa/llm/providers"

	"github.com/siteqa/siteqa/commands"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "siteqa"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	// API keys and DSNs can live in a local .env file.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "siteqa",
		Short: "Website question answering with cited sources",
		Long: `Siteqa turns a website into a queryable knowledge base.

It crawls a site, extracts readable content, chunks and embeds it into
a vector store, and answers questions against the index with source
citations. Run it as a CLI or as a REST API server.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogging(logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(commands.NewServeCommand(&configPath))
	cmd.AddCommand(commands.NewIngestCommand(&configPath))
	cmd.AddCommand(commands.NewAskCommand(&configPath))
	cmd.AddCommand(commands.NewBatchCommand(&configPath))
	cmd.AddCommand(commands.NewStatusCommand(&configPath))
	cmd.AddCommand(commands.NewWebhookCommand())
	cmd.AddCommand(commands.NewInitCommand())

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func configureLogging(logLevel string) {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}
