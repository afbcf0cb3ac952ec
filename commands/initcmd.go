package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/siteqa/siteqa/config"
)

// NewInitCommand returns the `siteqa init` subcommand.
func NewInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default siteqa.yaml in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.NewLoader().Init()
			if err != nil {
				return err
			}
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s wrote %s\n", green("✓"), path)
			fmt.Println("Edit it, then run `siteqa ingest <url>` to index a site.")
			return nil
		},
	}
}
