package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"crypto-pulse/internal/app"
)

var (
	showLimit  int
	showErrors bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the latest snapshot per coin",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:  showLimit,
			Errors: showErrors,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of error log entries to display")
	showCmd.Flags().BoolVar(&showErrors, "errors", false, "Show the ingestion error log instead of prices")
}
