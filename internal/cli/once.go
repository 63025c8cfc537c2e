package cli

import (
	"github.com/spf13/cobra"
)

var onceForce bool

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single pipeline pass and print its status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RunOnce(cmd.Context(), onceForce)
	},
}

func init() {
	onceCmd.Flags().BoolVar(&onceForce, "force", false, "Bypass the minimum run interval")
}
