package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"crypto-pulse/internal/app"
)

var (
	simulateCoin     string
	simulateOldPrice float64
	simulateNewPrice float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Feed a synthetic price move through detection and dispatch",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateOldPrice <= 0 || simulateNewPrice <= 0 {
			return errors.New("--old-price and --new-price must be greater than 0")
		}

		opts := app.SimulateOptions{
			CoinID:   simulateCoin,
			OldPrice: simulateOldPrice,
			NewPrice: simulateNewPrice,
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateCoin, "coin", "bitcoin", "Coin id to simulate")
	simulateCmd.Flags().Float64Var(&simulateOldPrice, "old-price", 0, "Baseline price")
	simulateCmd.Flags().Float64Var(&simulateNewPrice, "new-price", 0, "Current price")
}
