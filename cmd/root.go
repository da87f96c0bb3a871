package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/parcel-screen/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "parcel-screen",
	Short: "Environmental proximity screening for land parcels",
	Long:  "Measures distances from a parcel boundary to candidate hazard sites, classifies each site on a severity ladder, and writes ranked reports.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
