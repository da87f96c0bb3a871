package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	ladderFile   string
	ladderFormat string
)

var ladderCmd = &cobra.Command{
	Use:   "ladder",
	Short: "Print the effective severity ladder",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("ladder"); err != nil {
			return err
		}
		ladder, err := loadLadder(ladderFile)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch ladderFormat {
		case "yaml":
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(ladder); err != nil {
				return eris.Wrap(err, "ladder: encode yaml")
			}
			return eris.Wrap(enc.Close(), "ladder: flush yaml")
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return eris.Wrap(enc.Encode(ladder), "ladder: encode json")
		default:
			return eris.Errorf("ladder: unknown format %q", ladderFormat)
		}
	},
}

func init() {
	ladderCmd.Flags().StringVar(&ladderFile, "file", "", "ladder YAML file (default from config)")
	ladderCmd.Flags().StringVar(&ladderFormat, "format", "yaml", "output format: yaml or json")
	rootCmd.AddCommand(ladderCmd)
}
