package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fetchctl",
	Short: "Inspect and drive a FetchEngine instance from the command line",
	Long: `fetchctl loads a FetchEngine from a YAML config file and lets you
validate that file, issue one-off requests through the engine's full
pipeline (composition, retry, cache, dedup), and inspect or clear its
cache, without writing any Go.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "fetchengine.yaml", "path to the engine config file")
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(cacheCmd)
}
