package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fetchcore/fetchengine/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Work with the engine config file",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the config file without starting an engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := config.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Printf("%s: ok (base_url=%s)\n", configPath, spec.BaseURL)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
