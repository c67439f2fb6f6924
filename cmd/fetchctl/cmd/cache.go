package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fetchcore/fetchengine/pkg/fetchengine"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the engine's read-through cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print cache size and in-flight revalidation count",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := fetchengine.NewFromFile(configPath)
		if err != nil {
			return err
		}
		defer e.Destroy()

		size, inflight := e.CacheStats()
		fmt.Printf("cacheSize=%d inflightCount=%d\n", size, inflight)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cache entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := fetchengine.NewFromFile(configPath)
		if err != nil {
			return err
		}
		defer e.Destroy()

		e.ClearCache()
		fmt.Println("cache cleared")
		return nil
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <path-prefix>",
	Short: "Remove cache entries whose key starts with the given path prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := fetchengine.NewFromFile(configPath)
		if err != nil {
			return err
		}
		defer e.Destroy()

		n := e.InvalidatePath(args[0])
		fmt.Printf("invalidated %d entries\n", n)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd, cacheInvalidateCmd)
}
