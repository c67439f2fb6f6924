package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fetchcore/fetchengine/internal/pipeline"
	"github.com/fetchcore/fetchengine/pkg/fetchengine"
)

var requestCmd = &cobra.Command{
	Use:   "request <method> <path>",
	Short: "Issue one request through the engine's full pipeline and print the result",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := fetchengine.NewFromFile(configPath)
		if err != nil {
			return err
		}
		defer e.Destroy()

		method, path := args[0], args[1]
		resp, ferr := issue(e, method, path).Wait()
		if ferr != nil {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, ferr.Error(), ferr.Status)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.Data)
	},
}

func issue(e *fetchengine.Engine, method, path string) *pipeline.Call {
	switch method {
	case "GET", "get":
		return e.Get(path, nil)
	case "DELETE", "delete":
		return e.Delete(path, nil, nil)
	case "HEAD", "head":
		return e.Head(path, nil)
	case "OPTIONS", "options":
		return e.Options(path, nil)
	default:
		return e.Get(path, nil)
	}
}
