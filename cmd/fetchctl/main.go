// Command fetchctl is the operator CLI for a FetchEngine instance:
// validate a config file, issue one-off requests against it, and
// inspect/clear its cache, without writing any Go. Grounded on
// ipiton-alert-history-service's cmd/template-validator (cobra root +
// subcommand layout) and the teacher's cmd/edge-gateway -c/-t flags
// (config-path flag, -t test-and-exit mode).
package main

import (
	"fmt"
	"os"

	"github.com/fetchcore/fetchengine/cmd/fetchctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
