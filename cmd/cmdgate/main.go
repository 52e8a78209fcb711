// Command cmdgate gates shell commands behind allow/deny rules and human
// approval.
package main

import (
	"fmt"
	"os"

	"github.com/Dicklesworthstone/cmdgate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
