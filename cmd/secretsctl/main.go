// Command secretsctl is a CLI front end for the secrets SDK: fetch, sync,
// and create secrets from the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/ruachtech/secrets-sdk/cmd/secretsctl/cmd"
)

// version is set at build time via -ldflags.
var version = "0.1.0-dev"

func main() {
	if err := cmd.Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "secretsctl: %v\n", err)
		os.Exit(1)
	}
}
