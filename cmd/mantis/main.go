// Command mantis runs the dynamic REST API backend.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/allankoechke/mantis/internal/cli"
)

func main() {
	ctx := context.Background()

	root := cli.Root()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
