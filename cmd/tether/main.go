// Command tether keeps local application state durable and in sync between
// devices.
package main

import (
	"context"
	"os"

	"github.com/roach88/tether/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
