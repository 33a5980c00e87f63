// Command shelfwise syncs storefront orders and catalog variants into SQLite
// and reports top sellers, slow movers and suggested markdowns.
package main

import (
	"context"
	"os"

	"github.com/roach88/shelfwise/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background()))
}
