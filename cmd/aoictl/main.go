// Command aoictl runs terrain-change analyses from the command line, against
// the live data services or a local fixture directory.
//
// Usage:
//
//	aoictl tiles --aoi 'POLYGON((72.521 23.042,72.535 23.042,72.535 23.032,72.521 23.032,72.521 23.042))'
//	aoictl scenes --aoi ... --start 2024-01-01 --end 2024-03-01
//	aoictl run --aoi ... --start 2024-01-01 --end 2024-03-01 --fixtures ./fixtures --artifacts ./out
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "aoictl:", err)
		os.Exit(1)
	}
}
