// Command undetected estimates undetected extinctions from detection records.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"undetected/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
