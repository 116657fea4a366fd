// Command loopsched schedules kernel loop nests and inserts barriers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/loopsched/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	stop()
	os.Exit(cli.GetExitCode(err))
}
