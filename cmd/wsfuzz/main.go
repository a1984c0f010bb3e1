package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wsfuzz/wsfuzz/wsfuzz"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := wsfuzz.NewCLI()

	if err := cli.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal(err)
	}
}
