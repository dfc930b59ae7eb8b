package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/petal-labs/multitool/cli"
	"github.com/petal-labs/multitool/registry"
	"github.com/petal-labs/multitool/tools"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New(registry.WithReservedOptions(cli.DeclareReserved))
	if err := tools.RegisterBuiltins(reg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: registering tools: %v\n", err)
		os.Exit(1)
	}

	code := cli.Execute(ctx, reg, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
