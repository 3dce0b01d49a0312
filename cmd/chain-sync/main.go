// Package main is the entry point for chain-sync CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/opencollective/odoo-web3/cmd/chain-sync/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		os.Exit(1)
	}
}
