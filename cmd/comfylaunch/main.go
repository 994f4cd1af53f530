// Package main is the entry point for the ComfyUI launcher.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/NICKLING017/ComfyUIlauncher/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Signals cancel the command context; run and console stop the
	// server before returning.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return cli.Execute(ctx, os.Args[1:], cli.DefaultEnv())
}
