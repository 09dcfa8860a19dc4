package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cliplugins "lanchat/internal/cli_plugins"
	"lanchat/pkg/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt := cliplugins.NewRuntime()

	c := cli.NewCLI("lanchat", "Serverless chat and file sharing on the local network")
	rt.BindFlags(c.RootCmd().PersistentFlags())

	c.RegisterPlugin(cliplugins.NewRunCommand(rt))
	c.RegisterPlugin(cliplugins.NewPeersCommand(rt))
	c.RegisterPlugin(cliplugins.NewWhoamiCommand(rt))
	c.RegisterPlugin(cliplugins.NewHistoryCommand(rt))

	if err := c.Run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
