// Package main provides the convergence command: the security event simulator
// server, a headless demo runner and a notification watcher.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "convergence",
		Usage:                 "Simulate security events and the workflows they trigger",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			RunCommand(),
			DemoCommand(),
			TemplatesCommand(),
			WatchCommand(),
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
