// Package main is wlmctl, the operator CLI for the controller RPC path:
// cancel, signal, requeue, and update act directly against a running
// wlmd over ctrlclient, mirroring cmd/cli's urfave/cli command shape.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var (
	build     string
	buildtime string
)

func main() {
	app := cli.NewApp()
	app.Name = "wlmctl"
	app.Usage = "control running jobs against a wlmd controller"
	app.Version = build
	app.EnableBashCompletion = true
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "controller", Value: "127.0.0.1:6817", Usage: "primary controller address (ipv4:port)"},
		cli.StringFlag{Name: "backup", Value: "", Usage: "secondary controller address (ipv4:port)"},
	}
	app.Commands = []cli.Command{
		placeCommand,
		cancelCommand,
		signalCommand,
		requeueCommand,
		updateCommand,
	}
	app.CommandNotFound = func(c *cli.Context, name string) {
		fmt.Fprintf(c.App.ErrWriter, "wlmctl: unknown command %q\n", name)
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "wlmctl: %v\n", err)
		os.Exit(1)
	}
}
