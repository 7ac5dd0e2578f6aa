package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "multiqueue",
		Usage: "Drive a multi-queue dispatcher with synthetic producers",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the producers, drain every queue and print what each consumer received",
				Flags:  runFlags(),
				Action: run,
			},
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
