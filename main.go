package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"

	"github.com/rudderlabs/rudder-datalake-lab/cmd/devtool/commands"
)

var version = "Not an official release. Get the latest release from the github repo."

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("INFO: No .env file found.")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	app := &cli.App{
		Name:     "datalake-lab",
		Usage:    "experiment with glue catalog schemas for partitioned s3 datasets",
		Version:  version,
		Commands: commands.DefaultList,
	}

	exitCode := 0
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitCode = 1
	}
	cancel()
	os.Exit(exitCode)
}
