package main

import (
	"fmt"
	"os"

	"github.com/dunamismax/pixeldesk/internal/cli"
	"github.com/dunamismax/pixeldesk/internal/pipeline"
)

var version = "dev"

func main() {
	if err := pipeline.Startup(); err != nil {
		fmt.Fprintf(os.Stderr, "start image runtime: %v\n", err)
		os.Exit(1)
	}

	cli.SetVersion(version)
	err := cli.NewRootCmd().Execute()
	pipeline.Shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(cli.ExitCode(err))
}
