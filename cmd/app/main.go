package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"RecessionLens/internal/domain/errs"
	"RecessionLens/pkg/config"
)

const usage = `usage: recessionlens [-config path] <command> [flags]

commands:
  train      fit the scaler and model on the indicator history and save the artifact
  predict    score indicator history with the latest artifact
  evaluate   score the labeled history and export report.json and predictions.csv
  ingest     load an indicator CSV into ClickHouse
  serve      run the HTTP API
  logs       follow the live log stream of a running server
`

type command func(ctx context.Context, cfg *config.Config, args []string) error

var commands = map[string]command{
	"train":    runTrain,
	"predict":  runPredict,
	"evaluate": runEvaluate,
	"ingest":   runIngest,
	"serve":    runServe,
	"logs":     runLogs,
}

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	name := flag.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		flag.Usage()
		os.Exit(2)
	}

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		exit(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = cmd(ctx, cfg, flag.Args()[1:])
	stop()
	exit(err)
}

// exit prints err tagged with its stage and exits with its kind's code.
func exit(err error) {
	if err == nil {
		os.Exit(0)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(errs.ExitCode(err))
}
