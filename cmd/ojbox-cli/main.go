package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"ojbox/internal/cli/command"
	"ojbox/internal/cli/config"
	httpclient "ojbox/internal/cli/http"
	"ojbox/internal/cli/repl"
	"ojbox/internal/cli/state"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 30s)")
	statePath := flag.String("state", "", "Override build state path")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.StatePath = *statePath
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	lastBuild, err := state.Load(cfg.StatePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load build state failed: %v\n", err)
		os.Exit(1)
	}

	commands := command.Registry()
	if err := os.MkdirAll(filepath.Dir(cfg.HistoryFile), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create history dir failed: %v\n", err)
		os.Exit(1)
	}
	rl, err := repl.NewReadline(cfg.HistoryFile, commands)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init readline failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = rl.Close()
	}()

	client := httpclient.New(cfg.BaseURL, cfg.Timeout)
	session := repl.New(client, commands, &lastBuild, cfg.StatePath, *cfg.PrettyJSON, rl, rl.Stdout())
	session.Run(context.Background())
}
