// veda - A terminal chat widget and CLI for the Veda sales assistant.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/jeranaias/veda/internal/cli"
	"github.com/jeranaias/veda/internal/config"
	"github.com/jeranaias/veda/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run())
}

func run() int {
	cmd, args, err := cli.Parse(os.Args[1:])
	if err != nil {
		cli.DisplayError(errWriter(args), err, args.JSON)
		if !args.JSON {
			cli.PrintUsage(os.Stderr)
		}
		return cli.GetExitCode(err)
	}

	// help and version never need a config.
	switch cmd {
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		return cli.ExitSuccess
	case cli.CmdVersion:
		if err := cli.RunVersion(cli.NewEnv(nil, nil), args); err != nil {
			return cli.ExitGeneralError
		}
		return cli.ExitSuccess
	}

	// A .env in the working directory may carry VEDA_* overrides.
	_ = godotenv.Load()

	cfg, err := loadConfig(args)
	if err != nil && cmd == cli.CmdConfig && (args.Subcommand == "reset" || args.Subcommand == "path") {
		// A broken file must not block repairing it.
		cfg, err = config.Default(), nil
	}
	if err != nil {
		cli.DisplayError(errWriter(args), err, args.JSON)
		return cli.GetExitCode(err)
	}

	logCfg := cfg.LogConfig()
	if cmd == cli.CmdServe && logCfg.Mode == logging.ModeFile {
		logCfg.Mode = logging.ModeTee
	}
	log, err := logging.New(logCfg)
	if err != nil {
		log = zap.NewNop()
	}
	defer log.Sync()
	log.Debug("starting", zap.String("command", cmd.String()), zap.Stringer("config", cfg))

	env := cli.NewEnv(cfg, log)
	defer env.Close()

	if err := cli.Run(context.Background(), cmd, args, env); err != nil {
		log.Error("command failed", zap.String("command", cmd.String()), zap.Error(err))
		cli.DisplayError(errWriter(args), err, args.JSON)
		return cli.GetExitCode(err)
	}
	return cli.ExitSuccess
}

// loadConfig reads the config file, then applies command-line overrides and
// validates the result.
func loadConfig(args cli.Args) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, &cli.ConfigError{Path: args.ConfigPath, Err: err}
	}

	args.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, &cli.ConfigError{Path: args.ConfigPath, Err: err}
	}
	return cfg, nil
}

// errWriter is stdout in JSON mode, so scripts read one document, and
// stderr otherwise.
func errWriter(args cli.Args) *os.File {
	if args.JSON {
		return os.Stdout
	}
	return os.Stderr
}
