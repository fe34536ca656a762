// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Config command implementation for veda.
//
// Command: config [subcommand]
// Short:   View and modify configuration
//
// Subcommands:
//   show (default)      Display the effective configuration
//   get <key>           Print one value
//   set <key> <value>   Write a value to the config file
//   path                Show the config file path
//   reset               Replace the config file with defaults
//
// Examples:
//   veda config
//   veda config get backend.url
//   veda config set storage.backend sqlite
//   veda config set voice.enabled true
//   veda config set server.allowed_origins "http://localhost:3000, http://localhost:3001"
//   veda config --json
//
// "show" and "get" report the effective values, after VEDA_* environment
// overrides and command-line flags. "set" and "reset" only touch the file.
//
// Flags:
//   --json              Output in JSON format

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/veda/internal/config"
)

// secretKeys are masked by show and get.
var secretKeys = map[string]bool{
	"storage.redis_password": true,
}

// RunConfig handles the "config" command.
func RunConfig(env *Env, args Args) error {
	switch args.Subcommand {
	case "get":
		return configGet(env, args)
	case "set":
		return configSet(env, args)
	case "path":
		return configPath(env, args)
	case "reset":
		return configReset(env, args)
	default:
		return configShow(env, args)
	}
}

// configFile is the file set and reset write to.
func configFile(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	path, err := config.ConfigPath()
	if err != nil {
		return "", &ConfigError{Err: err}
	}
	return path, nil
}

func configShow(env *Env, args Args) error {
	values := make(map[string]string)
	for _, key := range config.Keys() {
		values[key] = configValue(env.Config, key)
	}
	if args.JSON {
		return NewJSONResponse("config", values).Print(env.Out)
	}

	section := ""
	for _, key := range config.Keys() {
		head, name, _ := strings.Cut(key, ".")
		if head != section {
			if section != "" {
				fmt.Fprintln(env.Out)
			}
			fmt.Fprintln(env.Out, TitleStyle.Render("["+head+"]"))
			section = head
		}
		fmt.Fprintf(env.Out, "  %-24s %s\n", name, values[key])
	}
	return nil
}

func configGet(env *Env, args Args) error {
	if _, err := env.Config.Get(args.Target); err != nil {
		return NewValidationErrorWithExample("key", args.Target, err.Error(), "veda config get backend.url")
	}
	value := configValue(env.Config, args.Target)
	if args.JSON {
		return NewJSONResponse("config", map[string]string{"key": args.Target, "value": value}).Print(env.Out)
	}
	fmt.Fprintln(env.Out, value)
	return nil
}

func configSet(env *Env, args Args) error {
	path, err := configFile(args)
	if err != nil {
		return err
	}

	// Start from the file alone so environment overrides are not persisted.
	cfg := config.Default()
	if _, statErr := os.Stat(path); statErr == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return &ConfigError{Path: path, Err: err}
		}
	} else if !errors.Is(statErr, os.ErrNotExist) {
		return &ConfigError{Path: path, Err: statErr}
	}

	if err := cfg.Set(args.Target, args.Query); err != nil {
		return NewValidationErrorWithExample("key", args.Target, err.Error(), "veda config set storage.backend sqlite")
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return NewCommandError("config", "set", path, err)
	}
	env.Log.Info("config updated", zap.String("key", args.Target), zap.String("path", path))

	value := configValue(cfg, args.Target)
	if args.JSON {
		return NewJSONResponse("config", map[string]string{"key": args.Target, "value": value, "path": path}).Print(env.Out)
	}
	fmt.Fprintln(env.Out, SuccessStyle.Render(fmt.Sprintf("Set %s = %s", args.Target, value)))
	return nil
}

func configPath(env *Env, args Args) error {
	path, err := configFile(args)
	if err != nil {
		return err
	}
	_, statErr := os.Stat(path)
	exists := statErr == nil
	if args.JSON {
		return NewJSONResponse("config", map[string]any{"path": path, "exists": exists}).Print(env.Out)
	}
	fmt.Fprintln(env.Out, path)
	if !exists {
		fmt.Fprintln(env.Out, DimStyle.Render("(not created yet, defaults apply)"))
	}
	return nil
}

func configReset(env *Env, args Args) error {
	path, err := configFile(args)
	if err != nil {
		return err
	}
	if err := config.SaveTOML(config.Default(), path); err != nil {
		return NewCommandError("config", "reset", path, err)
	}
	if args.JSON {
		return NewJSONResponse("config", map[string]string{"path": path}).Print(env.Out)
	}
	fmt.Fprintln(env.Out, SuccessStyle.Render("Configuration reset to defaults."))
	return nil
}

// configValue formats one value for display, masking secrets.
func configValue(cfg *config.Config, key string) string {
	v, err := cfg.Get(key)
	if err != nil {
		return ""
	}
	var s string
	switch val := v.(type) {
	case []string:
		s = strings.Join(val, ", ")
	default:
		s = fmt.Sprint(val)
	}
	if secretKeys[key] && s != "" {
		return "[REDACTED]"
	}
	return s
}
