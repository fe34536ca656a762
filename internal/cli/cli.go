// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command line parsing, usage and version output for veda.

package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/jeranaias/veda/internal/config"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdAsk
	CmdHistory
	CmdSession
	CmdHealth
	CmdFeedback
	CmdTicket
	CmdServe
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name as typed on the command line.
func (c Command) String() string {
	switch c {
	case CmdTUI:
		return "tui"
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdHistory:
		return "history"
	case CmdSession:
		return "session"
	case CmdHealth:
		return "health"
	case CmdFeedback:
		return "feedback"
	case CmdTicket:
		return "ticket"
	case CmdServe:
		return "serve"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	URL        string
	Legacy     bool
	JSON       bool
	Verbose    bool
	ConfigPath string

	// Command-specific
	Subcommand  string
	Target      string // history show|export <n|id>
	Query       string // ask question, feedback message, history search
	Addr        string // serve --addr
	Category    string
	Priority    string
	Subject     string
	Description string
	Format      string // history export --format
	OutputDir   string // history export --out; "-" writes to stdout

	// Raw args after the command name
	Raw []string
}

// Apply writes the global flag overrides into cfg.
func (a Args) Apply(cfg *config.Config) {
	if a.URL != "" {
		cfg.Backend.URL = a.URL
	}
	if a.Legacy {
		cfg.Backend.Legacy = true
	}
	if a.Verbose {
		cfg.Logging.Level = "debug"
	}
	if a.Addr != "" {
		cfg.Server.Addr = a.Addr
	}
}

const usageText = `veda - terminal client for the Veda sales assistant

Usage:
  veda                          Start the chat widget (default)
  veda tui                      Start the chat widget
  veda chat                     Line-based chat (works without a full terminal)
  veda ask "question"           Ask a single question and print the answer
  veda history [list]           List saved conversations
  veda history show <n|id>      Print a saved conversation (1 = most recent)
  veda history search <text>    Find saved conversations mentioning text
  veda history export <n|id>    Export a conversation
    --format FMT                markdown (default), json or html
    --out DIR                   Output directory, or - for stdout
  veda history clear            Delete all saved conversations
  veda session [show]           Show the persisted backend session id
  veda session reset            Forget the backend session id
  veda health                   Check the chat backend
  veda feedback "message"       Send product feedback
    --category NAME             Feedback category (default: General)
  veda ticket                   Open a support ticket
    --subject TEXT              Required
    --category NAME             Technical, Billing or Feature
    --priority NAME             Low, Medium (default), High or Urgent
    --description TEXT          Required
  veda serve                    Run the local dev backend
    --addr HOST:PORT            Listen address (default :5002)
  veda config [show]            Show the effective configuration
  veda config get <key>         Print one value, e.g. backend.url
  veda config set <key> <value> Write a value to the config file
  veda config path              Show the config file location
  veda config reset             Restore the default config file
  veda version                  Show version information
  veda help                     Show this help

Global flags:
  --url URL                     Backend base URL
  --legacy                      Use the non-streaming JSON endpoint
  --json                        Machine-readable output
  -v, --verbose                 Debug logging
  --config FILE                 Config file (default ~/.veda/config.toml)

Chat commands:
  /new  /regen  /like  /dislike  /history  /help  /quit
`

// PrintUsage writes the usage text to w.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, usageText)
}

// PrintVersion writes version information to w.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "veda %s\n", Version)
	fmt.Fprintf(w, "  commit:  %s\n", GitCommit)
	fmt.Fprintf(w, "  built:   %s\n", BuildDate)
	fmt.Fprintf(w, "  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// RunVersion handles the "version" command.
func RunVersion(env *Env, args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print(env.Out)
	}
	PrintVersion(env.Out)
	return nil
}

// =============================================================================
// DISPATCH
// =============================================================================

// Run executes cmd.
func Run(ctx context.Context, cmd Command, args Args, env *Env) error {
	switch cmd {
	case CmdTUI:
		return RunTUI(ctx, env, args)
	case CmdChat:
		return RunChat(ctx, env, args)
	case CmdAsk:
		return RunAsk(ctx, env, args)
	case CmdHistory:
		return RunHistory(ctx, env, args)
	case CmdSession:
		return RunSession(ctx, env, args)
	case CmdHealth:
		return RunHealth(ctx, env, args)
	case CmdFeedback:
		return RunFeedback(ctx, env, args)
	case CmdTicket:
		return RunTicket(ctx, env, args)
	case CmdServe:
		return RunServe(ctx, env, args)
	case CmdConfig:
		return RunConfig(env, args)
	case CmdVersion:
		return RunVersion(env, args)
	default:
		PrintUsage(env.Out)
		return nil
	}
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses the command line (without the program name).
func Parse(argv []string) (Command, Args, error) {
	remaining, args, err := parseGlobalFlags(argv)
	if err != nil {
		return CmdHelp, args, err
	}

	if len(remaining) == 0 {
		return CmdTUI, args, nil
	}

	name := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	args.Raw = remaining

	switch name {
	case "tui":
		return CmdTUI, args, nil

	case "chat", "repl":
		return CmdChat, args, nil

	case "ask":
		p := NewArgParser(remaining)
		args.Query = strings.TrimSpace(JoinPositionalArgs(p, 0))
		if args.Query == "" {
			return CmdAsk, args, ErrMissingArgument("question", `veda ask "What is the pricing?"`)
		}
		return CmdAsk, args, nil

	case "history":
		p := NewArgParser(remaining)
		args.Subcommand = strings.ToLower(p.Subcommand())
		switch args.Subcommand {
		case "", "list", "ls":
			args.Subcommand = "list"
		case "show":
			args.Target = p.Positional(1)
			if args.Target == "" {
				return CmdHistory, args, ErrMissingArgument("entry", "veda history show 1")
			}
		case "export":
			args.Target = p.Positional(1)
			if args.Target == "" {
				return CmdHistory, args, ErrMissingArgument("entry", "veda history export 1 --format html")
			}
			args.Format = p.FlagOrDefault("format", "markdown")
			args.OutputDir = p.Flag("out")
		case "search", "find":
			args.Subcommand = "search"
			args.Query = strings.TrimSpace(JoinPositionalArgs(p, 1))
			if args.Query == "" {
				return CmdHistory, args, ErrMissingArgument("query", "veda history search pricing")
			}
		case "clear":
		default:
			return CmdHistory, args, NewValidationErrorWithExample("subcommand", args.Subcommand,
				"expected list, show, search, export or clear", "veda history list")
		}
		return CmdHistory, args, nil

	case "session":
		p := NewArgParser(remaining)
		args.Subcommand = strings.ToLower(p.Subcommand())
		switch args.Subcommand {
		case "", "show":
			args.Subcommand = "show"
		case "reset":
		default:
			return CmdSession, args, NewValidationErrorWithExample("subcommand", args.Subcommand,
				"expected show or reset", "veda session reset")
		}
		return CmdSession, args, nil

	case "health", "status":
		return CmdHealth, args, nil

	case "feedback":
		p := NewArgParser(remaining)
		args.Query = strings.TrimSpace(JoinPositionalArgs(p, 0))
		args.Category = p.Flag("category")
		if args.Query == "" {
			return CmdFeedback, args, ErrMissingArgument("message", `veda feedback "Love the lead scoring"`)
		}
		return CmdFeedback, args, nil

	case "ticket":
		p := NewArgParser(remaining)
		args.Subject = p.Flag("subject")
		args.Category = p.Flag("category")
		args.Priority = p.Flag("priority")
		args.Description = p.Flag("description")
		if args.Description == "" {
			args.Description = strings.TrimSpace(JoinPositionalArgs(p, 0))
		}
		return CmdTicket, args, nil

	case "serve", "server":
		p := NewArgParser(remaining)
		args.Addr = p.Flag("addr")
		return CmdServe, args, nil

	case "config":
		p := NewArgParser(remaining)
		args.Subcommand = strings.ToLower(p.Subcommand())
		switch args.Subcommand {
		case "", "show":
			args.Subcommand = "show"
		case "get":
			args.Target = p.Positional(1)
			if args.Target == "" {
				return CmdConfig, args, ErrMissingArgument("key", "veda config get backend.url")
			}
		case "set":
			args.Target = p.Positional(1)
			args.Query = strings.TrimSpace(JoinPositionalArgs(p, 2))
			if args.Target == "" || p.PositionalCount() < 3 {
				return CmdConfig, args, ErrMissingArgument("key and value", "veda config set storage.backend sqlite")
			}
		case "path", "reset":
		default:
			return CmdConfig, args, NewValidationErrorWithExample("subcommand", args.Subcommand,
				"expected show, get, set, path or reset", "veda config show")
		}
		return CmdConfig, args, nil

	case "version", "--version":
		return CmdVersion, args, nil

	case "help", "-h", "--help":
		return CmdHelp, args, nil

	default:
		return CmdHelp, args, NewValidationErrorWithExample("command", name,
			"unknown command", "veda help")
	}
}

// parseGlobalFlags extracts global flags from anywhere in argv.
func parseGlobalFlags(argv []string) ([]string, Args, error) {
	var (
		remaining []string
		args      Args
	)

	// takeValue returns the value of a flag given as "--name value" or
	// "--name=value".
	takeValue := func(i *int, arg, name string) (string, bool, error) {
		if v, ok := strings.CutPrefix(arg, name+"="); ok {
			return v, true, nil
		}
		if arg != name {
			return "", false, nil
		}
		if *i+1 >= len(argv) {
			return "", true, ErrMissingArgument(name, "veda "+name+" <value>")
		}
		*i++
		return argv[*i], true, nil
	}

	for i := 0; i < len(argv); i++ {
		arg := argv[i]

		switch arg {
		case "--legacy":
			args.Legacy = true
			continue
		case "--json":
			args.JSON = true
			continue
		case "-v", "--verbose":
			args.Verbose = true
			continue
		}

		if v, ok, err := takeValue(&i, arg, "--url"); ok {
			if err != nil {
				return nil, args, err
			}
			args.URL = v
			continue
		}
		if v, ok, err := takeValue(&i, arg, "--config"); ok {
			if err != nil {
				return nil, args, err
			}
			args.ConfigPath = v
			continue
		}

		remaining = append(remaining, arg)
	}

	return remaining, args, nil
}
