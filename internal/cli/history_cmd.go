// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history_cmd.go - Saved conversation commands.
//
// Command: history [subcommand]
// Short:   List, print, search or clear saved conversations
//
// Subcommands:
//   list (default)      List saved conversations, newest first (alias: ls)
//   show <n|id>         Print one conversation; n counts from 1 = most recent
//   search <text>       List conversations mentioning text (alias: find)
//   export <n|id>       Write one conversation as markdown, json or html
//   clear               Delete all saved conversations
//
// Examples:
//   veda history
//   veda history show 1
//   veda history show 0192f1c4-7d2e-7a51-9c1e-2b8f5d7e3a10
//   veda history search pricing
//   veda history export 1 --format html --out ~/Documents
//   veda history export 2 --format json --out -
//   veda history --json
//
// Export flags:
//   --format FMT        markdown (default), json or html
//   --out DIR           Output directory (default: current directory); "-" prints
//
// The widget and the chat REPL save a conversation when a new one starts.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/jeranaias/veda/internal/export"
	"github.com/jeranaias/veda/internal/history"
	"github.com/jeranaias/veda/internal/model"
)

// RunHistory handles the "history" command.
func RunHistory(ctx context.Context, env *Env, args Args) error {
	hist, err := env.History()
	if err != nil {
		return err
	}

	switch args.Subcommand {
	case "show":
		return historyShow(env, hist, args)
	case "search":
		entries, err := hist.Search(args.Query)
		if err != nil {
			return NewCommandError("history", "search", args.Query, err)
		}
		return historyList(env, entries, args.JSON)
	case "export":
		return historyExport(env, hist, args)
	case "clear":
		return historyClear(env, hist, args.JSON)
	default:
		entries, err := hist.List()
		if err != nil {
			return NewCommandError("history", "list", "saved conversations", err)
		}
		return historyList(env, entries, args.JSON)
	}
}

func historyList(env *Env, entries []history.Entry, jsonMode bool) error {
	if jsonMode {
		data := make([]HistoryEntryData, 0, len(entries))
		for i, e := range entries {
			data = append(data, HistoryEntryData{
				Index:     i + 1,
				ID:        e.ID,
				Date:      e.Date,
				Preview:   e.Preview,
				SessionID: e.SessionID,
				Messages:  len(e.Messages),
			})
		}
		return NewJSONResponse("history", data).Print(env.Out)
	}
	printHistoryList(env.Out, entries)
	return nil
}

// printHistoryList prints entries numbered from 1 with their age.
func printHistoryList(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, DimStyle.Render("No saved conversations yet."))
		return
	}
	fmt.Fprintln(w, TitleStyle.Render("Saved conversations"))
	for i, e := range entries {
		fmt.Fprintf(w, "  %s %-44s %s\n",
			DimStyle.Render(fmt.Sprintf("%2d.", i+1)),
			e.Preview,
			DimStyle.Render(fmt.Sprintf("%s ago, %d questions", formatDuration(timeNow().Sub(e.Date)), e.UserMessages())))
	}
}

// findEntry resolves a 1-based index or an entry id.
func findEntry(hist *history.Store, ref string) (history.Entry, error) {
	var (
		entry history.Entry
		err   error
	)
	if _, convErr := strconv.Atoi(ref); convErr == nil {
		n, parseErr := ParseIntWithValidation(ref, "entry")
		if parseErr != nil {
			return entry, NewValidationErrorWithExample("entry", ref, "counts from 1", "veda history show 1")
		}
		entry, err = hist.GetByIndex(n - 1)
	} else {
		entry, err = hist.Get(ref)
	}
	if errors.Is(err, history.ErrEntryNotFound) {
		return entry, ErrNotFound("conversation", ref)
	}
	return entry, err
}

func historyShow(env *Env, hist *history.Store, args Args) error {
	entry, err := findEntry(hist, args.Target)
	if err != nil {
		return err
	}
	if args.JSON {
		return NewJSONResponse("history", entry).Print(env.Out)
	}

	fmt.Fprintln(env.Out, TitleStyle.Render(entry.Preview))
	fmt.Fprintf(env.Out, "%s%s\n", RenderLabel("Saved"), entry.Date.Local().Format("Jan 2, 2006 15:04"))
	if entry.SessionID != "" {
		fmt.Fprintf(env.Out, "%s%s\n", RenderLabel("Session"), entry.SessionID)
	}
	fmt.Fprintln(env.Out, RenderSeparator())

	width := GetTerminalWidth()
	for _, m := range entry.Messages {
		label := PromptStyle
		if m.Role == model.RoleAssistant {
			label = AssistantStyle
		}
		fmt.Fprintf(env.Out, "%s %s\n", label.Render(m.Role.DisplayName()), DimStyle.Render(m.Timestamp.Local().Format("15:04")))
		fmt.Fprintln(env.Out, WrapText(m.Content, width))
		if m.Feedback != model.FeedbackNone {
			fmt.Fprintln(env.Out, DimStyle.Render("rated: "+string(m.Feedback)))
		}
		fmt.Fprintln(env.Out)
	}
	return nil
}

func historyExport(env *Env, hist *history.Store, args Args) error {
	entry, err := findEntry(hist, args.Target)
	if err != nil {
		return err
	}

	opts := export.DefaultOptions()
	opts.Now = timeNow
	if args.OutputDir != "" && args.OutputDir != "-" {
		opts.OutputDir = args.OutputDir
	}
	exp, err := export.New(args.Format, opts)
	if err != nil {
		return NewValidationErrorWithExample("format", args.Format,
			"expected markdown, json or html", "veda history export 1 --format html")
	}

	if args.OutputDir == "-" {
		content, err := exp.Export(entry)
		if err != nil {
			return NewCommandError("history", "export", args.Target, err)
		}
		_, err = env.Out.Write(content)
		return err
	}

	path, err := export.ExportToFile(entry, exp, opts)
	if err != nil {
		return NewCommandError("history", "export", args.Target, err)
	}
	env.Log.Debug("exported conversation", zap.String("id", entry.ID), zap.String("path", path))
	if args.JSON {
		return NewJSONResponse("history", map[string]string{"id": entry.ID, "path": path, "mime": exp.MimeType()}).Print(env.Out)
	}
	fmt.Fprintln(env.Out, SuccessStyle.Render("Exported to "+path))
	return nil
}

func historyClear(env *Env, hist *history.Store, jsonMode bool) error {
	entries, err := hist.List()
	if err != nil {
		return NewCommandError("history", "clear", "saved conversations", err)
	}
	if err := hist.Clear(); err != nil {
		return NewCommandError("history", "clear", "saved conversations", err)
	}
	if jsonMode {
		return NewJSONResponse("history", map[string]int{"cleared": len(entries)}).Print(env.Out)
	}
	fmt.Fprintln(env.Out, SuccessStyle.Render(fmt.Sprintf("Cleared %d saved conversations.", len(entries))))
	return nil
}
