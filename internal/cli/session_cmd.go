// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session_cmd.go - Backend session commands.
//
// Command: session [subcommand]
// Short:   Show or forget the persisted backend session id
//
// Subcommands:
//   show (default)      Print the session id the next message will continue
//   reset               Forget it; the next message starts a new session
//
// Examples:
//   veda session
//   veda session reset
//   veda session --json
//
// The id is shared by the widget and the chat REPL. Resetting does not touch
// saved history.

package cli

import (
	"context"
	"errors"
	"fmt"

	vchat "github.com/jeranaias/veda/internal/chat"
	"github.com/jeranaias/veda/internal/kv"
)

// RunSession handles the "session" command.
func RunSession(ctx context.Context, env *Env, args Args) error {
	store, err := env.Store()
	if err != nil {
		return err
	}
	backend := env.Config.Storage.Backend

	if args.Subcommand == "reset" {
		if err := store.Remove(vchat.SessionKey); err != nil {
			return NewCommandError("session", "reset", "session id", err)
		}
		if args.JSON {
			return NewJSONResponse("session", SessionData{Store: backend}).Print(env.Out)
		}
		fmt.Fprintln(env.Out, SuccessStyle.Render("Session reset.")+" "+DimStyle.Render("The next message starts a new conversation on the backend."))
		return nil
	}

	id, err := store.Get(vchat.SessionKey)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return NewCommandError("session", "show", "session id", err)
	}
	if args.JSON {
		return NewJSONResponse("session", SessionData{SessionID: id, Store: backend}).Print(env.Out)
	}

	fmt.Fprintf(env.Out, "%s%s\n", RenderLabel("Store"), backend)
	if id == "" {
		fmt.Fprintf(env.Out, "%s%s\n", RenderLabel("Session"), DimStyle.Render("(none yet)"))
		return nil
	}
	fmt.Fprintf(env.Out, "%s%s\n", RenderLabel("Session"), ValueStyle.Render(id))
	return nil
}
