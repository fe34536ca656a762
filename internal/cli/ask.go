// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Command: ask
// Short:   Ask a single question and print the answer
//
// Examples:
//   veda ask "What is the pricing?"
//   veda ask --json How does lead scoring work
//   veda --legacy ask pricing
//
// The answer streams to stdout as it arrives. Recommendations follow on
// their own lines. ask never touches the persisted widget session.

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	vchat "github.com/jeranaias/veda/internal/chat"
	"github.com/jeranaias/veda/internal/chatapi"
	"github.com/jeranaias/veda/internal/kv"
	"github.com/jeranaias/veda/internal/model"
	"github.com/jeranaias/veda/internal/stream"
)

// RunAsk handles the "ask" command.
func RunAsk(ctx context.Context, env *Env, args Args) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	transport := &recordingTransport{Transport: env.Transport()}
	conv := model.NewConversation()

	streamed := false
	hook := func(_ string, ev stream.Event) {
		if args.JSON || ev.Type != stream.EventContent {
			return
		}
		fmt.Fprint(env.Out, ev.Chunk)
		streamed = true
	}

	sess := vchat.NewSession(transport, conv, kv.NewMemory(),
		vchat.WithLogger(env.Log),
		vchat.WithEventHook(hook))

	start := time.Now()
	if err := sess.Send(ctx, args.Query); err != nil {
		return NewCommandError("ask", "send", "request rejected", err)
	}
	elapsed := time.Since(start)

	reply, _ := conv.LastAssistantMessage()
	err := transport.Err()
	if chatapi.IsCanceled(err) {
		if !args.JSON {
			fmt.Fprintln(env.Out)
			fmt.Fprintln(env.Err, WarningStyle.Render("[stopped]"))
		}
		return nil
	}

	if args.JSON {
		if err != nil {
			return NewCommandError("ask", "send", "backend request failed", err)
		}
		return NewJSONResponse("ask", AskData{
			Question:        args.Query,
			Answer:          reply.Content,
			Recommendations: reply.Recommendations,
			SessionID:       sess.SessionID(),
			DurationMs:      elapsed.Milliseconds(),
		}).Print(env.Out)
	}

	// Failures and empty replies never stream; print the substitute text.
	if !streamed {
		fmt.Fprint(env.Out, reply.Content)
	}
	fmt.Fprintln(env.Out)
	printRecommendations(env, reply.Recommendations)

	if err != nil {
		return NewCommandError("ask", "send", "backend request failed", err)
	}
	env.Log.Debug("ask complete", zap.Duration("elapsed", elapsed))
	return nil
}

// printRecommendations lists follow-up suggestions, numbered from 1.
func printRecommendations(env *Env, recs []string) {
	if len(recs) == 0 {
		return
	}
	fmt.Fprintln(env.Out)
	fmt.Fprintln(env.Out, DimStyle.Render("Suggested:"))
	for i, rec := range recs {
		fmt.Fprintf(env.Out, "  %s %s\n", DimStyle.Render(fmt.Sprintf("%d.", i+1)), rec)
	}
}
