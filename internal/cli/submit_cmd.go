// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// submit_cmd.go - Backend health, feedback and support ticket commands.
//
// Command: health
// Short:   Check that the chat backend is up
// Aliases: status
//
// Command: feedback <message>
// Short:   Send product feedback
//
// Command: ticket
// Short:   Open a support ticket
//
// Examples:
//   veda health
//   veda feedback "Lead scoring is great" --category Praise
//   veda ticket --subject "Sync broken" --category Technical --priority High \
//     --description "Contacts stopped syncing from HubSpot yesterday"
//
// Flags (ticket):
//   --subject TEXT      Required
//   --category NAME     Required: Technical, Billing or Feature
//   --priority NAME     Low, Medium (default), High or Urgent
//   --description TEXT  Required; trailing words are used when omitted

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/veda/internal/chatapi"
)

// =============================================================================
// HEALTH
// =============================================================================

// RunHealth handles the "health" command.
func RunHealth(ctx context.Context, env *Env, args Args) error {
	client := env.Client()

	start := time.Now()
	status, err := client.Health(ctx)
	latency := time.Since(start)
	if err != nil {
		return NewCommandError("health", "check", client.BaseURL(), err)
	}

	if args.JSON {
		if err := NewJSONResponse("health", HealthData{
			URL:         client.BaseURL(),
			Status:      status.Status,
			Service:     status.Service,
			Version:     status.Version,
			DBConnected: status.DBConnected,
			LatencyMs:   latency.Milliseconds(),
		}).Print(env.Out); err != nil {
			return err
		}
	} else {
		db := "disconnected"
		if status.DBConnected {
			db = "connected"
		}
		fmt.Fprintf(env.Out, "%s%s\n", RenderLabel("Backend"), client.BaseURL())
		fmt.Fprintf(env.Out, "%s%s\n", RenderLabel("Status"), RenderStatus(status.Status))
		if status.Service != "" {
			fmt.Fprintf(env.Out, "%s%s %s\n", RenderLabel("Service"), status.Service, DimStyle.Render(status.Version))
		}
		fmt.Fprintf(env.Out, "%s%s\n", RenderLabel("Database"), RenderStatus(db))
		fmt.Fprintf(env.Out, "%s%s\n", RenderLabel("Latency"), formatDurationShort(latency))
	}

	if !status.OK() {
		return NewCommandError("health", "check", client.BaseURL(),
			fmt.Errorf("backend reported status %q", status.Status))
	}
	return nil
}

// =============================================================================
// FEEDBACK
// =============================================================================

// RunFeedback handles the "feedback" command.
func RunFeedback(ctx context.Context, env *Env, args Args) error {
	res, err := env.Client().SubmitFeedback(ctx, chatapi.FeedbackRequest{
		Message:  args.Query,
		Category: args.Category,
	})
	if err != nil {
		return NewCommandError("feedback", "submit", "feedback", err)
	}
	env.Log.Info("feedback submitted", zap.String("category", args.Category))
	return printSubmitResult(env, args.JSON, "feedback", res, "Thanks, your feedback was sent.")
}

// =============================================================================
// TICKET
// =============================================================================

// RunTicket handles the "ticket" command.
func RunTicket(ctx context.Context, env *Env, args Args) error {
	req, err := buildTicket(args)
	if err != nil {
		return err
	}

	res, err := env.Client().SubmitTicket(ctx, req)
	if err != nil {
		return NewCommandError("ticket", "submit", req.Subject, err)
	}
	env.Log.Info("ticket submitted",
		zap.String("ticket_id", res.TicketID),
		zap.String("category", req.Category),
		zap.String("priority", req.Priority))

	done := "Ticket created."
	if res.TicketID != "" {
		done = "Ticket " + res.TicketID + " created."
	}
	return printSubmitResult(env, args.JSON, "ticket", res, done)
}

// buildTicket validates ticket flags and normalises category and priority
// to the backend's spelling.
func buildTicket(args Args) (chatapi.TicketRequest, error) {
	const example = `veda ticket --subject "Sync broken" --category Technical --description "..."`

	req := chatapi.TicketRequest{
		Subject:     strings.TrimSpace(args.Subject),
		Description: strings.TrimSpace(args.Description),
	}
	if req.Subject == "" {
		return req, ErrMissingArgument("--subject", example)
	}
	if req.Description == "" {
		return req, ErrMissingArgument("--description", example)
	}

	category, ok := matchChoice(args.Category, chatapi.TicketCategories)
	if !ok {
		return req, NewValidationErrorWithExample("category", args.Category,
			"must be one of "+strings.Join(chatapi.TicketCategories, ", "), example)
	}
	req.Category = category

	if args.Priority != "" {
		priority, ok := matchChoice(args.Priority, chatapi.TicketPriorities)
		if !ok {
			return req, NewValidationErrorWithExample("priority", args.Priority,
				"must be one of "+strings.Join(chatapi.TicketPriorities, ", "), example)
		}
		req.Priority = priority
	}
	return req, nil
}

// matchChoice finds value in choices, ignoring case.
func matchChoice(value string, choices []string) (string, bool) {
	value = strings.TrimSpace(value)
	for _, c := range choices {
		if strings.EqualFold(value, c) {
			return c, true
		}
	}
	return "", false
}

func printSubmitResult(env *Env, jsonMode bool, command string, res *chatapi.SubmitResult, done string) error {
	if jsonMode {
		return NewJSONResponse(command, SubmitData{
			Status:   res.Status,
			Message:  res.Message,
			TicketID: res.TicketID,
		}).Print(env.Out)
	}
	fmt.Fprintln(env.Out, SuccessStyle.Render(done))
	if res.Message != "" {
		fmt.Fprintln(env.Out, DimStyle.Render(res.Message))
	}
	return nil
}
