// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL.
//
// Command: chat
// Short:   Talk to Veda line by line in the terminal
//
// Examples:
//   veda chat
//   veda --legacy chat
//   veda --url http://localhost:8000 chat
//
// The REPL shares the persisted backend session with the widget, so a
// conversation started in one continues in the other. Replies stream to
// stdout as they arrive. Ctrl+C stops the reply in flight; Ctrl+C at the
// prompt or Ctrl+D leaves.
//
// Commands:
//   /new                Save this conversation and start another
//   /regen              Ask again for the last answer
//   /like, /dislike     Rate the last answer (again to clear)
//   /history            List saved conversations
//   /help, /?           Show commands
//   /quit, /q, /exit    Leave (also: exit, quit)

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	vchat "github.com/jeranaias/veda/internal/chat"
	"github.com/jeranaias/veda/internal/chatapi"
	"github.com/jeranaias/veda/internal/config"
	"github.com/jeranaias/veda/internal/history"
	"github.com/jeranaias/veda/internal/kv"
	"github.com/jeranaias/veda/internal/model"
	"github.com/jeranaias/veda/internal/stream"
)

const chatPrompt = "you> "

// =============================================================================
// LINE INPUT
// =============================================================================

// LineReader reads one line of user input.
type LineReader interface {
	ReadInput(prompt string) (string, error)
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI persisting its input history to historyFile.
// An empty historyFile keeps history in memory only.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line, historyFile: historyFile}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if c.historyFile == "" {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with arrow-key history navigation.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes input history to file, owner-readable only.
func (c *ChatCLI) SaveHistory() {
	if c.historyFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// REPL
// =============================================================================

// repl drives one chat session from a LineReader.
type repl struct {
	env       *Env
	in        LineReader
	sess      *vchat.Session
	conv      *model.Conversation
	history   *history.Store
	transport *recordingTransport

	// streamed is set once any content of the current reply was printed.
	streamed bool
}

// RunChat handles the "chat" command.
func RunChat(ctx context.Context, env *Env, args Args) error {
	store, err := env.Store()
	if err != nil {
		return err
	}
	hist, err := env.History()
	if err != nil {
		return err
	}

	historyFile := ""
	if dir, err := config.ConfigDir(); err == nil {
		historyFile = filepath.Join(dir, "chat_input_history")
	}
	in := NewChatCLI(historyFile)
	defer in.Close()

	return runREPL(ctx, env, in, store, hist)
}

func runREPL(ctx context.Context, env *Env, in LineReader, store kv.Store, hist *history.Store) error {
	r := &repl{
		env:       env,
		in:        in,
		conv:      model.NewConversation(model.Greeting(timeNow())),
		history:   hist,
		transport: &recordingTransport{Transport: env.Transport()},
	}
	r.sess = vchat.NewSession(r.transport, r.conv, store,
		vchat.WithLogger(env.Log),
		vchat.WithHistory(hist),
		vchat.WithEventHook(r.onEvent))

	r.printWelcome()
	defer r.save()

	for {
		input, err := in.ReadInput(chatPrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(env.Out)
				return nil
			}
			return NewCommandError("chat", "read", "input", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "exit", "quit":
			return nil
		}
		if strings.HasPrefix(input, "/") {
			if !r.command(ctx, input) {
				return nil
			}
			continue
		}

		r.send(ctx, input)
	}
}

func (r *repl) onEvent(_ string, ev stream.Event) {
	if ev.Type != stream.EventContent {
		return
	}
	fmt.Fprint(r.env.Out, ev.Chunk)
	r.streamed = true
}

// send streams one reply. Ctrl+C cancels only this request.
func (r *repl) send(ctx context.Context, text string) {
	before, _ := r.conv.LastAssistantMessage()

	reqCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	r.beginReply()
	if err := r.sess.Send(reqCtx, text); err != nil {
		fmt.Fprintln(r.env.Out)
		fmt.Fprintln(r.env.Err, WarningStyle.Render(err.Error()))
		return
	}
	r.finishReply(before.ID)
}

// regenerate asks again for the last answer.
func (r *repl) regenerate(ctx context.Context) {
	last, ok := r.conv.LastAssistantMessage()
	if !ok {
		fmt.Fprintln(r.env.Out, DimStyle.Render("Nothing to regenerate yet."))
		return
	}
	if _, ok := r.conv.PrecedingUserMessage(last.ID); !ok {
		fmt.Fprintln(r.env.Out, DimStyle.Render("Nothing to regenerate yet."))
		return
	}

	reqCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	r.beginReply()
	r.sess.Regenerate(reqCtx, last.ID)
	r.finishReply(last.ID)
}

func (r *repl) beginReply() {
	r.streamed = false
	fmt.Fprint(r.env.Out, AssistantStyle.Render("veda> "))
}

// finishReply prints whatever did not stream, the stop marker or error, and
// the recommendations. previous is the id of the assistant message that was
// last before the request.
func (r *repl) finishReply(previous string) {
	reply, ok := r.conv.LastAssistantMessage()
	fresh := ok && reply.ID != previous
	if fresh && !r.streamed {
		fmt.Fprint(r.env.Out, reply.Content)
	}
	fmt.Fprintln(r.env.Out)

	err := r.transport.Err()
	switch {
	case chatapi.IsCanceled(err):
		fmt.Fprintln(r.env.Err, WarningStyle.Render("[stopped]"))
	case err != nil:
		r.env.Log.Warn("chat request failed", zap.Error(err))
		fmt.Fprintln(r.env.Err, DimStyle.Render("("+err.Error()+")"))
	}

	if fresh {
		printRecommendations(r.env, reply.Recommendations)
	}
}

// command runs a slash command and reports whether the REPL continues.
func (r *repl) command(ctx context.Context, input string) bool {
	name := strings.ToLower(strings.Fields(input)[0])
	switch name {
	case "/quit", "/q", "/exit":
		return false

	case "/new":
		if err := r.sess.NewChat(); err != nil {
			fmt.Fprintln(r.env.Err, ErrorStyle.Render("Could not reset the session: "+err.Error()))
			return true
		}
		fmt.Fprintln(r.env.Out, SuccessStyle.Render("Started a new conversation."))
		r.printGreeting()

	case "/regen", "/regenerate":
		r.regenerate(ctx)

	case "/like":
		r.rate(model.FeedbackLike)
	case "/dislike":
		r.rate(model.FeedbackDislike)

	case "/history":
		entries, err := r.history.List()
		if err != nil {
			fmt.Fprintln(r.env.Err, ErrorStyle.Render("Could not load history: "+err.Error()))
			return true
		}
		printHistoryList(r.env.Out, entries)

	case "/help", "/?":
		printChatHelp(r.env.Out)

	default:
		fmt.Fprintf(r.env.Out, "%s %s\n", WarningStyle.Render("Unknown command "+name+"."), DimStyle.Render("Type /help for commands."))
	}
	return true
}

func (r *repl) rate(kind model.Feedback) {
	last, ok := r.conv.LastAssistantMessage()
	if !ok {
		fmt.Fprintln(r.env.Out, DimStyle.Render("No answer to rate yet."))
		return
	}
	r.sess.ToggleFeedback(last.ID, kind)

	msg, _ := r.conv.Find(last.ID)
	switch msg.Feedback {
	case model.FeedbackLike:
		fmt.Fprintln(r.env.Out, SuccessStyle.Render("Marked as helpful."))
	case model.FeedbackDislike:
		fmt.Fprintln(r.env.Out, WarningStyle.Render("Marked as not helpful."))
	default:
		fmt.Fprintln(r.env.Out, DimStyle.Render("Rating cleared."))
	}
}

// save keeps the conversation in history on exit. Saving is an upsert by
// session, so a conversation already saved by /new is not duplicated.
func (r *repl) save() {
	if !r.conv.HasUserMessages() {
		return
	}
	if err := r.history.Save(r.conv.SessionID(), r.conv.Messages()); err != nil {
		r.env.Log.Warn("failed to save chat history", zap.Error(err))
		return
	}
	fmt.Fprintln(r.env.Out, DimStyle.Render("Conversation saved to history."))
}

func (r *repl) printWelcome() {
	fmt.Fprintln(r.env.Out, TitleStyle.Render("Veda")+" "+DimStyle.Render("type /help for commands, /quit to leave"))
	if id := r.sess.SessionID(); id != "" {
		fmt.Fprintln(r.env.Out, DimStyle.Render("Continuing session "+id))
	}
	fmt.Fprintln(r.env.Out, RenderSeparator())
	r.printGreeting()
}

func (r *repl) printGreeting() {
	greeting, ok := r.conv.LastAssistantMessage()
	if !ok {
		return
	}
	fmt.Fprintln(r.env.Out, AssistantStyle.Render("veda> ")+greeting.Content)
	printRecommendations(r.env, greeting.Recommendations)
}

func printChatHelp(w io.Writer) {
	commands := []struct{ name, desc string }{
		{"/new", "Save this conversation and start another"},
		{"/regen", "Ask again for the last answer"},
		{"/like, /dislike", "Rate the last answer (again to clear)"},
		{"/history", "List saved conversations"},
		{"/help, /?", "Show this help"},
		{"/quit, /q", "Leave"},
	}
	fmt.Fprintln(w, TitleStyle.Render("Commands"))
	for _, c := range commands {
		fmt.Fprintf(w, "  %-18s %s\n", c.name, DimStyle.Render(c.desc))
	}
	fmt.Fprintln(w, DimStyle.Render("  Ctrl+C stops a reply. Ctrl+D leaves."))
}
