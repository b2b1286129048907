package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/themobileprof/lambdachat/internal/chat"
	"github.com/themobileprof/lambdachat/pkg/llm"
)

const (
	userPrompt      = "you> "
	assistantPrefix = "assistant> "
)

// runREPL reads user lines from in until EOF, /quit or ctx is done
func runREPL(ctx context.Context, engine *chat.Engine, in io.Reader, out io.Writer, stream bool) error {
	sess, err := engine.StartSession(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s%s\n", assistantPrefix, sess.Messages[0].Content)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	responder := &terminalResponder{out: out}
	for {
		fmt.Fprint(out, userPrompt)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			sess, err = engine.ResetSession(ctx, sess.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s%s\n", assistantPrefix, sess.Messages[0].Content)
			continue
		case "/history":
			current, err := engine.History(ctx, sess.ID)
			if err != nil {
				return err
			}
			printHistory(out, current.Messages)
			continue
		}

		_, err := engine.ProcessMessage(ctx, chat.ProcessRequest{
			SessionID: sess.ID,
			Message:   line,
			Stream:    stream,
			Responder: responder,
		})
		if errors.Is(err, chat.ErrInvalidMessage) {
			fmt.Fprintf(out, "! %v\n", err)
			continue
		}
		if err != nil {
			return err
		}
	}
}

func printHistory(out io.Writer, messages []llm.Message) {
	for _, m := range messages {
		fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
	}
}

// terminalResponder writes a turn to the terminal
type terminalResponder struct {
	out     io.Writer
	started bool
}

func (r *terminalResponder) SendThinking() error {
	r.started = false
	_, err := fmt.Fprint(r.out, "…\r")
	return err
}

func (r *terminalResponder) SendMessage(content string) error {
	if !r.started {
		r.started = true
		if _, err := fmt.Fprint(r.out, assistantPrefix); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(r.out, content)
	return err
}

func (r *terminalResponder) SendError(message string) error {
	if r.started {
		fmt.Fprintln(r.out)
	}
	r.started = true
	_, err := fmt.Fprintf(r.out, "%s%s", assistantPrefix, message)
	return err
}

func (r *terminalResponder) SendDone() error {
	_, err := fmt.Fprintln(r.out)
	return err
}
