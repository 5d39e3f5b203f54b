package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/sipeed/cardbot/pkg/app"
	"github.com/sipeed/cardbot/pkg/logger"
	"github.com/sipeed/cardbot/pkg/router"
)

func newSimulateCmd(family *string) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Dispatch events typed at a prompt; sends are printed, not delivered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return simulate(cmd.Context(), *family)
		},
	}
}

func simulate(parent context.Context, family string) error {
	cfg, err := loadConfig(family)
	if err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	out := &printer{w: os.Stdout}
	c, err := app.NewContainer(cfg, out)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          c.Profile.Name + "> ",
		HistoryFile:     filepath.Join(os.TempDir(), "cardbot-simulate.history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	out.w = rl.Stdout()

	fmt.Fprintf(out.w, "Simulating the %s bot (%s). Type help for commands.\n", c.Profile.Name, c.Profile.DisplayName)
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	return c.Run(ctx, &repl{rl: rl, r: c.Router, out: out})
}

// repl is a Transport reading events from the prompt.
type repl struct {
	rl  *readline.Instance
	r   *router.Router
	out *printer
}

func (t *repl) Start(ctx context.Context) error {
	for {
		line, err := t.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		ev, err := parseLine(line)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintln(t.out.w, err)
			continue
		}
		if ev == nil {
			continue
		}
		t.out.print("outcome", t.r.Dispatch(ctx, ev))
	}
}

// printer is a Messenger that writes sends to the terminal.
type printer struct {
	mu sync.Mutex
	w  io.Writer
	n  int
}

func (p *printer) SendMessage(_ context.Context, idType, receiveID, msgType, content string) (string, error) {
	return p.record(map[string]interface{}{
		"receive_id_type": idType,
		"receive_id":      receiveID,
		"msg_type":        msgType,
		"content":         json.RawMessage(content),
	})
}

func (p *printer) ReplyMessage(_ context.Context, messageID, msgType, content string) (string, error) {
	return p.record(map[string]interface{}{
		"reply_to": messageID,
		"msg_type": msgType,
		"content":  json.RawMessage(content),
	})
}

func (p *printer) record(body map[string]interface{}) (string, error) {
	p.mu.Lock()
	p.n++
	id := fmt.Sprintf("om_sim_%d", p.n)
	p.mu.Unlock()
	p.print("send", body)
	return id, nil
}

func (p *printer) print(label string, v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		b = []byte(err.Error())
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s %s\n", strings.ToUpper(label), b)
}
