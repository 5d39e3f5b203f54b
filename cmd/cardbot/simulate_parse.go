package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sipeed/cardbot/pkg/events"
)

const usage = `Commands:
  enter <open_id>                               user opens the bot chat
  menu <open_id> <event_key>                    user clicks a bot menu entry
  msg <p2p|group> <chat_id> <open_id> <text>    user sends a text message
  image <p2p|group> <chat_id> <open_id>         user sends an image
  click <open_id> <action> [k=v ...]            user presses a card button;
                                                form.k=v sets a form field
  {"kind": ..., "event": {...}}                 raw envelope
  help | quit`

var errQuit = errors.New("quit")

// parseLine turns one REPL line into an event. Empty lines yield nil.
func parseLine(line string) (events.Event, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	if strings.HasPrefix(line, "{") {
		return events.DecodeEnvelope([]byte(line))
	}

	fields := strings.Fields(line)
	base := events.Base{EventID: uuid.NewString()}
	switch cmd, args := fields[0], fields[1:]; cmd {
	case "quit", "exit":
		return nil, errQuit
	case "help":
		return nil, errors.New(usage)

	case "enter":
		if len(args) != 1 {
			return nil, errors.New("usage: enter <open_id>")
		}
		return events.ChatEntered{Base: base, OperatorOpenID: args[0]}, nil

	case "menu":
		if len(args) != 2 {
			return nil, errors.New("usage: menu <open_id> <event_key>")
		}
		return events.MenuClick{Base: base, OperatorOpenID: args[0], EventKey: args[1]}, nil

	case "msg", "image":
		if len(args) < 3 || (cmd == "msg" && len(args) < 4) {
			return nil, fmt.Errorf("usage: %s <p2p|group> <chat_id> <open_id> [text]", cmd)
		}
		ev := events.MessageReceive{
			Base:         base,
			MessageID:    "om_" + base.EventID[:8],
			ChatType:     args[0],
			ChatID:       args[1],
			SenderOpenID: args[2],
		}
		if cmd == "image" {
			ev.MessageType = "image"
			ev.Content = `{"image_key":"img_simulated"}`
			return ev, nil
		}
		content, err := json.Marshal(map[string]string{"text": strings.Join(args[3:], " ")})
		if err != nil {
			return nil, err
		}
		ev.MessageType = events.MessageTypeText
		ev.Content = string(content)
		return ev, nil

	case "click":
		if len(args) < 2 {
			return nil, errors.New("usage: click <open_id> <action> [k=v ...]")
		}
		ev := events.CardAction{
			Base:           base,
			OperatorOpenID: args[0],
			Value:          map[string]interface{}{"action": args[1]},
		}
		for _, kv := range args[2:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return nil, fmt.Errorf("expected k=v, got %q", kv)
			}
			if name, isForm := strings.CutPrefix(k, "form."); isForm {
				if ev.FormValue == nil {
					ev.FormValue = map[string]interface{}{}
				}
				ev.FormValue[name] = v
				continue
			}
			ev.Value[k] = v
		}
		return ev, nil
	}
	return nil, fmt.Errorf("unknown command %q, try help", fields[0])
}
