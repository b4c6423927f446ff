// The probe is an interactive client for poking a running hub from a
// terminal: it opens one authenticated websocket, prints every inbound
// event and turns stdin lines into protocol frames.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HubAddr  string `envconfig:"HUB_ADDR" default:"localhost:8080"`
	Username string `envconfig:"PROBE_USERNAME" required:"true"`
	// PROBE_SECRET must match the hub's AUTH_TOKEN_SECRET so the probe
	// can mint its own token.
	Secret  string `envconfig:"PROBE_SECRET" required:"true"`
	Colours bool   `envconfig:"PROBE_COLOURS" default:"true"`
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	token, err := mintToken(cfg.Username, cfg.Secret)
	if err != nil {
		log.Fatalf("Token error: %v", err)
	}

	u := url.URL{Scheme: "ws", Host: cfg.HubAddr, Path: "/ws", RawQuery: "token=" + token}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial error: %v", err)
	}
	defer conn.Close()

	fmt.Printf("Connected to %s as %s\n", cfg.HubAddr, cfg.Username)
	printHelp()

	go readLoop(conn, cfg.Colours)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		env, err := parseCommand(line, cfg.Username)
		if err != nil {
			fmt.Println(err)
			continue
		}
		if env == nil {
			return
		}
		if err := conn.WriteJSON(env); err != nil {
			log.Fatalf("Write error: %v", err)
		}
	}
}

func readLoop(conn *websocket.Conn, colours bool) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			log.Fatalf("Connection lost: %v", err)
		}

		// The hub pings every connection; answer so presence stays fresh.
		if env.Event == "heartbeat" {
			_ = conn.WriteJSON(envelope{Event: "heartbeat_ack"})
			continue
		}

		line := fmt.Sprintf("<- %-22s %s", env.Event, string(env.Data))
		if colours {
			line = render(env.Event, line)
		}
		fmt.Println(line)
	}
}

func render(eventName, line string) string {
	switch {
	case eventName == "error":
		return color.New(color.FgRed).Render(line)
	case strings.Contains(eventName, "call") || strings.Contains(eventName, "video"):
		return color.New(color.FgYellow).Render(line)
	case eventName == "user_status":
		return color.New(color.FgCyan).Render(line)
	default:
		return color.New(color.FgGreen).Render(line)
	}
}

// parseCommand maps a stdin line to a protocol frame. A nil envelope
// with nil error means quit.
func parseCommand(line, username string) (*envelope, error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	frame := func(eventName string, data any) (*envelope, error) {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		return &envelope{Event: eventName, Data: raw}, nil
	}

	switch cmd {
	case "quit", "exit":
		return nil, nil
	case "help":
		printHelp()
		return nil, fmt.Errorf("")
	case "join":
		if len(args) < 1 {
			return nil, fmt.Errorf("usage: join <conversation>")
		}
		return frame("join_conversation", map[string]any{"conversationId": args[0]})
	case "leave":
		if len(args) < 1 {
			return nil, fmt.Errorf("usage: leave <conversation>")
		}
		return frame("leave_conversation", map[string]any{"conversationId": args[0]})
	case "send":
		if len(args) < 2 {
			return nil, fmt.Errorf("usage: send <conversation> <text...>")
		}
		return frame("send_message", map[string]any{
			"conversationId": args[0],
			"content":        strings.Join(args[1:], " "),
		})
	case "typing":
		if len(args) < 1 {
			return nil, fmt.Errorf("usage: typing <conversation> [stop]")
		}
		return frame("typing", map[string]any{
			"conversationId": args[0],
			"isTyping":       len(args) < 2 || args[1] != "stop",
		})
	case "read":
		if len(args) < 1 {
			return nil, fmt.Errorf("usage: read <conversation> [messageId]")
		}
		data := map[string]any{"conversationId": args[0]}
		if len(args) > 1 {
			data["upToMessageId"] = args[1]
		}
		return frame("mark_read", data)
	case "call":
		if len(args) < 1 {
			return nil, fmt.Errorf("usage: call <receiver> [video]")
		}
		callType := "audio"
		if len(args) > 1 && args[1] == "video" {
			callType = "video"
		}
		return frame("initiate_call", map[string]any{
			"callerId":   username,
			"receiverId": args[0],
			"callType":   callType,
		})
	case "accept", "reject", "end", "upgrade", "upgrade-ok", "timeout":
		if len(args) < 1 {
			return nil, fmt.Errorf("usage: %s <callId>", cmd)
		}
		eventName := map[string]string{
			"accept":     "accept_call",
			"reject":     "reject_call",
			"end":        "end_call",
			"upgrade":    "upgrade_to_video",
			"upgrade-ok": "video_upgrade_accepted",
			"timeout":    "call_timeout",
		}[cmd]
		return frame(eventName, map[string]any{"callId": args[0]})
	default:
		return nil, fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func printHelp() {
	fmt.Println(`commands:
  join <conversation>            leave <conversation>
  send <conversation> <text...>  typing <conversation> [stop]
  read <conversation> [msgId]    call <receiver> [video]
  accept|reject|end|upgrade|upgrade-ok|timeout <callId>
  help                           quit`)
}

func mintToken(username, secret string) (string, error) {
	claims := jwt.MapClaims{
		"username": username,
		"iss":      "live-hub",
		"iat":      jwt.NewNumericDate(time.Now()),
		"exp":      jwt.NewNumericDate(time.Now().Add(12 * time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
