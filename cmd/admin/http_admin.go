package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"eyes.sim/internal/protocol"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/v1/observer/bootstrap"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func controlCmd(args []string) {
	fs := flag.NewFlagSet("control", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	timeout := fs.Duration("timeout", 5*time.Second, "give up waiting for the reply after this long")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin control [-url URL] COMMAND")
		os.Exit(2)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	ack, err := sendControl(ctx, *baseURL, fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, "control:", err)
		os.Exit(1)
	}
	fmt.Printf("ack %s\n", ack.Command)
}

type controlError struct {
	Code    string
	Message string
}

func (e *controlError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// sendControl subscribes to the observer socket at baseURL, sends one
// CONTROL and waits for its ACK or ERROR. Frames arriving in between are
// discarded.
func sendControl(ctx context.Context, baseURL, command string) (protocol.AckMsg, error) {
	var ack protocol.AckMsg
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u+"/v1/observer/ws", nil)
	if err != nil {
		return ack, err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
		_ = conn.SetWriteDeadline(dl)
	}

	// A low frame cap keeps the socket quiet while we wait for the reply.
	sub := protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version, MaxFPS: 1}
	if err := conn.WriteJSON(sub); err != nil {
		return ack, err
	}
	ctl := protocol.ControlMsg{Type: protocol.TypeControl, ProtocolVersion: protocol.Version, Command: strings.ToUpper(command)}
	if err := conn.WriteJSON(ctl); err != nil {
		return ack, err
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return ack, fmt.Errorf("closed by server: %d %s", ce.Code, ce.Text)
			}
			return ack, err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			return ack, err
		}
		switch base.Type {
		case protocol.TypeAck:
			err := json.Unmarshal(msg, &ack)
			return ack, err
		case protocol.TypeError:
			var em protocol.ErrorMsg
			if err := json.Unmarshal(msg, &em); err != nil {
				return ack, err
			}
			return ack, &controlError{Code: em.Code, Message: em.Message}
		}
	}
}
