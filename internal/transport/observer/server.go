// Package observer streams world frames to websocket clients and forwards
// their control requests to the runner.
package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"eyes.sim/internal/protocol"
	"eyes.sim/internal/sim/encoding"
	"eyes.sim/internal/sim/world"
)

const (
	defaultMaxFPS = 30
	maxFPS        = 240
)

type published struct {
	runID string
	tick  uint64
	size  int
	msg   []byte
}

type client struct {
	id    string
	frame chan []byte
	reply chan []byte
	// Minimum gap between frames, in nanoseconds.
	gap atomic.Int64
}

type Server struct {
	log      *log.Logger
	commands chan<- world.Command

	// AllowRemote disables the loopback-only check.
	AllowRemote bool

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	latest   atomic.Pointer[published]

	mu      sync.Mutex
	clients map[string]*client
}

// NewServer returns a server that forwards CONTROL messages to commands.
// A nil commands channel makes the observer read-only.
func NewServer(commands chan<- world.Command, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		log:      logger,
		commands: commands,
		clients:  map[string]*client{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Clients reports the number of subscribed connections.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Publish encodes f once and offers it to every client. Slow clients only
// ever see the newest frame.
func (s *Server) Publish(f world.Frame) {
	msg, err := json.Marshal(FrameMessage(f))
	if err != nil {
		s.log.Printf("observer: encode frame: %v", err)
		return
	}
	s.latest.Store(&published{runID: f.RunID, tick: f.Tick, size: f.Size, msg: msg})

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		world.SendLatest(c.frame, msg)
	}
}

// FrameMessage converts a frame to its wire form.
func FrameMessage(f world.Frame) protocol.FrameMsg {
	palette, cells := encoding.EncodeGrid(&f.Grid)
	return protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		RunID:           f.RunID,
		Tick:            f.Tick,
		Size:            f.Size,
		Agents:          f.Agents,
		Resources:       f.Resources,
		Deceased:        f.Deceased,
		Restarts:        f.Restarts,
		GrowthRate:      f.GrowthRate,
		Speed:           f.Speed,
		Paused:          f.Paused,
		StartedAt:       f.StartedAt.UTC().Format(time.RFC3339),
		TicksPerS:       f.TicksPerSec,
		Births:          f.Window.Births,
		Deaths:          f.Window.Deaths,
		Eaten:           f.Window.Eaten,
		Palette:         palette,
		Cells:           cells,
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		resp := protocol.BootstrapResponse{
			ProtocolVersion: protocol.Version,
			Commands:        world.CommandNames()[1:],
		}
		if p := s.latest.Load(); p != nil {
			resp.RunID = p.runID
			resp.Tick = p.tick
			resp.Size = p.size
		}

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(64 * 1024)

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, err := decodeSubscribe(msg)
		if err != nil {
			closeWith(conn, websocket.ClosePolicyViolation, err.Error())
			return
		}

		c := &client{
			id:    fmt.Sprintf("O%d", s.nextID.Add(1)),
			frame: make(chan []byte, 1),
			reply: make(chan []byte, 8),
		}
		c.setFPS(sub.MaxFPS)
		if p := s.latest.Load(); p != nil {
			c.frame <- p.msg
		}
		s.join(c)
		defer s.leave(c)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() { writeErr <- c.writeLoop(ctx, conn) }()

		// Reader loop: SUBSCRIBE updates and CONTROL requests.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handle(c, msg)
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) handle(c *client, msg []byte) {
	if err := protocol.Validate(msg); err != nil {
		c.send(errorMsg(protocol.ErrProtoBadRequest, err.Error()))
		return
	}
	base, _ := protocol.DecodeBase(msg)
	if base.ProtocolVersion != protocol.Version {
		c.send(errorMsg(protocol.ErrBadVersion, "expected "+protocol.Version))
		return
	}
	switch base.Type {
	case protocol.TypeSubscribe:
		var sub protocol.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err == nil {
			c.setFPS(sub.MaxFPS)
		}
	case protocol.TypeControl:
		var ctl protocol.ControlMsg
		if err := json.Unmarshal(msg, &ctl); err != nil {
			c.send(errorMsg(protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		cmd, err := world.ParseCommand(ctl.Command)
		if err != nil || cmd == world.CmdNone {
			c.send(errorMsg(protocol.ErrUnknownCommand, ctl.Command))
			return
		}
		if s.commands == nil {
			c.send(errorMsg(protocol.ErrReadOnly, "observer is read-only"))
			return
		}
		select {
		case s.commands <- cmd:
			s.log.Printf("observer %s: %s", c.id, cmd)
			c.send(protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, Command: cmd.String()})
		default:
			c.send(errorMsg(protocol.ErrBusy, "command queue full"))
		}
	default:
		c.send(errorMsg(protocol.ErrProtoBadRequest, "unexpected "+base.Type))
	}
}

func (s *Server) join(c *client) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
}

func (s *Server) leave(c *client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
}

func (s *Server) allowed(r *http.Request) bool {
	return s.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func (c *client) setFPS(fps int) {
	if fps <= 0 {
		fps = defaultMaxFPS
	}
	if fps > maxFPS {
		fps = maxFPS
	}
	c.gap.Store(int64(time.Second) / int64(fps))
}

func (c *client) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.reply <- b:
	default:
		// Drop replies under load; the client may resend.
	}
}

func (c *client) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-c.reply:
			if err := write(conn, b); err != nil {
				return err
			}
		case b := <-c.frame:
			if wait := time.Duration(c.gap.Load()) - time.Since(last); wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return ctx.Err()
				case <-t.C:
				}
				// A newer frame may have arrived while waiting.
				select {
				case nb := <-c.frame:
					b = nb
				default:
				}
			}
			if err := write(conn, b); err != nil {
				return err
			}
			last = time.Now()
		}
	}
}

func decodeSubscribe(msg []byte) (protocol.SubscribeMsg, error) {
	var sub protocol.SubscribeMsg
	if err := protocol.Validate(msg); err != nil {
		return sub, errors.New("bad subscribe")
	}
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, errors.New("bad subscribe")
	}
	if sub.Type != protocol.TypeSubscribe {
		return sub, errors.New("expected SUBSCRIBE")
	}
	if sub.ProtocolVersion != protocol.Version {
		return sub, errors.New("bad protocol version")
	}
	return sub, nil
}

func errorMsg(code, message string) protocol.ErrorMsg {
	return protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: code, Message: message}
}

func write(conn *websocket.Conn, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
