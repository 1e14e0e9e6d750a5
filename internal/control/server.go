package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	serial "github.com/allbin/serial-station"
	"github.com/allbin/serial-station/internal/recorder"
	"github.com/allbin/serial-station/internal/station"
	"github.com/allbin/serial-station/internal/version"
)

const (
	pingInterval    = 30 * time.Second
	readDeadline    = 60 * time.Second
	writeDeadline   = 10 * time.Second
	shutdownTimeout = 5 * time.Second
	directBuffer    = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // The server binds to loopback by default.
	},
}

// Commander is the station surface driven by client commands.
type Commander interface {
	Connect(ctx context.Context, port string, baud int) error
	Disconnect(ctx context.Context) error
	ListPorts(ctx context.Context) ([]serial.PortInfo, error)
	StartRecording(ctx context.Context, path string) (recorder.Status, error)
	PauseRecording(ctx context.Context) (recorder.Status, error)
	ResumeRecording(ctx context.Context) (recorder.Status, error)
	StopRecording(ctx context.Context) (recorder.Status, error)
	RecordingStatus(ctx context.Context) (recorder.Status, error)
	AppendRecord(ctx context.Context, line string) error
	Snapshot(ctx context.Context) (station.Snapshot, error)
}

var _ Commander = (*station.Coordinator)(nil)

// Server carries hub events to websocket clients and client commands to the
// station. It embeds the hub, so it can be the station's notifier; closing
// the server closes the hub and the HTTP listener together.
type Server struct {
	*Hub
	log     zerolog.Logger
	station Commander
	http    *http.Server

	closeOnce sync.Once
}

var _ station.Notifier = (*Server)(nil)

type client struct {
	id     string
	conn   *websocket.Conn
	events chan Event
	direct chan []byte
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	server *Server
	log    zerolog.Logger
}

// NewServer creates a control server for addr. Call SetStation before
// serving.
func NewServer(hub *Hub, log zerolog.Logger, addr string) *Server {
	s := &Server{
		Hub: hub,
		log: log.With().Str("component", "control").Logger(),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetStation attaches the command target. The station is built with the
// server as its notifier, so the two are wired in this order.
func (s *Server) SetStation(cmd Commander) { s.station = cmd }

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.log))

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/ports", s.handlePorts)
	})
	return r
}

// ListenAndServe listens on the configured address and serves until Close.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ln)
}

func (s *Server) Serve(ln net.Listener) error {
	s.log.Info().Str("address", ln.Addr().String()).Msg("control server listening")
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control server: %w", err)
	}
	return nil
}

// Close closes the hub, which disconnects every websocket client, and shuts
// the HTTP server down.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.Hub.Close()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := s.http.Shutdown(ctx); serr != nil {
			err = fmt.Errorf("shutdown control server: %w", serr)
		}
		s.log.Info().Msg("control server closed")
	})
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		events: s.Hub.Subscribe(),
		direct: make(chan []byte, directBuffer),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		server: s,
	}
	c.log = s.log.With().Str("client", c.id).Logger()
	c.log.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	// Send current state so a new client does not wait for the next change.
	if snap, err := s.station.Snapshot(r.Context()); err == nil {
		c.reply(TypePortStatus, "", snap.Connection)
		c.reply(TypeRecordingStatus, "", snap.Recording)
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.server.Hub.Unsubscribe(c.events)
		c.cancel()
		close(c.done)
		c.conn.Close()
		c.log.Info().Msg("client disconnected")
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read")
			}
			return
		}
		c.server.handleCommand(c, message)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case e, ok := <-c.events:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "station shutting down"))
				return
			}
			msg, err := e.Message()
			if err != nil {
				c.log.Error().Err(err).Str("type", e.Type).Msg("encode event")
				continue
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case data := <-c.direct:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// reply sends a message to this client only.
func (c *client) reply(msgType, id string, payload any) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		c.log.Error().Err(err).Str("type", msgType).Msg("encode reply")
		return
	}
	msg.ID = id
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error().Err(err).Str("type", msgType).Msg("encode reply")
		return
	}
	select {
	case c.direct <- data:
	case <-c.done:
	default:
		c.log.Warn().Str("type", msgType).Msg("reply buffer full, dropped")
	}
}

// handleCommand runs one client command. Every command is acknowledged;
// failures also produce an error event for the requester only.
func (s *Server) handleCommand(c *client, raw []byte) {
	msg, err := ParseCommand(raw)
	if err != nil {
		c.reply(TypeError, "", ErrorPayload{Message: err.Error(), Code: ErrCodeInvalidMessage})
		return
	}

	c.log.Debug().Str("type", msg.Type).Str("id", msg.ID).Msg("command")
	result, err := s.dispatch(c.ctx, msg)
	if err != nil {
		c.log.Info().Err(err).Str("type", msg.Type).Msg("command failed")
		c.reply(TypeError, msg.ID, ErrorPayload{Message: err.Error(), Code: errorCode(err)})
		c.reply(TypeAck, msg.ID, AckPayload{Command: msg.Type, Error: err.Error()})
		return
	}
	if result != nil {
		c.reply(result.Type, msg.ID, result.Data)
	}
	c.reply(TypeAck, msg.ID, AckPayload{Command: msg.Type, OK: true})
}

// dispatch executes msg against the station. A non-nil Event is a direct
// reply for the requester.
func (s *Server) dispatch(ctx context.Context, msg *Message) (*Event, error) {
	switch msg.Type {
	case TypeConnect:
		var p ConnectPayload
		if err := decodePayload(msg, &p); err != nil {
			return nil, err
		}
		if p.DataBits != nil || p.StopBits != nil || p.Parity != nil {
			s.log.Debug().Str("port", p.Port).Msg("framing overrides ignored, using 8-N-1")
		}
		return nil, s.station.Connect(ctx, p.Port, p.BaudRate)

	case TypeDisconnect:
		return nil, s.station.Disconnect(ctx)

	case TypeListPorts:
		ports, err := s.station.ListPorts(ctx)
		if err != nil {
			return nil, err
		}
		if ports == nil {
			ports = []serial.PortInfo{}
		}
		return &Event{Type: TypePorts, Data: ports}, nil

	case TypeRecordingStart:
		var p RecordingStartPayload
		if err := decodePayload(msg, &p); err != nil {
			return nil, err
		}
		_, err := s.station.StartRecording(ctx, p.Filepath)
		return nil, err

	case TypeRecordingPause:
		_, err := s.station.PauseRecording(ctx)
		return nil, err

	case TypeRecordingResume:
		_, err := s.station.ResumeRecording(ctx)
		return nil, err

	case TypeRecordingStop:
		_, err := s.station.StopRecording(ctx)
		return nil, err

	case TypeRecordingStatus:
		st, err := s.station.RecordingStatus(ctx)
		if err != nil {
			return nil, err
		}
		return &Event{Type: TypeRecordingStatus, Data: st}, nil

	case TypeRecordingAppend:
		var p RecordingAppendPayload
		if err := decodePayload(msg, &p); err != nil {
			return nil, err
		}
		return nil, s.station.AppendRecord(ctx, p.Line)

	case TypeStatus:
		snap, err := s.station.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return &Event{Type: TypeStatus, Data: snap}, nil

	case TypeAppInfo:
		return &Event{Type: TypeAppInfo, Data: version.Current()}, nil
	}
	return nil, fmt.Errorf("unknown message type: %s", msg.Type)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, station.ErrNoPort):
		return ErrCodeNoPort
	case errors.Is(err, station.ErrNotConnected):
		return ErrCodeNotConnected
	case errors.Is(err, recorder.ErrNotRecording):
		return ErrCodeNotRecording
	case errors.Is(err, station.ErrOpenFailed):
		return ErrCodeOpenFailed
	case errors.Is(err, station.ErrTargetCancelled), errors.Is(err, context.Canceled):
		return ErrCodeCancelled
	default:
		return ErrCodeInternal
	}
}
