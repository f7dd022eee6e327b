// Package export exposes the event bus and command dispatch to external
// automation clients over an authenticated websocket.
package export

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/Lelleck/wise/internal/api"
	"github.com/Lelleck/wise/internal/config"
	"github.com/Lelleck/wise/internal/event"
	"github.com/Lelleck/wise/internal/pool"
)

const (
	// tokenTimeout bounds the wait for the token frame of a new client.
	tokenTimeout = 3 * time.Second

	// passwordTimeout bounds the wait for the legacy password frame.
	passwordTimeout = 5 * time.Second
)

// Server accepts websocket connections, authenticates them and runs the
// per-connection fan-out and dispatch loops.
type Server struct {
	store     *config.Store
	bus       *event.Bus
	pool      *pool.Pool
	tlsConfig *tls.Config
}

// New creates a server. tlsConfig may be nil for plaintext operation.
func New(store *config.Store, bus *event.Bus, p *pool.Pool, tlsConfig *tls.Config) *Server {
	return &Server{store: store, bus: bus, pool: p, tlsConfig: tlsConfig}
}

// Run serves websocket connections until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.store.Get().Exporting.Websocket
	if !cfg.Enabled {
		slog.Info("websocket exporting is disabled")
		return nil
	}

	listener, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.websocketHandler)
	httpServer := &http.Server{
		Handler:   mux,
		TLSConfig: s.tlsConfig,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if s.tlsConfig != nil {
		slog.Info("websocket listening with tls", "address", cfg.Address)
		err = httpServer.ServeTLS(listener, "", "")
	} else {
		slog.Info("websocket listening", "address", cfg.Address)
		err = httpServer.Serve(listener)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close(websocket.StatusGoingAway, "")

	connID := uuid.New().String()
	ctx := r.Context()

	handle, err := s.authenticate(ctx, conn)
	if err != nil {
		// Failed handshakes are dropped without a reply.
		slog.Debug("websocket authentication failed",
			"connection", connID, "remote", r.RemoteAddr, "err", err)
		return
	}
	slog.Info("granted websocket handle",
		"connection", connID, "name", handle.Name,
		"read_rcon_events", handle.Perms.ReadRconEvents, "write_rcon", handle.Perms.WriteRcon)

	if err := writeMessage(ctx, conn, api.NewAuthenticatedMessage()); err != nil {
		return
	}

	s.serve(ctx, conn, connID, handle)
	slog.Debug("websocket connection closed", "connection", connID)
}

// authenticate runs the handshake: an optional password frame followed by
// the mandatory token frame, each a single text message on a deadline.
func (s *Server) authenticate(ctx context.Context, conn *websocket.Conn) (AuthHandle, error) {
	cfg := s.store.Get()

	if password := cfg.Exporting.Websocket.Password; password != "" {
		provided, err := readTextFrame(ctx, conn, passwordTimeout)
		if err != nil {
			return AuthHandle{}, err
		}
		if provided != password {
			return AuthHandle{}, errors.New("incorrect password")
		}
	}

	token, err := readTextFrame(ctx, conn, tokenTimeout)
	if err != nil {
		return AuthHandle{}, err
	}
	handle, ok := authenticateToken(token, cfg)
	if !ok {
		return AuthHandle{}, errors.New("unknown token")
	}
	return handle, nil
}

func readTextFrame(ctx context.Context, conn *websocket.Conn, timeout time.Duration) (string, error) {
	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	kind, data, err := conn.Read(readCtx)
	if err != nil {
		return "", err
	}
	if kind != websocket.MessageText {
		return "", errors.New("expected a text frame")
	}
	return string(data), nil
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg api.ServerWsMessage) error {
	data, err := msg.MarshalJSON()
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// serve runs the two per-connection loops: inbound client frames feeding
// the dispatcher and outbound bus messages filtered by the handle.
func (s *Server) serve(ctx context.Context, conn *websocket.Conn, connID string, handle AuthHandle) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	subscriber := s.bus.Subscribe()
	defer subscriber.Close()

	go s.readLoop(ctx, cancel, conn, connID, handle)

	for {
		msg, err := subscriber.Recv(ctx)
		var lag *event.LagError
		if errors.As(err, &lag) {
			slog.Warn("websocket subscriber lagged",
				"connection", connID, "missed", lag.Missed)
			continue
		}
		if err != nil {
			return
		}

		if msg.Rcon != nil && !handle.Perms.ReadRconEvents {
			continue
		}
		if err := writeMessage(ctx, conn, msg); err != nil {
			slog.Debug("websocket send failed", "connection", connID, "err", err)
			return
		}
	}
}

// readLoop consumes inbound frames until the connection dies. Malformed
// frames are ignored; valid requests are dispatched on their own
// goroutine so a slow command does not stall the connection. Dispatches
// outlive the connection on purpose: their responses go through the bus
// and are simply dropped when no subscriber remains.
func (s *Server) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, connID string, handle AuthHandle) {
	defer cancel()
	for {
		kind, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if kind != websocket.MessageText {
			continue
		}

		var msg api.ClientWsMessage
		if err := msg.UnmarshalJSON(data); err != nil {
			slog.Debug("ignoring malformed client message", "connection", connID, "err", err)
			continue
		}
		if msg.Request == nil || msg.Request.Value.Execute == nil {
			continue
		}

		if !handle.Perms.WriteRcon {
			slog.Warn("client lacks write permission, rejecting request",
				"connection", connID, "name", handle.Name)
			continue
		}

		go s.dispatch(context.WithoutCancel(ctx), connID, *msg.Request)
	}
}
