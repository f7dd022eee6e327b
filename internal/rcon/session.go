package rcon

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"
)

// Credentials locate and authenticate against the game server. They are
// consumed during Connect and not retained afterwards.
type Credentials struct {
	Address  string
	Password string
}

// readTimeout is the deadline for a single response body.
const readTimeout = 3 * time.Second

// legacyPrefixTimeout bounds the wait for the v1 handshake bytes the
// server writes immediately after accepting.
const legacyPrefixTimeout = 1 * time.Second

var connectionID atomic.Uint64

// Session owns one authenticated TCP connection to the game server.
// A session is not safe for concurrent use; ownership is exclusive and
// requests are strictly serialized on the underlying stream.
type Session struct {
	id     uint64
	conn   net.Conn
	key    []byte
	token  string
	nextID uint32
}

// Connect dials the server and performs the full handshake: discard the
// legacy v1 prefix, obtain the XOR key via ServerConnect, authenticate via
// Login. A rejected password returns ErrInvalidPassword.
func Connect(ctx context.Context, creds Credentials) (*Session, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", creds.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", creds.Address, err)
	}

	s := &Session{
		id:   connectionID.Add(1),
		conn: conn,
	}

	// The server opens every connection with up to 4 bytes of v1
	// handshake data that the v2 protocol ignores.
	if err := s.discardLegacyPrefix(); err != nil {
		s.Close()
		return nil, err
	}

	if err := s.handshake(creds.Password); err != nil {
		s.Close()
		return nil, err
	}

	slog.Debug("rcon session established", "id", s.id, "address", creds.Address)
	return s, nil
}

func (s *Session) discardLegacyPrefix() error {
	if err := s.conn.SetReadDeadline(time.Now().Add(legacyPrefixTimeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	var prefix [4]byte
	if _, err := s.conn.Read(prefix[:]); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			// Nothing sent, nothing to discard.
			return nil
		}
		return fmt.Errorf("read legacy prefix: %w", err)
	}
	return nil
}

func (s *Session) handshake(password string) error {
	connect, err := s.Execute(NewRequest("ServerConnect", ""))
	if err != nil {
		return fmt.Errorf("server connect: %w", err)
	}
	if err := connect.assertOK(); err != nil {
		return fmt.Errorf("server connect: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(connect.ContentBody)
	if err != nil {
		return &InvalidDataError{Reason: "xor key is not valid base64"}
	}
	s.key = key

	login, err := s.Execute(NewRequest("Login", password))
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if login.StatusCode != 200 {
		return ErrInvalidPassword
	}
	s.token = login.ContentBody
	return nil
}

// ID returns the process-unique id of this session.
func (s *Session) ID() uint64 { return s.id }

// Close tears down the TCP connection. The session is unusable afterwards.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Execute sends one request and reads exactly one response. The stored auth
// token is injected once login has succeeded.
func (s *Session) Execute(req *Request) (*Response, error) {
	if s.token != "" {
		req.AuthToken = s.token
	}
	// The login body carries the password and stays out of the logs.
	if req.Name != "Login" {
		slog.Debug("executing rcon request", "session", s.id, "name", req.Name)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	id := s.nextID
	s.nextID++
	if err := writeFrame(s.conn, id, payload, s.key); err != nil {
		return nil, err
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	_, body, err := readFrame(s.conn, s.key)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, ErrTimeout
		}
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal([]byte(sanitizePayload(body)), &resp); err != nil {
		return nil, &InvalidDataError{Reason: "response is not valid json"}
	}
	return &resp, nil
}
