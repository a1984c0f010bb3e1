package wsfuzz

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	MaxWebSocketMessageSize = 32 * 1024 * 1024 // 32MB max message size

	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	closeGracePeriod        = time.Second
)

// Session is one WebSocket connection, owned by a single fuzz attempt
type Session interface {
	// Send writes a text frame
	Send(text string) error
	// Receive waits up to timeout for the next frame, returning ErrTimeout when none arrived
	Receive(timeout time.Duration) (*Response, error)
	// Close is idempotent
	Close() error
}

// Dialer opens sessions against a target
type Dialer interface {
	Dial(ctx context.Context, target *Target) (Session, error)
}

// Response is a frame received from the target
type Response struct {
	Type       int // websocket.TextMessage or websocket.BinaryMessage
	Data       []byte
	ReceivedAt time.Time
}

// TypeName returns a printable frame type
func (r *Response) TypeName() string {
	return frameTypeName(r.Type)
}

func frameTypeName(messageType int) string {
	switch messageType {
	case websocket.TextMessage:
		return "text"
	case websocket.BinaryMessage:
		return "binary"
	default:
		return fmt.Sprintf("opcode(%d)", messageType)
	}
}

// WSDialer opens gorilla/websocket sessions
type WSDialer struct {
	log              zerolog.Logger
	handshakeTimeout time.Duration
}

// NewWSDialer creates a dialer; a zero handshake timeout uses DefaultHandshakeTimeout
func NewWSDialer(logger zerolog.Logger, handshakeTimeout time.Duration) *WSDialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = DefaultHandshakeTimeout
	}
	return &WSDialer{
		log:              logger,
		handshakeTimeout: handshakeTimeout,
	}
}

// Dial performs the WebSocket handshake against target.
// Proxied connections tunnel through HTTP CONNECT.
func (d *WSDialer) Dial(ctx context.Context, target *Target) (Session, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: d.handshakeTimeout,
	}
	if proxyURL := target.ProxyURL(); proxyURL != nil {
		dialer.Proxy = http.ProxyURL(proxyURL)
	}
	if target.Insecure {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	header := target.RequestHeader()
	if d.log.Trace().Enabled() {
		d.log.Trace().
			Str("url", target.URL.String()).
			Str("proxy", target.Proxy).
			Interface("header", header).
			Msg("Opening WebSocket handshake")
	}

	conn, resp, err := dialer.DialContext(ctx, target.URL.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %v (HTTP %d)", ErrConnection, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if d.log.Trace().Enabled() {
		d.log.Trace().
			Int("status", resp.StatusCode).
			Interface("header", resp.Header).
			Msg("WebSocket handshake completed")
	}

	return NewWSSession(conn, d.log), nil
}

// WSSession wraps a websocket.Conn for a single attempt
type WSSession struct {
	conn *websocket.Conn
	log  zerolog.Logger
	mu   sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewWSSession wraps an established connection
func NewWSSession(conn *websocket.Conn, logger zerolog.Logger) *WSSession {
	conn.SetReadLimit(MaxWebSocketMessageSize)
	return &WSSession{
		conn: conn,
		log:  logger,
	}
}

// Send writes text as a single text frame
func (s *WSSession) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logFrame(websocket.TextMessage, len(text), "send")

	if err := s.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout)); err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	return nil
}

// Receive reads the next data frame or fails with ErrTimeout once timeout elapses.
// After a timeout the connection can no longer be read from.
func (s *WSSession) Receive(timeout time.Duration) (*Response, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	messageType, data, err := s.conn.ReadMessage()
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, err
	}

	s.logFrame(messageType, len(data), "receive")

	return &Response{
		Type:       messageType,
		Data:       data,
		ReceivedAt: time.Now(),
	}, nil
}

// Close sends a normal closure frame and closes the socket once
func (s *WSSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		s.mu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *WSSession) logFrame(messageType int, length int, direction string) {
	if !s.log.Trace().Enabled() {
		return
	}
	s.log.Trace().
		Int("length", length).
		Msgf("WebSocket frame TYPE=%s DIRECTION=%s", frameTypeName(messageType), direction)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
