package wsfuzz

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a goroutine safe log sink
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// records decodes every JSON log line written so far
func (b *syncBuffer) records(t *testing.T) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	scanner := bufio.NewScanner(strings.NewReader(b.String()))
	for scanner.Scan() {
		var rec map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		out = append(out, rec)
	}
	return out
}

// recordsWithMessage filters records by their message
func (b *syncBuffer) recordsWithMessage(t *testing.T, msg string) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, rec := range b.records(t) {
		if rec["message"] == msg {
			out = append(out, rec)
		}
	}
	return out
}

// newCaptureLogger returns a JSON logger writing into a buffer
func newCaptureLogger(level zerolog.Level) (zerolog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return zerolog.New(buf).Level(level).With().Timestamp().Logger(), buf
}

// createPrefixedLogger creates a console logger with customized level prefixes
func createPrefixedLogger(prefix string) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out: os.Stdout,
		FormatLevel: func(i interface{}) string {
			logLevel, _ := i.(string)
			if len(logLevel) < 3 {
				return prefix
			}
			return fmt.Sprintf("%s %s", prefix, strings.ToUpper(logLevel[:3]))
		},
	}).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// wsTestServer is an in-process WebSocket endpoint recording what it receives
type wsTestServer struct {
	*httptest.Server

	mu       sync.Mutex
	received [][]string
	headers  []http.Header
}

// startWSServer starts a WebSocket server; respond returns the replies for each received message
func startWSServer(t *testing.T, useTLS bool, respond func(msg string) []string) *wsTestServer {
	t.Helper()

	s := &wsTestServer{}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		s.mu.Lock()
		idx := len(s.received)
		s.received = append(s.received, nil)
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.received[idx] = append(s.received[idx], string(data))
			s.mu.Unlock()

			if respond == nil {
				continue
			}
			for _, reply := range respond(string(data)) {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
					return
				}
			}
		}
	})

	if useTLS {
		s.Server = httptest.NewTLSServer(handler)
	} else {
		s.Server = httptest.NewServer(handler)
	}
	t.Cleanup(s.Close)

	return s
}

// connections returns a copy of the messages received per connection
func (s *wsTestServer) connections() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.received))
	for i, msgs := range s.received {
		out[i] = append([]string(nil), msgs...)
	}
	return out
}

func (s *wsTestServer) header(i int) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[i]
}

// mockHTTPProxy creates a simple HTTP CONNECT proxy server for testing
func mockHTTPProxy(t *testing.T) (string, *atomic.Int32) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	hits := &atomic.Int32{}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			hits.Add(1)
			go handleHTTPConnect(conn)
		}
	}()

	return listener.Addr().String(), hits
}

// handleHTTPConnect handles HTTP CONNECT requests
func handleHTTPConnect(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	req, err := http.ReadRequest(reader)
	if err != nil {
		return
	}
	if req.Method != http.MethodConnect {
		conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
		return
	}

	targetConn, err := net.DialTimeout("tcp", req.Host, 5*time.Second)
	if err != nil {
		conn.Write([]byte("HTTP/1.1 502 Bad Gateway\r\n\r\n"))
		return
	}
	defer targetConn.Close()

	conn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(targetConn, reader)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(conn, targetConn)
		done <- struct{}{}
	}()
	<-done
}

// closedPort returns an address nothing listens on
func closedPort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()
	return addr
}
