package realtime

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Dialer opens the byte stream STOMP frames travel over.
type Dialer interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
}

// NewDialer picks a transport from the URL scheme: ws/wss (http/https are
// rewritten) for WebSocket, tcp for a plain STOMP socket.
func NewDialer(rawURL string) (Dialer, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}
	switch parsed.Scheme {
	case "ws", "wss":
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "tcp":
		if parsed.Host == "" {
			return nil, fmt.Errorf("realtime url %q has no host", rawURL)
		}
		return TCPDialer{Addr: parsed.Host}, nil
	default:
		return nil, fmt.Errorf("unsupported realtime scheme %q (use ws, wss or tcp)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("realtime url %q has no host", rawURL)
	}
	return &WebSocketDialer{URL: parsed.String()}, nil
}

// stompSubprotocols are offered during the WebSocket handshake.
var stompSubprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// WebSocketDialer carries STOMP over a WebSocket, one text message per write.
type WebSocketDialer struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
}

func (d *WebSocketDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	if d.Dialer != nil {
		dialer = *d.Dialer
	}
	dialer.Subprotocols = stompSubprotocols

	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header.Clone())
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return newWSStream(conn), nil
}

// TCPDialer connects to a broker speaking STOMP directly on a socket.
type TCPDialer struct {
	Addr string
}

func (d TCPDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	var dialer net.Dialer
	return dialer.DialContext(ctx, "tcp", d.Addr)
}

// wsStream adapts a WebSocket to the byte stream the STOMP client expects.
type wsStream struct {
	conn    *websocket.Conn
	reader  io.Reader
	writeMu sync.Mutex
}

func newWSStream(conn *websocket.Conn) *wsStream {
	return &wsStream{conn: conn}
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			_, reader, err := s.conn.NextReader()
			if err != nil {
				return 0, err
			}
			s.reader = reader
		}
		n, err := s.reader.Read(p)
		if err == io.EOF {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.conn.Close()
}
