package realtime

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/server"
	"golang.org/x/oauth2"

	"github.com/campusdesk/desk/internal/types"
)

const waitTimeout = 5 * time.Second

func startBroker(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &server.Server{HeartBeat: time.Minute}
	go func() {
		_ = srv.Serve(listener)
	}()
	t.Cleanup(func() {
		_ = listener.Close()
	})
	return listener.Addr().String()
}

func testTokens() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok", TokenType: "Bearer"})
}

// recordingDialer keeps every byte the client writes and lets tests cut the
// transport from under the channel.
type recordingDialer struct {
	inner Dialer

	mu      sync.Mutex
	written bytes.Buffer
	dials   int
	conns   []io.ReadWriteCloser
}

func (d *recordingDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	d.mu.Lock()
	d.dials++
	d.mu.Unlock()
	rw, err := d.inner.Dial(ctx)
	if err != nil {
		return nil, err
	}
	wrapped := &teeConn{ReadWriteCloser: rw, dialer: d}
	d.mu.Lock()
	d.conns = append(d.conns, wrapped)
	d.mu.Unlock()
	return wrapped, nil
}

func (d *recordingDialer) record(p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written.Write(p)
}

func (d *recordingDialer) output() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written.String()
}

func (d *recordingDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *recordingDialer) killLast() {
	d.mu.Lock()
	conn := d.conns[len(d.conns)-1]
	d.mu.Unlock()
	_ = conn.Close()
}

type teeConn struct {
	io.ReadWriteCloser
	dialer *recordingDialer
}

func (c *teeConn) Write(p []byte) (int, error) {
	c.dialer.record(p)
	return c.ReadWriteCloser.Write(p)
}

type failingDialer struct {
	err error
}

func (d failingDialer) Dial(context.Context) (io.ReadWriteCloser, error) {
	return nil, d.err
}

// sendFrame publishes body to destination from a separate client. The
// receipt wait in Disconnect guarantees the broker has the frame.
func sendFrame(t *testing.T, addr, destination, body string) {
	t.Helper()
	conn, err := stomp.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial broker: %v", err)
	}
	if err := conn.Send(destination, "application/json", []byte(body)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := conn.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
}

type collector struct {
	ch chan types.Message
}

func newCollector() *collector {
	return &collector{ch: make(chan types.Message, 32)}
}

func (c *collector) handle(msg types.Message) {
	c.ch <- msg
}

func (c *collector) next(t *testing.T) types.Message {
	t.Helper()
	select {
	case msg := <-c.ch:
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for message")
	}
	return types.Message{}
}

func (c *collector) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case msg := <-c.ch:
		t.Fatalf("unexpected message: %+v", msg)
	case <-time.After(wait):
	}
}

type stateLog struct {
	mu     sync.Mutex
	states []State
	notify chan State
}

func newStateLog() *stateLog {
	return &stateLog{notify: make(chan State, 64)}
}

func (l *stateLog) record(state State) {
	l.mu.Lock()
	l.states = append(l.states, state)
	l.mu.Unlock()
	l.notify <- state
}

func (l *stateLog) waitFor(t *testing.T, want State) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case state := <-l.notify:
			if state == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}
