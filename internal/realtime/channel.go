package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/campusdesk/desk/internal/core"
	"github.com/campusdesk/desk/internal/types"
)

var (
	// ErrNotConnected is returned by Publish unless the channel is Connected.
	ErrNotConnected = errors.New("not connected")
	// ErrEmptyMessage is returned by Publish for blank text.
	ErrEmptyMessage = errors.New("메시지를 입력해주세요.")
	// ErrAlreadyOpen is returned by a second call to Open.
	ErrAlreadyOpen = errors.New("channel already opened")
)

const (
	defaultHeartBeat = 4 * time.Second
	teardownTimeout  = 2 * time.Second
)

// Options configures a Channel.
type Options struct {
	ThreadID        int64
	Dialer          Dialer
	Tokens          oauth2.TokenSource
	SubscribePrefix string
	SendDestination string
	// ReconnectDelay enables retries from Error at a fixed interval. Zero disables.
	ReconnectDelay time.Duration
	HeartBeat      time.Duration
	// Handler receives decoded frames in arrival order on the receive goroutine.
	// It must not call Close.
	Handler func(types.Message)
	OnState func(State)
	Logger  *slog.Logger
}

// Channel is one STOMP subscription scoped to a thread.
type Channel struct {
	opts    Options
	id      string
	logger  *slog.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	state   State
	sess    *session
	opened  bool
	closing bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type session struct {
	transport *watchedTransport
	conn      *stomp.Conn
	sub       *stomp.Subscription
}

// watchedTransport closes lost on the first read or write error. go-stomp
// can drop a connection without ending subscriptions it has not yet
// registered, so the receive loop watches the transport directly.
type watchedTransport struct {
	io.ReadWriteCloser
	once sync.Once
	lost chan struct{}
	err  error
}

func watchTransport(rw io.ReadWriteCloser) *watchedTransport {
	return &watchedTransport{ReadWriteCloser: rw, lost: make(chan struct{})}
}

func (w *watchedTransport) Read(p []byte) (int, error) {
	n, err := w.ReadWriteCloser.Read(p)
	if err != nil {
		w.fail(err)
	}
	return n, err
}

func (w *watchedTransport) Write(p []byte) (int, error) {
	n, err := w.ReadWriteCloser.Write(p)
	if err != nil {
		w.fail(err)
	}
	return n, err
}

func (w *watchedTransport) fail(err error) {
	w.once.Do(func() {
		w.err = err
		close(w.lost)
	})
}

type outbound struct {
	RoomID  int64  `json:"roomId"`
	Message string `json:"message"`
}

// New validates options and returns a Disconnected channel.
func New(opts Options) (*Channel, error) {
	if opts.Dialer == nil {
		return nil, fmt.Errorf("realtime: dialer is required")
	}
	if opts.ThreadID <= 0 {
		return nil, fmt.Errorf("realtime: invalid thread id %d", opts.ThreadID)
	}
	if opts.SubscribePrefix == "" {
		opts.SubscribePrefix = core.DefaultSubscribePrefix
	}
	if opts.SendDestination == "" {
		opts.SendDestination = core.DefaultSendDestination
	}
	if opts.HeartBeat <= 0 {
		opts.HeartBeat = defaultHeartBeat
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	id := uuid.NewString()
	c := &Channel{
		opts:   opts,
		id:     id,
		logger: logger.With("channel", id, "thread", opts.ThreadID),
	}
	if opts.ReconnectDelay > 0 {
		c.limiter = rate.NewLimiter(rate.Every(opts.ReconnectDelay), 1)
	}
	return c, nil
}

// ID identifies this channel instance in logs.
func (c *Channel) ID() string {
	return c.id
}

// ThreadID is the thread this channel is scoped to.
func (c *Channel) ThreadID() int64 {
	return c.opts.ThreadID
}

// Destination is the subscription destination for the thread.
func (c *Channel) Destination() string {
	return c.opts.SubscribePrefix + strconv.FormatInt(c.opts.ThreadID, 10)
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected is the boolean connection indicator.
func (c *Channel) Connected() bool {
	return c.State() == Connected
}

// CanPublish reports whether Publish would attempt a send.
func (c *Channel) CanPublish() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Connected && c.sess != nil && !c.closing
}

// Open dials, performs the CONNECT handshake and subscribes. The first
// attempt's error is returned; with a reconnect delay the channel keeps
// retrying in the background until Close.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.opened || c.closing {
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.opened = true
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.setState(Connecting)
	if c.limiter != nil {
		c.limiter.Allow()
	}

	dialCtx, stop := context.WithCancel(ctx)
	stopOnClose := context.AfterFunc(runCtx, stop)
	sess, err := c.connect(dialCtx)
	stopOnClose()
	stop()

	if err != nil {
		c.logger.Warn("realtime connect failed", "err", err)
		c.setState(Error)
	} else if !c.attach(sess) {
		c.teardown(sess)
		sess = nil
	}
	go c.run(runCtx, sess)
	return err
}

// Publish sends text to the thread. It never touches the network unless Connected.
func (c *Channel) Publish(text string) error {
	text = core.NormalizeText(text)
	if text == "" {
		return ErrEmptyMessage
	}
	c.mu.Lock()
	sess := c.sess
	ready := c.state == Connected && sess != nil && !c.closing
	c.mu.Unlock()
	if !ready {
		return ErrNotConnected
	}

	bearer, err := c.bearer()
	if err != nil {
		return err
	}
	body, err := json.Marshal(outbound{RoomID: c.opts.ThreadID, Message: text})
	if err != nil {
		return err
	}
	if err := sess.conn.Send(c.opts.SendDestination, "application/json", body, stomp.SendOpt.Header("Authorization", bearer)); err != nil {
		c.logger.Warn("realtime publish failed", "err", err)
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close unsubscribes, disconnects and waits for the receive loop to exit.
// No handler call happens after Close returns.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	c.mu.Lock()
	changed := c.state != Disconnected
	c.state = Disconnected
	c.mu.Unlock()
	if changed {
		c.notify(Disconnected)
	}
	return nil
}

func (c *Channel) run(ctx context.Context, sess *session) {
	defer close(c.done)
	for {
		if sess != nil {
			err := c.receive(ctx, sess)
			c.detach()
			if ctx.Err() == nil {
				c.logger.Warn("realtime connection lost", "err", err)
				c.setState(Error)
			}
			c.teardown(sess)
			sess = nil
			if ctx.Err() != nil {
				return
			}
		}
		if c.limiter == nil || ctx.Err() != nil {
			return
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return
		}
		c.setState(Connecting)
		next, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("realtime reconnect failed", "err", err)
			c.setState(Error)
			continue
		}
		if !c.attach(next) {
			c.teardown(next)
			return
		}
		c.logger.Info("realtime reconnected")
		sess = next
	}
}

func (c *Channel) connect(ctx context.Context) (*session, error) {
	bearer, err := c.bearer()
	if err != nil {
		return nil, err
	}
	raw, err := c.opts.Dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	transport := watchTransport(raw)
	// The STOMP handshake has no context of its own.
	unblock := context.AfterFunc(ctx, func() { _ = transport.Close() })
	defer unblock()

	conn, err := stomp.Connect(transport,
		stomp.ConnOpt.Header("Authorization", bearer),
		stomp.ConnOpt.HeartBeat(c.opts.HeartBeat, c.opts.HeartBeat),
	)
	if err != nil {
		_ = transport.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("stomp connect: %w", err)
	}

	sub, err := conn.Subscribe(c.Destination(), stomp.AckAuto,
		stomp.SubscribeOpt.Header("id", "sub-"+uuid.NewString()),
		stomp.SubscribeOpt.Header("Authorization", bearer),
	)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("stomp subscribe %s: %w", c.Destination(), err)
	}
	if ctx.Err() != nil {
		_ = transport.Close()
		return nil, ctx.Err()
	}
	c.logger.Debug("realtime subscribed", "destination", c.Destination())
	return &session{transport: transport, conn: conn, sub: sub}, nil
}

// attach publishes sess as the live session unless Close has begun.
func (c *Channel) attach(sess *session) bool {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return false
	}
	c.sess = sess
	c.state = Connected
	c.mu.Unlock()
	c.notify(Connected)
	return true
}

func (c *Channel) detach() {
	c.mu.Lock()
	c.sess = nil
	c.mu.Unlock()
}

func (c *Channel) receive(ctx context.Context, sess *session) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sess.transport.lost:
			return fmt.Errorf("transport lost: %w", sess.transport.err)
		case msg, ok := <-sess.sub.C:
			if !ok {
				return errors.New("subscription closed")
			}
			if msg.Err != nil {
				return msg.Err
			}
			var decoded types.Message
			if err := json.Unmarshal(msg.Body, &decoded); err != nil {
				c.logger.Warn("realtime frame skipped", "err", err)
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if c.opts.Handler != nil {
				c.opts.Handler(decoded)
			}
		}
	}
}

// teardown unsubscribes and disconnects, falling back to closing the
// transport when the broker does not answer in time.
func (c *Channel) teardown(sess *session) {
	finished := make(chan struct{})
	go func() {
		for {
			select {
			case _, ok := <-sess.sub.C:
				if !ok {
					return
				}
			case <-finished:
				return
			}
		}
	}()
	go func() {
		defer close(finished)
		if sess.sub.Active() {
			_ = sess.sub.Unsubscribe()
		}
		_ = sess.conn.Disconnect()
	}()

	timer := time.NewTimer(teardownTimeout)
	defer timer.Stop()
	select {
	case <-finished:
	case <-timer.C:
		c.logger.Warn("realtime disconnect timed out")
	}
	_ = sess.transport.Close()
}

func (c *Channel) setState(state State) {
	c.mu.Lock()
	if c.closing || c.state == state {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.mu.Unlock()
	c.notify(state)
}

func (c *Channel) notify(state State) {
	if c.opts.OnState != nil {
		c.opts.OnState(state)
	}
}

func (c *Channel) bearer() (string, error) {
	if c.opts.Tokens == nil {
		return "", fmt.Errorf("realtime: no token source")
	}
	token, err := c.opts.Tokens.Token()
	if err != nil {
		return "", err
	}
	return "Bearer " + token.AccessToken, nil
}
