package client

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jasonhq/relay/internal/logger"
	"github.com/jasonhq/relay/internal/protocol"
)

// State is the connection lifecycle:
// Disconnected → Connecting → Authenticated → Active → (Closing|Disconnected).
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticated
	Active
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Authenticated:
		return "authenticated"
	case Active:
		return "active"
	case Closing:
		return "closing"
	}
	return "unknown"
}

const (
	defaultAuthTimeout = 10 * time.Second
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffCap  = 30 * time.Second
)

// Options tunes a Conn. The zero value gets defaults.
type Options struct {
	AuthTimeout time.Duration
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// MaxReconnects bounds consecutive failed reconnect attempts;
	// 0 means keep trying.
	MaxReconnects int
	// OnState is invoked on every state transition, from the Conn's own
	// goroutines. Keep it fast.
	OnState func(State)
	Logger  *zap.SugaredLogger
}

// Conn owns the single persistent transport session for one user. It runs
// the authenticate handshake on every (re)connect and delivers inbound
// events, in arrival order, on Events(). A send attempted while the
// session is not Active fails fast with ErrNotConnected; nothing is
// buffered across a disconnect.
type Conn struct {
	dialer Dialer
	userID string
	token  string
	opts   Options
	log    *zap.SugaredLogger

	mu    sync.Mutex
	state State
	tr    Transport

	events    chan *protocol.Event
	closed    chan struct{}
	closeOnce sync.Once
}

func NewConn(dialer Dialer, userID, token string, opts Options) *Conn {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = defaultAuthTimeout
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = defaultBackoffCap
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Conn{
		dialer: dialer,
		userID: userID,
		token:  token,
		opts:   opts,
		log:    log,
		state:  Disconnected,
		events: make(chan *protocol.Event, 64),
		closed: make(chan struct{}),
	}
}

// Start connects and authenticates synchronously, then keeps the session
// alive in the background until Close or ctx cancellation.
func (c *Conn) Start(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	go c.run(ctx)
	return nil
}

// Events delivers inbound server events. The channel is closed when the
// Conn shuts down for good.
func (c *Conn) Events() <-chan *protocol.Event {
	return c.events
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the authenticated user.
func (c *Conn) UserID() string {
	return c.userID
}

// Send writes an event to the live transport. Fails fast when not Active.
func (c *Conn) Send(ctx context.Context, ev *protocol.Event) error {
	c.mu.Lock()
	if c.state != Active || c.tr == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	tr := c.tr
	c.mu.Unlock()
	return tr.WriteEvent(ctx, ev)
}

// Close tears the session down. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.setState(Closing)
		close(c.closed)
		c.mu.Lock()
		tr := c.tr
		c.tr = nil
		c.mu.Unlock()
		if tr != nil {
			tr.Close()
		}
		c.setState(Disconnected)
	})
	return nil
}

func (c *Conn) run(ctx context.Context) {
	defer close(c.events)
	attempt := 0
	for {
		c.readLoop(ctx)
		if c.done(ctx) {
			return
		}
		c.setState(Disconnected)
		c.log.Warnw("transport closed, reconnecting")

		// Bounded exponential backoff with jitter; the authenticate
		// handshake is replayed on every attempt.
		for {
			attempt++
			if c.opts.MaxReconnects > 0 && attempt > c.opts.MaxReconnects {
				c.log.Errorw("reconnect attempts exhausted", "attempts", attempt-1)
				return
			}
			select {
			case <-time.After(c.backoff(attempt)):
			case <-ctx.Done():
				return
			case <-c.closed:
				return
			}
			if err := c.connect(ctx); err != nil {
				c.log.Warnw("reconnect failed", "attempt", attempt, "error", err)
				continue
			}
			attempt = 0
			break
		}
	}
}

func (c *Conn) connect(ctx context.Context) error {
	c.setState(Connecting)

	tr, err := c.dialer.Dial(ctx)
	if err != nil {
		c.setState(Disconnected)
		return err
	}

	hctx, cancel := context.WithTimeout(ctx, c.opts.AuthTimeout)
	defer cancel()

	auth, err := protocol.NewEvent(protocol.TypeAuthenticate, protocol.AuthenticatePayload{
		UserID: c.userID,
		Token:  c.token,
	})
	if err != nil {
		tr.Close()
		c.setState(Disconnected)
		return err
	}
	if err := tr.WriteEvent(hctx, auth); err != nil {
		tr.Close()
		c.setState(Disconnected)
		return err
	}

	reply, err := tr.ReadEvent(hctx)
	if err != nil {
		tr.Close()
		c.setState(Disconnected)
		return err
	}
	if reply.Type != protocol.TypeAuthenticated {
		tr.Close()
		c.setState(Disconnected)
		return ErrAuthFailed
	}
	c.setState(Authenticated)

	c.mu.Lock()
	c.tr = tr
	c.state = Active
	c.mu.Unlock()
	c.notify(Active)
	c.log.Infow("session active", "userId", c.userID)
	return nil
}

// readLoop pumps inbound events until the transport dies.
func (c *Conn) readLoop(ctx context.Context) {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return
	}
	for {
		ev, err := tr.ReadEvent(ctx)
		if err != nil {
			tr.Close()
			return
		}
		select {
		case c.events <- ev:
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Conn) done(ctx context.Context) bool {
	select {
	case <-c.closed:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (c *Conn) backoff(attempt int) time.Duration {
	d := c.opts.BackoffBase << (attempt - 1)
	if d > c.opts.BackoffCap || d <= 0 {
		d = c.opts.BackoffCap
	}
	// Half fixed, half jitter.
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	c.notify(s)
}

func (c *Conn) notify(s State) {
	if c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}
