package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jasonhq/relay/internal/logger"
)

// SessionOptions bundles tuning for a full sync session.
type SessionOptions struct {
	Conn         Options
	Store        StoreOptions
	PollInterval time.Duration
	OnSound      func()
	Responder    Responder
	Logger       *zap.SugaredLogger
}

// Session owns one complete sync stack: connection, store, router,
// presence tracker, upload coordinator, and optional bot injector. It is
// explicitly constructed and injectable — no package-level singleton —
// so tests can run several isolated sessions against fake transports.
type Session struct {
	Conn     *Conn
	Store    *Store
	Presence *Presence
	Uploads  *Uploads
	Router   *Router
	Bot      *Bot

	log *zap.SugaredLogger
	ctx context.Context
}

// NewSession wires the components together. The dialer and API are the
// two injected collaborators; everything else is internal.
func NewSession(dialer Dialer, api API, userID, token string, opts SessionOptions) *Session {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	s := &Session{log: log, ctx: context.Background()}

	connOpts := opts.Conn
	connOpts.Logger = log
	prev := connOpts.OnState
	connOpts.OnState = func(state State) {
		s.Store.SessionStateChanged(state)
		s.Router.SessionStateChanged(s.ctx, state)
		if prev != nil {
			prev(state)
		}
	}
	s.Conn = NewConn(dialer, userID, token, connOpts)

	storeOpts := opts.Store
	storeOpts.Logger = log
	s.Store = NewStore(api, s.Conn, storeOpts)
	s.Presence = NewPresence(api, opts.PollInterval, log)
	s.Uploads = NewUploads(api, s.Store, log)
	s.Router = NewRouter(s.Store, s.Presence, s.Uploads, RouterOptions{
		OnSound: opts.OnSound,
		Logger:  log,
	})
	if opts.Responder != nil {
		s.Bot = NewBot(opts.Responder, s.Store, log)
	}
	return s
}

// Run connects and processes events until ctx is done or the connection
// gives up. It blocks.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	if err := s.Conn.Start(ctx); err != nil {
		return err
	}
	go s.Presence.Run(ctx)
	s.Router.Run(ctx, s.Conn.Events())
	return nil
}

// Close tears the session down.
func (s *Session) Close() error {
	return s.Conn.Close()
}
