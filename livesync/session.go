package livesync

import (
	"context"
	"fmt"
	"time"
)

// Options configures a Session. The zero value works against a launcher-
// managed engine with the runtime file in its default location.
type Options struct {
	// RuntimePath overrides the runtime info file location.
	RuntimePath string

	// Port skips port resolution entirely when non-zero.
	Port int

	// LibraryID selects the initially displayed collection;
	// AllLibraries (empty) selects the aggregate view.
	LibraryID string

	// WatchCredentials starts the fsnotify watcher on the runtime file so
	// an engine restart is picked up without an explicit invalidation.
	WatchCredentials bool

	PingInterval time.Duration
	RetryDelay   time.Duration

	// OnStatus receives the boolean "live updates connected" signal.
	OnStatus func(connected bool)
}

// Session is the composition root of the sync layer: one resolver, one
// connection manager, one router, the three topic reducers and the
// reconciler, wired together. One Session per logical view; tear down with
// context cancellation.
type Session struct {
	opts     Options
	resolver *Resolver
	router   *Router
	client   *Client
	fetcher  *Fetcher
	queue    *RefetchQueue
	conn     *ConnManager

	Downloads  *DownloadReducer
	Scans      *ScanReducer
	Jobs       *JobReducer
	Reconciler *Reconciler

	unsubscribe func()
}

// NewSession builds a Session with all dependencies constructed and wired.
// Nothing connects until Run.
func NewSession(opts Options) (*Session, error) {
	resolver, err := NewResolver(opts.RuntimePath)
	if err != nil {
		return nil, err
	}

	s := &Session{
		opts:      opts,
		resolver:  resolver,
		router:    NewRouter(),
		queue:     NewRefetchQueue(),
		Downloads: NewDownloadReducer(),
		Scans:     NewScanReducer(),
		Jobs:      NewJobReducer(),
	}
	s.client = NewClient(resolver)
	s.fetcher = NewFetcher(s.client)
	s.Reconciler = NewReconciler(s.queue)
	s.conn = NewConnManager(resolver, s.router, ConnOptions{
		PingInterval: opts.PingInterval,
		RetryDelay:   opts.RetryDelay,
		OnStatus:     opts.OnStatus,
	})

	// One dispatch pass feeds every projection; each reducer picks out its
	// own discriminants.
	s.unsubscribe = s.router.AddHandler(func(ev Envelope) {
		s.Downloads.Apply(ev)
		s.Scans.Apply(ev)
		s.Jobs.Apply(ev)
		s.Reconciler.Apply(ev)
	})

	return s, nil
}

// Router exposes the event router so additional consumers (views, loggers)
// can observe the same stream.
func (s *Session) Router() *Router { return s.router }

// Fetcher exposes the pull path for on-demand snapshot reads.
func (s *Session) Fetcher() *Fetcher { return s.fetcher }

// Connected reports whether live updates are flowing.
func (s *Session) Connected() bool { return s.conn.Connected() }

// Run connects the push channel, loads the initial snapshot, then serves
// refetch triggers until ctx is cancelled. Always returns nil after a clean
// shutdown; connection failures are retried internally and never surfaced.
func (s *Session) Run(ctx context.Context) error {
	l := sub("session")

	port := s.opts.Port
	if port == 0 {
		creds, err := s.resolver.Resolve()
		if err != nil {
			return fmt.Errorf("resolve engine port: %w", err)
		}
		port = creds.Port
	}

	if s.opts.WatchCredentials {
		go func() {
			if err := s.resolver.Watch(ctx.Done()); err != nil {
				l.Warn("credential watcher failed", "err", err)
			}
		}()
	}

	l.Info("session starting", "port", port, "library", s.opts.LibraryID)
	s.conn.Connect(port)

	// Initial snapshot. A failure here is not fatal — the engine may still
	// be starting; the next scan-complete trigger fills the gap.
	if err := s.loadCollection(ctx, s.opts.LibraryID); err != nil {
		l.Warn("initial snapshot failed", "err", err)
	}

	// Refetch worker: serialize snapshot fetches triggered by reducer
	// transitions.
	done := ctx.Done()
	for {
		libraryID, ok := s.queue.Pop(done)
		if !ok {
			break
		}
		if err := s.refetch(ctx, libraryID); err != nil {
			if ctx.Err() != nil {
				break
			}
			l.Error("refetch failed", "library", libraryID, "err", err)
		}
	}

	s.conn.Disconnect()
	s.unsubscribe()
	l.Info("session stopped")
	return nil
}

// SetLibrary switches the displayed collection and fetches its snapshot.
func (s *Session) SetLibrary(ctx context.Context, libraryID string) error {
	return s.loadCollection(ctx, libraryID)
}

// Videos returns the current collection with all live patches applied.
func (s *Session) Videos() []Video {
	return s.Reconciler.Videos()
}

func (s *Session) loadCollection(ctx context.Context, libraryID string) error {
	videos, err := s.fetcher.ListVideos(ctx, libraryID)
	if err != nil {
		return err
	}
	s.Reconciler.SetCollection(libraryID, videos)
	return nil
}

// refetch refreshes the library summary list and re-fetches the displayed
// collection after a scan completed for libraryID.
func (s *Session) refetch(ctx context.Context, libraryID string) error {
	s.fetcher.InvalidateLibraries()
	if _, err := s.fetcher.ListLibraries(ctx); err != nil {
		return err
	}

	l := sub("session")
	l.Debug("refetching collection", "trigger", libraryID)
	return s.loadCollection(ctx, s.Reconciler.LibraryID())
}
