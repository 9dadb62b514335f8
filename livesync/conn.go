package livesync

import (
	"fmt"
	"log/slog"
	"net/url"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"
)

// ConnState is the lifecycle state of the push-channel connection.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateClosing      ConnState = "closing"
)

const (
	defaultPingInterval = 25 * time.Second
	defaultRetryDelay   = 3 * time.Second
	dialTimeout         = 10 * time.Second
)

// ConnOptions tunes the connection manager. Zero values select the
// defaults; tests shorten the intervals.
type ConnOptions struct {
	PingInterval time.Duration
	RetryDelay   time.Duration

	// OnStatus is invoked with the boolean "live updates connected" signal
	// on every transition. This is the only failure surface consumers see;
	// transport errors never propagate past the manager.
	OnStatus func(connected bool)
}

// ConnManager owns the single push-channel connection for a session. It
// performs the connect → authenticate → subscribe handshake, forwards
// decoded envelopes to the router, keeps the connection alive with periodic
// pings, and schedules a reconnect after a fixed delay whenever the
// transport drops while the manager is enabled.
//
// Each (re)connect starts a new epoch; the previous connection is closed
// unconditionally and its in-flight events are discarded. Envelope order is
// only guaranteed within one epoch.
type ConnManager struct {
	resolver *Resolver
	router   *Router
	dialer   *websocket.Dialer
	opts     ConnOptions

	mu       gosync.Mutex
	state    ConnState
	enabled  bool
	port     int
	epoch    uint64
	conn     *websocket.Conn
	retry    *time.Timer
	pingStop chan struct{}

	// Serializes writes: the subscribe frame and the ping loop share one
	// websocket writer.
	writeMu gosync.Mutex
}

// NewConnManager creates a manager wired to the given resolver and router.
func NewConnManager(resolver *Resolver, router *Router, opts ConnOptions) *ConnManager {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	return &ConnManager{
		resolver: resolver,
		router:   router,
		dialer:   &websocket.Dialer{HandshakeTimeout: dialTimeout},
		opts:     opts,
		state:    StateDisconnected,
	}
}

// Connect establishes (or re-establishes) the connection to the engine's
// push channel on the given port and enables automatic reconnection. Any
// existing connection is closed first; a pending reconnect timer is
// cancelled. Dialing happens in the background — connection failures are
// recovered via the retry schedule, never returned to the caller.
func (m *ConnManager) Connect(port int) {
	m.mu.Lock()
	m.enabled = true
	m.port = port
	m.connectLocked()
	m.mu.Unlock()
}

// connectLocked starts a new connection epoch. Caller holds mu.
func (m *ConnManager) connectLocked() {
	m.cancelRetryLocked()
	m.closeConnLocked()
	m.epoch++
	m.state = StateConnecting
	go m.dial(m.epoch, m.port)
}

// Disconnect tears the connection down and disables reconnection. The
// keepalive and any pending reconnect timer are cancelled synchronously, so
// a scheduled retry can never race a deliberate shutdown.
func (m *ConnManager) Disconnect() {
	m.mu.Lock()
	m.enabled = false
	m.cancelRetryLocked()
	m.epoch++
	wasLive := m.state == StateConnected
	m.state = StateClosing
	m.closeConnLocked()
	m.state = StateDisconnected
	m.mu.Unlock()

	sub("conn").Info("disconnected")
	// Consumers that never saw "connected" get no "disconnected" either.
	if wasLive {
		m.notify(false)
	}
}

// State returns the current lifecycle state.
func (m *ConnManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether live updates are flowing.
func (m *ConnManager) Connected() bool {
	return m.State() == StateConnected
}

func (m *ConnManager) dial(epoch uint64, port int) {
	l := sub("conn")

	// Token resolution failure is not fatal: unauthenticated operation is a
	// valid mode when the engine is not locked down.
	token := ""
	if creds, err := m.resolver.Resolve(); err == nil {
		token = creds.Token
	} else {
		l.Debug("credential resolution failed, connecting without token", "err", err)
	}

	target := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", engineHost, port), Path: "/ws"}
	if token != "" {
		// This transport has no out-of-band header injection; the token
		// rides in the query string.
		q := url.Values{}
		q.Set("token", token)
		target.RawQuery = q.Encode()
	}

	conn, resp, err := m.dialer.Dial(target.String(), nil)
	if err != nil && resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	m.mu.Lock()
	if epoch != m.epoch || !m.enabled {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		m.state = StateDisconnected
		m.scheduleRetryLocked()
		m.mu.Unlock()
		l.Warn("connect failed", "port", port, "err", err)
		return
	}

	m.conn = conn
	m.state = StateConnected
	stop := make(chan struct{})
	m.pingStop = stop
	m.mu.Unlock()

	l.Info("connected", "port", port, "authenticated", token != "")
	m.notify(true)

	if err := m.writeFrame(conn, subscribeFrame{Type: "subscribe", Topics: []string{"*"}}); err != nil {
		// The read loop observes the broken connection and drives the
		// reconnect; nothing to do here.
		l.Warn("subscribe failed", "err", err)
	}

	go m.pingLoop(conn, stop)
	go m.readLoop(conn, epoch)
}

// readLoop forwards decoded application envelopes to the router until the
// connection drops, then hands off to the close handler. Runs once per
// epoch.
func (m *ConnManager) readLoop(conn *websocket.Conn, epoch uint64) {
	l := sub("conn")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(epoch, err)
			return
		}

		ev, err := DecodeEnvelope(data)
		if err != nil {
			// One malformed frame is not worth the connection.
			l.Warn("dropping malformed frame", "err", err)
			continue
		}

		if ev.Transport() {
			if logEnabled(slog.LevelDebug) {
				l.Debug("transport frame", "type", ev.Type)
			}
			continue
		}

		m.router.Dispatch(ev)
	}
}

// pingLoop sends a keepalive envelope while the connection stays open.
// Write errors are left to the read loop, which sees the close first.
func (m *ConnManager) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.writeFrame(conn, pingFrame{Type: "ping"}); err != nil {
				sub("conn").Debug("ping write failed", "err", err)
				return
			}
		}
	}
}

// handleClose runs when the transport drops, cleanly or otherwise. A stale
// epoch (the manager already reconnected or shut down) is ignored entirely,
// so an old connection can never cancel the current one's timers.
func (m *ConnManager) handleClose(epoch uint64, cause error) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.closeConnLocked()
	m.state = StateDisconnected
	enabled := m.enabled
	if enabled {
		m.scheduleRetryLocked()
	}
	m.mu.Unlock()

	if enabled {
		sub("conn").Warn("connection lost, reconnecting", "after", m.opts.RetryDelay, "cause", cause)
	}
	m.notify(false)
}

func (m *ConnManager) scheduleRetryLocked() {
	m.cancelRetryLocked()
	epoch := m.epoch
	m.retry = time.AfterFunc(m.opts.RetryDelay, func() { m.retryFire(epoch) })
}

// retryFire re-dials unless a newer Connect or Disconnect already moved the
// manager past the epoch the retry was scheduled for. The check and the
// reconnect happen under one lock acquisition, so a stale retry can never
// interleave with a fresh Connect.
func (m *ConnManager) retryFire(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled || epoch != m.epoch || m.state != StateDisconnected {
		return
	}
	sub("conn").Info("reconnecting", "port", m.port)
	m.connectLocked()
}

func (m *ConnManager) cancelRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

// closeConnLocked closes the current connection and stops its keepalive.
// No graceful drain: in-flight events of the old connection are discarded.
func (m *ConnManager) closeConnLocked() {
	if m.pingStop != nil {
		close(m.pingStop)
		m.pingStop = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

func (m *ConnManager) writeFrame(conn *websocket.Conn, v any) error {
	data, err := EncodeFrame(v)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (m *ConnManager) notify(connected bool) {
	if m.opts.OnStatus != nil {
		m.opts.OnStatus(connected)
	}
}
