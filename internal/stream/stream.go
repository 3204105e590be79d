// Package stream keeps public and private exchange channels alive: connect,
// subscribe, heartbeat, credential renewal and a bounded reconnect loop.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"spreadwatch/internal/errs"
	"spreadwatch/logger"
)

// SessionState tracks where a channel is in its lifecycle.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateConnecting
	StateSubscribed
	StateStreaming
	StateReconnecting
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one open transport. ReadMessage blocks until a frame arrives or the
// transport closes.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v interface{}) error
	Ping() error
	Close() error
}

// Dialer opens a transport to a URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Credentials obtains and renews the account-stream token (listenKey style).
type Credentials interface {
	Obtain(ctx context.Context) (string, error)
	Renew(ctx context.Context, token string) (string, error)
}

// Callback receives each data frame of a channel in arrival order.
type Callback func(message []byte)

// Session is one public or private channel owned by a Manager. Its state is
// mutated only by the manager.
type Session struct {
	ID     string
	Topics []string

	mu    sync.Mutex
	state SessionState
	conn  Conn
}

func newSession(id string, topics []string) *Session {
	return &Session{ID: id, Topics: topics, state: StateIdle}
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) attach(conn Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Session) detach() Conn {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	return conn
}

func (s *Session) closeConn() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

const (
	// Reconnects per subscribe call, on top of the initial connect.
	reconnectAttempts = 5

	defaultHeartbeat = 5 * time.Minute
	defaultRenew     = 30 * time.Minute
)

// Options tunes the manager; zero values take the defaults above.
type Options struct {
	HeartbeatInterval time.Duration
	RenewInterval     time.Duration
}

// Manager multiplexes zero-or-many public sessions and at most one account
// session over one dialer. Closing it is idempotent and final.
type Manager struct {
	dialer     Dialer
	creds      Credentials
	publicURL  string
	accountURL func(token string) string

	heartbeat time.Duration
	renew     time.Duration

	closed atomic.Bool

	mu      sync.Mutex
	public  map[string]*Session
	account *Session

	log *logger.Entry
}

// NewManager wires a manager from its transports. creds and accountURL may be
// nil when only public channels are used.
func NewManager(dialer Dialer, creds Credentials, publicURL string, accountURL func(token string) string, opts Options) *Manager {
	hb := opts.HeartbeatInterval
	if hb <= 0 {
		hb = defaultHeartbeat
	}
	rn := opts.RenewInterval
	if rn <= 0 {
		rn = defaultRenew
	}
	return &Manager{
		dialer:     dialer,
		creds:      creds,
		publicURL:  publicURL,
		accountURL: accountURL,
		heartbeat:  hb,
		renew:      rn,
		public:     make(map[string]*Session),
		log:        logger.GetLogger().WithComponent("stream_manager"),
	}
}

// PublicSessions returns the public sessions keyed by subscription id.
func (m *Manager) PublicSessions() map[string]*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*Session, len(m.public))
	for id, s := range m.public {
		out[id] = s
	}
	return out
}

// AccountSession returns the private session, or nil.
func (m *Manager) AccountSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account
}

// SubscribePublic opens a public channel for the topics and blocks, feeding
// data frames to cb until the session closes. It returns nil on a normal
// close and an error once the reconnect budget is exhausted.
func (m *Manager) SubscribePublic(ctx context.Context, topics []string, cb Callback) error {
	if m.closed.Load() {
		return fmt.Errorf("stream manager already closed")
	}

	sess := newSession(uuid.NewString(), topics)
	m.mu.Lock()
	m.public[sess.ID] = sess
	m.mu.Unlock()

	log := m.log.WithFields(logger.Fields{"session": sess.ID, "channel": "public"})

	connect := func(ctx context.Context) (Conn, error) {
		conn, err := m.dialer.Dial(ctx, m.publicURL)
		if err != nil {
			return nil, err
		}
		frame := map[string]interface{}{
			"method": "SUBSCRIBE",
			"params": topics,
			"id":     time.Now().UnixNano(),
		}
		if err := conn.WriteJSON(frame); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}

	return m.run(ctx, sess, log, connect, cb)
}

// SubscribeAccount opens the single private channel and blocks like
// SubscribePublic. A fresh token is obtained on every connect attempt, and a
// renewal task keeps it alive for the lifetime of each connection.
func (m *Manager) SubscribeAccount(ctx context.Context, cb Callback) error {
	if m.closed.Load() {
		return fmt.Errorf("stream manager already closed")
	}
	if m.creds == nil || m.accountURL == nil {
		return fmt.Errorf("account streaming not configured")
	}

	sess := newSession("account", nil)
	m.mu.Lock()
	if m.account != nil && m.account.State() != StateClosed {
		m.mu.Unlock()
		return fmt.Errorf("account session already active")
	}
	m.account = sess
	m.mu.Unlock()

	log := m.log.WithFields(logger.Fields{"session": sess.ID, "channel": "account"})

	var renewStop func()
	connect := func(ctx context.Context) (Conn, error) {
		if renewStop != nil {
			renewStop()
			renewStop = nil
		}
		token, err := m.creds.Obtain(ctx)
		if err != nil {
			return nil, err
		}
		conn, err := m.dialer.Dial(ctx, m.accountURL(token))
		if err != nil {
			return nil, err
		}
		renewStop = m.startRenewal(ctx, conn, token, log)
		return conn, nil
	}

	err := m.run(ctx, sess, log, connect, cb)
	if renewStop != nil {
		renewStop()
	}
	return err
}

// run is the shared session loop: one initial connect plus up to
// reconnectAttempts immediate reconnects, each redoing the full
// connect/subscribe sequence.
func (m *Manager) run(ctx context.Context, sess *Session, log *logger.Entry, connect func(context.Context) (Conn, error), cb Callback) error {
	defer sess.setState(StateClosed)

	var lastErr error
	for attempt := 0; attempt <= reconnectAttempts; attempt++ {
		if m.closed.Load() {
			log.Info("session closed normally")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if attempt == 0 {
			sess.setState(StateConnecting)
		} else {
			sess.setState(StateReconnecting)
			log.WithFields(logger.Fields{"attempt": attempt}).Info("reconnecting")
			log.LogMetric("stream", "stream_reconnects", 1, "counter", logger.Fields{"attempt": attempt})
		}

		conn, err := connect(ctx)
		if err != nil {
			if errs.IsFatal(err) {
				return err
			}
			log.WithError(err).Warn("connect failed")
			lastErr = err
			continue
		}

		sess.attach(conn)
		sess.setState(StateSubscribed)
		log.Info("channel subscribed")

		hbStop := m.startHeartbeat(conn, log)
		readErr := m.readLoop(sess, conn, cb, log)
		hbStop()

		if c := sess.detach(); c != nil {
			c.Close()
		}

		if m.closed.Load() {
			log.Info("session closed normally")
			return nil
		}
		lastErr = readErr
		log.WithError(readErr).Warn("channel disconnected unexpectedly")
	}

	log.Warn("reconnect attempts exhausted")
	return fmt.Errorf("%w: %v", errs.ErrStreamDisconnect, lastErr)
}

// readLoop forwards data frames to cb. Subscription-ack frames are logged
// and never forwarded; the first real payload moves the session to
// streaming. The normally-closed flag is rechecked after every blocking
// receive so a racing disconnect never triggers a reconnect.
func (m *Manager) readLoop(sess *Session, conn Conn, cb Callback, log *logger.Entry) error {
	for {
		msg, err := conn.ReadMessage()
		if m.closed.Load() {
			return nil
		}
		if err != nil {
			return err
		}
		if isAck(msg) {
			log.WithFields(logger.Fields{"frame": string(msg)}).Info("subscription ack")
			continue
		}
		sess.setState(StateStreaming)
		cb(msg)
	}
}

// isAck reports whether the frame is a subscription acknowledgement: a JSON
// object carrying a top-level "result" member. Data frames nesting a
// "result" string somewhere in their payload are not acks.
func isAck(msg []byte) bool {
	var frame map[string]json.RawMessage
	if err := json.Unmarshal(msg, &frame); err != nil {
		return false
	}
	_, ok := frame["result"]
	return ok
}

// startHeartbeat pings the connection at the keepalive interval. A failed
// ping closes the transport, which surfaces in the read loop as an
// unexpected disconnect.
func (m *Manager) startHeartbeat(conn Conn, log *logger.Entry) func() {
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	go func() {
		ticker := time.NewTicker(m.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if m.closed.Load() {
					return
				}
				if err := conn.Ping(); err != nil {
					log.WithError(err).Warn("heartbeat failed, closing transport")
					conn.Close()
					return
				}
			}
		}
	}()
	return stop
}

// startRenewal refreshes the account token at the renewal interval for the
// lifetime of the connection.
func (m *Manager) startRenewal(ctx context.Context, conn Conn, token string, log *logger.Entry) func() {
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	go func() {
		ticker := time.NewTicker(m.renew)
		defer ticker.Stop()
		current := token
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if m.closed.Load() {
					return
				}
				renewed, err := m.creds.Renew(ctx, current)
				if err != nil {
					log.WithError(err).Warn("credential renewal failed, closing transport")
					conn.Close()
					return
				}
				if renewed != "" {
					current = renewed
				}
				log.Info("credential renewed")
			}
		}
	}()
	return stop
}

// Close marks the manager normally closed and closes every owned transport.
// No reconnect happens after it, even if a disconnect is already in flight.
// It is idempotent.
func (m *Manager) Close() {
	if m.closed.Swap(true) {
		return
	}

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.public)+1)
	for _, s := range m.public {
		sessions = append(sessions, s)
	}
	if m.account != nil {
		sessions = append(sessions, m.account)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.closeConn()
	}
	m.log.Info("stream manager closed")
}
