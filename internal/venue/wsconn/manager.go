// Package wsconn provides a reconnecting WebSocket transport shared by
// both venue clients: exponential backoff on disconnect, ping/pong
// keepalive, resubscribe-on-reconnect, and a pre-emptive reconnect ahead
// of a venue-imposed session age cap.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config controls reconnect behavior. Defaults mirror a conservative
// venue-facing WS client: short initial backoff, capped max delay, a
// retry ceiling so a dead venue doesn't spin forever, and an optional
// MaxConnAge so long-lived sessions are renewed before a provider-side
// cap forces a disconnect mid-interval.
type Config struct {
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	MaxRetries     int // 0 = unlimited
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
	// MaxConnAge, if > 0, forces a clean reconnect before the connection
	// reaches this age. Zero disables the pre-emptive reconnect.
	MaxConnAge time.Duration
}

// DefaultConfig returns settings suitable for either venue's market-data
// feed: 2s initial backoff doubling to 16s, 10 retries, 30s ping
// cadence, and pre-emptive reconnect at 23.5h to stay ahead of a 24h
// provider session cap.
func DefaultConfig() Config {
	return Config{
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     10,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
		MaxConnAge:     23*time.Hour + 30*time.Minute,
	}
}

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrClosed is returned by Connect once the manager has been closed.
var ErrClosed = errors.New("wsconn: manager is closed")

// Manager owns one reconnecting WebSocket connection.
type Manager struct {
	name   string
	url    string
	cfg    Config
	log    *zap.Logger

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32 // atomic State
	retryCount int32 // atomic
	connectedAt atomic.Value // time.Time

	closeChan   chan struct{}
	closeOnce   sync.Once

	onMessage    func([]byte)
	onConnect    func()
	onDisconnect func(error)
	callbackMu   sync.RWMutex

	subscriptions   []interface{}
	subscriptionsMu sync.RWMutex

	authFunc func(*websocket.Conn) error
}

// New builds a Manager for one venue's WS endpoint.
func New(name, url string, cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		name:      name,
		url:       url,
		cfg:       cfg,
		log:       log.With(zap.String("venue", name)),
		closeChan: make(chan struct{}),
	}
}

func (m *Manager) SetOnMessage(h func([]byte))    { m.callbackMu.Lock(); m.onMessage = h; m.callbackMu.Unlock() }
func (m *Manager) SetOnConnect(h func())          { m.callbackMu.Lock(); m.onConnect = h; m.callbackMu.Unlock() }
func (m *Manager) SetOnDisconnect(h func(error))  { m.callbackMu.Lock(); m.onDisconnect = h; m.callbackMu.Unlock() }
func (m *Manager) SetAuthFunc(f func(*websocket.Conn) error) { m.authFunc = f }

// AddSubscription records a subscription message to be replayed on every
// (re)connect.
func (m *Manager) AddSubscription(sub interface{}) {
	m.subscriptionsMu.Lock()
	m.subscriptions = append(m.subscriptions, sub)
	m.subscriptionsMu.Unlock()
}

// ClearSubscriptions drops all recorded subscriptions, used at interval
// rollover when the coordinator moves to a new market.
func (m *Manager) ClearSubscriptions() {
	m.subscriptionsMu.Lock()
	m.subscriptions = nil
	m.subscriptionsMu.Unlock()
}

func (m *Manager) State() State {
	return State(atomic.LoadInt32(&m.state))
}

func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Connect dials and, on success, starts the read and ping pumps plus the
// pre-emptive-reconnect timer.
func (m *Manager) Connect() error {
	select {
	case <-m.closeChan:
		return ErrClosed
	default:
	}

	atomic.StoreInt32(&m.state, int32(StateConnecting))

	if err := m.dial(); err != nil {
		atomic.StoreInt32(&m.state, int32(StateDisconnected))
		return err
	}

	atomic.StoreInt32(&m.state, int32(StateConnected))
	atomic.StoreInt32(&m.retryCount, 0)
	m.connectedAt.Store(time.Now())

	m.fireOnConnect()

	go m.readPump()
	go m.pingPump()
	if m.cfg.MaxConnAge > 0 {
		go m.agePump()
	}

	m.log.Info("websocket connected", zap.String("url", m.url))
	return nil
}

func (m *Manager) dial() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("wsconn: dial %s: %w", m.name, err)
	}

	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()

	if m.authFunc != nil {
		if err := m.authFunc(conn); err != nil {
			conn.Close()
			m.connMu.Lock()
			m.conn = nil
			m.connMu.Unlock()
			return fmt.Errorf("wsconn: auth %s: %w", m.name, err)
		}
	}

	if err := m.resubscribe(); err != nil {
		m.log.Warn("resubscribe failed, will retry on next message flow", zap.Error(err))
	}

	return nil
}

func (m *Manager) resubscribe() error {
	m.subscriptionsMu.RLock()
	subs := make([]interface{}, len(m.subscriptions))
	copy(subs, m.subscriptions)
	m.subscriptionsMu.RUnlock()

	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()

	if conn == nil {
		return fmt.Errorf("wsconn: no connection")
	}
	for _, sub := range subs {
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("wsconn: resubscribe: %w", err)
		}
	}
	if len(subs) > 0 {
		m.log.Info("resubscribed", zap.Int("count", len(subs)))
	}
	return nil
}

func (m *Manager) readPump() {
	defer m.handleDisconnect(nil)
	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		m.connMu.RLock()
		conn := m.conn
		m.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(err)
			return
		}

		m.callbackMu.RLock()
		onMessage := m.onMessage
		m.callbackMu.RUnlock()
		if onMessage != nil {
			onMessage(message)
		}
	}
}

func (m *Manager) pingPump() {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.closeChan:
			return
		case <-ticker.C:
			if m.State() != StateConnected {
				return
			}
			m.connMu.RLock()
			conn := m.conn
			m.connMu.RUnlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(m.cfg.PongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.log.Warn("ping failed", zap.Error(err))
				m.handleDisconnect(err)
				return
			}
		}
	}
}

// agePump forces a clean reconnect before the session reaches MaxConnAge,
// so a provider-imposed 24h cap never surfaces as an unplanned drop
// mid-interval.
func (m *Manager) agePump() {
	timer := time.NewTimer(m.cfg.MaxConnAge)
	defer timer.Stop()
	select {
	case <-m.closeChan:
		return
	case <-timer.C:
		if m.State() != StateConnected {
			return
		}
		m.log.Info("pre-emptive reconnect ahead of session age cap")
		m.handleDisconnect(nil)
	}
}

func (m *Manager) handleDisconnect(err error) {
	select {
	case <-m.closeChan:
		return
	default:
	}

	state := m.State()
	if state == StateReconnecting || state == StateClosed {
		return
	}
	atomic.StoreInt32(&m.state, int32(StateReconnecting))

	m.connMu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connMu.Unlock()

	m.callbackMu.RLock()
	onDisconnect := m.onDisconnect
	m.callbackMu.RUnlock()
	if onDisconnect != nil {
		onDisconnect(err)
	}
	if err != nil {
		m.log.Warn("websocket disconnected", zap.Error(err))
	}

	go m.reconnectLoop()
}

func (m *Manager) reconnectLoop() {
	delay := m.cfg.InitialDelay

	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		retryCount := atomic.AddInt32(&m.retryCount, 1)
		if m.cfg.MaxRetries > 0 && int(retryCount) > m.cfg.MaxRetries {
			m.log.Error("max reconnect attempts reached, giving up", zap.Int("max_retries", m.cfg.MaxRetries))
			atomic.StoreInt32(&m.state, int32(StateDisconnected))
			return
		}

		m.log.Info("reconnecting", zap.Duration("delay", delay), zap.Int32("attempt", retryCount))

		select {
		case <-m.closeChan:
			return
		case <-time.After(delay):
		}

		if err := m.dial(); err != nil {
			m.log.Warn("reconnect attempt failed", zap.Error(err))
			delay *= 2
			if delay > m.cfg.MaxDelay {
				delay = m.cfg.MaxDelay
			}
			continue
		}

		atomic.StoreInt32(&m.state, int32(StateConnected))
		atomic.StoreInt32(&m.retryCount, 0)
		m.connectedAt.Store(time.Now())
		m.fireOnConnect()

		m.log.Info("reconnected")
		go m.readPump()
		go m.pingPump()
		if m.cfg.MaxConnAge > 0 {
			go m.agePump()
		}
		return
	}
}

func (m *Manager) fireOnConnect() {
	m.callbackMu.RLock()
	onConnect := m.onConnect
	m.callbackMu.RUnlock()
	if onConnect != nil {
		onConnect()
	}
}

// Send writes msg as JSON, only while connected.
func (m *Manager) Send(msg interface{}) error {
	if m.State() != StateConnected {
		return fmt.Errorf("wsconn: not connected (state: %s)", m.State())
	}
	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("wsconn: no connection")
	}
	return conn.WriteJSON(msg)
}

// Close shuts the manager down permanently; it cannot be reused.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() { close(m.closeChan) })
	atomic.StoreInt32(&m.state, int32(StateClosed))

	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.conn != nil {
		err := m.conn.Close()
		m.conn = nil
		return err
	}
	return nil
}

// RetryCount returns the current reconnect attempt counter.
func (m *Manager) RetryCount() int {
	return int(atomic.LoadInt32(&m.retryCount))
}
