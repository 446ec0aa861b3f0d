package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/otpmart/otpshopbot/internal/config"
)

// State is the connection lifecycle state of a Manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var (
	// ErrRetriesExhausted is returned once the connect attempt cap has been
	// reached; the Manager stays down until Connect is invoked again
	// externally or the process restarts.
	ErrRetriesExhausted = errors.New("database: connect retries exhausted")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("database: manager closed")
)

// Manager owns the single logical connection to the store. It establishes
// the connection, retries failed connects with a fixed delay up to an
// attempt cap, verifies liveness with a probe before trusting the connected
// flag, and re-applies the bootstrap schema after every successful connect.
type Manager struct {
	log   *slog.Logger
	open  func() (*sql.DB, error)
	probe time.Duration

	connectTimeout time.Duration
	retryDelay     time.Duration
	maxRetries     int

	// connectMu serializes the whole open+ping+install sequence so two
	// callers can never race each other into two live handles.
	connectMu sync.Mutex

	mu       sync.Mutex
	db       *sql.DB
	state    State
	attempts int
	retry    *time.Timer
	closed   bool
}

// NewManager builds a Manager for the configured PostgreSQL URL. No
// connection is made until Connect or Ready is called.
func NewManager(cfg config.Config, log *slog.Logger) *Manager {
	return &Manager{
		log:            log,
		probe:          5 * time.Second,
		connectTimeout: cfg.ConnectTimeout,
		retryDelay:     cfg.ReconnectDelay,
		maxRetries:     cfg.MaxConnectRetries,
		open: func() (*sql.DB, error) {
			dsn, err := buildDSN(cfg)
			if err != nil {
				return nil, err
			}
			db, err := sql.Open("postgres", dsn)
			if err != nil {
				return nil, fmt.Errorf("open postgres: %w", err)
			}
			// One logical connection shared by every component; no pool.
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
			db.SetConnMaxLifetime(0)
			return db, nil
		},
	}
}

// NewManagerWithDB adopts an already-open handle as connected. The caller
// owns the handle's lifecycle decisions: schema bootstrap and reconnection
// both still run through the Manager, but the initial session is trusted.
func NewManagerWithDB(db *sql.DB, log *slog.Logger) *Manager {
	return &Manager{
		log:            log,
		probe:          5 * time.Second,
		connectTimeout: 10 * time.Second,
		retryDelay:     10 * time.Second,
		maxRetries:     3,
		db:             db,
		state:          StateConnected,
		open:           func() (*sql.DB, error) { return db, nil },
	}
}

// buildDSN normalizes the configured URL: TLS on without peer verification,
// a connect timeout, an idle-in-transaction timeout, and keep-alives.
func buildDSN(cfg config.Config) (string, error) {
	u, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "require")
	}
	if q.Get("connect_timeout") == "" {
		q.Set("connect_timeout", strconv.Itoa(int(cfg.ConnectTimeout/time.Second)))
	}
	if q.Get("keepalives") == "" {
		q.Set("keepalives", "1")
	}
	if q.Get("options") == "" {
		ms := int(cfg.IdleInTxTimeout / time.Millisecond)
		q.Set("options", fmt.Sprintf("-c idle_in_transaction_session_timeout=%d", ms))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect establishes the connection. It is a no-op while connected and a
// hard failure once the attempt cap is reached. A failed attempt schedules
// one deferred retry after the fixed delay, so long as attempts remain.
// Concurrent callers are serialized: a caller that waited out another's
// successful connect returns nil without opening anything.
func (m *Manager) Connect(ctx context.Context) error {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	if m.attempts >= m.maxRetries {
		m.mu.Unlock()
		return ErrRetriesExhausted
	}
	m.attempts++
	attempt := m.attempts
	m.state = StateConnecting
	m.mu.Unlock()

	db, err := m.open()
	if err == nil {
		pingCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			db.Close()
		}
	}
	if err != nil {
		m.mu.Lock()
		m.state = StateDisconnected
		if !m.closed && m.attempts < m.maxRetries {
			if m.retry != nil {
				m.retry.Stop()
			}
			m.retry = time.AfterFunc(m.retryDelay, func() {
				if cerr := m.Connect(context.Background()); cerr != nil {
					m.log.Error("scheduled reconnect failed", "err", cerr)
				}
			})
		}
		m.mu.Unlock()
		m.log.Error("database connect failed", "attempt", attempt, "err", err)
		return fmt.Errorf("connect database: %w", err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		db.Close()
		return ErrClosed
	}
	m.db = db
	m.state = StateConnected
	m.attempts = 0
	m.mu.Unlock()
	m.log.Info("database connected", "attempt", attempt)

	Migrate(ctx, db, m.log)
	return nil
}

// Ready is the gate every statement goes through. It connects if needed and
// probes an existing connection before trusting it: error callbacks are not
// guaranteed to fire for every failure mode, so the connected flag alone is
// not proof of a live session.
func (m *Manager) Ready(ctx context.Context) (*sql.DB, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	state, db := m.state, m.db
	m.mu.Unlock()

	if state != StateConnected {
		if err := m.Connect(ctx); err != nil {
			return nil, err
		}
		return m.handle()
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.probe)
	var one int
	err := db.QueryRowContext(probeCtx, "SELECT 1").Scan(&one)
	cancel()
	if err == nil {
		return db, nil
	}

	m.log.Warn("liveness probe failed, reconnecting", "err", err)
	m.mu.Lock()
	if m.db == db {
		m.db = nil
		m.state = StateDisconnected
	}
	m.mu.Unlock()
	db.Close()

	if err := m.Connect(ctx); err != nil {
		return nil, err
	}
	return m.handle()
}

func (m *Manager) handle() (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.db == nil {
		return nil, ErrRetriesExhausted
	}
	return m.db, nil
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close cancels any pending reconnect and closes the handle. The Manager is
// unusable afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	db := m.db
	m.db = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if db != nil {
		return db.Close()
	}
	return nil
}
