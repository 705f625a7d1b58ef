package stream

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cuemby/wikifeed/pkg/log"
	"github.com/cuemby/wikifeed/pkg/metrics"
	"github.com/juju/clock"
	"github.com/rs/zerolog"
)

const (
	// DefaultURL is the Wikimedia recent-change stream
	DefaultURL = "https://stream.wikimedia.org/v2/stream/recentchange"

	// DefaultReconnectDelay is the fixed wait between connection attempts
	DefaultReconnectDelay = 5 * time.Second

	// DefaultConnectTimeout bounds dialing, the TLS handshake and waiting
	// for response headers. It does not limit how long the body is read.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultUserAgent identifies the client to the upstream
	DefaultUserAgent = "wikifeed (+https://github.com/cuemby/wikifeed)"
)

// Config holds stream connection settings
type Config struct {
	URL            string
	ReconnectDelay time.Duration
	ConnectTimeout time.Duration

	// IdleTimeout treats a stream that delivers no bytes for this long as
	// lost. Zero disables the check.
	IdleTimeout time.Duration

	UserAgent string

	// Client overrides the HTTP client built from ConnectTimeout.
	Client *http.Client

	// Clock drives the reconnect delay. Defaults to the wall clock.
	Clock clock.Clock

	// OnConnected and OnDisconnected are called from the run loop.
	OnConnected    func(url string)
	OnDisconnected func(err error)
}

// Manager keeps a connection to the event stream open and hands every
// message record to the caller, reconnecting after any failure.
type Manager struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger

	connected   atomic.Bool
	lastEventID string // only touched by the run loop
}

// NewManager creates a stream manager, filling in defaults
func NewManager(cfg Config) *Manager {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}

	client := cfg.Client
	if client == nil {
		client = newStreamClient(cfg.ConnectTimeout)
	}

	return &Manager{
		cfg:    cfg,
		client: client,
		logger: log.WithComponent("stream").With().Str("url", cfg.URL).Logger(),
	}
}

// newStreamClient builds a client whose timeouts cover connection setup
// only. http.Client.Timeout is left unset since it would also cut off the
// never-ending response body.
func newStreamClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = timeout
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport}
}

// Connected reports whether a session is currently open
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

// Run connects to the stream and calls onRecord with the data of every
// message frame, in order, from a single goroutine. It blocks until ctx is
// cancelled and then returns ctx.Err(); connection failures are logged and
// retried after the reconnect delay.
func (m *Manager) Run(ctx context.Context, onRecord func(record string)) error {
	for {
		err := m.runSession(ctx, onRecord)
		if ctx.Err() != nil {
			m.logger.Info().Msg("Event stream stopped")
			return ctx.Err()
		}

		m.logger.Warn().
			Err(err).
			Dur("retry_in", m.cfg.ReconnectDelay).
			Msg("Event stream connection lost")
		if m.cfg.OnDisconnected != nil {
			m.cfg.OnDisconnected(err)
		}

		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Event stream stopped")
			return ctx.Err()
		case <-m.cfg.Clock.After(m.cfg.ReconnectDelay):
		}
		metrics.StreamReconnectsTotal.Inc()
	}
}

func (m *Manager) runSession(ctx context.Context, onRecord func(string)) error {
	sess, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		m.lastEventID = sess.lastID
		m.setConnected(false)
		_ = sess.Close()
	}()

	m.setConnected(true)
	m.logger.Info().Msg("Connected to event stream")
	if m.cfg.OnConnected != nil {
		m.cfg.OnConnected(m.cfg.URL)
	}

	for {
		record, err := sess.Next()
		if err != nil {
			return err
		}
		m.handle(onRecord, record)
	}
}

// handle shields the session from a panicking record handler.
func (m *Manager) handle(onRecord func(string), record string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().
				Err(fmt.Errorf("panic: %v", r)).
				Int("record_bytes", len(record)).
				Msg("Record handler panicked, skipping record")
		}
	}()
	onRecord(record)
}

func (m *Manager) setConnected(connected bool) {
	m.connected.Store(connected)
	if connected {
		metrics.StreamConnected.Set(1)
	} else {
		metrics.StreamConnected.Set(0)
	}
}
