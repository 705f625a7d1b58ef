package stream

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/wikifeed/pkg/errors"
	"github.com/cuemby/wikifeed/pkg/metrics"
)

var errStreamEnded = errors.New("stream ended")

var errIdle = errors.New("no data received within idle timeout")

// session is one physical connection to the stream. It is owned by the
// Manager's run loop and never shared.
type session struct {
	url     string
	body    io.ReadCloser
	scanner *Scanner
	cancel  context.CancelCauseFunc
	idle    *idleWatch
	lastID  string

	closeOnce sync.Once
}

// connect issues the streaming GET and returns a session on a 2xx response.
func (m *Manager) connect(ctx context.Context) (*session, error) {
	reqCtx, cancel := context.WithCancelCause(ctx)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, m.cfg.URL, nil)
	if err != nil {
		cancel(err)
		return nil, errors.NewConnectionError(m.cfg.URL, 0, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if m.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", m.cfg.UserAgent)
	}
	if m.lastEventID != "" {
		req.Header.Set("Last-Event-ID", m.lastEventID)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		cancel(err)
		return nil, errors.NewConnectionError(m.cfg.URL, 0, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel(nil)
		return nil, errors.NewConnectionError(m.cfg.URL, resp.StatusCode, nil)
	}

	s := &session{
		url:    m.cfg.URL,
		body:   resp.Body,
		cancel: cancel,
	}

	var r io.Reader = resp.Body
	if m.cfg.IdleTimeout > 0 {
		s.idle = newIdleWatch(m.cfg.IdleTimeout, func() { cancel(errIdle) })
		r = s.idle.wrap(resp.Body)
	}
	s.scanner = NewScanner(r)

	return s, nil
}

// Next returns the data of the next message frame. Frames of any other
// event type are discarded. The error is always a ConnectionError.
func (s *session) Next() (string, error) {
	for s.scanner.Next() {
		frame := s.scanner.Frame()
		if frame.ID != "" {
			s.lastID = frame.ID
		}
		if !frame.IsMessage() {
			metrics.FramesSkippedTotal.Inc()
			continue
		}
		return frame.Data, nil
	}

	err := s.scanner.Err()
	if err == nil {
		err = errStreamEnded
	}
	if s.idle != nil && s.idle.fired() {
		err = errIdle
	}
	return "", errors.NewConnectionError(s.url, 0, err)
}

// Close releases the connection. Safe to call more than once.
func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.idle != nil {
			s.idle.stop()
		}
		s.cancel(nil)
		err = s.body.Close()
	})
	return err
}

// idleWatch fires when no bytes were read for the configured duration.
type idleWatch struct {
	timeout time.Duration
	timer   *time.Timer

	mu      sync.Mutex
	expired bool
}

func newIdleWatch(timeout time.Duration, onExpire func()) *idleWatch {
	w := &idleWatch{timeout: timeout}
	w.timer = time.AfterFunc(timeout, func() {
		w.mu.Lock()
		w.expired = true
		w.mu.Unlock()
		onExpire()
	})
	return w
}

func (w *idleWatch) wrap(r io.Reader) io.Reader {
	return readerFunc(func(p []byte) (int, error) {
		n, err := r.Read(p)
		if n > 0 {
			w.timer.Reset(w.timeout)
		}
		return n, err
	})
}

func (w *idleWatch) fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.expired
}

func (w *idleWatch) stop() {
	w.timer.Stop()
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) {
	return f(p)
}
