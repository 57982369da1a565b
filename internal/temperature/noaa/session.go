package noaa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/openeemeter/eeweather/internal/provider/resilience"
)

// DefaultAddr is the NOAA archive host.
const DefaultAddr = "ftp.ncdc.noaa.gov:21"

// UpstreamName identifies the FTP archive in health reports.
const UpstreamName = "noaa-ftp"

// ErrConnect is returned when no FTP session could be established.
var ErrConnect = errors.New("could not connect to ftp host")

// Conn is the subset of an FTP control connection used by Session.
type Conn interface {
	Login(user, password string) error
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

// Dialer opens FTP connections.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// FTPDialer dials real servers.
type FTPDialer struct {
	Timeout time.Duration
}

// Dial connects to addr.
func (d FTPDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if d.Timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(d.Timeout))
	}
	c, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	return serverConn{c}, nil
}

type serverConn struct {
	c *ftp.ServerConn
}

func (s serverConn) Login(user, password string) error { return s.c.Login(user, password) }
func (s serverConn) Quit() error                       { return s.c.Quit() }

func (s serverConn) Retr(path string) (io.ReadCloser, error) {
	r, err := s.c.Retr(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// SessionConfig holds configuration for an FTP session.
type SessionConfig struct {
	// Addr is host:port. Default: DefaultAddr
	Addr string

	// Dialer defaults to FTPDialer with Timeout.
	Dialer Dialer

	// Timeout for dialing and control commands. Default: 60 seconds
	Timeout time.Duration

	// ConnectAttempts before giving up on a connection. Default: 5
	ConnectAttempts uint64

	// ConnectInterval between connection attempts. Default: 1 second
	ConnectInterval time.Duration

	// Registry receives health reports when set.
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Session is a lazily established, shared anonymous FTP session. Files are
// retrieved one at a time; a failed retrieval reconnects and retries once.
type Session struct {
	mu      sync.Mutex
	conn    Conn
	config  SessionConfig
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  zerolog.Logger
}

// NewSession creates a session. No connection is made until the first
// Retrieve.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = FTPDialer{Timeout: cfg.Timeout}
	}
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = 5
	}
	if cfg.ConnectInterval == 0 {
		cfg.ConnectInterval = time.Second
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig(UpstreamName)
	// A file abandoned after its retry says nothing about the host; only an
	// unreachable host opens the breaker.
	breakerCfg.IsSuccessful = func(err error) bool {
		return !errors.Is(err, ErrConnect)
	}

	s := &Session{
		config:  cfg,
		breaker: resilience.NewCircuitBreaker[[]byte](breakerCfg),
		logger:  cfg.Logger.With().Str("ftp_host", cfg.Addr).Logger(),
	}
	if cfg.Registry != nil {
		cfg.Registry.Register(UpstreamName, s)
	}
	return s
}

// Retrieve downloads path. Missing files return an error matching
// resilience.ErrNotFound; an unreachable host returns ErrConnect.
func (s *Session) Retrieve(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.breaker.Execute(func() ([]byte, error) {
		return s.retrieve(ctx, path)
	})
	err = resilience.BreakerError(err)
	s.report(err)
	return data, err
}

func (s *Session) retrieve(ctx context.Context, path string) ([]byte, error) {
	if s.conn == nil {
		if err := s.connect(ctx); err != nil {
			return nil, err
		}
	}

	var data []byte
	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			s.close()
			if err := s.connect(ctx); err != nil {
				return backoff.Permanent(fmt.Errorf("reconnect: %v", err))
			}
		}

		b, err := s.read(path)
		if isFileUnavailable(err) {
			return backoff.Permanent(fmt.Errorf("%s: %w", path, resilience.ErrNotFound))
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("path", path).Int("attempt", attempt).Msg("RETR failed")
			return err
		}
		data = b
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	s.logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("retrieved")
	return data, nil
}

func (s *Session) read(path string) ([]byte, error) {
	r, err := s.conn.Retr(path)
	if err != nil {
		return nil, err
	}
	data, readErr := io.ReadAll(r)
	closeErr := r.Close()
	if readErr != nil {
		return nil, readErr
	}
	if closeErr != nil {
		return nil, closeErr
	}
	return data, nil
}

func (s *Session) connect(ctx context.Context) error {
	attempt := 0
	operation := func() error {
		attempt++
		conn, err := s.config.Dialer.Dial(ctx, s.config.Addr)
		if err == nil {
			if err = conn.Login("anonymous", "anonymous@"); err != nil {
				_ = conn.Quit() //nolint:errcheck // abandoning a half-open session
			}
		}
		if err != nil {
			s.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Uint64("attempts", s.config.ConnectAttempts).
				Msg("ftp connect failed")
			return err
		}
		s.conn = conn
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.config.ConnectInterval), s.config.ConnectAttempts-1),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("%w %s: %v", ErrConnect, s.config.Addr, err)
	}
	s.logger.Info().Msg("connected")
	return nil
}

func (s *Session) close() {
	if s.conn == nil {
		return
	}
	_ = s.conn.Quit() //nolint:errcheck // connection is being replaced
	s.conn = nil
}

// Close ends the session if one is open.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.close()
	return nil
}

func (s *Session) report(err error) {
	if s.config.Registry == nil {
		return
	}
	if err == nil || errors.Is(err, resilience.ErrNotFound) {
		s.config.Registry.RecordSuccess(UpstreamName)
		return
	}
	s.config.Registry.RecordFailure(UpstreamName, err)
}

// BreakerState returns the circuit breaker state.
func (s *Session) BreakerState() gobreaker.State {
	return s.breaker.State()
}

// BreakerCounts returns the circuit breaker counts.
func (s *Session) BreakerCounts() gobreaker.Counts {
	return s.breaker.Counts()
}

func isFileUnavailable(err error) bool {
	var protoErr *textproto.Error
	return errors.As(err, &protoErr) && protoErr.Code == ftp.StatusFileUnavailable
}
