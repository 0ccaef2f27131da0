package instrument

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultChunkSize = 1024 * 1024
)

type Options struct {
	Timeout     time.Duration
	ChunkSize   int
	DialRetries uint64
	DialBackoff time.Duration
	Logger      zerolog.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

func WithChunkSize(n int) Option {
	return func(o *Options) { o.ChunkSize = n }
}

func WithDialRetries(n uint64, base time.Duration) Option {
	return func(o *Options) {
		o.DialRetries = n
		o.DialBackoff = base
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// Session is an open connection to a SCPI instrument over a raw socket.
// It must not be shared between benchmark runs.
type Session struct {
	Resource Resource

	conn    net.Conn
	rd      *bufio.Reader
	opts    Options
	log     zerolog.Logger
	mu      sync.Mutex
	closed  bool
	timeout time.Duration
}

// Open dials the instrument and runs the session preamble (*CLS, HEADer OFF).
func Open(ctx context.Context, resource string, opts ...Option) (*Session, error) {
	o := Options{
		Timeout:     DefaultTimeout,
		ChunkSize:   DefaultChunkSize,
		DialRetries: 3,
		DialBackoff: 200 * time.Millisecond,
		Logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	res, err := ParseResource(resource)
	if err != nil {
		return nil, err
	}
	log := o.Logger.With().Str("component", "instrument").Str("resource", res.Raw).Logger()

	if o.DialBackoff <= 0 {
		return nil, fmt.Errorf("invalid dial backoff %s: must be positive", o.DialBackoff)
	}
	backoff := retry.WithMaxRetries(o.DialRetries, retry.NewExponential(o.DialBackoff))

	var conn net.Conn
	dialer := &net.Dialer{Timeout: o.Timeout}
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := dialer.DialContext(ctx, "tcp", res.Addr())
		if err != nil {
			log.Debug().Err(err).Msg("dial failed")
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, &SessionError{Op: "dial", Command: res.Addr(), Err: err}
	}

	s := &Session{
		Resource: res,
		conn:     conn,
		rd:       bufio.NewReaderSize(conn, 64*1024),
		opts:     o,
		log:      log,
		timeout:  o.Timeout,
	}

	for _, cmd := range []string{"*CLS", "HEADer OFF"} {
		if err := s.Command(cmd); err != nil {
			conn.Close()
			return nil, err
		}
	}

	log.Info().Dur("timeout", o.Timeout).Msg("session opened")
	return s, nil
}

// NewSession wraps an already established connection. No preamble is sent.
func NewSession(conn net.Conn, opts ...Option) *Session {
	o := Options{Timeout: DefaultTimeout, ChunkSize: DefaultChunkSize, Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Session{
		Resource: Resource{Raw: conn.RemoteAddr().String()},
		conn:     conn,
		rd:       bufio.NewReaderSize(conn, 64*1024),
		opts:     o,
		log:      o.Logger.With().Str("component", "instrument").Logger(),
		timeout:  o.Timeout,
	}
}

// Command sends a command that produces no response.
func (s *Session) Command(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(cmd)
}

// Query sends cmd and returns the response line without its terminator.
func (s *Session) Query(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(cmd); err != nil {
		return "", err
	}
	line, err := s.rd.ReadString('\n')
	if err != nil {
		return "", &SessionError{Op: "read", Command: cmd, Err: mapNetErr(err)}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// QueryBinary sends cmd and decodes the definite length block it returns.
func (s *Session) QueryBinary(cmd string, f SampleFormat) ([]int16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(cmd); err != nil {
		return nil, err
	}
	// the timeout bounds each chunk, not the whole transfer
	data, err := ReadBlock(s.rd, s.opts.ChunkSize, s.extendReadDeadline)
	if err != nil {
		return nil, &SessionError{Op: "read", Command: cmd, Err: mapNetErr(err)}
	}
	samples, err := Decode(data, f)
	if err != nil {
		return nil, &SessionError{Op: "decode", Command: cmd, Err: err}
	}
	return samples, nil
}

// Identify returns the *IDN? response.
func (s *Session) Identify() (string, error) {
	return s.Query("*IDN?")
}

// EventStatus reads the standard event status register and all pending event messages.
func (s *Session) EventStatus() (int, string, error) {
	r, err := s.Query("*ESR?")
	if err != nil {
		return 0, "", err
	}
	esr, err := strconv.Atoi(strings.TrimSpace(r))
	if err != nil {
		return 0, "", &SessionError{Op: "read", Command: "*ESR?", Err: err}
	}
	events, err := s.Query("ALLEv?")
	if err != nil {
		return esr, "", err
	}
	return esr, strings.TrimSpace(events), nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.log.Info().Msg("session closed")
	return s.conn.Close()
}

func (s *Session) write(cmd string) error {
	if s.closed {
		return &SessionError{Op: "write", Command: cmd, Err: ErrClosed}
	}
	if err := s.conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		return &SessionError{Op: "write", Command: cmd, Err: err}
	}
	s.log.Trace().Str("cmd", cmd).Msg("send")
	if _, err := s.conn.Write([]byte(cmd + "\n")); err != nil {
		return &SessionError{Op: "write", Command: cmd, Err: mapNetErr(err)}
	}
	return nil
}

func (s *Session) extendReadDeadline() error {
	return s.conn.SetReadDeadline(time.Now().Add(s.timeout))
}

func mapNetErr(err error) error {
	var ne net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
