// Package mailer delivers a single message with one attachment over SMTP.
//
// The SMTP conversation and MIME composition are handled by go-mail. This
// package adds the connection policy (implicit TLS, STARTTLS or plain) and
// classifies failures: a rejection of the credentials wraps ErrAuth, every
// other failure (dial, TLS, envelope, data, quit) wraps ErrTransport.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/mail"
	"net/textproto"
	"strconv"
	"sync"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// Sentinel errors for delivery.
var (
	ErrAuth      = errors.New("smtp authentication failed")
	ErrTransport = errors.New("smtp transport failed")
	ErrAddress   = errors.New("invalid email address")
)

// Security selects how the connection is encrypted.
type Security int

const (
	// ImplicitTLS wraps the connection in TLS before the greeting (port 465).
	ImplicitTLS Security = iota
	// StartTLS upgrades a plain connection with the STARTTLS command (port 587).
	StartTLS
	// Plain sends everything unencrypted. PLAIN auth is only allowed over it
	// when the server is localhost.
	Plain
)

// DefaultTimeout bounds a whole SMTP session when the context has no deadline.
const DefaultTimeout = 60 * time.Second

// authReplyCodes are the SMTP replies that reject credentials (RFC 4954).
var authReplyCodes = map[int]bool{
	530: true,
	534: true,
	535: true,
	538: true,
}

// Config holds server coordinates and credentials.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Security Security
	Timeout  time.Duration
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dialer opens the raw TCP connection. Tests replace it with net.Pipe.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

// Option configures a Mailer.
type Option func(*Mailer)

// WithDialer sets the function used to open connections.
func WithDialer(d Dialer) Option {
	return func(m *Mailer) {
		m.dial = d
	}
}

// WithTLSConfig sets the TLS configuration used for ImplicitTLS and StartTLS.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(m *Mailer) {
		m.tlsConfig = cfg
	}
}

// WithLogger sets the logger for session diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mailer) {
		m.logger = l
	}
}

// WithClock sets the time source used for the Date header.
func WithClock(now func() time.Time) Option {
	return func(m *Mailer) {
		m.now = now
	}
}

// Mailer sends messages through one SMTP server.
type Mailer struct {
	cfg       Config
	dial      Dialer
	tlsConfig *tls.Config
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Mailer for cfg.
func New(cfg Config, opts ...Option) *Mailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	var d net.Dialer
	m := &Mailer{
		cfg:    cfg,
		dial:   d.DialContext,
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tlsConfig == nil {
		m.tlsConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}
	return m
}

// Send delivers msg. It opens one session, authenticates, transmits the
// message and quits.
func (m *Mailer) Send(ctx context.Context, msg *Message) error {
	to, err := envelopeAddress(msg.To)
	if err != nil {
		return err
	}
	if _, err := envelopeAddress(msg.From); err != nil {
		return err
	}
	if msg.Date.IsZero() {
		msg.Date = m.now()
	}
	gm, err := msg.compose()
	if err != nil {
		return err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	c, sess, err := m.client(ctx)
	if err != nil {
		return err
	}
	defer sess.close()

	if err := c.DialAndSendWithContext(ctx, gm); err != nil {
		return classify(err)
	}
	m.logger.Debug("smtp message accepted", "to", to, "addr", m.cfg.addr())
	return nil
}

// Verify connects and authenticates without sending anything.
func (m *Mailer) Verify(ctx context.Context) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	c, sess, err := m.client(ctx)
	if err != nil {
		return err
	}
	defer sess.close()

	if err := c.DialWithContext(ctx); err != nil {
		return classify(err)
	}
	m.logger.Debug("smtp authenticated", "user", m.cfg.Username)
	if err := c.Close(); err != nil {
		return transportErr("quit", err)
	}
	return nil
}

// withTimeout applies cfg.Timeout when ctx has no deadline of its own.
func (m *Mailer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.cfg.Timeout)
}

// session tracks the connection opened for one client so it can be torn
// down when the caller's context ends.
type session struct {
	mu    sync.Mutex
	conn  net.Conn
	stops []func() bool
}

func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stop := range s.stops {
		stop()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// client builds a go-mail client whose connections come from m.dial. The
// TLS wrapping for ImplicitTLS happens in the dial function, so go-mail is
// told not to negotiate TLS itself in that mode.
func (m *Mailer) client(ctx context.Context) (*gomail.Client, *session, error) {
	sess := &session{}

	dial := func(dialCtx context.Context, network, addr string) (net.Conn, error) {
		conn, err := m.dial(dialCtx, network, addr)
		if err != nil {
			return nil, err
		}
		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetDeadline(deadline)
		}
		// Closing the connection unblocks any pending SMTP read or write.
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })

		if m.cfg.Security == ImplicitTLS {
			tlsConn := tls.Client(conn, m.tlsConfig)
			if err := tlsConn.HandshakeContext(dialCtx); err != nil {
				stop()
				_ = conn.Close()
				return nil, fmt.Errorf("tls handshake: %w", err)
			}
			conn = tlsConn
		}

		sess.mu.Lock()
		sess.conn = conn
		sess.stops = append(sess.stops, stop)
		sess.mu.Unlock()

		m.logger.Debug("smtp connected", "addr", addr, "security", m.cfg.Security.String())
		return conn, nil
	}

	policy := gomail.NoTLS
	if m.cfg.Security == StartTLS {
		policy = gomail.TLSMandatory
	}

	c, err := gomail.NewClient(m.cfg.Host,
		gomail.WithPort(m.cfg.Port),
		gomail.WithTimeout(m.cfg.Timeout),
		gomail.WithTLSPolicy(policy),
		gomail.WithTLSConfig(m.tlsConfig),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.cfg.Username),
		gomail.WithPassword(m.cfg.Password),
		gomail.WithDialContextFunc(dial),
	)
	if err != nil {
		return nil, nil, transportErr("configuring client", err)
	}
	return c, sess, nil
}

// classify maps a go-mail error onto ErrAuth or ErrTransport. Credential
// rejections arrive as SMTP replies with one of authReplyCodes.
func classify(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && authReplyCodes[tpErr.Code] {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return transportErr("session", err)
}

func (s Security) String() string {
	switch s {
	case ImplicitTLS:
		return "tls"
	case StartTLS:
		return "starttls"
	case Plain:
		return "plain"
	default:
		return "unknown"
	}
}

func transportErr(step string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransport, step, err)
}

// envelopeAddress extracts the bare address from a header-style value.
func envelopeAddress(s string) (string, error) {
	a, err := mail.ParseAddress(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrAddress, s, err)
	}
	return a.Address, nil
}
