// Package transport delivers outbound mail and reads the reply mailbox.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/adapters/mimeutil"
	"github.com/PetrosWatts/regdeadline/internal/config"
	"github.com/PetrosWatts/regdeadline/internal/core"
)

// SMTP connection security modes
const (
	TLSImplicit = "implicit"
	TLSStartTLS = "starttls"
	TLSNone     = "none"
)

// SMTPSender delivers messages through an authenticated SMTP relay.
// A new connection is opened for every message.
type SMTPSender struct {
	cfg       config.SMTPConfig
	tlsConfig *tls.Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(cfg config.SMTPConfig, logger *zap.Logger) (*SMTPSender, error) {
	switch cfg.TLS {
	case TLSImplicit, TLSStartTLS, TLSNone:
	case "":
		cfg.TLS = TLSImplicit
	default:
		return nil, fmt.Errorf("unsupported smtp.tls mode: %s", cfg.TLS)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &SMTPSender{
		cfg:       cfg,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Send implements core.Sender
func (s *SMTPSender) Send(ctx context.Context, msg *core.OutboundEmail) error {
	if s.cfg.Username == "" || s.cfg.Password == "" {
		return core.ErrMissingCredentials
	}

	data, err := mimeutil.Compose(msg, s.now())
	if err != nil {
		return err
	}

	c, err := s.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Auth(sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	if err := c.Mail(msg.From, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := c.Rcpt(msg.To, nil); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// The message has already been accepted
		s.logger.Warn("QUIT command failed", zap.Error(err))
	}

	s.logger.Debug("Delivered message over SMTP",
		zap.String("host", s.cfg.Host),
		zap.String("to", msg.To),
		zap.Int("bytes", len(data)))
	return nil
}

func (s *SMTPSender) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	dialer := &net.Dialer{Timeout: s.cfg.Timeout}

	var conn net.Conn
	var err error
	if s.cfg.TLS == TLSImplicit {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: s.tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if err := conn.SetDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set connection deadline: %w", err)
	}

	if s.cfg.TLS == TLSStartTLS {
		c, err := smtp.NewClientStartTLS(conn, s.tlsConfig)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
		return c, nil
	}

	c := smtp.NewClient(conn)
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	if err := c.Hello(hostname); err != nil {
		c.Close()
		return nil, fmt.Errorf("EHLO failed: %w", err)
	}
	return c, nil
}
