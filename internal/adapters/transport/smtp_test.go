package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/adapters/mimeutil"
	"github.com/PetrosWatts/regdeadline/internal/config"
	"github.com/PetrosWatts/regdeadline/internal/core"
)

type receivedMessage struct {
	from string
	to   []string
	data []byte
}

// relay is an in-process SMTP server that accepts PLAIN auth for one user
type relay struct {
	mu       sync.Mutex
	username string
	password string
	messages []receivedMessage
}

func (r *relay) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &relaySession{relay: r}, nil
}

func (r *relay) received() []receivedMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]receivedMessage{}, r.messages...)
}

type relaySession struct {
	relay  *relay
	authed bool
	msg    receivedMessage
}

func (s *relaySession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *relaySession) Auth(_ string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username != s.relay.username || password != s.relay.password {
			return errors.New("invalid credentials")
		}
		s.authed = true
		return nil
	}), nil
}

func (s *relaySession) Mail(from string, _ *smtp.MailOptions) error {
	if !s.authed {
		return smtp.ErrAuthRequired
	}
	s.msg.from = from
	return nil
}

func (s *relaySession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.msg.to = append(s.msg.to, to)
	return nil
}

func (s *relaySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.msg.data = data

	s.relay.mu.Lock()
	defer s.relay.mu.Unlock()
	s.relay.messages = append(s.relay.messages, s.msg)
	return nil
}

func (s *relaySession) Reset() {
	s.msg = receivedMessage{}
}

func (s *relaySession) Logout() error {
	return nil
}

func startRelay(t *testing.T, r *relay) (string, int) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := smtp.NewServer(r)
	server.Domain = "localhost"
	server.AllowInsecureAuth = true
	server.ReadTimeout = 5 * time.Second
	server.WriteTimeout = 5 * time.Second

	go server.Serve(l)
	t.Cleanup(func() { server.Close() })

	addr := l.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func testMessage() *core.OutboundEmail {
	return &core.OutboundEmail{
		From:     "hello@regdeadline.co.uk",
		FromName: "RegDeadline",
		To:       "client@example.com",
		Subject:  "Confirmation statement due",
		Body:     "Your confirmation statement is due on 2024-02-01.",
		Headers: map[string]string{
			"X-Campaign-ID":        "regdeadline",
			"X-Intended-Recipient": "real@example.com",
		},
	}
}

func TestSMTPSenderDelivers(t *testing.T) {
	r := &relay{username: "user", password: "secret"}
	host, port := startRelay(t, r)

	sender, err := NewSMTPSender(config.SMTPConfig{
		Host:     host,
		Port:     port,
		TLS:      TLSNone,
		Username: "user",
		Password: "secret",
		Timeout:  5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, sender.Send(context.Background(), testMessage()))

	received := r.received()
	require.Len(t, received, 1)
	assert.Equal(t, "hello@regdeadline.co.uk", received[0].from)
	assert.Equal(t, []string{"client@example.com"}, received[0].to)

	email, err := mimeutil.Parse(received[0].data)
	require.NoError(t, err)
	assert.Equal(t, "Confirmation statement due", email.Subject)
	assert.Equal(t, []string{"real@example.com"}, email.Headers["X-Intended-Recipient"])
	assert.Contains(t, email.Body, "due on 2024-02-01")
}

func TestSMTPSenderMissingCredentials(t *testing.T) {
	sender, err := NewSMTPSender(config.SMTPConfig{Host: "127.0.0.1", Port: 1, TLS: TLSNone}, zap.NewNop())
	require.NoError(t, err)

	err = sender.Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, core.ErrMissingCredentials)
}

func TestSMTPSenderBadPassword(t *testing.T) {
	r := &relay{username: "user", password: "secret"}
	host, port := startRelay(t, r)

	sender, err := NewSMTPSender(config.SMTPConfig{
		Host:     host,
		Port:     port,
		TLS:      TLSNone,
		Username: "user",
		Password: "wrong",
		Timeout:  5 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	err = sender.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrMissingCredentials)
	assert.Empty(t, r.received())
}

func TestSMTPSenderRejectsUnknownTLSMode(t *testing.T) {
	_, err := NewSMTPSender(config.SMTPConfig{TLS: "sometimes"}, zap.NewNop())
	assert.Error(t, err)
}
