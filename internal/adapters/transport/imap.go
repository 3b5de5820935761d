package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/config"
	"github.com/PetrosWatts/regdeadline/internal/core"
)

// IMAPOpener logs in to the reply mailbox on demand
type IMAPOpener struct {
	cfg    config.IMAPConfig
	logger *zap.Logger
}

// NewIMAPOpener creates a new IMAP opener
func NewIMAPOpener(cfg config.IMAPConfig, logger *zap.Logger) *IMAPOpener {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &IMAPOpener{cfg: cfg, logger: logger}
}

// Open implements core.MailboxOpener
func (o *IMAPOpener) Open(ctx context.Context) (core.Mailbox, error) {
	if o.cfg.Username == "" || o.cfg.Password == "" {
		return nil, core.ErrMissingCredentials
	}

	addr := net.JoinHostPort(o.cfg.Host, fmt.Sprintf("%d", o.cfg.Port))

	var c *client.Client
	var err error
	if o.cfg.TLS {
		c, err = client.DialTLS(addr, &tls.Config{ServerName: o.cfg.Host, MinVersion: tls.VersionTLS12})
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if err := c.Login(o.cfg.Username, o.cfg.Password); err != nil {
		c.Logout()
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}

	if _, err := c.Select(o.cfg.Mailbox, false); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to select %s: %w", o.cfg.Mailbox, err)
	}

	o.logger.Debug("Opened mailbox", zap.String("host", o.cfg.Host), zap.String("mailbox", o.cfg.Mailbox))
	return &IMAPMailbox{client: c, logger: o.logger}, nil
}

// IMAPMailbox is a selected IMAP mailbox. Message ids are UIDs.
type IMAPMailbox struct {
	client *client.Client
	logger *zap.Logger
}

// ListUnseen implements core.Mailbox
func (m *IMAPMailbox) ListUnseen(_ context.Context) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("UID SEARCH failed: %w", err)
	}
	return uids, nil
}

// Fetch implements core.Mailbox. BODY.PEEK leaves the \Seen flag alone.
func (m *IMAPMailbox) Fetch(_ context.Context, id uint32) ([]byte, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(id)

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.client.UidFetch(seqSet, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil || readErr != nil {
			continue
		}
		raw, readErr = io.ReadAll(body)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("UID FETCH failed: %w", err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read message %d: %w", id, readErr)
	}
	if raw == nil {
		return nil, fmt.Errorf("message %d: %w", id, core.ErrNotFound)
	}
	return raw, nil
}

// MarkSeen implements core.Mailbox
func (m *IMAPMailbox) MarkSeen(_ context.Context, id uint32) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(id)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := m.client.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("UID STORE failed: %w", err)
	}
	return nil
}

// Close implements core.Mailbox
func (m *IMAPMailbox) Close() error {
	if err := m.client.Logout(); err != nil && !errors.Is(err, client.ErrAlreadyLoggedOut) {
		return err
	}
	return nil
}
