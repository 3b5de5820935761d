// Package mimeutil reads inbound replies and builds outbound messages.
package mimeutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/PetrosWatts/regdeadline/internal/core"
)

// Parser implements core.MessageParser
type Parser struct{}

// NewParser creates a new message parser
func NewParser() *Parser {
	return &Parser{}
}

// Parse implements core.MessageParser
func (p *Parser) Parse(raw []byte) (*core.InboundEmail, error) {
	return Parse(raw)
}

// Parse decodes a raw RFC 5322 message. The body is the concatenation of
// every text/plain part that is not an attachment. Parts in an unknown
// charset are kept undecoded.
func Parse(raw []byte) (*core.InboundEmail, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	email := &core.InboundEmail{
		Headers: map[string][]string{},
	}

	fields := mr.Header.Fields()
	for fields.Next() {
		key := textproto.CanonicalMIMEHeaderKey(fields.Key())
		email.Headers[key] = append(email.Headers[key], fields.Value())
	}

	if email.Subject, err = mr.Header.Subject(); err != nil {
		email.Subject = mr.Header.Get("Subject")
	}
	if email.From, err = mr.Header.Text("From"); err != nil {
		email.From = mr.Header.Get("From")
	}
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		email.FromAddress = addrs[0].Address
	}

	body, err := extractText(mr)
	if err != nil {
		return nil, err
	}
	email.Body = body

	return email, nil
}

// extractText collects the text/plain parts of a message
func extractText(mr *mail.Reader) (string, error) {
	var parts []string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			// Keep what has been read so far
			if len(parts) > 0 {
				break
			}
			return "", fmt.Errorf("failed to read message part: %w", err)
		}
		if part == nil {
			continue
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, err := h.ContentType()
		if err != nil {
			contentType = "text/plain"
		}
		if !strings.EqualFold(contentType, "text/plain") {
			continue
		}

		data, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		parts = append(parts, string(data))
	}
	return strings.Join(parts, "\n"), nil
}

// Compose renders msg as a single-part UTF-8 text/plain message
func Compose(msg *core.OutboundEmail, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Name: msg.FromName, Address: msg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	for k, v := range msg.Headers {
		h.Set(k, v)
	}

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}
	if _, err := io.WriteString(w, msg.Body); err != nil {
		return nil, fmt.Errorf("failed to write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}
