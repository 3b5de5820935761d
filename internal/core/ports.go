package core

import (
	"context"
)

// SuppressionStore persists the suppression record
type SuppressionStore interface {
	// LoadSuppression returns the stored record, or an empty one if nothing is stored
	LoadSuppression(ctx context.Context) (*SuppressionRecord, error)

	// SaveSuppression replaces the stored record
	SaveSuppression(ctx context.Context, record *SuppressionRecord) error
}

// SendLogStore persists per-day send counters
type SendLogStore interface {
	// SentOn returns the number of messages delivered on day (YYYY-MM-DD, UTC)
	SentOn(ctx context.Context, day string) (int, error)

	// IncrementSent adds one to the counter for day and returns the new value
	IncrementSent(ctx context.Context, day string) (int, error)

	// LoadSendLog returns every stored day
	LoadSendLog(ctx context.Context) (SendLog, error)
}

// SubscriberStore persists reminder subscribers
type SubscriberStore interface {
	LoadSubscribers(ctx context.Context) ([]Subscriber, error)
	SaveSubscribers(ctx context.Context, subscribers []Subscriber) error
}

// LeadStore persists the company numbers already contacted by the lead scan
type LeadStore interface {
	LoadSentLeads(ctx context.Context) (map[string]struct{}, error)
	MarkLeadSent(ctx context.Context, companyNumber string) error
}

// StateStore is the complete persisted state of the application
type StateStore interface {
	SuppressionStore
	SendLogStore
	SubscriberStore
	LeadStore
}

// Sender delivers a message through the outbound mail transport
type Sender interface {
	// Send delivers msg exactly once. It returns ErrMissingCredentials when the
	// transport has no credentials configured.
	Send(ctx context.Context, msg *OutboundEmail) error
}

// Mailbox is the inbound side of the mail transport
type Mailbox interface {
	// ListUnseen returns the ids of unread messages
	ListUnseen(ctx context.Context) ([]uint32, error)

	// Fetch returns the raw RFC 5322 message for id without marking it read
	Fetch(ctx context.Context, id uint32) ([]byte, error)

	// MarkSeen flags the message as read
	MarkSeen(ctx context.Context, id uint32) error

	// Close logs out and releases the connection
	Close() error
}

// MailboxOpener connects to the inbound mailbox on demand
type MailboxOpener interface {
	Open(ctx context.Context) (Mailbox, error)
}

// DeadlineSource looks up filing deadlines in the company registry
type DeadlineSource interface {
	// CompanyDeadlines returns the upcoming deadlines of a company, or nil when
	// the registry has no usable answer for it
	CompanyDeadlines(ctx context.Context, companyNumber string) (Deadlines, error)

	// SearchCompanies runs an advanced company search
	SearchCompanies(ctx context.Context, search CompanySearch) ([]Company, error)
}

// ReplyClassifier decides whether an inbound reply asks to stop receiving mail
type ReplyClassifier interface {
	IsOptOut(ctx context.Context, email *InboundEmail) (bool, error)
}

// MessageParser turns a raw message into an InboundEmail
type MessageParser interface {
	Parse(raw []byte) (*InboundEmail, error)
}

// Renderer produces the subject and body of an outgoing message
type Renderer interface {
	Render(name string, data map[string]interface{}) (subject string, body string, err error)
}
