package core

import (
	"sort"
	"strings"
	"time"

	"github.com/PetrosWatts/regdeadline/internal/suppression"
)

// DayFormat is the layout of send log keys, always a UTC calendar day
const DayFormat = "2006-01-02"

// NoteReasonUnsubscribe marks an address added from an inbound opt-out reply
const NoteReasonUnsubscribe = "unsubscribe_request"

// NoteReasonManual marks an address added by an operator
const NoteReasonManual = "manual"

// SuppressionNote records why and when an address was suppressed
type SuppressionNote struct {
	Reason    string `json:"reason"`
	Timestamp string `json:"ts"`
}

// SuppressionRecord is the persisted set of addresses and domains that must never receive mail
type SuppressionRecord struct {
	SuppressedEmails   []string                   `json:"suppressed_emails"`
	SuppressedDomains  []string                   `json:"suppressed_domains"`
	UnsubscribedEmails []string                   `json:"unsubscribed_emails"`
	Notes              map[string]SuppressionNote `json:"notes"`
}

// NewSuppressionRecord returns an empty record
func NewSuppressionRecord() *SuppressionRecord {
	return &SuppressionRecord{
		SuppressedEmails:   []string{},
		SuppressedDomains:  []string{},
		UnsubscribedEmails: []string{},
		Notes:              map[string]SuppressionNote{},
	}
}

// Normalize lower-cases every entry, drops blanks and duplicates and sorts each list
func (r *SuppressionRecord) Normalize() {
	r.SuppressedEmails = normalizeSet(r.SuppressedEmails)
	r.SuppressedDomains = normalizeSet(r.SuppressedDomains)
	r.UnsubscribedEmails = normalizeSet(r.UnsubscribedEmails)
	if r.Notes == nil {
		r.Notes = map[string]SuppressionNote{}
	}
}

// Clone returns a deep copy of the record
func (r *SuppressionRecord) Clone() *SuppressionRecord {
	c := &SuppressionRecord{
		SuppressedEmails:   append([]string{}, r.SuppressedEmails...),
		SuppressedDomains:  append([]string{}, r.SuppressedDomains...),
		UnsubscribedEmails: append([]string{}, r.UnsubscribedEmails...),
		Notes:              make(map[string]SuppressionNote, len(r.Notes)),
	}
	for k, v := range r.Notes {
		c.Notes[k] = v
	}
	return c
}

// Checker builds a suppression checker over the record
func (r *SuppressionRecord) Checker() *suppression.Checker {
	emails := make([]string, 0, len(r.SuppressedEmails)+len(r.UnsubscribedEmails))
	emails = append(emails, r.SuppressedEmails...)
	emails = append(emails, r.UnsubscribedEmails...)
	return suppression.NewChecker(emails, r.SuppressedDomains, nil)
}

// HasUnsubscribed reports whether email is already in the unsubscribed set
func (r *SuppressionRecord) HasUnsubscribed(email string) bool {
	return contains(r.UnsubscribedEmails, suppression.Normalize(email))
}

// AddUnsubscribed adds email to the unsubscribed set with a note. It reports
// false when the address was already present.
func (r *SuppressionRecord) AddUnsubscribed(email, reason string, at time.Time) bool {
	n := suppression.Normalize(email)
	if n == "" || contains(r.UnsubscribedEmails, n) {
		return false
	}
	r.UnsubscribedEmails = insertSorted(r.UnsubscribedEmails, n)
	r.note(n, reason, at)
	return true
}

// AddEmail adds email to the suppressed set with a note
func (r *SuppressionRecord) AddEmail(email, reason string, at time.Time) bool {
	n := suppression.Normalize(email)
	if n == "" || contains(r.SuppressedEmails, n) {
		return false
	}
	r.SuppressedEmails = insertSorted(r.SuppressedEmails, n)
	r.note(n, reason, at)
	return true
}

// AddDomain adds domain to the suppressed domains
func (r *SuppressionRecord) AddDomain(domain string) bool {
	n := suppression.Normalize(domain)
	if len(n) > 0 && n[0] == '@' {
		n = n[1:]
	}
	if n == "" || contains(r.SuppressedDomains, n) {
		return false
	}
	r.SuppressedDomains = insertSorted(r.SuppressedDomains, n)
	return true
}

// Remove deletes value from every set and drops its note. A domain may be
// given with a leading "@", as AddDomain accepts.
func (r *SuppressionRecord) Remove(value string) bool {
	n := suppression.Normalize(value)
	removed := false
	for _, list := range []*[]string{&r.SuppressedEmails, &r.UnsubscribedEmails} {
		if idx := indexOf(*list, n); idx >= 0 {
			*list = append((*list)[:idx], (*list)[idx+1:]...)
			removed = true
		}
	}
	if idx := indexOf(r.SuppressedDomains, strings.TrimPrefix(n, "@")); idx >= 0 {
		r.SuppressedDomains = append(r.SuppressedDomains[:idx], r.SuppressedDomains[idx+1:]...)
		removed = true
	}
	delete(r.Notes, n)
	return removed
}

func (r *SuppressionRecord) note(email, reason string, at time.Time) {
	if r.Notes == nil {
		r.Notes = map[string]SuppressionNote{}
	}
	r.Notes[email] = SuppressionNote{Reason: reason, Timestamp: at.UTC().Format(time.RFC3339Nano)}
}

// SendLog maps a UTC day (YYYY-MM-DD) to the number of messages delivered that day
type SendLog map[string]int

// Day returns the send log key for t
func Day(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// Reason classifies a send decision
type Reason string

const (
	ReasonOK                 Reason = "OK"
	ReasonSuppressed         Reason = "SUPPRESSED"
	ReasonInvalidAddress     Reason = "INVALID_ADDRESS"
	ReasonDailyCap           Reason = "DAILY_CAP"
	ReasonPerRunCap          Reason = "PER_RUN_CAP"
	ReasonSafetyModeNoTarget Reason = "SAFETY_MODE_NO_TARGET"
)

// SendDecision is the result of evaluating a send request
type SendDecision struct {
	Allowed bool
	Reason  Reason
}

// Recipient is a single outbound address
type Recipient struct {
	Email string
}

// Valid reports whether the address has exactly one "@" with non-empty parts
func (r Recipient) Valid() bool {
	return suppression.IsValidAddress(r.Email)
}

// OutboundEmail is a message handed to the mail transport
type OutboundEmail struct {
	From     string
	FromName string
	To       string
	Subject  string
	Body     string
	Headers  map[string]string
}

// InboundEmail is a message read from the mailbox
type InboundEmail struct {
	From string
	// FromAddress is the parsed sender address, when the header parses
	FromAddress string
	Subject     string
	Body        string
	Headers     map[string][]string
}

// DeadlineType identifies a Companies House filing
type DeadlineType string

const (
	DeadlineAccounts              DeadlineType = "accounts"
	DeadlineConfirmationStatement DeadlineType = "confirmation_statement"
)

// Deadlines maps a filing type to its ISO (YYYY-MM-DD) due date
type Deadlines map[DeadlineType]string

// Types returns the deadline types in a stable order
func (d Deadlines) Types() []DeadlineType {
	types := make([]DeadlineType, 0, len(d))
	for t := range d {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Company is a Companies House search result
type Company struct {
	Number         string `json:"company_number"`
	Name           string `json:"company_name"`
	IncorporatedOn string `json:"incorporated_on"`
}

// CompanySearch filters an advanced company search
type CompanySearch struct {
	IncorporatedFrom time.Time
	IncorporatedTo   time.Time
	Status           string
	Size             int
}

// Subscriber is a paying customer who receives deadline reminders
type Subscriber struct {
	Email         string `json:"email"`
	CompanyNumber string `json:"company_number"`
	Source        string `json:"source,omitempty"`
	AddedAt       string `json:"added_at,omitempty"`
}

// Reminder is a deadline found for a subscriber during a reminder run
type Reminder struct {
	Email        string       `json:"email"`
	Company      string       `json:"company"`
	DeadlineType DeadlineType `json:"deadline_type"`
	DeadlineDate string       `json:"deadline_date"`
	Sent         bool         `json:"sent"`
}

// Lead is a company with a deadline close enough to be worth contacting
type Lead struct {
	Company      string       `json:"company"`
	DeadlineType DeadlineType `json:"deadline_type"`
	DeadlineDate string       `json:"deadline_date"`
}

func normalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		n := suppression.Normalize(v)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func contains(values []string, v string) bool {
	return indexOf(values, v) >= 0
}

func indexOf(values []string, v string) int {
	for i, existing := range values {
		if existing == v {
			return i
		}
	}
	return -1
}

func insertSorted(values []string, v string) []string {
	idx := sort.SearchStrings(values, v)
	values = append(values, "")
	copy(values[idx+1:], values[idx:])
	values[idx] = v
	return values
}
