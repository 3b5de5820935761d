// Package suppression decides whether an address may be contacted.
package suppression

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
)

// Normalize trims and lower-cases an email address or domain. This is the
// form addresses are stored and delivered in.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Key is the case-folded comparison form of an address or domain. It is the
// same for any upper-cased variant of the input and is only used for lookups.
func Key(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return cases.Fold().String(strings.ToUpper(value))
}

// SplitAddress splits a normalized address into local part and domain. It
// reports false unless the address holds exactly one "@" with non-empty parts.
func SplitAddress(email string) (local, domain string, ok bool) {
	if strings.Count(email, "@") != 1 {
		return "", "", false
	}
	local, domain, _ = strings.Cut(email, "@")
	if local == "" || domain == "" {
		return "", "", false
	}
	return local, domain, true
}

// IsValidAddress reports whether email is a usable recipient address
func IsValidAddress(email string) bool {
	_, _, ok := SplitAddress(Normalize(email))
	return ok
}

// Checker provides functionality to check if an address must not receive mail
type Checker struct {
	emails  map[string]struct{}
	domains map[string]struct{}
	logger  *zap.Logger
}

// NewChecker creates a checker over blocked addresses and blocked domains.
// Suppressed and unsubscribed addresses are both passed as emails.
func NewChecker(emails []string, domains []string, logger *zap.Logger) *Checker {
	c := &Checker{
		emails:  make(map[string]struct{}, len(emails)),
		domains: make(map[string]struct{}, len(domains)),
		logger:  logger,
	}
	for _, email := range emails {
		if n := Key(email); n != "" {
			c.emails[n] = struct{}{}
		}
	}
	for _, domain := range domains {
		if n := strings.TrimPrefix(Key(domain), "@"); n != "" {
			c.domains[n] = struct{}{}
		}
	}
	return c
}

// IsSuppressed checks whether email is invalid, blocked, or on a blocked domain
func (c *Checker) IsSuppressed(email string) bool {
	key := Key(email)

	_, domain, ok := SplitAddress(key)
	if !ok {
		c.debug("Address is invalid", email, "invalid_address")
		return true
	}

	if _, found := c.emails[key]; found {
		c.debug("Address is suppressed", email, "email")
		return true
	}

	if _, found := c.domains[domain]; found {
		c.debug("Domain is suppressed", email, "domain")
		return true
	}

	return false
}

// IsValid reports whether email passes the address shape check alone
func (c *Checker) IsValid(email string) bool {
	return IsValidAddress(email)
}

func (c *Checker) debug(msg, email, match string) {
	if c.logger != nil {
		c.logger.Debug(msg, zap.String("email", email), zap.String("match", match))
	}
}
