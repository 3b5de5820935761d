package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PetrosWatts/regdeadline/internal/suppression"
)

// AddSubscriber enrols email for reminders about companyNumber. It reports
// false when the email is already subscribed.
func AddSubscriber(ctx context.Context, store SubscriberStore, email, companyNumber, source string, now time.Time) (bool, error) {
	email = suppression.Normalize(email)
	companyNumber = strings.ToUpper(strings.TrimSpace(companyNumber))
	if !suppression.IsValidAddress(email) {
		return false, fmt.Errorf("invalid email address %q", email)
	}
	if companyNumber == "" {
		return false, fmt.Errorf("company number is required")
	}

	subscribers, err := store.LoadSubscribers(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range subscribers {
		if suppression.Normalize(s.Email) == email {
			return false, nil
		}
	}

	subscribers = append(subscribers, Subscriber{
		Email:         email,
		CompanyNumber: companyNumber,
		Source:        source,
		AddedAt:       now.UTC().Format(time.RFC3339),
	})
	return true, store.SaveSubscribers(ctx, subscribers)
}

// SuppressEmail adds an address to the suppressed set by hand
func SuppressEmail(ctx context.Context, store SuppressionStore, email string, now time.Time) (bool, error) {
	return updateSuppression(ctx, store, func(r *SuppressionRecord) bool {
		return r.AddEmail(email, NoteReasonManual, now)
	})
}

// SuppressDomain adds a whole domain to the suppressed domains
func SuppressDomain(ctx context.Context, store SuppressionStore, domain string) (bool, error) {
	return updateSuppression(ctx, store, func(r *SuppressionRecord) bool {
		return r.AddDomain(domain)
	})
}

// Unsuppress removes an address or domain from every suppression set
func Unsuppress(ctx context.Context, store SuppressionStore, value string) (bool, error) {
	return updateSuppression(ctx, store, func(r *SuppressionRecord) bool {
		return r.Remove(value)
	})
}

func updateSuppression(ctx context.Context, store SuppressionStore, change func(*SuppressionRecord) bool) (bool, error) {
	record, err := store.LoadSuppression(ctx)
	if err != nil {
		return false, err
	}
	if !change(record) {
		return false, nil
	}
	return true, store.SaveSuppression(ctx, record)
}
