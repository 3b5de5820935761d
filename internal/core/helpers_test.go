package core_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/PetrosWatts/regdeadline/internal/core"
)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg *core.OutboundEmail) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// sentTo matches an outbound message addressed to to
func sentTo(to string) interface{} {
	return mock.MatchedBy(func(msg *core.OutboundEmail) bool {
		return msg.To == to
	})
}

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) CompanyDeadlines(ctx context.Context, companyNumber string) (core.Deadlines, error) {
	args := m.Called(ctx, companyNumber)
	deadlines, _ := args.Get(0).(core.Deadlines)
	return deadlines, args.Error(1)
}

func (m *mockRegistry) SearchCompanies(ctx context.Context, search core.CompanySearch) ([]core.Company, error) {
	args := m.Called(ctx, search)
	companies, _ := args.Get(0).([]core.Company)
	return companies, args.Error(1)
}

type stubRenderer struct {
	err error
}

func (r stubRenderer) Render(name string, data map[string]interface{}) (string, string, error) {
	if r.err != nil {
		return "", "", r.err
	}
	subject := fmt.Sprintf("%s %v %v", name, data["company_number"], data["deadline_type"])
	body := fmt.Sprintf("%v is due on %v", data["deadline_label"], data["deadline_date"])
	return subject, body, nil
}

// failingStore fails every read and write
type failingStore struct{}

var errStore = errors.New("disk on fire")

func (failingStore) LoadSuppression(context.Context) (*core.SuppressionRecord, error) {
	return nil, errStore
}

func (failingStore) SaveSuppression(context.Context, *core.SuppressionRecord) error {
	return errStore
}

func (failingStore) SentOn(context.Context, string) (int, error) {
	return 0, errStore
}

func (failingStore) IncrementSent(context.Context, string) (int, error) {
	return 0, errStore
}

func (failingStore) LoadSendLog(context.Context) (core.SendLog, error) {
	return nil, errStore
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func noSleep(context.Context, time.Duration) error {
	return nil
}
