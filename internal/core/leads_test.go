package core_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/adapters/state"
	"github.com/PetrosWatts/regdeadline/internal/core"
)

const reviewInbox = "review@regdeadline.test"

type LeadSuite struct {
	suite.Suite
	ctx      context.Context
	store    *state.MemoryStore
	sender   *mockSender
	registry *mockRegistry
	cfg      core.LeadConfig
}

func TestLeadSuite(t *testing.T) {
	suite.Run(t, new(LeadSuite))
}

func (s *LeadSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = state.NewMemoryStore(zap.NewNop())
	s.sender = new(mockSender)
	s.registry = new(mockRegistry)
	s.cfg = core.LeadConfig{PoolSize: 20, MaxEmails: 2, WindowDays: 60, Recipient: reviewInbox}
}

func (s *LeadSuite) scanner() *core.LeadScanner {
	policy := core.DefaultSendPolicy()
	policy.SafetyMode = false
	governor := core.NewGovernor(s.store, s.store, s.sender, policy, zap.NewNop(),
		core.WithClock(fixedClock(testNow)), core.WithSleeper(noSleep))
	scanner := core.NewLeadScanner(s.registry, s.store, governor, stubRenderer{}, s.cfg, zap.NewNop())
	scanner.SetClock(fixedClock(testNow))
	return scanner
}

func (s *LeadSuite) searchReturns(companies ...core.Company) {
	s.registry.On("SearchCompanies", mock.Anything, mock.MatchedBy(func(search core.CompanySearch) bool {
		return search.Status == "active" &&
			search.Size == 20 &&
			search.IncorporatedFrom.Year() == 2019 &&
			search.IncorporatedTo.Year() == 2022 &&
			search.IncorporatedFrom.Before(search.IncorporatedTo)
	})).Return(companies, nil)
}

func (s *LeadSuite) TestPoolExcludesNorthernIreland() {
	s.searchReturns(
		core.Company{Number: "NI123456"},
		core.Company{Number: ""},
		core.Company{Number: "01000001", Name: "Widgets Ltd"},
		core.Company{Number: "SC000002"},
	)

	pool, err := s.scanner().Pool(s.ctx)
	s.Require().NoError(err)
	s.Equal([]core.Company{{Number: "01000001", Name: "Widgets Ltd"}, {Number: "SC000002"}}, pool)
}

func (s *LeadSuite) TestScanContactsNewCompanies() {
	s.Require().NoError(s.store.MarkLeadSent(s.ctx, "01000001"))
	s.searchReturns(
		core.Company{Number: "01000001"},
		core.Company{Number: "01000002"},
		core.Company{Number: "01000003"},
		core.Company{Number: "01000004"},
		core.Company{Number: "01000005"},
	)
	s.registry.On("CompanyDeadlines", mock.Anything, "01000002").Return(core.Deadlines{
		core.DeadlineAccounts:              "2024-02-15",
		core.DeadlineConfirmationStatement: "2024-01-20",
	}, nil)
	s.registry.On("CompanyDeadlines", mock.Anything, "01000003").Return(core.Deadlines{
		core.DeadlineAccounts: "2024-09-30",
	}, nil)
	s.registry.On("CompanyDeadlines", mock.Anything, "01000004").Return(core.Deadlines{
		core.DeadlineConfirmationStatement: "2024-01-10",
	}, nil)
	s.sender.On("Send", mock.Anything, sentTo(reviewInbox)).Return(nil)

	leads, err := s.scanner().Scan(s.ctx)
	s.Require().NoError(err)
	s.Equal([]core.Lead{
		{Company: "01000002", DeadlineType: core.DeadlineAccounts, DeadlineDate: "2024-02-15"},
		{Company: "01000004", DeadlineType: core.DeadlineConfirmationStatement, DeadlineDate: "2024-01-10"},
	}, leads)

	s.sender.AssertNumberOfCalls(s.T(), "Send", 2)
	s.registry.AssertNotCalled(s.T(), "CompanyDeadlines", mock.Anything, "01000001")
	s.registry.AssertNotCalled(s.T(), "CompanyDeadlines", mock.Anything, "01000005")

	sent, err := s.store.LoadSentLeads(s.ctx)
	s.Require().NoError(err)
	s.Len(sent, 3)
	s.Contains(sent, "01000002")
	s.Contains(sent, "01000004")
}

func (s *LeadSuite) TestFailedSendIsNotRecorded() {
	s.searchReturns(core.Company{Number: "01000002"}, core.Company{Number: "01000003"})
	for _, company := range []string{"01000002", "01000003"} {
		s.registry.On("CompanyDeadlines", mock.Anything, company).Return(core.Deadlines{
			core.DeadlineAccounts: "2024-01-20",
		}, nil)
	}
	s.sender.On("Send", mock.Anything, mock.MatchedBy(func(msg *core.OutboundEmail) bool {
		return msg.Subject == "outreach 01000002 accounts"
	})).Return(errors.New("mailbox full")).Once()
	s.sender.On("Send", mock.Anything, mock.MatchedBy(func(msg *core.OutboundEmail) bool {
		return msg.Subject == "outreach 01000003 accounts"
	})).Return(nil).Once()

	leads, err := s.scanner().Scan(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(leads, 1)
	s.Equal("01000003", leads[0].Company)

	sent, err := s.store.LoadSentLeads(s.ctx)
	s.Require().NoError(err)
	s.NotContains(sent, "01000002")
}

func (s *LeadSuite) TestMissingRecipient() {
	s.cfg.Recipient = ""

	_, err := s.scanner().Scan(s.ctx)
	s.ErrorIs(err, core.ErrMissingRecipient)
	s.registry.AssertNotCalled(s.T(), "SearchCompanies", mock.Anything, mock.Anything)
}

func (s *LeadSuite) TestSearchFailure() {
	s.registry.On("SearchCompanies", mock.Anything, mock.Anything).Return(nil, errors.New("503"))

	_, err := s.scanner().Scan(s.ctx)
	s.Error(err)
}
