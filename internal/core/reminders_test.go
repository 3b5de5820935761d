package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/adapters/state"
	"github.com/PetrosWatts/regdeadline/internal/core"
)

type ReminderSuite struct {
	suite.Suite
	ctx      context.Context
	store    *state.MemoryStore
	sender   *mockSender
	registry *mockRegistry
	policy   core.SendPolicy
}

func TestReminderSuite(t *testing.T) {
	suite.Run(t, new(ReminderSuite))
}

func (s *ReminderSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = state.NewMemoryStore(zap.NewNop())
	s.sender = new(mockSender)
	s.registry = new(mockRegistry)
	s.policy = core.DefaultSendPolicy()
	s.policy.SafetyMode = false
	s.policy.FromAddress = "sender@regdeadline.test"
}

func (s *ReminderSuite) subscribe(email, company string) {
	_, err := core.AddSubscriber(s.ctx, s.store, email, company, "test", testNow)
	s.Require().NoError(err)
}

func (s *ReminderSuite) service(renderer core.Renderer) *core.ReminderService {
	governor := core.NewGovernor(s.store, s.store, s.sender, s.policy, zap.NewNop(),
		core.WithClock(fixedClock(testNow)), core.WithSleeper(noSleep))
	svc := core.NewReminderService(s.store, s.registry, governor, renderer, 30, zap.NewNop())
	svc.SetClock(fixedClock(testNow))
	return svc
}

func (s *ReminderSuite) TestRemindsInsideWindow() {
	s.subscribe("a@x.com", "01000001")
	s.subscribe("b@acme.com", "01000002")
	s.subscribe("c@x.com", "01000003")
	s.subscribe("d@x.com", "01000004")
	_, err := core.SuppressDomain(s.ctx, s.store, "acme.com")
	s.Require().NoError(err)

	s.registry.On("CompanyDeadlines", mock.Anything, "01000001").Return(core.Deadlines{
		core.DeadlineAccounts:              "2024-01-11",
		core.DeadlineConfirmationStatement: "2024-02-10",
	}, nil)
	s.registry.On("CompanyDeadlines", mock.Anything, "01000002").Return(core.Deadlines{
		core.DeadlineAccounts: "2024-01-05",
	}, nil)
	s.registry.On("CompanyDeadlines", mock.Anything, "01000003").Return(nil, nil)
	s.registry.On("CompanyDeadlines", mock.Anything, "01000004").Return(nil, errors.New("timeout"))

	s.sender.On("Send", mock.Anything, mock.MatchedBy(func(msg *core.OutboundEmail) bool {
		return msg.To == "a@x.com" &&
			msg.Subject == "reminder 01000001 accounts" &&
			msg.Body == "accounts is due on 2024-01-11"
	})).Return(nil).Once()

	reminders, err := s.service(stubRenderer{}).Run(s.ctx)
	s.Require().NoError(err)
	s.Equal([]core.Reminder{
		{Email: "a@x.com", Company: "01000001", DeadlineType: core.DeadlineAccounts, DeadlineDate: "2024-01-11", Sent: true},
		{Email: "b@acme.com", Company: "01000002", DeadlineType: core.DeadlineAccounts, DeadlineDate: "2024-01-05", Sent: false},
	}, reminders)

	s.sender.AssertExpectations(s.T())
	s.registry.AssertExpectations(s.T())

	sent, err := s.store.SentOn(s.ctx, "2024-01-01")
	s.Require().NoError(err)
	s.Equal(1, sent)
}

func (s *ReminderSuite) TestStopsAtCap() {
	s.policy.PerRunCap = 1
	s.subscribe("a@x.com", "01000001")
	s.subscribe("b@x.com", "01000002")
	s.subscribe("c@x.com", "01000003")
	for _, company := range []string{"01000001", "01000002"} {
		s.registry.On("CompanyDeadlines", mock.Anything, company).Return(core.Deadlines{
			core.DeadlineAccounts: "2024-01-20",
		}, nil).Once()
	}
	s.sender.On("Send", mock.Anything, sentTo("a@x.com")).Return(nil).Once()

	reminders, err := s.service(stubRenderer{}).Run(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(reminders, 2)
	s.True(reminders[0].Sent)
	s.Equal("b@x.com", reminders[1].Email)
	s.False(reminders[1].Sent)

	s.sender.AssertNumberOfCalls(s.T(), "Send", 1)
	s.registry.AssertNotCalled(s.T(), "CompanyDeadlines", mock.Anything, "01000003")
}

func (s *ReminderSuite) TestTransportFailureKeepsGoing() {
	s.subscribe("a@x.com", "01000001")
	s.subscribe("b@x.com", "01000002")
	for _, company := range []string{"01000001", "01000002"} {
		s.registry.On("CompanyDeadlines", mock.Anything, company).Return(core.Deadlines{
			core.DeadlineConfirmationStatement: "2024-01-20",
		}, nil)
	}
	s.sender.On("Send", mock.Anything, sentTo("a@x.com")).Return(errors.New("421 try later")).Once()
	s.sender.On("Send", mock.Anything, sentTo("b@x.com")).Return(nil).Once()

	reminders, err := s.service(stubRenderer{}).Run(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(reminders, 2)
	s.False(reminders[0].Sent)
	s.True(reminders[1].Sent)
}

func (s *ReminderSuite) TestMissingRegistryCredentials() {
	s.subscribe("a@x.com", "01000001")
	s.registry.On("CompanyDeadlines", mock.Anything, "01000001").
		Return(nil, fmt.Errorf("registry.api_key: %w", core.ErrMissingCredentials))

	_, err := s.service(stubRenderer{}).Run(s.ctx)
	s.ErrorIs(err, core.ErrMissingCredentials)
}

func (s *ReminderSuite) TestMissingMailCredentials() {
	s.subscribe("a@x.com", "01000001")
	s.registry.On("CompanyDeadlines", mock.Anything, "01000001").Return(core.Deadlines{
		core.DeadlineAccounts: "2024-01-20",
	}, nil)
	s.sender.On("Send", mock.Anything, mock.Anything).Return(core.ErrMissingCredentials)

	_, err := s.service(stubRenderer{}).Run(s.ctx)
	s.ErrorIs(err, core.ErrMissingCredentials)
}

func (s *ReminderSuite) TestRenderFailure() {
	s.subscribe("a@x.com", "01000001")
	s.registry.On("CompanyDeadlines", mock.Anything, "01000001").Return(core.Deadlines{
		core.DeadlineAccounts: "2024-01-20",
	}, nil)

	_, err := s.service(stubRenderer{err: errors.New("bad template")}).Run(s.ctx)
	s.Error(err)
	s.sender.AssertNotCalled(s.T(), "Send", mock.Anything, mock.Anything)
}
