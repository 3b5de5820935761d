package core_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/adapters/mimeutil"
	"github.com/PetrosWatts/regdeadline/internal/adapters/state"
	"github.com/PetrosWatts/regdeadline/internal/core"
)

// fakeMailbox keeps raw messages in memory and tracks the seen flag
type fakeMailbox struct {
	messages   map[uint32][]byte
	seen       map[uint32]bool
	fetchErr   map[uint32]error
	closeCalls int
	nextID     uint32
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages: map[uint32][]byte{},
		seen:     map[uint32]bool{},
		fetchErr: map[uint32]error{},
	}
}

func (m *fakeMailbox) deliver(from, subject, body string) uint32 {
	m.nextID++
	m.messages[m.nextID] = []byte(fmt.Sprintf(
		"From: %s\r\nTo: replies@regdeadline.test\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from, subject, body))
	return m.nextID
}

func (m *fakeMailbox) ListUnseen(context.Context) ([]uint32, error) {
	ids := make([]uint32, 0, len(m.messages))
	for id := range m.messages {
		if !m.seen[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *fakeMailbox) Fetch(_ context.Context, id uint32) ([]byte, error) {
	if err := m.fetchErr[id]; err != nil {
		return nil, err
	}
	raw, ok := m.messages[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return raw, nil
}

func (m *fakeMailbox) MarkSeen(_ context.Context, id uint32) error {
	m.seen[id] = true
	return nil
}

func (m *fakeMailbox) Close() error {
	m.closeCalls++
	return nil
}

type fakeOpener struct {
	mailbox *fakeMailbox
	err     error
}

func (o *fakeOpener) Open(context.Context) (core.Mailbox, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.mailbox, nil
}

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) IsOptOut(ctx context.Context, email *core.InboundEmail) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

type UnsubscribeSuite struct {
	suite.Suite
	ctx     context.Context
	store   *state.MemoryStore
	mailbox *fakeMailbox
	opener  *fakeOpener
}

func TestUnsubscribeSuite(t *testing.T) {
	suite.Run(t, new(UnsubscribeSuite))
}

func (s *UnsubscribeSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = state.NewMemoryStore(zap.NewNop())
	s.mailbox = newFakeMailbox()
	s.opener = &fakeOpener{mailbox: s.mailbox}
}

func (s *UnsubscribeSuite) service(classifier core.ReplyClassifier) *core.UnsubscribeService {
	svc := core.NewUnsubscribeService(s.opener, s.store, mimeutil.NewParser(), classifier,
		core.NewKeywordClassifier(nil), zap.NewNop())
	svc.SetClock(fixedClock(testNow))
	return svc
}

func (s *UnsubscribeSuite) record() *core.SuppressionRecord {
	record, err := s.store.LoadSuppression(s.ctx)
	s.Require().NoError(err)
	return record
}

func (s *UnsubscribeSuite) TestPleaseUnsubscribeIsAddedOnce() {
	s.mailbox.deliver("Alice <A@B.com>", "Re: your reminder", "Please unsubscribe")
	svc := s.service(nil)

	added, err := svc.ProcessUnsubscribes(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, added)

	record := s.record()
	s.Equal([]string{"a@b.com"}, record.UnsubscribedEmails)
	s.Equal(core.SuppressionNote{Reason: "unsubscribe_request", Timestamp: "2024-01-01T12:00:00Z"}, record.Notes["a@b.com"])

	added, err = svc.ProcessUnsubscribes(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, added, "messages already seen are not reconsidered")

	s.mailbox.deliver("a@b.com", "stop", "I said stop")
	added, err = svc.ProcessUnsubscribes(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, added, "sender already unsubscribed")
	s.Equal([]string{"a@b.com"}, s.record().UnsubscribedEmails)
	s.Equal(3, s.mailbox.closeCalls)
}

func (s *UnsubscribeSuite) TestEveryMessageIsMarkedSeen() {
	optOut := s.mailbox.deliver("one@example.com", "REMOVE ME", "")
	chatter := s.mailbox.deliver("two@example.com", "Re: deadline", "Thanks, we filed yesterday.")

	added, err := s.service(nil).ProcessUnsubscribes(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, added)
	s.True(s.mailbox.seen[optOut])
	s.True(s.mailbox.seen[chatter])
	s.Equal([]string{"one@example.com"}, s.record().UnsubscribedEmails)
}

func (s *UnsubscribeSuite) TestKeywordsMatchSubjectAndBodyCaseInsensitively() {
	s.mailbox.deliver("x@example.com", "Opt Out", "")
	s.mailbox.deliver("y@example.com", "Re: hi", "Please DO NOT CONTACT us again")
	s.mailbox.deliver("z@example.com", "Re: hi", "Sounds good")

	added, err := s.service(nil).ProcessUnsubscribes(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, added)
	s.Equal([]string{"x@example.com", "y@example.com"}, s.record().UnsubscribedEmails)
}

func (s *UnsubscribeSuite) TestClassifierDecides() {
	s.mailbox.deliver("keen@example.com", "Re: reminder", "Don't stop sending these, they are great")
	s.mailbox.deliver("done@example.com", "Re: reminder", "We closed the company, no more emails")

	classifier := new(mockClassifier)
	classifier.On("IsOptOut", mock.Anything, mock.MatchedBy(func(e *core.InboundEmail) bool {
		return e.From == "keen@example.com"
	})).Return(false, nil)
	classifier.On("IsOptOut", mock.Anything, mock.MatchedBy(func(e *core.InboundEmail) bool {
		return e.From == "done@example.com"
	})).Return(true, nil)

	added, err := s.service(classifier).ProcessUnsubscribes(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, added)
	s.Equal([]string{"done@example.com"}, s.record().UnsubscribedEmails)
	classifier.AssertExpectations(s.T())
}

func (s *UnsubscribeSuite) TestClassifierErrorFallsBackToKeywords() {
	s.mailbox.deliver("a@b.com", "Re: reminder", "Please unsubscribe")

	classifier := new(mockClassifier)
	classifier.On("IsOptOut", mock.Anything, mock.Anything).Return(false, errors.New("throttled"))

	added, err := s.service(classifier).ProcessUnsubscribes(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, added)
}

func (s *UnsubscribeSuite) TestSkipsUnreadableAndAnonymousMessages() {
	broken := s.mailbox.deliver("a@example.com", "unsubscribe", "")
	s.mailbox.fetchErr[broken] = errors.New("connection dropped")
	s.mailbox.deliver("undisclosed-recipients", "unsubscribe", "")
	s.mailbox.deliver("b@example.com", "unsubscribe", "")

	added, err := s.service(nil).ProcessUnsubscribes(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, added)
	s.False(s.mailbox.seen[broken], "a message that could not be fetched stays unseen")
	s.Equal([]string{"b@example.com"}, s.record().UnsubscribedEmails)
}

func (s *UnsubscribeSuite) TestNonASCIISenderIsRecordedVerbatim() {
	s.mailbox.deliver("=?utf-8?q?Jos=C3=A9?= <José@example.com>", "unsubscribe", "")
	s.mailbox.deliver("straße@example.com", "Re: reminder", "please remove me")

	added, err := s.service(nil).ProcessUnsubscribes(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, added)
	s.Equal([]string{"josé@example.com", "straße@example.com"}, s.record().UnsubscribedEmails)
}

func (s *UnsubscribeSuite) TestOpenFailure() {
	s.opener.err = fmt.Errorf("imap.username: %w", core.ErrMissingCredentials)

	_, err := s.service(nil).ProcessUnsubscribes(s.ctx)
	s.ErrorIs(err, core.ErrMissingCredentials)
}

func (s *UnsubscribeSuite) TestSaveFailure() {
	svc := core.NewUnsubscribeService(s.opener, &saveFailingStore{MemoryStore: s.store}, mimeutil.NewParser(), nil,
		core.NewKeywordClassifier(nil), zap.NewNop())
	s.mailbox.deliver("a@b.com", "unsubscribe", "")

	added, err := svc.ProcessUnsubscribes(s.ctx)
	s.Error(err)
	s.Equal(1, added)
}

type saveFailingStore struct {
	*state.MemoryStore
}

func (saveFailingStore) SaveSuppression(context.Context, *core.SuppressionRecord) error {
	return errStore
}

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"a@b.com", "a@b.com"},
		{"Alice Smith <Alice.Smith@Example.co.uk>", "alice.smith@example.co.uk"},
		{"\"Bob\" <bob-jones@mail.example.org>", "bob-jones@mail.example.org"},
		{"José <josé@example.com>", "josé@example.com"},
		{"straße@example.com", "straße@example.com"},
		{"Zoë <ZOË.Brontë+news@exämple.de>", "zoë.brontë+news@exämple.de"},
		{"no address here", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, core.ExtractAddress(tt.from), tt.from)
	}
}

func TestKeywordClassifier(t *testing.T) {
	k := core.NewKeywordClassifier(nil)

	keyword, ok := k.Match(&core.InboundEmail{Subject: "Re: hello", Body: "Could you REMOVE ME from this?"})
	require.True(t, ok)
	assert.Equal(t, "remove me", keyword)

	_, ok = k.Match(&core.InboundEmail{Subject: "Re: hello", Body: "Thanks!"})
	assert.False(t, ok)

	custom := core.NewKeywordClassifier([]string{"  Cancel ", ""})
	optOut, err := custom.IsOptOut(context.Background(), &core.InboundEmail{Body: "please cancel"})
	require.NoError(t, err)
	assert.True(t, optOut)
}

func TestNoOptOutsLeavesStateFileUntouched(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := state.NewJSONStore(dir, zap.NewNop())
	require.NoError(t, err)

	malformed := []byte(`{"suppressed_emails": ["a@b.com", "c@d.com"], "suppressed_domains": "acme.com"}`)
	path := filepath.Join(dir, state.SuppressionFile)
	require.NoError(t, os.WriteFile(path, malformed, 0o644))

	mailbox := newFakeMailbox()
	mailbox.deliver("friend@example.com", "Re: reminder", "Thanks, all filed.")
	svc := core.NewUnsubscribeService(&fakeOpener{mailbox: mailbox}, store, mimeutil.NewParser(), nil,
		core.NewKeywordClassifier(nil), zap.NewNop())

	added, err := svc.ProcessUnsubscribes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, malformed, data)
}
