package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsentry/mailsentry/pkg/models"
)

type fakeSchedStore struct {
	accounts   []*models.Account
	allowOnly  string // when set, only this sender passes the filter
	accountErr error
}

func (s *fakeSchedStore) GetActiveAccounts(ctx context.Context, ownerID int64) ([]*models.Account, error) {
	if s.accountErr != nil {
		return nil, s.accountErr
	}
	return s.accounts, nil
}

func (s *fakeSchedStore) FilterAllows(ctx context.Context, ownerID int64, sender string) (bool, error) {
	if s.allowOnly == "" {
		return true, nil
	}
	return sender == s.allowOnly, nil
}

type fakeFetcher struct {
	mu       sync.Mutex
	byEmail  map[string][]*models.Message
	fetchErr map[string]error
	fetched  []string
}

func (f *fakeFetcher) FetchNew(ctx context.Context, account *models.Account, window time.Duration) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, account.Email)
	if err := f.fetchErr[account.Email]; err != nil {
		return nil, err
	}
	return f.byEmail[account.Email], nil
}

type fakeForwarder struct {
	mu        sync.Mutex
	delivered []*models.Message
	failWith  error
}

func (f *fakeForwarder) Forward(ctx context.Context, ownerID int64, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.delivered = append(f.delivered, msg)
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	counts []int
}

func (n *fakeNotifier) NotifyNewMessages(ctx context.Context, ownerID int64, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.counts = append(n.counts, count)
}

func fastConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:      time.Hour,
		ErrorBackoff:  time.Hour,
		BatchSize:     2,
		BatchDeadline: time.Second,
		BatchPause:    time.Millisecond,
		FetchWindow:   24 * time.Hour,
	}
}

func activeAccount(id int64, email string) *models.Account {
	return &models.Account{ID: id, OwnerID: 1, Email: email, Status: models.StatusActive}
}

func newMessage(accountID int64, sender, subject string) *models.Message {
	return &models.Message{
		AccountID:  accountID,
		OwnerID:    1,
		MessageID:  "<" + subject + "@example.org>",
		Sender:     sender,
		Subject:    subject,
		ReceivedAt: time.Now(),
	}
}

func TestSweepForwardsAdmittedMessages(t *testing.T) {
	store := &fakeSchedStore{accounts: []*models.Account{
		activeAccount(1, "a@example.org"),
		activeAccount(2, "b@example.org"),
		activeAccount(3, "c@example.org"),
	}}
	fetcher := &fakeFetcher{byEmail: map[string][]*models.Message{
		"a@example.org": {newMessage(1, "x@example.com", "one")},
		"c@example.org": {newMessage(3, "y@example.com", "two"), newMessage(3, "y@example.com", "three")},
	}}
	forwarder := &fakeForwarder{}
	notifier := &fakeNotifier{}

	s := NewScheduler(store, fetcher, forwarder, notifier, fastConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, s.sweep(context.Background(), 1))

	assert.ElementsMatch(t, []string{"a@example.org", "b@example.org", "c@example.org"}, fetcher.fetched)
	assert.Len(t, forwarder.delivered, 3)
	assert.Equal(t, []int{3}, notifier.counts)
}

func TestSweepAppliesSenderFilter(t *testing.T) {
	store := &fakeSchedStore{
		accounts:  []*models.Account{activeAccount(1, "a@example.org")},
		allowOnly: "wanted@example.com",
	}
	fetcher := &fakeFetcher{byEmail: map[string][]*models.Message{
		"a@example.org": {
			newMessage(1, "wanted@example.com", "keep"),
			newMessage(1, "noise@example.com", "drop"),
		},
	}}
	forwarder := &fakeForwarder{}
	notifier := &fakeNotifier{}

	s := NewScheduler(store, fetcher, forwarder, notifier, fastConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, s.sweep(context.Background(), 1))

	require.Len(t, forwarder.delivered, 1)
	assert.Equal(t, "keep", forwarder.delivered[0].Subject)
	assert.Equal(t, []int{1}, notifier.counts)
}

func TestSweepSurvivesAccountFailures(t *testing.T) {
	store := &fakeSchedStore{accounts: []*models.Account{
		activeAccount(1, "a@example.org"),
		activeAccount(2, "b@example.org"),
	}}
	fetcher := &fakeFetcher{
		byEmail:  map[string][]*models.Message{"b@example.org": {newMessage(2, "x@example.com", "ok")}},
		fetchErr: map[string]error{"a@example.org": errors.New("i/o timeout")},
	}
	forwarder := &fakeForwarder{}
	notifier := &fakeNotifier{}

	s := NewScheduler(store, fetcher, forwarder, notifier, fastConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, s.sweep(context.Background(), 1))

	assert.Len(t, forwarder.delivered, 1, "the healthy account still delivers")
}

func TestSweepDropsFailedDeliveriesSilently(t *testing.T) {
	store := &fakeSchedStore{accounts: []*models.Account{activeAccount(1, "a@example.org")}}
	fetcher := &fakeFetcher{byEmail: map[string][]*models.Message{
		"a@example.org": {newMessage(1, "x@example.com", "one")},
	}}
	forwarder := &fakeForwarder{failWith: errors.New("webhook down")}
	notifier := &fakeNotifier{}

	s := NewScheduler(store, fetcher, forwarder, notifier, fastConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, s.sweep(context.Background(), 1), "delivery failures never fail the sweep")
	assert.Empty(t, notifier.counts, "nothing forwarded, nothing announced")
}

func TestSweepPropagatesStoreError(t *testing.T) {
	store := &fakeSchedStore{accountErr: errors.New("database is locked")}
	s := NewScheduler(store, &fakeFetcher{}, &fakeForwarder{}, &fakeNotifier{}, fastConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Error(t, s.sweep(context.Background(), 1))
}

func TestSchedulerStartStop(t *testing.T) {
	store := &fakeSchedStore{}
	s := NewScheduler(store, &fakeFetcher{}, &fakeForwarder{}, &fakeNotifier{}, fastConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.True(t, s.Start(1))
	assert.False(t, s.Start(1), "second start is a no-op")
	assert.True(t, s.Running(1))

	assert.True(t, s.Start(2), "owners are independent")

	assert.True(t, s.Stop(1))
	assert.False(t, s.Stop(1), "second stop is a no-op")
	assert.False(t, s.Running(1))

	s.StopAll()
	assert.False(t, s.Running(2))
}
