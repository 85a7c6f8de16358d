package checker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsentry/mailsentry/pkg/models"
)

type fakeProber struct {
	mu      sync.Mutex
	results map[string]ProbeResult // keyed by address
	probed  map[string][]Endpoint
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		results: make(map[string]ProbeResult),
		probed:  make(map[string][]Endpoint),
	}
}

func (p *fakeProber) Probe(ctx context.Context, address, password string, endpoint Endpoint) ProbeResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probed[address] = append(p.probed[address], endpoint)
	result, ok := p.results[address]
	if !ok {
		return ProbeResult{Class: EndpointUnreachable, Endpoint: endpoint, Detail: "no such host"}
	}
	result.Endpoint = endpoint
	return result
}

type storeCall struct {
	accountID int64
	status    string
	errorText string
	count     int
	host      string
	port      int
}

type fakeStore struct {
	mu        sync.Mutex
	successes []storeCall
	failures  []storeCall
	endpoints []storeCall
	failWith  error
}

func (s *fakeStore) ApplyProbeSuccess(ctx context.Context, id int64, messageCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.successes = append(s.successes, storeCall{accountID: id, count: messageCount})
	return nil
}

func (s *fakeStore) ApplyProbeFailure(ctx context.Context, id int64, status, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.failures = append(s.failures, storeCall{accountID: id, status: status, errorText: errorMessage})
	return nil
}

func (s *fakeStore) UpdateAccountEndpoint(ctx context.Context, id int64, host string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints = append(s.endpoints, storeCall{accountID: id, host: host, port: port})
	return nil
}

func (s *fakeStore) failureFor(id int64) (storeCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, call := range s.failures {
		if call.accountID == id {
			return call, true
		}
	}
	return storeCall{}, false
}

func testAccount(id int64, address string) *models.Account {
	endpoint, _ := PrimaryEndpoint(address)
	return &models.Account{
		ID:       id,
		OwnerID:  42,
		Email:    address,
		Password: "secret",
		IMAPHost: endpoint.Host,
		IMAPPort: endpoint.Port,
		Status:   models.StatusPending,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseCredentials(t *testing.T) {
	lines := []string{
		"alice@gmail.com:hunter2",
		"this line has no colon",
		"  bob@example.org : swordfish  ",
		":missing-address",
		"missing-at-sign:password",
		"",
	}

	accounts := ParseCredentials(42, lines)
	require.Len(t, accounts, 2)

	assert.Equal(t, "alice@gmail.com", accounts[0].Email)
	assert.Equal(t, "hunter2", accounts[0].Password)
	assert.Equal(t, "imap.gmail.com", accounts[0].IMAPHost)
	assert.Equal(t, models.StatusPending, accounts[0].Status)

	assert.Equal(t, "bob@example.org", accounts[1].Email)
	assert.Equal(t, "swordfish", accounts[1].Password)
	assert.Equal(t, int64(42), accounts[1].OwnerID)
}

func TestValidateAppliesTerminalStatuses(t *testing.T) {
	prober := newFakeProber()
	prober.results["ok@gmail.com"] = ProbeResult{Class: Success, MessageCount: 7}
	prober.results["bad@gmail.com"] = ProbeResult{Class: InvalidCredentials}
	prober.results["2fa@gmail.com"] = ProbeResult{Class: TwoFactorRequired}
	prober.results["busy@gmail.com"] = ProbeResult{Class: RateLimited}
	prober.results["broken@gmail.com"] = ProbeResult{Class: TransportError, Detail: "unexpected EOF"}

	store := &fakeStore{}
	engine := NewEngine(store, prober, EngineConfig{}, testLogger())

	accounts := []*models.Account{
		testAccount(1, "ok@gmail.com"),
		testAccount(2, "bad@gmail.com"),
		testAccount(3, "2fa@gmail.com"),
		testAccount(4, "busy@gmail.com"),
		testAccount(5, "broken@gmail.com"),
		testAccount(6, "gone@gmail.com"), // every candidate unreachable
	}

	run := NewRegistry().Begin(42)
	require.NoError(t, engine.Validate(context.Background(), run, accounts, nil))

	require.Len(t, store.successes, 1)
	assert.Equal(t, int64(1), store.successes[0].accountID)
	assert.Equal(t, 7, store.successes[0].count)

	call, ok := store.failureFor(2)
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, call.status)
	assert.Equal(t, "Authentication failed - Invalid credentials", call.errorText)

	call, ok = store.failureFor(3)
	require.True(t, ok)
	assert.Equal(t, models.StatusTwoFactor, call.status)
	assert.Equal(t, "2FA_REQUIRED", call.errorText)

	call, ok = store.failureFor(4)
	require.True(t, ok)
	assert.Equal(t, "Too many connections - Rate limited", call.errorText)

	call, ok = store.failureFor(5)
	require.True(t, ok)
	assert.Equal(t, "Connection error: unexpected EOF", call.errorText)

	call, ok = store.failureFor(6)
	require.True(t, ok)
	assert.Equal(t, "All connection attempts failed", call.errorText)

	snap := run.Snapshot()
	assert.Equal(t, 6, snap.Processed)
	assert.Equal(t, 1, snap.Successful)
	assert.Equal(t, 1, snap.TwoFactor)
	assert.Equal(t, 4, snap.Failed)
}

func TestValidateStopsAtBatchBoundary(t *testing.T) {
	prober := newFakeProber()
	store := &fakeStore{}
	engine := NewEngine(store, prober, EngineConfig{BatchSize: 2, Workers: 2}, testLogger())

	accounts := make([]*models.Account, 6)
	for i := range accounts {
		addr := string(rune('a'+i)) + "@example.org"
		prober.results[addr] = ProbeResult{Class: InvalidCredentials}
		accounts[i] = testAccount(int64(i+1), addr)
	}

	run := NewRegistry().Begin(42)

	// Stop after the first batch's snapshot arrives. The second batch must
	// never start.
	var calls int
	onProgress := func(snap models.ProgressSnapshot) {
		calls++
		run.RequestStop()
	}

	require.NoError(t, engine.Validate(context.Background(), run, accounts, onProgress))

	snap := run.Snapshot()
	assert.Equal(t, 2, snap.Processed, "only the first batch should drain")
	assert.True(t, snap.Stopped)
	assert.Len(t, store.failures, 2)
}

func TestValidateAbortsOnStoreError(t *testing.T) {
	prober := newFakeProber()
	prober.results["a@example.org"] = ProbeResult{Class: InvalidCredentials}

	store := &fakeStore{failWith: errors.New("disk full")}
	engine := NewEngine(store, prober, EngineConfig{}, testLogger())

	run := NewRegistry().Begin(42)
	err := engine.Validate(context.Background(), run, []*models.Account{testAccount(1, "a@example.org")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestValidateTriesCandidatesInOrder(t *testing.T) {
	prober := newFakeProber() // everything unreachable
	store := &fakeStore{}
	engine := NewEngine(store, prober, EngineConfig{}, testLogger())

	account := testAccount(1, "user@example.org")
	run := NewRegistry().Begin(42)
	require.NoError(t, engine.Validate(context.Background(), run, []*models.Account{account}, nil))

	assert.Equal(t, []Endpoint{
		{"imap.example.org", 993},
		{"mail.example.org", 993},
		{"imap.example.org", 143},
		{"mail.example.org", 143},
	}, prober.probed["user@example.org"])
}

func TestValidateStickyEndpointUpdate(t *testing.T) {
	// First candidate unreachable, the prober succeeds on whatever it is
	// handed next; the working endpoint must be written back.
	prober := &flakyProber{failFirst: 1}
	store := &fakeStore{}
	engine := NewEngine(store, prober, EngineConfig{}, testLogger())

	account := testAccount(1, "user@example.org")
	run := NewRegistry().Begin(42)
	require.NoError(t, engine.Validate(context.Background(), run, []*models.Account{account}, nil))

	require.Len(t, store.endpoints, 1)
	assert.Equal(t, "mail.example.org", store.endpoints[0].host)
	assert.Equal(t, 993, store.endpoints[0].port)
}

type flakyProber struct {
	mu        sync.Mutex
	failFirst int
}

func (p *flakyProber) Probe(ctx context.Context, address, password string, endpoint Endpoint) ProbeResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFirst > 0 {
		p.failFirst--
		return ProbeResult{Class: EndpointUnreachable, Endpoint: endpoint, Detail: "connection refused"}
	}
	return ProbeResult{Class: Success, Endpoint: endpoint, MessageCount: 3}
}

func TestRegistrySingleRunPerOwner(t *testing.T) {
	registry := NewRegistry()

	run := registry.Begin(1)
	require.NotNil(t, run)
	assert.Nil(t, registry.Begin(1), "second run for the same owner must be refused")

	other := registry.Begin(2)
	assert.NotNil(t, other, "runs of different owners are independent")

	registry.End(1)
	assert.NotNil(t, registry.Begin(1))
}
