package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mailsentry/mailsentry/pkg/models"
)

// Store is what the scheduler needs from persistence. *database.DB
// implements it.
type Store interface {
	GetActiveAccounts(ctx context.Context, ownerID int64) ([]*models.Account, error)
	FilterAllows(ctx context.Context, ownerID int64, sender string) (bool, error)
}

// Forwarder delivers one admitted message to the owner's sink.
type Forwarder interface {
	Forward(ctx context.Context, ownerID int64, msg *models.Message) error
}

// Notifier pushes an aggregate new-message notification to the owner.
type Notifier interface {
	NotifyNewMessages(ctx context.Context, ownerID int64, count int)
}

// SchedulerConfig tunes the per-owner polling loops.
type SchedulerConfig struct {
	Interval      time.Duration // rest between sweeps
	ErrorBackoff  time.Duration // rest after a loop-level error
	BatchSize     int           // accounts fetched concurrently
	BatchDeadline time.Duration // overall deadline for one batch
	BatchPause    time.Duration // pause between batches
	FetchWindow   time.Duration // recency window passed to the fetcher
}

func (c *SchedulerConfig) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = 5 * time.Minute
	}
	if c.ErrorBackoff == 0 {
		c.ErrorBackoff = time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 5
	}
	if c.BatchDeadline == 0 {
		c.BatchDeadline = 30 * time.Second
	}
	if c.BatchPause == 0 {
		c.BatchPause = time.Second
	}
	if c.FetchWindow == 0 {
		c.FetchWindow = 24 * time.Hour
	}
}

// Scheduler runs one monitoring loop per owner. Loops are independent and
// never block each other.
type Scheduler struct {
	store     Store
	fetcher   Fetcher
	forwarder Forwarder
	notifier  Notifier
	cfg       SchedulerConfig
	logger    *slog.Logger

	mu    sync.Mutex
	loops map[int64]context.CancelFunc
}

// NewScheduler creates a monitoring scheduler.
func NewScheduler(store Store, fetcher Fetcher, forwarder Forwarder, notifier Notifier, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		store:     store,
		fetcher:   fetcher,
		forwarder: forwarder,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger.With("component", "monitor_scheduler"),
		loops:     make(map[int64]context.CancelFunc),
	}
}

// Start launches the owner's monitoring loop. Starting a running loop is a
// no-op; the return value reports whether a new loop was started.
func (s *Scheduler) Start(ownerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.loops[ownerID]; running {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.loops[ownerID] = cancel
	go s.run(ctx, ownerID)

	s.logger.Info("monitoring started", "owner_id", ownerID)
	return true
}

// Stop cancels the owner's loop. An in-flight batch is abandoned to its own
// deadline, not awaited. Returns false if no loop was running.
func (s *Scheduler) Stop(ownerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancel, running := s.loops[ownerID]
	if !running {
		return false
	}
	cancel()
	delete(s.loops, ownerID)

	s.logger.Info("monitoring stopped", "owner_id", ownerID)
	return true
}

// Running reports whether the owner's loop is active.
func (s *Scheduler) Running(ownerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, running := s.loops[ownerID]
	return running
}

// StopAll cancels every loop, for shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ownerID, cancel := range s.loops {
		cancel()
		delete(s.loops, ownerID)
	}
}

func (s *Scheduler) run(ctx context.Context, ownerID int64) {
	for {
		delay := s.cfg.Interval
		if err := s.sweep(ctx, ownerID); err != nil {
			if ctx.Err() != nil {
				return
			}
			// Loop-level errors back off and retry; they never kill the loop.
			s.logger.Error("monitoring sweep failed", "owner_id", ownerID, "error", err)
			delay = s.cfg.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// sweep polls every active account of the owner once, in bounded batches.
func (s *Scheduler) sweep(ctx context.Context, ownerID int64) error {
	accounts, err := s.store.GetActiveAccounts(ctx, ownerID)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return nil
	}

	s.logger.Debug("sweep started", "owner_id", ownerID, "accounts", len(accounts))

	forwarded := 0
	for offset := 0; offset < len(accounts); offset += s.cfg.BatchSize {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		end := offset + s.cfg.BatchSize
		if end > len(accounts) {
			end = len(accounts)
		}

		forwarded += s.pollBatch(ctx, ownerID, accounts[offset:end])

		// Short pause so the mail providers are not saturated.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.BatchPause):
		}
	}

	if forwarded > 0 && s.notifier != nil {
		s.notifier.NotifyNewMessages(ctx, ownerID, forwarded)
	}
	return nil
}

// pollBatch fetches a batch of accounts concurrently under one deadline and
// forwards the admitted messages. Fetches still running at the deadline are
// cancelled and their partial results discarded; store insertion is
// per-message and atomic, so nothing is lost from the ledger.
func (s *Scheduler) pollBatch(ctx context.Context, ownerID int64, batch []*models.Account) int {
	batchCtx, cancel := context.WithTimeout(ctx, s.cfg.BatchDeadline)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		messages []*models.Message
	)
	for _, account := range batch {
		wg.Add(1)
		go func(account *models.Account) {
			defer wg.Done()
			msgs, err := s.fetcher.FetchNew(batchCtx, account, s.cfg.FetchWindow)
			if err != nil {
				s.logger.Warn("fetch failed", "owner_id", ownerID, "account_id", account.ID, "error", err)
				return
			}
			mu.Lock()
			messages = append(messages, msgs...)
			mu.Unlock()
		}(account)
	}
	wg.Wait()

	forwarded := 0
	for _, msg := range messages {
		allowed, err := s.store.FilterAllows(ctx, ownerID, msg.Sender)
		if err != nil {
			s.logger.Warn("filter check failed", "owner_id", ownerID, "error", err)
			continue
		}
		if !allowed {
			continue
		}
		if err := s.forwarder.Forward(ctx, ownerID, msg); err != nil {
			// Delivery failures are logged only; never escalated to the loop.
			s.logger.Warn("forward failed", "owner_id", ownerID, "message_id", msg.MessageID, "error", err)
			continue
		}
		forwarded++
	}
	return forwarded
}
