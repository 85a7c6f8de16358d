package checker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mailsentry/mailsentry/pkg/models"
)

// Store is the slice of persistence the engine needs. *database.DB
// implements it.
type Store interface {
	ApplyProbeSuccess(ctx context.Context, id int64, messageCount int) error
	ApplyProbeFailure(ctx context.Context, id int64, status, errorMessage string) error
	UpdateAccountEndpoint(ctx context.Context, id int64, host string, port int) error
}

// ProgressFunc receives progress snapshots at the configured cadence.
type ProgressFunc func(models.ProgressSnapshot)

// Engine validates credential batches over a bounded worker pool.
type Engine struct {
	store  Store
	prober Prober
	logger *slog.Logger

	batchSize     int
	workers       int
	progressEvery int
}

// EngineConfig tunes the engine. Zero values fall back to the defaults the
// system was sized for: batches of 100, 75 workers, a snapshot every 25
// accounts.
type EngineConfig struct {
	BatchSize     int
	Workers       int
	ProgressEvery int
}

// NewEngine creates a validation engine.
func NewEngine(store Store, prober Prober, cfg EngineConfig, logger *slog.Logger) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 75
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 25
	}
	return &Engine{
		store:         store,
		prober:        prober,
		logger:        logger.With("component", "validation_engine"),
		batchSize:     cfg.BatchSize,
		workers:       cfg.Workers,
		progressEvery: cfg.ProgressEvery,
	}
}

// ParseCredentials parses "address:secret" lines into pending accounts for
// the owner. Malformed lines are skipped, not fatal.
func ParseCredentials(ownerID int64, lines []string) []*models.Account {
	var accounts []*models.Account
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		address, password, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		address = strings.TrimSpace(address)
		password = strings.TrimSpace(password)
		if address == "" || password == "" {
			continue
		}
		endpoint, ok := PrimaryEndpoint(address)
		if !ok {
			continue
		}
		accounts = append(accounts, &models.Account{
			OwnerID:  ownerID,
			Email:    address,
			Password: password,
			IMAPHost: endpoint.Host,
			IMAPPort: endpoint.Port,
			Status:   models.StatusPending,
		})
	}
	return accounts
}

// Validate probes every account and applies a terminal status to each. It
// processes accounts in batches; within a batch, probes run concurrently up
// to the worker limit. The run's stop flag is polled between batches, so a
// stop request lets the in-flight batch drain. Per-account failures never
// abort the run; a store failure does.
func (e *Engine) Validate(ctx context.Context, run *Run, accounts []*models.Account, onProgress ProgressFunc) error {
	run.start(len(accounts))

	e.logger.Info("validation run started",
		"owner_id", run.OwnerID,
		"accounts", len(accounts),
		"batch_size", e.batchSize,
		"workers", e.workers,
	)

	sem := make(chan struct{}, e.workers)

	for offset := 0; offset < len(accounts); offset += e.batchSize {
		if run.stopRequested() {
			e.logger.Info("validation stopped by request", "owner_id", run.OwnerID)
			if onProgress != nil {
				onProgress(run.Snapshot())
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		end := offset + e.batchSize
		if end > len(accounts) {
			end = len(accounts)
		}
		batch := accounts[offset:end]

		var (
			wg       sync.WaitGroup
			storeMu  sync.Mutex
			storeErr error
		)
		for _, account := range batch {
			wg.Add(1)
			sem <- struct{}{}
			go func(account *models.Account) {
				defer wg.Done()
				defer func() { <-sem }()

				result := e.validateAccount(ctx, account)
				if err := e.apply(ctx, account, result); err != nil {
					storeMu.Lock()
					if storeErr == nil {
						storeErr = err
					}
					storeMu.Unlock()
					return
				}
				run.record(result.Class)

				if run.Snapshot().Processed%e.progressEvery == 0 && onProgress != nil {
					onProgress(run.Snapshot())
				}
			}(account)
		}
		wg.Wait()

		if storeErr != nil {
			return fmt.Errorf("validation run aborted: %w", storeErr)
		}
		// Every account in the batch has a terminal status applied before
		// this snapshot is taken.
		if onProgress != nil {
			onProgress(run.Snapshot())
		}
	}

	snap := run.Snapshot()
	e.logger.Info("validation run finished",
		"owner_id", run.OwnerID,
		"processed", snap.Processed,
		"successful", snap.Successful,
		"failed", snap.Failed,
		"two_factor", snap.TwoFactor,
	)
	return nil
}

// validateAccount tries the account's candidates in order until a terminal
// outcome.
func (e *Engine) validateAccount(ctx context.Context, account *models.Account) ProbeResult {
	candidates := CandidatesFrom(account.Email, account.IMAPHost, account.IMAPPort)
	var last ProbeResult
	for _, endpoint := range candidates {
		result := e.prober.Probe(ctx, account.Email, account.Password, endpoint)
		if result.Class.Terminal() {
			return result
		}
		last = result
	}
	return ProbeResult{Class: AllAttemptsFailed, Detail: last.Detail}
}

// apply writes one probe outcome to the store.
func (e *Engine) apply(ctx context.Context, account *models.Account, result ProbeResult) error {
	switch result.Class {
	case Success:
		if err := e.store.ApplyProbeSuccess(ctx, account.ID, result.MessageCount); err != nil {
			return err
		}
		// Sticky fix-up: remember the endpoint that worked when it is not
		// the stored one.
		if result.Endpoint.Host != account.IMAPHost || result.Endpoint.Port != account.IMAPPort {
			if err := e.store.UpdateAccountEndpoint(ctx, account.ID, result.Endpoint.Host, result.Endpoint.Port); err != nil {
				return err
			}
		}
	case TwoFactorRequired:
		return e.store.ApplyProbeFailure(ctx, account.ID, models.StatusTwoFactor, "2FA_REQUIRED")
	case InvalidCredentials:
		return e.store.ApplyProbeFailure(ctx, account.ID, models.StatusFailed, "Authentication failed - Invalid credentials")
	case RateLimited:
		return e.store.ApplyProbeFailure(ctx, account.ID, models.StatusFailed, "Too many connections - Rate limited")
	case TransportError:
		return e.store.ApplyProbeFailure(ctx, account.ID, models.StatusFailed, "Connection error: "+result.Detail)
	default:
		return e.store.ApplyProbeFailure(ctx, account.ID, models.StatusFailed, "All connection attempts failed")
	}
	return nil
}
