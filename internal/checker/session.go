package checker

import (
	"sync"
	"time"

	"github.com/mailsentry/mailsentry/pkg/models"
)

// Run is the ephemeral per-owner state of one validation run. It is not
// persisted; a process restart discards it. All mutation goes through its
// methods, which hold the run's own lock.
type Run struct {
	OwnerID int64

	mu         sync.Mutex
	total      int
	processed  int
	successful int
	failed     int
	twoFactor  int
	stopped    bool
	startedAt  time.Time
}

func (r *Run) start(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
	r.startedAt = time.Now()
}

func (r *Run) record(class Class) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed++
	switch class {
	case Success:
		r.successful++
	case TwoFactorRequired:
		r.twoFactor++
	default:
		r.failed++
	}
}

// RequestStop sets the cancellation flag. The flag is polled at batch
// boundaries; the batch in flight still drains.
func (r *Run) RequestStop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
}

func (r *Run) stopRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// Snapshot returns a consistent view of the run's progress.
func (r *Run) Snapshot() models.ProgressSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.startedAt)
	snap := models.ProgressSnapshot{
		Processed:  r.processed,
		Total:      r.total,
		Successful: r.successful,
		Failed:     r.failed,
		TwoFactor:  r.twoFactor,
		Stopped:    r.stopped,
		Elapsed:    elapsed,
	}
	if minutes := elapsed.Minutes(); minutes > 0 {
		snap.Throughput = float64(r.processed) / minutes
	}
	if snap.Throughput > 0 {
		remaining := float64(r.total - r.processed)
		snap.ETA = time.Duration(remaining / snap.Throughput * float64(time.Minute))
	}
	return snap
}

// Registry tracks the live validation run of each owner. One run per owner at
// a time; records are looked up by owner id.
type Registry struct {
	mu   sync.Mutex
	runs map[int64]*Run
}

// NewRegistry creates an empty run registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[int64]*Run)}
}

// Begin registers a new run for the owner. It returns nil if a run is
// already in progress.
func (reg *Registry) Begin(ownerID int64) *Run {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.runs[ownerID]; exists {
		return nil
	}
	run := &Run{OwnerID: ownerID}
	reg.runs[ownerID] = run
	return run
}

// Get returns the owner's live run, if any.
func (reg *Registry) Get(ownerID int64) (*Run, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	run, ok := reg.runs[ownerID]
	return run, ok
}

// End discards the owner's run record.
func (reg *Registry) End(ownerID int64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.runs, ownerID)
}
