// Package spyglass keeps the view tracking stats of the bound resume fresh.
//
// A Refresher polls on a fixed interval and also accepts manual refreshes. Both paths
// issue the same read. Every fetch is stamped when issued and a response only replaces
// the held snapshot if its stamp is newer than the one held, so overlapping refreshes
// settle on the most recently issued request. A failed fetch keeps the last good snapshot.
package spyglass

import (
	"context"
	"sync"
	"time"

	"missioncontrol/internal/errors"
	"missioncontrol/internal/types"
)

// DefaultInterval is the polling period when none is configured
const DefaultInterval = 30 * time.Second

// Fetcher reads tracking stats for a resume
type Fetcher interface {
	Spyglass(ctx context.Context, resumeID string) (*types.SpyglassStats, error)
}

// Notifier is told when a newer snapshot replaces the held one.
// prev is nil for the first snapshot of a resume.
type Notifier interface {
	Notify(ctx context.Context, resumeID string, prev, next *types.SpyglassStats) error
}

// Forgetter is implemented by notifiers that keep per-resume state
type Forgetter interface {
	Forget(resumeID string)
}

// Recorder observes refresh outcomes
type Recorder interface {
	RecordSpyglassRefresh(ctx context.Context, err error)
}

// Option customises a Refresher
type Option func(*Refresher)

// WithInterval overrides the polling period
func WithInterval(d time.Duration) Option {
	return func(r *Refresher) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithNotifier sends new snapshots to n
func WithNotifier(n Notifier) Option {
	return func(r *Refresher) { r.notifier = n }
}

// WithRecorder reports refresh outcomes to rec
func WithRecorder(rec Recorder) Option {
	return func(r *Refresher) { r.recorder = rec }
}

// Refresher polls spyglass stats for one bound resume at a time
type Refresher struct {
	fetcher  Fetcher
	interval time.Duration
	notifier Notifier
	recorder Recorder
	logger   *errors.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	resumeID  string
	bindGen   uint64
	nextStamp uint64
	heldStamp uint64
	stats     *types.SpyglassStats
	fetchedAt time.Time
	lastErr   error
	started   bool
	stopped   bool
}

// NewRefresher creates an idle refresher. Call Start to begin polling.
func NewRefresher(fetcher Fetcher, logger *errors.Logger, opts ...Option) *Refresher {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Refresher{
		fetcher:  fetcher,
		interval: DefaultInterval,
		logger:   logger,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches the polling loop. It is a no-op after the first call or after Stop.
func (r *Refresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	r.wg.Add(1)
	go r.loop()
}

func (r *Refresher) loop() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if r.ResumeID() == "" {
				continue
			}
			if _, err := r.Refresh(r.ctx); err != nil && r.ctx.Err() == nil {
				r.logger.Debug("Scheduled spyglass refresh failed", "error", err)
			}
		}
	}
}

// Bind switches to another resume. The held snapshot is dropped and responses
// for the previous resume are discarded. An empty id unbinds.
// A notifier implementing Forgetter is told to drop the previous resume.
func (r *Refresher) Bind(resumeID string) {
	r.mu.Lock()
	previous := r.resumeID
	if resumeID == previous {
		r.mu.Unlock()
		return
	}
	r.resumeID = resumeID
	r.bindGen++
	r.stats = nil
	r.lastErr = nil
	r.fetchedAt = time.Time{}
	r.mu.Unlock()

	if forgetter, ok := r.notifier.(Forgetter); ok && previous != "" {
		forgetter.Forget(previous)
	}
}

// ResumeID returns the bound resume
func (r *Refresher) ResumeID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resumeID
}

// HasData reports whether a snapshot is held
func (r *Refresher) HasData() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats != nil
}

// Snapshot is the held stats with their freshness
type Snapshot struct {
	ResumeID  string               `json:"resume_id"`
	Stats     *types.SpyglassStats `json:"stats,omitempty"`
	FetchedAt time.Time            `json:"fetched_at,omitzero"`
	Error     string               `json:"error,omitempty"`
}

// Snapshot returns the held stats. The stats must not be modified.
func (r *Refresher) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{ResumeID: r.resumeID, Stats: r.stats, FetchedAt: r.fetchedAt}
	if r.lastErr != nil {
		snap.Error = r.lastErr.Error()
	}
	return snap
}

// Prefetch starts a refresh in the background. It survives the caller's cancellation
// but not Stop.
func (r *Refresher) Prefetch(ctx context.Context) {
	r.mu.Lock()
	if r.stopped || r.resumeID == "" {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(r.ctx, cancel)
	go func() {
		defer r.wg.Done()
		defer stop()
		defer cancel()
		if _, err := r.Refresh(fetchCtx); err != nil {
			r.logger.Debug("Spyglass prefetch failed", "error", err)
		}
	}()
}

// Refresh fetches stats for the bound resume now. It returns the snapshot held once
// the response has been applied, which is an even newer one if a later request won.
// On failure the last good snapshot stays in place.
func (r *Refresher) Refresh(ctx context.Context) (*types.SpyglassStats, error) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil, errStopped()
	}
	resumeID := r.resumeID
	if resumeID == "" {
		r.mu.Unlock()
		return nil, errors.NewValidationError(errors.ErrCodeMissingResume, "no resume is bound", nil)
	}
	r.nextStamp++
	stamp := r.nextStamp
	gen := r.bindGen
	r.mu.Unlock()

	stats, err := r.fetcher.Spyglass(ctx, resumeID)
	if r.recorder != nil {
		r.recorder.RecordSpyglassRefresh(ctx, err)
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil, errStopped()
	}
	if gen != r.bindGen {
		r.mu.Unlock()
		return nil, errors.NewValidationError(errors.ErrCodeInvalidStage, "resume changed during refresh", nil).
			WithContext("resume_id", resumeID)
	}
	if err != nil {
		r.lastErr = err
		held := r.stats
		r.mu.Unlock()
		return held, err
	}
	if stamp < r.heldStamp {
		held := r.stats
		r.mu.Unlock()
		r.logger.Debug("Discarding stale spyglass response", "resume_id", resumeID, "stamp", stamp)
		return held, nil
	}
	prev := r.stats
	r.stats = stats
	r.heldStamp = stamp
	r.fetchedAt = r.now()
	r.lastErr = nil
	r.mu.Unlock()

	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, resumeID, prev, stats); err != nil {
			r.logger.LogError(err, "Failed to send spyglass notification", "resume_id", resumeID)
		}
	}
	return stats, nil
}

// Stop ends polling and discards responses still in flight. It waits for the
// background goroutines to exit.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}

func errStopped() error {
	return errors.NewValidationError(errors.ErrCodeInvalidStage, "spyglass refresher is stopped", nil)
}
