package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/rss-stash/rss-stash/app/cfg"
	"github.com/rss-stash/rss-stash/app/database"
	"github.com/rss-stash/rss-stash/app/ingest"
	"github.com/rss-stash/rss-stash/app/publish"
	"github.com/rss-stash/rss-stash/app/schedule"
	"github.com/rss-stash/rss-stash/app/session"
	"github.com/rss-stash/rss-stash/app/source"
)

// Collaborator contracts the loop drives. Concrete implementations live in
// the session, ingest, publish, and sweep packages.

type SessionEnsurer interface {
	EnsureSession(ctx context.Context, cfg *source.Config, forced bool, nextNeeded time.Time) ([]session.Cookie, error)
}

type EntryFetcher interface {
	FetchNewEntries(ctx context.Context, cfg *source.Config, cookies []session.Cookie, highWaterMark time.Time) ([]ingest.Entry, error)
}

type BatchPublisher interface {
	PublishBatch(ctx context.Context, entries []ingest.Entry) (publish.Report, error)
}

type SourceSweeper interface {
	Sweep(ctx context.Context, cfg *source.Config) error
}

// Orchestrator runs the top-level cycle: per source, ensure session, ingest
// when the poll is due, refresh downstream when the refresh is due; after
// all sources, publish the merged batch chronologically; then sweep flagged
// sources; then sleep until the next tick. A failure in one source never
// blocks another; only a state persistence failure or cancellation stops
// the loop.
type Orchestrator struct {
	configCache *source.ConfigCache
	states      database.StateRepository
	sessions    SessionEnsurer
	ingestor    EntryFetcher
	pipeline    BatchPublisher
	sweeper     SourceSweeper
	refresher   publish.RefreshTarget
	interval    time.Duration
	workerCount int
}

func NewOrchestrator(configCache *source.ConfigCache, states database.StateRepository,
	sessions SessionEnsurer, ingestor EntryFetcher, pipeline BatchPublisher,
	sweeper SourceSweeper, refresher publish.RefreshTarget) *Orchestrator {
	c := cfg.Get()

	return &Orchestrator{
		configCache: configCache,
		states:      states,
		sessions:    sessions,
		ingestor:    ingestor,
		pipeline:    pipeline,
		sweeper:     sweeper,
		refresher:   refresher,
		interval:    time.Duration(c.CycleInterval) * time.Second,
		workerCount: max(c.WorkerCount, 1),
	}
}

// Run executes cycles until the context is cancelled or a persistence
// failure makes continuing unsafe. The first cycle starts immediately.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		if err := o.RunCycle(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			slog.Info("Orchestrator stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle processes every enabled source once, publishes the merged batch,
// and sweeps flagged sources.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	configs := o.configCache.GetEnabledConfigs()
	if len(configs) == 0 {
		slog.Debug("No enabled source configurations found")
		return nil
	}

	batch, err := o.processSources(ctx, configs)
	if err != nil {
		return err
	}

	if ctx.Err() != nil {
		return nil
	}

	job := NewJob(JobTypePublishBatch, "")
	report, err := o.pipeline.PublishBatch(ctx, batch)
	if err != nil {
		return err
	}
	if len(batch) > 0 {
		slog.Info("Cycle batch published",
			"job_id", job.ID,
			"duration", job.Duration(),
			"entries", len(batch),
			"published", report.Published,
			"failed", report.Failed)
	}

	return o.sweepFlaggedSources(ctx, configs)
}

// processSources fans the per-source work out to the worker pool and
// gathers every source's new entries into one cycle-global batch. The wait
// is the mandatory barrier: global chronological publish order needs the
// complete batch.
func (o *Orchestrator) processSources(ctx context.Context, configs map[string]*source.Config) ([]ingest.Entry, error) {
	jobs := make(chan *source.Config, len(configs))
	for _, sourceConfig := range configs {
		jobs <- sourceConfig
	}
	close(jobs)

	var mu sync.Mutex
	var batch []ingest.Entry
	var fatal error

	var wg sync.WaitGroup
	for i := 0; i < o.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sourceConfig := range jobs {
				if ctx.Err() != nil {
					return
				}

				entries, err := o.processSource(ctx, sourceConfig)

				mu.Lock()
				if err != nil && fatal == nil {
					fatal = err
				}
				batch = append(batch, entries...)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return batch, fatal
}

// processSource runs one source through the session, poll, and refresh
// stages. The session stage runs every cycle for authenticated sources so
// the manager's lookahead can re-login before the session lapses, even when
// nothing is due yet. Contained failures (configuration, authentication,
// fetch) are logged and skip the affected stages; only persistence failures
// propagate.
func (o *Orchestrator) processSource(ctx context.Context, sourceConfig *source.Config) ([]ingest.Entry, error) {
	job := NewJob(JobTypeProcessSource, sourceConfig.Name)

	state, err := o.states.LoadState(sourceConfig.Name)
	if err != nil {
		var persistErr *database.PersistenceError
		if errors.As(err, &persistErr) {
			return nil, err
		}
		slog.Error("Failed to load source state, skipping source", "source", sourceConfig.Name, "error", err)
		return nil, nil
	}

	now := time.Now().UTC()
	pollDue := state.ForcePoll || schedule.IsDue(state.LastPollAt, sourceConfig.PollCadence(), now)
	refreshDue := schedule.IsDue(state.LastRefreshAt, sourceConfig.RefreshCadence(), now)

	// Planning lookahead only: when the session would lapse before the next
	// poll or refresh needs it, the manager re-logs-in pre-emptively.
	nextNeeded := earliest(
		schedule.NextDue(state.LastPollAt, sourceConfig.PollCadence(), now),
		schedule.NextDue(state.LastRefreshAt, sourceConfig.RefreshCadence(), now),
	)

	// Nothing due and no upcoming need to keep a session warm for.
	if !pollDue && !refreshDue && (sourceConfig.Login == nil || nextNeeded.Equal(schedule.Never)) {
		return nil, nil
	}

	cookies, err := o.sessions.EnsureSession(ctx, sourceConfig, state.ForcePoll, nextNeeded)
	if err != nil {
		var persistErr *database.PersistenceError
		if errors.As(err, &persistErr) {
			return nil, err
		}
		slog.Warn("Session unavailable, skipping poll and refresh", "source", sourceConfig.Name, "error", err)
		return nil, nil
	}

	if !pollDue && !refreshDue {
		// Session checked (and renewed if it would lapse before nextNeeded);
		// the operations themselves wait for their cadence.
		return nil, nil
	}

	var entries []ingest.Entry

	if pollDue {
		entries, err = o.ingestor.FetchNewEntries(ctx, sourceConfig, cookies, state.HighWaterMark)
		if err != nil {
			slog.Error("Ingest failed, source skipped for this cycle", "source", sourceConfig.Name, "error", err)
			entries = nil
		} else if err := o.states.MarkPolled(sourceConfig.Name, now); err != nil {
			return nil, err
		}
	}

	if refreshDue {
		if err := o.refresher.Refresh(ctx, cookies); err != nil {
			slog.Error("Downstream refresh failed", "source", sourceConfig.Name, "error", err)
		} else if err := o.states.MarkRefreshed(sourceConfig.Name, now); err != nil {
			return nil, err
		}
	}

	slog.Debug("Source processed",
		"job_id", job.ID,
		"source", sourceConfig.Name,
		"duration", job.Duration(),
		"poll_due", pollDue,
		"refresh_due", refreshDue,
		"new", len(entries))

	return entries, nil
}

// sweepFlaggedSources runs the sync-and-retention pass for every source
// whose one-shot sweep flag is set. The flag clears once the sweep ran to
// completion; a sweep-level error leaves it set for the next cycle.
func (o *Orchestrator) sweepFlaggedSources(ctx context.Context, configs map[string]*source.Config) error {
	for _, sourceConfig := range configs {
		if ctx.Err() != nil {
			return nil
		}

		state, err := o.states.LoadState(sourceConfig.Name)
		if err != nil {
			var persistErr *database.PersistenceError
			if errors.As(err, &persistErr) {
				return err
			}
			slog.Error("Failed to load source state for sweep", "source", sourceConfig.Name, "error", err)
			continue
		}
		if !state.ForceSweep {
			continue
		}

		job := NewJob(JobTypeSweepSource, sourceConfig.Name)

		err = o.sweeper.Sweep(ctx, sourceConfig)
		if err != nil {
			var persistErr *database.PersistenceError
			if errors.As(err, &persistErr) {
				return err
			}
			slog.Error("Sweep aborted, flag kept for next cycle", "source", sourceConfig.Name, "job_id", job.ID, "error", err)
			continue
		}

		if err := o.states.SetForceSweep(sourceConfig.Name, false); err != nil {
			return err
		}

		slog.Info("Sweep completed", "source", sourceConfig.Name, "job_id", job.ID, "duration", job.Duration())
	}

	return nil
}

func earliest(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
