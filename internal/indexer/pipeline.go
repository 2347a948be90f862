// Package indexer computes derived record metadata in the background:
// embeddings, related-item lists and context scores.
//
// New records are queued and processed one at a time by a single worker.
// Full-corpus backfills run on their own goroutine and at most one runs at a
// time; a backfill may still overlap with new-item indexing, in which case
// both write the same columns and the last write wins.
package indexer

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mfenderov/recall/internal/clip"
	"github.com/mfenderov/recall/internal/detector"
	"github.com/mfenderov/recall/internal/embedding"
	"github.com/mfenderov/recall/internal/similarity"
)

// ErrClosed is reported for work submitted after Close.
var ErrClosed = errors.New("pipeline closed")

// Repository is the persistence the pipeline reads from and writes to.
// Writes are best effort: a failed write is logged and never rolled back.
type Repository interface {
	RecentRecords(ctx context.Context, limit int) ([]clip.Record, error)
	AllRecords(ctx context.Context) ([]clip.Record, error)
	SaveEmbedding(ctx context.Context, id string, blob []byte, model string) error
	SaveRelatedIDs(ctx context.Context, id string, related []string) error
	SaveContextScores(ctx context.Context, scores map[string]float64) error
}

// Config holds the pipeline's sizes and thresholds.
type Config struct {
	RelatedLimit     int     // related ids kept per record
	RelatedWindow    int     // most recent records searched for related items
	RelatedThreshold float64 // minimum similarity of a related item
	ContextWindow    int     // most recent records rescored after a new item
	QueueSize        int     // pending new items before OnNewItem blocks
	Model            string  // recorded next to persisted embeddings
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		RelatedLimit:     clip.MaxRelated,
		RelatedWindow:    100,
		RelatedThreshold: 0.75,
		ContextWindow:    50,
		QueueSize:        64,
		Model:            embedding.DefaultModel,
	}
}

// Result describes what indexing one new record did. Err joins the errors of
// every stage that failed; the other fields reflect the stages that ran.
type Result struct {
	ID            string
	Embedded      bool
	RelatedIDs    []string
	ContextScores int
	Err           error
}

// BackfillResult summarises a backfill run.
type BackfillResult struct {
	Embedded      int
	Failed        int
	ContextScores int
	Err           error
}

type job struct {
	rec  clip.Record
	done chan Result
}

// Pipeline schedules indexing work.
type Pipeline struct {
	repo   Repository
	store  *embedding.Store
	sim    *similarity.Engine
	det    *detector.Detector
	app    detector.AppSignal
	cfg    Config
	logger *log.Logger

	ctx      context.Context
	group    *errgroup.Group
	backfill *semaphore.Weighted

	mu     sync.RWMutex
	closed bool
	queue  chan job
}

// New starts a pipeline. The detector's context scores use app as the
// foreground-application signal. A nil logger discards output.
func New(repo Repository, sim *similarity.Engine, det *detector.Detector, app detector.AppSignal, logger *log.Logger, cfg Config) *Pipeline {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if app == nil {
		app = detector.NoApp
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	group, ctx := errgroup.WithContext(context.Background())
	p := &Pipeline{
		repo:     repo,
		store:    sim.Store(),
		sim:      sim,
		det:      det,
		app:      app,
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		group:    group,
		backfill: semaphore.NewWeighted(1),
		queue:    make(chan job, cfg.QueueSize),
	}

	group.Go(p.work)
	return p
}

func (p *Pipeline) work() error {
	for j := range p.queue {
		j.done <- p.index(p.ctx, j.rec)
		close(j.done)
	}
	return nil
}

// OnNewItem queues rec for indexing and returns a channel that yields the
// outcome once. Callers that do not care may drop the channel.
func (p *Pipeline) OnNewItem(rec clip.Record) <-chan Result {
	done := make(chan Result, 1)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		done <- Result{ID: rec.ID, Err: ErrClosed}
		close(done)
		return done
	}

	p.queue <- job{rec: rec, done: done}
	return done
}

// Backfill computes and persists embeddings for items one by one, then
// refreshes every context score. It returns false, and does nothing, when a
// backfill is already running or the pipeline is closed.
func (p *Pipeline) Backfill(items []clip.Record) (<-chan BackfillResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, false
	}
	if !p.backfill.TryAcquire(1) {
		recordBackfillRejected()
		p.logger.Debug("backfill already running")
		return nil, false
	}

	done := make(chan BackfillResult, 1)
	p.group.Go(func() error {
		res := p.runBackfill(p.ctx, items)
		p.backfill.Release(1)
		done <- res
		close(done)
		return nil
	})
	return done, true
}

func (p *Pipeline) runBackfill(ctx context.Context, items []clip.Record) BackfillResult {
	var res BackfillResult
	p.logger.Info("backfill started", "items", len(items))

	for _, rec := range items {
		if _, err := p.embed(ctx, rec); err == nil {
			res.Embedded++
		} else {
			res.Failed++
		}
	}

	n, err := p.RefreshContextScores(ctx)
	res.ContextScores = n
	res.Err = err

	p.logger.Info("backfill finished", "embedded", res.Embedded, "failed", res.Failed, "scored", n)
	return res
}

// RefreshContextScores rescores every record against the current foreground
// app and persists the scores. Without a foreground app nothing changes.
func (p *Pipeline) RefreshContextScores(ctx context.Context) (int, error) {
	all, err := p.repo.AllRecords(ctx)
	if err != nil {
		recordStage(stageContext, statusFailed)
		return 0, err
	}
	return p.saveContextScores(ctx, all)
}

// Close stops accepting work and waits for queued items and any running
// backfill to finish.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	return p.group.Wait()
}
