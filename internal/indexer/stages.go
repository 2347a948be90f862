package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mfenderov/recall/internal/clip"
	"github.com/mfenderov/recall/internal/embedding"
	"github.com/mfenderov/recall/internal/metrics"
)

const (
	stageEmbed   = "embed"
	stageRelated = "related"
	stageContext = "context"

	statusOK          = "ok"
	statusFailed      = "failed"
	statusSkipped     = "skipped"
	statusUnavailable = "unavailable"
)

var errNoEmbedding = errors.New("no embedding available")

// index runs the stages for one new record in order. A failing stage is
// logged and recorded; later stages still run.
func (p *Pipeline) index(ctx context.Context, rec clip.Record) Result {
	res := Result{ID: rec.ID}
	var errs []error

	hasVector, err := p.embed(ctx, rec)
	res.Embedded = err == nil
	if err != nil && !errors.Is(err, errNoEmbedding) {
		errs = append(errs, err)
	}

	if hasVector {
		related, err := p.relate(ctx, rec)
		if err != nil {
			errs = append(errs, err)
		}
		res.RelatedIDs = related
	} else {
		recordStage(stageRelated, statusSkipped)
	}

	n, err := p.rescoreRecent(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	res.ContextScores = n

	res.Err = errors.Join(errs...)
	return res
}

// embed makes sure rec has a persisted embedding. hasVector reports whether
// a vector is usable this session, which stays true when only the write
// failed.
func (p *Pipeline) embed(ctx context.Context, rec clip.Record) (hasVector bool, err error) {
	if _, ok := p.store.Stored(rec); ok {
		recordStage(stageEmbed, statusSkipped)
		return true, nil
	}

	vec, ok := p.store.GetOrCompute(ctx, rec)
	if !ok {
		if !p.store.Available() {
			recordStage(stageEmbed, statusUnavailable)
			p.logger.Debug("embedding provider unavailable", "id", rec.ID)
		} else {
			recordStage(stageEmbed, statusFailed)
			p.logger.Warn("embedding failed", "id", rec.ID)
		}
		return false, errNoEmbedding
	}

	if err := p.repo.SaveEmbedding(ctx, rec.ID, embedding.Encode(vec), p.cfg.Model); err != nil {
		recordStage(stageEmbed, statusFailed)
		p.logger.Warn("persist embedding failed", "id", rec.ID, "err", err)
		return true, fmt.Errorf("persist embedding for %s: %w", rec.ID, err)
	}

	recordStage(stageEmbed, statusOK)
	return true, nil
}

// relate stores the ids of the records most similar to rec among the recent
// ones.
func (p *Pipeline) relate(ctx context.Context, rec clip.Record) ([]string, error) {
	recent, err := p.repo.RecentRecords(ctx, p.cfg.RelatedWindow)
	if err != nil {
		recordStage(stageRelated, statusFailed)
		p.logger.Warn("load recent records failed", "id", rec.ID, "err", err)
		return nil, fmt.Errorf("load recent records: %w", err)
	}

	matches := p.sim.FindSimilar(ctx, rec, recent, p.cfg.RelatedThreshold)
	matches = matches[:min(len(matches), p.cfg.RelatedLimit)]

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.Record.ID
	}

	if err := p.repo.SaveRelatedIDs(ctx, rec.ID, ids); err != nil {
		recordStage(stageRelated, statusFailed)
		p.logger.Warn("persist related items failed", "id", rec.ID, "err", err)
		return ids, fmt.Errorf("persist related items for %s: %w", rec.ID, err)
	}

	recordStage(stageRelated, statusOK)
	return ids, nil
}

func (p *Pipeline) rescoreRecent(ctx context.Context) (int, error) {
	recent, err := p.repo.RecentRecords(ctx, p.cfg.ContextWindow)
	if err != nil {
		recordStage(stageContext, statusFailed)
		p.logger.Warn("load recent records failed", "err", err)
		return 0, fmt.Errorf("load recent records: %w", err)
	}
	return p.saveContextScores(ctx, recent)
}

func (p *Pipeline) saveContextScores(ctx context.Context, items []clip.Record) (int, error) {
	scores := p.det.CalculateContextScores(items, p.app)
	if len(scores) == 0 {
		recordStage(stageContext, statusSkipped)
		return 0, nil
	}

	if err := p.repo.SaveContextScores(ctx, scores); err != nil {
		recordStage(stageContext, statusFailed)
		p.logger.Warn("persist context scores failed", "count", len(scores), "err", err)
		return 0, fmt.Errorf("persist context scores: %w", err)
	}

	recordStage(stageContext, statusOK)
	return len(scores), nil
}

func recordStage(stage, status string) {
	metrics.IndexingStageTotal.WithLabelValues(stage, status).Inc()
}

func recordBackfillRejected() {
	metrics.BackfillRejectedTotal.Inc()
}
