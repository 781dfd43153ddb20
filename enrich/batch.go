package enrich

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"argus/core"
	"argus/metrics"
	"argus/util"
)

// AlertSource fetches raw alerts from an upstream SIEM. Defined here
// (consumer package) so batch processing depends only on the capability.
type AlertSource interface {
	FetchAlerts(ctx context.Context, limit, offset int, severity string) ([]core.RawAlert, error)
}

// BatchProcessor pulls a page of alerts from a source and enriches each one.
// A batch is fail-soft end to end: a dead source yields an empty run, and a
// single bad alert is logged and skipped without touching its neighbours.
type BatchProcessor struct {
	source AlertSource
	engine *Engine
	logger *zap.SugaredLogger
}

// NewBatchProcessor creates a batch processor.
func NewBatchProcessor(source AlertSource, engine *Engine, logger *zap.SugaredLogger) *BatchProcessor {
	return &BatchProcessor{source: source, engine: engine, logger: logger}
}

// ProcessBatch fetches up to limit alerts matching the severity filter and
// enriches them. It always returns a summary; upstream failures shrink the
// run, they never abort it.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, limit, offset int, severity string) *core.RunSummary {
	summary := &core.RunSummary{Data: []*core.EnrichedAlert{}}

	alerts, err := bp.source.FetchAlerts(ctx, limit, offset, severity)
	if err != nil {
		metrics.BatchFailures.Inc()
		bp.logger.Errorw("Failed to fetch alerts for batch", "error", util.SanitizeError(err))
		return summary
	}
	metrics.BatchAlertsFetched.Add(float64(len(alerts)))

	for _, alert := range alerts {
		enriched, err := bp.enrichOne(ctx, alert)
		if err != nil {
			metrics.BatchFailures.Inc()
			bp.logger.Errorw("Failed to enrich alert, skipping", "error", err)
			continue
		}
		summary.Processed++
		if enriched.IsMalicious {
			summary.MaliciousDetected++
		}
		summary.Data = append(summary.Data, enriched)
	}

	bp.logger.Infow("Batch enrichment complete",
		"fetched", len(alerts),
		"processed", summary.Processed,
		"malicious", summary.MaliciousDetected)
	return summary
}

// enrichOne isolates a single alert so that a panic in enrichment is
// contained to that alert.
func (bp *BatchProcessor) enrichOne(ctx context.Context, alert core.RawAlert) (enriched *core.EnrichedAlert, err error) {
	defer func() {
		if r := recover(); r != nil {
			enriched = nil
			err = fmt.Errorf("panic during enrichment: %v", r)
		}
	}()
	return bp.engine.EnrichAlert(ctx, alert)
}
