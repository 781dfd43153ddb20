package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"argus/core"
	"argus/intel"
	"argus/metrics"
	"argus/util"
)

// Sink persists enriched alerts. Defined here (consumer package) so the
// engine depends on the capability, not on a storage backend.
type Sink interface {
	Store(ctx context.Context, alert *core.EnrichedAlert) error
}

// Engine orchestrates enrichment of a single alert: extraction, concurrent
// provider fan-out, verdict fusion, recommendations and persistence.
type Engine struct {
	extractor *Extractor
	providers []intel.Provider
	cache     intel.VerdictCache
	sink      Sink
	pool      *core.WorkerPool
	logger    *zap.SugaredLogger
	tracer    trace.Tracer
}

// NewEngine creates an enrichment engine. The cache and sink are optional;
// a nil cache disables verdict caching and a nil sink disables persistence.
func NewEngine(extractor *Extractor, providers []intel.Provider, cache intel.VerdictCache, sink Sink, pool *core.WorkerPool, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		extractor: extractor,
		providers: providers,
		cache:     cache,
		sink:      sink,
		pool:      pool,
		logger:    logger,
		tracer:    otel.Tracer("argus/enrich"),
	}
}

// EnrichAlert runs the full pipeline for one raw alert. Persistence failures
// are logged and swallowed: a dead sink must not block triage output.
func (e *Engine) EnrichAlert(ctx context.Context, alert core.RawAlert) (*core.EnrichedAlert, error) {
	if alert == nil {
		return nil, fmt.Errorf("enrich alert: alert is nil")
	}

	ctx, span := e.tracer.Start(ctx, "enrich.alert")
	defer span.End()
	started := time.Now()

	indicators := e.extractor.Extract(alert)
	span.SetAttributes(attribute.Int("indicators.count", indicators.Len()))

	// Deterministic processing order: IPs, then hashes, then domains, each
	// sorted. Recommendations follow the same order.
	type job struct {
		value string
		kind  core.IndicatorKind
	}
	jobs := make([]job, 0, indicators.Len())
	for _, ip := range indicators.IPs() {
		jobs = append(jobs, job{ip, core.IndicatorIP})
	}
	for _, hash := range indicators.Hashes() {
		jobs = append(jobs, job{hash, core.IndicatorHash})
	}
	for _, domain := range indicators.Domains() {
		jobs = append(jobs, job{domain, core.IndicatorDomain})
	}

	verdicts := make([]core.IndicatorVerdict, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		i, j := i, j
		wg.Add(1)
		task := func() {
			defer wg.Done()
			verdicts[i] = e.enrichIndicator(ctx, j.value, j.kind)
		}
		if e.pool == nil || e.pool.Submit(task) != nil {
			// No pool or queue full: enrich inline rather than drop.
			task()
		}
	}
	wg.Wait()

	enriched := &core.EnrichedAlert{
		ID:         uuid.NewString(),
		Original:   alert,
		IOCs:       make(map[string]core.IndicatorVerdict, len(verdicts)),
		EnrichedAt: time.Now().UTC(),
	}
	for _, v := range verdicts {
		enriched.IOCs[v.Indicator] = v
		if v.Malicious {
			enriched.IsMalicious = true
			enriched.Recommendations = append(enriched.Recommendations, recommendation(v))
		}
		if v.ThreatScore > enriched.ThreatScore {
			enriched.ThreatScore = v.ThreatScore
		}
	}

	e.persist(ctx, enriched)

	verdictLabel := "clean"
	if enriched.IsMalicious {
		verdictLabel = "malicious"
	}
	metrics.AlertsEnriched.WithLabelValues(verdictLabel).Inc()
	metrics.EnrichmentDuration.Observe(time.Since(started).Seconds())
	span.SetAttributes(
		attribute.Bool("alert.malicious", enriched.IsMalicious),
		attribute.Int("alert.threat_score", enriched.ThreatScore),
	)
	return enriched, nil
}

// enrichIndicator resolves one indicator: cache first, then a sequential
// sweep over every provider that supports the kind. Hashes currently have no
// supporting provider, so they fuse to a clean verdict with no sources.
func (e *Engine) enrichIndicator(ctx context.Context, value string, kind core.IndicatorKind) core.IndicatorVerdict {
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, value); ok {
			return *cached
		}
	}

	var results []intel.Result
	for _, p := range e.providers {
		if !p.Supports(kind) {
			continue
		}
		results = append(results, p.Lookup(ctx, value, kind))
	}

	verdict := Fuse(value, kind, results)
	for _, f := range verdict.Failures {
		if f.Kind == core.FailureError {
			e.logger.Warnw("Provider lookup failed",
				"provider", f.Provider,
				"indicator", value,
				"detail", util.SanitizeString(f.Detail))
		}
	}

	if e.cache != nil {
		e.cache.Set(ctx, value, &verdict)
	}
	return verdict
}

func (e *Engine) persist(ctx context.Context, alert *core.EnrichedAlert) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Store(ctx, alert); err != nil {
		metrics.StoreFailures.Inc()
		e.logger.Errorw("Failed to store enriched alert",
			"alert_id", alert.ID,
			"error", err)
	}
}

func recommendation(v core.IndicatorVerdict) string {
	switch v.Kind {
	case core.IndicatorIP:
		return fmt.Sprintf("Block malicious IP: %s (Threat Score: %d)", v.Indicator, v.ThreatScore)
	case core.IndicatorHash:
		return fmt.Sprintf("Quarantine malicious file: %s", v.Indicator)
	default:
		return fmt.Sprintf("Block malicious domain: %s", v.Indicator)
	}
}
