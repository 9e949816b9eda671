// Package backfill walks every month from a start period to the current one and
// persists one shard per month that is not yet stored.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/quake-catalog-crawler/internal/metrics"
	"github.com/JakeFAU/quake-catalog-crawler/internal/period"
	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
	"github.com/JakeFAU/quake-catalog-crawler/internal/record"
	"github.com/JakeFAU/quake-catalog-crawler/internal/shard"
)

// Config controls a backfill run.
type Config struct {
	Start   quake.Period
	Current quake.Period
	// Concurrency is the number of periods processed at once. Values below one mean one.
	Concurrency int
	// Topic receives a quake.ShardWritten notification per new shard when a publisher is set.
	Topic string
}

// Deps are the collaborators of an Orchestrator. Publisher and Records are optional.
type Deps struct {
	Fetcher   quake.PeriodFetcher
	Shards    quake.ShardStore
	Missing   quake.MissingLog
	Publisher quake.Publisher
	Records   quake.RecordStore
	Hasher    quake.Hasher
	Clock     quake.Clock
	IDs       quake.IDGenerator
}

// Orchestrator runs backfills.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New validates the configuration and builds an Orchestrator.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Fetcher == nil {
		return nil, fmt.Errorf("period fetcher is required")
	}
	if deps.Shards == nil {
		return nil, fmt.Errorf("shard store is required")
	}
	if deps.Missing == nil {
		return nil, fmt.Errorf("missing log is required")
	}
	if deps.Hasher == nil || deps.Clock == nil || deps.IDs == nil {
		return nil, fmt.Errorf("hasher, clock and id generator are required")
	}
	if deps.Publisher != nil && cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required when a publisher is configured")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger.Named("backfill")}, nil
}

// Run processes every period from Start to Current. Per-period failures are
// recorded in the report and never abort the run. The returned error is
// non-nil only when the run itself could not start or ctx was canceled; the
// report is valid in both cases.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	runID, err := o.deps.IDs.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("run id: %w", err)
	}
	return o.RunWithID(ctx, runID)
}

// RunWithID is Run with a caller-assigned run ID.
func (o *Orchestrator) RunWithID(ctx context.Context, runID string) (Report, error) {
	if runID == "" {
		return Report{}, errors.New("run id is required")
	}
	periods := period.Range(o.cfg.Start, o.cfg.Current)
	report := Report{
		RunID:     runID,
		StartedAt: o.deps.Clock.Now().UTC(),
		Periods:   make([]PeriodResult, len(periods)),
	}
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("backfill started",
		zap.String("start", o.cfg.Start.String()),
		zap.String("current", o.cfg.Current.String()),
		zap.Int("periods", len(periods)),
		zap.Int("concurrency", o.cfg.Concurrency),
	)

	for i, p := range periods {
		report.Periods[i] = PeriodResult{Period: p, Key: p.Key(), Shard: shard.Name(p), Status: StatusCanceled}
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < o.cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				metrics.IncActiveWorkers()
				res := o.process(ctx, logger, runID, periods[i])
				metrics.DecActiveWorkers()
				metrics.ObservePeriod(string(res.Status))
				report.Periods[i] = res
			}
		}()
	}

dispatch:
	for i := range periods {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	report.FinishedAt = o.deps.Clock.Now().UTC()
	logger.Info("backfill finished",
		zap.Int("written", report.Count(StatusWritten)),
		zap.Int("skipped", report.Count(StatusSkipped)),
		zap.Int("fetch_error", report.Count(StatusFetchError)),
		zap.Int("no_data", report.Count(StatusNoData)),
		zap.Int("store_error", report.Count(StatusStoreError)),
		zap.Int("canceled", report.Count(StatusCanceled)),
		zap.Int("records", report.Records()),
	)
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("backfill interrupted: %w", err)
	}
	return report, nil
}

func (o *Orchestrator) process(ctx context.Context, logger *zap.Logger, runID string, p quake.Period) PeriodResult {
	res := PeriodResult{Period: p, Key: p.Key(), Shard: shard.Name(p)}
	logger = logger.With(zap.String("period", p.String()), zap.String("shard", res.Shard))
	if err := ctx.Err(); err != nil {
		res.Status = StatusCanceled
		res.Error = err.Error()
		return res
	}

	exists, err := o.deps.Shards.Exists(ctx, res.Shard)
	if err != nil {
		return o.storeFailure(ctx, logger, res, err)
	}
	if exists {
		logger.Debug("shard exists, skipping")
		res.Status = StatusSkipped
		return res
	}

	out := o.deps.Fetcher.Fetch(ctx, p)
	res.URL = out.URL
	switch out.Kind {
	case quake.OutcomeFetchError, quake.OutcomeNoData:
		return o.recordMissing(ctx, logger, res, out)
	case quake.OutcomeFetched:
	default:
		return o.recordMissing(ctx, logger, res, quake.Outcome{
			Kind: quake.OutcomeFetchError,
			Err:  fmt.Errorf("unknown outcome kind %q", out.Kind),
		})
	}

	records, dropped := record.ParseAll(out.Rows)
	res.Records = len(records)
	res.Dropped = dropped
	metrics.ObserveRows("backfill", len(records), dropped)
	if dropped > 0 {
		logger.Debug("dropped invalid rows", zap.Int("dropped", dropped))
	}

	data, err := shard.Encode(records)
	if err != nil {
		return o.storeFailure(ctx, logger, res, err)
	}
	uri, err := o.deps.Shards.Create(ctx, res.Shard, data)
	if errors.Is(err, quake.ErrShardExists) {
		logger.Info("shard appeared concurrently, skipping")
		res.Status = StatusSkipped
		res.Records, res.Dropped = 0, 0
		return res
	}
	if err != nil {
		return o.storeFailure(ctx, logger, res, err)
	}
	res.Status = StatusWritten
	res.URI = uri
	logger.Info("shard written",
		zap.String("uri", uri),
		zap.Int("records", res.Records),
		zap.Int("dropped", res.Dropped),
	)

	o.afterWrite(ctx, logger, runID, p, res, data, records)
	return res
}

func (o *Orchestrator) recordMissing(ctx context.Context, logger *zap.Logger, res PeriodResult, out quake.Outcome) PeriodResult {
	if ctx.Err() != nil {
		res.Status = StatusCanceled
		res.Error = ctx.Err().Error()
		return res
	}
	res.Status = Status(out.Kind)
	if out.Err != nil {
		res.Error = out.Err.Error()
	}
	logger.Warn("period unavailable",
		zap.String("kind", string(out.Kind)),
		zap.String("url", out.URL),
		zap.Error(out.Err),
	)
	if err := o.deps.Missing.Append(ctx, res.Period); err != nil {
		logger.Error("append missing log failed", zap.Error(err))
		res.Error = fmt.Sprintf("%s; missing log: %v", res.Error, err)
	}
	return res
}

func (o *Orchestrator) storeFailure(ctx context.Context, logger *zap.Logger, res PeriodResult, err error) PeriodResult {
	if ctx.Err() != nil {
		res.Status = StatusCanceled
		res.Error = ctx.Err().Error()
		return res
	}
	res.Status = StatusStoreError
	res.Error = err.Error()
	res.Records, res.Dropped = 0, 0
	logger.Error("shard store failed", zap.Error(err))
	return res
}

// afterWrite fans the new shard out to optional sinks. Failures are logged only;
// the shard is already durable.
func (o *Orchestrator) afterWrite(
	ctx context.Context,
	logger *zap.Logger,
	runID string,
	p quake.Period,
	res PeriodResult,
	data []byte,
	records []quake.Record,
) {
	if o.deps.Records != nil {
		inserted, err := o.deps.Records.InsertRecords(ctx, p, records)
		if err != nil {
			logger.Error("catalog insert failed", zap.Error(err))
		} else {
			logger.Debug("catalog updated", zap.Int64("inserted", inserted))
		}
	}

	if o.deps.Publisher == nil {
		return
	}
	digest, err := o.deps.Hasher.Hash(data)
	if err != nil {
		logger.Error("hash shard failed", zap.Error(err))
		metrics.ObserveNotification("error")
		return
	}
	evt := quake.ShardWritten{
		RunID:     runID,
		Period:    p.Key(),
		Shard:     res.Shard,
		URI:       res.URI,
		Records:   res.Records,
		Dropped:   res.Dropped,
		SHA256:    digest,
		WrittenAt: o.deps.Clock.Now().UTC(),
	}
	id, err := o.deps.Publisher.Publish(ctx, o.cfg.Topic, evt)
	if err != nil {
		logger.Error("publish shard notification failed", zap.Error(err))
		metrics.ObserveNotification("error")
		return
	}
	metrics.ObserveNotification("ok")
	logger.Debug("shard notification published", zap.String("message_id", id))
}
