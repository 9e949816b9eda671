// Package snapshot serves the most recent events from the live endpoint.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/quake-catalog-crawler/internal/metrics"
	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
	"github.com/JakeFAU/quake-catalog-crawler/internal/record"
)

// DefaultLimit is used when callers pass a non-positive limit.
const DefaultLimit = 10

// LiveFetcher retrieves and classifies the live page. *source.Fetcher satisfies it.
type LiveFetcher interface {
	FetchLive(ctx context.Context) quake.Outcome
}

// BreakerConfig controls the optional circuit breaker around the live source.
// A zero FailureThreshold disables the breaker.
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Service returns live snapshots.
type Service struct {
	fetcher LiveFetcher
	breaker *gobreaker.CircuitBreaker[quake.Outcome]
	logger  *zap.Logger
}

// New builds a Service.
func New(fetcher LiveFetcher, breaker BreakerConfig, logger *zap.Logger) (*Service, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("live fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{fetcher: fetcher, logger: logger.Named("snapshot")}
	if breaker.FailureThreshold > 0 {
		s.breaker = newBreaker(breaker, s.logger)
	}
	return s, nil
}

func newBreaker(cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker[quake.Outcome] {
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker[quake.Outcome](gobreaker.Settings{
		Name:        "live-source",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// Latest returns up to limit records from the live endpoint in page order.
// Rows are truncated to limit before parsing, so invalid rows among the first
// limit shrink the result rather than pulling in later rows. Errors match
// quake.ErrNetwork, quake.ErrSourceStatus, or quake.ErrNoData.
func (s *Service) Latest(ctx context.Context, limit int) ([]quake.Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	out, err := s.fetch(ctx)
	if err != nil {
		metrics.ObserveSnapshot(resultLabel(err))
		return nil, err
	}

	rows := out.Rows
	if len(rows) > limit {
		rows = rows[:limit]
	}
	records, dropped := record.ParseAll(rows)
	metrics.ObserveRows("live", len(records), dropped)
	metrics.ObserveSnapshot("ok")
	if dropped > 0 {
		s.logger.Debug("dropped invalid live rows", zap.Int("dropped", dropped))
	}
	return records, nil
}

func (s *Service) fetch(ctx context.Context) (quake.Outcome, error) {
	if s.breaker == nil {
		out := s.fetcher.FetchLive(ctx)
		return out, outcomeErr(out)
	}
	// Only transport and status failures count against the breaker; an empty
	// page means the source is up.
	out, err := s.breaker.Execute(func() (quake.Outcome, error) {
		out := s.fetcher.FetchLive(ctx)
		if out.Kind == quake.OutcomeFetchError {
			return out, out.Err
		}
		return out, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Warn("live source short-circuited", zap.Error(err))
		return quake.Outcome{}, &quake.FetchError{URL: out.URL, Err: err}
	}
	if err != nil {
		return out, err
	}
	return out, outcomeErr(out)
}

func outcomeErr(out quake.Outcome) error {
	switch out.Kind {
	case quake.OutcomeFetched:
		return nil
	case quake.OutcomeNoData:
		if out.Err != nil {
			return out.Err
		}
		return quake.ErrNoData
	default:
		if out.Err != nil {
			return out.Err
		}
		return &quake.FetchError{URL: out.URL, Err: errors.New("unclassified fetch failure")}
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, quake.ErrNoData):
		return "no_data"
	case errors.Is(err, quake.ErrSourceStatus):
		return "source_status"
	default:
		return "network"
	}
}
