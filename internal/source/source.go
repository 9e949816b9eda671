// Package source resolves a period to its page on the earthquake catalog site,
// fetches it, and classifies the result into a quake.Outcome.
package source

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/quake-catalog-crawler/internal/extract"
	"github.com/JakeFAU/quake-catalog-crawler/internal/metrics"
	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
)

const (
	// DefaultLiveURL serves the current month's events.
	DefaultLiveURL = "https://earthquake.phivolcs.dost.gov.ph/"
	// DefaultArchiveTemplate locates a past month's archived page.
	DefaultArchiveTemplate = "https://earthquake.phivolcs.dost.gov.ph/EQLatest-Monthly/{year}/{year}_{month}.html"
)

// Resolver maps a period to the URL that publishes it.
type Resolver struct {
	LiveURL         string
	ArchiveTemplate string
	Current         quake.Period
}

// URL returns the live endpoint for the current period and the archive page otherwise.
func (r Resolver) URL(p quake.Period) string {
	if p == r.Current {
		return r.LiveURL
	}
	return strings.NewReplacer(
		"{year}", strconv.Itoa(p.Year),
		"{month}", p.Month.String(),
	).Replace(r.ArchiveTemplate)
}

// Waiter spaces out requests; *ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements quake.PeriodFetcher.
type Fetcher struct {
	resolver Resolver
	pages    quake.PageFetcher
	limiter  Waiter
	logger   *zap.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithLimiter makes every fetch wait on l first.
func WithLimiter(l Waiter) Option {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

// NewFetcher wires a resolver to a page fetcher.
func NewFetcher(resolver Resolver, pages quake.PageFetcher, logger *zap.Logger, opts ...Option) (*Fetcher, error) {
	if pages == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if resolver.LiveURL == "" {
		return nil, fmt.Errorf("live url is required")
	}
	if !strings.Contains(resolver.ArchiveTemplate, "{year}") || !strings.Contains(resolver.ArchiveTemplate, "{month}") {
		return nil, fmt.Errorf("archive template must contain {year} and {month}")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{resolver: resolver, pages: pages, logger: logger.Named("source")}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Resolver exposes the URL resolver in use.
func (f *Fetcher) Resolver() Resolver {
	return f.resolver
}

// Fetch retrieves and classifies the page for p. It never panics and never
// returns a partially classified outcome.
func (f *Fetcher) Fetch(ctx context.Context, p quake.Period) quake.Outcome {
	return f.fetch(ctx, p, f.resolver.URL(p))
}

// FetchLive retrieves the live endpoint regardless of the period it currently covers.
func (f *Fetcher) FetchLive(ctx context.Context) quake.Outcome {
	return f.fetch(ctx, f.resolver.Current, f.resolver.LiveURL)
}

func (f *Fetcher) fetch(ctx context.Context, p quake.Period, url string) quake.Outcome {
	out := quake.Outcome{Period: p, URL: url}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			out.Kind = quake.OutcomeFetchError
			out.Err = &quake.FetchError{URL: url, Err: err}
			return out
		}
	}

	resp, err := f.pages.Fetch(ctx, quake.PageRequest{URL: url})
	if err != nil {
		out.Kind = quake.OutcomeFetchError
		out.Err = &quake.FetchError{URL: url, Err: err}
		return out
	}
	out.StatusCode = resp.StatusCode
	metrics.ObserveFetch(f.mode(p), resp.Duration)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		out.Kind = quake.OutcomeFetchError
		out.Err = &quake.FetchError{URL: url, StatusCode: resp.StatusCode}
		return out
	}

	rows, err := extract.Rows(resp.Body)
	if err != nil {
		out.Kind = quake.OutcomeNoData
		out.Err = fmt.Errorf("%w: %v", quake.ErrNoData, err)
		return out
	}
	if len(rows) == 0 {
		out.Kind = quake.OutcomeNoData
		out.Err = quake.ErrNoData
		return out
	}

	f.logger.Debug("page fetched",
		zap.String("period", p.String()),
		zap.String("url", url),
		zap.Int("rows", len(rows)),
		zap.Duration("duration", resp.Duration),
	)
	out.Kind = quake.OutcomeFetched
	out.Rows = rows
	return out
}

func (f *Fetcher) mode(p quake.Period) string {
	if p == f.resolver.Current {
		return "live"
	}
	return "archive"
}
