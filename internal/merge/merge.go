// Package merge concatenates stored shards into a single CSV with one header.
package merge

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
	"github.com/JakeFAU/quake-catalog-crawler/internal/shard"
)

// ErrHeaderMismatch is returned when a shard's first line is not the shard header.
var ErrHeaderMismatch = errors.New("shard header mismatch")

// Report summarizes a merge.
type Report struct {
	Shards []string `json:"shards"`
	Rows   int      `json:"rows"`
}

// Shards lists the shard artifacts in the store, newest period first.
// Other objects in the store are ignored.
func Shards(ctx context.Context, store quake.ShardStore) ([]string, error) {
	names, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list shards: %w", err)
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := shard.ParseName(name); ok {
			out = append(out, name)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(out)))
	return out, nil
}

// Run writes the header once followed by every shard's rows, newest period
// first. Rows within a shard keep their stored order.
func Run(ctx context.Context, store quake.ShardStore, w io.Writer, logger *zap.Logger) (Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	names, err := Shards(ctx, store)
	if err != nil {
		return Report{}, err
	}

	out := csv.NewWriter(w)
	if err := out.Write(quake.Header); err != nil {
		return Report{}, fmt.Errorf("write header: %w", err)
	}
	report := Report{Shards: names}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("merge interrupted: %w", err)
		}
		n, err := copyShard(ctx, store, name, out)
		if err != nil {
			return report, err
		}
		logger.Debug("shard merged", zap.String("shard", name), zap.Int("rows", n))
		report.Rows += n
	}
	out.Flush()
	if err := out.Error(); err != nil {
		return report, fmt.Errorf("flush merged csv: %w", err)
	}
	logger.Info("merge complete", zap.Int("shards", len(names)), zap.Int("rows", report.Rows))
	return report, nil
}

func copyShard(ctx context.Context, store quake.ShardStore, name string, out *csv.Writer) (int, error) {
	rc, err := store.Open(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", name, err)
	}
	defer func() {
		_ = rc.Close()
	}()

	r := csv.NewReader(rc)
	r.FieldsPerRecord = len(quake.Header)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%s is empty: %w", name, ErrHeaderMismatch)
	}
	if err != nil {
		return 0, fmt.Errorf("read %s header: %w", name, err)
	}
	if !shard.HeaderMatches(header) {
		return 0, fmt.Errorf("%s: %w", name, ErrHeaderMismatch)
	}

	rows := 0
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, fmt.Errorf("read %s: %w", name, err)
		}
		if err := out.Write(fields); err != nil {
			return rows, fmt.Errorf("write merged row: %w", err)
		}
		rows++
	}
}
