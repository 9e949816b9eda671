package quake

import (
	"context"
	"io"
	"time"
)

// PageRequest captures everything needed to fetch one source page.
type PageRequest struct {
	URL string
}

// PageResponse is what a PageFetcher returns for any HTTP response, successful or not.
type PageResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// PageFetcher performs one HTTP GET. An error means no response was received.
type PageFetcher interface {
	Fetch(ctx context.Context, request PageRequest) (PageResponse, error)
}

// PeriodFetcher resolves a period to a URL, fetches it, and classifies the result.
type PeriodFetcher interface {
	Fetch(ctx context.Context, period Period) Outcome
}

// ShardStore persists shard artifacts. Create must never leave a partial artifact behind.
type ShardStore interface {
	Exists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name string, data []byte) (string, error)
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// MissingLog is the append-only ledger of periods whose fetch failed.
type MissingLog interface {
	Append(ctx context.Context, period Period) error
}

// Publisher pushes shard notifications to Pub/Sub, Kafka, or similar.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RecordStore persists parsed records into a queryable catalog.
type RecordStore interface {
	InsertRecords(ctx context.Context, period Period, records []Record) (int64, error)
}

// Hasher computes digests for shard integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
