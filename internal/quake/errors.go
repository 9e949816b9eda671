package quake

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork matches fetch failures where no HTTP response was received.
	ErrNetwork = errors.New("network failure")
	// ErrSourceStatus matches fetch failures where the source answered with a non-success status.
	ErrSourceStatus = errors.New("source returned non-success status")
	// ErrNoData is returned when a page was fetched but held no qualifying rows.
	ErrNoData = errors.New("no earthquake data found")
	// ErrRowInvalid matches rows whose fields failed to parse.
	ErrRowInvalid = errors.New("invalid row")
	// ErrShardExists is returned by ShardStore.Create when the artifact is already present.
	ErrShardExists = errors.New("shard already exists")
	// ErrShardNotFound is returned by ShardStore.Open for unknown artifacts.
	ErrShardNotFound = errors.New("shard not found")
)

// FetchError describes a fetch_error outcome. StatusCode is zero for
// transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets callers distinguish transport failures from bad statuses with errors.Is.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.StatusCode == 0
	case ErrSourceStatus:
		return e.StatusCode != 0
	}
	return false
}
