package backfill_test

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/quake-catalog-crawler/internal/backfill"
	collyfetcher "github.com/JakeFAU/quake-catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/quake-catalog-crawler/internal/hash/sha256"
	publishermemory "github.com/JakeFAU/quake-catalog-crawler/internal/publisher/memory"
	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
	"github.com/JakeFAU/quake-catalog-crawler/internal/source"
	"github.com/JakeFAU/quake-catalog-crawler/internal/storage/memory"
)

var (
	jan2018 = quake.NewPeriod(2018, time.January)
	feb2018 = quake.NewPeriod(2018, time.February)
	mar2018 = quake.NewPeriod(2018, time.March)
)

func validRow(day int) []string {
	return []string{
		fmt.Sprintf("%02d March 2018 - 01:00 AM", day),
		"14.5", "120.8", "10", "2.1",
		"Somewhere (Batangas)",
	}
}

type stubFetcher struct {
	mu       sync.Mutex
	outcomes map[quake.Period]quake.Outcome
	calls    []quake.Period
}

func (s *stubFetcher) Fetch(_ context.Context, p quake.Period) quake.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, p)
	out, ok := s.outcomes[p]
	if !ok {
		out = quake.Outcome{Kind: quake.OutcomeFetched, Rows: [][]string{validRow(1)}}
	}
	out.Period = p
	return out
}

func (s *stubFetcher) Calls() []quake.Period {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]quake.Period(nil), s.calls...)
}

type stubIDs struct{}

func (stubIDs) NewID() (string, error) { return "run-1", nil }

type recordingStore struct {
	mu      sync.Mutex
	periods []quake.Period
	rows    int
	err     error
}

func (r *recordingStore) InsertRecords(_ context.Context, p quake.Period, records []quake.Record) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.periods = append(r.periods, p)
	r.rows += len(records)
	return int64(len(records)), nil
}

type fixture struct {
	fetcher *stubFetcher
	shards  *memory.ShardStore
	missing *memory.MissingLog
	pub     *publishermemory.Publisher
	records *recordingStore
	clock   clockwork.Clock
}

func newFixture() *fixture {
	return &fixture{
		fetcher: &stubFetcher{outcomes: map[quake.Period]quake.Outcome{}},
		shards:  memory.NewShardStore(),
		missing: memory.NewMissingLog(),
		pub:     publishermemory.New(),
		records: &recordingStore{},
		clock:   clockwork.NewFakeClockAt(time.Date(2018, time.March, 15, 0, 0, 0, 0, time.UTC)),
	}
}

func (f *fixture) deps() backfill.Deps {
	return backfill.Deps{
		Fetcher:   f.fetcher,
		Shards:    f.shards,
		Missing:   f.missing,
		Publisher: f.pub,
		Records:   f.records,
		Hasher:    sha256.New(),
		Clock:     f.clock,
		IDs:       stubIDs{},
	}
}

func (f *fixture) orchestrator(t *testing.T, cfg backfill.Config) *backfill.Orchestrator {
	t.Helper()
	if cfg.Topic == "" {
		cfg.Topic = "shards"
	}
	o, err := backfill.New(cfg, f.deps(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return o
}

func readShard(t *testing.T, shards *memory.ShardStore, name string) [][]string {
	t.Helper()
	data, ok := shards.Get(name)
	require.True(t, ok, "shard %s missing", name)
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	f := newFixture()
	deps := f.deps()
	deps.Fetcher = nil
	_, err := backfill.New(backfill.Config{}, deps, nil)
	require.ErrorContains(t, err, "period fetcher is required")

	deps = f.deps()
	_, err = backfill.New(backfill.Config{}, deps, nil)
	require.ErrorContains(t, err, "topic is required")

	deps.Publisher = nil
	o, err := backfill.New(backfill.Config{}, deps, nil)
	require.NoError(t, err)
	require.NotNil(t, o)
}

func TestRunWritesEveryPeriod(t *testing.T) {
	t.Parallel()

	f := newFixture()
	report, err := f.orchestrator(t, backfill.Config{Start: jan2018, Current: mar2018}).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, "run-1", report.RunID)
	require.Len(t, report.Periods, 3)
	for i, p := range []quake.Period{jan2018, feb2018, mar2018} {
		assert.Equal(t, p, report.Periods[i].Period)
		assert.Equal(t, backfill.StatusWritten, report.Periods[i].Status)
		assert.Equal(t, "memory://"+report.Periods[i].Shard, report.Periods[i].URI)
	}
	names, err := f.shards.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"raw_eq_data_2018_01.csv", "raw_eq_data_2018_02.csv", "raw_eq_data_2018_03.csv"}, names)
	assert.Empty(t, f.missing.Lines())
}

func TestRunSkipsExistingShardWithoutNetwork(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_, err := f.shards.Create(context.Background(), "raw_eq_data_2018_02.csv", []byte("original"))
	require.NoError(t, err)

	report, err := f.orchestrator(t, backfill.Config{Start: jan2018, Current: mar2018}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []quake.Period{jan2018, mar2018}, f.fetcher.Calls())
	assert.Equal(t, backfill.StatusSkipped, report.Periods[1].Status)
	assert.Empty(t, f.missing.Lines())

	data, ok := f.shards.Get("raw_eq_data_2018_02.csv")
	require.True(t, ok)
	assert.Equal(t, "original", string(data), "existing shard must not be touched")
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	o := f.orchestrator(t, backfill.Config{Start: jan2018, Current: mar2018})
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	second, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, second.Count(backfill.StatusSkipped))
	assert.Len(t, f.fetcher.Calls(), 3, "second run must not fetch")
}

func TestRunLogsFailuresAndContinues(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.outcomes[jan2018] = quake.Outcome{
		Kind: quake.OutcomeFetchError,
		URL:  "https://example.com/2018/2018_January.html",
		Err:  &quake.FetchError{URL: "https://example.com/2018/2018_January.html", StatusCode: http.StatusNotFound},
	}
	f.fetcher.outcomes[feb2018] = quake.Outcome{Kind: quake.OutcomeNoData, Err: quake.ErrNoData}

	report, err := f.orchestrator(t, backfill.Config{Start: jan2018, Current: mar2018}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, backfill.StatusFetchError, report.Periods[0].Status)
	assert.Equal(t, backfill.StatusNoData, report.Periods[1].Status)
	assert.Equal(t, backfill.StatusWritten, report.Periods[2].Status)
	assert.Equal(t, []string{"2018_January.html", "2018_February.html"}, f.missing.Lines())
	assert.Equal(t, []quake.Period{jan2018, feb2018}, report.Missing())

	ok, err := f.shards.Exists(context.Background(), "raw_eq_data_2018_01.csv")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunDropsInvalidRows(t *testing.T) {
	t.Parallel()

	f := newFixture()
	bad := validRow(2)
	bad[1] = "N/A"
	f.fetcher.outcomes[mar2018] = quake.Outcome{
		Kind: quake.OutcomeFetched,
		Rows: [][]string{validRow(1), bad, validRow(3)},
	}

	report, err := f.orchestrator(t, backfill.Config{Start: mar2018, Current: mar2018}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Periods, 1)
	assert.Equal(t, 2, report.Periods[0].Records)
	assert.Equal(t, 1, report.Periods[0].Dropped)

	rows := readShard(t, f.shards, "raw_eq_data_2018_03.csv")
	require.Len(t, rows, 3)
	assert.Equal(t, quake.Header, rows[0])
	assert.Equal(t, "01 March 2018 - 01:00 AM", rows[1][0])
	assert.Equal(t, "03 March 2018 - 01:00 AM", rows[2][0], "extraction order is kept")
}

func TestRunStoreErrorIsNotLoggedAsMissing(t *testing.T) {
	t.Parallel()

	f := newFixture()
	deps := f.deps()
	deps.Shards = &failingShards{ShardStore: f.shards, failOn: "raw_eq_data_2018_02.csv"}
	o, err := backfill.New(backfill.Config{Start: jan2018, Current: mar2018, Topic: "shards"}, deps, zaptest.NewLogger(t))
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, backfill.StatusStoreError, report.Periods[1].Status)
	assert.Contains(t, report.Periods[1].Error, "disk full")
	assert.Equal(t, backfill.StatusWritten, report.Periods[2].Status)
	assert.Empty(t, f.missing.Lines())
}

func TestRunConcurrentShardTreatedAsSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture()
	deps := f.deps()
	deps.Shards = &racingShards{ShardStore: f.shards}
	o, err := backfill.New(backfill.Config{Start: mar2018, Current: mar2018, Topic: "shards"}, deps, nil)
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, backfill.StatusSkipped, report.Periods[0].Status)
	assert.Empty(t, f.pub.Messages())
}

func TestRunPublishesAndStoresRecords(t *testing.T) {
	t.Parallel()

	f := newFixture()
	report, err := f.orchestrator(t, backfill.Config{Start: feb2018, Current: mar2018, Topic: "quake-shards"}).Run(context.Background())
	require.NoError(t, err)

	shards := f.pub.Shards()
	require.Len(t, shards, 2)
	evt := shards[0]
	assert.Equal(t, "run-1", evt.RunID)
	assert.Equal(t, "2018_02", evt.Period)
	assert.Equal(t, "raw_eq_data_2018_02.csv", evt.Shard)
	assert.Equal(t, 1, evt.Records)
	assert.Len(t, evt.SHA256, 64)
	assert.Equal(t, f.clock.Now().UTC(), evt.WrittenAt)
	assert.Equal(t, "quake-shards", f.pub.Messages()[0].Topic)

	assert.Equal(t, []quake.Period{feb2018, mar2018}, f.records.periods)
	assert.Equal(t, report.Records(), f.records.rows)
}

func TestRunSinkFailuresAreNotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.pub.FailWith(errors.New("broker down"))
	f.records.err = errors.New("db down")

	report, err := f.orchestrator(t, backfill.Config{Start: jan2018, Current: feb2018}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count(backfill.StatusWritten))
}

func TestRunConcurrencyKeepsLedgerOrder(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.fetcher.outcomes[quake.NewPeriod(2019, time.June)] = quake.Outcome{Kind: quake.OutcomeNoData, Err: quake.ErrNoData}
	start := quake.NewPeriod(2019, time.January)
	end := quake.NewPeriod(2019, time.December)

	report, err := f.orchestrator(t, backfill.Config{Start: start, Current: end, Concurrency: 4}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Periods, 12)
	for i, res := range report.Periods {
		assert.Equal(t, time.Month(i+1), res.Period.Month)
	}
	assert.Equal(t, 11, report.Count(backfill.StatusWritten))
	assert.Equal(t, []string{"2019_June.html"}, f.missing.Lines())
	assert.Len(t, f.fetcher.Calls(), 12)
}

func TestRunCanceledBeforeStart(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.orchestrator(t, backfill.Config{Start: jan2018, Current: mar2018}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, report.Count(backfill.StatusCanceled))
	assert.Empty(t, f.missing.Lines())
}

func TestRunEmptyRange(t *testing.T) {
	t.Parallel()

	f := newFixture()
	report, err := f.orchestrator(t, backfill.Config{Start: mar2018, Current: jan2018}).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Periods)
	assert.Empty(t, f.fetcher.Calls())
}

// TestRunTimeoutAgainstSource drives the real HTTP stack: February hangs past
// the client timeout, January and March answer normally.
func TestRunTimeoutAgainstSource(t *testing.T) {
	t.Parallel()

	page := `<table><tr><td>01 January 2018 - 01:00 AM</td><td>14.5</td><td>120.8</td><td>10</td><td>2.1</td><td>Somewhere (Batangas)</td></tr></table>`
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/2018/2018_January.html", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/2018/2018_February.html", func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/live", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer close(release)

	fetcher, err := source.NewFetcher(source.Resolver{
		LiveURL:         srv.URL + "/live",
		ArchiveTemplate: srv.URL + "/{year}/{year}_{month}.html",
		Current:         mar2018,
	}, collyfetcher.New(collyfetcher.Config{Timeout: 100 * time.Millisecond}), zaptest.NewLogger(t))
	require.NoError(t, err)

	f := newFixture()
	deps := f.deps()
	deps.Fetcher = fetcher
	o, err := backfill.New(backfill.Config{Start: jan2018, Current: mar2018, Topic: "shards"}, deps, zaptest.NewLogger(t))
	require.NoError(t, err)

	report, err := o.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, backfill.StatusWritten, report.Periods[0].Status)
	assert.Equal(t, backfill.StatusFetchError, report.Periods[1].Status)
	assert.Equal(t, backfill.StatusWritten, report.Periods[2].Status, "next period is still attempted")
	assert.Equal(t, []string{"2018_February.html"}, f.missing.Lines())

	ok, err := f.shards.Exists(context.Background(), "raw_eq_data_2018_02.csv")
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingShards struct {
	*memory.ShardStore
	failOn string
}

func (s *failingShards) Create(ctx context.Context, name string, data []byte) (string, error) {
	if name == s.failOn {
		return "", errors.New("disk full")
	}
	return s.ShardStore.Create(ctx, name, data)
}

type racingShards struct {
	*memory.ShardStore
}

func (s *racingShards) Create(ctx context.Context, name string, _ []byte) (string, error) {
	_, _ = s.ShardStore.Create(ctx, name, []byte("winner"))
	return "", fmt.Errorf("%s: %w", name, quake.ErrShardExists)
}

func TestRunWithIDUsesCallerID(t *testing.T) {
	t.Parallel()
	f := newFixture()
	o := f.orchestrator(t, backfill.Config{Start: mar2018, Current: mar2018})

	report, err := o.RunWithID(context.Background(), "run-from-api")
	require.NoError(t, err)
	require.Equal(t, "run-from-api", report.RunID)

	_, err = o.RunWithID(context.Background(), "")
	require.Error(t, err)
}
