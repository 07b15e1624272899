package main

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/arbitrage-cli/internal/config"
	"github.com/sells-group/arbitrage-cli/internal/model"
	"github.com/sells-group/arbitrage-cli/internal/monitoring"
	"github.com/sells-group/arbitrage-cli/internal/queue"
	"github.com/sells-group/arbitrage-cli/internal/resilience"
	"github.com/sells-group/arbitrage-cli/internal/sheet"
)

func findCommand(t *testing.T, path ...string) *cobra.Command {
	t.Helper()
	c, _, err := rootCmd.Find(path)
	require.NoError(t, err)
	require.Equal(t, path[len(path)-1], c.Name())
	return c
}

func TestRootCommand_Subcommands(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"worker"},
		{"process"},
		{"discover"},
		{"status"},
		{"route"},
		{"items", "list"},
		{"items", "show"},
		{"items", "export"},
		{"dlq", "list"},
		{"dlq", "retry"},
	} {
		findCommand(t, path...)
	}
}

func TestCommandFlags(t *testing.T) {
	cases := map[string][]string{
		"serve":    {"port"},
		"discover": {"url", "file"},
		"status":   {"alert"},
		"route":    {"item", "origin"},
	}
	for name, flags := range cases {
		c := findCommand(t, name)
		for _, f := range flags {
			assert.NotNil(t, c.Flags().Lookup(f), "%s --%s", name, f)
		}
	}

	export := findCommand(t, "items", "export")
	assert.Equal(t, "csv", export.Flags().Lookup("format").DefValue)
	assert.Equal(t, "10000", export.Flags().Lookup("limit").DefValue)

	retry := findCommand(t, "dlq", "retry")
	assert.NotNil(t, retry.Flags().Lookup("all"))
	assert.NotNil(t, retry.Flags().Lookup("error-type"))
}

func TestResolvePort(t *testing.T) {
	assert.Equal(t, 9000, resolvePort(9000, 8080))
	assert.Equal(t, 8080, resolvePort(0, 8080))
}

func TestParseOrigin(t *testing.T) {
	c, err := parseOrigin("30.2672, -97.7431")
	require.NoError(t, err)
	assert.InDelta(t, 30.2672, c.Latitude, 1e-9)
	assert.InDelta(t, -97.7431, c.Longitude, 1e-9)

	for _, bad := range []string{"", "30.1", "a,b", "91,0", "0,181", "1,2,3"} {
		_, err := parseOrigin(bad)
		assert.Error(t, err, bad)
	}
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, dedupe([]string{"a", "", "b", "a", "c", "b"}))
	assert.Empty(t, dedupe(nil))
}

func TestRunsPipeline(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })

	cfg = &config.Config{Queue: config.QueueConfig{Driver: "local"}}
	assert.True(t, runsPipeline(config.ModeProcess))
	assert.True(t, runsPipeline(config.ModeWorker))
	assert.True(t, runsPipeline(config.ModeServe))
	assert.False(t, runsPipeline(config.ModeReadOnly))
	assert.False(t, runsPipeline(config.ModeRoute))

	cfg.Queue.Driver = "temporal"
	assert.False(t, runsPipeline(config.ModeServe))
}

func TestInitStore_SQLite(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })

	path := filepath.Join(t.TempDir(), "cli.db")
	cfg = &config.Config{Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: path}}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	it, err := st.CreateItem(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, it.Status)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })

	cfg = &config.Config{Store: config.StoreConfig{Driver: "mongo"}}
	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestSubmitAll(t *testing.T) {
	st := newTestStore(t)
	d := &recordingDispatcher{}

	subs := submitAll(context.Background(), st, d, []string{
		"https://example.com/a",
		"mailto:someone@example.com",
		"https://example.com/b",
	})
	require.Len(t, subs, 3)

	assert.NoError(t, subs[0].Err)
	assert.NotEmpty(t, subs[0].ItemID)
	assert.Equal(t, model.StatusPending, subs[0].Status)
	assert.Error(t, subs[1].Err)
	assert.Empty(t, subs[1].ItemID)
	assert.Equal(t, []string{subs[0].ItemID, subs[2].ItemID}, d.enqueued())
}

func TestSubmitAll_EnqueueError(t *testing.T) {
	st := newTestStore(t)
	d := &recordingDispatcher{err: errors.New("queue: full")}

	subs := submitAll(context.Background(), st, d, []string{"https://example.com/a"})
	require.Len(t, subs, 1)
	assert.NotEmpty(t, subs[0].ItemID)
	require.Error(t, subs[0].Err)
	assert.Contains(t, subs[0].Err.Error(), "enqueue")
}

func TestRefreshAndFormatSubmissions(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	it, err := st.CreateItem(ctx, "https://example.com/a")
	require.NoError(t, err)
	it.Status = model.StatusCompleted
	require.NoError(t, st.SaveItem(ctx, it))

	subs := []submission{
		{URL: it.SourceURL, ItemID: it.ID, Status: model.StatusPending},
		{URL: "bad", Err: errors.New("url must be an absolute http(s) URL")},
	}
	refreshStatuses(ctx, st, subs)
	assert.Equal(t, model.StatusCompleted, subs[0].Status)

	var buf bytes.Buffer
	formatSubmissions(&buf, subs)
	out := buf.String()
	assert.Contains(t, out, "URL")
	assert.Contains(t, out, it.ID)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "absolute http(s) URL")
}

func TestResumeUnfinished(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	pending, err := st.CreateItem(ctx, "https://example.com/pending")
	require.NoError(t, err)
	midway, err := st.CreateItem(ctx, "https://example.com/midway")
	require.NoError(t, err)
	midway.Status = model.StatusGeocoding
	require.NoError(t, st.SaveItem(ctx, midway))
	done, err := st.CreateItem(ctx, "https://example.com/done")
	require.NoError(t, err)
	done.Status = model.StatusCompleted
	require.NoError(t, st.SaveItem(ctx, done))

	d := &recordingDispatcher{}
	n, err := resumeUnfinished(ctx, st, d, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{pending.ID, midway.ID}, d.enqueued())
}

func TestLocalDispatch_WaitAndClose(t *testing.T) {
	var processed atomic.Int32
	q := queue.NewLocal(queue.ProcessorFunc(func(context.Context, string) error {
		processed.Add(1)
		return nil
	}), nil, queue.LocalConfig{Workers: 2, Size: 10})

	d := localDispatch(context.Background(), q)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, d.Enqueue(context.Background(), id))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))
	assert.Equal(t, int32(3), processed.Load())

	d.Close()
}

func TestExportItems(t *testing.T) {
	score := 8
	items := []model.Item{{
		ID:        "a",
		SourceURL: "https://example.com/a",
		Status:    model.StatusCompleted,
		Score:     &score,
		Valuation: &model.Valuation{MaxBuyPrice: 120, ROIPercent: math.Inf(1)},
	}}

	var buf bytes.Buffer
	require.NoError(t, exportItems(&buf, "CSV", items))
	rows, err := sheet.ReadCSV(strings.NewReader(buf.String()))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, sheet.ItemHeader, rows[0])
	assert.Equal(t, "a", rows[1][0])
	assert.Contains(t, rows[1], "Infinity")

	buf.Reset()
	require.NoError(t, exportItems(&buf, "xlsx", items))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("PK")), "xlsx is a zip archive")

	err = exportItems(&buf, "json", items)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestItemFilterFromFlags(t *testing.T) {
	c := &cobra.Command{}
	c.Flags().String("status", "", "")
	c.Flags().Int("limit", 50, "")
	c.Flags().Int("offset", 0, "")

	require.NoError(t, c.Flags().Set("status", "completed"))
	require.NoError(t, c.Flags().Set("offset", "10"))
	f, err := itemFilterFromFlags(c)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, f.Status)
	assert.Equal(t, 50, f.Limit)
	assert.Equal(t, 10, f.Offset)

	require.NoError(t, c.Flags().Set("status", "done"))
	_, err = itemFilterFromFlags(c)
	assert.Error(t, err)
}

func TestFormatItemsList(t *testing.T) {
	score := 9
	located := model.Item{ID: "a", Status: model.StatusCompleted, Score: &score, SourceURL: "https://example.com/a",
		Valuation: &model.Valuation{MaxBuyPrice: 189.97}}
	located.SetLocation(30.26721, -97.74306)
	bare := model.Item{ID: "b", Status: model.StatusPending, SourceURL: "https://example.com/b"}

	var buf bytes.Buffer
	formatItemsList(&buf, []model.Item{located, bare})
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "30.2672,-97.7431")
	assert.Contains(t, out, "$189.97")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[2], "pending")
	assert.Contains(t, lines[2], "-")
}

func TestFormatDLQList(t *testing.T) {
	long := strings.Repeat("x", 80)
	entries := []resilience.DLQEntry{{
		ID:          "d1",
		ItemID:      "item-1",
		ErrorType:   resilience.ErrorTypeTransient,
		Error:       long,
		RetryCount:  1,
		MaxRetries:  3,
		NextRetryAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}

	var buf bytes.Buffer
	formatDLQList(&buf, entries)
	out := buf.String()
	assert.Contains(t, out, "item-1")
	assert.Contains(t, out, "1/3")
	assert.Contains(t, out, "2026-01-02T03:04:05Z")
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, long)
}

func TestFormatStatus(t *testing.T) {
	snap := &monitoring.MetricsSnapshot{
		Items:      map[model.ItemStatus]int{model.StatusCompleted: 3, model.StatusFailed: 1},
		ItemsTotal: 4,
		DLQDepth:   2,
		FailRate:   0.25,
		Breakers:   map[string]string{"metals": "closed", "anthropic": "open"},
	}

	var buf bytes.Buffer
	formatStatus(&buf, snap)
	out := buf.String()
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "dead_letters")
	assert.Contains(t, out, "25.0%")
	assert.Less(t, strings.Index(out, "breaker:anthropic"), strings.Index(out, "breaker:metals"))
}

func TestApplyOverrides(t *testing.T) {
	t.Cleanup(func() { flagLogLevel, flagStoreDriver, flagDatabaseURL = "", "", "" })

	c := &config.Config{
		Log:   config.LogConfig{Level: "info"},
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: "arbitrage.db"},
	}
	applyOverrides(c)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "sqlite", c.Store.Driver)

	flagLogLevel = "debug"
	flagStoreDriver = "postgres"
	flagDatabaseURL = "postgres://localhost/arbitrage"
	applyOverrides(c)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "postgres", c.Store.Driver)
	assert.Equal(t, "postgres://localhost/arbitrage", c.Store.DatabaseURL)

	for _, name := range []string{"log-level", "store", "db"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
}
