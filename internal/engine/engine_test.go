package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/bladelsp/internal/config"
	blerrors "github.com/standardbeagle/bladelsp/internal/errors"
	"github.com/standardbeagle/bladelsp/internal/extract"
	"github.com/standardbeagle/bladelsp/internal/filetype"
	"github.com/standardbeagle/bladelsp/internal/perf"
	"github.com/standardbeagle/bladelsp/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	fileA    types.FileID = "A.blade.php"
	contentA              = "<div>\n<p>Hello</p>\n</div>\n@if(true) yes"
	contentB              = "<div>\n<p>Hello</p>\n</div>\n@auth yes"
)

func newTestEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, e.Close()) })
	return e
}

// gate is a strategy that blocks every extraction until opened.
type gate struct {
	calls   atomic.Int32
	started chan struct{}
	open    chan struct{}
	inner   extract.Strategy
}

func newGate() *gate {
	return &gate{
		started: make(chan struct{}, 64),
		open:    make(chan struct{}),
		inner:   extract.NewRegexStrategy(),
	}
}

func (g *gate) strategy() extract.Strategy {
	return extract.Func{StrategyName: "gated", Fn: func(content []byte, kind filetype.Kind) (types.PatternSet, error) {
		g.calls.Add(1)
		g.started <- struct{}{}
		<-g.open
		return g.inner.Extract(content, kind)
	}}
}

func (g *gate) pipeline() *extract.Pipeline {
	return &extract.Pipeline{Structured: g.strategy(), MinContentSize: 3, MaxFileSize: 1 << 20}
}

func TestScenarioDirectiveFact(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.Update(ctx, fileA, []byte(contentA), 1))

	set, ok := e.GetPatterns(fileA, 1)
	require.True(t, ok)
	directives := set[types.CategoryDirective]
	require.Len(t, directives, 1)
	assert.Equal(t, "if", directives[0].Text)
	assert.Equal(t, types.Position{Line: 3, Column: 0}, directives[0].Start)

	status, errs, ok := e.Outcome(fileA, 1)
	require.True(t, ok)
	assert.Equal(t, "success", status)
	assert.Empty(t, errs)
}

func TestScenarioHoverVersionGated(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.Update(ctx, fileA, []byte(contentA), 1))

	answer, err := e.GetHover(ctx, fileA, types.Position{Line: 3, Column: 0}, 1)
	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.Contains(t, answer.Markdown, "`@if`")

	answer, err = e.GetHover(ctx, fileA, types.Position{Line: 3, Column: 0}, 2)
	require.NoError(t, err)
	assert.Nil(t, answer)
}

func TestIdempotentUpdate(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.Update(ctx, fileA, []byte(contentA), 1))
	first, _ := e.GetPatterns(fileA, 1)
	require.NoError(t, e.Update(ctx, fileA, []byte(contentA), 1))
	second, _ := e.GetPatterns(fileA, 1)

	assert.Equal(t, first, second)
	stats := e.Stats()
	assert.EqualValues(t, 1, stats.Extractions)
	assert.EqualValues(t, 1, stats.Unchanged)
	assert.EqualValues(t, 2, stats.PatternHits)
}

func TestVersionGatedRead(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.Update(context.Background(), fileA, []byte(contentA), 1))

	_, ok := e.GetPatterns(fileA, 2)
	assert.False(t, ok)
	_, ok = e.GetPatterns(fileA, 0)
	assert.False(t, ok)
	assert.EqualValues(t, 2, e.Stats().PatternMisses)
}

func TestSameVersionUpdateInvalidatesHover(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	pos := types.Position{Line: 3, Column: 0}
	require.NoError(t, e.Update(ctx, fileA, []byte(contentA), 1))

	answer, err := e.GetHover(ctx, fileA, pos, 1)
	require.NoError(t, err)
	require.NotNil(t, answer)
	_, err = e.GetHover(ctx, fileA, pos, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, e.Stats().HoverHits)

	require.NoError(t, e.Update(ctx, fileA, []byte(contentB), 1))
	assert.EqualValues(t, 1, e.Stats().HoverPurged)

	answer, err = e.GetHover(ctx, fileA, pos, 1)
	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.Contains(t, answer.Markdown, "`@auth`")
	stats := e.Stats()
	assert.EqualValues(t, 1, stats.HoverHits)
	assert.EqualValues(t, 2, stats.HoverMisses)
}

func TestPatternCacheBound(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.PatternCapacity = 2
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	for _, f := range []types.FileID{"a.blade.php", "b.blade.php", "c.blade.php"} {
		require.NoError(t, e.Update(ctx, f, []byte(contentA), 1))
	}

	stats := e.Stats()
	assert.Equal(t, 2, stats.PatternEntries)
	assert.EqualValues(t, 1, stats.PatternEvictions)
	_, ok := e.GetPatterns("a.blade.php", 1)
	assert.False(t, ok, "least recently used file is evicted")
	_, ok = e.GetPatterns("c.blade.php", 1)
	assert.True(t, ok)
}

func TestHoverKeepsPatternsRecent(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.PatternCapacity = 2
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	require.NoError(t, e.Update(ctx, "a.blade.php", []byte(contentA), 1))
	require.NoError(t, e.Update(ctx, "b.blade.php", []byte(contentA), 1))
	_, err := e.GetHover(ctx, "a.blade.php", types.Position{Line: 3, Column: 0}, 1)
	require.NoError(t, err)
	require.NoError(t, e.Update(ctx, "c.blade.php", []byte(contentA), 1))

	_, ok := e.GetPatterns("b.blade.php", 1)
	assert.False(t, ok, "b was used least recently")
	_, ok = e.GetPatterns("a.blade.php", 1)
	assert.True(t, ok)
	assert.EqualValues(t, 3, e.Stats().Extractions)
}

func TestLeaderRechecksCache(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.Update(ctx, fileA, []byte(contentA), 1))

	doc, ok := e.Document(fileA)
	require.True(t, ok)
	require.NoError(t, e.lead(ctx, doc, false))

	stats := e.Stats()
	assert.EqualValues(t, 1, stats.Extractions)
	assert.EqualValues(t, 1, stats.Unchanged)

	require.NoError(t, e.lead(ctx, doc, true))
	assert.EqualValues(t, 2, e.Stats().Extractions)
}

func TestConcurrentUpdatesExtractOnce(t *testing.T) {
	g := newGate()
	e := newTestEngine(t, nil, WithPipeline(g.pipeline()))
	const k = 16

	var started sync.WaitGroup
	var group errgroup.Group
	for i := 0; i < k; i++ {
		started.Add(1)
		group.Go(func() error {
			started.Done()
			return e.Update(context.Background(), fileA, []byte(contentA), 1)
		})
	}
	started.Wait()
	<-g.started
	time.Sleep(50 * time.Millisecond)
	close(g.open)
	require.NoError(t, group.Wait())

	assert.EqualValues(t, 1, g.calls.Load())
	stats := e.Stats()
	assert.EqualValues(t, 1, stats.Extractions)
	assert.EqualValues(t, k-1, stats.DedupSaves+stats.Unchanged)
	_, ok := e.GetPatterns(fileA, 1)
	assert.True(t, ok)
}

func TestFallbackNeverPoisons(t *testing.T) {
	broken := extract.Func{StrategyName: "structured", Fn: func([]byte, filetype.Kind) (types.PatternSet, error) {
		return nil, errors.New("tree-sitter gave up")
	}}
	p := &extract.Pipeline{Structured: broken, Fallback: extract.NewRegexStrategy(), MinContentSize: 3}
	e := newTestEngine(t, nil, WithPipeline(p))
	ctx := context.Background()

	require.NoError(t, e.Update(ctx, fileA, []byte(contentA), 1))

	set, ok := e.GetPatterns(fileA, 1)
	require.True(t, ok)
	assert.Len(t, set[types.CategoryDirective], 1)
	stats := e.Stats()
	assert.EqualValues(t, 1, stats.Fallbacks)
	assert.EqualValues(t, 0, stats.Successes)

	diags, ok := e.Diagnostics(fileA, 1)
	require.True(t, ok)
	require.Len(t, diags, 1)
	require.NotNil(t, diags[0].Severity)
	assert.Equal(t, protocol.DiagnosticSeverityWarning, *diags[0].Severity)

	answer, err := e.GetHover(ctx, fileA, types.Position{Line: 3, Column: 1}, 1)
	require.NoError(t, err)
	assert.NotNil(t, answer)
}

func TestFailedExtractionCachesEmptySet(t *testing.T) {
	e := newTestEngine(t, nil)

	require.NoError(t, e.Update(context.Background(), "notes.txt", []byte("@if(true)"), 1))

	set, ok := e.GetPatterns("notes.txt", 1)
	require.True(t, ok)
	assert.Equal(t, 0, set.Len())
	assert.EqualValues(t, 1, e.Stats().Failures)

	status, errs, ok := e.Outcome("notes.txt", 1)
	require.True(t, ok)
	assert.Equal(t, "failed", status)
	require.NotEmpty(t, errs)
	assert.Equal(t, blerrors.KindParserCrash, errs[0].Kind)
}

func TestFileTooLargeDiagnostic(t *testing.T) {
	cfg := config.Default()
	cfg.Extraction.MaxFileSize = 16
	e := newTestEngine(t, cfg)

	require.NoError(t, e.Update(context.Background(), fileA, []byte(contentA), 1))

	diags, ok := e.Diagnostics(fileA, 1)
	require.True(t, ok)
	require.Len(t, diags, 1)
	assert.Equal(t, protocol.DiagnosticSeverityInformation, *diags[0].Severity)
	_, ok = e.Diagnostics(fileA, 2)
	assert.False(t, ok)
}

func TestHighestVersionWins(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.Update(ctx, fileA, []byte(contentB), 2))
	require.NoError(t, e.Update(ctx, fileA, []byte(contentA), 1))

	_, ok := e.GetPatterns(fileA, 1)
	assert.False(t, ok)
	set, ok := e.GetPatterns(fileA, 2)
	require.True(t, ok)
	assert.Equal(t, "auth", set[types.CategoryDirective][0].Text)
	assert.EqualValues(t, 1, e.Stats().StaleWrites)

	doc, ok := e.Document(fileA)
	require.True(t, ok)
	assert.EqualValues(t, 2, doc.Version)
}

func TestLastWriteWins(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.VersionPolicy = config.VersionPolicyLast
	e := newTestEngine(t, cfg)
	ctx := context.Background()

	require.NoError(t, e.Update(ctx, fileA, []byte(contentB), 2))
	require.NoError(t, e.Update(ctx, fileA, []byte(contentA), 1))

	_, ok := e.GetPatterns(fileA, 1)
	assert.True(t, ok)
}

func TestHoverExtractsOnDemand(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.Update(ctx, fileA, []byte(contentA), 1))

	e.Invalidate(fileA)
	_, ok := e.GetPatterns(fileA, 1)
	require.False(t, ok)

	answer, err := e.GetHover(ctx, fileA, types.Position{Line: 3, Column: 2}, 1)
	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.EqualValues(t, 2, e.Stats().Extractions)
	_, ok = e.GetPatterns(fileA, 1)
	assert.True(t, ok)
}

func TestHoverNothingAtPosition(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.Update(ctx, fileA, []byte(contentA), 1))

	answer, err := e.GetHover(ctx, fileA, types.Position{Line: 1, Column: 3}, 1)
	require.NoError(t, err)
	assert.Nil(t, answer)

	// the empty answer is cached
	answer, err = e.GetHover(ctx, fileA, types.Position{Line: 1, Column: 3}, 1)
	require.NoError(t, err)
	assert.Nil(t, answer)
	assert.EqualValues(t, 1, e.Stats().HoverHits)
}

func TestInvalidateAllAndReextract(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.Update(ctx, "a.blade.php", []byte(contentA), 1))
	require.NoError(t, e.Update(ctx, "b.blade.php", []byte(contentB), 1))

	require.NoError(t, e.Reextract(ctx, "a.blade.php"))
	assert.EqualValues(t, 3, e.Stats().Extractions, "reextract bypasses the unchanged check")

	e.InvalidateAll()
	assert.Equal(t, 0, e.Stats().PatternEntries)

	require.NoError(t, e.Reextract(ctx, "b.blade.php"))
	_, ok := e.GetPatterns("b.blade.php", 1)
	assert.True(t, ok)

	err := e.Reextract(ctx, "missing.blade.php")
	assert.ErrorIs(t, err, ErrUnknownFile)
}

func TestCloseFile(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.Update(ctx, fileA, []byte(contentA), 1))

	e.CloseFile(fileA)

	_, ok := e.Document(fileA)
	assert.False(t, ok)
	answer, err := e.GetHover(ctx, fileA, types.Position{Line: 3, Column: 0}, 1)
	require.NoError(t, err)
	assert.Nil(t, answer)
}

func TestInvalidUse(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)

	assert.ErrorIs(t, e.Update(context.Background(), "", []byte(contentA), 1), ErrEmptyFileID)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.Update(context.Background(), fileA, []byte(contentA), 1), ErrClosed)
	_, err = e.GetHover(context.Background(), fileA, types.Position{}, 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseWaitsForRunningUpdate(t *testing.T) {
	g := newGate()
	e, err := New(nil, WithPipeline(g.pipeline()))
	require.NoError(t, err)

	updated := make(chan error, 1)
	go func() {
		updated <- e.Update(context.Background(), fileA, []byte(contentA), 1)
	}()
	<-g.started

	closed := make(chan struct{})
	go func() {
		assert.NoError(t, e.Close())
		close(closed)
	}()

	require.Eventually(t, func() bool {
		return errors.Is(e.Reextract(context.Background(), "other.blade.php"), ErrClosed)
	}, time.Second, time.Millisecond)
	select {
	case <-closed:
		t.Fatal("Close returned while an update was running")
	case <-time.After(30 * time.Millisecond):
	}

	close(g.open)
	<-closed
	require.NoError(t, <-updated)
	assert.EqualValues(t, 0, e.Stats().InFlight)
	_, ok := e.GetPatterns(fileA, 1)
	assert.True(t, ok)
}

func TestInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.VersionPolicy = "newest"

	_, err := New(cfg)

	var cfgErr *blerrors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestUpdateCancellation(t *testing.T) {
	g := newGate()
	cfg := config.Default()
	cfg.Admission.ExtractionPermits = 1
	e := newTestEngine(t, cfg, WithPipeline(g.pipeline()))

	done := make(chan error, 1)
	go func() {
		done <- e.Update(context.Background(), "a.blade.php", []byte(contentA), 1)
	}()
	<-g.started
	assert.True(t, e.IsUnderLoad())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.Update(ctx, "b.blade.php", []byte(contentA), 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(g.open)
	require.NoError(t, <-done)
	assert.False(t, e.IsUnderLoad())
	assert.EqualValues(t, 1, e.Stats().UnderLoad)

	// the abandoned file extracts on its next update
	require.NoError(t, e.Update(context.Background(), "b.blade.php", []byte(contentA), 1))
	_, ok := e.GetPatterns("b.blade.php", 1)
	assert.True(t, ok)
}

func TestCancelledContext(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Update(ctx, fileA, []byte(contentA), 1)
	assert.ErrorIs(t, err, context.Canceled)
	_, ok := e.GetPatterns(fileA, 1)
	assert.False(t, ok)
}

func TestConcurrentUpdatesAndHovers(t *testing.T) {
	e := newTestEngine(t, nil)
	contents := []string{contentA, contentB}

	var group errgroup.Group
	for w := 0; w < 8; w++ {
		group.Go(func() error {
			for v := 1; v <= 20; v++ {
				version := types.FileVersion(v)
				if err := e.Update(context.Background(), fileA, []byte(contents[v%2]), version); err != nil {
					return err
				}
				if _, err := e.GetHover(context.Background(), fileA, types.Position{Line: 3, Column: 0}, version); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())

	set, ok := e.GetPatterns(fileA, 20)
	require.True(t, ok)
	assert.Equal(t, "if", set[types.CategoryDirective][0].Text)
	answer, err := e.GetHover(context.Background(), fileA, types.Position{Line: 3, Column: 0}, 20)
	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.Contains(t, answer.Markdown, "`@if`")
}

func TestPerformanceReport(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.Update(context.Background(), fileA, []byte(contentA), 1))

	report := e.PerformanceReport()

	assert.Contains(t, report, "Performance Report")
	assert.Contains(t, report, "update")
	assert.Contains(t, report, "Patterns:")
	assert.Contains(t, report, "success 1")
}

func TestPeriodicReport(t *testing.T) {
	var mu sync.Mutex
	var reports []string
	now := time.Now()
	var offset atomic.Int64
	clock := func() time.Time { return now.Add(time.Duration(offset.Load())) }

	e := newTestEngine(t, nil, WithMonitorOptions(
		perf.WithClock(clock),
		perf.WithReporter(func(r string) {
			mu.Lock()
			reports = append(reports, r)
			mu.Unlock()
		}),
	))
	require.NoError(t, e.Update(context.Background(), fileA, []byte(contentA), 1))
	offset.Store(int64(2 * time.Minute))
	require.NoError(t, e.Update(context.Background(), fileA, []byte(contentA), 1))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0], "Unchanged:      1")
}

func TestCollectors(t *testing.T) {
	e := newTestEngine(t, nil)
	require.NoError(t, e.Update(context.Background(), fileA, []byte(contentA), 1))

	collectors := e.Collectors()
	require.Len(t, collectors, 2)
	assert.Equal(t, 23, testutil.CollectAndCount(collectors[0]))
	assert.Equal(t, 1, testutil.CollectAndCount(collectors[1]))
}
