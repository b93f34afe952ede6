// Package perf times engine operations against latency budgets and
// periodically reports aggregate statistics.
package perf

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/standardbeagle/bladelsp/internal/config"
)

// EWMA weights
const (
	historyWeight = 0.9
	sampleWeight  = 0.1
)

var tracer = otel.Tracer("bladelsp.perf")

// Reporter receives the periodic performance report
type Reporter func(report string)

type opStats struct {
	count   int64
	slow    int64
	ewma    time.Duration
	last    time.Duration
	maximum time.Duration
}

// Monitor records latencies. It is safe for concurrent use.
type Monitor struct {
	budgets  map[string]time.Duration
	interval time.Duration

	mu  sync.Mutex
	ops map[string]*opStats

	slowTotal  atomic.Int64
	lastReport atomic.Int64 // unix nanos
	reports    atomic.Int64

	now      func() time.Time
	limiter  *rate.Limiter
	tracer   trace.Tracer
	reporter Reporter
	source   func() string
	onSlow   func(op string, elapsed time.Duration)
	latency  *prometheus.HistogramVec
}

type Option func(*Monitor)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithReporter replaces the default reporter, which writes to the
// standard logger.
func WithReporter(r Reporter) Option {
	return func(m *Monitor) { m.reporter = r }
}

// WithReportSource appends the text returned by source to every report
func WithReportSource(source func() string) Option {
	return func(m *Monitor) { m.source = source }
}

// WithSlowHook is called for every operation that exceeds its budget
func WithSlowHook(fn func(op string, elapsed time.Duration)) Option {
	return func(m *Monitor) { m.onSlow = fn }
}

func WithTracer(t trace.Tracer) Option {
	return func(m *Monitor) { m.tracer = t }
}

func New(cfg config.Performance, opts ...Option) *Monitor {
	budgets := make(map[string]time.Duration, len(cfg.Budgets))
	for op, b := range config.DefaultBudgets() {
		budgets[op] = b
	}
	for op, b := range cfg.Budgets {
		budgets[op] = b
	}

	limit, burst := rate.Limit(cfg.SlowLogRate), cfg.SlowLogBurst
	if cfg.SlowLogRate <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}

	m := &Monitor{
		budgets:  budgets,
		interval: cfg.ReportInterval,
		ops:      make(map[string]*opStats),
		now:      time.Now,
		limiter:  rate.NewLimiter(limit, burst),
		tracer:   tracer,
		reporter: func(report string) { log.Printf("%s", report) },
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bladelsp",
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations.",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .2, .5, 1},
		}, []string{"operation"}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastReport.Store(m.now().UnixNano())
	return m
}

// Track times fn as operation op and returns its result. The periodic
// report, when due, is emitted after fn has returned and been recorded.
func Track[T any](ctx context.Context, m *Monitor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := m.tracer.Start(ctx, "bladelsp."+op, trace.WithAttributes(attribute.String("operation", op)))
	start := m.now()
	v, err := fn(ctx)
	elapsed := m.now().Sub(start)

	slow := m.Record(op, elapsed)
	span.SetAttributes(attribute.Bool("slow", slow), attribute.Int64("elapsed_us", elapsed.Microseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	m.MaybeReport()
	return v, err
}

// Time is Track for operations without a result
func (m *Monitor) Time(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := Track(ctx, m, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Record adds one sample for op and reports whether it exceeded its
// budget. Operations without a budget are counted but not averaged.
func (m *Monitor) Record(op string, elapsed time.Duration) bool {
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
	budget, tracked := m.budgets[op]

	m.mu.Lock()
	s, ok := m.ops[op]
	if !ok {
		s = &opStats{}
		m.ops[op] = s
	}
	s.count++
	s.last = elapsed
	if elapsed > s.maximum {
		s.maximum = elapsed
	}
	if tracked {
		if s.count == 1 {
			s.ewma = elapsed
		} else {
			s.ewma = time.Duration(math.Round(historyWeight*float64(s.ewma) + sampleWeight*float64(elapsed)))
		}
	}
	slow := tracked && elapsed > budget
	if slow {
		s.slow++
	}
	m.mu.Unlock()

	if !slow {
		return false
	}
	m.slowTotal.Add(1)
	if m.onSlow != nil {
		m.onSlow(op, elapsed)
	}
	if m.limiter.Allow() {
		log.Printf("Warning: slow %s took %v (budget %v)", op, elapsed.Round(time.Microsecond), budget)
	}
	return true
}

// MaybeReport emits a report when the interval has elapsed since the last
// one. Concurrent callers emit at most one report per interval.
func (m *Monitor) MaybeReport() bool {
	if m.interval <= 0 {
		return false
	}
	now := m.now().UnixNano()
	last := m.lastReport.Load()
	if now-last < m.interval.Nanoseconds() {
		return false
	}
	if !m.lastReport.CompareAndSwap(last, now) {
		return false
	}
	m.reports.Add(1)
	m.reporter(m.Report())
	return true
}

// Average returns the moving average latency for op
func (m *Monitor) Average(op string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.ops[op]; ok {
		return s.ewma
	}
	return 0
}

// Count returns the number of samples recorded for op
func (m *Monitor) Count(op string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.ops[op]; ok {
		return s.count
	}
	return 0
}

func (m *Monitor) SlowOps() int64 { return m.slowTotal.Load() }

func (m *Monitor) Reports() int64 { return m.reports.Load() }

func (m *Monitor) Budget(op string) (time.Duration, bool) {
	b, ok := m.budgets[op]
	return b, ok
}

// Collector exposes the latency histogram
func (m *Monitor) Collector() prometheus.Collector { return m.latency }

// Report renders per-operation latencies followed by the report source
func (m *Monitor) Report() string {
	var sb strings.Builder
	sb.WriteString("=== Performance Report ===\n")
	sb.WriteString("Operations:\n")

	m.mu.Lock()
	names := make([]string, 0, len(m.ops)+len(m.budgets))
	seen := make(map[string]bool)
	for op := range m.budgets {
		names = append(names, op)
		seen[op] = true
	}
	for op := range m.ops {
		if !seen[op] {
			names = append(names, op)
		}
	}
	sort.Strings(names)

	for _, op := range names {
		s := m.ops[op]
		if s == nil {
			s = &opStats{}
		}
		budget := "-"
		if b, ok := m.budgets[op]; ok {
			budget = b.String()
		}
		sb.WriteString(fmt.Sprintf("  %-12s avg %-10v max %-10v budget %-6s %6d calls %4d slow\n",
			op, s.ewma.Round(time.Microsecond), s.maximum.Round(time.Microsecond), budget, s.count, s.slow))
	}
	m.mu.Unlock()

	if m.source != nil {
		sb.WriteString(m.source())
	}
	return sb.String()
}
