// Package perf samples performance data while a run executes and writes it
// as a pprof profile and a Prometheus textfile into the result folder.
package perf

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/pprof/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Artifact file names.
const (
	ProfileFileName = "perf.pb.gz"
	MetricsFileName = "metrics.prom"
)

const metricsNamespace = "devrun"

// Case outcomes used as label values.
const (
	OutcomePassed = "passed"
	OutcomeFailed = "failed"
)

type caseRecord struct {
	name     string
	outcome  string
	start    time.Time
	duration time.Duration
	before   Sample
	after    Sample
}

// Inspector records per case performance samples.
type Inspector struct {
	logger  zerolog.Logger
	sampler Sampler
	clock   clock.Clock
	folder  string

	mu       sync.Mutex
	runStart time.Time
	current  *caseRecord
	records  []caseRecord

	registry     *prometheus.Registry
	casesTotal   *prometheus.CounterVec
	caseDuration *prometheus.HistogramVec
	runDuration  prometheus.Gauge
}

// NewInspector creates an inspector writing its artifacts into folder.
func NewInspector(logger zerolog.Logger, sampler Sampler, clk clock.Clock, folder string) *Inspector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Inspector{
		logger:   logger,
		sampler:  sampler,
		clock:    clk,
		folder:   folder,
		registry: registry,
		casesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cases_total",
			Help:      "Number of executed cases by outcome",
		}, []string{"outcome"}),
		caseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "case_duration_seconds",
			Help:      "Duration of executed cases",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"outcome"}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the run",
		}),
	}
}

func (i *Inspector) sample() Sample {
	s, err := i.sampler.Sample(context.Background())
	if err != nil {
		i.logger.Debug().Err(err).Msg("Failed to sample performance")
	}
	return s
}

// RunStarted marks the start of the run.
func (i *Inspector) RunStarted() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.runStart = i.clock.Now()
}

// CaseStarted takes the first sample of a case.
func (i *Inspector) CaseStarted(name string) {
	before := i.sample()

	i.mu.Lock()
	defer i.mu.Unlock()
	i.current = &caseRecord{name: name, start: i.clock.Now(), before: before}
}

// CaseSucceeded takes the last sample of a passed case.
func (i *Inspector) CaseSucceeded(name string) {
	i.finishCase(name, OutcomePassed)
}

// CaseFailed takes the last sample of a failed case.
func (i *Inspector) CaseFailed(name string) {
	i.finishCase(name, OutcomeFailed)
}

func (i *Inspector) finishCase(name, outcome string) {
	after := i.sample()

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.current == nil || i.current.name != name {
		i.logger.Debug().Str("case", name).Msg("Case finished without being started")
		return
	}

	rec := *i.current
	i.current = nil
	rec.outcome = outcome
	rec.after = after
	rec.duration = i.clock.Since(rec.start)
	i.records = append(i.records, rec)

	i.casesTotal.WithLabelValues(outcome).Inc()
	i.caseDuration.WithLabelValues(outcome).Observe(rec.duration.Seconds())
}

// RunFinished writes the profile and the metrics of the run.
func (i *Inspector) RunFinished() {
	i.mu.Lock()
	defer i.mu.Unlock()

	duration := i.clock.Since(i.runStart)
	i.runDuration.Set(duration.Seconds())

	profilePath := filepath.Join(i.folder, ProfileFileName)
	if err := writeProfile(profilePath, i.buildProfile(duration)); err != nil {
		i.logger.Warn().Err(err).Msg("Failed to write performance profile")
	} else {
		i.logger.Info().
			Str("profile", profilePath).
			Int("samples", len(i.records)).
			Msg("Performance profile created")
	}

	metricsPath := filepath.Join(i.folder, MetricsFileName)
	if err := prometheus.WriteToTextfile(metricsPath, i.registry); err != nil {
		i.logger.Warn().Err(err).Msg("Failed to write metrics")
	}
}

// Registry returns the registry holding the run metrics.
func (i *Inspector) Registry() *prometheus.Registry {
	return i.registry
}

// buildProfile builds a pprof profile with one sample per finished case.
func (i *Inspector) buildProfile(duration time.Duration) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "duration", Unit: "milliseconds"},
			{Type: "cpu", Unit: "percent"},
			{Type: "memory", Unit: "bytes"},
		},
		DefaultSampleType: "duration",
		TimeNanos:         i.runStart.UnixNano(),
		DurationNanos:     duration.Nanoseconds(),
		PeriodType:        &profile.ValueType{Type: "case", Unit: "count"},
		Period:            1,
	}

	functions := make(map[string]*profile.Location)
	for _, rec := range i.records {
		loc, ok := functions[rec.name]
		if !ok {
			id := uint64(len(functions) + 1)
			fn := &profile.Function{ID: id, Name: rec.name, SystemName: rec.name}
			loc = &profile.Location{ID: id, Line: []profile.Line{{Function: fn}}}
			p.Function = append(p.Function, fn)
			p.Location = append(p.Location, loc)
			functions[rec.name] = loc
		}

		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value: []int64{
				rec.duration.Milliseconds(),
				int64(math.Round(max(rec.before.CPUPercent, rec.after.CPUPercent))),
				int64(max(rec.before.MemoryBytes, rec.after.MemoryBytes)),
			},
			Label: map[string][]string{
				"case":    {rec.name},
				"outcome": {rec.outcome},
			},
		})
	}
	return p
}

func writeProfile(path string, p *profile.Profile) error {
	if err := p.CheckValid(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create profile file: %w", err)
	}
	defer f.Close()

	if err := p.Write(f); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	return f.Close()
}
