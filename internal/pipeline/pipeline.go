// Package pipeline runs one session load: fetch geometry and coverage, fuse,
// classify, assemble the map and summarize.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fibre-map/internal/commune"
	"github.com/sells-group/fibre-map/internal/coverage"
	"github.com/sells-group/fibre-map/internal/mapview"
	"github.com/sells-group/fibre-map/internal/monitoring"
	"github.com/sells-group/fibre-map/internal/palette"
)

// GeometrySource yields commune boundaries.
type GeometrySource interface {
	Geometries(ctx context.Context) ([]commune.Geometry, error)
}

// PhaseResult records one step of a run.
type PhaseResult struct {
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Result is the outcome of a run. On failure only SessionID, State and
// Phases are set.
type Result struct {
	SessionID string                 `json:"session_id"`
	State     State                  `json:"state"`
	Features  []commune.FusedFeature `json:"-"`
	Deck      *mapview.Deck          `json:"deck,omitempty"`
	Summary   commune.Summary        `json:"summary"`
	Phases    []PhaseResult          `json:"phases"`
}

// Pipeline fuses a geometry source with a coverage source.
type Pipeline struct {
	geometry GeometrySource
	coverage coverage.Source
	policy   commune.DuplicatePolicy
	metrics  *monitoring.Metrics
	clock    clockwork.Clock
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records every run in m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock replaces the clock used to time phases.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// New creates a Pipeline.
func New(geometry GeometrySource, cov coverage.Source, policy commune.DuplicatePolicy, opts ...Option) *Pipeline {
	p := &Pipeline{
		geometry: geometry,
		coverage: cov,
		policy:   policy,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run performs one session load. Sources are read one after the other and
// any failure aborts the run before classification; the returned Result then
// carries StateError and no map or summary.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	result := &Result{SessionID: uuid.NewString(), State: StateIdle}
	runStart := p.clock.Now()
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("session_id", result.SessionID),
	)

	transition := func(s State) {
		log.Debug("pipeline: state", zap.Stringer("from", result.State), zap.Stringer("to", s))
		result.State = s
	}
	fail := func(err error) (*Result, error) {
		transition(StateError)
		kind := commune.KindOf(err)
		log.Error("pipeline: run failed", zap.Stringer("kind", kind), zap.Error(err))
		if p.metrics != nil {
			p.metrics.Runs.WithLabelValues("error", kind.String()).Inc()
			p.metrics.RunDuration.Observe(p.clock.Since(runStart).Seconds())
		}
		return &Result{SessionID: result.SessionID, State: StateError, Phases: result.Phases}, err
	}
	track := func(name string, fn func() error) error {
		start := p.clock.Now()
		err := fn()
		elapsed := p.clock.Since(start)
		phase := PhaseResult{Name: name, DurationMS: elapsed.Milliseconds()}
		if p.metrics != nil {
			p.metrics.PhaseDuration.WithLabelValues(name).Observe(elapsed.Seconds())
		}
		if err != nil {
			phase.Error = err.Error()
		}
		result.Phases = append(result.Phases, phase)
		log.Info("pipeline: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", phase.DurationMS),
			zap.Bool("ok", err == nil),
		)
		return err
	}

	transition(StateLoading)

	var geometries []commune.Geometry
	if err := track("geometry", func() (err error) {
		geometries, err = p.geometry.Geometries(ctx)
		return err
	}); err != nil {
		return fail(eris.Wrap(err, "pipeline: load geometry"))
	}

	var records []commune.CoverageRecord
	if err := track("coverage", func() (err error) {
		records, err = p.coverage.Coverage(ctx)
		return err
	}); err != nil {
		return fail(eris.Wrap(err, "pipeline: load coverage"))
	}

	var features []commune.FusedFeature
	if err := track("fuse", func() (err error) {
		features, err = commune.Fuse(geometries, records, p.policy)
		return err
	}); err != nil {
		return fail(eris.Wrap(err, "pipeline: fuse"))
	}
	for i := range features {
		features[i].FillColor = palette.ForPercent(features[i].PctFiber)
	}
	transition(StateFused)

	var deck *mapview.Deck
	if err := track("assemble", func() (err error) {
		deck, err = mapview.Assemble(features)
		return err
	}); err != nil {
		return fail(eris.Wrap(err, "pipeline: assemble"))
	}

	result.Features = features
	result.Deck = deck
	result.Summary = commune.Summarize(features)
	transition(StateRendered)

	if p.metrics != nil {
		p.metrics.Runs.WithLabelValues("ok", "").Inc()
		p.metrics.RunDuration.Observe(p.clock.Since(runStart).Seconds())
		p.metrics.Communes.Set(float64(result.Summary.Total))
		p.metrics.Matched.Set(float64(result.Summary.Matched))
		if result.Summary.HasMean() {
			p.metrics.MeanPct.Set(result.Summary.MeanPct)
		}
	}

	log.Info("pipeline: run complete",
		zap.Int("communes", result.Summary.Total),
		zap.Int("matched", result.Summary.Matched),
	)
	return result, nil
}
