// Package chaos runs consistency drills: experiments that put the running API under
// concurrent pressure and check that the inventory invariants still hold.
package chaos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrSteadyStateInvalid is returned when the system is already unhealthy before any
// fault is injected.
var ErrSteadyStateInvalid = errors.New("steady state invalid")

// Experiment is one drill.
type Experiment struct {
	Name        string
	Hypothesis  string
	SteadyState []Probe
	Method      []Action
	Rollback    []Action
	Validation  []Assertion
	// Duration is the observation window after the method ran.
	Duration       time.Duration
	SampleInterval time.Duration
}

// Probe measures one property of the system.
type Probe struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

// Threshold is the condition a probe value must satisfy.
type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Holds reports whether value satisfies the threshold.
func (t Threshold) Holds(value float64) bool {
	switch t.Operator {
	case ">":
		return value > t.Value
	case "<":
		return value < t.Value
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return value == t.Value
	default:
		return false
	}
}

// Action is a load or fault injection step.
type Action struct {
	Type    string
	Target  string
	Execute func(context.Context) error
}

// Assertion checks the last observation of a probe.
type Assertion struct {
	Probe     string
	Condition func(float64) bool
	Message   string
}

// Result captures one experiment run.
type Result struct {
	Experiment       string                 `json:"experiment"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          time.Time              `json:"end_time"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesis_held"`
	SteadyStateValid bool                   `json:"steady_state_valid"`
	Violations       []Violation            `json:"violations"`
	Failed           []string               `json:"failed_assertions"`
	Observations     map[string][]DataPoint `json:"observations"`
	ErrorEvents      []ErrorEvent           `json:"error_events"`
}

type Violation struct {
	Probe     string    `json:"probe"`
	Expected  float64   `json:"expected"`
	Actual    float64   `json:"actual"`
	Timestamp time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// Engine runs registered experiments.
type Engine struct {
	tracer      trace.Tracer
	log         *slog.Logger
	mu          sync.Mutex
	experiments []Experiment
	results     []Result
}

func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{
		tracer: otel.Tracer("booktracker/chaos"),
		log:    logger.With("component", "chaos"),
	}
}

// Register adds an experiment to the drill.
func (e *Engine) Register(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

// Experiments returns the registered experiments.
func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

// Results returns the results of every completed run.
func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// Run executes one experiment: steady-state check, method, observation window,
// rollback, assertions.
func (e *Engine) Run(ctx context.Context, exp Experiment) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	result := &Result{
		Experiment:   exp.Name,
		StartTime:    time.Now(),
		Observations: make(map[string][]DataPoint),
	}

	span.AddEvent("validating_steady_state")
	if violations := e.checkSteadyState(ctx, exp.SteadyState); len(violations) > 0 {
		result.Violations = violations
		result.EndTime = time.Now()
		return result, fmt.Errorf("%s: %w", exp.Name, ErrSteadyStateInvalid)
	}
	result.SteadyStateValid = true

	span.AddEvent("running_method")
	for _, action := range exp.Method {
		if err := action.Execute(ctx); err != nil {
			result.recordError(action.Target, err)
			span.RecordError(err)
		}
	}

	span.AddEvent("observing_system")
	e.observe(ctx, exp, result)

	span.AddEvent("rolling_back")
	for _, action := range exp.Rollback {
		if err := action.Execute(ctx); err != nil {
			result.recordError(action.Target, err)
			span.RecordError(err)
		}
	}

	span.AddEvent("validating_assertions")
	result.Failed = failedAssertions(exp.Validation, result)
	result.HypothesisHeld = len(result.Failed) == 0 && len(result.Violations) == 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	e.log.InfoContext(ctx, "experiment finished",
		slog.String("experiment", exp.Name),
		slog.Bool("hypothesis_held", result.HypothesisHeld),
		slog.Int("violations", len(result.Violations)),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}

// RunAll runs every registered experiment in order, pausing between them. It keeps
// going after a failed experiment and returns the results of the completed ones.
func (e *Engine) RunAll(ctx context.Context, pause time.Duration) []Result {
	exps := e.Experiments()
	out := make([]Result, 0, len(exps))
	for i, exp := range exps {
		result, err := e.Run(ctx, exp)
		if err != nil {
			e.log.ErrorContext(ctx, "experiment aborted", slog.String("experiment", exp.Name), slog.Any("error", err))
		}
		if result != nil {
			out = append(out, *result)
		}
		if i < len(exps)-1 && pause > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(pause):
			}
		}
	}
	return out
}

// observe samples every probe once immediately, then on each tick until the
// observation window closes.
func (e *Engine) observe(ctx context.Context, exp Experiment, result *Result) {
	e.sample(ctx, exp.SteadyState, result)
	if exp.Duration <= 0 {
		return
	}

	interval := exp.SampleInterval
	if interval <= 0 {
		interval = time.Second
	}
	window, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-window.Done():
			return
		case <-ticker.C:
			e.sample(ctx, exp.SteadyState, result)
		}
	}
}

func (e *Engine) sample(ctx context.Context, probes []Probe, result *Result) {
	for _, p := range probes {
		value, err := p.Query(ctx)
		if err != nil {
			result.recordError(p.Name, err)
			continue
		}
		now := time.Now()
		result.Observations[p.Name] = append(result.Observations[p.Name], DataPoint{Timestamp: now, Value: value})
		if !p.Threshold.Holds(value) {
			result.Violations = append(result.Violations, Violation{
				Probe:     p.Name,
				Expected:  p.Threshold.Value,
				Actual:    value,
				Timestamp: now,
			})
		}
	}
}

func (e *Engine) checkSteadyState(ctx context.Context, probes []Probe) []Violation {
	var violations []Violation
	for _, p := range probes {
		value, err := p.Query(ctx)
		if err != nil {
			value = -1
		}
		if err != nil || !p.Threshold.Holds(value) {
			violations = append(violations, Violation{
				Probe:     p.Name,
				Expected:  p.Threshold.Value,
				Actual:    value,
				Timestamp: time.Now(),
			})
		}
	}
	return violations
}

func failedAssertions(assertions []Assertion, result *Result) []string {
	var failed []string
	for _, a := range assertions {
		obs := result.Observations[a.Probe]
		if len(obs) == 0 || !a.Condition(obs[len(obs)-1].Value) {
			failed = append(failed, a.Message)
		}
	}
	return failed
}

func (r *Result) recordError(component string, err error) {
	r.ErrorEvents = append(r.ErrorEvents, ErrorEvent{
		Timestamp: time.Now(),
		Error:     err.Error(),
		Component: component,
	})
}

// Report writes a plain-text summary of results to w.
func Report(w io.Writer, results []Result) {
	for _, r := range results {
		verdict := "HELD"
		if !r.HypothesisHeld {
			verdict = "VIOLATED"
		}
		fmt.Fprintf(w, "%-36s %-8s %s\n", r.Experiment, verdict, r.Duration.Round(time.Millisecond))
		for _, v := range r.Violations {
			fmt.Fprintf(w, "    violation %s: expected %.2f, got %.2f\n", v.Probe, v.Expected, v.Actual)
		}
		for _, msg := range r.Failed {
			fmt.Fprintf(w, "    failed: %s\n", msg)
		}
		for _, ev := range r.ErrorEvents {
			fmt.Fprintf(w, "    error in %s: %s\n", ev.Component, ev.Error)
		}
	}
}
