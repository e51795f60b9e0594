package chaos

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func constProbe(name string, v float64, th Threshold) Probe {
	return Probe{Name: name, Query: func(context.Context) (float64, error) { return v, nil }, Threshold: th}
}

func TestThreshold_Holds(t *testing.T) {
	tests := []struct {
		op    string
		value float64
		want  bool
	}{
		{">", 2, true},
		{">", 1, false},
		{"<", 0, true},
		{">=", 1, true},
		{"<=", 2, false},
		{"==", 1, true},
		{"!=", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			assert.Equal(t, tt.want, Threshold{Operator: tt.op, Value: 1}.Holds(tt.value))
		})
	}
}

func TestEngine_RunHoldsWhenProbesStayGreen(t *testing.T) {
	e := NewEngine(discardLogger())
	ran := false

	res, err := e.Run(context.Background(), Experiment{
		Name:        "green",
		SteadyState: []Probe{constProbe("errors", 0, Threshold{Operator: "==", Value: 0})},
		Method: []Action{{Target: "svc", Execute: func(context.Context) error {
			ran = true
			return nil
		}}},
		Validation: []Assertion{{Probe: "errors", Condition: isZero, Message: "no errors"}},
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.True(t, res.SteadyStateValid)
	assert.True(t, res.HypothesisHeld)
	assert.Len(t, res.Observations["errors"], 1)
	assert.Len(t, e.Results(), 1)
}

func TestEngine_AbortsOnInvalidSteadyState(t *testing.T) {
	e := NewEngine(discardLogger())
	ran := false

	res, err := e.Run(context.Background(), Experiment{
		Name:        "already broken",
		SteadyState: []Probe{constProbe("inconsistent_books", 2, Threshold{Operator: "==", Value: 0})},
		Method: []Action{{Execute: func(context.Context) error {
			ran = true
			return nil
		}}},
	})
	assert.ErrorIs(t, err, ErrSteadyStateInvalid)
	assert.False(t, ran)
	require.Len(t, res.Violations, 1)
	assert.Equal(t, float64(2), res.Violations[0].Actual)
}

func TestEngine_ViolationDuringObservationFailsHypothesis(t *testing.T) {
	e := NewEngine(discardLogger())
	var value float64

	res, err := e.Run(context.Background(), Experiment{
		Name: "oversold",
		SteadyState: []Probe{{
			Name:      "oversold_copies",
			Query:     func(context.Context) (float64, error) { return value, nil },
			Threshold: Threshold{Operator: "==", Value: 0},
		}},
		Method: []Action{{Target: "ledger", Execute: func(context.Context) error {
			value = 1
			return errors.New("checkout storm partially failed")
		}}},
	})
	require.NoError(t, err)
	assert.False(t, res.HypothesisHeld)
	assert.Len(t, res.Violations, 1)
	require.Len(t, res.ErrorEvents, 1)
	assert.Equal(t, "ledger", res.ErrorEvents[0].Component)
}

func TestEngine_FailedAssertion(t *testing.T) {
	e := NewEngine(discardLogger())

	res, err := e.Run(context.Background(), Experiment{
		Name:        "assert",
		SteadyState: []Probe{constProbe("returns", 2, Threshold{Operator: ">=", Value: 0})},
		Validation: []Assertion{
			{Probe: "returns", Condition: func(v float64) bool { return v == 1 }, Message: "exactly one return"},
			{Probe: "never_sampled", Condition: isZero, Message: "missing probe"},
		},
	})
	require.NoError(t, err)
	assert.False(t, res.HypothesisHeld)
	assert.Equal(t, []string{"exactly one return", "missing probe"}, res.Failed)
}

func TestEngine_RunAllContinuesAfterAbort(t *testing.T) {
	e := NewEngine(discardLogger())
	e.Register(Experiment{Name: "broken", SteadyState: []Probe{constProbe("x", 1, Threshold{Operator: "==", Value: 0})}})
	e.Register(Experiment{Name: "fine"})

	results := e.RunAll(context.Background(), 0)
	require.Len(t, results, 2)
	assert.False(t, results[0].SteadyStateValid)
	assert.True(t, results[1].HypothesisHeld)

	var buf bytes.Buffer
	Report(&buf, results)
	assert.Contains(t, buf.String(), "broken")
	assert.Contains(t, buf.String(), "VIOLATED")
	assert.Contains(t, buf.String(), "HELD")
}
