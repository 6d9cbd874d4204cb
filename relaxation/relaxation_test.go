package relaxation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdaptiveLinear(t *testing.T) {
	m, err := New("adaptiveLinear", map[string]any{"relaxationStart": 1, "relaxationEnd": 0}, 10)
	require.NoError(t, err)
	for iter, want := range []float64{1, .9, .8, .7, .6, .5, .4, .3, .2, .1, 0} {
		if iter == 0 {
			require.Equal(t, want, m.Relaxation(0))
			continue
		}
		require.InDelta(t, want, m.Relaxation(iter), 1e-12, "iteration %d", iter)
	}
}

func TestAdaptiveLinearSkippedIterations(t *testing.T) {
	m, err := New("adaptiveLinear", map[string]any{"relaxationStart": 1, "relaxationEnd": .2}, 8)
	require.NoError(t, err)
	require.InDelta(t, .8, m.Relaxation(2), 1e-12)
	require.InDelta(t, .8, m.Relaxation(2), 1e-12)
	require.InDelta(t, .4, m.Relaxation(6), 1e-12)
	require.InDelta(t, .2, m.Relaxation(20), 1e-12)
}

func TestRampHoldFall(t *testing.T) {
	m, err := New("rampHoldFall", map[string]any{
		"rampStartRelaxation": .2,
		"rampEndRelaxation":   1,
		"fallEndRelaxation":   0,
		"rampEndFraction":     .2,
		"fallStartFraction":   .6,
	}, 100)
	require.NoError(t, err)
	for _, test := range []struct {
		iter int
		want float64
	}{
		{0, .2}, {10, .6}, {20, 1}, {40, 1}, {60, 1}, {80, .5}, {100, 0}, {150, 0},
	} {
		got := m.Relaxation(test.iter)
		require.False(t, math.IsNaN(got))
		require.InDelta(t, test.want, got, 1e-12, "iteration %d", test.iter)
	}
}

func TestNewErrors(t *testing.T) {
	_, err := New("linear", nil, 10)
	require.ErrorContains(t, err, `unknown relaxation model "linear"`)
	_, err = New("adaptiveLinear", map[string]any{"relaxationStart": 2, "relaxationEnd": 0}, 10)
	require.ErrorContains(t, err, "relaxationStart")
	_, err = New("adaptiveLinear", map[string]any{"relaxationStart": 1, "relaxationEnd": 0, "speed": 1}, 10)
	require.Error(t, err)
	_, err = New("adaptiveLinear", map[string]any{"relaxationStart": 1, "relaxationEnd": 0}, 0)
	require.Error(t, err)
	_, err = New("rampHoldFall", map[string]any{
		"rampStartRelaxation": 0, "rampEndRelaxation": 1, "fallEndRelaxation": 0,
		"rampEndFraction": .7, "fallStartFraction": .3,
	}, 10)
	require.ErrorContains(t, err, "fallStartFraction")
	require.Equal(t, []string{"adaptiveLinear", "rampHoldFall"}, Names())
}
