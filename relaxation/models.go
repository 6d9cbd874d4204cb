package relaxation

import (
	"github.com/soypat/cvmesh/internal/coeffs"
)

type adaptiveLinearCoeffs struct {
	RelaxationStart float64 `mapstructure:"relaxationStart"`
	RelaxationEnd   float64 `mapstructure:"relaxationEnd"`
}

// adaptiveLinear falls linearly from relaxationStart to relaxationEnd over
// the run. Each step is taken from the previously returned value so skipped
// iterations are caught up in one step.
type adaptiveLinear struct {
	end      float64
	last     float64
	lastIter int
	maxIter  int
}

func newAdaptiveLinear(in map[string]any, maxIterations int) (Model, error) {
	var c adaptiveLinearCoeffs
	if err := coeffs.Decode(in, &c); err != nil {
		return nil, err
	}
	if err := coeffs.InRange("relaxationStart", c.RelaxationStart, 0, 1); err != nil {
		return nil, err
	}
	if err := coeffs.InRange("relaxationEnd", c.RelaxationEnd, 0, 1); err != nil {
		return nil, err
	}
	return &adaptiveLinear{end: c.RelaxationEnd, last: c.RelaxationStart, maxIter: maxIterations}, nil
}

func (m *adaptiveLinear) Relaxation(iter int) float64 {
	if iter <= m.lastIter {
		return m.last
	}
	if iter >= m.maxIter {
		m.last, m.lastIter = m.end, iter
		return m.end
	}
	m.last -= (m.last - m.end) * float64(iter-m.lastIter) / float64(m.maxIter-m.lastIter)
	m.lastIter = iter
	return m.last
}

type rampHoldFallCoeffs struct {
	RampStartRelaxation float64 `mapstructure:"rampStartRelaxation"`
	RampEndRelaxation   float64 `mapstructure:"rampEndRelaxation"`
	FallEndRelaxation   float64 `mapstructure:"fallEndRelaxation"`
	// RampEndFraction and FallStartFraction are fractions of the run.
	RampEndFraction   float64 `mapstructure:"rampEndFraction"`
	FallStartFraction float64 `mapstructure:"fallStartFraction"`
}

// rampHoldFall ramps linearly up to rampEndRelaxation, holds it and falls
// linearly to fallEndRelaxation at the end of the run.
type rampHoldFall struct {
	c       rampHoldFallCoeffs
	maxIter int
}

func newRampHoldFall(in map[string]any, maxIterations int) (Model, error) {
	var c rampHoldFallCoeffs
	if err := coeffs.Decode(in, &c); err != nil {
		return nil, err
	}
	for key, v := range map[string]float64{
		"rampStartRelaxation": c.RampStartRelaxation,
		"rampEndRelaxation":   c.RampEndRelaxation,
		"fallEndRelaxation":   c.FallEndRelaxation,
		"rampEndFraction":     c.RampEndFraction,
		"fallStartFraction":   c.FallStartFraction,
	} {
		if err := coeffs.InRange(key, v, 0, 1); err != nil {
			return nil, err
		}
	}
	if c.FallStartFraction < c.RampEndFraction {
		return nil, coeffs.InRange("fallStartFraction", c.FallStartFraction, c.RampEndFraction, 1)
	}
	return &rampHoldFall{c: c, maxIter: maxIterations}, nil
}

func (m *rampHoldFall) Relaxation(iter int) float64 {
	t := float64(iter) / float64(m.maxIter)
	c := m.c
	switch {
	case t < c.RampEndFraction:
		return c.RampStartRelaxation + (c.RampEndRelaxation-c.RampStartRelaxation)*t/c.RampEndFraction
	case t < c.FallStartFraction:
		return c.RampEndRelaxation
	case t >= 1:
		return c.FallEndRelaxation
	}
	return c.RampEndRelaxation + (c.FallEndRelaxation-c.RampEndRelaxation)*(t-c.FallStartFraction)/(1-c.FallStartFraction)
}
