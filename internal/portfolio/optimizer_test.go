package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/pricing"
	"main/pkg/exception"
)

func identity(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

func equalStrategies(n int, ret float64) []Strategy {
	out := make([]Strategy, n)
	for i := range out {
		out[i] = Strategy{Name: "s", ExpectedReturn: ret}
	}
	return out
}

func TestAllocateFourEqualStrategies(t *testing.T) {
	// under the 25% cap four strategies leave exactly one feasible
	// point: equal weights
	opt, err := NewOptimizer(equalStrategies(4, 0.15), identity(4), OptimizerConfig{})
	require.NoError(t, err)

	w, err := opt.Allocate(0.15)
	require.NoError(t, err)
	require.Len(t, w, 4)
	total := 0.0
	for _, wi := range w {
		assert.InDelta(t, 0.25, wi, 1e-3)
		total += wi
	}
	assert.InDelta(t, 1.0, total, 1e-6)
}

func TestAllocateSymmetricSpreadsWeight(t *testing.T) {
	opt, err := NewOptimizer(equalStrategies(6, 0.12), identity(6), OptimizerConfig{})
	require.NoError(t, err)

	w, err := opt.Allocate(0.12)
	require.NoError(t, err)

	total, ret := 0.0, 0.0
	for _, wi := range w {
		assert.GreaterOrEqual(t, wi, -1e-9)
		assert.LessOrEqual(t, wi, 0.25+1e-9)
		total += wi
		ret += wi * 0.12
	}
	assert.InDelta(t, 1.0, total, 1e-6)
	assert.InDelta(t, 0.12, ret, 1e-6)
}

func TestAllocateTooFewStrategies(t *testing.T) {
	// 3 strategies x 0.25 cap cannot sum to 1
	opt, err := NewOptimizer(equalStrategies(3, 0.15), identity(3), OptimizerConfig{})
	require.NoError(t, err)

	_, err = opt.Allocate(0.15)
	assert.ErrorIs(t, err, exception.ErrPortfolioInfeasible)
}

func TestAllocateUnattainableTarget(t *testing.T) {
	strategies := []Strategy{
		{Name: "a", ExpectedReturn: 0.08},
		{Name: "b", ExpectedReturn: 0.10},
		{Name: "c", ExpectedReturn: 0.12},
		{Name: "d", ExpectedReturn: 0.14},
		{Name: "e", ExpectedReturn: 0.16},
	}
	opt, err := NewOptimizer(strategies, identity(5), OptimizerConfig{})
	require.NoError(t, err)

	// best attainable is cap-weighted toward the top returns, well
	// below 0.30
	_, err = opt.Allocate(0.30)
	assert.ErrorIs(t, err, exception.ErrPortfolioInfeasible)

	_, err = opt.Allocate(0.01)
	assert.ErrorIs(t, err, exception.ErrPortfolioInfeasible)
}

func TestNewOptimizerValidation(t *testing.T) {
	_, err := NewOptimizer(nil, nil, OptimizerConfig{})
	assert.ErrorIs(t, err, exception.ErrPortfolioNoStrategies)

	_, err = NewOptimizer(equalStrategies(4, 0.1), identity(3), OptimizerConfig{})
	assert.ErrorIs(t, err, exception.ErrPortfolioInvalidInput)
}

func TestCondorGreeksNearDeltaNeutral(t *testing.T) {
	strikes := model.StrikeSet{
		ATMStrike: 45000,
		ShortCall: model.OptionQuote{Type: enum.OptionTypeCall, Strike: 45400},
		LongCall:  model.OptionQuote{Type: enum.OptionTypeCall, Strike: 45800},
		ShortPut:  model.OptionQuote{Type: enum.OptionTypePut, Strike: 44600},
		LongPut:   model.OptionQuote{Type: enum.OptionTypePut, Strike: 44200},
	}

	g, err := CondorGreeks(strikes, 25, 45000, 14.0/365, 0.03, 0.2)
	require.NoError(t, err)

	// a symmetric condor's call and put deltas largely offset
	assert.InDelta(t, 0, g.Delta, 0.1*25)
	// short premium: negative gamma, positive theta
	assert.Negative(t, g.Gamma)
	assert.Positive(t, g.Theta)
	assert.Negative(t, g.Vega)
}

func TestAggregate(t *testing.T) {
	a := pricing.Greeks{Delta: 1, Gamma: 0.1, Theta: -2, Vega: 3}
	b := pricing.Greeks{Delta: -0.5, Gamma: 0.2, Theta: 1, Vega: -1}
	got := Aggregate(a, b)
	assert.InDelta(t, 0.5, got.Delta, 1e-12)
	assert.InDelta(t, 0.3, got.Gamma, 1e-12)
	assert.InDelta(t, -1.0, got.Theta, 1e-12)
	assert.InDelta(t, 2.0, got.Vega, 1e-12)
}
