package portfolio

import (
	"math"
	"sort"

	"github.com/yanun0323/errors"

	"main/pkg/exception"
)

// Strategy is one allocation candidate.
type Strategy struct {
	Name           string
	ExpectedReturn float64
}

// OptimizerConfig tunes the mean-CVaR objective
// -w·r + riskAversion * sqrt(w' Σ w), with Σ built from the
// correlation matrix at a uniform base volatility.
type OptimizerConfig struct {
	RiskAversion float64 `json:"riskAversion"`
	BaseVol      float64 `json:"baseVol"`
	MaxWeight    float64 `json:"maxWeight"`
}

// DefaultOptimizerConfig returns the standard tuning.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{RiskAversion: 2.5, BaseVol: 0.20, MaxWeight: 0.25}
}

// Optimizer allocates weights across strategies subject to full
// investment (Σw = 1), a target portfolio return (w·r = target), and a
// per-strategy cap (0 <= w <= MaxWeight).
type Optimizer struct {
	strategies []Strategy
	cov        [][]float64
	cfg        OptimizerConfig
}

// NewOptimizer builds an optimizer from strategies and their
// correlation matrix. Zero config fields fall back to defaults.
func NewOptimizer(strategies []Strategy, corr [][]float64, cfg OptimizerConfig) (*Optimizer, error) {
	n := len(strategies)
	if n == 0 {
		return nil, exception.ErrPortfolioNoStrategies
	}
	if len(corr) != n {
		return nil, errors.Wrapf(exception.ErrPortfolioInvalidInput, "correlation matrix %dx? for %d strategies", len(corr), n)
	}
	for i := range corr {
		if len(corr[i]) != n {
			return nil, errors.Wrapf(exception.ErrPortfolioInvalidInput, "correlation row %d has %d columns", i, len(corr[i]))
		}
	}

	def := DefaultOptimizerConfig()
	if cfg.RiskAversion == 0 {
		cfg.RiskAversion = def.RiskAversion
	}
	if cfg.BaseVol == 0 {
		cfg.BaseVol = def.BaseVol
	}
	if cfg.MaxWeight == 0 {
		cfg.MaxWeight = def.MaxWeight
	}

	cov := make([][]float64, n)
	v2 := cfg.BaseVol * cfg.BaseVol
	for i := range cov {
		cov[i] = make([]float64, n)
		for j := range cov[i] {
			cov[i][j] = v2 * corr[i][j]
		}
	}
	return &Optimizer{strategies: strategies, cov: cov, cfg: cfg}, nil
}

// Allocate solves for the weight vector hitting the target return.
// Infeasible targets are rejected up front rather than returned as a
// near-miss.
func (o *Optimizer) Allocate(targetReturn float64) ([]float64, error) {
	n := len(o.strategies)
	if float64(n)*o.cfg.MaxWeight < 1-1e-12 {
		return nil, errors.Wrapf(exception.ErrPortfolioInfeasible, "%d strategies cannot sum to 1 under cap %.2f", n, o.cfg.MaxWeight)
	}

	returns := make([]float64, n)
	for i, s := range o.strategies {
		returns[i] = s.ExpectedReturn
	}
	lo, hi := o.attainableRange(returns)
	if targetReturn < lo-1e-9 || targetReturn > hi+1e-9 {
		return nil, errors.Wrapf(exception.ErrPortfolioInfeasible, "target %.4f outside attainable [%.4f, %.4f]", targetReturn, lo, hi)
	}

	return o.solve(returns, targetReturn)
}

// attainableRange computes the min and max portfolio return reachable
// under Σw = 1 and the weight cap: fill the cap greedily from the worst
// or best returns.
func (o *Optimizer) attainableRange(returns []float64) (float64, float64) {
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)

	extreme := func(rs []float64) float64 {
		total, budget := 0.0, 1.0
		for _, r := range rs {
			w := math.Min(o.cfg.MaxWeight, budget)
			total += w * r
			budget -= w
			if budget <= 0 {
				break
			}
		}
		return total
	}

	lo := extreme(sorted)
	reversed := make([]float64, len(sorted))
	for i, r := range sorted {
		reversed[len(sorted)-1-i] = r
	}
	hi := extreme(reversed)
	return lo, hi
}

// solve runs a projected augmented-Lagrangian descent: the two equality
// constraints enter the objective as penalized multipliers while the
// box constraint is enforced by projection after every gradient step.
func (o *Optimizer) solve(returns []float64, target float64) ([]float64, error) {
	const (
		outerIters = 60
		innerIters = 400
		tol        = 1e-7
	)

	n := len(returns)
	w := make([]float64, n)
	for i := range w {
		w[i] = math.Min(1/float64(n), o.cfg.MaxWeight)
	}

	var mu1, mu2 float64
	rho := 10.0

	cSum := func(w []float64) float64 { return sum(w) - 1 }
	cRet := func(w []float64) float64 { return dot(w, returns) - target }

	for outer := 0; outer < outerIters; outer++ {
		step := 0.01
		for inner := 0; inner < innerIters; inner++ {
			grad := o.gradient(w, returns, mu1, mu2, rho, target)
			next := make([]float64, n)
			for i := range w {
				next[i] = clamp(w[i]-step*grad[i], 0, o.cfg.MaxWeight)
			}
			if o.lagrangian(next, returns, mu1, mu2, rho, target) <= o.lagrangian(w, returns, mu1, mu2, rho, target) {
				w = next
			} else {
				step /= 2
				if step < 1e-12 {
					break
				}
			}
		}

		c1, c2 := cSum(w), cRet(w)
		if math.Abs(c1) < tol && math.Abs(c2) < tol {
			return w, nil
		}
		mu1 += rho * c1
		mu2 += rho * c2
		rho *= 1.5
	}

	c1, c2 := cSum(w), cRet(w)
	return nil, errors.Wrapf(exception.ErrPortfolioDidNotConverge, "residuals sum=%.2e ret=%.2e", c1, c2)
}

func (o *Optimizer) objective(w, returns []float64) float64 {
	return -dot(w, returns) + o.cfg.RiskAversion*math.Sqrt(o.quadForm(w))
}

func (o *Optimizer) lagrangian(w, returns []float64, mu1, mu2, rho, target float64) float64 {
	c1 := sum(w) - 1
	c2 := dot(w, returns) - target
	return o.objective(w, returns) + mu1*c1 + mu2*c2 + 0.5*rho*(c1*c1+c2*c2)
}

func (o *Optimizer) gradient(w, returns []float64, mu1, mu2, rho, target float64) []float64 {
	n := len(w)
	c1 := sum(w) - 1
	c2 := dot(w, returns) - target

	sigmaW := make([]float64, n)
	for i := range o.cov {
		for j, c := range o.cov[i] {
			sigmaW[i] += c * w[j]
		}
	}
	vol := math.Sqrt(o.quadForm(w))

	grad := make([]float64, n)
	for i := range grad {
		grad[i] = -returns[i] + mu1 + mu2*returns[i] + rho*(c1+c2*returns[i])
		if vol > 1e-12 {
			grad[i] += o.cfg.RiskAversion * sigmaW[i] / vol
		}
	}
	return grad
}

func (o *Optimizer) quadForm(w []float64) float64 {
	var q float64
	for i := range o.cov {
		for j, c := range o.cov[i] {
			q += w[i] * c * w[j]
		}
	}
	return q
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
