package risk

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PORTFOLIO METRICS
// ═══════════════════════════════════════════════════════════════════════════════

// Metrics summarizes portfolio risk, derived from the position set and
// the portfolio value history
type Metrics struct {
	Volatility         float64 `json:"volatility"`          // stddev of periodic returns
	SharpeRatio        float64 `json:"sharpe_ratio"`        // mean return / volatility
	MaxDrawdown        float64 `json:"max_drawdown"`        // worst peak-to-trough
	CurrentDrawdown    float64 `json:"current_drawdown"`    // distance from peak now
	ValueAtRisk        float64 `json:"value_at_risk"`       // empirical quantile of returns
	Concentration      float64 `json:"concentration"`       // largest single-position weight
	CorrelatedExposure float64 `json:"correlated_exposure"` // largest same-category weight sum
}

// ComputeMetrics derives current portfolio risk metrics
func (m *Manager) ComputeMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := Metrics{MaxDrawdown: m.maxDraw}

	returns := periodicReturns(m.history)
	if len(returns) > 1 {
		mean, std := meanStddev(returns)
		out.Volatility = std
		if std > 0 {
			out.SharpeRatio = mean / std
		}
		out.ValueAtRisk = valueAtRisk(returns, m.limits.VaRConfidence)
	}

	if m.peak > 0 && len(m.history) > 0 {
		current := m.history[len(m.history)-1]
		out.CurrentDrawdown = (m.peak - current) / m.peak
	}

	total := m.portfolioValueLocked()
	if total.IsPositive() {
		byCategory := make(map[string]decimal.Decimal)
		for _, pos := range m.positions {
			weight := pos.Value().Div(total)
			if w, _ := weight.Float64(); w > out.Concentration {
				out.Concentration = w
			}
			byCategory[pos.Category] = byCategory[pos.Category].Add(weight)
		}
		for cat, sum := range byCategory {
			if cat == "" {
				continue
			}
			if w, _ := sum.Float64(); w > out.CorrelatedExposure {
				out.CorrelatedExposure = w
			}
		}
	}

	return out
}

// periodicReturns converts a value series into simple returns
func periodicReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			returns = append(returns, values[i]/values[i-1]-1)
		}
	}
	return returns
}

func meanStddev(xs []float64) (mean, std float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	variance /= float64(len(xs) - 1)
	return mean, math.Sqrt(variance)
}

// valueAtRisk is the loss at the (1-confidence) empirical quantile,
// reported as a positive fraction
func valueAtRisk(returns []float64, confidence float64) float64 {
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.95
	}
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(math.Floor(float64(len(sorted)) * (1 - confidence)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	v := sorted[idx]
	if v < 0 {
		return -v
	}
	return 0
}
