// Package analytics implements the analytics engine (component E): OLS
// hedge ratio, spread series, rolling z-score, Pearson correlation,
// rolling mean/volatility, and ADF stationarity over aligned price
// histories. Every function is pure and takes immutable slices; "absent"
// results are communicated through an (value, ok) or an explicit Valid
// field rather than panics or sentinels, matching the source's
// insufficient-data contract (spec.md §4.E, grounded on
// original_source/BackEnd/app/analytics.py).
package analytics

import (
	"math"
	"time"

	"github.com/statarb/engine/internal/model"
)

const (
	DefaultZScoreWindow    = 20
	DefaultCorrelationWindow = 60
	DefaultSignificance    = 0.05
)

// HedgeRatio fits Y = alpha + beta*X by ordinary least squares (closed
// form normal equations) and returns beta. Returns 0 if the inputs are
// too short or mismatched in length.
func HedgeRatio(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumXX += x[i] * x[i]
	}
	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	beta := (nf*sumXY - sumX*sumY) / denom
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0
	}
	return beta
}

// RobustHedgeRatio fits Y = alpha + beta*X via iteratively reweighted
// least squares with Huber weights, the IRLS approximation of the
// source's statsmodels RLM call. Falls back to ordinary OLS as the
// starting point and runs a small fixed number of reweighting passes,
// which converges well within the system's bounded window sizes (<=60
// points).
func RobustHedgeRatio(x, y []float64) float64 {
	n := len(x)
	if n != len(y) || n < 2 {
		return 0
	}

	beta := HedgeRatio(x, y)
	alpha := mean(y) - beta*mean(x)

	const iterations = 5
	const huberK = 1.345
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}

	for iter := 0; iter < iterations; iter++ {
		resid := make([]float64, n)
		for i := 0; i < n; i++ {
			resid[i] = y[i] - (alpha + beta*x[i])
		}
		scale := madScale(resid)
		if scale == 0 {
			break
		}
		for i := 0; i < n; i++ {
			u := math.Abs(resid[i]) / scale
			if u <= huberK {
				weights[i] = 1
			} else {
				weights[i] = huberK / u
			}
		}

		var sw, swx, swy, swxy, swxx float64
		for i := 0; i < n; i++ {
			w := weights[i]
			sw += w
			swx += w * x[i]
			swy += w * y[i]
			swxy += w * x[i] * y[i]
			swxx += w * x[i] * x[i]
		}
		denom := sw*swxx - swx*swx
		if denom == 0 {
			break
		}
		newBeta := (sw*swxy - swx*swy) / denom
		newAlpha := (swy - newBeta*swx) / sw
		if math.IsNaN(newBeta) || math.IsInf(newBeta, 0) {
			break
		}
		beta, alpha = newBeta, newAlpha
	}
	return beta
}

func madScale(resid []float64) float64 {
	abs := make([]float64, len(resid))
	for i, r := range resid {
		abs[i] = math.Abs(r)
	}
	med := median(abs)
	return med / 0.6745
}

// Spread computes beta (via OLS or robust regression, selected by kind)
// and returns the elementwise residual series S = Y - beta*X.
func Spread(x, y []float64, kind model.RegressionKind) (spread []float64, beta float64) {
	if kind == model.RegressionRobust {
		beta = RobustHedgeRatio(x, y)
	} else {
		beta = HedgeRatio(x, y)
	}
	n := len(x)
	if n != len(y) {
		n = 0
	}
	spread = make([]float64, n)
	for i := 0; i < n; i++ {
		spread[i] = y[i] - beta*x[i]
	}
	return spread, beta
}

// ZScore returns the latest rolling z-score of series over the last
// window values: (last - mean) / sample-stddev (Bessel-corrected,
// divisor window-1). Returns ok=false if series is shorter than window.
// sigma == 0 yields z == 0 rather than a division by zero.
func ZScore(series []float64, window int) (z float64, ok bool) {
	if len(series) < window {
		return 0, false
	}
	recent := series[len(series)-window:]
	mu := mean(recent)
	sigma := sampleStdDev(recent, mu)
	if sigma == 0 {
		return 0, true
	}
	last := recent[len(recent)-1]
	z = (last - mu) / sigma
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 0, false
	}
	return z, true
}

// Correlation returns the Pearson correlation of the last window
// elements of a and b. Returns ok=false if either is shorter than
// window.
func Correlation(a, b []float64, window int) (rho float64, ok bool) {
	if len(a) < window || len(b) < window {
		return 0, false
	}
	ra := a[len(a)-window:]
	rb := b[len(b)-window:]

	ma, mb := mean(ra), mean(rb)
	var cov, varA, varB float64
	for i := range ra {
		da := ra[i] - ma
		db := rb[i] - mb
		cov += da * db
		varA += da * da
		varB += db * db
	}
	denom := math.Sqrt(varA * varB)
	if denom == 0 {
		return 0, true
	}
	rho = cov / denom
	if math.IsNaN(rho) || math.IsInf(rho, 0) {
		return 0, false
	}
	return rho, true
}

// RollingMean returns the simple mean of the last window values of
// series. Returns ok=false if series is shorter than window.
func RollingMean(series []float64, window int) (float64, bool) {
	if len(series) < window {
		return 0, false
	}
	return mean(series[len(series)-window:]), true
}

// RollingVolatility returns the sample standard deviation (Bessel-
// corrected) of the last window values of series. Returns ok=false if
// series is shorter than window.
func RollingVolatility(series []float64, window int) (float64, bool) {
	if len(series) < window {
		return 0, false
	}
	recent := series[len(series)-window:]
	return sampleStdDev(recent, mean(recent)), true
}

// Analyze is the spread-analysis entry point: if either series is
// shorter than window, returns Valid=false. Otherwise computes spread
// and beta, then the latest z-score, and packages the result with the
// symmetric +/-threshold band.
func Analyze(basePrices, hedgePrices []float64, threshold float64, kind model.RegressionKind, window int, now time.Time) model.SpreadResult {
	if len(basePrices) < window || len(hedgePrices) < window {
		return model.SpreadResult{Valid: false}
	}
	spread, _ := Spread(hedgePrices, basePrices, kind)
	z, zok := ZScore(spread, window)
	if !zok {
		return model.SpreadResult{Valid: false}
	}
	return model.SpreadResult{
		Valid:          true,
		Instant:        now,
		TimeString:     now.Format("15:04:05"),
		Spread:         spread[len(spread)-1],
		ZScore:         z,
		UpperThreshold: threshold,
		LowerThreshold: -threshold,
	}
}

// Summary computes, for each symbol in symbols, the price, absolute
// change and pct change between the caller-supplied latest and previous
// prices. Symbols absent from latest are skipped; a symbol absent from
// previous is compared against 0.
func Summary(latest, previous map[string]float64, symbols []string) []model.SymbolChange {
	out := make([]model.SymbolChange, 0, len(symbols))
	for _, sym := range symbols {
		cur, ok := latest[sym]
		if !ok {
			continue
		}
		prev := previous[sym]
		change := cur - prev
		pct := 0.0
		if prev != 0 {
			pct = change / prev * 100
		}
		out = append(out, model.SymbolChange{Symbol: sym, Price: cur, AbsoluteChange: change, PctChange: pct})
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStdDev computes the Bessel-corrected (divisor n-1) sample
// standard deviation of xs around mu. Returns 0 for n<2.
func sampleStdDev(xs []float64, mu float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mu
		sumSq += d * d
	}
	variance := sumSq / float64(n-1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := append([]float64{}, xs...)
	insertionSort(sorted)
	mid := n / 2
	if n%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// insertionSort is used instead of sort.Float64s for the small (<=60
// element) windows this engine ever sees; avoids pulling in sort's
// interface overhead for what is always a tiny slice.
func insertionSort(xs []float64) {
	for i := 1; i < len(xs); i++ {
		v := xs[i]
		j := i - 1
		for j >= 0 && xs[j] > v {
			xs[j+1] = xs[j]
			j--
		}
		xs[j+1] = v
	}
}
