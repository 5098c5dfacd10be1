package analytics

import (
	"math"

	"github.com/statarb/engine/internal/model"
)

// ADFTest runs an Augmented Dickey-Fuller test (constant, no trend) on
// series with automatic lag selection by AIC, mirroring
// statsmodels.tsa.adfuller(series, autolag='AIC') as used by
// original_source/BackEnd/app/analytics.py's StationarityTester. Critical
// values are the standard MacKinnon asymptotic values for the
// constant-only case; the p-value is a piecewise-linear approximation
// against that same table rather than the full MacKinnon response
// surface, which is an acceptable simplification for an advisory
// stationarity signal, not a standalone statistics package. No other
// component calls ADFTest: its result is not part of the analytics
// snapshot and no alert rule reads it.
func ADFTest(series []float64, significance float64) model.StationarityResult {
	if significance <= 0 {
		significance = DefaultSignificance
	}
	if len(series) < 12 {
		return model.StationarityResult{
			ADFStatistic:   0,
			PValue:         1,
			Stationary:     false,
			CriticalValues: map[string]float64{},
			Error:          "insufficient data: need at least 12 points for ADF test",
		}
	}

	n := len(series)
	maxLag := schwertMaxLag(n)

	dy := diff(series)

	bestAIC := math.Inf(1)
	bestStat := 0.0
	bestOK := false

	for lag := 0; lag <= maxLag; lag++ {
		stat, aic, ok := adfRegression(series, dy, lag)
		if !ok {
			continue
		}
		if aic < bestAIC {
			bestAIC = aic
			bestStat = stat
			bestOK = true
		}
	}

	if !bestOK || math.IsNaN(bestStat) || math.IsInf(bestStat, 0) {
		return model.StationarityResult{
			ADFStatistic:   0,
			PValue:         1,
			Stationary:     false,
			CriticalValues: map[string]float64{},
			Error:          "ADF regression failed to converge",
		}
	}

	cv := map[string]float64{"1%": -3.430, "5%": -2.861, "10%": -2.567}
	pValue := approximatePValue(bestStat, cv)

	return model.StationarityResult{
		ADFStatistic:   bestStat,
		PValue:         pValue,
		Stationary:     pValue < significance,
		CriticalValues: cv,
	}
}

// schwertMaxLag is the standard default lag-search ceiling used by
// autolag='AIC': floor(12*(n/100)^0.25).
func schwertMaxLag(n int) int {
	lag := int(12 * math.Pow(float64(n)/100.0, 0.25))
	if lag < 0 {
		lag = 0
	}
	if lag > n/2-2 {
		lag = n/2 - 2
	}
	if lag < 0 {
		lag = 0
	}
	return lag
}

func diff(xs []float64) []float64 {
	if len(xs) < 2 {
		return nil
	}
	out := make([]float64, len(xs)-1)
	for i := 1; i < len(xs); i++ {
		out[i-1] = xs[i] - xs[i-1]
	}
	return out
}

// adfRegression fits dy[t] = a + gamma*y[t-1] + sum(delta_i*dy[t-1-i])
// for i=0..lag-1, using observations where all regressors are defined.
// Returns the t-statistic on gamma, the regression's AIC, and whether
// the fit was well-conditioned.
func adfRegression(levels, dy []float64, lag int) (tStat float64, aic float64, ok bool) {
	start := lag + 1 // first usable index into dy (0-based), need dy[t-1-i] for i<lag
	nobs := len(dy) - start
	if nobs < lag+3 {
		return 0, 0, false
	}

	k := 2 + lag // intercept, y_{t-1}, lag deltas
	X := make([][]float64, nobs)
	Y := make([]float64, nobs)
	for row := 0; row < nobs; row++ {
		t := start + row // index into dy
		xs := make([]float64, k)
		xs[0] = 1
		xs[1] = levels[t] // y_{t-1} relative to dy[t] = levels[t+1]-levels[t]
		for i := 0; i < lag; i++ {
			xs[2+i] = dy[t-1-i]
		}
		X[row] = xs
		Y[row] = dy[t]
	}

	beta, covDiag, rss, ok := olsFit(X, Y)
	if !ok {
		return 0, 0, false
	}

	gamma := beta[1]
	sigma2 := rss / float64(nobs-k)
	if sigma2 <= 0 {
		return 0, 0, false
	}
	se := math.Sqrt(sigma2 * covDiag[1])
	if se == 0 {
		return 0, 0, false
	}
	tStat = gamma / se
	aic = float64(nobs)*math.Log(rss/float64(nobs)) + 2*float64(k)
	return tStat, aic, true
}

// olsFit solves the normal equations (X'X) beta = X'Y via Gauss-Jordan
// elimination and returns beta, the diagonal of (X'X)^-1 (for standard
// errors), and the residual sum of squares. X is nobs x k.
func olsFit(X [][]float64, Y []float64) (beta []float64, invDiag []float64, rss float64, ok bool) {
	n := len(X)
	if n == 0 {
		return nil, nil, 0, false
	}
	k := len(X[0])

	xtx := make([][]float64, k)
	xty := make([]float64, k)
	for i := 0; i < k; i++ {
		xtx[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			var s float64
			for r := 0; r < n; r++ {
				s += X[r][i] * X[r][j]
			}
			xtx[i][j] = s
		}
		var sy float64
		for r := 0; r < n; r++ {
			sy += X[r][i] * Y[r]
		}
		xty[i] = sy
	}

	inv, ok := invert(xtx)
	if !ok {
		return nil, nil, 0, false
	}

	beta = make([]float64, k)
	for i := 0; i < k; i++ {
		var s float64
		for j := 0; j < k; j++ {
			s += inv[i][j] * xty[j]
		}
		beta[i] = s
	}

	rss = 0
	for r := 0; r < n; r++ {
		var pred float64
		for i := 0; i < k; i++ {
			pred += X[r][i] * beta[i]
		}
		resid := Y[r] - pred
		rss += resid * resid
	}

	invDiag = make([]float64, k)
	for i := 0; i < k; i++ {
		invDiag[i] = inv[i][i]
	}
	return beta, invDiag, rss, true
}

// invert computes the inverse of a small square matrix via Gauss-Jordan
// elimination with partial pivoting. k is 2 + the candidate lag, and
// every lag up to schwertMaxLag(n) is fitted, so k is at most 12 for a
// 60-point series.
func invert(m [][]float64) ([][]float64, bool) {
	k := len(m)
	aug := make([][]float64, k)
	for i := 0; i < k; i++ {
		aug[i] = make([]float64, 2*k)
		copy(aug[i], m[i])
		aug[i][k+i] = 1
	}

	for col := 0; col < k; col++ {
		pivot := col
		maxAbs := math.Abs(aug[col][col])
		for r := col + 1; r < k; r++ {
			if math.Abs(aug[r][col]) > maxAbs {
				pivot = r
				maxAbs = math.Abs(aug[r][col])
			}
		}
		if maxAbs < 1e-12 {
			return nil, false
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pv := aug[col][col]
		for c := 0; c < 2*k; c++ {
			aug[col][c] /= pv
		}
		for r := 0; r < k; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for c := 0; c < 2*k; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}

	inv := make([][]float64, k)
	for i := 0; i < k; i++ {
		inv[i] = append([]float64{}, aug[i][k:]...)
	}
	return inv, true
}

// approximatePValue piecewise-linearly interpolates a p-value against the
// 1%/5%/10% critical-value table plus two upper anchors (0 -> 0.90,
// 2 -> 0.99). Beyond the ends it returns the constants 0.005 (below the
// 1% value) and 0.995 (at or above 2).
func approximatePValue(stat float64, cv map[string]float64) float64 {
	type point struct {
		stat, p float64
	}
	points := []point{
		{cv["1%"], 0.01},
		{cv["5%"], 0.05},
		{cv["10%"], 0.10},
		{0, 0.90},
		{2, 0.99},
	}

	if stat <= points[0].stat {
		return 0.005
	}
	if stat >= points[len(points)-1].stat {
		return 0.995
	}
	for i := 0; i < len(points)-1; i++ {
		lo, hi := points[i], points[i+1]
		if stat >= lo.stat && stat <= hi.stat {
			frac := (stat - lo.stat) / (hi.stat - lo.stat)
			return lo.p + frac*(hi.p-lo.p)
		}
	}
	return 0.5
}
