/*
 *  voom.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// VoomResult holds the log2-CPM abundance estimates and the per-observation
// precision weights derived from the empirical mean-variance trend.
type VoomResult struct {
	LogCPM  *mat.Dense
	Weights *mat.Dense
	// TrendX and TrendY sample the fitted sqrt-sd trend over mean log2 count,
	// kept for diagnostics
	TrendX, TrendY []float64
}

// Voom transforms counts into log2-CPM and computes precision weights.
// A preliminary unweighted fit per gene against the design yields residual
// standard deviations; a lowess trend of sqrt-sd against mean log2 count is
// interpolated at every observation's fitted abundance and inverted into a
// weight. Weights are strictly positive.
//
// "voom: precision weights unlock linear model analysis tools for RNA-seq
// read counts", Law et al., Genome Biology 2014.
func Voom(ec *ExpressionContainer, design *DesignMatrix, summary *RunSummary) (*VoomResult, error) {
	nGenes, nSamples := ec.Dims()
	n, p := design.X.Dims()
	if n != nSamples {
		return nil, &SchemaMismatchError{Table: "design",
			Reason: "design rows do not match the number of samples"}
	}
	if nSamples-p < 1 {
		return nil, &ConfigurationError{Param: "design",
			Reason: "no residual degrees of freedom left for variance estimation"}
	}

	y := ec.LogCPM()
	eff := ec.EffectiveLibSize()
	logLib := make([]float64, nSamples)
	for j, e := range eff {
		logLib[j] = math.Log2(e + 1)
	}
	meanLogLib := meanf(logLib)

	// Preliminary unweighted fit, all genes against the shared design
	var qr mat.QR
	qr.Factorize(design.X)
	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, y.T()); err != nil {
		return nil, err
	}
	var fittedT mat.Dense
	fittedT.Mul(design.X, &beta) // samples x genes fitted log2-CPM

	df := float64(nSamples - p)
	sx := make([]float64, nGenes) // mean log2 count
	sy := make([]float64, nGenes) // sqrt of residual sd
	degenerate := make([]bool, nGenes)
	for i := 0; i < nGenes; i++ {
		rss, rowMean := 0.0, 0.0
		for j := 0; j < nSamples; j++ {
			r := y.At(i, j) - fittedT.At(j, i)
			rss += r * r
			rowMean += y.At(i, j)
		}
		sd := math.Sqrt(rss / df)
		sx[i] = rowMean/float64(nSamples) + meanLogLib - math.Log2(PerMillion)
		sy[i] = math.Sqrt(sd)
		if sd == 0 {
			degenerate[i] = true
		}
	}

	// Fit the mean-variance trend on the non-degenerate genes
	var tx, ty []float64
	for i := 0; i < nGenes; i++ {
		if !degenerate[i] {
			tx = append(tx, sx[i])
			ty = append(ty, sy[i])
		}
	}
	if nd := nGenes - len(tx); nd > 0 && summary != nil {
		summary.Warnf("%d genes with zero residual variance excluded from the mean-variance trend and floor-weighted", nd)
	}
	if len(tx) < 2 {
		return nil, &ConfigurationError{Param: "voom",
			Reason: "fewer than two genes with positive residual variance; filter settings are too loose or the data degenerate"}
	}
	trend := lowess(tx, ty, LowessSpan)
	interp := newLinearInterp(tx, trend)

	// Invert the interpolated trend into per-observation weights
	weights := mat.NewDense(nGenes, nSamples, nil)
	for i := 0; i < nGenes; i++ {
		for j := 0; j < nSamples; j++ {
			fittedCount := fittedT.At(j, i) + logLib[j] - math.Log2(PerMillion)
			t := interp.at(fittedCount)
			if t < MinTrendValue {
				t = MinTrendValue
			}
			w := 1 / (t * t * t * t)
			weights.Set(i, j, w)
		}
	}

	return &VoomResult{LogCPM: y, Weights: weights, TrendX: interp.xs, TrendY: interp.ys}, nil
}

// lowess fits a locally weighted linear regression of y on x with tricube
// weights over the given span, returning the fitted value at every x in the
// input order.
func lowess(x, y []float64, span float64) []float64 {
	n := len(x)
	q := int(math.Ceil(span * float64(n)))
	if q < 2 {
		q = 2
	}
	if q > n {
		q = n
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return x[order[a]] < x[order[b]] })
	xs := make([]float64, n)
	ys := make([]float64, n)
	for r, i := range order {
		xs[r] = x[i]
		ys[r] = y[i]
	}

	fitted := make([]float64, n)
	lo := 0
	for r := 0; r < n; r++ {
		// Slide the window of q nearest neighbours along the sorted xs
		for lo+q < n && xs[r]-xs[lo] > xs[lo+q]-xs[r] {
			lo++
		}
		hi := lo + q - 1
		h := math.Max(xs[r]-xs[lo], xs[hi]-xs[r])

		var sw, swx, swy, swxx, swxy float64
		for k := lo; k <= hi; k++ {
			w := 1.0
			if h > 0 {
				d := math.Abs(xs[k]-xs[r]) / h
				if d >= 1 {
					continue
				}
				c := 1 - d*d*d
				w = c * c * c
			}
			sw += w
			swx += w * xs[k]
			swy += w * ys[k]
			swxx += w * xs[k] * xs[k]
			swxy += w * xs[k] * ys[k]
		}
		den := sw*swxx - swx*swx
		if sw == 0 {
			fitted[r] = ys[r]
		} else if den == 0 {
			fitted[r] = swy / sw
		} else {
			slope := (sw*swxy - swx*swy) / den
			icept := (swy - slope*swx) / sw
			fitted[r] = icept + slope*xs[r]
		}
	}

	out := make([]float64, n)
	for r, i := range order {
		out[i] = fitted[r]
	}
	return out
}

// linearInterp is a piecewise-linear interpolator clamped to its end values
type linearInterp struct {
	xs, ys []float64
}

func newLinearInterp(x, y []float64) *linearInterp {
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return x[order[a]] < x[order[b]] })
	li := &linearInterp{
		xs: make([]float64, 0, len(x)),
		ys: make([]float64, 0, len(y)),
	}
	for _, i := range order {
		// Collapse duplicate abscissae, keeping the first
		if n := len(li.xs); n > 0 && li.xs[n-1] == x[i] {
			continue
		}
		li.xs = append(li.xs, x[i])
		li.ys = append(li.ys, y[i])
	}
	return li
}

func (r *linearInterp) at(x float64) float64 {
	n := len(r.xs)
	if x <= r.xs[0] {
		return r.ys[0]
	}
	if x >= r.xs[n-1] {
		return r.ys[n-1]
	}
	k := sort.SearchFloat64s(r.xs, x)
	if r.xs[k] == x {
		return r.ys[k]
	}
	x0, x1 := r.xs[k-1], r.xs[k]
	y0, y1 := r.ys[k-1], r.ys[k]
	return y0 + (y1-y0)*(x-x0)/(x1-x0)
}
