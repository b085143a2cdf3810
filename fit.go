/*
 *  fit.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

import (
	"math"
	"runtime"
	"sync"

	progressbar "github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// FitResult is the per-gene outcome of the weighted linear fit and the
// moderated contrast test. Produced once per contrast and immutable after.
type FitResult struct {
	Coef          []float64 // fitted coefficient per design column
	LogFC         float64   // contrast estimate
	AveExpr       float64   // mean log2-CPM across samples
	T             float64   // moderated t statistic
	PValue        float64   // raw p-value
	S2Post        float64   // shrinkage-adjusted residual variance
	StdevUnscaled float64
	DFTotal       float64
}

// FitConfig controls the linear-model stage
type FitConfig struct {
	// TreatLogFC tests coefficients against |effect| <= floor instead of 0
	TreatLogFC float64
	// Workers shards the per-gene fits; 0 means GOMAXPROCS. Sharding never
	// changes the result, only the wall time.
	Workers int
}

// FitContrast fits one weighted linear model per gene, computes the
// requested contrast, applies empirical-Bayes variance shrinkage and tests
// each gene against the minimum-effect-size floor. Deterministic given
// identical inputs.
func FitContrast(v *VoomResult, design *DesignMatrix, contrast *Contrast,
	cfg FitConfig, summary *RunSummary) ([]*FitResult, error) {

	if cfg.TreatLogFC < 0 {
		return nil, &ConfigurationError{Param: "treatlfc", Reason: "effect-size floor must be non-negative"}
	}
	nGenes, nSamples := v.LogCPM.Dims()
	n, p := design.X.Dims()
	if n != nSamples {
		return nil, &SchemaMismatchError{Table: "design",
			Reason: "design rows do not match the number of samples"}
	}
	df := float64(n - p)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > nGenes {
		workers = nGenes
	}

	log.Noticef("Fitting %d gene-wise weighted linear models (%d workers), contrast %s",
		nGenes, workers, contrast.Name)
	bar := progressbar.Default(int64(nGenes), "fit")

	results := make([]*FitResult, nGenes)
	s2 := make([]float64, nGenes)
	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once
	chunk := (nGenes + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, (w+1)*chunk
		if hi > nGenes {
			hi = nGenes
		}
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				res, rawVar, err := fitGene(v, design, contrast, i)
				if err != nil {
					errOnce.Do(func() { firstErr = err })
					return
				}
				results[i] = res
				s2[i] = rawVar
				_ = bar.Add(1)
			}
		}(lo, hi)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	nZeroVar := 0
	for _, v := range s2 {
		if v <= 0 {
			nZeroVar++
		}
	}
	if nZeroVar > 0 && summary != nil {
		summary.Warnf("%d genes with zero residual variance took the prior-only posterior variance", nZeroVar)
	}

	// Empirical-Bayes shrinkage across all genes
	post, priorDF, priorS2 := squeezeVar(s2, df)
	if math.IsInf(priorDF, 1) {
		log.Noticef("Variance prior: df = Inf, s0^2 = %.4g (complete shrinkage)", priorS2)
	} else {
		log.Noticef("Variance prior: df = %.2f, s0^2 = %.4g", priorDF, priorS2)
	}
	dfTotal := df + priorDF
	if dfTotal > MaxPriorDF {
		dfTotal = MaxPriorDF
	}
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dfTotal}

	for i, r := range results {
		r.S2Post = post[i]
		r.DFTotal = dfTotal
		se := r.StdevUnscaled * math.Sqrt(post[i])
		if se == 0 {
			r.T = 0
			r.PValue = 1
			continue
		}
		if cfg.TreatLogFC == 0 {
			r.T = r.LogFC / se
			r.PValue = 2 * tdist.Survival(math.Abs(r.T))
			continue
		}
		// treat-style test against the effect-size floor
		acoef := math.Abs(r.LogFC)
		tRight := (acoef - cfg.TreatLogFC) / se
		tLeft := (acoef + cfg.TreatLogFC) / se
		r.PValue = tdist.Survival(tRight) + tdist.Survival(tLeft)
		if r.PValue > 1 {
			r.PValue = 1
		}
		t := math.Max(tRight, 0)
		if r.LogFC < 0 {
			t = -t
		}
		r.T = t
	}

	return results, nil
}

// fitGene runs the weighted least-squares fit for one gene and evaluates the
// contrast estimate and its unscaled standard deviation.
func fitGene(v *VoomResult, design *DesignMatrix, contrast *Contrast, i int) (*FitResult, float64, error) {
	n, p := design.X.Dims()

	xw := mat.NewDense(n, p, nil)
	yw := mat.NewVecDense(n, nil)
	rowMean := 0.0
	for j := 0; j < n; j++ {
		sw := math.Sqrt(v.Weights.At(i, j))
		for k := 0; k < p; k++ {
			xw.Set(j, k, sw*design.X.At(j, k))
		}
		yw.SetVec(j, sw*v.LogCPM.At(i, j))
		rowMean += v.LogCPM.At(i, j)
	}
	rowMean /= float64(n)

	var qr mat.QR
	qr.Factorize(xw)
	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, yw); err != nil {
		return nil, 0, err
	}

	// Weighted residual sum of squares
	var fit mat.Dense
	fit.Mul(xw, &beta)
	rss := 0.0
	for j := 0; j < n; j++ {
		r := yw.AtVec(j) - fit.At(j, 0)
		rss += r * r
	}
	df := float64(n - p)
	rawVar := rss / df

	// Contrast estimate and c' (X'WX)^-1 c
	var xtx mat.Dense
	xtx.Mul(xw.T(), xw)
	var cov mat.Dense
	if err := cov.Inverse(&xtx); err != nil {
		return nil, 0, err
	}
	est, varC := 0.0, 0.0
	coef := make([]float64, p)
	for k := 0; k < p; k++ {
		coef[k] = beta.At(k, 0)
		est += contrast.Coef[k] * coef[k]
		for l := 0; l < p; l++ {
			varC += contrast.Coef[k] * cov.At(k, l) * contrast.Coef[l]
		}
	}

	return &FitResult{
		Coef:          coef,
		LogFC:         est,
		AveExpr:       rowMean,
		StdevUnscaled: math.Sqrt(varC),
	}, rawVar, nil
}
