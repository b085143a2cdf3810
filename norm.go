/*
 *  norm.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

import (
	"math"

	"github.com/montanaflynn/stats"
)

// TMMNormFactors computes one multiplicative scale factor per sample by the
// trimmed mean of M-values method. Log-ratios of gene-wise abundance against
// a reference sample are trimmed on both the log-ratio and the absolute
// intensity scale, then averaged with inverse asymptotic-variance weights.
// The returned factors are rescaled so their geometric mean is 1, preserving
// the overall data scale.
//
// "A scaling normalization method for differential expression analysis of
// RNA-seq data", Robinson and Oshlack, Genome Biology 2010.
func TMMNormFactors(ec *ExpressionContainer) ([]float64, error) {
	nGenes, nSamples := ec.Dims()
	if nSamples == 1 {
		return []float64{1}, nil
	}

	refIdx, err := tmmRefIndex(ec)
	if err != nil {
		return nil, err
	}
	log.Noticef("TMM reference sample: %s", ec.Samples[refIdx].Name)

	factors := make([]float64, nSamples)
	for k := 0; k < nSamples; k++ {
		f, err := tmmFactor(ec, k, refIdx, nGenes)
		if err != nil {
			return nil, err
		}
		factors[k] = f
	}

	// Rescale so the geometric mean across samples is exactly 1
	gm := geomean(factors)
	for k := range factors {
		factors[k] /= gm
	}
	return factors, nil
}

// tmmRefIndex picks the sample whose upper quartile of scaled abundance is
// closest to the mean upper quartile, a robust stand-in for the sample
// nearest the geometric-mean library size.
func tmmRefIndex(ec *ExpressionContainer) (int, error) {
	_, nSamples := ec.Dims()
	nGenes, _ := ec.Dims()
	q75 := make([]float64, nSamples)
	for j := 0; j < nSamples; j++ {
		scaled := make([]float64, 0, nGenes)
		for i := 0; i < nGenes; i++ {
			scaled = append(scaled, ec.Count(i, j)/ec.LibSize[j])
		}
		q, err := stats.Percentile(stats.Float64Data(scaled), 75)
		if err != nil {
			return 0, err
		}
		q75[j] = q
	}
	meanQ75 := meanf(q75)

	ref := 0
	best := math.Abs(q75[0] - meanQ75)
	for j := 1; j < nSamples; j++ {
		if d := math.Abs(q75[j] - meanQ75); d < best {
			best = d
			ref = j
		}
	}
	return ref, nil
}

// tmmFactor computes the TMM factor of sample k against the reference
func tmmFactor(ec *ExpressionContainer, k, refIdx, nGenes int) (float64, error) {
	if k == refIdx {
		return 1, nil
	}
	nAlt, nRef := ec.LibSize[k], ec.LibSize[refIdx]

	// A sample identical to the reference yields factor 1 exactly
	identical := true
	for i := 0; i < nGenes; i++ {
		if ec.Count(i, k) != ec.Count(i, refIdx) {
			identical = false
			break
		}
	}
	if identical {
		return 1, nil
	}

	var logRat, logInt, asmVar []float64
	for i := 0; i < nGenes; i++ {
		alt, ref := ec.Count(i, k), ec.Count(i, refIdx)
		m := math.Log2((alt / nAlt) / (ref / nRef))
		a := math.Log2(alt / nAlt * ref / nRef) / 2
		if math.IsInf(m, 0) || math.IsNaN(m) || math.IsInf(a, 0) || math.IsNaN(a) {
			continue
		}
		logRat = append(logRat, m)
		logInt = append(logInt, a)
		asmVar = append(asmVar, (nAlt-alt)/(nAlt*alt)+(nRef-ref)/(nRef*ref))
	}
	if len(logRat) == 0 {
		return 0, &DegenerateNormalizationError{Sample: ec.Samples[k].Name}
	}

	// Double trim by rank: 30% on each M tail, 5% on each A tail
	n := float64(len(logRat))
	minRat := math.Floor(n * LogRatioTrim)
	maxRat := n - minRat - 1
	minInt := math.Floor(n * AbsIntensityTrim)
	maxInt := n - minInt - 1
	rRat := rankf(logRat)
	rInt := rankf(logInt)

	var num, den float64
	for i := range logRat {
		fr, fi := float64(rRat[i]), float64(rInt[i])
		if fr < minRat || fr > maxRat || fi < minInt || fi > maxInt {
			continue
		}
		num += logRat[i] / asmVar[i]
		den += 1 / asmVar[i]
	}
	if den == 0 {
		return 0, &DegenerateNormalizationError{Sample: ec.Samples[k].Name}
	}
	return math.Pow(2, num/den), nil
}
