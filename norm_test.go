/*
 *  norm_test.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tangerine-bio/rnadge"
	"gonum.org/v1/gonum/mat"
)

func geomeanOf(a []float64) float64 {
	s := 0.0
	for _, x := range a {
		s += math.Log(x)
	}
	return math.Exp(s / float64(len(a)))
}

func TestTMMIdenticalSamplesGetUnitFactors(t *testing.T) {
	nGenes, nSamples := 50, 4
	data := make([]float64, nGenes*nSamples)
	for i := 0; i < nGenes; i++ {
		for j := 0; j < nSamples; j++ {
			data[i*nSamples+j] = float64(10 + 7*(i%13))
		}
	}
	ec, err := rnadge.NewContainer(mat.NewDense(nGenes, nSamples, data),
		makeSamples("covid", 2, "healthy", 2), makeGenes(nGenes), true)
	require.NoError(t, err)

	factors, err := rnadge.TMMNormFactors(ec)
	require.NoError(t, err)
	for _, f := range factors {
		require.InDelta(t, 1.0, f, 1e-12)
	}
}

func TestTMMFactorsHaveUnitGeometricMean(t *testing.T) {
	nGenes, nSamples := 200, 6
	data := make([]float64, nGenes*nSamples)
	for i := 0; i < nGenes; i++ {
		for j := 0; j < nSamples; j++ {
			base := float64(20 + (i*13)%400)
			data[i*nSamples+j] = base * (0.8 + 0.1*float64((i*5+j*11)%7))
		}
	}
	ec, err := rnadge.NewContainer(mat.NewDense(nGenes, nSamples, data),
		makeSamples("covid", 3, "healthy", 3), makeGenes(nGenes), true)
	require.NoError(t, err)

	factors, err := rnadge.TMMNormFactors(ec)
	require.NoError(t, err)
	require.Len(t, factors, nSamples)
	require.InDelta(t, 1.0, geomeanOf(factors), 1e-9)
	for _, f := range factors {
		require.Greater(t, f, 0.0)
	}
}

// A 10x deeper but proportionally identical library is pure depth, which the
// library size already captures: its TMM factor stays at 1 and its CPM values
// match the shallower replicates. Do not change this expectation to a factor
// away from 1: every M-value against the reference is 0 for such a library,
// so the trimmed weighted mean is 0 and the factor 2^0 = 1 by construction.
// The factor carries composition bias only, never depth.
func TestTMMDepthOnlyLibraryKeepsUnitFactor(t *testing.T) {
	nGenes, nSamples := 100, 4
	data := make([]float64, nGenes*nSamples)
	for i := 0; i < nGenes; i++ {
		base := float64(5 + (i*17)%300)
		for j := 0; j < nSamples; j++ {
			c := base
			if j == nSamples-1 {
				c *= 10
			}
			data[i*nSamples+j] = c
		}
	}
	ec, err := rnadge.NewContainer(mat.NewDense(nGenes, nSamples, data),
		makeSamples("covid", 2, "healthy", 2), makeGenes(nGenes), true)
	require.NoError(t, err)

	factors, err := rnadge.TMMNormFactors(ec)
	require.NoError(t, err)
	for _, f := range factors {
		require.InDelta(t, 1.0, f, 1e-9)
	}

	// After normalization the deep library's CPM agrees with the others
	ec.NormFactors = factors
	cpm := ec.CPM()
	for i := 0; i < nGenes; i++ {
		require.InDelta(t, cpm.At(i, 0), cpm.At(i, nSamples-1), 1e-6)
	}
}

func TestTMMDisjointSupportIsDegenerate(t *testing.T) {
	nGenes, nSamples := 10, 2
	data := make([]float64, nGenes*nSamples)
	for i := 0; i < nGenes; i++ {
		if i < nGenes/2 {
			data[i*nSamples] = float64(100 + i)
		} else {
			data[i*nSamples+1] = float64(100 + i)
		}
	}
	ec, err := rnadge.NewContainer(mat.NewDense(nGenes, nSamples, data),
		makeSamples("covid", 1, "healthy", 1), makeGenes(nGenes), true)
	require.NoError(t, err)

	_, err = rnadge.TMMNormFactors(ec)
	var degErr *rnadge.DegenerateNormalizationError
	require.ErrorAs(t, err, &degErr)
}

func TestTMMSingleSample(t *testing.T) {
	ec, err := rnadge.NewContainer(mat.NewDense(3, 1, []float64{1, 2, 3}),
		[]*rnadge.Sample{{Code: "c01", Group: "covid", Name: "covid_1"}}, makeGenes(3), false)
	require.NoError(t, err)
	factors, err := rnadge.TMMNormFactors(ec)
	require.NoError(t, err)
	require.Equal(t, []float64{1.0}, factors)
}
