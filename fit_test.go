/*
 *  fit_test.go
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
)

func fitScenario(t *testing.T, treatLFC float64, workers int) ([]*rnadge.FitResult, *rnadge.ExpressionContainer) {
	t.Helper()
	ec := twoGroupContainer(t, 40, 4, 4, 3, 4)
	design, err := rnadge.BuildDesign(ec.Samples)
	require.NoError(t, err)
	contrast, err := rnadge.ParseContrast("covid-healthy", design)
	require.NoError(t, err)
	v, err := rnadge.Voom(ec, design, nil)
	require.NoError(t, err)
	fits, err := rnadge.FitContrast(v, design, contrast,
		rnadge.FitConfig{TreatLogFC: treatLFC, Workers: workers}, nil)
	require.NoError(t, err)
	return fits, ec
}

func TestFitContrastRecoversPlantedEffect(t *testing.T) {
	fits, ec := fitScenario(t, 0, 1)
	nGenes, _ := ec.Dims()
	require.Len(t, fits, nGenes)

	// Planted genes carry a 4-fold change: logFC near 2
	for i := 0; i < 3; i++ {
		require.InDelta(t, 2.0, fits[i].LogFC, 0.4, "gene %d", i)
		require.Less(t, fits[i].PValue, 1e-4, "gene %d", i)
	}
	// The rest sit near zero
	for i := 3; i < nGenes; i++ {
		require.Less(t, math.Abs(fits[i].LogFC), 0.5, "gene %d", i)
	}

	// Classification flags exactly the planted genes
	results, err := rnadge.ClassifyGenes(ec.Genes, fits,
		rnadge.TestConfig{Alpha: rnadge.DefaultAlpha, LogFCFloor: rnadge.DefaultLogFCFloor})
	require.NoError(t, err)
	require.Equal(t, []string{"G0001", "G0002", "G0003"}, rnadge.SignificantGenes(results))
}

func TestFitContrastShardingIsDeterministic(t *testing.T) {
	serial, _ := fitScenario(t, 0, 1)
	sharded, _ := fitScenario(t, 0, 4)
	require.Equal(t, len(serial), len(sharded))
	for i := range serial {
		require.Equal(t, serial[i].LogFC, sharded[i].LogFC, "gene %d", i)
		require.Equal(t, serial[i].T, sharded[i].T, "gene %d", i)
		require.Equal(t, serial[i].PValue, sharded[i].PValue, "gene %d", i)
		require.Equal(t, serial[i].S2Post, sharded[i].S2Post, "gene %d", i)
	}
}

func TestFitContrastTreatRaisesTheBar(t *testing.T) {
	plain, _ := fitScenario(t, 0, 1)
	treat, _ := fitScenario(t, 1.0, 1)

	for i := range plain {
		// Testing against |logFC| <= 1 can only make genes harder to call
		require.GreaterOrEqual(t, treat[i].PValue, plain[i].PValue, "gene %d", i)
		require.LessOrEqual(t, treat[i].PValue, 1.0, "gene %d", i)
	}
	// Planted genes clear the floor comfortably and stay detectable
	for i := 0; i < 3; i++ {
		require.Less(t, treat[i].PValue, 0.05, "gene %d", i)
	}
	// Null genes sit below the floor: treat p-values near 1
	for i := 3; i < len(treat); i++ {
		require.Greater(t, treat[i].PValue, 0.5, "gene %d", i)
	}
}

func TestFitContrastValidatesConfig(t *testing.T) {
	ec := twoGroupContainer(t, 10, 3, 3, 0, 1)
	design, err := rnadge.BuildDesign(ec.Samples)
	require.NoError(t, err)
	contrast, err := rnadge.ParseContrast("", design)
	require.NoError(t, err)
	v, err := rnadge.Voom(ec, design, nil)
	require.NoError(t, err)

	var cfgErr *rnadge.ConfigurationError
	_, err = rnadge.FitContrast(v, design, contrast, rnadge.FitConfig{TreatLogFC: -1}, nil)
	require.ErrorAs(t, err, &cfgErr)
}
