/*
 *  mds_test.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge_test

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tangerine-bio/rnadge"
)

func TestQCDimensionReductionSeparatesGroups(t *testing.T) {
	// Half the genes respond strongly to group: the leading axis is the
	// group split
	ec := twoGroupContainer(t, 60, 3, 3, 30, 8)
	qc, err := rnadge.QCDimensionReduction(ec)
	require.NoError(t, err)

	_, nSamples := ec.Dims()
	require.Len(t, qc.MDS1, nSamples)
	require.Len(t, qc.MDS2, nSamples)
	require.Len(t, qc.PC1, nSamples)
	require.Len(t, qc.PC2, nSamples)
	for j := 0; j < nSamples; j++ {
		for _, v := range []float64{qc.MDS1[j], qc.MDS2[j], qc.PC1[j], qc.PC2[j]} {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
	}

	// Group centroids sit further apart than any within-group pair, on both
	// reductions
	separation := func(d1, d2 []float64) {
		t.Helper()
		c1x := (d1[0] + d1[1] + d1[2]) / 3
		c1y := (d2[0] + d2[1] + d2[2]) / 3
		c2x := (d1[3] + d1[4] + d1[5]) / 3
		c2y := (d2[3] + d2[4] + d2[5]) / 3
		between := math.Hypot(c1x-c2x, c1y-c2y)

		within := 0.0
		for _, g := range [][]int{{0, 1, 2}, {3, 4, 5}} {
			for a := 0; a < len(g); a++ {
				for b := a + 1; b < len(g); b++ {
					d := math.Hypot(d1[g[a]]-d1[g[b]], d2[g[a]]-d2[g[b]])
					if d > within {
						within = d
					}
				}
			}
		}
		require.Greater(t, between, within)
	}
	separation(qc.MDS1, qc.MDS2)
	separation(qc.PC1, qc.PC2)
}

func TestQCDimensionReductionNeedsThreeSamples(t *testing.T) {
	ec := twoGroupContainer(t, 10, 1, 1, 0, 1)
	var cfgErr *rnadge.ConfigurationError
	_, err := rnadge.QCDimensionReduction(ec)
	require.ErrorAs(t, err, &cfgErr)
}

func TestWriteQCTable(t *testing.T) {
	ec := twoGroupContainer(t, 30, 3, 3, 5, 4)
	qc, err := rnadge.QCDimensionReduction(ec)
	require.NoError(t, err)

	outfile := filepath.Join(t.TempDir(), "run.mds.tsv")
	require.NoError(t, rnadge.WriteQCTable(outfile, ec.Samples, qc))

	raw, err := os.ReadFile(outfile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 7)
	require.Equal(t, "sample\tgroup\tMDS1\tMDS2\tPC1\tPC2", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "covid_1\tcovid\t"))
	require.True(t, strings.HasPrefix(lines[4], "healthy_1\thealthy\t"))
}
