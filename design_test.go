/*
 *  design_test.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tangerine-bio/rnadge"
)

func TestBuildDesignEncodesGroups(t *testing.T) {
	samples := makeSamples("healthy", 2, "covid", 2)
	design, err := rnadge.BuildDesign(samples)
	require.NoError(t, err)
	// Levels sorted lexicographically, independent of sample order
	require.Equal(t, []string{"covid", "healthy"}, design.Levels)

	n, p := design.X.Dims()
	require.Equal(t, 4, n)
	require.Equal(t, 2, p)
	// First two samples are healthy (column 1), last two covid (column 0)
	require.Equal(t, 0.0, design.X.At(0, 0))
	require.Equal(t, 1.0, design.X.At(0, 1))
	require.Equal(t, 1.0, design.X.At(2, 0))
	require.Equal(t, 0.0, design.X.At(2, 1))
}

func TestBuildDesignNeedsTwoGroups(t *testing.T) {
	samples := makeSamples("covid", 3, "covid", 0)
	var cfgErr *rnadge.ConfigurationError
	_, err := rnadge.BuildDesign(samples)
	require.ErrorAs(t, err, &cfgErr)
}

func TestParseContrast(t *testing.T) {
	design, err := rnadge.BuildDesign(makeSamples("covid", 2, "healthy", 2))
	require.NoError(t, err)

	c, err := rnadge.ParseContrast("covid-healthy", design)
	require.NoError(t, err)
	require.Equal(t, "covid-healthy", c.Name)
	require.Equal(t, []float64{1, -1}, c.Coef)

	// Reverse order flips the signs
	c, err = rnadge.ParseContrast("healthy-covid", design)
	require.NoError(t, err)
	require.Equal(t, []float64{-1, 1}, c.Coef)

	// Empty spec defaults to the first two levels
	c, err = rnadge.ParseContrast("", design)
	require.NoError(t, err)
	require.Equal(t, "covid-healthy", c.Name)

	var cfgErr *rnadge.ConfigurationError
	_, err = rnadge.ParseContrast("covid", design)
	require.ErrorAs(t, err, &cfgErr)
	_, err = rnadge.ParseContrast("covid-severe", design)
	require.ErrorAs(t, err, &cfgErr)
}
