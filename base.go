/*
 *  base.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"sort"
	"strings"

	logging "github.com/op/go-logging"
	"github.com/shenwei356/xopen"
)

const (
	// Version is the current version of RNADGE
	Version = "0.3.1"
	// DefaultCPMCutoff is the counts-per-million a gene must clear to be kept
	DefaultCPMCutoff = 1.0
	// DefaultAlpha is the FDR significance level
	DefaultAlpha = 0.05
	// DefaultLogFCFloor is the minimum absolute log2-fold-change for significance
	DefaultLogFCFloor = 1.0
	// DefaultTreatLogFC is the effect-size floor tested by the moderated t (0 = plain null)
	DefaultTreatLogFC = 0.0
	// DefaultSimilarityCutoff collapses GO terms above this Jaccard similarity
	DefaultSimilarityCutoff = 0.7
	// LogRatioTrim is the two-sided trim fraction on M-values in TMM
	LogRatioTrim = 0.3
	// AbsIntensityTrim is the two-sided trim fraction on A-values in TMM
	AbsIntensityTrim = 0.05
	// LowessSpan is the smoothing span for the mean-variance trend
	LowessSpan = 0.5
	// MinTrendValue floors the interpolated sqrt-sd trend so weights stay finite
	MinTrendValue = 1e-2
	// MDSTopGenes is how many top-variable genes enter the MDS distances
	MDSTopGenes = 500
	// MaxPriorDF caps the prior degrees of freedom when the prior is effectively infinite
	MaxPriorDF = 1e6
	// PerMillion scales effective library sizes to counts-per-million
	PerMillion = 1e6
)

var log = logging.MustGetLogger("rnadge")
var format = logging.MustStringFormatter(
	`%{color}%{time:15:04:05} %{shortfunc} | %{level:.6s} %{color:reset} %{message}`,
)

// Backend is the default stderr output
var Backend = logging.NewLogBackend(os.Stderr, "", 0)

// BackendFormatter contains the fancy debug formatter
var BackendFormatter = logging.NewBackendFormatter(Backend, format)

// RemoveExt returns the substring minus the extension
func RemoveExt(filename string) string {
	return strings.TrimSuffix(filename, path.Ext(filename))
}

// Percentage prints a human readable message of the percentage
func Percentage(a, b int) string {
	return fmt.Sprintf("%d of %d (%.1f %%)", a, b, float64(a)*100./float64(b))
}

// sumf gets the sum for a float64 slice
func sumf(a []float64) float64 {
	ans := 0.0
	for _, x := range a {
		ans += x
	}
	return ans
}

// meanf gets the mean for a float64 slice
func meanf(a []float64) float64 {
	return sumf(a) / float64(len(a))
}

// variancef gets the unbiased sample variance for a float64 slice
func variancef(a []float64) float64 {
	if len(a) < 2 {
		return 0
	}
	m := meanf(a)
	ss := 0.0
	for _, x := range a {
		d := x - m
		ss += d * d
	}
	return ss / float64(len(a)-1)
}

// geomean gets the geometric mean for a float64 slice of positive values
func geomean(a []float64) float64 {
	s := 0.0
	for _, x := range a {
		s += math.Log(x)
	}
	return math.Exp(s / float64(len(a)))
}

// rankf returns sample ranks of the values, ties resolved by order of appearance
func rankf(a []float64) []int {
	idx := make([]int, len(a))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return a[idx[i]] < a[idx[j]] })
	ranks := make([]int, len(a))
	for r, i := range idx {
		ranks[i] = r
	}
	return ranks
}

// createFile opens an output file for writing, surfacing the path in the log
func createFile(filename string) (*os.File, error) {
	fw, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create `%s`: %w", filename, err)
	}
	return fw, nil
}

// ReadDelimLines parses all tab-separated lines into a 2D array of tokens,
// skipping the requested number of leading metadata lines. Input may be
// gzip-compressed.
func ReadDelimLines(filename string, skip int) ([][]string, error) {
	fh, err := xopen.Ropen(filename)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var data [][]string
	r := csv.NewReader(bufio.NewReader(fh))
	r.Comma = '\t'
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	for i := 0; ; i++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if i < skip {
			continue
		}
		data = append(data, rec)
	}
	return data, nil
}
