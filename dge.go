/*
 *  dge.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

import (
	"fmt"
	"math"
	"sort"
)

// DEGeneResult is the canonical pipeline output for one gene, derived
// deterministically from its FitResult.
type DEGeneResult struct {
	Gene        *Gene
	LogFC       float64
	AveExpr     float64
	T           float64
	PValue      float64
	AdjPValue   float64
	Significant bool
}

// TestConfig holds the significance thresholds. Both are overridable
// parameters, never hardcoded at the interface boundary.
type TestConfig struct {
	Alpha      float64 // FDR level
	LogFCFloor float64 // minimum absolute log2-fold-change
}

// Validate rejects thresholds outside their valid ranges before any
// computation runs
func (c TestConfig) Validate() error {
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return &ConfigurationError{Param: "alpha", Reason: "must be inside (0,1)"}
	}
	if c.LogFCFloor < 0 {
		return &ConfigurationError{Param: "lfc", Reason: "fold-change floor must be non-negative"}
	}
	return nil
}

// BenjaminiHochberg adjusts p-values for multiple testing by the
// Benjamini-Hochberg step-up procedure. Adjusted values are monotone
// non-decreasing when ordered by raw p-value and are returned in the input
// order.
func BenjaminiHochberg(pvals []float64) []float64 {
	n := len(pvals)
	if n == 0 {
		return nil
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return pvals[idx[i]] < pvals[idx[j]] })

	adj := make([]float64, n)
	minP := 1.0
	for i := n - 1; i >= 0; i-- {
		orig := idx[i]
		rank := float64(i + 1)
		a := pvals[orig] * float64(n) / rank
		if a > 1 {
			a = 1
		}
		if a < minP {
			minP = a
		} else {
			a = minP
		}
		adj[orig] = a
	}
	return adj
}

// ClassifyGenes applies FDR correction across all contrast tests and flags a
// gene significant iff adjusted p < alpha AND |logFC| > floor, both strict.
func ClassifyGenes(genes []*Gene, fits []*FitResult, cfg TestConfig) ([]*DEGeneResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(genes) != len(fits) {
		return nil, &SchemaMismatchError{Table: "fit",
			Reason: fmt.Sprintf("%d fit rows but %d genes", len(fits), len(genes))}
	}

	pvals := make([]float64, len(fits))
	for i, f := range fits {
		pvals[i] = f.PValue
	}
	adj := BenjaminiHochberg(pvals)

	results := make([]*DEGeneResult, len(fits))
	nSig := 0
	for i, f := range fits {
		sig := adj[i] < cfg.Alpha && math.Abs(f.LogFC) > cfg.LogFCFloor
		if sig {
			nSig++
		}
		results[i] = &DEGeneResult{
			Gene:        genes[i],
			LogFC:       f.LogFC,
			AveExpr:     f.AveExpr,
			T:           f.T,
			PValue:      f.PValue,
			AdjPValue:   adj[i],
			Significant: sig,
		}
	}
	log.Noticef("Flagged %s genes significant (adj.P < %g, |logFC| > %g)",
		Percentage(nSig, len(fits)), cfg.Alpha, cfg.LogFCFloor)
	return results, nil
}

// SignificantGenes returns the identifiers of the flagged genes, in row order
func SignificantGenes(results []*DEGeneResult) []string {
	var ids []string
	for _, r := range results {
		if r.Significant {
			ids = append(ids, r.Gene.ID)
		}
	}
	return ids
}

// WriteResultsTable writes the per-gene statistics as delimited text; with
// onlySignificant set, only flagged genes are written in the same schema.
func WriteResultsTable(outfile string, results []*DEGeneResult, onlySignificant bool) error {
	fw, err := createFile(outfile)
	if err != nil {
		return err
	}
	defer fw.Close()

	fmt.Fprintf(fw, "gene_id\tsymbol\tchromosome\tbiotype\tlogFC\tAveExpr\tt\tP.Value\tadj.P.Val\tsignificant\n")
	n := 0
	for _, r := range results {
		if onlySignificant && !r.Significant {
			continue
		}
		fmt.Fprintf(fw, "%s\t%s\t%s\t%s\t%.6g\t%.6g\t%.6g\t%.6g\t%.6g\t%t\n",
			r.Gene.ID, r.Gene.Symbol, r.Gene.Chrom, r.Gene.Biotype,
			r.LogFC, r.AveExpr, r.T, r.PValue, r.AdjPValue, r.Significant)
		n++
	}
	log.Noticef("Wrote %d result rows to `%s`", n, outfile)
	return nil
}
