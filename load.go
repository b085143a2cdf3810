/*
 *  load.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/shenwei356/xopen"
	"gonum.org/v1/gonum/mat"
)

// Sample is one biological sample: a stable patient code, the experimental
// group it belongs to and free covariates. Name is the derived display name
// (<group>_<ordinal>), unique within the dataset.
type Sample struct {
	Code  string `csv:"sample" json:"code"`
	Group string `csv:"group" json:"group"`
	Age   string `csv:"age" json:"age"`
	Sex   string `csv:"sex" json:"sex"`
	Name  string `csv:"-" json:"name"`
}

// CountTable is the raw gene x sample count matrix as parsed from disk,
// before sample alignment and annotation.
type CountTable struct {
	GeneIDs     []string
	SampleCodes []string
	Counts      *mat.Dense
}

func init() {
	// All delimited inputs in this workflow are tab-separated
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.Comma = '\t'
		r.LazyQuotes = true
		return r
	})
}

// ParseCountsFile reads the gene x sample count table. The first column is
// the gene identifier, the header row holds the sample codes, and skip
// leading metadata lines are discarded before the header.
func ParseCountsFile(filename string, skip int) (*CountTable, error) {
	log.Noticef("Parse counts file `%s` (skip %d metadata lines)", filename, skip)
	rows, err := ReadDelimLines(filename, skip)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, &SchemaMismatchError{Table: filename, Reason: "no data rows below the header"}
	}

	header := rows[0]
	if len(header) < 2 {
		return nil, &SchemaMismatchError{Table: filename, Reason: "header has no sample columns"}
	}
	codes := header[1:]
	nGenes, nSamples := len(rows)-1, len(codes)

	geneIDs := make([]string, nGenes)
	data := make([]float64, nGenes*nSamples)
	seen := make(map[string]bool, nGenes)
	for i, rec := range rows[1:] {
		if len(rec) != nSamples+1 {
			return nil, &SchemaMismatchError{Table: filename,
				Reason: fmt.Sprintf("row %d has %d fields, want %d", i+2, len(rec), nSamples+1)}
		}
		if seen[rec[0]] {
			return nil, &SchemaMismatchError{Table: filename,
				Reason: fmt.Sprintf("duplicated gene identifier %s", rec[0])}
		}
		seen[rec[0]] = true
		geneIDs[i] = rec[0]
		for j, tok := range rec[1:] {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil || v < 0 {
				return nil, &SchemaMismatchError{Table: filename,
					Reason: fmt.Sprintf("gene %s sample %s: not a non-negative count: %q", rec[0], codes[j], tok)}
			}
			data[i*nSamples+j] = v
		}
	}

	log.Noticef("Parsed %d genes x %d samples", nGenes, nSamples)
	return &CountTable{
		GeneIDs:     geneIDs,
		SampleCodes: codes,
		Counts:      mat.NewDense(nGenes, nSamples, data),
	}, nil
}

// ParseSamplesFile reads the sample metadata table, one row per sample
func ParseSamplesFile(filename string) ([]*Sample, error) {
	log.Noticef("Parse sample metadata `%s`", filename)
	fh, err := xopen.Ropen(filename)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var samples []*Sample
	if err := gocsv.Unmarshal(fh, &samples); err != nil {
		return nil, &SchemaMismatchError{Table: filename, Reason: err.Error()}
	}
	if len(samples) == 0 {
		return nil, &SchemaMismatchError{Table: filename, Reason: "no sample rows"}
	}
	return samples, nil
}

// AlignSamples reorders the count columns to the metadata order and assigns
// display names. Every sample code in the metadata must have exactly one
// column in the count table and vice versa.
func AlignSamples(ct *CountTable, samples []*Sample) (*mat.Dense, error) {
	colOf := make(map[string]int, len(ct.SampleCodes))
	for j, code := range ct.SampleCodes {
		colOf[code] = j
	}
	if len(colOf) != len(ct.SampleCodes) {
		return nil, &SchemaMismatchError{Table: "counts", Reason: "duplicated sample codes in header"}
	}
	if len(samples) != len(ct.SampleCodes) {
		return nil, &SchemaMismatchError{Table: "samples",
			Reason: fmt.Sprintf("%d metadata rows but %d count columns", len(samples), len(ct.SampleCodes))}
	}

	nGenes := len(ct.GeneIDs)
	aligned := mat.NewDense(nGenes, len(samples), nil)
	ordinal := make(map[string]int)
	usedCol := make(map[int]bool)
	for j, s := range samples {
		col, ok := colOf[s.Code]
		if !ok {
			return nil, &SchemaMismatchError{Table: "samples",
				Reason: fmt.Sprintf("sample code %s has no column in the count table", s.Code)}
		}
		if usedCol[col] {
			return nil, &SchemaMismatchError{Table: "samples",
				Reason: fmt.Sprintf("sample code %s listed more than once", s.Code)}
		}
		usedCol[col] = true
		ordinal[s.Group]++
		s.Name = fmt.Sprintf("%s_%d", s.Group, ordinal[s.Group])
		for i := 0; i < nGenes; i++ {
			aligned.Set(i, j, ct.Counts.At(i, col))
		}
	}
	return aligned, nil
}

// GroupLevels returns the distinct group labels in deterministic (sorted)
// order, plus the per-level sample counts.
func GroupLevels(samples []*Sample) ([]string, map[string]int) {
	sizes := make(map[string]int)
	var levels []string
	for _, s := range samples {
		if sizes[s.Group] == 0 {
			levels = append(levels, s.Group)
		}
		sizes[s.Group]++
	}
	sort.Strings(levels)
	return levels, sizes
}
