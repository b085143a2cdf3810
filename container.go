/*
 *  container.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	pgzip "github.com/klauspost/pgzip"
	"gonum.org/v1/gonum/mat"
)

// ExpressionContainer bundles the count matrix, the sample collection and
// the gene collection as one consistent unit, together with the per-sample
// library sizes and TMM normalization factors. Library size times
// normalization factor is the effective library size used by every
// counts-per-million computation downstream. Pipeline stages never mutate a
// container in place; they derive a new one.
type ExpressionContainer struct {
	counts      *mat.Dense
	Samples     []*Sample
	Genes       []*Gene
	LibSize     []float64
	NormFactors []float64
}

// containerDoc is the on-disk JSON form of ExpressionContainer
type containerDoc struct {
	Version     string     `json:"version"`
	NGenes      int        `json:"nGenes"`
	NSamples    int        `json:"nSamples"`
	Samples     []*Sample  `json:"samples"`
	Genes       []*Gene    `json:"genes"`
	LibSize     []float64  `json:"libSize"`
	NormFactors []float64  `json:"normFactors"`
	Counts      []float64  `json:"counts"` // row-major, NGenes x NSamples
}

// NewContainer builds the container from aligned counts, samples and genes.
// Library sizes are the column sums. When dropZeros is set, genes with zero
// counts across every sample are removed, from the matrix and the gene
// collection together.
func NewContainer(counts *mat.Dense, samples []*Sample, genes []*Gene, dropZeros bool) (*ExpressionContainer, error) {
	r, c := counts.Dims()
	if r != len(genes) {
		return nil, &SchemaMismatchError{Table: "container",
			Reason: fmt.Sprintf("%d count rows but %d genes", r, len(genes))}
	}
	if c != len(samples) {
		return nil, &SchemaMismatchError{Table: "container",
			Reason: fmt.Sprintf("%d count columns but %d samples", c, len(samples))}
	}

	ec := &ExpressionContainer{
		counts:      counts,
		Samples:     samples,
		Genes:       genes,
		NormFactors: onesf(c),
	}
	if dropZeros {
		keep := make([]bool, r)
		nZero := 0
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				if counts.At(i, j) > 0 {
					keep[i] = true
					break
				}
			}
			if !keep[i] {
				nZero++
			}
		}
		if nZero > 0 {
			log.Noticef("Removed %s all-zero genes", Percentage(nZero, r))
			ec = ec.keepRows(keep)
		}
	}
	ec.LibSize = columnSums(ec.counts)
	return ec, nil
}

// Dims returns the (genes, samples) dimensions
func (r *ExpressionContainer) Dims() (int, int) { return r.counts.Dims() }

// Counts exposes a read-only view of the count matrix
func (r *ExpressionContainer) Counts() mat.Matrix { return r.counts }

// Count returns one entry of the count matrix
func (r *ExpressionContainer) Count(i, j int) float64 { return r.counts.At(i, j) }

// EffectiveLibSize returns library size x normalization factor per sample
func (r *ExpressionContainer) EffectiveLibSize() []float64 {
	eff := make([]float64, len(r.LibSize))
	for j := range eff {
		eff[j] = r.LibSize[j] * r.NormFactors[j]
	}
	return eff
}

// CPM returns the counts-per-million matrix using effective library sizes
func (r *ExpressionContainer) CPM() *mat.Dense {
	nGenes, nSamples := r.Dims()
	eff := r.EffectiveLibSize()
	out := mat.NewDense(nGenes, nSamples, nil)
	for j := 0; j < nSamples; j++ {
		scale := PerMillion / eff[j]
		for i := 0; i < nGenes; i++ {
			out.Set(i, j, r.counts.At(i, j)*scale)
		}
	}
	return out
}

// LogCPM returns log2 counts-per-million with the voom half-count offset,
// log2((count + 0.5) / (effective library size + 1) * 1e6)
func (r *ExpressionContainer) LogCPM() *mat.Dense {
	nGenes, nSamples := r.Dims()
	eff := r.EffectiveLibSize()
	out := mat.NewDense(nGenes, nSamples, nil)
	for j := 0; j < nSamples; j++ {
		den := eff[j] + 1
		for i := 0; i < nGenes; i++ {
			out.Set(i, j, math.Log2((r.counts.At(i, j)+0.5)/den*PerMillion))
		}
	}
	return out
}

// keepRows removes rows from the count matrix and the gene collection
// together. Filtering only ever removes rows, never reorders them, and the
// two removals are never applied independently.
func (r *ExpressionContainer) keepRows(keep []bool) *ExpressionContainer {
	nGenes, nSamples := r.Dims()
	nKeep := 0
	for _, k := range keep {
		if k {
			nKeep++
		}
	}
	counts := mat.NewDense(nKeep, nSamples, nil)
	genes := make([]*Gene, 0, nKeep)
	row := 0
	for i := 0; i < nGenes; i++ {
		if !keep[i] {
			continue
		}
		for j := 0; j < nSamples; j++ {
			counts.Set(row, j, r.counts.At(i, j))
		}
		genes = append(genes, r.Genes[i])
		row++
	}
	return &ExpressionContainer{
		counts:      counts,
		Samples:     r.Samples,
		Genes:       genes,
		LibSize:     r.LibSize,
		NormFactors: r.NormFactors,
	}
}

// CheckConsistent verifies the central dimensional invariant
func (r *ExpressionContainer) CheckConsistent() error {
	nGenes, nSamples := r.Dims()
	if nGenes != len(r.Genes) {
		return &SchemaMismatchError{Table: "container",
			Reason: fmt.Sprintf("%d count rows but %d genes", nGenes, len(r.Genes))}
	}
	if nSamples != len(r.Samples) || nSamples != len(r.LibSize) || nSamples != len(r.NormFactors) {
		return &SchemaMismatchError{Table: "container",
			Reason: "sample, library size and normalization factor lengths disagree"}
	}
	return nil
}

// WriteFile serializes the container as gzipped JSON, the hand-off artifact
// between the import and dge stages
func (r *ExpressionContainer) WriteFile(outfile string) error {
	if err := r.CheckConsistent(); err != nil {
		return err
	}
	nGenes, nSamples := r.Dims()
	doc := containerDoc{
		Version:     Version,
		NGenes:      nGenes,
		NSamples:    nSamples,
		Samples:     r.Samples,
		Genes:       r.Genes,
		LibSize:     r.LibSize,
		NormFactors: r.NormFactors,
		Counts:      r.counts.RawMatrix().Data,
	}

	fw, err := createFile(outfile)
	if err != nil {
		return err
	}
	defer fw.Close()

	zw := pgzip.NewWriter(fw)
	defer zw.Close()
	if err := json.NewEncoder(zw).Encode(doc); err != nil {
		return fmt.Errorf("encode container: %w", err)
	}
	log.Noticef("Expression container (%d genes x %d samples) written to `%s`",
		nGenes, nSamples, outfile)
	return nil
}

// ReadContainerFile loads a serialized container written by WriteFile
func ReadContainerFile(filename string) (*ExpressionContainer, error) {
	fh, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	zr, err := pgzip.NewReader(fh)
	if err != nil {
		return nil, fmt.Errorf("open container `%s`: %w", filename, err)
	}
	defer zr.Close()

	var doc containerDoc
	if err := json.NewDecoder(zr).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode container `%s`: %w", filename, err)
	}
	if len(doc.Counts) != doc.NGenes*doc.NSamples {
		return nil, &SchemaMismatchError{Table: filename,
			Reason: fmt.Sprintf("count payload has %d values, want %d x %d", len(doc.Counts), doc.NGenes, doc.NSamples)}
	}
	ec := &ExpressionContainer{
		counts:      mat.NewDense(doc.NGenes, doc.NSamples, doc.Counts),
		Samples:     doc.Samples,
		Genes:       doc.Genes,
		LibSize:     doc.LibSize,
		NormFactors: doc.NormFactors,
	}
	if err := ec.CheckConsistent(); err != nil {
		return nil, err
	}
	log.Noticef("Loaded expression container `%s` (%d genes x %d samples)",
		filename, doc.NGenes, doc.NSamples)
	return ec, nil
}

// columnSums returns per-column totals of a dense matrix
func columnSums(m *mat.Dense) []float64 {
	r, c := m.Dims()
	sums := make([]float64, c)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			sums[j] += m.At(i, j)
		}
	}
	return sums
}

// onesf returns a float64 slice n long populated with unit values
func onesf(n int) []float64 {
	f := make([]float64, n)
	for i := range f {
		f[i] = 1
	}
	return f
}
