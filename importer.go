/*
 *  importer.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

import "fmt"

// Importer is the first pipeline stage: it loads the raw count table, the
// sample metadata and the gene annotation, builds the normalized expression
// container and writes the QC dimension-reduction coordinates.
type Importer struct {
	CountsFile     string
	SamplesFile    string
	AnnotationFile string
	SkipLines      int
	KeepZeros      bool
	OutPrefix      string
	// Output files, set by Run
	OutContainerFile string
	OutQCFile        string
}

// Run executes the import stage
func (r *Importer) Run() error {
	if r.SkipLines < 0 {
		return &ConfigurationError{Param: "skip", Reason: "leading lines to skip must be non-negative"}
	}
	if r.OutPrefix == "" {
		r.OutPrefix = RemoveExt(r.CountsFile)
	}

	ct, err := ParseCountsFile(r.CountsFile, r.SkipLines)
	if err != nil {
		return err
	}
	samples, err := ParseSamplesFile(r.SamplesFile)
	if err != nil {
		return err
	}
	counts, err := AlignSamples(ct, samples)
	if err != nil {
		return err
	}
	levels, sizes := GroupLevels(samples)
	if len(levels) != 2 {
		return &ConfigurationError{Param: "group",
			Reason: fmt.Sprintf("this workflow compares exactly two groups, metadata has %v", levels)}
	}
	log.Noticef("Groups: %s (n=%d) vs %s (n=%d)",
		levels[0], sizes[levels[0]], levels[1], sizes[levels[1]])

	genes := JoinAnnotation(ct.GeneIDs, nil)
	if r.AnnotationFile != "" {
		annotation, err := ParseAnnotationFile(r.AnnotationFile)
		if err != nil {
			return err
		}
		genes = JoinAnnotation(ct.GeneIDs, annotation)
	}

	ec, err := NewContainer(counts, samples, genes, !r.KeepZeros)
	if err != nil {
		return err
	}

	factors, err := TMMNormFactors(ec)
	if err != nil {
		return err
	}
	ec.NormFactors = factors
	log.Noticef("TMM factors: %s", formatFactors(samples, factors))

	qc, err := QCDimensionReduction(ec)
	if err != nil {
		return err
	}

	// All computation done; the container is the hand-off artifact, so it
	// goes to disk before any diagnostic output
	r.OutContainerFile = r.OutPrefix + ".container.json.gz"
	if err := ec.WriteFile(r.OutContainerFile); err != nil {
		return err
	}
	r.OutQCFile = r.OutPrefix + ".mds.tsv"
	return WriteQCTable(r.OutQCFile, samples, qc)
}

// formatFactors renders per-sample normalization factors for the log
func formatFactors(samples []*Sample, factors []float64) string {
	s := ""
	for j, f := range factors {
		if j > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s=%.3f", samples[j].Name, f)
	}
	return s
}
