/*
 *  analyzer.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

import (
	"github.com/kshedden/gonpy"
	"gonum.org/v1/gonum/mat"
)

// Analyzer is the second pipeline stage: starting from the serialized
// container it filters low-expressed genes, runs voom, fits the per-gene
// linear models with the requested contrast, corrects for multiple testing
// and performs GO enrichment on the significant set. All fatal validation
// happens before any computation, and no output file is written until every
// computation has finished.
type Analyzer struct {
	ContainerFile    string
	ContrastSpec     string
	CPMCutoff        float64
	MinSamples       int
	TreatLogFC       float64
	Alpha            float64
	LogFCFloor       float64
	GeneSetFile      string
	SimilarityCutoff float64
	Workers          int
	ExportNpy        bool
	OutPrefix        string
	// Outputs, set by Run
	OutResultsFile     string
	OutSignificantFile string
	OutEnrichmentFile  string
	OutSummaryFile     string
	Results            []*DEGeneResult
	Enrichment         []*EnrichmentResult
}

// Run executes the differential expression stage
func (r *Analyzer) Run() error {
	testCfg := TestConfig{Alpha: r.Alpha, LogFCFloor: r.LogFCFloor}
	if err := testCfg.Validate(); err != nil {
		return err
	}
	if r.TreatLogFC < 0 {
		return &ConfigurationError{Param: "treatlfc", Reason: "effect-size floor must be non-negative"}
	}
	if r.SimilarityCutoff < 0 || r.SimilarityCutoff > 1 {
		return &ConfigurationError{Param: "simplify", Reason: "similarity cutoff must be inside [0,1]"}
	}
	if r.OutPrefix == "" {
		r.OutPrefix = RemoveExt(RemoveExt(RemoveExt(r.ContainerFile)))
	}
	summary := &RunSummary{}

	ec, err := ReadContainerFile(r.ContainerFile)
	if err != nil {
		return err
	}

	filtered, err := FilterLowExpression(ec, FilterConfig{
		CPMCutoff:  r.CPMCutoff,
		MinSamples: r.MinSamples,
	})
	if err != nil {
		return err
	}

	design, err := BuildDesign(filtered.Samples)
	if err != nil {
		return err
	}
	contrast, err := ParseContrast(r.ContrastSpec, design)
	if err != nil {
		return err
	}

	voom, err := Voom(filtered, design, summary)
	if err != nil {
		return err
	}

	fits, err := FitContrast(voom, design, contrast, FitConfig{
		TreatLogFC: r.TreatLogFC,
		Workers:    r.Workers,
	}, summary)
	if err != nil {
		return err
	}

	results, err := ClassifyGenes(filtered.Genes, fits, testCfg)
	if err != nil {
		return err
	}
	r.Results = results

	var enrichment []*EnrichmentResult
	if r.GeneSetFile != "" {
		lib, err := ParseGeneSetFile(r.GeneSetFile)
		if err != nil {
			return err
		}
		universe := make([]string, len(filtered.Genes))
		for i, g := range filtered.Genes {
			universe[i] = g.ID
		}
		enrichment, err = Enrich(SignificantGenes(results), universe, lib, EnrichConfig{
			Alpha:            r.Alpha,
			SimilarityCutoff: r.SimilarityCutoff,
			Workers:          r.Workers,
		}, summary)
		if err != nil {
			return err
		}
		r.Enrichment = enrichment
	}

	// All computation done; write the artifacts
	r.OutResultsFile = r.OutPrefix + ".results.tsv"
	if err := WriteResultsTable(r.OutResultsFile, results, false); err != nil {
		return err
	}
	r.OutSignificantFile = r.OutPrefix + ".significant.tsv"
	if err := WriteResultsTable(r.OutSignificantFile, results, true); err != nil {
		return err
	}
	if r.GeneSetFile != "" {
		r.OutEnrichmentFile = r.OutPrefix + ".enrichment.tsv"
		if err := WriteEnrichmentTable(r.OutEnrichmentFile, enrichment); err != nil {
			return err
		}
	}
	if r.ExportNpy {
		if err := writeNpy(r.OutPrefix+".logcpm.npy", voom.LogCPM); err != nil {
			return err
		}
		if err := writeNpy(r.OutPrefix+".weights.npy", voom.Weights); err != nil {
			return err
		}
	}
	r.OutSummaryFile = r.OutPrefix + ".summary.txt"
	return summary.WriteFile(r.OutSummaryFile)
}

// writeNpy exports a dense matrix in numpy format for downstream plotting
func writeNpy(outfile string, m *mat.Dense) error {
	w, err := gonpy.NewFileWriter(outfile)
	if err != nil {
		return err
	}
	rows, cols := m.Dims()
	w.Shape = []int{rows, cols}
	if err := w.WriteFloat64(m.RawMatrix().Data); err != nil {
		return err
	}
	log.Noticef("Matrix (%d x %d) written to `%s`", rows, cols, outfile)
	return nil
}
