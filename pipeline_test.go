/*
 *  pipeline_test.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tangerine-bio/rnadge"
)

// writePipelineInputs writes a synthetic 100-gene x 12-sample experiment
// (6 covid vs 6 healthy) with the first 5 genes planted at 4-fold higher
// expression in the covid group, plus metadata, annotation and a small GO
// mapping carrying the planted genes.
func writePipelineInputs(t *testing.T, dir string) (countsFile, samplesFile, annotationFile, goFile string) {
	t.Helper()
	nGenes, nCovid, nHealthy := 100, 6, 6
	nSamples := nCovid + nHealthy

	var sb strings.Builder
	sb.WriteString("# synthetic whole-blood counts\n")
	sb.WriteString("geneid")
	for j := 0; j < nSamples; j++ {
		fmt.Fprintf(&sb, "\tS%02d", j+1)
	}
	sb.WriteString("\n")
	for i := 0; i < nGenes; i++ {
		fmt.Fprintf(&sb, "G%03d", i+1)
		base := 150 + (i*13)%250
		for j := 0; j < nSamples; j++ {
			c := base + 10*((i*3+j*5)%7)
			if i < 5 && j < nCovid {
				c *= 4
			}
			fmt.Fprintf(&sb, "\t%d", c)
		}
		sb.WriteString("\n")
	}
	countsFile = filepath.Join(dir, "counts.tsv")
	require.NoError(t, os.WriteFile(countsFile, []byte(sb.String()), 0o644))

	sb.Reset()
	sb.WriteString("sample\tgroup\tage\tsex\n")
	for j := 0; j < nSamples; j++ {
		group := "covid"
		if j >= nCovid {
			group = "healthy"
		}
		fmt.Fprintf(&sb, "S%02d\t%s\t%d\t%s\n", j+1, group, 40+j, "F")
	}
	samplesFile = filepath.Join(dir, "samples.tsv")
	require.NoError(t, os.WriteFile(samplesFile, []byte(sb.String()), 0o644))

	sb.Reset()
	sb.WriteString("gene_id\tsymbol\tchromosome\tstart\tend\tstrand\tbiotype\tdescription\tgene_id_version\tentrez_id\n")
	for i := 0; i < nGenes; i++ {
		fmt.Fprintf(&sb, "G%03d\tSYM%03d\t%d\t%d\t%d\t+\tprotein_coding\tsynthetic gene %d\tG%03d.1\t%d\n",
			i+1, i+1, 1+i%22, 1000*i+1, 1000*i+900, i+1, i+1, 5000+i)
	}
	annotationFile = filepath.Join(dir, "annotation.tsv")
	require.NoError(t, os.WriteFile(annotationFile, []byte(sb.String()), 0o644))

	sb.Reset()
	sb.WriteString("term_id\tterm_name\tgene_id\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, "GO:0000010\tdefense response to virus\tG%03d\n", i+1)
	}
	for i := 40; i < 60; i++ {
		fmt.Fprintf(&sb, "GO:0000020\tcell cycle\tG%03d\n", i+1)
	}
	goFile = filepath.Join(dir, "gosets.tsv")
	require.NoError(t, os.WriteFile(goFile, []byte(sb.String()), 0o644))
	return
}

func TestPipelineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	countsFile, samplesFile, annotationFile, goFile := writePipelineInputs(t, dir)
	prefix := filepath.Join(dir, "run")

	importer := rnadge.Importer{
		CountsFile:     countsFile,
		SamplesFile:    samplesFile,
		AnnotationFile: annotationFile,
		SkipLines:      1,
		OutPrefix:      prefix,
	}
	require.NoError(t, importer.Run())
	require.FileExists(t, importer.OutContainerFile)
	require.FileExists(t, importer.OutQCFile)

	analyzer := rnadge.Analyzer{
		ContainerFile:    importer.OutContainerFile,
		ContrastSpec:     "covid-healthy",
		CPMCutoff:        rnadge.DefaultCPMCutoff,
		Alpha:            rnadge.DefaultAlpha,
		LogFCFloor:       rnadge.DefaultLogFCFloor,
		GeneSetFile:      goFile,
		SimilarityCutoff: rnadge.DefaultSimilarityCutoff,
		ExportNpy:        true,
		OutPrefix:        prefix,
	}
	require.NoError(t, analyzer.Run())

	// Exactly the five planted genes come out significant
	want := []string{"G001", "G002", "G003", "G004", "G005"}
	require.Equal(t, want, rnadge.SignificantGenes(analyzer.Results))

	// Annotation made it through the container round trip
	for _, r := range analyzer.Results {
		if r.Gene.ID == "G001" {
			require.Equal(t, "SYM001", r.Gene.Symbol)
			require.Equal(t, "protein_coding", r.Gene.Biotype)
		}
	}

	// The planted GO category leads the enrichment table
	require.NotEmpty(t, analyzer.Enrichment)
	top := analyzer.Enrichment[0]
	require.Equal(t, "GO:0000010", top.ID)
	require.Equal(t, 5, top.SigInSet)
	require.Less(t, top.AdjPValue, 0.05)

	// Artifacts on disk
	require.FileExists(t, analyzer.OutResultsFile)
	require.FileExists(t, analyzer.OutSignificantFile)
	require.FileExists(t, analyzer.OutEnrichmentFile)
	require.FileExists(t, analyzer.OutSummaryFile)
	require.FileExists(t, prefix+".logcpm.npy")
	require.FileExists(t, prefix+".weights.npy")

	// The significant table carries a header plus one row per planted gene
	raw, err := os.ReadFile(analyzer.OutSignificantFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 6)
	require.True(t, strings.HasPrefix(lines[1], "G001\tSYM001\t"))
}

func TestAnalyzerValidatesBeforeReading(t *testing.T) {
	// Invalid alpha fails fast, before the container file is ever opened
	analyzer := rnadge.Analyzer{
		ContainerFile: filepath.Join(t.TempDir(), "missing.container.json.gz"),
		Alpha:         0,
		LogFCFloor:    1,
	}
	var cfgErr *rnadge.ConfigurationError
	require.ErrorAs(t, analyzer.Run(), &cfgErr)

	analyzer.Alpha = 0.05
	analyzer.TreatLogFC = -1
	require.ErrorAs(t, analyzer.Run(), &cfgErr)

	analyzer.TreatLogFC = 0
	analyzer.SimilarityCutoff = 2
	require.ErrorAs(t, analyzer.Run(), &cfgErr)
}

func TestImporterWritesNoDiagnosticsWhenContainerFails(t *testing.T) {
	dir := t.TempDir()
	countsFile, samplesFile, _, _ := writePipelineInputs(t, dir)
	prefix := filepath.Join(dir, "blocked")

	// A directory squatting on the container path makes that write fail;
	// no other artifact may appear
	require.NoError(t, os.Mkdir(prefix+".container.json.gz", 0o755))
	importer := rnadge.Importer{
		CountsFile:  countsFile,
		SamplesFile: samplesFile,
		SkipLines:   1,
		OutPrefix:   prefix,
	}
	require.Error(t, importer.Run())
	require.NoFileExists(t, prefix+".mds.tsv")
}

func TestImporterRejectsMoreThanTwoGroups(t *testing.T) {
	dir := t.TempDir()
	countsFile := filepath.Join(dir, "counts.tsv")
	require.NoError(t, os.WriteFile(countsFile, []byte(
		"geneid\tS01\tS02\tS03\nG001\t10\t20\t30\nG002\t5\t6\t7\n"), 0o644))
	samplesFile := filepath.Join(dir, "samples.tsv")
	require.NoError(t, os.WriteFile(samplesFile, []byte(
		"sample\tgroup\tage\tsex\nS01\tcovid\t50\tF\nS02\thealthy\t51\tM\nS03\tsevere\t52\tF\n"), 0o644))

	importer := rnadge.Importer{CountsFile: countsFile, SamplesFile: samplesFile}
	var cfgErr *rnadge.ConfigurationError
	require.ErrorAs(t, importer.Run(), &cfgErr)
}
