/*
 *  rnadge.go
 *  cmd
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package main

import (
	"strings"
	"time"

	logging "github.com/op/go-logging"
	"github.com/tangerine-bio/rnadge"
	"github.com/urfave/cli"
)

var log = logging.MustGetLogger("main")

// banner prints the separate pipeline steps
func banner(message string) {
	message = "* " + message + " *"
	log.Noticef(strings.Repeat("*", len(message)))
	log.Noticef(message)
	log.Noticef(strings.Repeat("*", len(message)))
}

// newApp lays out the command interface
func newApp() *cli.App {
	app := cli.NewApp()
	app.Compiled = time.Now()
	app.Name = "RNADGE"
	app.Usage = "Differential gene expression analysis of RNA-seq count data"
	app.Version = rnadge.Version

	importFlags := []cli.Flag{
		cli.StringFlag{
			Name:  "annotation",
			Usage: "Gene annotation table to join onto the count rows",
		},
		cli.IntFlag{
			Name:  "skip",
			Usage: "Leading metadata lines to skip in the count table",
			Value: 0,
		},
		cli.BoolFlag{
			Name:  "keepZeros",
			Usage: "Keep genes with zero counts in every sample",
		},
		cli.StringFlag{
			Name:  "prefix",
			Usage: "Output prefix (defaults to the count file minus extension)",
		},
	}

	dgeFlags := []cli.Flag{
		cli.StringFlag{
			Name:  "contrast",
			Usage: "Comparison to test, as groupA-groupB (default: first two group levels)",
		},
		cli.Float64Flag{
			Name:  "cpm",
			Usage: "Counts-per-million a gene must exceed to be kept",
			Value: rnadge.DefaultCPMCutoff,
		},
		cli.IntFlag{
			Name:  "minSamples",
			Usage: "Samples that must clear the CPM cutoff (0 = smallest group size)",
			Value: 0,
		},
		cli.Float64Flag{
			Name:  "alpha",
			Usage: "FDR significance level",
			Value: rnadge.DefaultAlpha,
		},
		cli.Float64Flag{
			Name:  "lfc",
			Usage: "Minimum absolute log2-fold-change for significance",
			Value: rnadge.DefaultLogFCFloor,
		},
		cli.Float64Flag{
			Name:  "treatlfc",
			Usage: "Effect-size floor tested by the moderated t (0 = test against zero)",
			Value: rnadge.DefaultTreatLogFC,
		},
		cli.StringFlag{
			Name:  "gosets",
			Usage: "Gene-to-GO mapping table enabling enrichment (term_id, term_name, gene_id)",
		},
		cli.Float64Flag{
			Name:  "simplify",
			Usage: "Jaccard similarity above which enriched categories collapse (0 disables)",
			Value: rnadge.DefaultSimilarityCutoff,
		},
		cli.IntFlag{
			Name:  "workers",
			Usage: "Goroutines sharding the per-gene fits and category tests (0 = GOMAXPROCS)",
			Value: 0,
		},
		cli.BoolFlag{
			Name:  "npy",
			Usage: "Also export the log-CPM and weight matrices in numpy format",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:  "import",
			Usage: "Build the normalized expression container from raw tables",
			UsageText: `
	rnadge import counts.tsv samples.tsv [options]

Import function:
Parses the gene x sample count table and the sample metadata, aligns the
columns, joins the gene annotation, removes all-zero genes, computes TMM
normalization factors and writes the serialized expression container plus
MDS/PCA quality-control coordinates.
`,
			Flags: importFlags,
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					_ = cli.ShowSubcommandHelp(c)
					return cli.NewExitError("Must specify counts file and samples file", 1)
				}
				p := rnadge.Importer{
					CountsFile:     c.Args().Get(0),
					SamplesFile:    c.Args().Get(1),
					AnnotationFile: c.String("annotation"),
					SkipLines:      c.Int("skip"),
					KeepZeros:      c.Bool("keepZeros"),
					OutPrefix:      c.String("prefix"),
				}
				return p.Run()
			},
		},
		{
			Name:  "dge",
			Usage: "Test genes for differential expression and run GO enrichment",
			UsageText: `
	rnadge dge container.json.gz [options]

Dge function:
Starting from the container written by "import": filters low-expressed
genes, derives voom precision weights, fits one weighted linear model per
gene, tests the requested contrast with empirical-Bayes moderation,
FDR-corrects across genes and (optionally) tests GO categories for
over-representation among the significant genes.
`,
			Flags: append(dgeFlags, cli.StringFlag{
				Name:  "prefix",
				Usage: "Output prefix (defaults to the container file minus extensions)",
			}),
			Action: func(c *cli.Context) error {
				if c.NArg() < 1 {
					_ = cli.ShowSubcommandHelp(c)
					return cli.NewExitError("Must specify container file", 1)
				}
				p := rnadge.Analyzer{
					ContainerFile:    c.Args().Get(0),
					ContrastSpec:     c.String("contrast"),
					CPMCutoff:        c.Float64("cpm"),
					MinSamples:       c.Int("minSamples"),
					TreatLogFC:       c.Float64("treatlfc"),
					Alpha:            c.Float64("alpha"),
					LogFCFloor:       c.Float64("lfc"),
					GeneSetFile:      c.String("gosets"),
					SimilarityCutoff: c.Float64("simplify"),
					Workers:          c.Int("workers"),
					ExportNpy:        c.Bool("npy"),
					OutPrefix:        c.String("prefix"),
				}
				return p.Run()
			},
		},
		{
			Name:  "pipeline",
			Usage: "Run import and dge sequentially",
			UsageText: `
	rnadge pipeline counts.tsv samples.tsv [options]

Pipeline:
A convenience driver chaining the two stages:

- import
- dge
`,
			Flags: append(importFlags, dgeFlags...),
			Action: func(c *cli.Context) error {
				if c.NArg() < 2 {
					_ = cli.ShowSubcommandHelp(c)
					return cli.NewExitError("Must specify counts file and samples file", 1)
				}

				banner("Import started")
				importer := rnadge.Importer{
					CountsFile:     c.Args().Get(0),
					SamplesFile:    c.Args().Get(1),
					AnnotationFile: c.String("annotation"),
					SkipLines:      c.Int("skip"),
					KeepZeros:      c.Bool("keepZeros"),
					OutPrefix:      c.String("prefix"),
				}
				if err := importer.Run(); err != nil {
					return err
				}

				banner("Differential expression started")
				analyzer := rnadge.Analyzer{
					ContainerFile:    importer.OutContainerFile,
					ContrastSpec:     c.String("contrast"),
					CPMCutoff:        c.Float64("cpm"),
					MinSamples:       c.Int("minSamples"),
					TreatLogFC:       c.Float64("treatlfc"),
					Alpha:            c.Float64("alpha"),
					LogFCFloor:       c.Float64("lfc"),
					GeneSetFile:      c.String("gosets"),
					SimilarityCutoff: c.Float64("simplify"),
					Workers:          c.Int("workers"),
					ExportNpy:        c.Bool("npy"),
					OutPrefix:        importer.OutPrefix,
				}
				return analyzer.Run()
			},
		},
	}
	return app
}
