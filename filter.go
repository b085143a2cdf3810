/*
 *  filter.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

// FilterConfig controls low-expression filtering. Both parameters materially
// change downstream statistical power; pick them by comparing the
// log-abundance density before and after filtering rather than by habit.
type FilterConfig struct {
	// CPMCutoff is the counts-per-million a gene must exceed
	CPMCutoff float64
	// MinSamples is how many samples must clear the cutoff; 0 means the
	// size of the smallest experimental group
	MinSamples int
}

// FilterLowExpression removes genes whose normalized abundance does not
// clear the cutoff in at least MinSamples samples. The count matrix and the
// gene collection shrink together; order of the surviving rows is preserved.
// Running the filter twice with identical parameters removes nothing on the
// second pass.
func FilterLowExpression(ec *ExpressionContainer, cfg FilterConfig) (*ExpressionContainer, error) {
	if cfg.CPMCutoff < 0 {
		return nil, &ConfigurationError{Param: "cpm", Reason: "cutoff must be non-negative"}
	}
	minSamples := cfg.MinSamples
	if minSamples == 0 {
		_, sizes := GroupLevels(ec.Samples)
		for _, n := range sizes {
			if minSamples == 0 || n < minSamples {
				minSamples = n
			}
		}
	}
	nGenes, nSamples := ec.Dims()
	if minSamples < 0 || minSamples > nSamples {
		return nil, &ConfigurationError{Param: "minSamples", Reason: "outside 1..number of samples"}
	}

	cpm := ec.CPM()
	keep := make([]bool, nGenes)
	nKept := 0
	for i := 0; i < nGenes; i++ {
		above := 0
		for j := 0; j < nSamples; j++ {
			if cpm.At(i, j) > cfg.CPMCutoff {
				above++
			}
		}
		if above >= minSamples {
			keep[i] = true
			nKept++
		}
	}

	log.Noticef("Low-expression filter (CPM > %g in >= %d samples) kept %s genes",
		cfg.CPMCutoff, minSamples, Percentage(nKept, nGenes))
	out := ec.keepRows(keep)
	return out, out.CheckConsistent()
}
