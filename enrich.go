/*
 *  enrich.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	fet "github.com/glycerine/golang-fisher-exact"
)

// GeneSetLibrary maps functional categories (GO terms) to their member genes
type GeneSetLibrary struct {
	Names   map[string]string   // term id -> description
	Members map[string][]string // term id -> gene ids
}

// EnrichmentResult is the outcome of testing one category for
// over-representation in the significant gene set.
type EnrichmentResult struct {
	ID          string
	Description string
	SigInSet    int // significant genes carrying the category
	SigTotal    int // size of the significant set
	SetInUni    int // universe genes carrying the category
	UniTotal    int // universe size
	PValue      float64
	AdjPValue   float64
	Genes       []string // contributing significant gene ids
}

// GeneRatio formats significant-in-category over significant-set size
func (r *EnrichmentResult) GeneRatio() string {
	return fmt.Sprintf("%d/%d", r.SigInSet, r.SigTotal)
}

// BgRatio formats category-in-universe over universe size
func (r *EnrichmentResult) BgRatio() string {
	return fmt.Sprintf("%d/%d", r.SetInUni, r.UniTotal)
}

// EnrichConfig controls the enrichment run
type EnrichConfig struct {
	// Alpha is the FDR level for a category to count as enriched
	Alpha float64
	// SimilarityCutoff collapses categories whose Jaccard similarity to a
	// more significant kept category reaches this value; 0 disables
	SimilarityCutoff float64
	// Workers shards the per-category tests; 0 means GOMAXPROCS. Sharding
	// never changes the result, only the wall time.
	Workers int
}

// ParseGeneSetFile reads a tab-delimited term_id, term_name, gene_id mapping
func ParseGeneSetFile(filename string) (*GeneSetLibrary, error) {
	rows, err := ReadDelimLines(filename, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, &SchemaMismatchError{Table: filename, Reason: "no mapping rows below the header"}
	}
	lib := &GeneSetLibrary{
		Names:   make(map[string]string),
		Members: make(map[string][]string),
	}
	for i, rec := range rows[1:] {
		if len(rec) < 3 {
			return nil, &SchemaMismatchError{Table: filename,
				Reason: fmt.Sprintf("row %d has %d fields, want term_id, term_name, gene_id", i+2, len(rec))}
		}
		id, name, gene := rec[0], rec[1], rec[2]
		lib.Names[id] = name
		lib.Members[id] = append(lib.Members[id], gene)
	}
	log.Noticef("Parsed %d categories from `%s`", len(lib.Members), filename)
	return lib, nil
}

// Enrich tests every category with at least one universe member for
// over-representation of significant genes by a one-sided hypergeometric
// test (Fisher's exact right tail), FDR-corrects across categories, keeps
// the categories with adjusted p below the configured level, then collapses
// near-duplicates among the kept ones. Results are ordered by adjusted
// p-value ascending.
func Enrich(sigGenes, universe []string, lib *GeneSetLibrary,
	cfg EnrichConfig, summary *RunSummary) ([]*EnrichmentResult, error) {

	if cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		return nil, &ConfigurationError{Param: "alpha", Reason: "must be inside (0,1)"}
	}
	if cfg.SimilarityCutoff < 0 || cfg.SimilarityCutoff > 1 {
		return nil, &ConfigurationError{Param: "simplify", Reason: "similarity cutoff must be inside [0,1]"}
	}
	if len(sigGenes) == 0 {
		if summary != nil {
			summary.Warnf("enrichment skipped: empty significant gene set")
		}
		return nil, nil
	}

	inUniverse := make(map[string]bool, len(universe))
	for _, g := range universe {
		inUniverse[g] = true
	}
	inSig := make(map[string]bool, len(sigGenes))
	for _, g := range sigGenes {
		if inUniverse[g] {
			inSig[g] = true
		}
	}
	nUni, nSig := len(inUniverse), len(inSig)

	termIDs := make([]string, 0, len(lib.Members))
	for id := range lib.Members {
		termIDs = append(termIDs, id)
	}
	sort.Strings(termIDs)

	var results []*EnrichmentResult
	memberSets := make(map[string]map[string]bool)
	nSkipped := 0
	for _, id := range termIDs {
		set := make(map[string]bool)
		var hits []string
		for _, g := range lib.Members[id] {
			if !inUniverse[g] || set[g] {
				continue
			}
			set[g] = true
			if inSig[g] {
				hits = append(hits, g)
			}
		}
		if len(set) == 0 {
			nSkipped++
			continue
		}
		sort.Strings(hits)
		memberSets[id] = set
		results = append(results, &EnrichmentResult{
			ID:          id,
			Description: lib.Names[id],
			SigInSet:    len(hits),
			SigTotal:    nSig,
			SetInUni:    len(set),
			UniTotal:    nUni,
			Genes:       hits,
		})
	}
	if nSkipped > 0 && summary != nil {
		summary.Warnf("%d categories with no universe member excluded from enrichment", nSkipped)
	}
	if len(results) == 0 {
		return nil, nil
	}

	// Category tests are independent; shard them the same way the per-gene
	// fits are sharded
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(results) {
		workers = len(results)
	}
	var wg sync.WaitGroup
	chunk := (len(results) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, (w+1)*chunk
		if hi > len(results) {
			hi = len(results)
		}
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for _, r := range results[lo:hi] {
				k, kk := r.SigInSet, r.SetInUni
				// One-sided over-representation: P(overlap >= k)
				_, _, right, _ := fet.FisherExactTest(k, nSig-k, kk-k, nUni-kk-(nSig-k))
				r.PValue = right
			}
		}(lo, hi)
	}
	wg.Wait()

	pvals := make([]float64, len(results))
	for i, r := range results {
		pvals[i] = r.PValue
	}
	adj := BenjaminiHochberg(pvals)
	for i, r := range results {
		r.AdjPValue = adj[i]
	}

	// Retain the enriched categories only, mirroring the gene-level rule
	var enriched []*EnrichmentResult
	for _, r := range results {
		if r.AdjPValue < cfg.Alpha {
			enriched = append(enriched, r)
		}
	}
	log.Noticef("Flagged %s categories enriched (adj.P < %g)",
		Percentage(len(enriched), len(results)), cfg.Alpha)
	if len(enriched) == 0 {
		if summary != nil {
			summary.Warnf("no category cleared the enrichment FDR level %g", cfg.Alpha)
		}
		return nil, nil
	}

	sortEnrichment(enriched)
	if cfg.SimilarityCutoff > 0 {
		enriched = simplify(enriched, memberSets, cfg.SimilarityCutoff)
	}
	return enriched, nil
}

// sortEnrichment orders by adjusted p, then raw p, then term id, so the
// output and the simplify scan are deterministic
func sortEnrichment(results []*EnrichmentResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.AdjPValue != b.AdjPValue {
			return a.AdjPValue < b.AdjPValue
		}
		if a.PValue != b.PValue {
			return a.PValue < b.PValue
		}
		return a.ID < b.ID
	})
}

// simplify walks the categories from most to least significant and drops any
// whose universe-restricted membership is too similar (Jaccard) to an
// already-kept category, leaving one representative per cluster.
func simplify(results []*EnrichmentResult, memberSets map[string]map[string]bool, cutoff float64) []*EnrichmentResult {
	var kept []*EnrichmentResult
	for _, r := range results {
		redundant := false
		for _, k := range kept {
			if jaccard(memberSets[r.ID], memberSets[k.ID]) >= cutoff {
				redundant = true
				break
			}
		}
		if !redundant {
			kept = append(kept, r)
		}
	}
	if n := len(results) - len(kept); n > 0 {
		log.Noticef("Simplify collapsed %s redundant categories (similarity >= %g)",
			Percentage(n, len(results)), cutoff)
	}
	return kept
}

// jaccard is intersection over union of two gene sets
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	inter := 0
	for g := range a {
		if b[g] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// WriteEnrichmentTable writes the enrichment results as delimited text
func WriteEnrichmentTable(outfile string, results []*EnrichmentResult) error {
	fw, err := createFile(outfile)
	if err != nil {
		return err
	}
	defer fw.Close()

	fmt.Fprintf(fw, "term_id\tdescription\tgene_ratio\tbg_ratio\tpvalue\tadj_pvalue\tgenes\n")
	for _, r := range results {
		fmt.Fprintf(fw, "%s\t%s\t%s\t%s\t%.6g\t%.6g\t%s\n",
			r.ID, r.Description, r.GeneRatio(), r.BgRatio(),
			r.PValue, r.AdjPValue, strings.Join(r.Genes, "/"))
	}
	log.Noticef("Wrote %d enrichment rows to `%s`", len(results), outfile)
	return nil
}
