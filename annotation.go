/*
 *  annotation.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

import (
	"github.com/gocarina/gocsv"
	"github.com/shenwei356/xopen"
)

// Gene is one annotated gene. Annotation fields stay zero-valued when the
// external table has no row for the identifier; the gene itself is never
// dropped during the join.
type Gene struct {
	ID          string `csv:"gene_id" json:"id"`
	Symbol      string `csv:"symbol" json:"symbol"`
	Chrom       string `csv:"chromosome" json:"chrom"`
	Start       int64  `csv:"start" json:"start"`
	End         int64  `csv:"end" json:"end"`
	Strand      string `csv:"strand" json:"strand"`
	Biotype     string `csv:"biotype" json:"biotype"`
	Description string `csv:"description" json:"description"`
	Version     string `csv:"gene_id_version" json:"version"`
	EntrezID    string `csv:"entrez_id" json:"entrezID"`
}

// ParseAnnotationFile reads the external gene annotation table
func ParseAnnotationFile(filename string) ([]*Gene, error) {
	log.Noticef("Parse gene annotation `%s`", filename)
	fh, err := xopen.Ropen(filename)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var rows []*Gene
	if err := gocsv.Unmarshal(fh, &rows); err != nil {
		return nil, &SchemaMismatchError{Table: filename, Reason: err.Error()}
	}
	return rows, nil
}

// JoinAnnotation left-joins annotation rows onto the count matrix gene
// identifiers, preserving the matrix row order exactly. When several
// annotation rows share an identifier only the first occurrence (by input
// order) is kept, so the result has exactly one row per gene.
func JoinAnnotation(geneIDs []string, annotation []*Gene) []*Gene {
	first := make(map[string]*Gene, len(annotation))
	nDup := 0
	for _, a := range annotation {
		if _, ok := first[a.ID]; ok {
			nDup++
			continue
		}
		first[a.ID] = a
	}
	if nDup > 0 {
		log.Noticef("Deduplicated %s ambiguous annotation rows", Percentage(nDup, len(annotation)))
	}

	genes := make([]*Gene, len(geneIDs))
	nMissed := 0
	for i, id := range geneIDs {
		if a, ok := first[id]; ok {
			g := *a
			genes[i] = &g
		} else {
			genes[i] = &Gene{ID: id}
			nMissed++
		}
	}
	if nMissed > 0 {
		log.Noticef("No annotation match for %s", Percentage(nMissed, len(geneIDs)))
	}
	return genes
}
