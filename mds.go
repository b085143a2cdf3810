/*
 *  mds.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// QCCoords holds two-dimensional sample coordinates from the quality-control
// dimension reductions. Consumes the normalized container only; nothing
// downstream depends on it.
type QCCoords struct {
	MDS1, MDS2 []float64
	PC1, PC2   []float64
}

// QCDimensionReduction computes classical multidimensional scaling on
// pairwise leading-logFC distances (the top genes separating each sample
// pair) and a principal component analysis of the log2-CPM profiles.
func QCDimensionReduction(ec *ExpressionContainer) (*QCCoords, error) {
	nGenes, nSamples := ec.Dims()
	if nSamples < 3 {
		return nil, &ConfigurationError{Param: "mds", Reason: "need at least three samples"}
	}
	y := ec.LogCPM()

	top := MDSTopGenes
	if top > nGenes {
		top = nGenes
	}

	// Pairwise distance: root mean square of the top per-gene logFC
	d2 := mat.NewSymDense(nSamples, nil)
	sq := make([]float64, nGenes)
	for a := 0; a < nSamples; a++ {
		for b := a + 1; b < nSamples; b++ {
			for i := 0; i < nGenes; i++ {
				d := y.At(i, a) - y.At(i, b)
				sq[i] = d * d
			}
			sort.Float64s(sq)
			s := 0.0
			for i := nGenes - top; i < nGenes; i++ {
				s += sq[i]
			}
			d2.SetSym(a, b, s/float64(top))
		}
	}

	mds1, mds2, err := classicalMDS(d2)
	if err != nil {
		return nil, err
	}

	pc1, pc2, err := pcaCoords(y)
	if err != nil {
		return nil, err
	}
	return &QCCoords{MDS1: mds1, MDS2: mds2, PC1: pc1, PC2: pc2}, nil
}

// classicalMDS converts squared distances into coordinates by double
// centering and an eigendecomposition, keeping the leading two dimensions.
func classicalMDS(d2 *mat.SymDense) ([]float64, []float64, error) {
	n := d2.Symmetric()
	rowMean := make([]float64, n)
	grand := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			rowMean[i] += d2.At(i, j)
		}
		rowMean[i] /= float64(n)
		grand += rowMean[i]
	}
	grand /= float64(n)

	b := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			b.SetSym(i, j, -0.5*(d2.At(i, j)-rowMean[i]-rowMean[j]+grand))
		}
	}

	var es mat.EigenSym
	if ok := es.Factorize(b, true); !ok {
		return nil, nil, fmt.Errorf("mds: eigendecomposition failed")
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// Eigenvalues come back ascending; the two largest carry the plot
	dim1 := make([]float64, n)
	dim2 := make([]float64, n)
	l1, l2 := vals[n-1], vals[n-2]
	for i := 0; i < n; i++ {
		if l1 > 0 {
			dim1[i] = vecs.At(i, n-1) * math.Sqrt(l1)
		}
		if l2 > 0 {
			dim2[i] = vecs.At(i, n-2) * math.Sqrt(l2)
		}
	}
	return dim1, dim2, nil
}

// pcaCoords projects the sample x gene log2-CPM matrix onto its first two
// principal components
func pcaCoords(y *mat.Dense) ([]float64, []float64, error) {
	nGenes, nSamples := y.Dims()
	x := mat.NewDense(nSamples, nGenes, nil)
	colMean := make([]float64, nGenes)
	for i := 0; i < nGenes; i++ {
		for j := 0; j < nSamples; j++ {
			x.Set(j, i, y.At(i, j))
			colMean[i] += y.At(i, j)
		}
		colMean[i] /= float64(nSamples)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, nil, fmt.Errorf("pca: decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	pc1 := make([]float64, nSamples)
	pc2 := make([]float64, nSamples)
	for j := 0; j < nSamples; j++ {
		for i := 0; i < nGenes; i++ {
			c := x.At(j, i) - colMean[i]
			pc1[j] += c * vecs.At(i, 0)
			pc2[j] += c * vecs.At(i, 1)
		}
	}
	return pc1, pc2, nil
}

// WriteQCTable writes one row of QC coordinates per sample
func WriteQCTable(outfile string, samples []*Sample, qc *QCCoords) error {
	fw, err := createFile(outfile)
	if err != nil {
		return err
	}
	defer fw.Close()

	fmt.Fprintf(fw, "sample\tgroup\tMDS1\tMDS2\tPC1\tPC2\n")
	for j, s := range samples {
		fmt.Fprintf(fw, "%s\t%s\t%.6g\t%.6g\t%.6g\t%.6g\n",
			s.Name, s.Group, qc.MDS1[j], qc.MDS2[j], qc.PC1[j], qc.PC2[j])
	}
	log.Noticef("QC coordinates written to `%s`", outfile)
	return nil
}
