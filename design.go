/*
 *  design.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// DesignMatrix encodes group membership with one 0/1 column per group level
// and no intercept column, so a comparison between groups is a simple
// difference of coefficient columns.
type DesignMatrix struct {
	X      *mat.Dense
	Levels []string
}

// Contrast is a named linear combination over design columns
type Contrast struct {
	Name string
	Coef []float64
}

// BuildDesign constructs the no-intercept design from the sample groups.
// Levels are ordered lexicographically so the matrix is deterministic.
func BuildDesign(samples []*Sample) (*DesignMatrix, error) {
	levels, _ := GroupLevels(samples)
	if len(levels) < 2 {
		return nil, &ConfigurationError{Param: "group",
			Reason: "need at least two group levels to form a comparison"}
	}
	colOf := make(map[string]int, len(levels))
	for j, l := range levels {
		colOf[l] = j
	}
	x := mat.NewDense(len(samples), len(levels), nil)
	for i, s := range samples {
		x.Set(i, colOf[s.Group], 1)
	}
	return &DesignMatrix{X: x, Levels: levels}, nil
}

// ParseContrast turns "A-B" into the contrast vector testing group A minus
// group B. An empty spec defaults to the first two levels in order.
func ParseContrast(spec string, design *DesignMatrix) (*Contrast, error) {
	var a, b string
	if spec == "" {
		a, b = design.Levels[0], design.Levels[1]
	} else {
		parts := strings.SplitN(spec, "-", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, &ConfigurationError{Param: "contrast",
				Reason: fmt.Sprintf("want the form groupA-groupB, got %q", spec)}
		}
		a, b = parts[0], parts[1]
	}

	coef := make([]float64, len(design.Levels))
	found := 0
	for j, l := range design.Levels {
		switch l {
		case a:
			coef[j] = 1
			found++
		case b:
			coef[j] = -1
			found++
		}
	}
	if found != 2 {
		return nil, &ConfigurationError{Param: "contrast",
			Reason: fmt.Sprintf("groups %q and %q must both be design levels %v", a, b, design.Levels)}
	}
	return &Contrast{Name: a + "-" + b, Coef: coef}, nil
}
