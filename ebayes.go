/*
 *  ebayes.go
 *  rnadge
 *
 *  Copyright © 2025 Tangerine Bio. All rights reserved.
 */

package rnadge

import (
	"math"

	"gonum.org/v1/gonum/mathext"
)

// squeezeVar pools per-gene residual variances toward a common prior by
// fitting a scaled inverse chi-squared prior with moments estimation, then
// returns the posterior variance per gene along with the prior degrees of
// freedom and prior variance. Genes with non-positive variance take the
// prior-only posterior.
//
// "Linear models and empirical Bayes methods for assessing differential
// expression in microarray experiments", Smyth, SAGMB 2004.
func squeezeVar(s2 []float64, df float64) (post []float64, priorDF, priorS2 float64) {
	priorDF, priorS2 = fitFDist(s2, df)

	post = make([]float64, len(s2))
	for i, v := range s2 {
		if v < 0 {
			v = 0
		}
		if math.IsInf(priorDF, 1) {
			post[i] = priorS2
		} else {
			post[i] = (priorDF*priorS2 + df*v) / (priorDF + df)
		}
	}
	return post, priorDF, priorS2
}

// fitFDist estimates the parameters of a scaled F-distribution for the
// sample variances s2 on df degrees of freedom, by matching moments on the
// log scale. A non-positive dispersion estimate means no excess variability
// between genes, which maps to an infinite prior df.
func fitFDist(s2 []float64, df float64) (priorDF, priorS2 float64) {
	var e []float64
	for _, v := range s2 {
		if v > 0 {
			e = append(e, math.Log(v)-mathext.Digamma(df/2)+math.Log(df/2))
		}
	}
	if len(e) == 0 {
		return math.Inf(1), 0
	}
	emean := meanf(e)
	evar := variancef(e) - trigamma(df/2)
	if evar <= 0 {
		return math.Inf(1), math.Exp(emean)
	}
	priorDF = 2 * trigammaInverse(evar)
	priorS2 = math.Exp(emean + mathext.Digamma(priorDF/2) - math.Log(priorDF/2))
	return priorDF, priorS2
}

// trigamma is the second derivative of the log-gamma function,
// psi1(x) = zeta(2, x) in terms of the Hurwitz zeta function
func trigamma(x float64) float64 {
	if math.IsNaN(x) || x <= 0 && x == math.Trunc(x) {
		return math.NaN()
	}
	return mathext.Zeta(2, x)
}

// tetragamma is the third derivative of the log-gamma function,
// psi2(x) = -2 zeta(3, x)
func tetragamma(x float64) float64 {
	if math.IsNaN(x) || x <= 0 && x == math.Trunc(x) {
		return math.NaN()
	}
	return -2 * mathext.Zeta(3, x)
}

// trigammaInverse solves trigamma(y) = x for y by Newton iteration
func trigammaInverse(x float64) float64 {
	if x <= 0 {
		return math.Inf(1)
	}
	if x > 1e7 {
		return 1 / math.Sqrt(x)
	}
	if x < 1e-6 {
		return 1 / x
	}
	y := 0.5 + 1/x
	for iter := 0; iter < 50; iter++ {
		tri := trigamma(y)
		dif := tri * (1 - tri/x) / tetragamma(y)
		y += dif
		if -dif/y < 1e-8 {
			break
		}
	}
	return y
}
