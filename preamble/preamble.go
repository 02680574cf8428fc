// Preamble detection for complex baseband tag replies.
package preamble

import (
	"math"

	"gonum.org/v1/gonum/cmplxs"
)

// Detector correlates the real part of a background-subtracted sample window
// with the half-bit basis function of the tag preamble. ArgMax of the result
// is the most likely preamble position.
type Detector struct {
	symbolLength float64
	halfLength   float64
	width        int

	template []float64
	offsets  []int
	span     int

	preambleSymbols int
	searchLength    int
	threshold       float64
}

// Result of a single synchronization attempt. Channel is the mean of the
// window it was computed from and is only meaningful for that window.
type Result struct {
	Index     int
	Confident bool
	Peak      float64
	Channel   complex128
}

// Given a symbol length in samples per tag bit and a string of half-bit
// levels ('1' high, '0' low), build the correlation template. Starting
// positions are searched over the first searchSymbols tag bits of a window.
func NewDetector(symbolLength float64, bits string, searchSymbols int, threshold float64) (pd Detector) {
	pd.symbolLength = symbolLength
	pd.halfLength = symbolLength / 2
	pd.width = int(math.Ceil(pd.halfLength))

	pd.template = make([]float64, len(bits))
	pd.offsets = make([]int, len(bits))
	for idx, bit := range bits {
		pd.template[idx] = -1
		if bit == '1' {
			pd.template[idx] = 1
		}
		pd.offsets[idx] = int(math.Floor(float64(idx) * pd.halfLength))
	}
	if len(bits) > 0 {
		pd.span = pd.offsets[len(bits)-1] + pd.width
	}

	pd.preambleSymbols = len(bits) >> 1
	pd.searchLength = int(symbolLength * float64(searchSymbols))
	pd.threshold = threshold

	return
}

// Execute estimates the channel and locates the preamble. Index points at the
// last half bit of the preamble, half a tag bit ahead of the first data
// symbol.
func (pd Detector) Execute(input []complex128) (res Result) {
	if len(input) == 0 {
		return
	}

	res.Channel = cmplxs.Sum(input) / complex(float64(len(input)), 0)

	res.Peak, res.Index = ArgMax(pd.Correlate(input, res.Channel))
	res.Index += int(float64(pd.preambleSymbols)*pd.symbolLength - pd.symbolLength/2)
	res.Confident = res.Peak > pd.threshold

	return
}

// Correlate returns the template correlation at each candidate start index.
func (pd Detector) Correlate(input []complex128, channel complex128) []float64 {
	n := pd.searchLength
	if limit := len(input) - pd.span + 1; limit < n {
		n = limit
	}
	if n <= 0 {
		return nil
	}

	// Computing the cumulative summation over the signal reduces each
	// half-bit group to a single subtraction.
	csum := make([]float64, len(input)+1)
	dc := real(channel)

	var sum float64
	for idx, v := range input {
		sum += real(v) - dc
		csum[idx+1] = sum
	}

	corr := make([]float64, n)
	for sIdx := range corr {
		var c float64
		for pIdx, p := range pd.template {
			lower := sIdx + pd.offsets[pIdx]
			c += p * (csum[lower+pd.width] - csum[lower])
		}
		corr[sIdx] = c
	}

	return corr
}

// Determine the largest positive element and its index. Ties keep the
// earliest index.
func ArgMax(corr []float64) (max float64, idx int) {
	for i, v := range corr {
		if max < v {
			max, idx = v, i
		}
	}
	return
}
