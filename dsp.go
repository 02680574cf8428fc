package main

import (
	"encoding/binary"
	"math"
)

// IQLUT maps the unsigned 8-bit I/Q samples produced by rtl_tcp to complex
// baseband in [-1, 1].
type IQLUT []float64

func NewIQLUT() (lut IQLUT) {
	lut = make([]float64, 0x100)
	for idx := range lut {
		lut[idx] = (float64(idx) - 127.5) / 127.5
	}
	return
}

// Execute converts interleaved I/Q bytes to complex samples. Input must hold
// two bytes per output sample.
func (lut IQLUT) Execute(input []byte, output []complex128) {
	for idx := range output {
		lutIdx := idx << 1
		output[idx] = complex(lut[input[lutIdx]], lut[input[lutIdx+1]])
	}
}

// Float32ToComplex converts interleaved little-endian float32 I/Q pairs, as
// written by GNU Radio's file sink, to complex samples.
func Float32ToComplex(input []byte, output []complex128) {
	for idx := range output {
		offset := idx << 3
		i := math.Float32frombits(binary.LittleEndian.Uint32(input[offset:]))
		q := math.Float32frombits(binary.LittleEndian.Uint32(input[offset+4:]))
		output[idx] = complex(float64(i), float64(q))
	}
}
