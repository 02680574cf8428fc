package decode

import (
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/bemasher/rtlrfid/preamble"
)

// Candidates returns the half-bit lengths searched by EstimateTiming.
func (d Decoder) Candidates() []float64 {
	half := d.Cfg.SymbolLength / 2
	span := half * d.Cfg.TimingSpan
	return floats.Span(make([]float64, d.Cfg.TimingSteps), half-span, half+span)
}

// EstimateTiming compensates for clock drift between reader and tag. For each
// candidate half-bit length it accumulates the background-subtracted energy
// at the centers of the first TimingHalfBits half bits following the sync
// index, and returns the candidate with the most energy.
func (d Decoder) EstimateTiming(window []complex128, sync preamble.Result) (float64, error) {
	candidates := d.Candidates()
	halfBits := d.Cfg.TimingHalfBits

	last := float64(sync.Index) + (float64(halfBits)-0.5)*candidates[len(candidates)-1]
	if sync.Index < 0 || int(last) >= len(window) {
		return 0, errors.Wrapf(ErrShortBuffer, "timing search reaches sample %d, have %d", int(last), len(window))
	}

	energy := make([]float64, len(candidates))
	for tIdx, T := range candidates {
		for hIdx := 0; hIdx < halfBits; hIdx++ {
			s := window[int(float64(sync.Index)+(float64(hIdx)+0.5)*T)] - sync.Channel
			energy[tIdx] += real(s)*real(s) + imag(s)*imag(s)
		}
	}

	return candidates[floats.MaxIdx(energy)], nil
}

// DecodeEPC recovers the EPC reply with FM0 differential decoding. The
// difference between the last half of symbol j and the first half of symbol
// j+1, rotated by the conjugate channel estimate, gives the level symbol j
// ends on. A symbol that ends on the same level as the one before it carries
// a 0, a level change carries a 1. The preamble ends high.
func (d Decoder) DecodeEPC(window []complex128, sync preamble.Result) (bits []byte, T float64, err error) {
	n := d.Cfg.EPCSymbols

	candidates := d.Candidates()
	last := float64(sync.Index) + (2*float64(n)+1.5)*candidates[len(candidates)-1]
	if sync.Index < 0 || int(last) >= len(window) {
		return nil, 0, errors.Wrapf(ErrShortBuffer, "%d symbols reach sample %d, have %d", n, int(last), len(window))
	}

	T, err = d.EstimateTiming(window, sync)
	if err != nil {
		return nil, 0, err
	}

	conj := cmplx.Conj(sync.Channel)
	origin := float64(sync.Index) + 2.5*T

	bits = make([]byte, n)
	prev := 1
	for sIdx := range bits {
		pos := origin + float64(sIdx)*2*T
		result := real((window[int(pos)] - window[int(pos+T)]) * conj)

		level := -1
		if result > 0 {
			level = 1
		}
		if level != prev {
			bits[sIdx] = 1
		}
		prev = level
	}

	return bits, T, nil
}
