package decode

import "github.com/pkg/errors"

// Reference half-bit patterns over two adjacent symbols. The window of bit i
// starts on the last half of symbol i-1, so with FM0's inversion at every
// symbol boundary equal outer halves mean no level change across symbol i.
var masks = [4][4]float64{
	{-1, 1, -1, 1},
	{1, -1, 1, -1},
	{1, -1, -1, 1},
	{-1, 1, 1, -1},
}

// Demodulate correlates n consecutive two-symbol windows of samples, starting
// at offset, against the reference masks. Masks 0 and 1 decide a 0, masks 2
// and 3 a 1. Samples must already have the channel estimate removed.
func (d Decoder) Demodulate(samples []complex128, n, offset int) ([]byte, error) {
	symLen := d.Cfg.SymbolLength
	window := int(2 * symLen)

	if offset < 0 || n < 0 {
		return nil, errors.Wrapf(ErrShortBuffer, "offset %d, bits %d", offset, n)
	}
	if n > 0 {
		if end := offset + int(float64(n-1)*symLen) + window; end > len(samples) {
			return nil, errors.Wrapf(ErrShortBuffer, "need %d samples for %d bits, have %d", end, n, len(samples))
		}
	}

	bits := make([]byte, n)
	for bIdx := range bits {
		start := offset + int(float64(bIdx)*symLen)

		// Sum each quarter of the window once, masks are constant over a quarter.
		var quarters [4]float64
		for sIdx, s := range samples[start : start+window] {
			pos := float64(sIdx)

			q := 3
			switch {
			case pos < symLen*0.5:
				q = 0
			case pos < symLen:
				q = 1
			case pos < symLen*1.5:
				q = 2
			}
			quarters[q] += real(s)
		}

		var corr [4]float64
		for mIdx, mask := range masks {
			for q, m := range mask {
				corr[mIdx] += m * quarters[q]
			}
		}

		maxIdx := 0
		for mIdx := range corr {
			if corr[mIdx] > corr[maxIdx] {
				maxIdx = mIdx
			}
		}

		if maxIdx > 1 {
			bits[bIdx] = 1
		}
	}

	return bits, nil
}
