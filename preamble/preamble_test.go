package preamble

import (
	"math"
	"testing"

	"github.com/bemasher/rtlrfid/gen"
)

const (
	testPreamble = "110100100011"
	testSymbol   = 50.0
)

func newTestDetector() Detector {
	return NewDetector(testSymbol, testPreamble, 22, 0.01)
}

func rectReply(t testing.TB, lead int, data []byte) []complex128 {
	mod := gen.NewModulator(testSymbol / 2)
	mod.Channel = 1
	mod.Smooth = false

	levels := gen.FM0(testPreamble, gen.UnpackBits(gen.AppendCRC(data)))
	return mod.Modulate(levels, lead, lead+mod.ReplyLength(levels)+300)
}

func TestExecute(t *testing.T) {
	pd := newTestDetector()

	for _, lead := range []int{0, 1, 313, 799} {
		res := pd.Execute(rectReply(t, lead, []byte{0xA5, 0x3C}))

		if !res.Confident {
			t.Fatalf("lead %d: expected confident sync, peak %f", lead, res.Peak)
		}

		// Index points at the last half bit of the preamble.
		expected := lead + 275
		if res.Index != expected {
			t.Fatalf("lead %d: expected index %d got %d", lead, expected, res.Index)
		}
	}
}

func TestExecuteDeterministic(t *testing.T) {
	pd := newTestDetector()
	window := rectReply(t, 123, []byte{0x12, 0x34})

	first := pd.Execute(window)
	for i := 0; i < 8; i++ {
		if res := pd.Execute(window); res != first {
			t.Fatalf("expected %+v got %+v", first, res)
		}
	}
}

func TestExecuteChannel(t *testing.T) {
	pd := newTestDetector()

	window := make([]complex128, 2048)
	for idx := range window {
		window[idx] = complex(0.8, 0.3)
	}

	res := pd.Execute(window)
	if res.Confident {
		t.Fatalf("unmodulated carrier gave confident sync: %+v", res)
	}

	if math.Abs(real(res.Channel)-0.8) > 1e-9 || math.Abs(imag(res.Channel)-0.3) > 1e-9 {
		t.Fatalf("expected channel (0.8+0.3i) got %v", res.Channel)
	}
}

func TestExecuteEmpty(t *testing.T) {
	pd := newTestDetector()

	res := pd.Execute(nil)
	if res.Confident || res.Index != 0 {
		t.Fatalf("expected zero result got %+v", res)
	}

	// Shorter than the preamble itself.
	res = pd.Execute(make([]complex128, 100))
	if res.Confident {
		t.Fatalf("expected unconfident result got %+v", res)
	}
}

func TestArgMax(t *testing.T) {
	max, idx := ArgMax([]float64{-1, 3, 2, 3, 0})
	if max != 3 || idx != 1 {
		t.Fatalf("expected 3 at 1 got %f at %d", max, idx)
	}

	max, idx = ArgMax([]float64{-3, -2, -1})
	if max != 0 || idx != 0 {
		t.Fatalf("expected 0 at 0 got %f at %d", max, idx)
	}
}

func BenchmarkExecute(b *testing.B) {
	pd := newTestDetector()
	window := rectReply(b, 400, []byte{0xA5, 0x3C})

	b.SetBytes(int64(len(window)))
	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		pd.Execute(window)
	}
}
