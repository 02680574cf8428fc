package gen

import (
	"bytes"
	"testing"

	"github.com/bemasher/rtlrfid/crc"
)

func TestNewRandRN16(t *testing.T) {
	gen2 := crc.NewGen2()

	for i := 0; i < 512; i++ {
		rn, err := NewRandRN16()
		if err != nil {
			t.Fatal(err)
		}

		if len(rn) != 4 {
			t.Fatalf("expected 4 bytes got %d", len(rn))
		}
		if !gen2.Check(rn) {
			t.Fatalf("failed checksum: %02X", rn)
		}
	}
}

func TestNewRandEPC(t *testing.T) {
	gen2 := crc.NewGen2()

	for i := 0; i < 512; i++ {
		epc, err := NewRandEPC()
		if err != nil {
			t.Fatal(err)
		}

		if len(epc) != 16 {
			t.Fatalf("expected 16 bytes got %d", len(epc))
		}
		if epc[0] != 0x30 || epc[1] != 0x00 {
			t.Fatalf("expected pc 0x3000 got %02X", epc[:2])
		}
		if !gen2.Check(epc) {
			t.Fatalf("failed checksum: %02X", epc)
		}
	}
}

func TestUnpackBits(t *testing.T) {
	recv := UnpackBits([]byte{0xF9, 0x53})
	expt := []byte{1, 1, 1, 1, 1, 0, 0, 1, 0, 1, 0, 1, 0, 0, 1, 1}
	if !bytes.Equal(recv, expt) {
		t.Fatalf("expected %d got %d", expt, recv)
	}
}

func TestFM0(t *testing.T) {
	recv := FM0("", []byte{1, 0})
	expt := []float64{-1, -1, 1, -1, 1, 1}
	if len(recv) != len(expt) {
		t.Fatalf("expected %v got %v", expt, recv)
	}
	for idx := range expt {
		if recv[idx] != expt[idx] {
			t.Fatalf("expected %v got %v", expt, recv)
		}
	}

	recv = FM0("10", []byte{0})
	expt = []float64{1, -1, 1, -1, 1, 1}
	for idx := range expt {
		if recv[idx] != expt[idx] {
			t.Fatalf("expected %v got %v", expt, recv)
		}
	}
}

func TestFM0NoAlias(t *testing.T) {
	bits := make([]byte, 2, 4)
	bits[0], bits[1] = 0, 0

	FM0("110100100011", bits)
	if extra := bits[:3][2]; extra != 0 {
		t.Fatalf("caller's slice was modified: %d", extra)
	}
}

func TestModulate(t *testing.T) {
	mod := NewModulator(25)
	mod.Smooth = false
	mod.Channel = 1

	levels := FM0("11", []byte{1})
	signal := mod.Modulate(levels, 10, 200)

	if len(signal) != 200 {
		t.Fatalf("expected 200 samples got %d", len(signal))
	}
	if signal[0] != 1 {
		t.Fatalf("expected carrier before reply got %v", signal[0])
	}
	if signal[10] != complex(1+mod.Depth, 0) {
		t.Fatalf("expected high level got %v", signal[10])
	}
	if signal[10+50] != complex(1-mod.Depth, 0) {
		t.Fatalf("expected low level got %v", signal[60])
	}
	if end := 10 + mod.ReplyLength(levels); signal[end] != 1 {
		t.Fatalf("expected carrier after reply got %v", signal[end])
	}
}

func TestSmoothLevel(t *testing.T) {
	mod := NewModulator(10)
	levels := []float64{1, -1}

	if v := mod.Level(levels, 5); v != 1 {
		t.Fatalf("expected 1 at first center got %f", v)
	}
	if v := mod.Level(levels, 10); v != 0 {
		t.Fatalf("expected 0 between centers got %f", v)
	}
	if v := mod.Level(levels, 15); v != -1 {
		t.Fatalf("expected -1 at second center got %f", v)
	}
}

func TestFieldInventory(t *testing.T) {
	mod := NewModulator(25)
	f := NewField(1, mod, "110100100011", 1, 8000, 1)

	// With a single slot every Query draws a reply.
	signal := f.Command(Query, nil)
	if len(signal) != 8000 {
		t.Fatalf("expected 8000 samples got %d", len(signal))
	}

	tag := f.Tags[0]
	if tag.slot != 0 || len(tag.handle) != 4 {
		t.Fatalf("expected tag to reply with a handle, slot %d handle %02X", tag.slot, tag.handle)
	}
	if !crc.NewGen2().Check(tag.handle) {
		t.Fatalf("handle failed checksum: %02X", tag.handle)
	}

	// Wrong handle, no reply.
	handle := []byte{tag.handle[0] ^ 0xFF, tag.handle[1]}
	f.Command(ACK, handle)
	if tag.slot != 0 {
		t.Fatalf("tag replied to another tag's handle")
	}

	f.Command(ACK, tag.handle[:2])
	if tag.slot != -1 {
		t.Fatalf("expected tag to leave the round after ack, slot %d", tag.slot)
	}

	// Tags outside slot 0 keep quiet.
	signal = f.Command(QueryRep, nil)
	for idx, s := range signal {
		if s != mod.Channel*complex(mod.Carrier, 0) {
			t.Fatalf("expected carrier only got %v at %d", s, idx)
		}
	}
}

func TestTagID(t *testing.T) {
	epc := AppendCRC([]byte{0x30, 0x00, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	if id := (Tag{Reply: epc}).TagID(); id != 12 {
		t.Fatalf("expected tag id 12 got %d", id)
	}
}

func BenchmarkModulate(b *testing.B) {
	mod := NewModulator(25)
	epc, _ := NewRandEPC()
	levels := FM0("110100100011", UnpackBits(epc))

	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		mod.Modulate(levels, 100, 8000)
	}
}
