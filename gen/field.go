package gen

import (
	"bytes"
	"encoding/binary"
	mrand "math/rand"
)

// Command is a reader command as seen by simulated tags.
type Command int

const (
	Query Command = iota
	QueryRep
	ACK
)

func (cmd Command) String() string {
	switch cmd {
	case Query:
		return "Query"
	case QueryRep:
		return "QueryRep"
	case ACK:
		return "ACK"
	}
	return "Unknown"
}

// Tag is a simulated Gen2 tag.
type Tag struct {
	// PC word, EPC and CRC-16.
	Reply []byte
	Gain  float64

	handle []byte
	slot   int
}

func (t Tag) TagID() uint8 {
	return t.Reply[len(t.Reply)-3]
}

// Field is a population of tags in front of a reader antenna. Each command
// the reader sends yields the window of samples the reader gates afterwards.
type Field struct {
	Tags     []*Tag
	Mod      Modulator
	Preamble string

	Slots  int
	Window int
	Lead   int
	Jitter int

	rand *mrand.Rand
}

func NewField(tags int, mod Modulator, preamble string, slots, window int, seed int64) *Field {
	f := &Field{
		Mod:      mod,
		Preamble: preamble,
		Slots:    slots,
		Window:   window,
		Lead:     int(4 * mod.HalfLength),
		Jitter:   int(8 * mod.HalfLength),
		rand:     mrand.New(mrand.NewSource(seed)),
	}

	for idx := 0; idx < tags; idx++ {
		data := make([]byte, 14)
		binary.BigEndian.PutUint16(data, DefaultPC)
		f.rand.Read(data[2:])

		f.Tags = append(f.Tags, &Tag{
			Reply: AppendCRC(data),
			Gain:  0.7 + 0.3*f.rand.Float64(),
			slot:  -1,
		})
	}

	return f
}

// Command applies cmd to every tag and renders their replies. An ACK only
// draws a reply from the tag that backscattered the given handle.
func (f *Field) Command(cmd Command, handle []byte) []complex128 {
	var replies []*Tag
	var payloads [][]byte

	for _, t := range f.Tags {
		switch cmd {
		case Query:
			t.slot = f.rand.Intn(f.Slots)
		case QueryRep:
			t.slot--
		case ACK:
			if t.slot == 0 && len(handle) >= 2 && bytes.Equal(t.handle[:2], handle[:2]) {
				replies = append(replies, t)
				payloads = append(payloads, t.Reply)
				t.slot = -1
			}
			continue
		}

		if t.slot == 0 {
			t.handle = make([]byte, 2)
			f.rand.Read(t.handle)
			t.handle = AppendCRC(t.handle)

			replies = append(replies, t)
			payloads = append(payloads, t.handle)
		}
	}

	signal := make([]complex128, f.Window)
	for idx, t := range replies {
		mod := f.Mod
		mod.Depth *= t.Gain

		lead := f.Lead
		if f.Jitter > 0 {
			lead += f.rand.Intn(f.Jitter + 1)
		}
		mod.Add(signal, FM0(f.Preamble, UnpackBits(payloads[idx])), lead)
	}
	f.Mod.AddCarrier(signal)

	return signal
}
