package gen

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	mrand "math/rand"

	"github.com/bemasher/rtlrfid/crc"
)

// DefaultPC is a protocol control word announcing a 96-bit EPC.
const DefaultPC = 0x3000

var gen2 = crc.NewGen2()

// AppendCRC returns data followed by its Gen2 CRC-16.
func AppendCRC(data []byte) []byte {
	pkt := make([]byte, len(data)+2)
	copy(pkt, data)
	binary.BigEndian.PutUint16(pkt[len(data):], gen2.Checksum(data))
	return pkt
}

// NewRandRN16 returns a random handle followed by its checksum.
func NewRandRN16() (pkt []byte, err error) {
	rn := make([]byte, 2)
	if _, err = rand.Read(rn); err != nil {
		return nil, err
	}

	return AppendCRC(rn), nil
}

// NewRandEPC returns a PC word, a random 96-bit EPC and the checksum.
func NewRandEPC() (pkt []byte, err error) {
	data := make([]byte, 14)
	if _, err = rand.Read(data[2:]); err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint16(data, DefaultPC)

	return AppendCRC(data), nil
}

func UnpackBits(data []byte) []byte {
	bits := make([]byte, len(data)<<3)

	for idx, b := range data {
		offset := idx << 3
		for bit := 7; bit >= 0; bit-- {
			bits[offset+(7-bit)] = (b >> uint8(bit)) & 0x01
		}
	}

	return bits
}

// FM0 returns half-bit levels (+1, -1) for a reply: the preamble followed by
// the FM0 encoded bits and the terminating dummy 1. The level inverts at every
// symbol boundary and a 0 also inverts mid-symbol.
func FM0(preamble string, bits []byte) (levels []float64) {
	levels = make([]float64, 0, len(preamble)+(len(bits)+1)<<1)
	for _, bit := range preamble {
		if bit == '1' {
			levels = append(levels, 1)
		} else {
			levels = append(levels, -1)
		}
	}

	last := 1.0
	if len(levels) > 0 {
		last = levels[len(levels)-1]
	}

	symbol := func(bit byte) {
		first := -last
		second := first
		if bit == 0 {
			second = -first
		}
		levels = append(levels, first, second)
		last = second
	}

	for _, bit := range bits {
		symbol(bit)
	}
	symbol(1)

	return levels
}

// Modulator renders half-bit levels as complex baseband backscatter: a
// carrier leaking into the receiver with the tag's reflection added on top,
// both rotated by the channel.
type Modulator struct {
	HalfLength float64
	Channel    complex128
	Carrier    float64
	Depth      float64

	// Smooth interpolates linearly between half-bit centers, as a band-limited
	// front end would. Otherwise levels are rectangular.
	Smooth bool

	// Standard deviation of complex gaussian noise added to each sample,
	// drawn from Rand. No noise when Rand is nil.
	Noise float64
	Rand  *mrand.Rand
}

func NewModulator(halfLength float64) Modulator {
	return Modulator{
		HalfLength: halfLength,
		Channel:    complex(0.8, 0.3),
		Carrier:    1.0,
		Depth:      0.2,
		Smooth:     true,
	}
}

// Level returns the tag's reflection at sample offset t from the first half
// bit. Outside the reply the tag doesn't modulate.
func (m Modulator) Level(levels []float64, t float64) float64 {
	at := func(idx int) float64 {
		if idx < 0 || idx >= len(levels) {
			return 0
		}
		return levels[idx]
	}

	if !m.Smooth {
		if t < 0 {
			return 0
		}
		return at(int(t / m.HalfLength))
	}

	pos := t/m.HalfLength - 0.5
	lower := math.Floor(pos)
	frac := pos - lower
	return at(int(lower))*(1-frac) + at(int(lower)+1)*frac
}

// Modulate renders levels after lead samples of unmodulated carrier and
// pads the window to length samples.
func (m Modulator) Modulate(levels []float64, lead, length int) []complex128 {
	signal := make([]complex128, length)
	m.Add(signal, levels, lead)
	m.AddCarrier(signal)
	return signal
}

// Add sums a reply's reflection into signal, starting at sample lead.
func (m Modulator) Add(signal []complex128, levels []float64, lead int) {
	for idx := range signal {
		v := m.Depth * m.Level(levels, float64(idx-lead))
		signal[idx] += m.Channel * complex(v, 0)
	}
}

// AddCarrier adds carrier leakage and noise to signal.
func (m Modulator) AddCarrier(signal []complex128) {
	for idx := range signal {
		signal[idx] += m.Channel * complex(m.Carrier, 0)
		if m.Rand != nil && m.Noise > 0 {
			signal[idx] += complex(m.Rand.NormFloat64()*m.Noise, m.Rand.NormFloat64()*m.Noise)
		}
	}
}

// ReplyLength is the number of samples levels occupy.
func (m Modulator) ReplyLength(levels []float64) int {
	return int(math.Ceil(float64(len(levels)) * m.HalfLength))
}
