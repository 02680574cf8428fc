package crc

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// ErrBitLength is returned when a bit string can't be packed into whole bytes
// or is too short to carry a checksum.
var ErrBitLength = errors.New("crc: bit count must be a multiple of 8 and at least 24")

type CRC struct {
	Name    string
	Init    uint16
	Poly    uint16
	XorOut  uint16
	Residue uint16

	tbl Table
}

func NewCRC(name string, init, poly, xorOut, residue uint16) (crc CRC) {
	crc.Name = name
	crc.Init = init
	crc.Poly = poly
	crc.XorOut = xorOut
	crc.Residue = residue
	crc.tbl = NewTable(crc.Poly)

	return
}

// NewGen2 returns the CRC-16 used by EPC Gen2 tag replies: preset 0xFFFF,
// polynomial x^16 + x^12 + x^5 + 1, ones-complemented result.
func NewGen2() CRC {
	return NewCRC("Gen2", 0xFFFF, 0x1021, 0xFFFF, 0x1D0F)
}

func (crc CRC) String() string {
	return fmt.Sprintf("{Name:%s Init:0x%04X Poly:0x%04X XorOut:0x%04X Residue:0x%04X}",
		crc.Name, crc.Init, crc.Poly, crc.XorOut, crc.Residue,
	)
}

// Checksum returns the finalized checksum of data.
func (crc CRC) Checksum(data []byte) uint16 {
	return Checksum(crc.Init, data, crc.tbl) ^ crc.XorOut
}

// Check reports whether the last two bytes of data hold the big-endian
// checksum of the bytes before them.
func (crc CRC) Check(data []byte) bool {
	n := len(data)
	if n < 3 {
		return false
	}

	return crc.Checksum(data[:n-2]) == binary.BigEndian.Uint16(data[n-2:])
}

// CheckBits packs a string of ASCII '0' and '1' most significant bit first and
// checks it with Check.
func (crc CRC) CheckBits(bits string) (bool, error) {
	if len(bits)%8 != 0 || len(bits) < 24 {
		return false, errors.Wrapf(ErrBitLength, "got %d bits", len(bits))
	}

	data := make([]byte, len(bits)>>3)
	for idx := 0; idx < len(bits); idx++ {
		data[idx>>3] <<= 1
		switch bits[idx] {
		case '1':
			data[idx>>3] |= 1
		case '0':
		default:
			return false, errors.Errorf("crc: invalid bit %q at offset %d", bits[idx], idx)
		}
	}

	return crc.Check(data), nil
}

type Table [256]uint16

func NewTable(poly uint16) (table Table) {
	for tIdx := range table {
		crc := uint16(tIdx) << 8
		for bIdx := 0; bIdx < 8; bIdx++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc = crc << 1
			}
		}
		table[tIdx] = crc
	}
	return table
}

func Checksum(init uint16, data []byte, table Table) (crc uint16) {
	crc = init
	for _, v := range data {
		crc = crc<<8 ^ table[crc>>8^uint16(v)]
	}
	return
}
