package parse

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
)

const (
	RN16Bits = 16
	CRCBits  = 16

	// PC word, 96-bit EPC and CRC-16.
	EPCBits = 128

	// The partial tag identifier is the last byte of the EPC.
	TagIDOffset = 104
)

// RN16 is the random handle a tag backscatters after Query or QueryRep.
type RN16 struct {
	Value       uint16 `xml:",attr"`
	ChecksumVal uint16 `xml:"Checksum,attr"`
}

// NewRN16 interprets the first 16 bits of data as the handle and, when
// present, the following 16 bits as its checksum.
func NewRN16(data Data) (rn RN16) {
	rn.Value = uint16(data.Uint(0, RN16Bits))
	if len(data.Bits) >= RN16Bits+CRCBits {
		rn.ChecksumVal = uint16(data.Uint(RN16Bits, RN16Bits+CRCBits))
	}

	return
}

func (rn RN16) MsgType() string {
	return "RN16"
}

func (rn RN16) Payload() []byte {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, rn.Value)
	return payload
}

func (rn RN16) Checksum() []byte {
	checksum := make([]byte, 2)
	binary.BigEndian.PutUint16(checksum, rn.ChecksumVal)
	return checksum
}

func (rn RN16) String() string {
	return fmt.Sprintf("{Value:0x%04X CRC:0x%04X}", rn.Value, rn.ChecksumVal)
}

func (rn RN16) Record() (r []string) {
	r = append(r, rn.MsgType())
	r = append(r, "0x"+strconv.FormatUint(uint64(rn.Value), 16))
	r = append(r, "0x"+strconv.FormatUint(uint64(rn.ChecksumVal), 16))

	return
}

// EPC is the tag's reply to an ACK: protocol control word, EPC and CRC-16.
type EPC struct {
	PC          uint16 `xml:",attr"`
	Code        []byte `xml:"-" json:"-"`
	CodeHex     string `xml:"EPC,attr" json:"EPC"`
	ChecksumVal uint16 `xml:"Checksum,attr"`
}

func NewEPC(data Data) (epc EPC) {
	epc.PC = uint16(data.Uint(0, 16))
	epc.Code = make([]byte, (EPCBits-32)>>3)
	copy(epc.Code, data.Bytes[2:])
	epc.CodeHex = hex.EncodeToString(epc.Code)
	epc.ChecksumVal = uint16(data.Uint(EPCBits-CRCBits, EPCBits))

	return
}

// TagID is the partial identifier readers key their statistics on: bits
// 104 through 111 of the reply.
func (epc EPC) TagID() uint8 {
	return epc.Code[len(epc.Code)-1]
}

func (epc EPC) MsgType() string {
	return "EPC"
}

func (epc EPC) Payload() []byte {
	return epc.Code
}

func (epc EPC) Checksum() []byte {
	checksum := make([]byte, 2)
	binary.BigEndian.PutUint16(checksum, epc.ChecksumVal)
	return checksum
}

func (epc EPC) String() string {
	return fmt.Sprintf("{PC:0x%04X EPC:%s TagID:%3d CRC:0x%04X}",
		epc.PC, epc.CodeHex, epc.TagID(), epc.ChecksumVal,
	)
}

func (epc EPC) Record() (r []string) {
	r = append(r, epc.MsgType())
	r = append(r, "0x"+strconv.FormatUint(uint64(epc.PC), 16))
	r = append(r, epc.CodeHex)
	r = append(r, strconv.FormatUint(uint64(epc.TagID()), 10))
	r = append(r, "0x"+strconv.FormatUint(uint64(epc.ChecksumVal), 16))

	return
}
