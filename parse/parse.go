package parse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bemasher/rtlrfid/csv"
)

const (
	TimeFormat = "2006-01-02T15:04:05.000"
)

// Data holds a demodulated bit sequence both as a string of ASCII '0' and '1'
// and packed most significant bit first.
type Data struct {
	Bits  string
	Bytes []byte
}

// NewDataFromBits builds Data from a slice of 0/1 values. A trailing partial
// byte is left aligned.
func NewDataFromBits(bits []byte) (d Data) {
	var sb strings.Builder
	sb.Grow(len(bits))

	d.Bytes = make([]byte, (len(bits)+7)>>3)
	for idx, bit := range bits {
		if bit != 0 {
			sb.WriteByte('1')
			d.Bytes[idx>>3] |= 0x80 >> uint(idx&7)
		} else {
			sb.WriteByte('0')
		}
	}
	d.Bits = sb.String()

	return
}

func NewDataFromBytes(data []byte) (d Data) {
	d.Bytes = make([]byte, len(data))
	copy(d.Bytes, data)
	for _, b := range data {
		d.Bits += fmt.Sprintf("%08b", b)
	}

	return
}

// Uint returns bits [lower, upper) interpreted most significant bit first.
func (d Data) Uint(lower, upper int) uint64 {
	v, _ := strconv.ParseUint(d.Bits[lower:upper], 2, 64)
	return v
}

type Message interface {
	csv.Recorder
	MsgType() string
	Payload() []byte
	Checksum() []byte
}

// Uniquely identifies a message.
type Digest struct {
	MsgType  string
	Payload  string
	Checksum string
}

func NewDigest(msg Message) Digest {
	return Digest{
		msg.MsgType(),
		string(msg.Payload()),
		string(msg.Checksum()),
	}
}

// A LogMessage associates a message with a point in time and the inventory
// round and slot it was decoded in.
type LogMessage struct {
	Time    time.Time `xml:",attr"`
	Session string    `xml:",attr"`
	Round   int       `xml:",attr"`
	Slot    int       `xml:",attr"`
	Type    string    `xml:",attr"`
	Message
}

func (msg LogMessage) String() string {
	return fmt.Sprintf("{Time:%s Round:%d Slot:%d %s:%s}",
		msg.Time.Format(TimeFormat), msg.Round, msg.Slot, msg.MsgType(), msg.Message,
	)
}

func (msg LogMessage) StringNoSlot() string {
	return fmt.Sprintf("{Time:%s %s:%s}", msg.Time.Format(TimeFormat), msg.MsgType(), msg.Message)
}

func (msg LogMessage) Record() (r []string) {
	r = append(r, msg.Time.Format(time.RFC3339Nano))
	r = append(r, msg.Session)
	r = append(r, strconv.Itoa(msg.Round))
	r = append(r, strconv.Itoa(msg.Slot))
	r = append(r, msg.Message.Record()...)
	return r
}

// A FilterChain takes a list of filters and applies them iteratively to
// messages sent through the chain.
type FilterChain []MessageFilter

func (fc *FilterChain) Add(filter MessageFilter) {
	*fc = append(*fc, filter)
}

func (fc FilterChain) Match(msg Message) bool {
	if len(fc) == 0 {
		return true
	}

	for _, filter := range fc {
		if !filter.Filter(msg) {
			return false
		}
	}

	return true
}

type MessageFilter interface {
	Filter(Message) bool
}
