package protocol

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Mode selects which tag reply the next window is expected to hold. It is set
// by whatever transmits reader commands.
type Mode int

const (
	AwaitingRN16 Mode = iota
	AwaitingEPC
)

func (m Mode) String() string {
	switch m {
	case AwaitingRN16:
		return "AwaitingRN16"
	case AwaitingEPC:
		return "AwaitingEPC"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Action is the command the reader should transmit next.
type Action int

const (
	SendQuery Action = iota
	SendQueryRep
	SendACK
)

func (a Action) String() string {
	switch a {
	case SendQuery:
		return "SendQuery"
	case SendQueryRep:
		return "SendQueryRep"
	case SendACK:
		return "SendACK"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ModeAfter is the mode a window gated after sending a is decoded in.
func ModeAfter(a Action) Mode {
	if a == SendACK {
		return AwaitingEPC
	}
	return AwaitingRN16
}

// Stats tracks slots, inventory rounds and tag reads for a session. Only the
// decoder writes to it; readers should use Snapshot.
type Stats struct {
	mu sync.RWMutex

	slot    int
	maxSlot int
	round   int

	tagReads        map[uint8]int
	epcCorrect      int
	uniqueTagsRound []int
}

func NewStats(maxSlot int) *Stats {
	if maxSlot < 1 {
		maxSlot = 1
	}

	return &Stats{
		slot:     1,
		maxSlot:  maxSlot,
		round:    1,
		tagReads: make(map[uint8]int),
	}
}

// Snapshot is a point in time copy of Stats.
type Snapshot struct {
	Slot    int
	MaxSlot int
	Round   int

	TagReads        map[uint8]int
	EPCCorrect      int
	UniqueTagsRound []int
}

func (s *Stats) Snapshot() (snap Snapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap.Slot = s.slot
	snap.MaxSlot = s.maxSlot
	snap.Round = s.round
	snap.EPCCorrect = s.epcCorrect

	snap.TagReads = make(map[uint8]int, len(s.tagReads))
	for id, reads := range s.tagReads {
		snap.TagReads[id] = reads
	}

	snap.UniqueTagsRound = make([]int, len(s.uniqueTagsRound))
	copy(snap.UniqueTagsRound, s.uniqueTagsRound)

	return
}

// SetMaxSlot changes the number of slots per round, taking effect from the
// next slot.
func (s *Stats) SetMaxSlot(maxSlot int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxSlot < 1 {
		maxSlot = 1
	}
	s.maxSlot = maxSlot
}

func (s *Stats) position() (round, slot int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.round, s.slot
}

// advance consumes the current slot. Crossing the last slot of a round
// starts the next round and records how many distinct tags had been read.
func (s *Stats) advance() (roundEnded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.slot++
	if s.slot <= s.maxSlot {
		return false
	}

	s.slot = 1
	s.round++
	s.uniqueTagsRound = append(s.uniqueTagsRound, len(s.tagReads))

	return true
}

func (s *Stats) credit(tagID uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tagReads[tagID]++
	s.epcCorrect++
}

func (snap Snapshot) String() string {
	ids := make([]int, 0, len(snap.TagReads))
	for id := range snap.TagReads {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	reads := make([]string, len(ids))
	for idx, id := range ids {
		reads[idx] = fmt.Sprintf("%d:%d", id, snap.TagReads[uint8(id)])
	}

	return fmt.Sprintf("{Round:%d Slot:%d/%d EPCCorrect:%d TagReads:[%s] UniqueTagsRound:%v}",
		snap.Round, snap.Slot, snap.MaxSlot, snap.EPCCorrect, strings.Join(reads, " "), snap.UniqueTagsRound,
	)
}

// ReaderState is the reader state shared between the decoder and the
// command transmitter. The owner passes it to every decode.
type ReaderState struct {
	Mode Mode
	Next Action

	// Samples to gate before a decode is attempted.
	MinWindow int

	Stats *Stats
}

func NewReaderState(maxSlot, minWindow int) *ReaderState {
	return &ReaderState{
		Mode:      AwaitingRN16,
		Next:      SendQuery,
		MinWindow: minWindow,
		Stats:     NewStats(maxSlot),
	}
}
