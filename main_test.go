package main

import (
	"bytes"
	"encoding/binary"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bemasher/rtlrfid/gen"
	"github.com/bemasher/rtlrfid/parse"
	"github.com/bemasher/rtlrfid/protocol"
)

func TestLoadConfig(t *testing.T) {
	dir, err := ioutil.TempDir("", "rtlrfid")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	filename := filepath.Join(dir, "config.yaml")
	err = ioutil.WriteFile(filename, []byte(strings.Join([]string{
		"packet:",
		"  blf: 50000",
		"reader:",
		"  maxslot: 8",
		"  minrn16window: 1000",
	}, "\n")), 0644)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(filename)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Packet.BLF != 50000 || cfg.Packet.SampleRate != 2000000 {
		t.Fatalf("unexpected packet config: %+v", cfg.Packet)
	}
	if cfg.Reader.MaxSlot != 8 || cfg.Reader.MinRN16Window != 1000 || cfg.Reader.Window != 8000 {
		t.Fatalf("unexpected reader config: %+v", cfg.Reader)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	if err := ioutil.WriteFile(filename, []byte("reader:\n  maxslot: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(filename); err == nil {
		t.Fatal("expected validation error for maxslot 0")
	}
}

func TestConfigWarnings(t *testing.T) {
	cfg := NewConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if w := cfg.Warnings(); len(w) != 0 {
		t.Fatalf("expected no warnings got %q", w)
	}

	cfg.Packet.BLF = 60000
	cfg.Packet.SampleRate = 500000
	cfg.Reader.Window = 5000
	if w := cfg.Warnings(); len(w) != 3 {
		t.Fatalf("expected rate, samples per bit and minrn16window warnings got %q", w)
	}
}

var testReply = gen.AppendCRC([]byte{0x30, 0x00, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 42})

func TestFilters(t *testing.T) {
	epc := parse.NewEPC(parse.NewDataFromBytes(testReply))
	rn := parse.NewRN16(parse.NewDataFromBytes([]byte{0xBE, 0xEF}))

	ids := TagIDFilter{make(UintMap)}
	if err := ids.Set("1,42"); err != nil {
		t.Fatal(err)
	}
	if err := ids.Set("300"); err == nil {
		t.Fatal("expected error for tag id out of range")
	}
	if !ids.Filter(epc) || ids.Filter(rn) {
		t.Fatal("tag id filter should only pass epcs with listed ids")
	}

	uf := NewUniqueFilter()
	if !uf.Filter(epc) || uf.Filter(epc) {
		t.Fatal("unique filter should pass an epc once")
	}
	if !uf.Filter(rn) || !uf.Filter(rn) {
		t.Fatal("unique filter should pass rn16s")
	}

	if (RN16Filter{}).Filter(rn) || !(RN16Filter{}).Filter(epc) {
		t.Fatal("rn16 filter should drop rn16s only")
	}
}

func TestNewEncoder(t *testing.T) {
	msg := parse.LogMessage{
		Session: "session",
		Round:   2,
		Slot:    5,
		Type:    "EPC",
		Message: parse.NewEPC(parse.NewDataFromBytes(testReply)),
	}

	for _, format := range []string{"plain", "CSV", "json", "xml"} {
		var buf bytes.Buffer

		enc, err := NewEncoder(format, &buf)
		if err != nil {
			t.Fatal(err)
		}
		if err := enc.Encode(msg); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "0102030405060708090a0b2a") {
			t.Fatalf("%s: expected epc in output got %q", format, buf.String())
		}
	}

	if _, err := NewEncoder("gob", ioutil.Discard); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestFileSource(t *testing.T) {
	f, err := ioutil.TempFile("", "rtlrfid")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())

	binary.Write(f, binary.LittleEndian, []float32{1, 2, 3, 4, 5, 6})
	f.Close()

	src, err := NewFileSource(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	window := make([]complex128, 2)
	if err := src.ReadWindow(window); err != nil {
		t.Fatal(err)
	}
	if window[0] != complex(1, 2) || window[1] != complex(3, 4) {
		t.Fatalf("unexpected samples %v", window)
	}

	if err := src.ReadWindow(window); err != io.ErrUnexpectedEOF {
		t.Fatalf("expected io.ErrUnexpectedEOF got %v", err)
	}
}

func TestSimCommand(t *testing.T) {
	for action, cmd := range map[protocol.Action]gen.Command{
		protocol.SendQuery:    gen.Query,
		protocol.SendQueryRep: gen.QueryRep,
		protocol.SendACK:      gen.ACK,
	} {
		if c := SimCommand(action); c != cmd {
			t.Fatalf("%s: expected %s got %s", action, cmd, c)
		}
	}
}

func newSimReceiver(out io.Writer, reg prometheus.Registerer) *Receiver {
	rcvr := &Receiver{cfg: NewConfig()}
	rcvr.cfg.Reader.MaxSlot = 4

	field := gen.NewField(1, gen.NewModulator(25), rcvr.cfg.Packet.Preamble, 4, rcvr.cfg.Reader.Window, 3)
	sim := NewSimSource(field)
	rcvr.src = sim
	rcvr.tx = sim

	rcvr.enc = PlainEncoder{out}
	rcvr.metrics = NewMetrics(reg)
	rcvr.fc.Add(RN16Filter{})
	rcvr.setup()

	return rcvr
}

func TestSimReceiver(t *testing.T) {
	var out bytes.Buffer
	reg := prometheus.NewRegistry()
	rcvr := newSimReceiver(&out, reg)

	if err := rcvr.Transmit(rcvr.state.Next, nil); err != nil {
		t.Fatal(err)
	}

	window := make([]complex128, rcvr.cfg.Reader.Window)
	for cmd := 0; cmd < 120; cmd++ {
		if err := rcvr.readWindow(window); err != nil {
			t.Fatal(err)
		}

		if _, err := rcvr.Handle(window); err != nil {
			t.Fatal(err)
		}
	}

	snap := rcvr.state.Stats.Snapshot()
	if snap.EPCCorrect == 0 {
		t.Fatalf("expected epc reads: %s", snap)
	}

	tag := rcvr.src.(*SimSource).Field.Tags[0]
	if snap.TagReads[tag.TagID()] != snap.EPCCorrect {
		t.Fatalf("expected every read from tag %d: %s", tag.TagID(), snap)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != snap.EPCCorrect {
		t.Fatalf("expected %d output lines got %d:\n%s", snap.EPCCorrect, len(lines), out.String())
	}
	for _, line := range lines {
		if !strings.Contains(line, "EPC:") || strings.Contains(line, "RN16") {
			t.Fatalf("unexpected output line %q", line)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	var attempts float64
	for _, mf := range families {
		if mf.GetName() != "rtlrfid_decode_attempts_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			attempts += m.GetCounter().GetValue()
		}
	}
	if attempts != 120 {
		t.Fatalf("expected 120 attempts counted got %f", attempts)
	}

	var report bytes.Buffer
	rcvr.Report(&report)
	if !strings.Contains(report.String(), "Rounds:     31") {
		t.Fatalf("unexpected report:\n%s", report.String())
	}
}
