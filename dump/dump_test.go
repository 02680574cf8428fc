package dump

import (
	"io/ioutil"
	"os"
	"testing"
)

func TestRoundDumper(t *testing.T) {
	dir, err := ioutil.TempDir("", "rtlrfid")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	rd, err := NewRoundDumper(dir)
	if err != nil {
		t.Fatal(err)
	}

	for _, w := range []struct {
		round   int
		samples []complex128
	}{
		{1, []complex128{complex(0.5, 1), -1}},
		{1, []complex128{0.25}},
		{2, []complex128{complex(-0.125, 3)}},
	} {
		if err := rd.WriteSamples(w.round, w.samples); err != nil {
			t.Fatal(err)
		}
	}

	if err := rd.Close(); err != nil {
		t.Fatal(err)
	}

	for round, expected := range map[int]string{
		1: "0.500000,-1.000000\n0.250000\n",
		2: "-0.125000\n",
	} {
		buf, err := ioutil.ReadFile(rd.Path(round))
		if err != nil {
			t.Fatal(err)
		}
		if string(buf) != expected {
			t.Fatalf("round %d: expected %q got %q", round, expected, buf)
		}
	}

	// Reopening a round appends.
	if err := rd.WriteSamples(1, []complex128{1}); err != nil {
		t.Fatal(err)
	}
	rd.Close()

	buf, err := ioutil.ReadFile(rd.Path(1))
	if err != nil {
		t.Fatal(err)
	}
	if string(buf) != "0.500000,-1.000000\n0.250000\n1.000000\n" {
		t.Fatalf("expected appended row got %q", buf)
	}
}
