// Package dump records the background-subtracted RN16 samples of each decode
// attempt for offline analysis, one file per inventory round.
package dump

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/bemasher/rtlrfid/csv"
)

// RoundDumper appends the real part of each sample window as a CSV row to
// <Dir>/<round>.
type RoundDumper struct {
	Dir string

	mu    sync.Mutex
	round int
	file  *os.File
	enc   *csv.Encoder
}

func NewRoundDumper(dir string) (*RoundDumper, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create dump directory")
	}

	return &RoundDumper{Dir: dir}, nil
}

// Path returns the file samples from round are written to.
func (rd *RoundDumper) Path(round int) string {
	return filepath.Join(rd.Dir, strconv.Itoa(round))
}

func (rd *RoundDumper) WriteSamples(round int, samples []complex128) error {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	if rd.file == nil || rd.round != round {
		if err := rd.close(); err != nil {
			return err
		}

		f, err := os.OpenFile(rd.Path(round), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return errors.Wrapf(err, "open dump for round %d", round)
		}

		rd.file = f
		rd.round = round
		rd.enc = csv.NewEncoder(f)
	}

	row := make(csv.Floats, len(samples))
	for idx, s := range samples {
		row[idx] = real(s)
	}

	return errors.Wrapf(rd.enc.Encode(row), "write dump for round %d", round)
}

func (rd *RoundDumper) close() error {
	if rd.file == nil {
		return nil
	}

	err := rd.file.Close()
	rd.file = nil
	rd.enc = nil

	return errors.Wrap(err, "close dump")
}

func (rd *RoundDumper) Close() error {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	return rd.close()
}
