// RTLRFID - An rtl-sdr receiver for EPC Gen2 RFID tag backscatter.
// Copyright (C) 2015 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package protocol

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/rtlrfid/crc"
	"github.com/bemasher/rtlrfid/decode"
	"github.com/bemasher/rtlrfid/parse"
	"github.com/bemasher/rtlrfid/preamble"
)

// ErrNotEnoughInput is returned when a window is shorter than the reader
// state's MinWindow. Nothing is consumed and the state is left untouched.
var ErrNotEnoughInput = errors.New("protocol: not enough input")

// Options configures the reader side of decoding.
type Options struct {
	// Windows shorter than this are not searched for an RN16.
	MinRN16Window int `yaml:"minrn16window"`
}

// A SampleSink receives the background-subtracted RN16 samples of each
// attempt with a confident sync, after decoding has finished.
type SampleSink interface {
	WriteSamples(round int, samples []complex128) error
}

// Decoder runs one decode attempt per gated window and decides the next
// reader command.
type Decoder struct {
	decode.Decoder
	crc.CRC

	Opts Options
	Sink SampleSink
}

func NewDecoder(cfg decode.PacketConfig, opts Options) Decoder {
	return Decoder{
		Decoder: decode.NewDecoder(cfg),
		CRC:     crc.NewGen2(),
		Opts:    opts,
	}
}

// Result describes a single decode attempt.
type Result struct {
	Mode     Mode
	Round    int
	Slot     int
	Consumed int

	Sync preamble.Result

	// Estimated half-bit length of an EPC reply.
	T float64

	// Demodulated RN16 handle as 0/1 values.
	Bits []float64

	// Background-subtracted RN16 samples.
	Samples []complex128

	CRCOK    bool
	Messages []parse.Message

	Next Action
}

// Decode attempts to decode the reply expected by state.Mode from window,
// advances the slot and round counters and stores the next action in state.
// The whole window is consumed whether or not decoding succeeds.
func (d Decoder) Decode(state *ReaderState, window []complex128) (res Result, err error) {
	if len(window) < state.MinWindow {
		return res, errors.Wrapf(ErrNotEnoughInput, "have %d samples, need %d", len(window), state.MinWindow)
	}

	res.Mode = state.Mode
	res.Round, res.Slot = state.Stats.position()
	res.Consumed = len(window)

	var ok bool
	switch state.Mode {
	case AwaitingRN16:
		ok = d.decodeRN16(window, &res)
	case AwaitingEPC:
		ok = d.decodeEPC(state.Stats, window, &res)
	default:
		return res, errors.Errorf("protocol: unknown decoder mode %s", state.Mode)
	}

	res.Next = SendQueryRep
	if ok && state.Mode == AwaitingRN16 {
		res.Next = SendACK
	}
	if state.Stats.advance() {
		res.Next = SendQuery
	}
	state.Next = res.Next

	if d.Sink != nil && res.Samples != nil {
		if err := d.Sink.WriteSamples(res.Round, res.Samples); err != nil {
			logrus.WithError(err).Warn("writing rn16 samples")
		}
	}

	return res, nil
}

func (d Decoder) decodeRN16(window []complex128, res *Result) bool {
	if len(window) < d.Opts.MinRN16Window {
		logrus.Debugf("window too short for rn16: %d < %d", len(window), d.Opts.MinRN16Window)
		return false
	}

	res.Sync = d.Sync(window)
	if !res.Sync.Confident {
		logrus.Debugf("rn16 sync below threshold: %f", res.Sync.Peak)
		return false
	}

	n := d.Decoder.Cfg.RN16Symbols

	lower := res.Sync.Index
	upper := lower + int(float64(n+2)*d.Decoder.Cfg.SymbolLength)
	if upper > len(window) {
		upper = len(window)
	}
	if lower >= upper {
		return false
	}

	res.Samples = make([]complex128, upper-lower)
	for idx := range res.Samples {
		res.Samples[idx] = window[lower+idx] - res.Sync.Channel
	}

	bits, err := d.Demodulate(res.Samples, n, 0)
	if err != nil {
		logrus.WithError(err).Debug("rn16 demodulation")
		return false
	}

	res.Bits = make([]float64, parse.RN16Bits)
	for idx := range res.Bits {
		res.Bits[idx] = float64(bits[idx])
	}

	data := parse.NewDataFromBits(bits)
	res.Messages = append(res.Messages, parse.NewRN16(data))

	if !d.Decoder.Cfg.RN16CRC {
		res.CRCOK = true
		return true
	}

	res.CRCOK, err = d.CheckBits(data.Bits)
	if err != nil {
		logrus.WithError(err).Error("rn16 crc")
		return false
	}

	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.WithField("crc", res.CRCOK).Debugf("rn16 data: %s", data.Bits)
	}

	return res.CRCOK
}

func (d Decoder) decodeEPC(stats *Stats, window []complex128, res *Result) bool {
	res.Sync = d.Sync(window)
	if !res.Sync.Confident {
		logrus.Debugf("epc sync below threshold: %f", res.Sync.Peak)
		return false
	}

	bits, T, err := d.DecodeEPC(window, res.Sync)
	res.T = T
	if err != nil {
		logrus.WithError(err).Error("epc demodulation")
		return false
	}
	if len(bits) != parse.EPCBits {
		logrus.Errorf("epc demodulation: got %d bits, expected %d", len(bits), parse.EPCBits)
		return false
	}

	data := parse.NewDataFromBits(bits)
	res.CRCOK, err = d.CheckBits(data.Bits)
	if err != nil {
		logrus.WithError(err).Error("epc crc")
		return false
	}

	if !res.CRCOK {
		logrus.WithField("T", T).Debug("epc failed to decode")
		return false
	}

	epc := parse.NewEPC(data)
	stats.credit(epc.TagID())
	res.Messages = append(res.Messages, epc)

	logrus.WithFields(logrus.Fields{
		"T":     T,
		"TagID": epc.TagID(),
	}).Debug("epc correctly decoded")

	return true
}
