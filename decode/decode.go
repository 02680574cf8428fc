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

package decode

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/rtlrfid/parse"
	"github.com/bemasher/rtlrfid/preamble"
)

// ErrShortBuffer is returned when a buffer can't hold every symbol a
// demodulator was asked for. Demodulators never return partial results.
var ErrShortBuffer = errors.New("decode: buffer too short")

// PacketConfig specifies tag reply and receiver configuration.
type PacketConfig struct {
	SampleRate int    `yaml:"samplerate"`
	BLF        int    `yaml:"blf"`
	Preamble   string `yaml:"preamble"`

	// RN16 replies carry a trailing CRC-16.
	RN16CRC bool `yaml:"rn16crc"`

	// Minimum preamble correlation for a confident sync.
	Threshold float64 `yaml:"threshold"`

	TimingSteps    int     `yaml:"timingsteps"`
	TimingSpan     float64 `yaml:"timingspan"`
	TimingHalfBits int     `yaml:"timinghalfbits"`

	SymbolLength    float64 `yaml:"-"`
	PreambleSymbols int     `yaml:"-"`
	RN16Symbols     int     `yaml:"-"`
	EPCSymbols      int     `yaml:"-"`
}

// NewPacketConfig returns the default Gen2 configuration: FM0 at a 40kHz
// backscatter link frequency sampled at 2MS/s.
func NewPacketConfig() (cfg PacketConfig) {
	cfg.SampleRate = 2000000
	cfg.BLF = 40000
	cfg.Preamble = "110100100011"
	cfg.RN16CRC = true
	cfg.Threshold = 0.01

	cfg.TimingSteps = 20
	cfg.TimingSpan = 0.01
	cfg.TimingHalfBits = 256

	return
}

func (cfg PacketConfig) Validate() error {
	if cfg.SampleRate <= 0 || cfg.BLF <= 0 {
		return errors.Errorf("samplerate and blf must be positive: %d, %d", cfg.SampleRate, cfg.BLF)
	}
	if cfg.SampleRate < 4*cfg.BLF {
		return errors.Errorf("need at least 4 samples per tag bit, have %0.2f", float64(cfg.SampleRate)/float64(cfg.BLF))
	}
	if len(cfg.Preamble) == 0 || len(cfg.Preamble)%2 != 0 {
		return errors.Errorf("preamble must be a non-empty even number of half bits: %q", cfg.Preamble)
	}
	if strings.Trim(cfg.Preamble, "01") != "" {
		return errors.Errorf("preamble must only contain 0 and 1: %q", cfg.Preamble)
	}
	if cfg.TimingSteps < 2 {
		return errors.Errorf("timing search needs at least 2 steps, have %d", cfg.TimingSteps)
	}
	if cfg.TimingSpan <= 0 || cfg.TimingSpan >= 0.5 {
		return errors.Errorf("timing span must be in (0, 0.5): %f", cfg.TimingSpan)
	}
	if cfg.TimingHalfBits <= 0 {
		return errors.Errorf("timing search needs a positive number of half bits: %d", cfg.TimingHalfBits)
	}

	return nil
}

// Decoder contains the configuration and preamble detector shared by every
// decode attempt. It holds no per-window state.
type Decoder struct {
	Cfg PacketConfig

	pd preamble.Detector
}

// Create a new decoder with the given packet configuration.
func NewDecoder(cfg PacketConfig) (d Decoder) {
	d.Cfg = cfg

	d.Cfg.SymbolLength = float64(d.Cfg.SampleRate) / float64(d.Cfg.BLF)
	d.Cfg.PreambleSymbols = len(d.Cfg.Preamble) >> 1

	d.Cfg.RN16Symbols = parse.RN16Bits
	if d.Cfg.RN16CRC {
		d.Cfg.RN16Symbols += parse.CRCBits
	}
	d.Cfg.EPCSymbols = parse.EPCBits

	// The preamble of an RN16 reply may start anywhere within the first
	// preamble plus handle worth of samples.
	d.pd = preamble.NewDetector(
		d.Cfg.SymbolLength,
		d.Cfg.Preamble,
		d.Cfg.PreambleSymbols+parse.RN16Bits,
		d.Cfg.Threshold,
	)

	return
}

func (d Decoder) Log() {
	logrus.WithFields(logrus.Fields{
		"SampleRate":      d.Cfg.SampleRate,
		"BLF":             d.Cfg.BLF,
		"SymbolLength":    d.Cfg.SymbolLength,
		"Preamble":        d.Cfg.Preamble,
		"PreambleSymbols": d.Cfg.PreambleSymbols,
		"RN16Symbols":     d.Cfg.RN16Symbols,
		"EPCSymbols":      d.Cfg.EPCSymbols,
		"Threshold":       d.Cfg.Threshold,
		"TimingSteps":     d.Cfg.TimingSteps,
		"TimingSpan":      d.Cfg.TimingSpan,
	}).Info("decoder configuration")
}

// Sync locates the tag reply in a window and estimates the channel.
func (d Decoder) Sync(window []complex128) preamble.Result {
	return d.pd.Execute(window)
}
