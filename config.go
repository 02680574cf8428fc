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

package main

import (
	"fmt"
	"io/ioutil"
	"math"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/bemasher/rtlrfid/decode"
	"github.com/bemasher/rtlrfid/protocol"
)

const (
	// Valid sample rates fall in one of two bands:
	// http://cgit.osmocom.org/rtl-sdr/tree/src/librtlsdr.c#n1069
	LowerMin = 225e3
	LowerMax = 300e3
	UpperMin = 900e3
	UpperMax = 3.2e6
)

type Config struct {
	Packet decode.PacketConfig `yaml:"packet"`
	Reader ReaderConfig        `yaml:"reader"`
}

type ReaderConfig struct {
	CenterFreq uint32 `yaml:"centerfreq"`

	// Slots per inventory round.
	MaxSlot int `yaml:"maxslot"`

	// Samples gated after each command.
	Window int `yaml:"window"`

	protocol.Options `yaml:",inline"`
}

func NewConfig() (cfg Config) {
	cfg.Packet = decode.NewPacketConfig()

	cfg.Reader.CenterFreq = 910000000
	cfg.Reader.MaxSlot = 16
	cfg.Reader.Window = 8000
	cfg.Reader.MinRN16Window = 6000

	return
}

// LoadConfig reads a yaml config file over the defaults. Fields missing from
// the file keep their default values.
func LoadConfig(filename string) (cfg Config, err error) {
	cfg = NewConfig()

	data, err := ioutil.ReadFile(filename)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %q", filename)
	}

	return cfg, cfg.Validate()
}

func (cfg Config) Validate() error {
	if err := cfg.Packet.Validate(); err != nil {
		return errors.Wrap(err, "packet")
	}

	if cfg.Reader.MaxSlot < 1 {
		return errors.Errorf("reader: maxslot must be at least 1, have %d", cfg.Reader.MaxSlot)
	}
	if cfg.Reader.Window <= 0 {
		return errors.Errorf("reader: window must be positive, have %d", cfg.Reader.Window)
	}
	if cfg.Reader.MinRN16Window < 0 {
		return errors.Errorf("reader: minrn16window must not be negative, have %d", cfg.Reader.MinRN16Window)
	}

	return nil
}

// Warnings lists settings that are valid but unlikely to work well.
func (cfg Config) Warnings() (warnings []string) {
	sampleRate := float64(cfg.Packet.SampleRate)
	if !(LowerMin < sampleRate && sampleRate <= LowerMax) && !(UpperMin < sampleRate && sampleRate <= UpperMax) {
		warnings = append(warnings, fmt.Sprintf("sample rate %d is outside the rtl-sdr's valid ranges", cfg.Packet.SampleRate))
	}

	if spb := sampleRate / float64(cfg.Packet.BLF); spb != math.Trunc(spb) {
		warnings = append(warnings, fmt.Sprintf("%0.3f samples per tag bit is not an integer, symbol boundaries will drift", spb))
	}

	if cfg.Reader.MinRN16Window > cfg.Reader.Window {
		warnings = append(warnings, fmt.Sprintf("minrn16window %d exceeds window %d, no rn16 will ever decode", cfg.Reader.MinRN16Window, cfg.Reader.Window))
	}

	// Preamble, 128 bits and the dummy bit at the slowest candidate timing.
	epcLength := float64(len(cfg.Packet.Preamble)+2*129) * sampleRate / float64(cfg.Packet.BLF) / 2 * (1 + cfg.Packet.TimingSpan)
	if float64(cfg.Reader.Window) < epcLength {
		warnings = append(warnings, fmt.Sprintf("window %d is shorter than an epc reply (%0.0f samples)", cfg.Reader.Window, epcLength))
	}

	return
}
