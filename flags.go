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
	"encoding/json"
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/rtlrfid/csv"
	"github.com/bemasher/rtlrfid/parse"
)

var configFilename = flag.String("config", "", "yaml file with packet and reader configuration")

var source = flag.String("source", "rtltcp", "sample source: rtltcp, file or sim")
var inputFilename = flag.String("input", "", "interleaved float32 I/Q sample file for -source=file")

var windowSize = flag.Int("window", 0, "samples gated after each reader command, 0 uses the configured window")
var maxSlot = flag.Int("maxslot", 0, "slots per inventory round, 0 uses the configured value")
var minRN16Window = flag.Int("minrn16window", -1, "minimum window for an rn16 decode, -1 uses the configured value")
var blf = flag.Int("blf", 0, "backscatter link frequency in Hz, 0 uses the configured value")

var simTags = flag.Int("simtags", 4, "number of simulated tags for -source=sim")
var simSeed = flag.Int64("simseed", 1, "random seed of the simulated tag field")
var simNoise = flag.Float64("simnoise", 0.01, "noise standard deviation of the simulated tag field")

var timeLimit = flag.Duration("duration", 0, "time to run for, 0 for infinite, ex. 1h5m10s")
var tagID TagIDFilter

var unique = flag.Bool("unique", false, "suppress duplicate epcs")

var encoder Encoder
var format = flag.String("format", "plain", "decoded message output format: plain, csv, json, or xml")
var rn16 = flag.Bool("rn16", false, "also output decoded rn16 handles")

var dumpDir = flag.String("dumpdir", "", "directory to dump rn16 samples to, one csv file per round")
var metricsAddr = flag.String("metrics", "", "address to serve prometheus metrics on, ex. :9100")
var logLevel = flag.String("loglevel", "info", "log level: debug, info, warn or error")

var version = flag.Bool("version", false, "display build date and commit hash")

func RegisterFlags() {
	tagID = TagIDFilter{make(UintMap)}

	flag.Var(tagID, "filterid", "display only epcs matching a tag id in a comma-separated list of ids.")

	rtlrfidFlags := map[string]bool{
		"config":        true,
		"source":        true,
		"input":         true,
		"window":        true,
		"maxslot":       true,
		"minrn16window": true,
		"blf":           true,
		"simtags":       true,
		"simseed":       true,
		"simnoise":      true,
		"duration":      true,
		"filterid":      true,
		"unique":        true,
		"format":        true,
		"rn16":          true,
		"dumpdir":       true,
		"metrics":       true,
		"loglevel":      true,
		"version":       true,
	}

	printDefaults := func(validFlags map[string]bool, inclusion bool) {
		flag.CommandLine.VisitAll(func(f *flag.Flag) {
			if validFlags[f.Name] != inclusion {
				return
			}

			format := "  -%s=%s: %s\n"
			fmt.Fprintf(os.Stderr, format, f.Name, f.Value, f.Usage)
		})
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		printDefaults(rtlrfidFlags, true)

		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "rtltcp specific:")
		printDefaults(rtlrfidFlags, false)
	}
}

func EnvOverride() {
	flag.VisitAll(func(f *flag.Flag) {
		envName := "RTLRFID_" + strings.ToUpper(f.Name)
		flagValue := os.Getenv(envName)
		if flagValue != "" {
			if err := flag.Set(f.Name, flagValue); err != nil {
				logrus.Warnf(
					"Environment variable %q failed to override flag %q with value %q: %q",
					envName, f.Name, flagValue, err,
				)
			} else {
				logrus.Infof("Environment variable %q overrides flag %q with %q", envName, f.Name, flagValue)
			}
		}
	})
}

func HandleFlags() (err error) {
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		return errors.Wrap(err, "loglevel")
	}
	logrus.SetLevel(level)

	encoder, err = NewEncoder(*format, os.Stdout)
	return err
}

// JSON, XML and CSV all implement this interface so we can simplify log
// output formatting.
type Encoder interface {
	Encode(interface{}) error
}

func NewEncoder(format string, w io.Writer) (Encoder, error) {
	switch strings.ToLower(format) {
	case "plain":
		return PlainEncoder{w}, nil
	case "csv":
		return csv.NewEncoder(w), nil
	case "json":
		return json.NewEncoder(w), nil
	case "xml":
		return xml.NewEncoder(w), nil
	}

	return nil, errors.Errorf("invalid format: %q", format)
}

type UintMap map[uint]bool

func (m UintMap) String() (s string) {
	var values []string
	for k := range m {
		values = append(values, strconv.FormatUint(uint64(k), 10))
	}
	return strings.Join(values, ",")
}

func (m UintMap) Set(value string) error {
	values := strings.Split(value, ",")

	for _, v := range values {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return err
		}

		m[uint(n)] = true
	}

	return nil
}

// TagIDFilter passes epcs whose partial tag id is in the set.
type TagIDFilter struct {
	UintMap
}

func (f TagIDFilter) Filter(msg parse.Message) bool {
	epc, ok := msg.(parse.EPC)
	return ok && f.UintMap[uint(epc.TagID())]
}

// UniqueFilter passes each distinct epc once. Other messages always pass.
type UniqueFilter map[string]bool

func NewUniqueFilter() UniqueFilter {
	return make(UniqueFilter)
}

func (uf UniqueFilter) Filter(msg parse.Message) bool {
	epc, ok := msg.(parse.EPC)
	if !ok {
		return true
	}

	if uf[epc.CodeHex] {
		return false
	}

	uf[epc.CodeHex] = true
	return true
}

// RN16Filter drops rn16 handles unless they were asked for.
type RN16Filter struct{}

func (RN16Filter) Filter(msg parse.Message) bool {
	_, ok := msg.(parse.RN16)
	return !ok
}

type PlainEncoder struct {
	w io.Writer
}

func (pe PlainEncoder) Encode(msg interface{}) (err error) {
	_, err = fmt.Fprintln(pe.w, msg)
	return
}
