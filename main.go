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
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/bemasher/rtltcp"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/rtlrfid/dump"
	"github.com/bemasher/rtlrfid/gen"
	"github.com/bemasher/rtlrfid/parse"
	"github.com/bemasher/rtlrfid/protocol"
)

var rcvr Receiver

type Receiver struct {
	sdr rtltcp.SDR

	cfg   Config
	src   Source
	tx    Transmitter
	d     protocol.Decoder
	state *protocol.ReaderState
	fc    parse.FilterChain

	session string
	start   time.Time
	enc     Encoder
	metrics *Metrics
	dumper  *dump.RoundDumper

	stop chan struct{}
}

func (rcvr *Receiver) RegisterFlags() {
	rcvr.sdr.RegisterFlags()
}

func (rcvr *Receiver) NewReceiver() (err error) {
	rcvr.cfg = NewConfig()
	if *configFilename != "" {
		if rcvr.cfg, err = LoadConfig(*configFilename); err != nil {
			return err
		}
	}

	gainFlagSet := false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "centerfreq":
			rcvr.cfg.Reader.CenterFreq = uint32(rcvr.sdr.Flags.CenterFreq)
		case "samplerate":
			rcvr.cfg.Packet.SampleRate = int(rcvr.sdr.Flags.SampleRate)
		case "gainbyindex", "tunergainmode", "tunergain", "agcmode":
			gainFlagSet = true
		case "blf":
			rcvr.cfg.Packet.BLF = *blf
		case "window":
			rcvr.cfg.Reader.Window = *windowSize
		case "maxslot":
			rcvr.cfg.Reader.MaxSlot = *maxSlot
		case "minrn16window":
			rcvr.cfg.Reader.MinRN16Window = *minRN16Window
		case "unique":
			rcvr.fc.Add(NewUniqueFilter())
		case "filterid":
			rcvr.fc.Add(tagID)
		}
	})

	if !*rn16 {
		rcvr.fc.Add(RN16Filter{})
	}

	if err := rcvr.cfg.Validate(); err != nil {
		return err
	}
	for _, warning := range rcvr.cfg.Warnings() {
		logrus.Warn(warning)
	}

	switch *source {
	case "rtltcp":
		if err := rcvr.connect(gainFlagSet); err != nil {
			return err
		}
		rcvr.src = NewSDRSource(rcvr.sdr)
		rcvr.tx = LogTransmitter{}
	case "file":
		if rcvr.src, err = NewFileSource(*inputFilename); err != nil {
			return err
		}
		rcvr.tx = LogTransmitter{}
	case "sim":
		sim := NewSimSource(rcvr.newField())
		rcvr.src = sim
		rcvr.tx = sim
	default:
		return errors.Errorf("invalid source: %q", *source)
	}

	if *dumpDir != "" {
		if rcvr.dumper, err = dump.NewRoundDumper(*dumpDir); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	rcvr.metrics = NewMetrics(reg)
	if *metricsAddr != "" {
		go ServeMetrics(*metricsAddr, reg)
	}

	rcvr.enc = encoder
	rcvr.setup()

	return nil
}

// setup builds the decoder and reader state from the receiver's config.
func (rcvr *Receiver) setup() {
	rcvr.d = protocol.NewDecoder(rcvr.cfg.Packet, rcvr.cfg.Reader.Options)
	if rcvr.dumper != nil {
		rcvr.d.Sink = rcvr.dumper
	}
	rcvr.d.Log()

	rcvr.state = protocol.NewReaderState(rcvr.cfg.Reader.MaxSlot, rcvr.cfg.Reader.Window)
	rcvr.session = uuid.New().String()
	rcvr.start = time.Now()
	rcvr.stop = make(chan struct{}, 1)

	logrus.WithFields(logrus.Fields{
		"Session": rcvr.session,
		"MaxSlot": rcvr.cfg.Reader.MaxSlot,
		"Window":  rcvr.cfg.Reader.Window,
	}).Info("reader configuration")
}

func (rcvr *Receiver) connect(gainFlagSet bool) error {
	// Connect to rtl_tcp server.
	if err := rcvr.sdr.Connect(nil); err != nil {
		return err
	}

	if err := rcvr.sdr.HandleFlags(); err != nil {
		return errors.Wrap(err, "rtltcp flags")
	}

	rcvr.sdr.SetCenterFreq(rcvr.cfg.Reader.CenterFreq)
	rcvr.sdr.SetSampleRate(uint32(rcvr.cfg.Packet.SampleRate))

	if !gainFlagSet {
		rcvr.sdr.SetGainMode(true)
	}

	// Tell the user how many gain settings were reported by rtl_tcp.
	logrus.Info("GainCount: ", rcvr.sdr.Info.GainCount)

	return nil
}

func (rcvr *Receiver) newField() *gen.Field {
	mod := gen.NewModulator(float64(rcvr.cfg.Packet.SampleRate) / float64(rcvr.cfg.Packet.BLF) / 2)
	mod.Noise = *simNoise
	mod.Rand = rand.New(rand.NewSource(*simSeed))

	return gen.NewField(*simTags, mod, rcvr.cfg.Packet.Preamble, rcvr.cfg.Reader.MaxSlot, rcvr.cfg.Reader.Window, *simSeed)
}

func (rcvr *Receiver) Close() {
	rcvr.stop <- struct{}{}

	if rcvr.src != nil {
		rcvr.src.Close()
	}
	if rcvr.dumper != nil {
		rcvr.dumper.Close()
	}
}

// Transmit sends a reader command and sets the mode the next window is
// decoded in.
func (rcvr *Receiver) Transmit(a protocol.Action, handle []byte) error {
	if err := rcvr.tx.Transmit(a, handle); err != nil {
		return errors.Wrapf(err, "transmit %s", a)
	}
	rcvr.state.Mode = protocol.ModeAfter(a)

	return nil
}

// Handle decodes a gated window, outputs the messages passing the filter
// chain and transmits the next command.
func (rcvr *Receiver) Handle(window []complex128) (res protocol.Result, err error) {
	res, err = rcvr.d.Decode(rcvr.state, window)
	if err != nil {
		return res, err
	}

	rcvr.metrics.Observe(res, rcvr.state.Stats.Snapshot())

	for _, msg := range res.Messages {
		// If the filterchain rejects the message, skip it.
		if !rcvr.fc.Match(msg) {
			continue
		}

		logMsg := parse.LogMessage{
			Time:    time.Now(),
			Session: rcvr.session,
			Round:   res.Round,
			Slot:    res.Slot,
			Type:    msg.MsgType(),
			Message: msg,
		}

		if err := rcvr.enc.Encode(logMsg); err != nil {
			return res, errors.Wrap(err, "encode message")
		}
	}

	var handle []byte
	if res.Next == protocol.SendACK {
		handle = res.Messages[0].Payload()
	}

	return res, rcvr.Transmit(res.Next, handle)
}

// readWindow reads from the source, retrying temporary network errors.
func (rcvr *Receiver) readWindow(window []complex128) error {
	for {
		err := rcvr.src.ReadWindow(window)

		// If we get a network operation error.
		if opErr, ok := err.(*net.OpError); ok && opErr.Temporary() {
			logrus.Warnf("operr: temporary: %+v", opErr)
			continue
		}

		return err
	}
}

func (rcvr *Receiver) Run() {
	// Setup signal channel for interruption.
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Kill, os.Interrupt)

	// Setup time limit channel
	tLimit := make(<-chan time.Time, 1)
	if *timeLimit != 0 {
		tLimit = time.After(*timeLimit)
	}

	windowCh := make(chan []complex128)
	gate := make(chan struct{}, 1)

	// Read a window each time the receiver gates one. Decoding finishes
	// before the next gate, so a single buffer is reused.
	go func() {
		window := make([]complex128, rcvr.cfg.Reader.Window)

		// When exiting this goroutine, close the window channel.
		defer close(windowCh)

		for {
			select {
			// Exit if we've been told to stop.
			case <-rcvr.stop:
				return
			case <-gate:
				err := rcvr.readWindow(window)

				// If we get an EOF, exit.
				if err == io.EOF || err == io.ErrUnexpectedEOF {
					logrus.Info("encountered eof: ", err)
					return
				}
				if err != nil {
					logrus.WithError(err).Error("reading samples")
					return
				}

				windowCh <- window
			}
		}
	}()

	if err := rcvr.Transmit(rcvr.state.Next, nil); err != nil {
		logrus.Fatal(err)
	}
	gate <- struct{}{}

	for {
		// Exit on interrupt or time limit, otherwise receive.
		select {
		case <-sigint:
			return
		case <-tLimit:
			logrus.Info("Time Limit Reached: ", time.Since(rcvr.start))
			return
		case window, ok := <-windowCh:
			// If windowCh is closed, exit.
			if !ok {
				return
			}

			if _, err := rcvr.Handle(window); err != nil {
				logrus.Fatal("Error handling window: ", err)
			}
			gate <- struct{}{}
		}
	}
}

// Report writes the session's inventory statistics.
func (rcvr *Receiver) Report(w io.Writer) {
	snap := rcvr.state.Stats.Snapshot()

	fmt.Fprintf(w, "Session:    %s\n", rcvr.session)
	fmt.Fprintf(w, "Duration:   %s\n", time.Since(rcvr.start).Round(time.Millisecond))
	fmt.Fprintf(w, "Rounds:     %d\n", snap.Round)
	fmt.Fprintf(w, "EPCCorrect: %d\n", snap.EPCCorrect)

	ids := make([]int, 0, len(snap.TagReads))
	for id := range snap.TagReads {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	fmt.Fprintf(w, "UniqueTags: %d\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(w, "  Tag %3d: %d reads\n", id, snap.TagReads[uint8(id)])
	}

	fmt.Fprintf(w, "UniqueTagsRound: %v\n", snap.UniqueTagsRound)
}

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000000",
	})
}

var (
	buildTag   = "dev"     // v#.#.#
	buildDate  = "unknown" // date -u '+%Y-%m-%d'
	commitHash = "unknown" // git rev-parse HEAD
)

func main() {
	rcvr.RegisterFlags()
	RegisterFlags()
	EnvOverride()
	flag.Parse()

	if *version {
		fmt.Println("Build Tag: ", buildTag)
		fmt.Println("Build Date:", buildDate)
		fmt.Println("Commit:    ", commitHash)
		os.Exit(0)
	}

	if err := HandleFlags(); err != nil {
		logrus.Fatal(err)
	}

	if err := rcvr.NewReceiver(); err != nil {
		logrus.Fatal(err)
	}
	defer rcvr.Close()

	rcvr.Run()
	rcvr.Report(os.Stderr)
}
