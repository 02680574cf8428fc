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
	"bufio"
	"io"
	"os"

	"github.com/bemasher/rtltcp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/rtlrfid/gen"
	"github.com/bemasher/rtlrfid/protocol"
)

// A Source fills sample windows gated after each reader command.
type Source interface {
	ReadWindow(window []complex128) error
	Close() error
}

// A Transmitter sends reader commands. Handle is the RN16 payload an ACK
// acknowledges and is nil otherwise.
type Transmitter interface {
	Transmit(a protocol.Action, handle []byte) error
}

// SDRSource reads unsigned 8-bit I/Q from an rtl_tcp server.
type SDRSource struct {
	rtltcp.SDR

	lut IQLUT
	buf []byte
}

func NewSDRSource(sdr rtltcp.SDR) *SDRSource {
	return &SDRSource{SDR: sdr, lut: NewIQLUT()}
}

func (src *SDRSource) ReadWindow(window []complex128) error {
	if len(src.buf) != len(window)<<1 {
		src.buf = make([]byte, len(window)<<1)
	}

	if _, err := io.ReadFull(src.SDR, src.buf); err != nil {
		return err
	}
	src.lut.Execute(src.buf, window)

	return nil
}

// FileSource reads interleaved little-endian float32 I/Q samples.
type FileSource struct {
	file *os.File
	r    *bufio.Reader
	buf  []byte
}

func NewFileSource(filename string) (*FileSource, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "open sample file")
	}

	return &FileSource{file: f, r: bufio.NewReader(f)}, nil
}

func (src *FileSource) ReadWindow(window []complex128) error {
	if len(src.buf) != len(window)<<3 {
		src.buf = make([]byte, len(window)<<3)
	}

	if _, err := io.ReadFull(src.r, src.buf); err != nil {
		return err
	}
	Float32ToComplex(src.buf, window)

	return nil
}

func (src *FileSource) Close() error {
	return src.file.Close()
}

// SimSource renders the replies of a simulated tag field to the commands it
// is sent.
type SimSource struct {
	Field *gen.Field

	cmd    gen.Command
	handle []byte
}

func NewSimSource(field *gen.Field) *SimSource {
	return &SimSource{Field: field, cmd: gen.Query}
}

func (src *SimSource) Transmit(a protocol.Action, handle []byte) error {
	src.cmd = SimCommand(a)
	src.handle = handle
	return nil
}

func (src *SimSource) ReadWindow(window []complex128) error {
	src.Field.Window = len(window)
	copy(window, src.Field.Command(src.cmd, src.handle))
	return nil
}

func (src *SimSource) Close() error {
	return nil
}

// SimCommand maps a reader action to the command simulated tags respond to.
func SimCommand(a protocol.Action) gen.Command {
	switch a {
	case protocol.SendQueryRep:
		return gen.QueryRep
	case protocol.SendACK:
		return gen.ACK
	}
	return gen.Query
}

// LogTransmitter stands in for a reader's transmit chain, which is outside
// this receiver: it only logs the commands.
type LogTransmitter struct{}

func (LogTransmitter) Transmit(a protocol.Action, handle []byte) error {
	if handle != nil {
		logrus.Debugf("transmit %s %02X", a, handle)
	} else {
		logrus.Debugf("transmit %s", a)
	}
	return nil
}
