/*
RTLRFID is an rtl-sdr receiver for the backscatter replies of EPC Gen2 RFID
tags. It gates a window of samples after every reader command, locates the
tag's FM0 preamble, demodulates the RN16 or EPC reply the reader is waiting
for, checks the CRC-16 and decides the next command: ACK after a valid RN16,
QueryRep after anything else and Query when an inventory round ends.

Command-line Flags:

	-source=rtltcp

Sample source. rtltcp reads unsigned 8-bit I/Q from an rtl_tcp server, file
reads interleaved little-endian float32 I/Q (GNU Radio's file sink format)
from the file given by -input, and sim renders the replies of -simtags
simulated tags to the commands the receiver sends.

	-config=""

Yaml file with packet and reader configuration. Missing fields keep their
defaults:

	packet:
	  samplerate: 2000000
	  blf: 40000
	  preamble: "110100100011"
	  rn16crc: true
	  threshold: 0.01
	  timingsteps: 20
	  timingspan: 0.01
	  timinghalfbits: 256
	reader:
	  centerfreq: 910000000
	  maxslot: 16
	  window: 8000
	  minrn16window: 6000

Flags given on the command line override the file.

	-window=0 -maxslot=0 -minrn16window=-1 -blf=0

Override the reader and packet configuration.

	-duration=0

Sets time to receive for, 0 for infinite.

	-filterid=

Display only EPCs whose partial tag id (bits 104 through 111 of the reply) is
in the given comma-separated list.

	-unique=false

Suppress duplicate EPCs.

	-rn16=false

Also output decoded RN16 handles.

	-format="plain"

Sets the log output format: plain, csv, json or xml. Plain text is formatted
as:

	{Time:%s Round:%d Slot:%d EPC:{PC:0x%04X EPC:%s TagID:%3d CRC:0x%04X}}

For json and xml output each line is an element, there is no root node.

	-dumpdir=""

Directory to dump the background-subtracted RN16 samples of every attempt
with a confident sync to. Each round's attempts are appended as csv rows to a
file named after the round.

	-metrics=""

Address to serve prometheus metrics on.

	-loglevel="info"

Every flag may also be set from the environment as RTLRFID_<FLAG>, for
example RTLRFID_FORMAT=json.

On exit the receiver reports the rounds run, the number of EPCs decoded, reads
per tag id and the number of distinct tags read by the end of each round.
*/
package main
