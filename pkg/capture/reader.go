// Package capture reads libpcap-compatible offline capture files, yielding
// successive raw frames with their capture timestamps. It uses
// github.com/dreadl0ck/gopacket/pcapgo purely as a framing/timestamp
// source; decoding of link/network/transport/SomeIP layers is entirely
// hand-rolled downstream in decoder and pkg/someip.
package capture

import (
	"io"
	"os"
	"time"

	"github.com/dreadl0ck/gopacket/pcapgo"
	"github.com/pkg/errors"
)

// RawFrame is one captured frame: its wall-clock timestamp and opaque link
// layer bytes.
type RawFrame struct {
	Timestamp time.Time
	Data      []byte
}

// Reader sequentially reads frames from an offline pcap file.
type Reader struct {
	f   *os.File
	pr  *pcapgo.Reader
}

// Open opens path as a libpcap-compatible capture file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening capture file %s", path)
	}

	pr, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "parsing pcap header of %s", path)
	}

	return &Reader{f: f, pr: pr}, nil
}

// Next returns the next raw frame, or io.EOF when the file is exhausted.
// Per-packet timestamp is tv_sec + tv_usec*1000 nanoseconds past the Unix
// epoch.
func (r *Reader) Next() (RawFrame, error) {
	data, ci, err := r.pr.ReadPacketData()
	if err != nil {
		if err == io.EOF {
			return RawFrame{}, io.EOF
		}
		return RawFrame{}, errors.Wrap(err, "reading packet data")
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	return RawFrame{Timestamp: ci.Timestamp, Data: buf}, nil
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Run reads every frame from r and sends it on out, closing out when the
// file is exhausted or ctx-like cancellation happens via a closed done
// channel. This is the producer half of the bounded producer/consumer
// queue: out should be created with capacity 1000.
func Run(r *Reader, out chan<- RawFrame, done <-chan struct{}) error {
	defer close(out)

	for {
		frame, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		select {
		case out <- frame:
		case <-done:
			return nil
		}
	}
}
