package pcapio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Format identifies the on-disk capture file format.
type Format string

const (
	FormatPcap    Format = "pcap"
	FormatPcapNG  Format = "pcapng"
	FormatUnknown Format = "unknown"
)

// ErrUnreadable is returned when a file is not a readable capture file.
var ErrUnreadable = errors.New("unreadable capture file")

// Capture file magic numbers. The first four bytes of a file decide
// which reader is used.
var (
	magicPcapLE = []byte{0xd4, 0xc3, 0xb2, 0xa1}
	magicPcapBE = []byte{0xa1, 0xb2, 0xc3, 0xd4}
	magicPcapNG = []byte{0x0a, 0x0d, 0x0d, 0x0a}
)

// DetectFormat reads the magic bytes of the file at path and reports its format.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	header := make([]byte, 4)
	if _, err := io.ReadFull(f, header); err != nil {
		return FormatUnknown, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return formatFromMagic(header), nil
}

func formatFromMagic(header []byte) Format {
	switch {
	case matches(header, magicPcapLE), matches(header, magicPcapBE):
		return FormatPcap
	case matches(header, magicPcapNG):
		return FormatPcapNG
	default:
		return FormatUnknown
	}
}

func matches(header, magic []byte) bool {
	if len(header) < len(magic) {
		return false
	}
	for i := range magic {
		if header[i] != magic[i] {
			return false
		}
	}
	return true
}

// packetDataSource is the part of the pcapgo readers the Reader relies on.
type packetDataSource interface {
	LinkType() layers.LinkType
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// Reader reads packets from a pcap or pcapng file behind a single interface.
// The format is detected from the file's magic bytes.
type Reader struct {
	file   *os.File
	format Format
	src    packetDataSource
}

// OpenFile opens the capture file at path for sequential reading.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	format := formatFromMagic(header)
	var src packetDataSource
	switch format {
	case FormatPcap:
		r, err := pcapgo.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		src = r
	case FormatPcapNG:
		r, err := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		src = r
	default:
		f.Close()
		return nil, fmt.Errorf("%w: unrecognized magic bytes", ErrUnreadable)
	}

	return &Reader{file: f, format: format, src: src}, nil
}

// Format returns the detected capture file format.
func (r *Reader) Format() Format {
	return r.format
}

// LinkType returns the link type recorded in the capture file header.
func (r *Reader) LinkType() layers.LinkType {
	return r.src.LinkType()
}

// ReadPacketData returns the next packet's bytes and capture metadata.
// It returns io.EOF when the file is exhausted.
func (r *Reader) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return r.src.ReadPacketData()
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
