package pcapio

import (
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const defaultSnapLen = 65536

// Writer writes packets to a pcap file. Output is always the legacy pcap
// format regardless of the input format.
type Writer struct {
	file *os.File
	w    *pcapgo.Writer
}

// CreateFile creates (or truncates) a pcap file at path and writes the
// file header for the given link type.
func CreateFile(path string, linkType layers.LinkType) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(defaultSnapLen, linkType); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Writer{file: f, w: w}, nil
}

// WritePacket appends one packet record. The capture info lengths must
// match len(data); callers that rewrite packets fix them up beforehand.
func (w *Writer) WritePacket(ci gopacket.CaptureInfo, data []byte) error {
	return w.w.WritePacket(ci, data)
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.file.Sync(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
