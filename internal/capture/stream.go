// Package capture drives the rewrite engine over whole capture files and
// provides read-only analysis of their contents. Processing is streaming:
// memory use is constant in the packet count, which matters for captures
// approaching a gigabyte.
package capture

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/sirupsen/logrus"

	"Replaya/internal/rewrite"
	"Replaya/internal/rules"
	"Replaya/pkg/pcapio"
)

const (
	// maxErrorLog bounds the per-run error list so a pathological capture
	// cannot grow the result without bound.
	maxErrorLog = 100
	// progressLogInterval is how often the stream logs progress.
	progressLogInterval = 10000
	// previewHexLimit truncates hex dumps in preview samples.
	previewHexLimit = 100
)

// Result carries the aggregate counters of one rewrite run. It is mutated
// only by the stream loop and is immutable once the run ends.
type Result struct {
	InputFile        string    `json:"input_file"`
	OutputFile       string    `json:"output_file"`
	PacketsProcessed int       `json:"packets_processed"`
	PacketsModified  int       `json:"packets_modified"`
	Errors           []string  `json:"errors"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	Success          bool      `json:"success"`
}

func (r *Result) appendError(msg string) {
	if len(r.Errors) < maxErrorLog {
		r.Errors = append(r.Errors, msg)
	}
}

// PreviewSample is one before/after pair from a preview run.
type PreviewSample struct {
	PacketNumber    int    `json:"packet_number"`
	OriginalSummary string `json:"original_summary"`
	ModifiedSummary string `json:"modified_summary"`
	WasModified     bool   `json:"was_modified"`
	OriginalHex     string `json:"original_hex"`
	ModifiedHex     string `json:"modified_hex"`
}

// Processor streams packets through the rewrite engine.
type Processor struct {
	engine *rewrite.Engine
}

// NewProcessor creates a stream processor around a rewrite engine.
func NewProcessor(engine *rewrite.Engine) *Processor {
	return &Processor{engine: engine}
}

// RewriteFile applies the rule set to every packet of input and writes the
// result to output. A packet that fails to transform is written unmodified
// and logged; only file-level errors abort the run. The output file is
// flushed and closed on every exit path.
func (p *Processor) RewriteFile(input, output string, rs *rules.RuleSet) (*Result, error) {
	result := &Result{
		InputFile:  input,
		OutputFile: output,
		StartTime:  time.Now().UTC(),
	}

	reader, err := openCapture(input)
	if err != nil {
		result.EndTime = time.Now().UTC()
		return result, err
	}
	defer reader.Close()

	writer, err := pcapio.CreateFile(output, reader.LinkType())
	if err != nil {
		result.EndTime = time.Now().UTC()
		return result, err
	}
	writerClosed := false
	defer func() {
		if !writerClosed {
			writer.Close()
		}
	}()

	logrus.Infof("Starting packet rewrite: %s -> %s", input, output)

	linkType := reader.LinkType()
	for {
		data, ci, err := reader.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			readErr := fmt.Errorf("read failed after %d packets: %w", result.PacketsProcessed, err)
			result.appendError(readErr.Error())
			result.EndTime = time.Now().UTC()
			return result, readErr
		}

		pkt := gopacket.NewPacket(data, linkType, gopacket.Default)
		md := pkt.Metadata()
		md.CaptureInfo = ci

		res := p.engine.Apply(pkt, rs)
		if res.Warning != "" {
			result.appendError(fmt.Sprintf("packet %d: %s", result.PacketsProcessed+1, res.Warning))
		}

		if err := writer.WritePacket(res.CaptureInfo, res.Data); err != nil {
			writeErr := fmt.Errorf("write failed after %d packets: %w", result.PacketsProcessed, err)
			result.appendError(writeErr.Error())
			result.EndTime = time.Now().UTC()
			return result, writeErr
		}

		result.PacketsProcessed++
		if res.Modified {
			result.PacketsModified++
		}
		if result.PacketsProcessed%progressLogInterval == 0 {
			logrus.Infof("Processed %d packets", result.PacketsProcessed)
		}
	}

	writerClosed = true
	if err := writer.Close(); err != nil {
		result.EndTime = time.Now().UTC()
		return result, fmt.Errorf("failed to finalize output file: %w", err)
	}

	result.EndTime = time.Now().UTC()
	result.Success = true
	logrus.Infof("Rewrite completed: %d packets processed, %d modified",
		result.PacketsProcessed, result.PacketsModified)
	return result, nil
}

// Preview applies the rule set to at most sampleSize packets and returns
// before/after summaries without writing any output file.
func (p *Processor) Preview(input string, rs *rules.RuleSet, sampleSize int) ([]PreviewSample, error) {
	if sampleSize <= 0 {
		sampleSize = 10
	}

	reader, err := openCapture(input)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	linkType := reader.LinkType()
	samples := make([]PreviewSample, 0, sampleSize)
	for len(samples) < sampleSize {
		data, ci, err := reader.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read failed after %d packets: %w", len(samples), err)
		}

		pkt := gopacket.NewPacket(data, linkType, gopacket.Default)
		md := pkt.Metadata()
		md.CaptureInfo = ci

		res := p.engine.Apply(pkt, rs)
		modified := gopacket.NewPacket(res.Data, linkType, gopacket.Default)

		samples = append(samples, PreviewSample{
			PacketNumber:    len(samples) + 1,
			OriginalSummary: packetSummary(pkt),
			ModifiedSummary: packetSummary(modified),
			WasModified:     res.Modified,
			OriginalHex:     truncatedHex(data),
			ModifiedHex:     truncatedHex(res.Data),
		})
	}

	return samples, nil
}

func openCapture(path string) (*pcapio.Reader, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, err
	}
	return pcapio.OpenFile(path)
}

func truncatedHex(data []byte) string {
	s := hex.EncodeToString(data)
	if len(s) > previewHexLimit {
		return s[:previewHexLimit] + "..."
	}
	return s
}
