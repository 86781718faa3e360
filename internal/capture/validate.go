package capture

import (
	"errors"
	"fmt"
	"io"
	"os"

	"Replaya/pkg/pcapio"
)

const largeFileWarnBytes = 1 << 30

// Validation reports whether a capture file is fit for replay along with
// non-fatal warnings (large file, short capture).
type Validation struct {
	FilePath string   `json:"file_path"`
	FileSize int64    `json:"file_size"`
	Format   string   `json:"file_format"`
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// ValidateForReplay checks that a file exists, is non-empty, carries a
// recognized capture magic and yields at least one decodable packet. It
// reads at most the first ten packets.
func ValidateForReplay(path string) (*Validation, error) {
	v := &Validation{FilePath: path, Valid: true}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			v.Valid = false
			v.Errors = append(v.Errors, "file does not exist")
			return v, nil
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	v.FileSize = info.Size()

	if info.Size() == 0 {
		v.Valid = false
		v.Errors = append(v.Errors, "file is empty")
		return v, nil
	}
	if info.Size() > largeFileWarnBytes {
		v.Warnings = append(v.Warnings, fmt.Sprintf("large file (%d bytes), replay may take a long time", info.Size()))
	}

	format, err := pcapio.DetectFormat(path)
	if err != nil {
		if errors.Is(err, pcapio.ErrUnreadable) {
			v.Valid = false
			v.Errors = append(v.Errors, fmt.Sprintf("capture header unreadable: %v", err))
			return v, nil
		}
		return nil, err
	}
	v.Format = string(format)
	if format == pcapio.FormatUnknown {
		v.Valid = false
		v.Errors = append(v.Errors, "not a recognized pcap or pcapng file")
		return v, nil
	}

	reader, err := pcapio.OpenFile(path)
	if err != nil {
		v.Valid = false
		v.Errors = append(v.Errors, fmt.Sprintf("capture header unreadable: %v", err))
		return v, nil
	}
	defer reader.Close()

	probed := 0
	for probed < 10 {
		_, _, err := reader.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			v.Valid = false
			v.Errors = append(v.Errors, fmt.Sprintf("packet %d unreadable: %v", probed+1, err))
			return v, nil
		}
		probed++
	}
	if probed == 0 {
		v.Valid = false
		v.Errors = append(v.Errors, "capture contains no packets")
	} else if probed < 10 {
		v.Warnings = append(v.Warnings, fmt.Sprintf("capture contains only %d packets", probed))
	}

	return v, nil
}
