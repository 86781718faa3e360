package capture

import (
	"errors"

	"Replaya/pkg/pcapio"
)

// ErrFileNotFound is returned when the input capture does not exist.
var ErrFileNotFound = errors.New("capture file not found")

// ErrUnreadableCapture is returned when a file cannot be decoded as a
// capture. It aliases the pcapio sentinel so callers need only one check.
var ErrUnreadableCapture = pcapio.ErrUnreadable
