package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"Replaya/internal/capture"
	"Replaya/pkg/pcapio"
)

var allowedExtensions = map[string]bool{
	".pcap":   true,
	".pcapng": true,
	".cap":    true,
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// uploadHandler accepts one multipart capture file, validates extension and
// magic bytes, and stores it under a collision-free name.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Storage.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request: %v", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field: %v", err)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedExtensions[ext] {
		writeError(w, http.StatusBadRequest, "unsupported file extension %q", ext)
		return
	}

	if err := os.MkdirAll(s.cfg.Storage.UploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "upload dir: %v", err)
		return
	}

	storedName := fmt.Sprintf("%s_%s", uuid.NewString()[:8], sanitizeFilename(header.Filename))
	storedPath := filepath.Join(s.cfg.Storage.UploadDir, storedName)

	dst, err := os.Create(storedPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store upload: %v", err)
		return
	}
	written, err := io.Copy(dst, file)
	dst.Close()
	if err != nil {
		os.Remove(storedPath)
		writeError(w, http.StatusBadRequest, "store upload: %v", err)
		return
	}

	summary, err := capture.Summary(storedPath)
	if err != nil || summary.Format == string(pcapio.FormatUnknown) {
		os.Remove(storedPath)
		writeError(w, http.StatusBadRequest, "not a valid pcap or pcapng file")
		return
	}

	logrus.WithFields(logrus.Fields{
		"file": storedName,
		"size": written,
	}).Info("Capture file uploaded")

	writeJSON(w, http.StatusOK, map[string]any{
		"stored_name":   storedName,
		"original_name": header.Filename,
		"size":          written,
		"file_format":   summary.Format,
	})
}

// sanitizeFilename keeps the base name and strips anything outside a safe
// character set.
func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	clean := unsafeNameChars.ReplaceAllString(base, "_")
	if clean == "" || clean == "." {
		return "capture.pcap"
	}
	return clean
}
