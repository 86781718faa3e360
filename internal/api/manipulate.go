package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"Replaya/internal/capture"
	"Replaya/internal/rules"
)

type manipulateRequest struct {
	InputFile  string         `json:"input_file"`
	OutputFile string         `json:"output_file"`
	Rules      map[string]any `json:"rules"`
	SampleSize int            `json:"sample_size"`
}

// manipulateHandler rewrites an uploaded capture according to the rule set
// and stores the result next to the input.
func (s *Server) manipulateHandler(w http.ResponseWriter, r *http.Request) {
	var req manipulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	input, err := s.resolveUpload(req.InputFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	rs, err := rules.Parse(req.Rules)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	outputName := req.OutputFile
	if outputName == "" {
		base := filepath.Base(input)
		ext := filepath.Ext(base)
		outputName = strings.TrimSuffix(base, ext) + "_modified.pcap"
	}
	output, err := s.resolveUpload(outputName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	result, err := s.processor.RewriteFile(input, output, rs)
	if err != nil {
		writeError(w, statusForCaptureError(err), "rewrite failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"output_file": filepath.Base(output),
		"result":      result,
	})
}

// previewHandler applies the rule set to a handful of packets without
// writing anything.
func (s *Server) previewHandler(w http.ResponseWriter, r *http.Request) {
	var req manipulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	input, err := s.resolveUpload(req.InputFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	rs, err := rules.Parse(req.Rules)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	samples, err := s.processor.Preview(input, rs, req.SampleSize)
	if err != nil {
		writeError(w, statusForCaptureError(err), "preview failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"samples": samples})
}

// analyzeHandler runs the bounded single-pass analyzer over a capture.
func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	input, err := s.resolveUpload(r.URL.Query().Get("file"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	analysis, err := s.analyzer.Analyze(input)
	if err != nil {
		writeError(w, statusForCaptureError(err), "analysis failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func statusForCaptureError(err error) int {
	switch {
	case errors.Is(err, capture.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, capture.ErrUnreadableCapture):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
