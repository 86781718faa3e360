package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"Replaya/internal/capture"
	"Replaya/internal/replay"
)

// replayStartHandler validates the capture and hands it to the supervisor.
func (s *Server) replayStartHandler(w http.ResponseWriter, r *http.Request) {
	var req replay.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	path, err := s.resolveUpload(req.File)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	req.File = path

	validation, err := capture.ValidateForReplay(path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "validation failed: %v", err)
		return
	}
	if !validation.Valid {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":      "capture file failed validation",
			"validation": validation,
		})
		return
	}

	// The session must outlive the request, so it does not inherit the
	// request context.
	id, err := s.sup.Start(context.Background(), req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, replay.ErrAlreadyRunning) {
			status = http.StatusConflict
		} else if errors.Is(err, replay.ErrSpawnFailure) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, "%v", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"replay_id": id,
		"warnings":  validation.Warnings,
	})
}

func (s *Server) replayStopHandler(w http.ResponseWriter, r *http.Request) {
	if !s.sup.Stop() {
		writeError(w, http.StatusConflict, "no replay in progress")
		return
	}
	writeJSON(w, http.StatusOK, s.sup.Status())
}

func (s *Server) replayStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sup.Status())
}
