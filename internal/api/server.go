package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"Replaya/internal/capture"
	"Replaya/internal/config"
	"Replaya/internal/history"
	"Replaya/internal/logbuffer"
	"Replaya/internal/progress"
	"Replaya/internal/replay"
	"Replaya/internal/rewrite"
)

// Server wires the HTTP surface to the capture, replay and history
// components.
type Server struct {
	cfg       *config.Config
	processor *capture.Processor
	analyzer  *capture.Analyzer
	sup       *replay.Supervisor
	store     history.Store
	logbuf    *logbuffer.Buffer
	fanout    *progress.Fanout
}

func NewServer(cfg *config.Config, sup *replay.Supervisor, store history.Store, logbuf *logbuffer.Buffer, fanout *progress.Fanout) *Server {
	return &Server{
		cfg:       cfg,
		processor: capture.NewProcessor(rewrite.NewEngine()),
		analyzer:  capture.NewAnalyzer(cfg.Analysis.MaxPackets, cfg.Analysis.PerformanceLimit),
		sup:       sup,
		store:     store,
		logbuf:    logbuf,
		fanout:    fanout,
	}
}

// Router builds the API route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/v1/upload", s.uploadHandler).Methods("POST")
	r.HandleFunc("/api/v1/manipulate", s.manipulateHandler).Methods("POST")
	r.HandleFunc("/api/v1/manipulate/preview", s.previewHandler).Methods("POST")
	r.HandleFunc("/api/v1/manipulate/analyze", s.analyzeHandler).Methods("GET")

	r.HandleFunc("/api/v1/replay/start", s.replayStartHandler).Methods("POST")
	r.HandleFunc("/api/v1/replay/stop", s.replayStopHandler).Methods("POST")
	r.HandleFunc("/api/v1/replay/status", s.replayStatusHandler).Methods("GET")
	r.HandleFunc("/api/v1/replay/stream", s.replayStreamHandler).Methods("GET")

	r.HandleFunc("/api/v1/interfaces", s.interfacesHandler).Methods("GET")
	r.HandleFunc("/api/v1/system/status", s.systemStatusHandler).Methods("GET")

	r.HandleFunc("/api/v1/history", s.historyHandler).Methods("GET")
	r.HandleFunc("/api/v1/history", s.historyClearHandler).Methods("DELETE")

	r.HandleFunc("/api/v1/logs/recent", s.logsRecentHandler).Methods("GET")
	r.HandleFunc("/api/v1/logs/stream", s.logsStreamHandler).Methods("GET")

	r.HandleFunc("/api/v1/health", s.healthHandler).Methods("GET")
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.Warnf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}

// resolveUpload maps a client-supplied file name into the upload directory,
// rejecting path traversal.
func (s *Server) resolveUpload(name string) (string, error) {
	if name == "" {
		return "", errors.New("file is required")
	}
	if strings.Contains(name, "..") {
		return "", errors.New("invalid file name")
	}
	if filepath.IsAbs(name) {
		// Absolute paths are only honored inside the upload dir.
		rel, err := filepath.Rel(s.cfg.Storage.UploadDir, name)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", errors.New("file is outside the upload directory")
		}
		return name, nil
	}
	return filepath.Join(s.cfg.Storage.UploadDir, name), nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"replay": s.sup.Status().Status,
	})
}
