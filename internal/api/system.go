package api

import (
	"net/http"
	"strconv"

	"Replaya/internal/history"
	"Replaya/internal/sysinfo"
)

func (s *Server) interfacesHandler(w http.ResponseWriter, r *http.Request) {
	ifaces, err := sysinfo.Interfaces()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"interfaces": ifaces})
}

func (s *Server) systemStatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := sysinfo.Status(s.cfg.Replay.TcpreplayPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	q := history.Query{
		Search: r.URL.Query().Get("search"),
		Status: r.URL.Query().Get("status"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit %q", v)
			return
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset %q", v)
			return
		}
		q.Offset = n
	}

	page, err := s.store.List(q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) historyClearHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
