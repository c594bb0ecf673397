package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"imapntfy/internal/history"
	"imapntfy/internal/util"
	"imapntfy/internal/watcher"
)

const maxErrorLen = 200

type statusResponse struct {
	Version  string          `json:"version"`
	Uptime   string          `json:"uptime"`
	Accounts []accountStatus `json:"accounts"`
}

type accountStatus struct {
	Name      string     `json:"name"`
	State     string     `json:"state"`
	Since     time.Time  `json:"since"`
	Watermark uint32     `json:"watermark"`
	Notified  int        `json:"notified"`
	Backoff   string     `json:"backoff,omitempty"`
	LastError string     `json:"lastError,omitempty"`
	LastCheck *time.Time `json:"lastCheck,omitempty"`
}

type notificationsResponse struct {
	Notifications []history.Entry `json:"notifications"`
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:  s.version,
		Uptime:   util.FormatUptime(time.Since(s.startTime)),
		Accounts: []accountStatus{},
	}

	for _, st := range s.board.Snapshot() {
		as := accountStatus{
			Name:      st.Account,
			State:     string(st.State),
			Since:     st.Since,
			Watermark: st.Watermark,
			Notified:  st.Notified,
			LastError: util.Truncate(st.LastError, maxErrorLen),
		}
		if st.State == watcher.StateBackoff && st.Backoff > 0 {
			as.Backoff = st.Backoff.String()
		}
		if !st.LastCheck.IsZero() {
			lastCheck := st.LastCheck
			as.LastCheck = &lastCheck
		}
		resp.Accounts = append(resp.Accounts, as)
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "Delivery history is disabled", http.StatusNotFound)
		return
	}

	limit := history.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to read delivery history", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, notificationsResponse{Notifications: entries})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}
