package api

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/banshee-data/magscan/internal/pipeline"
	"github.com/banshee-data/magscan/internal/security"
	"github.com/banshee-data/magscan/internal/sessionlog"
)

// LogSink is a pipeline sink that forwards readings to the active
// session log. Registered once with the session; swapping or clearing
// the underlying writer starts and stops logging without touching the
// session's sink list.
type LogSink struct {
	mu sync.Mutex
	w  *sessionlog.Writer
}

// Record implements pipeline.Sink. With no active log it is a no-op.
func (l *LogSink) Record(r pipeline.Reading) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	return l.w.Record(r)
}

// Active reports whether a session log is currently open.
func (l *LogSink) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w != nil
}

// Swap installs a new writer and returns the previous one, if any.
func (l *LogSink) Swap(w *sessionlog.Writer) *sessionlog.Writer {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.w
	l.w = w
	return old
}

func (s *Server) startLog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Path string `json:"path"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'path'")
		return
	}
	if err := security.ValidateFilePath(req.Path); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	writer, err := sessionlog.New(s.fs, req.Path)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to start log: %v", err))
		return
	}

	// A new log is a new observation session; start the filter clean.
	s.session.ResetFilter()
	if old := s.logSink.Swap(writer); old != nil {
		old.Close()
	}
	s.writeJSON(w, map[string]string{"path": req.Path})
}

func (s *Server) stopLog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	old := s.logSink.Swap(nil)
	if old == nil {
		s.writeJSONError(w, http.StatusConflict, "No session log active")
		return
	}
	if err := old.Close(); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to close log: %v", err))
		return
	}
	s.writeJSON(w, map[string]bool{"logging": false})
}
