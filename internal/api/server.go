package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/magscan/internal/db"
	"github.com/banshee-data/magscan/internal/fsutil"
	"github.com/banshee-data/magscan/internal/grid"
	"github.com/banshee-data/magscan/internal/pipeline"
	"github.com/banshee-data/magscan/internal/serialmux"
	"github.com/banshee-data/magscan/internal/timeutil"
	"github.com/banshee-data/magscan/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	m        serialmux.SerialMuxInterface
	db       *db.DB
	session  *pipeline.Session
	recorder *grid.Recorder
	fs       fsutil.FileSystem
	logSink  *LogSink
	clock    timeutil.Clock
	units    string
}

func NewServer(m serialmux.SerialMuxInterface, database *db.DB, session *pipeline.Session, recorder *grid.Recorder, fs fsutil.FileSystem, fieldUnits string) *Server {
	return &Server{
		m:        m,
		db:       database,
		session:  session,
		recorder: recorder,
		fs:       fs,
		logSink:  &LogSink{},
		clock:    timeutil.RealClock{},
		units:    fieldUnits,
	}
}

func (s *Server) now() time.Time {
	return s.clock.Now()
}

// Log returns the sink that forwards readings to the active session
// log. Register it with the pipeline session once at startup.
func (s *Server) Log() *LogSink {
	return s.logSink
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/api/reading", s.showReading)
	mux.HandleFunc("/api/readings", s.listReadings)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/mode", s.setMode)
	mux.HandleFunc("/api/filter", s.filterHandler)
	mux.HandleFunc("/api/filter/params", s.setFilterParams)
	mux.HandleFunc("/api/thresholds", s.setThresholds)
	mux.HandleFunc("/api/zero", s.captureZero)
	mux.HandleFunc("/api/drift", s.setDriftCancel)
	mux.HandleFunc("/api/grid", s.gridHandler)
	mux.HandleFunc("/api/grid/record", s.recordGridCell)
	mux.HandleFunc("/api/grid/auto", s.setGridAuto)
	mux.HandleFunc("/api/grid/save", s.saveGrid)
	mux.HandleFunc("/api/grid/load", s.loadGrid)
	mux.HandleFunc("/api/grid/export", s.exportGrid)
	mux.HandleFunc("/api/grids", s.listGrids)
	mux.HandleFunc("/api/log/start", s.startLog)
	mux.HandleFunc("/api/log/stop", s.stopLog)
	return mux
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	command := r.FormValue("command")

	if err := s.m.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write response")
	}
}

// convertReading applies unit conversion to the field values of a
// reading. The database and pipeline always carry nT.
func (s *Server) convertReading(r pipeline.Reading) pipeline.Reading {
	r.S1 = units.ConvertField(r.S1, s.units)
	r.S2 = units.ConvertField(r.S2, s.units)
	r.Raw = units.ConvertField(r.Raw, s.units)
	r.Filtered = units.ConvertField(r.Filtered, s.units)
	return r
}

func (s *Server) showReading(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	reading, ok := s.session.LastReading()
	if !ok {
		s.writeJSONError(w, http.StatusNotFound, "No reading received yet")
		return
	}
	s.writeJSON(w, s.convertReading(reading))
}

func (s *Server) listReadings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 500 // default value
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	readings, err := s.db.RecentReadings(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve readings: %v", err))
		return
	}

	for i := range readings {
		readings[i] = s.convertReading(readings[i])
	}
	s.writeJSON(w, readings)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	pos, neg := s.session.Thresholds()
	config := map[string]interface{}{
		"units":         s.units,
		"mode":          s.session.Mode().Tag(),
		"filter":        s.session.FilterName(),
		"filter_params": s.session.FilterParams(),
		"pos_threshold": pos,
		"neg_threshold": neg,
		"zero_offset":   s.session.ZeroOffset(),
		"drift_cancel":  s.session.DriftCancel(),
		"auto_record":   s.recorder.Auto(),
		"logging":       s.logSink.Active(),
	}
	s.writeJSON(w, config)
}
