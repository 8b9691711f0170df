package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/banshee-data/magscan/internal/pipeline"
)

// persistSetting mirrors one runtime configuration change into the
// settings table so it survives a restart. A persistence failure is
// logged; it never fails the request that caused it.
func (s *Server) persistSetting(key, value string) {
	if err := s.db.SetSetting(key, value); err != nil {
		log.Printf("failed to persist setting %s: %v", key, err)
	}
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Mode string `json:"mode"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	if req.Mode != "A" && req.Mode != "B" {
		s.writeJSONError(w, http.StatusBadRequest, "mode must be \"A\" or \"B\"")
		return
	}
	mode := pipeline.ParseMode(req.Mode)
	s.session.SetMode(mode)
	s.persistSetting("mode", mode.Tag())
	s.writeJSON(w, map[string]string{"mode": mode.Tag()})
}

func (s *Server) filterHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, map[string]interface{}{
			"filter": s.session.FilterName(),
			"params": s.session.FilterParams(),
		})

	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if !s.decodeJSON(w, r, &req) {
			return
		}
		s.session.SelectFilter(req.Name)
		s.persistSetting("filter", s.session.FilterName())
		s.writeJSON(w, map[string]string{"filter": s.session.FilterName()})

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) setFilterParams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Start from the current params so a partial body only changes the
	// fields it names.
	params := s.session.FilterParams()
	if !s.decodeJSON(w, r, &params) {
		return
	}
	s.session.UpdateFilterParams(params)

	applied := s.session.FilterParams()
	s.persistSetting("moving_avg_window", strconv.Itoa(applied.MovingAverageWindow))
	s.persistSetting("median_window", strconv.Itoa(applied.MedianWindow))
	s.persistSetting("iir_alpha", strconv.FormatFloat(applied.IIRAlpha, 'f', -1, 64))
	s.persistSetting("kalman_process_noise", strconv.FormatFloat(applied.KalmanProcessNoise, 'f', -1, 64))
	s.persistSetting("kalman_measurement_noise", strconv.FormatFloat(applied.KalmanMeasureNoise, 'f', -1, 64))
	s.writeJSON(w, applied)
}

func (s *Server) setThresholds(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	pos, neg := s.session.Thresholds()
	req := struct {
		Pos float64 `json:"pos_threshold"`
		Neg float64 `json:"neg_threshold"`
	}{pos, neg}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Pos < req.Neg {
		s.writeJSONError(w, http.StatusBadRequest, "pos_threshold must be >= neg_threshold")
		return
	}
	s.session.SetThresholds(req.Pos, req.Neg)
	s.persistSetting("pos_threshold", strconv.FormatFloat(req.Pos, 'f', -1, 64))
	s.persistSetting("neg_threshold", strconv.FormatFloat(req.Neg, 'f', -1, 64))
	s.writeJSON(w, map[string]float64{"pos_threshold": req.Pos, "neg_threshold": req.Neg})
}

func (s *Server) captureZero(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodPost:
		offset := s.session.CaptureZero()
		s.writeJSON(w, map[string]float64{"zero_offset": offset})

	case http.MethodDelete:
		s.session.SetZeroOffset(0)
		s.writeJSON(w, map[string]float64{"zero_offset": 0})

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) setDriftCancel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	s.session.SetDriftCancel(req.Enabled)
	s.writeJSON(w, map[string]bool{"drift_cancel": req.Enabled})
}
