package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/magscan/internal/grid"
	"github.com/banshee-data/magscan/internal/security"
)

func (s *Server) gridHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		g := s.recorder.Grid()
		if g == nil {
			s.writeJSONError(w, http.StatusNotFound, "No scan grid started")
			return
		}
		s.writeJSON(w, g)

	case http.MethodPost:
		var req struct {
			Width     int     `json:"width"`
			Height    int     `json:"height"`
			SpacingCM float64 `json:"spacing_cm"`
		}
		if !s.decodeJSON(w, r, &req) {
			return
		}
		if req.Width < 1 || req.Height < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "width and height must be >= 1")
			return
		}

		if req.SpacingCM <= 0 {
			req.SpacingCM = s.recorder.Spacing()
		}

		g := grid.New(req.Width, req.Height)
		g.SpacingCM = req.SpacingCM
		g.Mode = s.session.Mode().Tag()
		g.Filter = s.session.FilterName()
		g.IIRAlpha = s.session.FilterParams().IIRAlpha
		g.CreatedAt = s.now()

		// A new survey starts from clean filter memory.
		s.session.ResetFilter()
		s.recorder.Start(g)
		s.writeJSON(w, g)

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) recordGridCell(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	reading, ok := s.session.LastReading()
	if !ok {
		s.writeJSONError(w, http.StatusConflict, "No reading received yet")
		return
	}
	if err := s.recorder.Manual(reading.Filtered); err != nil {
		s.writeJSONError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, s.recorder.Grid())
}

func (s *Server) setGridAuto(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
		Stride  int  `json:"stride"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Stride > 0 {
		s.recorder.SetStride(req.Stride)
		s.persistSetting("auto_record_stride", strconv.Itoa(req.Stride))
	}
	s.recorder.SetAuto(req.Enabled)
	s.writeJSON(w, map[string]bool{"auto_record": req.Enabled})
}

func (s *Server) saveGrid(w http.ResponseWriter, r *http.Request) {
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

	g := s.recorder.Grid()
	if g == nil {
		s.writeJSONError(w, http.StatusConflict, "No scan grid started")
		return
	}

	// Always persisted to the database; a JSON file only when asked.
	if err := s.db.SaveGrid(g); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to save grid: %v", err))
		return
	}
	if req.Path != "" {
		if err := security.ValidateFilePath(req.Path); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.recorder.SaveFile(s.fs, req.Path); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to write grid file: %v", err))
			return
		}
	}
	s.writeJSON(w, map[string]string{"id": g.ID})
}

func (s *Server) loadGrid(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		ID   string `json:"id"`
		Path string `json:"path"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	switch {
	case req.ID != "":
		g, err := s.db.LoadGrid(req.ID)
		if err != nil {
			s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Failed to load grid: %v", err))
			return
		}
		s.recorder.Start(g)
		s.writeJSON(w, g)

	case req.Path != "":
		if err := security.ValidateFilePath(req.Path); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		g, err := s.recorder.LoadFile(s.fs, req.Path)
		if err != nil {
			s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Failed to load grid file: %v", err))
			return
		}
		s.writeJSON(w, g)

	default:
		s.writeJSONError(w, http.StatusBadRequest, "Provide either 'id' or 'path'")
	}
}

func (s *Server) exportGrid(w http.ResponseWriter, r *http.Request) {
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

	if err := s.recorder.ExportCSVFile(s.fs, req.Path); err != nil {
		s.writeJSONError(w, http.StatusConflict, fmt.Sprintf("Failed to export grid: %v", err))
		return
	}
	s.writeJSON(w, map[string]string{"path": req.Path})
}

func (s *Server) listGrids(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	grids, err := s.db.ListGrids()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list grids: %v", err))
		return
	}
	s.writeJSON(w, grids)
}
