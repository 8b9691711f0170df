package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/magscan/internal/db"
	"github.com/banshee-data/magscan/internal/fsutil"
	"github.com/banshee-data/magscan/internal/grid"
	"github.com/banshee-data/magscan/internal/pipeline"
	"github.com/banshee-data/magscan/internal/serialmux"
	"github.com/banshee-data/magscan/internal/timeutil"
)

type testHarness struct {
	server   *Server
	session  *pipeline.Session
	recorder *grid.Recorder
	fs       *fsutil.MemoryFileSystem
	db       *db.DB
	mux      *http.ServeMux
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "api-test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	clock := timeutil.NewMockClock(time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC))
	session := pipeline.NewSession(clock)
	recorder := grid.NewRecorder(grid.DefaultAutoStride)
	fs := fsutil.NewMemoryFileSystem()

	server := NewServer(serialmux.NewDisabledSerialMux(), database, session, recorder, fs, "nt")
	server.clock = clock
	session.AddSink(recorder)
	session.AddSink(server.Log())

	return &testHarness{
		server:   server,
		session:  session,
		recorder: recorder,
		fs:       fs,
		db:       database,
		mux:      server.ServeMux(),
	}
}

func (h *testHarness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.mux.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func TestShowReading(t *testing.T) {
	h := newTestHarness(t)

	w := h.do(t, http.MethodGet, "/api/reading", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status before any sample = %d, want 404", w.Code)
	}

	h.session.FeedLine("12.5,-3.2")

	w = h.do(t, http.MethodGet, "/api/reading", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var r pipeline.Reading
	decodeBody(t, w, &r)
	if r.S1 != 12.5 || r.S2 != -3.2 || r.Raw != 15.7 {
		t.Errorf("reading = %+v, want s1=12.5 s2=-3.2 raw=15.7", r)
	}
}

func TestListReadings(t *testing.T) {
	h := newTestHarness(t)
	h.session.AddSink(h.db)

	h.session.FeedLine("1.0,0.5")
	h.session.FeedLine("2.0,0.5")

	w := h.do(t, http.MethodGet, "/api/readings?limit=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var readings []pipeline.Reading
	decodeBody(t, w, &readings)
	if len(readings) != 1 || readings[0].Raw != 1.5 {
		t.Errorf("readings = %+v, want one reading with raw=1.5", readings)
	}

	if w := h.do(t, http.MethodGet, "/api/readings?limit=0", ""); w.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", w.Code)
	}
}

func TestSetMode(t *testing.T) {
	h := newTestHarness(t)

	if w := h.do(t, http.MethodPost, "/api/mode", `{"mode":"B"}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := h.session.Mode(); got != pipeline.ModeSingleChannel {
		t.Errorf("mode = %v, want single-channel", got)
	}
	if got, err := h.db.Setting("mode"); err != nil || got != "B" {
		t.Errorf("persisted mode = %q, %v, want B, nil", got, err)
	}

	if w := h.do(t, http.MethodPost, "/api/mode", `{"mode":"C"}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid mode status = %d, want 400", w.Code)
	}
}

func TestFilterSelectAndParams(t *testing.T) {
	h := newTestHarness(t)

	if w := h.do(t, http.MethodPost, "/api/filter", `{"name":"iir"}`); w.Code != http.StatusOK {
		t.Fatalf("select status = %d, want 200", w.Code)
	}
	if got := h.session.FilterName(); got != "iir" {
		t.Errorf("filter = %q, want iir", got)
	}

	// partial update keeps the other params
	if w := h.do(t, http.MethodPost, "/api/filter/params", `{"iir_alpha":0.5}`); w.Code != http.StatusOK {
		t.Fatalf("params status = %d, want 200", w.Code)
	}
	params := h.session.FilterParams()
	if params.IIRAlpha != 0.5 {
		t.Errorf("IIRAlpha = %v, want 0.5", params.IIRAlpha)
	}
	if params.MedianWindow != 5 {
		t.Errorf("MedianWindow = %v, want unchanged 5", params.MedianWindow)
	}
	if got, err := h.db.Setting("iir_alpha"); err != nil || got != "0.5" {
		t.Errorf("persisted iir_alpha = %q, %v, want 0.5, nil", got, err)
	}
	if got, err := h.db.Setting("filter"); err != nil || got != "iir" {
		t.Errorf("persisted filter = %q, %v, want iir, nil", got, err)
	}

	w := h.do(t, http.MethodGet, "/api/filter", "")
	var resp struct {
		Filter string `json:"filter"`
	}
	decodeBody(t, w, &resp)
	if resp.Filter != "iir" {
		t.Errorf("GET filter = %q, want iir", resp.Filter)
	}
}

func TestSetThresholds(t *testing.T) {
	h := newTestHarness(t)

	if w := h.do(t, http.MethodPost, "/api/thresholds", `{"pos_threshold":30,"neg_threshold":-20}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	pos, neg := h.session.Thresholds()
	if pos != 30 || neg != -20 {
		t.Errorf("thresholds = %v, %v, want 30, -20", pos, neg)
	}

	if w := h.do(t, http.MethodPost, "/api/thresholds", `{"pos_threshold":-5,"neg_threshold":5}`); w.Code != http.StatusBadRequest {
		t.Errorf("inverted thresholds status = %d, want 400", w.Code)
	}
}

func TestZeroAndDrift(t *testing.T) {
	h := newTestHarness(t)

	h.session.FeedLine("10.0,2.0")
	w := h.do(t, http.MethodPost, "/api/zero", "")
	if w.Code != http.StatusOK {
		t.Fatalf("capture status = %d, want 200", w.Code)
	}
	var resp map[string]float64
	decodeBody(t, w, &resp)
	if resp["zero_offset"] != 8 {
		t.Errorf("zero_offset = %v, want 8", resp["zero_offset"])
	}

	if w := h.do(t, http.MethodPost, "/api/drift", `{"enabled":true}`); w.Code != http.StatusOK {
		t.Fatalf("drift status = %d, want 200", w.Code)
	}
	h.session.FeedLine("10.0,2.0")
	r, _ := h.session.LastReading()
	if r.Raw != 0 {
		t.Errorf("drift-cancelled raw = %v, want 0", r.Raw)
	}

	if w := h.do(t, http.MethodDelete, "/api/zero", ""); w.Code != http.StatusOK {
		t.Fatalf("clear status = %d, want 200", w.Code)
	}
	if got := h.session.ZeroOffset(); got != 0 {
		t.Errorf("zero offset after clear = %v, want 0", got)
	}
}

func TestGridLifecycle(t *testing.T) {
	h := newTestHarness(t)

	if w := h.do(t, http.MethodGet, "/api/grid", ""); w.Code != http.StatusNotFound {
		t.Errorf("grid before start status = %d, want 404", w.Code)
	}

	w := h.do(t, http.MethodPost, "/api/grid", `{"width":2,"height":2,"spacing_cm":50}`)
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, want 200", w.Code)
	}
	var g grid.ScanGrid
	decodeBody(t, w, &g)
	if g.Width != 2 || g.Height != 2 || g.SpacingCM != 50 || g.Mode != "A" {
		t.Errorf("started grid = %+v", g)
	}

	// manual record uses the latest filtered value
	if w := h.do(t, http.MethodPost, "/api/grid/record", ""); w.Code != http.StatusConflict {
		t.Errorf("record with no reading status = %d, want 409", w.Code)
	}
	h.session.FeedLine("5.0,1.0")
	if w := h.do(t, http.MethodPost, "/api/grid/record", ""); w.Code != http.StatusOK {
		t.Fatalf("record status = %d, want 200", w.Code)
	}
	if got := h.recorder.Grid().At(0, 0); got != 4 {
		t.Errorf("cell (0,0) = %v, want 4", got)
	}

	// auto record fills a cell every stride samples
	if w := h.do(t, http.MethodPost, "/api/grid/auto", `{"enabled":true,"stride":2}`); w.Code != http.StatusOK {
		t.Fatalf("auto status = %d, want 200", w.Code)
	}
	if got, err := h.db.Setting("auto_record_stride"); err != nil || got != "2" {
		t.Errorf("stored auto_record_stride = %q (%v), want %q", got, err, "2")
	}
	h.session.FeedLine("6.0,0.0")
	h.session.FeedLine("7.0,0.0")
	if got := h.recorder.Grid().At(1, 0); got != 7 {
		t.Errorf("auto cell (1,0) = %v, want 7", got)
	}

	// save to db and a JSON file
	w = h.do(t, http.MethodPost, "/api/grid/save", `{"path":"survey.json"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("save status = %d, want 200", w.Code)
	}
	if !h.fs.Exists("survey.json") {
		t.Error("grid file not written")
	}

	// load back by id
	w = h.do(t, http.MethodPost, "/api/grid/load", `{"id":"`+g.ID+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("load status = %d, want 200", w.Code)
	}
	var loaded grid.ScanGrid
	decodeBody(t, w, &loaded)
	if loaded.ID != g.ID || !loaded.Complete() {
		t.Errorf("loaded grid = %+v, want complete grid %s", loaded, g.ID)
	}

	// export csv
	if w := h.do(t, http.MethodPost, "/api/grid/export", `{"path":"survey.csv"}`); w.Code != http.StatusOK {
		t.Fatalf("export status = %d, want 200", w.Code)
	}
	data, err := h.fs.ReadFile("survey.csv")
	if err != nil {
		t.Fatalf("export file missing: %v", err)
	}
	if !strings.HasPrefix(string(data), "x,y,value\n") {
		t.Errorf("export header missing, got %q", string(data))
	}

	// listing shows the saved grid
	w = h.do(t, http.MethodGet, "/api/grids", "")
	var grids []db.GridSummary
	decodeBody(t, w, &grids)
	if len(grids) != 1 || grids[0].ID != g.ID {
		t.Errorf("grids = %+v, want one entry for %s", grids, g.ID)
	}
}

func TestGridDefaultSpacing(t *testing.T) {
	h := newTestHarness(t)

	w := h.do(t, http.MethodPost, "/api/grid", `{"width":1,"height":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, want 200", w.Code)
	}
	var g grid.ScanGrid
	decodeBody(t, w, &g)
	if g.SpacingCM != grid.DefaultSpacingCM {
		t.Errorf("SpacingCM = %v, want default %v", g.SpacingCM, grid.DefaultSpacingCM)
	}
}

func TestLogStartStop(t *testing.T) {
	h := newTestHarness(t)

	if w := h.do(t, http.MethodPost, "/api/log/stop", ""); w.Code != http.StatusConflict {
		t.Errorf("stop with no log status = %d, want 409", w.Code)
	}

	if w := h.do(t, http.MethodPost, "/api/log/start", `{"path":"session.csv"}`); w.Code != http.StatusOK {
		t.Fatalf("start status = %d, want 200", w.Code)
	}
	if !h.server.Log().Active() {
		t.Fatal("log sink inactive after start")
	}

	h.session.FeedLine("12.5,-3.2")

	if w := h.do(t, http.MethodPost, "/api/log/stop", ""); w.Code != http.StatusOK {
		t.Fatalf("stop status = %d, want 200", w.Code)
	}

	data, err := h.fs.ReadFile("session.csv")
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("log has %d lines, want header + 1 row: %q", len(lines), string(data))
	}
	if lines[0] != "timestamp,s1,s2,raw,filtered" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2026-05-02T10:00:00Z,12.500000,-3.200000") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestShowConfig(t *testing.T) {
	h := newTestHarness(t)

	w := h.do(t, http.MethodGet, "/api/config", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var config map[string]any
	decodeBody(t, w, &config)
	if config["units"] != "nt" || config["mode"] != "A" || config["filter"] != "none" {
		t.Errorf("config = %+v", config)
	}
}

func TestMethodChecks(t *testing.T) {
	h := newTestHarness(t)
	paths := []string{
		"/api/mode", "/api/filter/params", "/api/thresholds", "/api/drift",
		"/api/grid/record", "/api/grid/auto", "/api/grid/save", "/api/grid/load",
		"/api/grid/export", "/api/log/start", "/api/log/stop",
	}
	for _, path := range paths {
		if w := h.do(t, http.MethodGet, path, ""); w.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET %s status = %d, want 405", path, w.Code)
		}
	}
	if w := h.do(t, http.MethodPut, "/command", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT /command status = %d, want 405", w.Code)
	}
}
