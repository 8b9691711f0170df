package db

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/magscan/internal/grid"
	"github.com/banshee-data/magscan/internal/pipeline"
)

type DB struct {
	*sql.DB
}

// OpenDB opens the database without touching the schema. Use NewDB
// unless you are running migrations by hand.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := sqlDB.Exec(`PRAGMA journal_mode = WAL; PRAGMA foreign_keys = ON;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set pragmas: %w", err)
	}
	return &DB{sqlDB}, nil
}

// NewDB opens the database and applies any pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	migrationsFS, err := MigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrationsFS); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Record persists one conditioned reading. It implements
// pipeline.Sink so the session can feed it directly.
func (db *DB) Record(r pipeline.Reading) error {
	_, err := db.Exec(
		`INSERT INTO readings (recorded_at, s1, s2, raw, filtered, alert)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.Time.UTC().Format(time.RFC3339Nano), r.S1, r.S2, r.Raw, r.Filtered, r.Alert.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to record reading: %w", err)
	}
	return nil
}

// RecentReadings returns the newest readings, most recent first.
func (db *DB) RecentReadings(limit int) ([]pipeline.Reading, error) {
	rows, err := db.Query(
		`SELECT recorded_at, s1, s2, raw, filtered, alert
		 FROM readings ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []pipeline.Reading
	for rows.Next() {
		var (
			recordedAt string
			r          pipeline.Reading
			alert      string
		)
		if err := rows.Scan(&recordedAt, &r.S1, &r.S2, &r.Raw, &r.Filtered, &alert); err != nil {
			return nil, err
		}
		if r.Time, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("failed to parse recorded_at %q: %w", recordedAt, err)
		}
		r.Alert = pipeline.ParseAlert(alert)
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}

// GridSummary is one row of the grid listing.
type GridSummary struct {
	ID        string    `json:"id"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveGrid upserts a scan grid. Cell values are stored as a JSON array
// so the schema stays flat.
func (db *DB) SaveGrid(g *grid.ScanGrid) error {
	cells, err := json.Marshal(g.Values)
	if err != nil {
		return fmt.Errorf("failed to encode grid cells: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO grids (id, width, height, spacing_cm, mode, filter, iir_alpha, created_at, cells)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			width = excluded.width, height = excluded.height,
			spacing_cm = excluded.spacing_cm, mode = excluded.mode,
			filter = excluded.filter, iir_alpha = excluded.iir_alpha,
			created_at = excluded.created_at, cells = excluded.cells`,
		g.ID, g.Width, g.Height, g.SpacingCM, g.Mode, g.Filter, g.IIRAlpha,
		g.CreatedAt.UTC().Format(time.RFC3339Nano), string(cells),
	)
	if err != nil {
		return fmt.Errorf("failed to save grid %s: %w", g.ID, err)
	}
	return nil
}

// LoadGrid fetches a stored grid by ID. The returned grid is complete:
// recording resumes only through a fresh grid.
func (db *DB) LoadGrid(id string) (*grid.ScanGrid, error) {
	var (
		g         grid.ScanGrid
		createdAt string
		cells     string
	)
	err := db.QueryRow(
		`SELECT id, width, height, spacing_cm, mode, filter, iir_alpha, created_at, cells
		 FROM grids WHERE id = ?`, id).Scan(
		&g.ID, &g.Width, &g.Height, &g.SpacingCM, &g.Mode, &g.Filter, &g.IIRAlpha,
		&createdAt, &cells)
	if err != nil {
		return nil, fmt.Errorf("failed to load grid %s: %w", id, err)
	}
	if g.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at for grid %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(cells), &g.Values); err != nil {
		return nil, fmt.Errorf("failed to decode cells for grid %s: %w", id, err)
	}
	if len(g.Values) != g.Width*g.Height {
		return nil, fmt.Errorf("grid %s has %d cells, want %d", id, len(g.Values), g.Width*g.Height)
	}
	g.CursorY = g.Height
	return &g, nil
}

// ListGrids returns summaries of stored grids, newest first.
func (db *DB) ListGrids() ([]GridSummary, error) {
	rows, err := db.Query(
		`SELECT id, width, height, created_at FROM grids ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grids []GridSummary
	for rows.Next() {
		var (
			s         GridSummary
			createdAt string
		)
		if err := rows.Scan(&s.ID, &s.Width, &s.Height, &createdAt); err != nil {
			return nil, err
		}
		if s.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at for grid %s: %w", s.ID, err)
		}
		grids = append(grids, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return grids, nil
}

// Setting returns the stored value for key. sql.ErrNoRows passes
// through so callers can distinguish unset from empty.
func (db *DB) Setting(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	return value, err
}

// Settings returns every stored settings row as a key/value map.
func (db *DB) Settings() (map[string]string, error) {
	rows, err := db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// SetSetting upserts one settings key.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://magscan.db", db.DB, &tailsql.DBOptions{
		Label: "Magscan DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
