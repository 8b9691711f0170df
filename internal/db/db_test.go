package db

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/magscan/internal/grid"
	"github.com/banshee-data/magscan/internal/pipeline"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	database, err := NewDB(filepath.Join(t.TempDir(), "magscan-test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestNewDB_AppliesMigrations(t *testing.T) {
	database := testDB(t)

	for _, table := range []string{"readings", "grids", "settings"} {
		var count int
		err := database.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table,
		).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query sqlite_master: %v", err)
		}
		if count != 1 {
			t.Errorf("table %s missing after migration", table)
		}
	}

	migrationsFS, err := MigrationsFS()
	if err != nil {
		t.Fatalf("MigrationsFS failed: %v", err)
	}
	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("database dirty after NewDB")
	}
	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if version != latest {
		t.Errorf("version = %d, want latest %d", version, latest)
	}
}

func TestRecordAndRecentReadings(t *testing.T) {
	database := testDB(t)

	ts := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	want := []pipeline.Reading{
		{Time: ts, S1: 12.5, S2: -3.2, Raw: 15.7, Filtered: 15.7, Alert: pipeline.AlertNone},
		{Time: ts.Add(time.Second), S1: 80, S2: 10, Raw: 70, Filtered: 68.5, Alert: pipeline.AlertHigh},
	}
	for _, r := range want {
		if err := database.Record(r); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	got, err := database.RecentReadings(10)
	if err != nil {
		t.Fatalf("RecentReadings failed: %v", err)
	}
	// newest first
	if diff := cmp.Diff([]pipeline.Reading{want[1], want[0]}, got); diff != "" {
		t.Errorf("readings mismatch (-want +got):\n%s", diff)
	}
}

func TestRecentReadings_Limit(t *testing.T) {
	database := testDB(t)

	for i := 0; i < 5; i++ {
		r := pipeline.Reading{Time: time.Unix(int64(i), 0).UTC(), Raw: float64(i)}
		if err := database.Record(r); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	got, err := database.RecentReadings(3)
	if err != nil {
		t.Fatalf("RecentReadings failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Raw != 4 {
		t.Errorf("newest reading raw = %v, want 4", got[0].Raw)
	}
}

func TestSaveLoadGrid(t *testing.T) {
	database := testDB(t)

	g := grid.New(3, 2)
	g.SpacingCM = 50
	g.Mode = "A"
	g.Filter = "iir"
	g.IIRAlpha = 0.25
	g.CreatedAt = time.Date(2026, 5, 2, 11, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		g.RecordManual(float64(i) * 1.5)
	}

	if err := database.SaveGrid(g); err != nil {
		t.Fatalf("SaveGrid failed: %v", err)
	}

	loaded, err := database.LoadGrid(g.ID)
	if err != nil {
		t.Fatalf("LoadGrid failed: %v", err)
	}
	if loaded.Width != 3 || loaded.Height != 2 {
		t.Errorf("dimensions = %dx%d, want 3x2", loaded.Width, loaded.Height)
	}
	if loaded.Mode != "A" || loaded.Filter != "iir" || loaded.IIRAlpha != 0.25 || loaded.SpacingCM != 50 {
		t.Errorf("metadata mismatch: %+v", loaded)
	}
	if !loaded.CreatedAt.Equal(g.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", loaded.CreatedAt, g.CreatedAt)
	}
	if diff := cmp.Diff(g.Values, loaded.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	if !loaded.Complete() {
		t.Error("loaded grid should not be recordable")
	}
}

func TestSaveGrid_Upsert(t *testing.T) {
	database := testDB(t)

	g := grid.New(2, 1)
	g.CreatedAt = time.Unix(0, 0).UTC()
	g.RecordManual(1)
	if err := database.SaveGrid(g); err != nil {
		t.Fatalf("first SaveGrid failed: %v", err)
	}
	g.RecordManual(2)
	if err := database.SaveGrid(g); err != nil {
		t.Fatalf("second SaveGrid failed: %v", err)
	}

	loaded, err := database.LoadGrid(g.ID)
	if err != nil {
		t.Fatalf("LoadGrid failed: %v", err)
	}
	if diff := cmp.Diff([]float64{1, 2}, loaded.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	grids, err := database.ListGrids()
	if err != nil {
		t.Fatalf("ListGrids failed: %v", err)
	}
	if len(grids) != 1 {
		t.Errorf("ListGrids returned %d rows, want 1", len(grids))
	}
}

func TestLoadGrid_Missing(t *testing.T) {
	database := testDB(t)
	if _, err := database.LoadGrid("no-such-grid"); err == nil {
		t.Error("LoadGrid of missing grid returned nil error")
	}
}

func TestSettings(t *testing.T) {
	database := testDB(t)

	if _, err := database.Setting("filter"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("unset key error = %v, want sql.ErrNoRows", err)
	}

	if err := database.SetSetting("filter", "kalman"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if got, err := database.Setting("filter"); err != nil || got != "kalman" {
		t.Errorf("Setting = %q, %v, want kalman, nil", got, err)
	}

	if err := database.SetSetting("filter", "median"); err != nil {
		t.Fatalf("SetSetting update failed: %v", err)
	}
	if got, _ := database.Setting("filter"); got != "median" {
		t.Errorf("Setting after update = %q, want median", got)
	}

	if err := database.SetSetting("mode", "B"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	all, err := database.Settings()
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	want := map[string]string{"filter": "median", "mode": "B"}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Errorf("Settings mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckAndPromptMigrations(t *testing.T) {
	database := testDB(t)
	migrationsFS, err := MigrationsFS()
	if err != nil {
		t.Fatalf("MigrationsFS failed: %v", err)
	}

	needed, err := database.CheckAndPromptMigrations(migrationsFS)
	if needed || err != nil {
		t.Errorf("up-to-date check = %v, %v, want false, nil", needed, err)
	}

	if err := database.MigrateDown(migrationsFS); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	needed, err = database.CheckAndPromptMigrations(migrationsFS)
	if !needed || err == nil {
		t.Errorf("outdated check = %v, %v, want true and an error", needed, err)
	}
}

func TestMigrateDownUp(t *testing.T) {
	database := testDB(t)
	migrationsFS, err := MigrationsFS()
	if err != nil {
		t.Fatalf("MigrationsFS failed: %v", err)
	}

	if err := database.MigrateDown(migrationsFS); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	var count int
	database.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='readings'`,
	).Scan(&count)
	if count != 0 {
		t.Error("readings table still present after down migration")
	}

	if err := database.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	database.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='readings'`,
	).Scan(&count)
	if count != 1 {
		t.Error("readings table missing after up migration")
	}
}
