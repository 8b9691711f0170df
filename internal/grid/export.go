package grid

import (
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/banshee-data/magscan/internal/fsutil"
)

// ExportCSV writes every cell as an x,y,value row in row-major order,
// header first.
func ExportCSV(fs fsutil.FileSystem, path string, g *ScanGrid) error {
	if g == nil {
		return ErrNoGrid
	}

	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"x", "y", "value"}); err != nil {
		return fmt.Errorf("failed to write export header: %w", err)
	}
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			row := []string{
				strconv.Itoa(x),
				strconv.Itoa(y),
				strconv.FormatFloat(g.At(x, y), 'f', 6, 64),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("failed to write export row: %w", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush export: %w", err)
	}
	return nil
}

// ExportCSVFile exports the recorder's current grid under its lock.
func (r *Recorder) ExportCSVFile(fs fsutil.FileSystem, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ExportCSV(fs, path, r.grid)
}
