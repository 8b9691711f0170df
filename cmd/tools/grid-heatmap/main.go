// Command grid-heatmap renders a saved scan grid JSON file as a
// heatmap PNG for survey review.
//
// Usage:
//
//	grid-heatmap -grid survey.json -out survey.png
package main

import (
	"flag"
	"log"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/magscan/internal/fsutil"
	"github.com/banshee-data/magscan/internal/grid"
)

var (
	gridPath = flag.String("grid", "", "Path to a saved scan grid JSON file")
	outPath  = flag.String("out", "grid.png", "Output PNG path")
	cellSize = flag.Float64("cell-size", 0, "Cell size in metres (0 uses the grid's recorded spacing)")
)

// gridXYZ adapts a ScanGrid to the plotter.GridXYZ interface. Rows are
// flipped so row 0 (the first survey line) appears at the top of the
// plot, matching the walk order.
type gridXYZ struct {
	g    *grid.ScanGrid
	size float64
}

func (d gridXYZ) Dims() (c, r int)   { return d.g.Width, d.g.Height }
func (d gridXYZ) X(c int) float64    { return float64(c) * d.size }
func (d gridXYZ) Y(r int) float64    { return float64(r) * d.size }
func (d gridXYZ) Z(c, r int) float64 { return d.g.At(c, d.g.Height-1-r) }

func main() {
	flag.Parse()

	if *gridPath == "" {
		log.Fatal("the -grid flag is required")
	}

	g, err := grid.Load(fsutil.OSFileSystem{}, *gridPath, nil)
	if err != nil {
		log.Fatalf("failed to load grid: %v", err)
	}

	size := *cellSize
	if size <= 0 {
		size = g.SpacingCM / 100
	}
	if size <= 0 {
		size = 0.5
	}

	p := plot.New()
	p.Title.Text = "Scan grid " + g.ID
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	heatmap := plotter.NewHeatMap(gridXYZ{g: g, size: size}, palette.Heat(16, 1))
	p.Add(heatmap)

	width := vg.Length(g.Width) * vg.Inch / 2
	height := vg.Length(g.Height) * vg.Inch / 2
	if width < 4*vg.Inch {
		width = 4 * vg.Inch
	}
	if height < 4*vg.Inch {
		height = 4 * vg.Inch
	}

	if err := p.Save(width, height, *outPath); err != nil {
		log.Fatalf("failed to save heatmap: %v", err)
	}
	log.Printf("wrote %s (%dx%d cells)", *outPath, g.Width, g.Height)
}
