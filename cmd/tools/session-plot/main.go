// Command session-plot renders a session CSV log as an interactive
// HTML line chart of raw and filtered gradient values.
//
// Usage:
//
//	session-plot -log session.csv -out session.html
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

var (
	logPath = flag.String("log", "", "Path to a session CSV log")
	outPath = flag.String("out", "session.html", "Output HTML path")
)

type row struct {
	timestamp string
	raw       float64
	filtered  float64
}

func readLog(path string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("log has no data rows")
	}

	// header: timestamp,s1,s2,raw,filtered
	rows := make([]row, 0, len(records)-1)
	for i, record := range records[1:] {
		if len(record) != 5 {
			return nil, fmt.Errorf("row %d has %d fields, want 5", i+2, len(record))
		}
		raw, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d raw: %w", i+2, err)
		}
		filtered, err := strconv.ParseFloat(record[4], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d filtered: %w", i+2, err)
		}
		rows = append(rows, row{timestamp: record[0], raw: raw, filtered: filtered})
	}
	return rows, nil
}

func main() {
	flag.Parse()

	if *logPath == "" {
		log.Fatal("the -log flag is required")
	}

	rows, err := readLog(*logPath)
	if err != nil {
		log.Fatalf("failed to load session log: %v", err)
	}

	timestamps := make([]string, len(rows))
	rawData := make([]opts.LineData, len(rows))
	filteredData := make([]opts.LineData, len(rows))
	for i, r := range rows {
		timestamps[i] = r.timestamp
		rawData[i] = opts.LineData{Value: r.raw}
		filteredData[i] = opts.LineData{Value: r.filtered}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Gradiometer session", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Gradiometer session", Subtitle: fmt.Sprintf("%d readings from %s", len(rows), *logPath)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Gradient (nT)"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(timestamps).
		AddSeries("raw", rawData).
		AddSeries("filtered", filteredData).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false)}))

	out, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}
	defer out.Close()

	if err := line.Render(out); err != nil {
		log.Fatalf("failed to render chart: %v", err)
	}
	log.Printf("wrote %s (%d readings)", *outPath, len(rows))
}
