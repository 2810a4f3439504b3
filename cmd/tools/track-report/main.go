// Command track-report renders an HTML report for a recorded tracker run:
// the target trajectory, its velocity estimate over time, and per-robot
// confidence.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/fieldtrack-data/fieldtrack.report/internal/trackdb"
)

var (
	dbFile  = flag.String("db", "track_data.db", "SQLite database path")
	runID   = flag.String("run", "", "run id to report (default: most recent)")
	outFile = flag.String("out", "track-report.html", "output HTML file")
)

func main() {
	flag.Parse()

	db, err := trackdb.Open(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	run, err := pickRun(db, *runID)
	if err != nil {
		log.Fatalf("Failed to pick run: %v", err)
	}

	targets, err := db.TargetSeries(run.RunID)
	if err != nil {
		log.Fatalf("Failed to load target series: %v", err)
	}
	if len(targets) == 0 {
		log.Fatalf("Run %s has no recorded iterations", run.RunID)
	}

	page := components.NewPage()
	page.AddCharts(trajectoryChart(run.RunID, targets), velocityChart(targets))

	for robot := 1; robot <= run.NumRobots; robot++ {
		series, err := db.RobotSeries(run.RunID, robot)
		if err != nil {
			log.Fatalf("Failed to load robot %d series: %v", robot, err)
		}
		if len(series) > 0 {
			page.AddCharts(confidenceChart(robot, series))
		}
	}

	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *outFile, err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		log.Fatalf("Failed to render report: %v", err)
	}
	log.Printf("Wrote %s (%d iterations, run %s)", *outFile, len(targets), run.RunID)
}

func pickRun(db *trackdb.DB, id string) (trackdb.Run, error) {
	runs, err := db.ListRuns()
	if err != nil {
		return trackdb.Run{}, err
	}
	if len(runs) == 0 {
		return trackdb.Run{}, fmt.Errorf("database has no recorded runs")
	}
	if id == "" {
		return runs[0], nil
	}
	for _, r := range runs {
		if r.RunID == id {
			return r, nil
		}
	}
	return trackdb.Run{}, fmt.Errorf("run %s not found", id)
}

func trajectoryChart(runID string, targets []trackdb.TargetPoint) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "fieldtrack run " + runID}),
		charts.WithTitleOpts(opts.Title{Title: "Target trajectory (world frame)"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x (m)", Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "y (m)", Type: "value"}),
	)

	data := make([]opts.ScatterData, 0, len(targets))
	for _, p := range targets {
		data = append(data, opts.ScatterData{Value: []float64{p.X, p.Y}, SymbolSize: 5})
	}
	scatter.AddSeries("target", data)
	return scatter
}

func velocityChart(targets []trackdb.TargetPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Target velocity estimate"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "m/s"}),
	)

	xAxis := make([]string, 0, len(targets))
	vx := make([]opts.LineData, 0, len(targets))
	vy := make([]opts.LineData, 0, len(targets))
	vz := make([]opts.LineData, 0, len(targets))
	for _, p := range targets {
		xAxis = append(xAxis, fmt.Sprintf("%d", p.Iteration))
		vx = append(vx, opts.LineData{Value: p.VX})
		vy = append(vy, opts.LineData{Value: p.VY})
		vz = append(vz, opts.LineData{Value: p.VZ})
	}
	line.SetXAxis(xAxis).
		AddSeries("vx", vx).
		AddSeries("vy", vy).
		AddSeries("vz", vz)
	return line
}

func confidenceChart(robot int, series []trackdb.RobotPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Robot %d confidence", robot)}),
	)

	xAxis := make([]string, 0, len(series))
	conf := make([]opts.LineData, 0, len(series))
	for _, p := range series {
		xAxis = append(xAxis, fmt.Sprintf("%d", p.Iteration))
		conf = append(conf, opts.LineData{Value: p.Conf})
	}
	line.SetXAxis(xAxis).AddSeries("conf", conf)
	return line
}
