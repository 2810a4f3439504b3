// Package trackdb persists per-iteration filter estimates to SQLite so runs
// can be inspected, reported and replayed after the fact.
package trackdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fieldtrack-data/fieldtrack.report/internal/monitoring"
	"github.com/fieldtrack-data/fieldtrack.report/internal/pfe"
)

// DB wraps the SQLite connection with tracker-specific recording and query
// helpers.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies the pragmas the
// tracker needs for concurrent recording.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("trackdb: open %s: %w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA foreign_keys = ON;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("trackdb: %s: %w", pragma, err)
		}
	}
	return &DB{db}, nil
}

// RunMeta describes a tracker run.
type RunMeta struct {
	StartedAt    time.Time
	NumRobots    int
	NumParticles int
	MainRobotID  int
	Seed         int64
}

// Run is a recorded run with its metadata.
type Run struct {
	RunID        string
	StartedAt    time.Time
	NumRobots    int
	NumParticles int
	MainRobotID  int
	Seed         int64
}

// BeginRun registers a new run and returns its id.
func (db *DB) BeginRun(meta RunMeta) (string, error) {
	runID := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO runs (run_id, started_at, num_robots, num_particles, main_robot_id, seed)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, meta.StartedAt.UnixNano(), meta.NumRobots, meta.NumParticles, meta.MainRobotID, meta.Seed,
	)
	if err != nil {
		return "", fmt.Errorf("trackdb: begin run: %w", err)
	}
	return runID, nil
}

// ListRuns returns all recorded runs, most recent first.
func (db *DB) ListRuns() ([]Run, error) {
	rows, err := db.Query(`
		SELECT run_id, started_at, num_robots, num_particles, main_robot_id, seed
		FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("trackdb: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedNanos int64
		if err := rows.Scan(&r.RunID, &startedNanos, &r.NumRobots, &r.NumParticles, &r.MainRobotID, &r.Seed); err != nil {
			return nil, fmt.Errorf("trackdb: scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, startedNanos).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordIteration stores one iteration snapshot for a run.
func (db *DB) RecordIteration(runID string, at time.Time, view *pfe.IterationView) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("trackdb: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO iterations (run_id, iteration, recorded_at, weight_sum,
			target_x, target_y, target_z, target_vx, target_vy, target_vz)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, view.Iteration, at.UnixNano(), view.WeightSum,
		view.Target.Pos[0], view.Target.Pos[1], view.Target.Pos[2],
		view.Target.Vel[0], view.Target.Vel[1], view.Target.Vel[2],
	)
	if err != nil {
		return fmt.Errorf("trackdb: insert iteration %d: %w", view.Iteration, err)
	}

	for robot, rs := range view.Robots {
		_, err = tx.Exec(`
			INSERT INTO robot_states (run_id, iteration, robot, x, y, theta, conf)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, view.Iteration, robot+1, rs.Pose[0], rs.Pose[1], rs.Pose[2], rs.Conf,
		)
		if err != nil {
			return fmt.Errorf("trackdb: insert robot %d state: %w", robot+1, err)
		}
	}
	return tx.Commit()
}

// TargetPoint is one recorded target estimate.
type TargetPoint struct {
	Iteration  uint64
	RecordedAt time.Time
	WeightSum  float64
	X, Y, Z    float64
	VX, VY, VZ float64
}

// TargetSeries returns the target trajectory of a run in iteration order.
func (db *DB) TargetSeries(runID string) ([]TargetPoint, error) {
	rows, err := db.Query(`
		SELECT iteration, recorded_at, weight_sum,
			target_x, target_y, target_z, target_vx, target_vy, target_vz
		FROM iterations WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("trackdb: target series: %w", err)
	}
	defer rows.Close()

	var points []TargetPoint
	for rows.Next() {
		var p TargetPoint
		var recordedNanos int64
		if err := rows.Scan(&p.Iteration, &recordedNanos, &p.WeightSum,
			&p.X, &p.Y, &p.Z, &p.VX, &p.VY, &p.VZ); err != nil {
			return nil, fmt.Errorf("trackdb: scan target point: %w", err)
		}
		p.RecordedAt = time.Unix(0, recordedNanos).UTC()
		points = append(points, p)
	}
	return points, rows.Err()
}

// RobotPoint is one recorded robot pose estimate.
type RobotPoint struct {
	Iteration uint64
	X, Y      float64
	Theta     float64
	Conf      float64
}

// RobotSeries returns one robot's estimate trajectory (1-based robot id).
func (db *DB) RobotSeries(runID string, robot int) ([]RobotPoint, error) {
	rows, err := db.Query(`
		SELECT iteration, x, y, theta, conf
		FROM robot_states WHERE run_id = ? AND robot = ? ORDER BY iteration`, runID, robot)
	if err != nil {
		return nil, fmt.Errorf("trackdb: robot series: %w", err)
	}
	defer rows.Close()

	var points []RobotPoint
	for rows.Next() {
		var p RobotPoint
		if err := rows.Scan(&p.Iteration, &p.X, &p.Y, &p.Theta, &p.Conf); err != nil {
			return nil, fmt.Errorf("trackdb: scan robot point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Sink returns a pfe.IterationSink that records every published iteration
// under runID. Recording failures are logged, not propagated: the filter's
// iteration must not stall on storage.
func (db *DB) Sink(runID string) pfe.IterationSink {
	return func(view *pfe.IterationView) {
		if err := db.RecordIteration(runID, time.Now(), view); err != nil {
			monitoring.Logf("trackdb: %v", err)
		}
	}
}
