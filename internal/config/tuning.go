package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// TrackerConfig is the root configuration for the tracker process and the
// filter's runtime-tunable knobs. The schema matches the /api/params
// endpoint so the same JSON serves startup configuration and runtime
// updates; fields omitted from a file or a POST to /api/params keep their
// current values.
type TrackerConfig struct {
	// Filter construction params
	NumParticles *int      `json:"num_particles,omitempty"`
	NumRobots    *int      `json:"num_robots,omitempty"`
	MainRobotID  *int      `json:"main_robot_id,omitempty"`
	RobotsUsed   []bool    `json:"robots_used,omitempty"`
	Seed         *int64    `json:"seed,omitempty"`
	RandBox      []float64 `json:"rand_box,omitempty"`
	PosInit      []float64 `json:"pos_init,omitempty"`

	// Runtime-tunable filter knobs
	Alpha                      []float64 `json:"alpha,omitempty"`
	ResampleStartAt            *float64  `json:"resample_start_at,omitempty"`
	TargetIterationTimeDefault *float64  `json:"target_iteration_time_default,omitempty"`
	Publish                    *bool     `json:"publish,omitempty"`

	// Observation covariance model coefficients (landmark K1, K2 and
	// target K3..K5), applied by the sensor feed before fusion.
	LandmarkCovK1 *float64 `json:"landmark_cov_k1,omitempty"`
	LandmarkCovK2 *float64 `json:"landmark_cov_k2,omitempty"`
	TargetCovK3   *float64 `json:"target_cov_k3,omitempty"`
	TargetCovK4   *float64 `json:"target_cov_k4,omitempty"`
	TargetCovK5   *float64 `json:"target_cov_k5,omitempty"`
}

// EmptyTrackerConfig returns a TrackerConfig with every field unset.
func EmptyTrackerConfig() *TrackerConfig {
	return &TrackerConfig{}
}

// LoadTrackerConfig loads a TrackerConfig from a JSON file. Partial configs
// are safe: omitted fields fall back through the Get* accessors.
func LoadTrackerConfig(path string) (*TrackerConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTrackerConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration values that have been set.
func (c *TrackerConfig) Validate() error {
	if c.NumParticles != nil && *c.NumParticles <= 0 {
		return fmt.Errorf("num_particles must be positive, got %d", *c.NumParticles)
	}
	if c.NumRobots != nil && *c.NumRobots <= 0 {
		return fmt.Errorf("num_robots must be positive, got %d", *c.NumRobots)
	}
	if c.MainRobotID != nil && *c.MainRobotID < 1 {
		return fmt.Errorf("main_robot_id is 1-based, got %d", *c.MainRobotID)
	}
	if c.ResampleStartAt != nil && (*c.ResampleStartAt < 0 || *c.ResampleStartAt > 1) {
		return fmt.Errorf("resample_start_at must be within [0, 1], got %f", *c.ResampleStartAt)
	}
	if c.TargetIterationTimeDefault != nil && *c.TargetIterationTimeDefault <= 0 {
		return fmt.Errorf("target_iteration_time_default must be positive, got %f", *c.TargetIterationTimeDefault)
	}
	if c.NumRobots != nil {
		if c.RobotsUsed != nil && len(c.RobotsUsed) != *c.NumRobots {
			return fmt.Errorf("robots_used has %d entries for %d robots", len(c.RobotsUsed), *c.NumRobots)
		}
		if c.Alpha != nil && len(c.Alpha) != 4*(*c.NumRobots) {
			return fmt.Errorf("alpha has %d entries, want %d", len(c.Alpha), 4*(*c.NumRobots))
		}
	}
	return nil
}

// GetNumParticles returns the configured particle count or the default.
func (c *TrackerConfig) GetNumParticles() int {
	if c.NumParticles == nil {
		return 1000
	}
	return *c.NumParticles
}

// GetNumRobots returns the configured robot count or the default.
func (c *TrackerConfig) GetNumRobots() int {
	if c.NumRobots == nil {
		return 1
	}
	return *c.NumRobots
}

// GetMainRobotID returns the configured main robot (1-based) or the default.
func (c *TrackerConfig) GetMainRobotID() int {
	if c.MainRobotID == nil {
		return 1
	}
	return *c.MainRobotID
}

// GetRobotsUsed returns the configured robot bitmap, defaulting to all used.
func (c *TrackerConfig) GetRobotsUsed() []bool {
	if c.RobotsUsed != nil {
		return c.RobotsUsed
	}
	used := make([]bool, c.GetNumRobots())
	for i := range used {
		used[i] = true
	}
	return used
}

// GetSeed returns the RNG seed or the default.
func (c *TrackerConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetResampleStartAt returns the elitism fraction or the default.
func (c *TrackerConfig) GetResampleStartAt() float64 {
	if c.ResampleStartAt == nil {
		return 0.5
	}
	return *c.ResampleStartAt
}

// GetTargetIterationTimeDefault returns the fallback iteration interval.
func (c *TrackerConfig) GetTargetIterationTimeDefault() float64 {
	if c.TargetIterationTimeDefault == nil {
		return 0.0333
	}
	return *c.TargetIterationTimeDefault
}

// GetPublish reports whether iteration publication starts enabled.
func (c *TrackerConfig) GetPublish() bool {
	if c.Publish == nil {
		return true
	}
	return *c.Publish
}

// GetLandmarkCovK1 returns the landmark distance covariance coefficient.
func (c *TrackerConfig) GetLandmarkCovK1() float64 {
	if c.LandmarkCovK1 == nil {
		return 2.0
	}
	return *c.LandmarkCovK1
}

// GetLandmarkCovK2 returns the landmark bearing covariance coefficient.
func (c *TrackerConfig) GetLandmarkCovK2() float64 {
	if c.LandmarkCovK2 == nil {
		return 0.5
	}
	return *c.LandmarkCovK2
}

// GetTargetCovK3 returns the linear distance term of the target covariance.
func (c *TrackerConfig) GetTargetCovK3() float64 {
	if c.TargetCovK3 == nil {
		return 0.2
	}
	return *c.TargetCovK3
}

// GetTargetCovK4 returns the quadratic distance term of the target covariance.
func (c *TrackerConfig) GetTargetCovK4() float64 {
	if c.TargetCovK4 == nil {
		return 0.05
	}
	return *c.TargetCovK4
}

// GetTargetCovK5 returns the bearing term of the target covariance.
func (c *TrackerConfig) GetTargetCovK5() float64 {
	if c.TargetCovK5 == nil {
		return 0.1
	}
	return *c.TargetCovK5
}
