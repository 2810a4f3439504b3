package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTrackerConfig(t *testing.T) {
	path := writeConfig(t, `{
		"num_particles": 500,
		"num_robots": 2,
		"main_robot_id": 2,
		"robots_used": [true, true],
		"resample_start_at": 0.4,
		"alpha": [0.1, 0.2, 0.3, 0.4, 0.1, 0.2, 0.3, 0.4]
	}`)

	cfg, err := LoadTrackerConfig(path)
	if err != nil {
		t.Fatalf("LoadTrackerConfig: %v", err)
	}
	if cfg.GetNumParticles() != 500 {
		t.Errorf("num_particles = %d, want 500", cfg.GetNumParticles())
	}
	if cfg.GetMainRobotID() != 2 {
		t.Errorf("main_robot_id = %d, want 2", cfg.GetMainRobotID())
	}
	if cfg.GetResampleStartAt() != 0.4 {
		t.Errorf("resample_start_at = %v, want 0.4", cfg.GetResampleStartAt())
	}
}

func TestLoadTrackerConfigPartialKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `{"num_robots": 3}`)

	cfg, err := LoadTrackerConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GetNumParticles() != 1000 {
		t.Errorf("default num_particles = %d, want 1000", cfg.GetNumParticles())
	}
	if cfg.GetResampleStartAt() != 0.5 {
		t.Errorf("default resample_start_at = %v, want 0.5", cfg.GetResampleStartAt())
	}
	used := cfg.GetRobotsUsed()
	if len(used) != 3 || !used[0] || !used[2] {
		t.Errorf("default robots_used = %v, want all three used", used)
	}
	if !cfg.GetPublish() {
		t.Error("publication should default on")
	}
}

func TestLoadTrackerConfigRejectsNonJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTrackerConfig(path); err == nil {
		t.Error("expected error for non-JSON extension")
	}
}

func TestLoadTrackerConfigMissingFile(t *testing.T) {
	if _, err := LoadTrackerConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{"negative particles", `{"num_particles": -1}`, true},
		{"zero robots", `{"num_robots": 0}`, true},
		{"zero-based main robot", `{"main_robot_id": 0}`, true},
		{"fraction above one", `{"resample_start_at": 1.5}`, true},
		{"negative iteration time", `{"target_iteration_time_default": -0.1}`, true},
		{"robots_used mismatch", `{"num_robots": 2, "robots_used": [true]}`, true},
		{"alpha mismatch", `{"num_robots": 2, "alpha": [1, 2, 3]}`, true},
		{"well formed", `{"num_robots": 2, "robots_used": [true, false], "alpha": [1,2,3,4,5,6,7,8]}`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadTrackerConfig(writeConfig(t, tc.json))
			if tc.wantErr && err == nil {
				t.Error("expected a validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
