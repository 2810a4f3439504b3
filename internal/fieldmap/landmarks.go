// Package fieldmap loads the fixed landmark map the filter localizes
// against. The map file is CSV with one "id,x,y" line per landmark and is
// read-only after load.
package fieldmap

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fieldtrack-data/fieldtrack.report/internal/pfe"
)

// Load reads a landmark map from a CSV file. Lines starting with '#' are
// comments. Landmark ids must be unique; the returned order follows the
// file.
func Load(path string) ([]pfe.Landmark, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open landmark map: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comment = '#'
	r.FieldsPerRecord = 3
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse landmark map %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("landmark map %s is empty", path)
	}

	landmarks := make([]pfe.Landmark, 0, len(records))
	seen := make(map[int]bool, len(records))
	for i, rec := range records {
		lm, err := parseLandmark(rec)
		if err != nil {
			return nil, fmt.Errorf("landmark map %s record %d: %w", path, i+1, err)
		}
		if seen[lm.ID] {
			return nil, fmt.Errorf("landmark map %s record %d: duplicate id %d", path, i+1, lm.ID)
		}
		seen[lm.ID] = true
		landmarks = append(landmarks, lm)
	}
	return landmarks, nil
}

func parseLandmark(rec []string) (pfe.Landmark, error) {
	id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
	if err != nil {
		return pfe.Landmark{}, fmt.Errorf("bad id %q: %w", rec[0], err)
	}
	if id < 0 {
		return pfe.Landmark{}, fmt.Errorf("negative id %d", id)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	if err != nil {
		return pfe.Landmark{}, fmt.Errorf("bad x %q: %w", rec[1], err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	if err != nil {
		return pfe.Landmark{}, fmt.Errorf("bad y %q: %w", rec[2], err)
	}
	return pfe.Landmark{ID: id, X: x, Y: y}, nil
}
