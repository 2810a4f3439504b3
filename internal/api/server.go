// Package api serves the tracker's HTTP surface: posterior estimates, the
// particle cloud, runtime parameters and health.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/fieldtrack-data/fieldtrack.report/internal/pfe"
	"github.com/fieldtrack-data/fieldtrack.report/internal/trackdb"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes a running filter and, when recording, its run metadata.
type Server struct {
	filter *pfe.Filter
	db     *trackdb.DB
	runID  string
}

// NewServer creates an API server for filter. db and runID may be empty
// when the process runs without recording.
func NewServer(filter *pfe.Filter, db *trackdb.DB, runID string) *Server {
	return &Server{filter: filter, db: db, runID: runID}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	default:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.health)
	mux.HandleFunc("/api/state", s.showState)
	mux.HandleFunc("/api/particles", s.showParticles)
	mux.HandleFunc("/api/params", s.params)
	mux.HandleFunc("/api/runs", s.listRuns)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"initialized": s.filter.IsInitialized(),
		"iteration":   s.filter.Iteration(),
	})
}

type robotStateAPI struct {
	Pose [3]float64 `json:"pose"`
	Conf float64    `json:"conf"`
}

type targetStateAPI struct {
	Pos [3]float64 `json:"pos"`
	Vel [3]float64 `json:"vel"`
}

type stateAPI struct {
	RunID       string          `json:"run_id,omitempty"`
	Iteration   uint64          `json:"iteration"`
	Initialized bool            `json:"initialized"`
	WeightSum   float64         `json:"weight_sum"`
	Robots      []robotStateAPI `json:"robots"`
	Target      targetStateAPI  `json:"target"`
	Spread      [][3]float64    `json:"spread"`
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	view := s.filter.Snapshot()
	out := stateAPI{
		RunID:       s.runID,
		Iteration:   view.Iteration,
		Initialized: s.filter.IsInitialized(),
		WeightSum:   view.WeightSum,
		Robots:      make([]robotStateAPI, len(view.Robots)),
		Target:      targetStateAPI{Pos: view.Target.Pos, Vel: view.Target.Vel},
		Spread:      view.Spread,
	}
	for i, rs := range view.Robots {
		out.Robots[i] = robotStateAPI{Pose: rs.Pose, Conf: rs.Conf}
	}
	writeJSON(w, http.StatusOK, out)
}

type particlesAPI struct {
	Iteration uint64      `json:"iteration"`
	Subsets   int         `json:"subsets"`
	Particles int         `json:"particles"`
	Stride    int         `json:"stride"`
	Data      [][]float64 `json:"data"`
}

// showParticles returns the particle matrix, optionally downsampled with
// ?max_particles=N to bound the payload.
func (s *Server) showParticles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	maxParticles := 0
	if mp := r.URL.Query().Get("max_particles"); mp != "" {
		v, err := strconv.Atoi(mp)
		if err != nil || v < 1 {
			writeJSONError(w, http.StatusBadRequest, "max_particles must be a positive integer")
			return
		}
		maxParticles = v
	}

	view := s.filter.Snapshot()
	total := s.filter.NumParticles()
	stride := 1
	if maxParticles > 0 && total > maxParticles {
		stride = (total + maxParticles - 1) / maxParticles
	}

	data := view.Particles
	if stride > 1 {
		sampled := make([][]float64, len(data))
		for c := range data {
			col := make([]float64, 0, total/stride+1)
			for i := 0; i < total; i += stride {
				col = append(col, data[c][i])
			}
			sampled[c] = col
		}
		data = sampled
	}

	writeJSON(w, http.StatusOK, particlesAPI{
		Iteration: view.Iteration,
		Subsets:   len(data),
		Particles: len(data[0]),
		Stride:    stride,
		Data:      data,
	})
}

// paramsPatch mirrors the runtime-tunable subset of the tracker config.
type paramsPatch struct {
	Alpha                      []float64 `json:"alpha,omitempty"`
	ResampleStartAt            *float64  `json:"resample_start_at,omitempty"`
	TargetIterationTimeDefault *float64  `json:"target_iteration_time_default,omitempty"`
	Publish                    *bool     `json:"publish,omitempty"`
}

func (s *Server) params(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p := s.filter.CurrentParams()
		writeJSON(w, http.StatusOK, paramsPatch{
			Alpha:                      p.Alpha,
			ResampleStartAt:            p.ResampleStartAt,
			TargetIterationTimeDefault: p.TargetIterationTimeDefault,
			Publish:                    p.Publish,
		})

	case http.MethodPost:
		var patch paramsPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSONError(w, http.StatusBadRequest, "bad params JSON: "+err.Error())
			return
		}
		err := s.filter.SetParams(pfe.Params{
			Alpha:                      patch.Alpha,
			ResampleStartAt:            patch.ResampleStartAt,
			TargetIterationTimeDefault: patch.TargetIterationTimeDefault,
			Publish:                    patch.Publish,
		})
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "queued for next iteration"})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.db == nil {
		writeJSONError(w, http.StatusNotFound, "run recording is disabled")
		return
	}
	runs, err := s.db.ListRuns()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}
