// Command fieldtrack runs the cooperative localization and target tracking
// engine: it receives robot sensor frames over UDP, drives the joint
// particle filter, records estimates to SQLite and serves them over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fieldtrack-data/fieldtrack.report/internal/api"
	"github.com/fieldtrack-data/fieldtrack.report/internal/config"
	"github.com/fieldtrack-data/fieldtrack.report/internal/feed"
	"github.com/fieldtrack-data/fieldtrack.report/internal/fieldmap"
	"github.com/fieldtrack-data/fieldtrack.report/internal/pfe"
	"github.com/fieldtrack-data/fieldtrack.report/internal/trackdb"
	"github.com/fieldtrack-data/fieldtrack.report/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	udpAddr     = flag.String("udp", ":9000", "UDP sensor feed address")
	dbFile      = flag.String("db", "track_data.db", "SQLite database path (empty disables recording)")
	mapFile     = flag.String("map", "", "landmark map CSV (id,x,y per line)")
	configFile  = flag.String("config", "", "tracker config JSON")
	demoMode    = flag.Bool("demo", false, "feed the filter from the synthetic scenario instead of UDP")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		log.Printf("fieldtrack %s", version.Version)
		return
	}

	cfg := config.EmptyTrackerConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadTrackerConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	var landmarks []pfe.Landmark
	demoCfg := feed.DefaultSyntheticConfig()
	if *mapFile != "" {
		var err error
		landmarks, err = fieldmap.Load(*mapFile)
		if err != nil {
			log.Fatalf("Failed to load landmark map: %v", err)
		}
	} else if *demoMode {
		// The demo scenario carries its own landmark layout.
		for _, lm := range demoCfg.Landmarks {
			landmarks = append(landmarks, pfe.Landmark{ID: lm.ID, X: lm.X, Y: lm.Y})
		}
	} else {
		log.Fatal("A landmark map is required (-map), unless running -demo")
	}

	numRobots := cfg.GetNumRobots()
	if *demoMode && cfg.NumRobots == nil {
		numRobots = demoCfg.NumRobots
	}

	var db *trackdb.DB
	var runID string
	var sink pfe.IterationSink
	if *dbFile != "" {
		var err error
		db, err = trackdb.Open(*dbFile)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		if err := db.MigrateUp(); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		runID, err = db.BeginRun(trackdb.RunMeta{
			StartedAt:    time.Now(),
			NumRobots:    numRobots,
			NumParticles: cfg.GetNumParticles(),
			MainRobotID:  cfg.GetMainRobotID(),
			Seed:         cfg.GetSeed(),
		})
		if err != nil {
			log.Fatalf("Failed to begin run: %v", err)
		}
		sink = db.Sink(runID)
		log.Printf("Recording run %s to %s", runID, *dbFile)
	}

	robotsUsed := cfg.GetRobotsUsed()
	if len(robotsUsed) != numRobots {
		robotsUsed = make([]bool, numRobots)
		for i := range robotsUsed {
			robotsUsed[i] = true
		}
	}

	filter, err := pfe.New(pfe.InitData{
		MainRobotID:  cfg.GetMainRobotID(),
		NumParticles: cfg.GetNumParticles(),
		NumRobots:    numRobots,
		NumLandmarks: len(landmarks),
		RobotsUsed:   robotsUsed,
		LandmarksMap: landmarks,
		Alpha:        cfg.Alpha,
		Seed:         cfg.GetSeed(),
		Sink:         sink,
	})
	if err != nil {
		log.Fatalf("Failed to construct filter: %v", err)
	}

	resampleStartAt := cfg.GetResampleStartAt()
	targetIterTime := cfg.GetTargetIterationTimeDefault()
	publish := cfg.GetPublish()
	if err := filter.SetParams(pfe.Params{
		ResampleStartAt:            &resampleStartAt,
		TargetIterationTimeDefault: &targetIterTime,
		Publish:                    &publish,
	}); err != nil {
		log.Fatalf("Failed to apply filter params: %v", err)
	}

	if len(cfg.RandBox) > 0 && len(cfg.PosInit) > 0 {
		if err := filter.InitCustom(cfg.RandBox, cfg.PosInit); err != nil {
			log.Fatalf("Failed to initialize filter: %v", err)
		}
	}

	covModel := feed.CovarianceModel{
		K1: cfg.GetLandmarkCovK1(),
		K2: cfg.GetLandmarkCovK2(),
		K3: cfg.GetTargetCovK3(),
		K4: cfg.GetTargetCovK4(),
		K5: cfg.GetTargetCovK5(),
	}
	dispatcher := feed.NewDispatcher(filter, feed.DispatcherConfig{
		NumRobots:   numRobots,
		MainRobotID: cfg.GetMainRobotID(),
		Covariance:  covModel,
	})
	defer dispatcher.Close()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *demoMode {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runDemo(ctx, dispatcher, demoCfg, numRobots)
		}()
	} else {
		listener := feed.NewListener(feed.ListenerConfig{Address: *udpAddr}, dispatcher)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := listener.ListenAndServe(ctx); err != nil {
				log.Printf("Sensor listener stopped: %v", err)
				stop()
			}
		}()
	}

	server := api.NewServer(filter, db, runID)
	httpServer := &http.Server{
		Addr:    *listen,
		Handler: api.LoggingMiddleware(server.ServeMux()),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP listening on %s", *listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Print("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}

	wg.Wait()
	os.Exit(0)
}

// runDemo pumps synthetic scenario frames into the dispatcher at the
// scenario interval until ctx is cancelled.
func runDemo(ctx context.Context, d *feed.Dispatcher, cfg feed.SyntheticConfig, numRobots int) {
	cfg.NumRobots = numRobots
	if len(cfg.RobotPoses) < 3*numRobots {
		poses := make([]float64, 3*numRobots)
		copy(poses, cfg.RobotPoses)
		cfg.RobotPoses = poses
	}

	gen := feed.NewSynthetic(cfg, time.Now())
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	log.Printf("Demo scenario running with %d robots", numRobots)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, f := range gen.NextStep() {
				d.Enqueue(f)
			}
		}
	}
}
