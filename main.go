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

	"github.com/google/uuid"

	"github.com/fairwater-data/encounter.report/internal/ais"
	"github.com/fairwater-data/encounter.report/internal/api"
	"github.com/fairwater-data/encounter.report/internal/config"
	"github.com/fairwater-data/encounter.report/internal/db"
	"github.com/fairwater-data/encounter.report/internal/tracker"
	"github.com/fairwater-data/encounter.report/internal/version"
	"github.com/fairwater-data/encounter.report/internal/water"
)

var (
	dbPath        = flag.String("db", "encounters.db", "Path to the sqlite database")
	configPath    = flag.String("config", "", "Path to a JSON config file (optional)")
	listen        = flag.String("listen", ":8080", "Listen address for the status API")
	runMigrations = flag.Bool("migrate", false, "Apply pending migrations and exit")
	migrationsDir = flag.String("migrations", "migrations", "Directory with migration files")
)

func main() {
	flag.Parse()

	cfg := config.Empty()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if *runMigrations {
		if err := database.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		v, dirty, err := database.MigrateVersion(*migrationsDir)
		if err != nil {
			log.Fatalf("failed to read migration version: %v", err)
		}
		log.Printf("migrations applied: version %d (dirty: %v)", v, dirty)
		return
	}

	apiKey := os.Getenv("AISSTREAM_API_KEY")
	if apiKey == "" {
		log.Fatal("AISSTREAM_API_KEY environment variable is required")
	}

	runID := uuid.NewString()
	log.Printf("encounter detector starting (run %s, version %s, commit %s)",
		runID, version.Version, version.GitSHA)

	client, err := ais.NewClient(ais.Config{
		URL:                cfg.GetAISURL(),
		APIKey:             apiKey,
		BoundingBoxes:      cfg.GetBoundingBoxes(),
		ReconnectBaseDelay: cfg.GetReconnectBase(),
		ReconnectMaxDelay:  cfg.GetReconnectMax(),
		ReconnectJitter:    cfg.GetReconnectJitter(),
	})
	if err != nil {
		log.Fatalf("failed to create stream client: %v", err)
	}

	buffer := db.NewBuffer(database, cfg.GetBatchSize(), cfg.GetBatchFlushInterval())
	recorder := db.NewRecorder(database, buffer)
	flusher := db.NewFlusher(buffer, time.Second, log.Default())

	trk := tracker.New(tracker.Config{
		EngageDistanceNM:  cfg.GetEncounterDistanceNM(),
		ReleaseDistanceNM: cfg.GetReleaseDistanceNM(),
		MinSpeedKn:        cfg.GetMinSpeedKn(),
		StaleAfter:        cfg.GetVesselTimeout(),
		HeadOnMinDeg:      cfg.GetHeadOnMinDeg(),
		OvertakingMaxDeg:  cfg.GetOvertakingMaxDeg(),
	}, recorder, log.Default())

	poller := water.NewPoller("", cfg.GetStations(), cfg.GetWaterPollInterval(), database, log.Default())

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := make(chan ais.Event, 256)

	// stream reader: dials the AIS feed and reconnects until shutdown
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := client.Run(ctx, events); err != nil && err != context.Canceled {
			log.Printf("stream client stopped: %v", err)
		}
		close(events)
		log.Print("stream routine terminated")
	}()

	// consumer: feeds every decoded message into the tracker
	wg.Add(1)
	go func() {
		defer wg.Done()
		var msgCount uint64
		for ev := range events {
			switch m := ev.(type) {
			case ais.VesselPosition:
				trk.HandlePosition(m)
			case ais.VesselStatic:
				trk.HandleStatic(m)
			}
			msgCount++
			if msgCount%1000 == 0 {
				log.Printf("processed %d messages", msgCount)
			}
		}
		log.Printf("consumer routine terminated after %d messages", msgCount)
	}()

	// background flusher: keeps the write buffer from going stale
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := flusher.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("flusher stopped: %v", err)
		}
		log.Print("flusher routine terminated")
	}()

	// periodic stats line
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(cfg.GetStatsInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				st := trk.Stats()
				positions, encPositions := buffer.Depth()
				log.Printf("stats: %d vessels, %d active encounters, %d total, buffer %d+%d",
					st.ActiveVessels, st.ActiveEncounters, st.TotalEncounters, positions, encPositions)
			case <-ctx.Done():
				return
			}
		}
	}()

	// water level poller
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()

	// HTTP status server
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: api.NewServer(runID, database, trk, buffer).ServeMux(),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()

	// the flusher drains on shutdown; this catches rows buffered after its
	// final pass
	if err := buffer.FlushAll(); err != nil {
		log.Printf("final flush failed: %v", err)
	}

	st := trk.Stats()
	log.Printf("shutdown complete (run %s): %d encounters recorded", runID, st.TotalEncounters)
}
