package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/magscan/internal/api"
	"github.com/banshee-data/magscan/internal/config"
	"github.com/banshee-data/magscan/internal/db"
	"github.com/banshee-data/magscan/internal/fsutil"
	"github.com/banshee-data/magscan/internal/grid"
	"github.com/banshee-data/magscan/internal/pipeline"
	"github.com/banshee-data/magscan/internal/serialmux"
	"github.com/banshee-data/magscan/internal/units"
	"github.com/banshee-data/magscan/internal/version"
)

var (
	showVersion   = flag.Bool("version", false, "Print version information and exit")
	devMode       = flag.Bool("dev", false, "Run in dev mode (replays fixtures.txt instead of opening the serial port)")
	disableSerial = flag.Bool("disable-serial", false, "Run without gradiometer hardware")
	listen        = flag.String("listen", ":8080", "Listen address")
	port          = flag.String("port", "/dev/ttyUSB0", "Serial port to use (ignored in dev mode)")
	dbPath        = flag.String("db-path", "magscan.db", "Path to the SQLite database")
	configPath    = flag.String("config", "", "Optional settings JSON file")
	fieldUnits    = flag.String("units", units.NanoTesla, "Display units for field values (nt, ut, mg)")
)

// applySettings pushes the persisted configuration into the live
// pipeline objects.
func applySettings(session *pipeline.Session, recorder *grid.Recorder, settings *config.Settings) {
	session.SetMode(pipeline.ParseMode(settings.GetMode()))
	session.UpdateFilterParams(pipeline.FilterParams{
		MovingAverageWindow: settings.GetMovingAvgWin(),
		MedianWindow:        settings.GetMedianWin(),
		IIRAlpha:            settings.GetIIRAlpha(),
		KalmanProcessNoise:  settings.GetKalmanQ(),
		KalmanMeasureNoise:  settings.GetKalmanR(),
	})
	session.SelectFilter(settings.GetFilter())
	session.SetThresholds(settings.GetPosThreshold(), settings.GetNegThreshold())
	recorder.SetStride(settings.GetAutoStride())
	recorder.SetSpacing(settings.GetGridSpacingCM())
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		log.Printf("magscan %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	// subcommands run and exit before any hardware is touched
	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		db.RunMigrateCommand(args[1:], *dbPath)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*fieldUnits) {
		log.Fatalf("Invalid units %q: valid values are %s", *fieldUnits, units.GetValidUnitsString())
	}

	settings := config.EmptySettings()
	if *configPath != "" {
		var err error
		settings, err = config.LoadSettings(*configPath)
		if err != nil {
			log.Fatalf("Failed to load settings: %v", err)
		}
	}

	var mag serialmux.SerialMuxInterface
	switch {
	case *disableSerial:
		mag = serialmux.NewDisabledSerialMux()
	case *devMode:
		data, err := os.ReadFile("fixtures.txt")
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		mag = serialmux.NewMockSerialMux(lines)
	default:
		var err error
		mag, err = serialmux.NewRealSerialMux(*port, serialmux.PortOptions{})
		if err != nil {
			log.Fatalf("failed to open gradiometer port: %v", err)
		}
	}
	defer mag.Close()

	if err := mag.Initialize(); err != nil {
		log.Fatalf("failed to initialize device: %v", err)
	}

	migrationsFS, err := db.MigrationsFS()
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}
	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// A fresh database is migrated in place. An existing one that is
	// out of date stops startup so the operator applies migrations
	// deliberately via the migrate subcommand.
	schemaVersion, _, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	if schemaVersion == 0 {
		if err := database.MigrateUp(migrationsFS); err != nil {
			log.Fatalf("Failed to initialize database schema: %v", err)
		}
	} else if needed, err := database.CheckAndPromptMigrations(migrationsFS); needed || err != nil {
		log.Fatalf("Database schema check failed: %v", err)
	}

	// Runtime changes made through the API are mirrored into the
	// settings table; overlay them on the file config.
	stored, err := database.Settings()
	if err != nil {
		log.Fatalf("Failed to read stored settings: %v", err)
	}
	if err := settings.ApplyStored(stored); err != nil {
		log.Printf("ignoring stored settings: %v", err)
	}

	session := pipeline.NewSession(nil)
	recorder := grid.NewRecorder(settings.GetAutoStride())
	applySettings(session, recorder, settings)

	apiServer := api.NewServer(mag, database, session, recorder, fsutil.OSFileSystem{}, *fieldUnits)

	// sink order: persist first, then grid recording, then session log
	session.AddSink(database)
	session.AddSink(recorder)
	session.AddSink(apiServer.Log())

	// Create a wait group for the HTTP server, serial monitor, and event handler routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mag.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to the serial port messages
	// and pass them to the event handler
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := mag.Subscribe()
		defer mag.Unsubscribe(id)
		for {
			select {
			case payload := <-c:
				if err := serialmux.HandleEvent(session, payload); err != nil {
					log.Printf("error handling event: %v", err)
				}
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := apiServer.ServeMux()

		mag.AttachAdminRoutes(mux)
		database.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
