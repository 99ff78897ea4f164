package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/parking.report/internal/api"
	"github.com/banshee-data/parking.report/internal/config"
	"github.com/banshee-data/parking.report/internal/db"
	"github.com/banshee-data/parking.report/internal/detector"
	"github.com/banshee-data/parking.report/internal/fsutil"
	"github.com/banshee-data/parking.report/internal/monitoring"
	"github.com/banshee-data/parking.report/internal/occupancy"
	"github.com/banshee-data/parking.report/internal/sessions"
	"github.com/banshee-data/parking.report/internal/spaces"
	"github.com/banshee-data/parking.report/internal/status"
	"github.com/banshee-data/parking.report/internal/timeutil"
	"github.com/banshee-data/parking.report/internal/units"
	"github.com/banshee-data/parking.report/internal/version"
)

var (
	configFile     = flag.String("config", "", "Path to JSON configuration file")
	spacesPath     = flag.String("spaces", "", "Space definitions file (overrides config)")
	statusPath     = flag.String("status", "", "Status snapshot output file (overrides config)")
	dbPath         = flag.String("db", "", "Session database path (overrides config)")
	detectorSource = flag.String("detector", "", "Detector source: stdin, file:<path> or exec:<command> (overrides config)")
	listen         = flag.String("listen", "", "HTTP listen address, \"off\" disables the server (overrides config)")
	debugLog       = flag.Bool("debug", false, "Log per-cycle detail")
	versionFlag    = flag.Bool("version", false, "Print version and exit")
)

const listenOff = "off"

// shutdownTimeout bounds HTTP shutdown and the session queue drain.
const shutdownTimeout = 5 * time.Second

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: parking [flags] [command]

Commands:
  run              Monitor spaces and record sessions (default)
  migrate <action> Manage the session database schema
  status           Print the current occupancy snapshot
  seed             Write an all-free snapshot for the configured spaces

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.String())
		return
	}
	monitoring.SetDebug(*debugLog)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	args := flag.Args()
	cmd := "run"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "run":
		err = run(ctx, cfg)
	case "migrate":
		err = db.RunMigrateCommand(args, cfg.GetDBPath(), os.Stdin, os.Stdout)
	case "status":
		err = runStatus(ctx, args, cfg, http.DefaultClient, fsutil.OSFileSystem{}, os.Stdout)
	case "seed":
		err = runSeed(cfg, fsutil.OSFileSystem{}, time.Now(), os.Stdout)
	default:
		usage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		stop()
		log.Fatalf("parking %s: %v", cmd, err)
	}
}

// loadConfig reads -config when given and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return nil, err
		}
	}
	applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config) {
	for _, o := range []struct {
		flag   *string
		target **string
	}{
		{spacesPath, &cfg.SpacesPath},
		{statusPath, &cfg.StatusPath},
		{dbPath, &cfg.DBPath},
		{detectorSource, &cfg.DetectorSource},
		{listen, &cfg.Listen},
	} {
		if *o.flag != "" {
			v := *o.flag
			*o.target = &v
		}
	}
}

// run monitors until the detector ends, fails or ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	defs, err := spaces.Load(cfg.GetSpacesPath())
	if err != nil {
		return err
	}
	loc, err := units.ResolveLocation(cfg.GetTimezone())
	if err != nil {
		return err
	}
	monitoring.Logf("Loaded %d spaces from %s", len(defs), cfg.GetSpacesPath())

	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		return fmt.Errorf("failed to open session database: %w", err)
	}
	defer database.Close()

	metrics := monitoring.NewMetrics()
	clock := timeutil.RealClock{}

	logger := sessions.NewLogger(database, sessions.Options{
		MinDuration:   cfg.GetMinSessionDuration(),
		RatePerMinute: cfg.GetRatePerMinute(),
		Location:      loc,
		Async:         cfg.GetAsyncSessions(),
		QueueSize:     cfg.GetSessionQueueSize(),
		MaxRetries:    cfg.GetSessionMaxRetries(),
		Metrics:       metrics,
	})
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := logger.Close(drainCtx); err != nil {
			monitoring.Logf("Session logger close: %v", err)
		}
		st := logger.Stats()
		monitoring.Logf("Sessions recorded=%d filtered=%d dropped=%d failed=%d",
			st.Recorded, st.Filtered, st.Dropped, st.Failed)
	}()

	mem := status.NewMemory()
	monCfg := occupancy.Config{
		Spaces:           defs,
		Classifier:       occupancy.NewClassifier(cfg.GetTargetClassIDs(), cfg.GetTargetClassNames(), cfg.GetMinConfidence()),
		Sessions:         logger,
		Publisher:        status.Multi{status.NewFilePublisher(fsutil.OSFileSystem{}, cfg.GetStatusPath()), mem},
		DebounceWindow:   cfg.GetDebounceWindow(),
		DebounceRequired: cfg.GetDebounceRequired(),
		Clock:            clock,
		Metrics:          metrics,
	}
	if cfg.GetRestoreOccupancy() {
		monCfg.Checkpointer = database
	}
	mon, err := occupancy.New(monCfg)
	if err != nil {
		return err
	}

	if cfg.GetRestoreOccupancy() {
		cps, err := database.LoadOccupancy(ctx)
		if err != nil {
			return fmt.Errorf("failed to load occupancy checkpoints: %w", err)
		}
		monitoring.Logf("Restored %d in-progress occupancies", mon.Restore(cps))
	}

	src, err := detector.Open(ctx, cfg.GetDetectorSource(), detector.Options{
		Interval: cfg.GetFrameInterval(),
		Clock:    clock,
	})
	if err != nil {
		return err
	}
	defer src.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	if addr := cfg.GetListen(); addr != listenOff {
		server := newHTTPServer(addr, defs, mem, database, metrics)
		go func() {
			monitoring.Logf("HTTP server listening on %s", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("HTTP server: %w", err)
				cancel()
			}
		}()
		defer shutdownHTTP(server)
	}

	err = mon.Run(runCtx, src)
	select {
	case serr := <-serverErr:
		return serr
	default:
	}
	return err
}

func newHTTPServer(addr string, defs []spaces.Space, mem *status.Memory, database *db.DB, metrics *monitoring.Metrics) *http.Server {
	apiServer := api.NewServer(defs, mem, database, metrics)
	mux := apiServer.ServeMux()

	debug := tsweb.Debugger(mux)
	if err := database.AttachAdminRoutes(debug); err != nil {
		monitoring.Logf("SQL console unavailable: %v", err)
	}
	apiServer.AttachDebugRoutes(debug)

	return &http.Server{
		Addr:              addr,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func shutdownHTTP(server *http.Server) {
	monitoring.Logf("shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
}
