package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"emberhold.gg/internal/config"
	"emberhold.gg/internal/coordinator"
	"emberhold.gg/internal/game"
	"emberhold.gg/internal/persistence/profiledb"
	"emberhold.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", "", "http listen address (overrides config)")
		configPath = flag.String("config", "./configs/server.yaml", "config file path")
		dbPath     = flag.String("db", "", "profile database path (overrides config)")
		motd       = flag.String("motd", "welcome to emberhold", "message of the day")
		dev        = flag.Bool("dev", false, "development logging")
	)
	flag.Parse()

	logger := newLogger(*dev)
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "profiles.db")
	}

	store, err := profiledb.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("open profile db", zap.Error(err))
	}
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	// Host serialized execution context: downstream-system initialization
	// runs here, never on the coordinator's I/O workers.
	loop := game.NewLoop(256)
	go loop.Run(ctx)

	coord := coordinator.New(cfg.Profiles.Coordinator(), store, logger)
	coord.SetHostExecutor(loop)
	coord.AddInitializer(game.RankInitializer(logger))
	coord.AddInitializer(game.SocialInitializer())
	recalc := game.NewStatRecalcListener(logger, 5*time.Second)
	coord.AddLoadListener(recalc)
	coord.Start()

	wsSrv := ws.NewServer(coord, *motd, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		if !coord.IsHealthy() || coord.IsShuttingDown() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_, _ = rw.Write([]byte("unhealthy"))
			return
		}
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeStatsMetrics(rw, coord)
	})
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
		coord.Shutdown()
		loop.Stop()
	}()

	logger.Info("listening", zap.String("addr", cfg.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("ListenAndServe", zap.Error(err))
	}

	// Shutdown started via signal; give the drain a moment to log its
	// outcome before the process exits.
	coord.Shutdown()
}

func newLogger(dev bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func writeStatsMetrics(rw http.ResponseWriter, coord *coordinator.Coordinator) {
	s := coord.Stats()

	fmt.Fprintf(rw, "# HELP emberhold_profile_joins_total Total sessions admitted.\n")
	fmt.Fprintf(rw, "# TYPE emberhold_profile_joins_total counter\n")
	fmt.Fprintf(rw, "emberhold_profile_joins_total %d\n", s.Joins)

	fmt.Fprintf(rw, "# HELP emberhold_profile_quits_total Total sessions ended.\n")
	fmt.Fprintf(rw, "# TYPE emberhold_profile_quits_total counter\n")
	fmt.Fprintf(rw, "emberhold_profile_quits_total %d\n", s.Quits)

	fmt.Fprintf(rw, "# HELP emberhold_profile_loads_total Profile load outcomes.\n")
	fmt.Fprintf(rw, "# TYPE emberhold_profile_loads_total counter\n")
	fmt.Fprintf(rw, "emberhold_profile_loads_total{outcome=%q} %d\n", "ok", s.LoadsOK)
	fmt.Fprintf(rw, "emberhold_profile_loads_total{outcome=%q} %d\n", "failed", s.LoadsFailed)

	fmt.Fprintf(rw, "# HELP emberhold_profile_saves_total Profile save outcomes.\n")
	fmt.Fprintf(rw, "# TYPE emberhold_profile_saves_total counter\n")
	fmt.Fprintf(rw, "emberhold_profile_saves_total{outcome=%q} %d\n", "ok", s.SavesOK)
	fmt.Fprintf(rw, "emberhold_profile_saves_total{outcome=%q} %d\n", "failed", s.SavesFailed)

	fmt.Fprintf(rw, "# HELP emberhold_profile_permits_free Free admission permits.\n")
	fmt.Fprintf(rw, "# TYPE emberhold_profile_permits_free gauge\n")
	fmt.Fprintf(rw, "emberhold_profile_permits_free{pool=%q} %d\n", "load", s.LoadPermitsFree)
	fmt.Fprintf(rw, "emberhold_profile_permits_free{pool=%q} %d\n", "save", s.SavePermitsFree)

	healthy := 0
	if coord.IsHealthy() {
		healthy = 1
	}
	fmt.Fprintf(rw, "# HELP emberhold_profile_healthy Coordinator health gate.\n")
	fmt.Fprintf(rw, "# TYPE emberhold_profile_healthy gauge\n")
	fmt.Fprintf(rw, "emberhold_profile_healthy %d\n", healthy)
}
