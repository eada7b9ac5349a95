// Command backend is the main entrypoint for the feedsim API and background
// simulation workers. It:
//   - Loads configuration and initializes structured logging.
//   - Opens the message store (Postgres, SQLite, or in-memory fallback).
//   - Backfills feed history from an external file or the synthetic seeder.
//   - Starts the posting engine, join simulator, presence walk, and the
//     nightly maintenance job.
//   - Exposes the HTTP API with /healthz, /status, /metrics, the feed
//     surface, and admin simulation controls.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/groupline/feedsim/backend/config"
	"github.com/groupline/feedsim/backend/engine"
	"github.com/groupline/feedsim/backend/feed"
	"github.com/groupline/feedsim/backend/fingerprint"
	"github.com/groupline/feedsim/backend/generate"
	"github.com/groupline/feedsim/backend/history"
	"github.com/groupline/feedsim/backend/joiner"
	"github.com/groupline/feedsim/backend/maintenance"
	"github.com/groupline/feedsim/backend/persona"
	"github.com/groupline/feedsim/backend/pool"
	"github.com/groupline/feedsim/backend/server"
	"github.com/groupline/feedsim/backend/store"
	"github.com/groupline/feedsim/backend/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load("backend/.env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		// unknown level -> keep info but note once using temporary logger
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("feedsim", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store: Postgres when DB_DSN points at one, SQLite otherwise, with an
	// in-memory fallback so the simulation always comes up.
	st := store.Open(ctx, cfg.DBDsn, cfg.DataDir)
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("failed to close store", slog.Any("err", err))
		}
	}()

	// Simulation components
	identity := persona.NewGenerator(nil)
	prints := fingerprint.NewStore(ctx, st, fingerprint.LoadOptions())
	gen := generate.NewGenerator(prints, identity, nil)
	msgPool := pool.New(gen, pool.LoadConfig())
	view := feed.NewView(feed.LoadConfig())
	eng := engine.New(engine.LoadConfig(), msgPool, gen, view)

	presence := joiner.NewPresence(joiner.LoadPresenceConfig())
	restorePresence(ctx, st, presence)
	joinSim := joiner.New(joiner.LoadConfig(), view, identity, presence, st)

	seeder := &history.Seeder{Gen: gen, ChunkSize: cfg.SeedChunkSize, Yield: cfg.SeedYield}
	loader := &history.Loader{Path: cfg.HistoryPath, ChunkSize: cfg.SeedChunkSize}

	// Backfill history before live posting starts so the feed opens with a
	// believable past.
	if err := history.SeedIfNeeded(ctx, st, loader, seeder, view, cfg.SeedStart, time.Now(), cfg.SeedMinPerDay, cfg.SeedMaxPerDay); err != nil {
		slog.Warn("history backfill failed", slog.Any("err", err))
	}
	seedJoinsIfNeeded(ctx, st, joinSim, cfg.SeedStart)

	// Background simulation
	msgPool.RefillToTarget(ctx)
	eng.Start(ctx)
	joinSim.Start(ctx)
	presence.StartWalk(ctx)

	job := maintenance.New(prints, st, presence)
	if err := job.Start(); err != nil {
		slog.Error("maintenance job failed to start", slog.Any("err", err))
		os.Exit(1)
	}
	defer job.Stop()

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server
	deps := server.Deps{
		Store:    st,
		View:     view,
		Pool:     msgPool,
		Engine:   eng,
		Joiner:   joinSim,
		Presence: presence,
		Seeder:   seeder,
		Prints:   prints,
		Config:   *cfg,
	}
	go func() {
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
	eng.Stop()
	joinSim.Stop()
	presence.StopWalk()
}

// seedJoinsIfNeeded backfills the join history once, so recent-join chips have
// a past to draw from on first boot. Guarded by a kv flag like the feed seed.
func seedJoinsIfNeeded(ctx context.Context, st store.Store, sim *joiner.Simulator, start time.Time) {
	if _, ok, err := st.GetKV(ctx, "seeded:joins"); err == nil && ok {
		return
	}
	minPerDay := config.EnvInt("JOIN_SEED_MIN_PER_DAY", 1)
	maxPerDay := config.EnvInt("JOIN_SEED_MAX_PER_DAY", 4)
	n, err := sim.SeedRange(ctx, start, time.Now(), minPerDay, maxPerDay, 120)
	if err != nil {
		slog.Warn("join history backfill failed", slog.Any("err", err))
		return
	}
	if err := st.SetKV(ctx, "seeded:joins", "1"); err != nil {
		slog.Warn("persisting join seed flag failed", slog.Any("err", err))
	}
	slog.Info("join history seeded", slog.Int("joins", n))
}

// restorePresence reloads persisted member/online counts from the kv store.
func restorePresence(ctx context.Context, st store.Store, p *joiner.Presence) {
	members, online := 0, 0
	if v, ok, err := st.GetKV(ctx, "presence:members"); err == nil && ok {
		if n, err := strconv.Atoi(v); err == nil {
			members = n
		}
	}
	if v, ok, err := st.GetKV(ctx, "presence:online"); err == nil && ok {
		if n, err := strconv.Atoi(v); err == nil {
			online = n
		}
	}
	if members > 0 || online > 0 {
		p.Restore(members, online)
	}
}
