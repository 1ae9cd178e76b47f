// Command townsim runs the mini tycoon town simulation.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/talgya/mini-tycoon/internal/api"
	"github.com/talgya/mini-tycoon/internal/config"
	"github.com/talgya/mini-tycoon/internal/engine"
	"github.com/talgya/mini-tycoon/internal/entropy"
	"github.com/talgya/mini-tycoon/internal/llm"
	"github.com/talgya/mini-tycoon/internal/persistence"
	"github.com/talgya/mini-tycoon/internal/world"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfgPath := os.Getenv("TOWNSIM_CONFIG")
	dbPath := envOrDefault("TOWNSIM_DB", "data/town.db")
	apiPort := envIntOrDefault("TOWNSIM_PORT", 8080)

	// ── Config ────────────────────────────────────────────────────────
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	roster, err := cfg.Agents()
	if err != nil {
		slog.Error("invalid roster", "error", err)
		os.Exit(1)
	}

	// ── Town map ──────────────────────────────────────────────────────
	grid := world.GenerateWithConfig(cfg.GenConfig())
	for t, c := range world.TileCounts(grid) {
		slog.Debug("tiles", "type", world.TileName(t), "count", c)
	}
	slog.Info("town generated", "width", grid.Width, "height", grid.Height, "agents", len(roster))

	// ── Randomness ────────────────────────────────────────────────────
	rng := entropy.FromConfig(os.Getenv("RANDOM_ORG_KEY"), cfg.Map.Seed)
	if _, ok := rng.(*entropy.Client); ok {
		slog.Info("random.org entropy enabled")
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(grid, roster, cfg.EngineConfig(), rng)

	llmClient := llm.NewClient(os.Getenv("ANTHROPIC_API_KEY"))
	if llmClient != nil {
		llmClient.SetModel(cfg.LLM.Model)
		llmClient.SetRateLimit(cfg.LLM.MaxCallsPerMin)
		slog.Info("LLM client enabled (Haiku)", "language", cfg.LLM.Language, "max_calls_per_min", cfg.LLM.MaxCallsPerMin)
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set, conversations will use the fallback greeting")
	}
	sim.Collaborator = llm.NewDialogue(llmClient, cfg.LLM.Language)

	// ── Storage ───────────────────────────────────────────────────────
	if err := ensureDataDir(dbPath); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	journal, err := persistence.Open(dbPath)
	if err != nil {
		slog.Error("failed to open journal", "error", err)
		os.Exit(1)
	}
	defer journal.Close()
	runID, err := journal.BeginRun(context.Background(), fmt.Sprintf("config=%q", cfgPath))
	if err != nil {
		slog.Error("failed to start journal run", "error", err)
		os.Exit(1)
	}
	sim.Recorder = journal

	tickLog := persistence.NewTickLog(filepath.Join(filepath.Dir(dbPath), "ticks"))
	defer tickLog.Close()

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine(sim, cfg.Interval())
	eng.OnTick = func(tick uint64) {
		if err := tickLog.Write(persistence.NewTickEntry(sim.Snapshot())); err != nil {
			slog.Warn("tick log write failed", "tick", tick, "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("TOWNSIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("TOWNSIM_ADMIN_KEY not set, start/pause/restart endpoints are disabled")
	}
	apiServer := &api.Server{
		Sim:      sim,
		Eng:      eng,
		Journal:  journal,
		Port:     apiPort,
		AdminKey: adminKey,
	}
	if proxies := os.Getenv("TOWNSIM_TRUSTED_PROXIES"); proxies != "" {
		apiServer.TrustedProxies = strings.Split(proxies, ",")
	}
	httpServer := apiServer.Start()

	// ── Run ───────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if os.Getenv("TOWNSIM_AUTOSTART") != "" {
		eng.Start()
	}
	fmt.Printf("\nTown is open: %d residents, clock %s.\n", len(roster), sim.Clock())
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", apiPort)
	fmt.Println(runBanner(eng.Running()))

	eng.Run(ctx)

	// Let an outstanding conversation land before closing storage.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpServer.Shutdown(shutdownCtx)
	sim.Wait()

	if wins, err := journal.Wins(context.Background(), runID); err == nil {
		slog.Info("run summary", "run", runID, "ticks", sim.Ticks(), "interactions", len(sim.Interactions()), "wins", wins)
	}
	fmt.Println("Simulation stopped.")
}

// ensureDataDir creates the directory holding the journal and tick logs.
func ensureDataDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

func runBanner(running bool) string {
	if running {
		return "Simulation is running. (Ctrl+C to stop)"
	}
	return "Simulation is paused; POST /api/v1/start to begin. (Ctrl+C to stop)"
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
