// Command villagesim runs the village behavioral simulation.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"log/slog"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/villagers/internal/api"
	"github.com/talgya/villagers/internal/clock"
	"github.com/talgya/villagers/internal/config"
	"github.com/talgya/villagers/internal/engine"
	"github.com/talgya/villagers/internal/entropy"
	"github.com/talgya/villagers/internal/npc"
	"github.com/talgya/villagers/internal/persistence"
	"github.com/talgya/villagers/internal/transport"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("VILLAGERS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("no config file, using defaults", "path", cfgPath)
			cfg = config.Default()
		} else {
			slog.Error("failed to load config", "path", cfgPath, "error", err)
			os.Exit(1)
		}
	}

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Clock & Weather ───────────────────────────────────────────────
	var live *clock.LiveWeatherClient
	if key := os.Getenv("OPENWEATHER_API_KEY"); key != "" {
		live = clock.NewLiveWeatherClient(key, os.Getenv("OPENWEATHER_LOCATION"))
		slog.Info("live weather overlay enabled")
	}
	clk, err := clock.New(clock.NewWeatherSource(cfg.Seed, live))
	if err != nil {
		slog.Error("failed to build clock", "error", err)
		os.Exit(1)
	}

	// NPC gift trials draw from random.org when a key is present, falling
	// back to crypto/rand.
	giftRNG := entropy.NewClient(os.Getenv("RANDOM_ORG_API_KEY"))

	// ── Load or Spawn Population ─────────────────────────────────────
	spawner := npc.NewSpawner(cfg.Seed)
	center := npc.Point{X: 0, Y: 0}

	var agents []*npc.Agent
	var startTick uint64
	var wallet int

	if db.HasVillageState() {
		slog.Info("found saved village state, loading...")

		agents, err = db.LoadAgents()
		if err != nil {
			slog.Error("failed to load agents", "error", err)
			os.Exit(1)
		}
		startTick = db.LoadTick()
		wallet = db.LoadWallet()

		var maxID npc.AgentID
		for _, a := range agents {
			if a.ID > maxID {
				maxID = a.ID
			}
		}
		spawner.SetNextID(maxID + 1)

		slog.Info("village restored",
			"agents", len(agents),
			"tick", startTick,
			"sim_time", clock.SimTime(startTick),
			"wallet", wallet,
		)
	} else {
		slog.Info("no saved state found, spawning new village...")
		agents = spawner.SpawnPopulation(cfg.MaxAgents, center)
		for _, a := range agents {
			slog.Info("villager spawned",
				"name", a.Name,
				"personality", a.Personality,
				"relationship", fmt.Sprintf("%.1f", a.RelationshipToActor),
			)
		}
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(cfg, clk, agents, giftRNG)
	sim.LastTick = startTick
	sim.Wallet = wallet
	sim.Observation = center

	if db.HasVillageState() {
		if err := db.LoadEdges(sim.Graph); err != nil {
			slog.Error("failed to load edges", "error", err)
			os.Exit(1)
		}
		restored, err := db.LoadFavors(sim.Favors)
		if err != nil {
			slog.Error("failed to load favors", "error", err)
			os.Exit(1)
		}
		if events, err := db.LoadEvents(); err == nil {
			sim.Events = events
		}
		slog.Info("social state restored", "edges", len(sim.Graph.Edges()), "favors", restored)
	} else {
		// Save on fresh generation only (loaded villages are already saved).
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	eng := engine.NewEngine()
	eng.Tick = startTick
	eng.Speed = 1

	bcast := transport.NewBroadcaster()

	// Wire tick callbacks — snapshots after every tick, auto-save daily.
	eng.OnTick = func(tick uint64) {
		sim.TickMinute(tick)
		if periodic, dirty := sim.SnapshotDue(); periodic || dirty {
			bcast.Publish(sim.CollectSnapshot(dirty))
		}
	}
	eng.OnHour = sim.TickHour
	eng.OnDay = func(tick uint64) {
		sim.TickDay(tick)
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("daily save failed", "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("VILLAGERS_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("VILLAGERS_ADMIN_KEY not set — admin POST endpoints will be disabled")
	}

	apiServer := &api.Server{
		Sim:      sim,
		Eng:      eng,
		DB:       db,
		Port:     cfg.APIPort,
		AdminKey: adminKey,
		API:      cfg.API,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return bcast.Serve(gctx, fmt.Sprintf(":%d", cfg.ObserverPort))
	})
	g.Go(func() error {
		eng.Run()
		cancel()
		return nil
	})

	fmt.Printf("\nThe village is alive: %d villagers.\n", len(sim.Agents))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.APIPort)
	fmt.Printf("Observer stream: ws://localhost:%d/ws\n", cfg.ObserverPort)
	if startTick > 0 {
		fmt.Printf("Resuming from tick %d (%s)\n", startTick, clock.SimTime(startTick))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	if err := g.Wait(); err != nil {
		slog.Error("runtime error", "error", err)
	}

	// Final save on shutdown.
	slog.Info("final save...")
	if err := db.SaveWorldState(sim); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. Village state saved.")
}
