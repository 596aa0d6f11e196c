package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/curvewatch/curvewatch/internal/analyzer"
	"github.com/curvewatch/curvewatch/internal/config"
	"github.com/curvewatch/curvewatch/internal/holders"
	"github.com/curvewatch/curvewatch/internal/orchestrator"
	"github.com/curvewatch/curvewatch/internal/solana"
	"github.com/curvewatch/curvewatch/internal/tradelog"
	"github.com/curvewatch/curvewatch/internal/trader"
)

func main() {
	// 1. Parse flags.
	configPath := flag.String("config", "config/config.yaml", "Path to configuration file")
	stubMode := flag.Bool("stub", false, "Use stub RPC (no real Solana connection)")
	dryRun := flag.Bool("dry-run", false, "Log trades without executing them")
	matchString := flag.String("match", "", "Admit only launches whose name/symbol contains this")
	creator := flag.String("creator", "", "Admit only launches by this creator address")
	marry := flag.Bool("marry", false, "Never sell after buying")
	statsPort := flag.Int("stats-port", 8642, "Port for the health/stats endpoint (0 = disabled)")
	flag.Parse()

	// 2. Load configuration.
	var cfg *config.Config
	if _, statErr := os.Stat(*configPath); statErr == nil {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: failed to load config from %s: %v\n", *configPath, err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	// Flags override file configuration.
	if *dryRun {
		cfg.General.DryRun = true
	}
	if *matchString != "" {
		cfg.Orchestrator.MatchString = *matchString
	}
	if *creator != "" {
		cfg.Orchestrator.CreatorAddress = *creator
	}
	if *marry {
		cfg.Orchestrator.MarryMode = true
	}

	// 3. Setup logging.
	setupLogging(cfg.General)

	log.Info().Msg("=============================================")
	log.Info().Msg("curvewatch - Bonding Curve Launch Monitor")
	log.Info().Msg("DETECT -> RANK -> GATE -> DECIDE -> TRADE")
	log.Info().Msg("=============================================")

	log.Info().
		Str("instance_id", cfg.General.InstanceID).
		Bool("dry_run", cfg.General.DryRun).
		Bool("stub_mode", *stubMode).
		Str("match", cfg.Orchestrator.MatchString).
		Str("creator", cfg.Orchestrator.CreatorAddress).
		Bool("marry", cfg.Orchestrator.MarryMode).
		Int("max_concurrent", cfg.Orchestrator.MaxConcurrent).
		Msg("Configuration loaded")

	// 4. Create Solana RPC client.
	var rpc solana.RPCClient
	var liveRPC *solana.LiveRPCClient
	if *stubMode {
		rpc = solana.NewStubRPCClient()
		log.Info().Msg("Solana RPC: STUB mode")
	} else {
		liveRPC = solana.NewLiveRPCClient(cfg.RPCConfig())
		rpc = liveRPC
		defer liveRPC.Close()

		// Verify RPC connectivity.
		healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rpc.Health(healthCtx); err != nil {
			log.Warn().Err(err).Str("endpoint", cfg.Solana.Endpoint).
				Msg("Solana RPC health check failed (continuing, may be rate-limited)")
		} else {
			log.Info().Str("endpoint", cfg.Solana.Endpoint).Msg("Solana RPC: LIVE - connected")
		}
		healthCancel()
	}

	// 5. Create the holder analysis pipeline.
	ranker := holders.NewRanker(cfg.RankerConfig(), rpc)
	resolver := holders.NewOwnerSetResolver(rpc, cfg.Holders.PageLimit)
	engine := analyzer.NewEngine(cfg.DecisionConfig(), ranker, resolver, nil)
	log.Info().
		Int("top_n", cfg.Holders.TopN).
		Int("holder_threshold", cfg.Analyzer.HolderThreshold).
		Float64("liquidity_lower", cfg.Analyzer.LiquidityLowerPct).
		Float64("liquidity_upper", cfg.Analyzer.LiquidityUpperPct).
		Msg("Decision engine initialized")

	// 6. Create trade journal and trader.
	journal, err := tradelog.NewJournal(cfg.Journal.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Trade journal initialization failed")
	}

	// Real execution is not wired yet; everything trades through the dry-run
	// path regardless of the dry_run flag.
	var tr trader.Trader = trader.NewDryRunTrader()
	if !cfg.General.DryRun {
		log.Warn().Msg("Live execution unavailable, falling back to dry-run trader")
	}

	// 7. Create the launch orchestrator.
	orch := orchestrator.New(cfg.Orchestrator, cfg.LoopConfig(), engine, nil, rpc, tr, journal)

	// 8. Setup context and signal handling.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Warn().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	// 9. Start the launch listener.
	listener := solana.NewListener(cfg.Listener)
	launches, err := listener.Start(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Launch listener failed to start")
	}
	log.Info().Str("program", cfg.Listener.ProgramID).Msg("Launch listener started")

	var wg sync.WaitGroup

	// 10. Run the orchestrator.
	wg.Add(1)
	go func() {
		defer wg.Done()
		orch.Run(ctx, launches)
	}()

	// 11. HTTP health/stats endpoint.
	if *statsPort > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveStats(ctx, *statsPort, cfg, orch, listener, liveRPC)
		}()
	}

	// Periodic stats logging.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := orch.GetStats()
				ls := listener.Stats()
				log.Info().
					Int64("launches", ls.LaunchesEmitted).
					Int64("received", st.Received).
					Int64("filtered", st.Filtered).
					Int64("shed", st.Shed).
					Int64("spawned", st.Spawned).
					Int64("cleared", st.Cleared).
					Int64("live", st.Live).
					Bool("ws_connected", ls.Connected).
					Msg("[STATS]")
			}
		}
	}()

	log.Info().Msg("curvewatch - Running")
	log.Info().Msg("Monitoring for new token launches...")

	// 12. Block until shutdown, then drain.
	<-ctx.Done()

	log.Info().Msg("Shutting down...")
	wg.Wait()

	finalStats := orch.GetStats()
	log.Info().
		Int64("received", finalStats.Received).
		Int64("filtered", finalStats.Filtered).
		Int64("shed", finalStats.Shed).
		Int64("spawned", finalStats.Spawned).
		Int64("cleared", finalStats.Cleared).
		Msg("curvewatch - Final Statistics")

	log.Info().Msg("curvewatch - Shutdown complete")
}

func serveStats(
	ctx context.Context,
	port int,
	cfg *config.Config,
	orch *orchestrator.Orchestrator,
	listener *solana.Listener,
	liveRPC *solana.LiveRPCClient,
) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"dry_run":     cfg.General.DryRun,
			"instance_id": cfg.General.InstanceID,
		})
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		combined := map[string]any{
			"orchestrator": orch.GetStats(),
			"listener":     listener.Stats(),
			"dry_run":      cfg.General.DryRun,
		}
		if liveRPC != nil {
			combined["rpc"] = liveRPC.Stats()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(combined)
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("HTTP server started (health + stats)")

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("HTTP server error")
	}
}

func setupLogging(general config.GeneralConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro
	level, err := zerolog.ParseLevel(general.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if general.LogFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Str("service", "curvewatch").
			Str("instance", general.InstanceID).Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).
			With().Timestamp().Str("service", "curvewatch").
			Str("instance", general.InstanceID).Logger()
	}
}
