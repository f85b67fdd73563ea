package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twinpot/internal/adapters/board"
	"github.com/okian/twinpot/internal/adapters/http/api"
	"github.com/okian/twinpot/internal/adapters/ledger"
	"github.com/okian/twinpot/internal/adapters/notify"
	"github.com/okian/twinpot/internal/adapters/persistence"
	service "github.com/okian/twinpot/internal/app"
	"github.com/okian/twinpot/internal/config"
	"github.com/okian/twinpot/internal/domain/anticheat"
	"github.com/okian/twinpot/internal/domain/model"
	"github.com/okian/twinpot/internal/domain/scoring"
	"github.com/okian/twinpot/pkg/logger"
	"github.com/okian/twinpot/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 30 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

// demoBoardID is the board seeded at startup so the engine is playable out of
// the box.
var demoBoardID = uuid.MustParse("6f9619ff-8b86-4011-b42d-00c04fc964ff")

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := persistence.OpenSQLite(ctx, cfg.SQLitePath)
	if err != nil {
		os.Stderr.WriteString("failed to open sqlite store: " + err.Error() + "\n")
		return
	}

	broadcaster := notify.NewBroadcaster()

	svc := service.New(
		service.WithLogger(log),
		service.WithBoardProvider(seedCatalog()),
		service.WithLedger(ledger.NewSimLedger(
			ledger.WithLatencyRange(
				time.Duration(cfg.LedgerLatencyMinMS)*time.Millisecond,
				time.Duration(cfg.LedgerLatencyMaxMS)*time.Millisecond,
			),
		)),
		service.WithPersistence(store),
		service.WithNotifier(broadcaster),
		service.WithGuard(anticheat.NewGuard(
			anticheat.WithMinMoveGap(time.Duration(cfg.MinMoveGapMS)*time.Millisecond),
			anticheat.WithMaxStrikes(cfg.MaxStrikes),
		)),
		service.WithScoringPolicy(scoring.NewPolicy(
			scoring.WithTimeBudget(time.Duration(cfg.TimeBudgetSeconds)*time.Second),
		)),
		service.WithFees(cfg.PlatformFeeBP, cfg.AffiliateFeeBP),
		service.WithJoinTimeout(time.Duration(cfg.JoinTimeoutMinutes)*time.Minute),
		service.WithSweepInterval(time.Duration(cfg.SweepIntervalSeconds)*time.Second),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.TaskQueueSize),
		service.WithShardCount(cfg.ShardCount),
		service.WithMaxLobbyLimit(cfg.MaxLobbyLimit),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	mux := http.NewServeMux()
	apiServer := api.NewServer(svc, broadcaster)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("demo_board_id", demoBoardID.String()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// seedCatalog registers the built-in demo board. Real deployments replace
// this with a catalog fed from their own asset pipeline.
func seedCatalog() *board.Catalog {
	pairs := make([]board.Pair, 0, model.PairTarget)
	for i := 0; i < model.PairTarget; i++ {
		id := uuid.New()
		pairs = append(pairs, board.Pair{
			ID:        id,
			Image1URL: "https://picsum.photos/seed/" + id.String() + "-a/200",
			Image2URL: "https://picsum.photos/seed/" + id.String() + "-b/200",
		})
	}

	catalog := board.NewCatalog()
	catalog.Add(board.Board{
		ID:         demoBoardID,
		Name:       "classic",
		Difficulty: "medium",
		Active:     true,
		Pairs:      pairs,
	})
	return catalog
}

// startSystemMetricsUpdater periodically records process-level metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			metrics.UpdateSystemMemoryUsage(m.Alloc)
			metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
		}
	}
}
