package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stipend-works/stipend/internal/api"
	"github.com/stipend-works/stipend/internal/app/coordinator"
	"github.com/stipend-works/stipend/internal/app/memory"
	"github.com/stipend-works/stipend/internal/app/strategy"
	"github.com/stipend-works/stipend/internal/health"
	"github.com/stipend-works/stipend/internal/infra/advisory"
	"github.com/stipend-works/stipend/internal/infra/ledger"
	_ "github.com/stipend-works/stipend/internal/infra/metrics" // Register Prometheus metrics
	"github.com/stipend-works/stipend/internal/infra/sqlite"
)

// Daemon is the core Stipend runtime. It wires together all services.
type Daemon struct {
	Config Config
	DB     *sqlite.DB
	Mem    *memory.Memory
	Engine *strategy.Engine
	Ledger ledger.Client
	Coord  *coordinator.Coordinator
	Server *api.Server
	Health *health.Checker
	cancel context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dataDir := cfg.Storage.Dir
	if dataDir == "" {
		dataDir = stipendHome()
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	// Open SQLite and reconstruct the outcome memory. A corrupt store is
	// fatal: silently starting from empty state would erase learned
	// reliability history.
	db, err := sqlite.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	mem, err := memory.Load(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	engine := strategy.New(mem, strategy.Config{
		ExplorationRate: cfg.Agent.ExplorationRate,
		LearningRate:    cfg.Agent.LearningRate,
	})

	// Only the simulated ledger backend ships today; Validate has
	// already rejected anything else.
	lg := ledger.NewSim(ledger.SimConfig{
		InitialFunds:    cfg.Ledger.InitialFunds,
		DailyLimit:      cfg.Ledger.DailyLimit,
		MaxSpendPerTask: cfg.Ledger.MaxSpendPerTask,
	})

	var advisor advisory.Advisor
	if cfg.Advisory.Enabled {
		advisor = advisory.NewChatClient(advisory.ChatConfig{
			BaseURL: cfg.Advisory.BaseURL,
			APIKey:  cfg.Advisory.APIKey,
			Model:   cfg.Advisory.Model,
		})
	}

	coord := coordinator.New(coordinator.Config{
		PollInterval: parseDuration(cfg.Agent.PollInterval, 30*time.Second),
		CallTimeout:  parseDuration(cfg.Agent.CallTimeout, 10*time.Second),
		MetricsEvery: cfg.Agent.MetricsEvery,
	}, lg, mem, engine, advisor)

	srv := api.NewServer(coord, mem)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	checker := health.NewChecker(db, dataDir, lg)
	srv.SetChecker(checker)

	return &Daemon{
		Config: cfg,
		DB:     db,
		Mem:    mem,
		Engine: engine,
		Ledger: lg,
		Coord:  coord,
		Server: srv,
		Health: checker,
	}, nil
}

// Serve starts the polling loop and the HTTP server, blocking until
// shutdown. A ledger that is unreachable at startup is fatal.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)

	coordErr := make(chan error, 1)
	go func() {
		coordErr <- d.Coord.Run(ctx)
	}()

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal, ctx cancellation, or a fatal
	// coordinator error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fatalCh := make(chan error, 1)
	go func() {
		var fatal error
		select {
		case <-sigCh:
		case <-ctx.Done():
		case err := <-coordErr:
			if err != nil {
				fatal = err
				log.Printf("[daemon] coordinator failed: %v", err)
			}
		}
		fatalCh <- fatal
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	fmt.Printf("Stipend serving on http://%s\n", addr)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return <-fatalCh
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
