// Package commands implements the splitledger command line.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmynk/splitledger/internal/config"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/service"
	"github.com/mmynk/splitledger/internal/settlement"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/memory"
	"github.com/mmynk/splitledger/internal/storage/postgres"
	"github.com/mmynk/splitledger/internal/storage/sqlite"
	"github.com/mmynk/splitledger/pkg/logging"
)

// app holds everything a command needs. It is populated by the root command's
// PersistentPreRunE.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	store   storage.Store
	ledger  *ledger.Ledger
	engine  *settlement.Engine
	service *service.ExpenseService

	metricsServer *http.Server

	// flag overrides
	storeKind     string
	dbPath        string
	databaseURL   string
	logLevel      string
	metricsAddr   string
	searchTimeout time.Duration
}

// Execute runs the command line until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root, a := newRootCommand()
	err := root.ExecuteContext(ctx)
	if terr := a.teardown(); terr != nil && err == nil {
		err = terr
	}
	return err
}

// newRootCommand builds the command tree. The caller must call teardown on the
// returned app once the command has run.
func newRootCommand() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:          "splitledger",
		Short:        "Track shared expenses and settle debts between users",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.storeKind, "store", "", "storage backend: memory, sqlite or postgres (env SPLITLEDGER_STORE)")
	root.PersistentFlags().StringVar(&a.dbPath, "db-path", "", "SQLite database file (env DB_PATH)")
	root.PersistentFlags().StringVar(&a.databaseURL, "database-url", "", "PostgreSQL connection URL (env DATABASE_URL)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	root.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs (env METRICS_ADDR)")

	root.AddCommand(
		expenseCmd(a),
		balanceCmd(a),
		totalCmd(a),
		pairsCmd(a),
		checkCmd(a),
		settleCmd(a),
		settlementsCmd(a),
		minCountCmd(a),
		migrateCmd(a),
	)
	return root, a
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.storeKind != "" {
		cfg.Store = a.storeKind
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if a.databaseURL != "" {
		cfg.DatabaseURL = a.databaseURL
	}
	if a.metricsAddr != "" {
		cfg.MetricsAddr = a.metricsAddr
	}
	if a.searchTimeout > 0 {
		cfg.SearchTimeout = a.searchTimeout
	}
	if a.logLevel != "" {
		if cfg.LogLevel, err = logging.ParseLevel(a.logLevel); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
	slog.SetDefault(a.logger)
	a.metrics = metrics.New()

	// migrate manages the schema itself.
	if cmd.Name() == "migrate" {
		return nil
	}

	if err := a.openStore(cmd.Context()); err != nil {
		return err
	}
	a.ledger = ledger.New(a.store, ledger.WithLogger(a.logger), ledger.WithMetrics(a.metrics))
	a.engine = settlement.New(a.store,
		settlement.WithLogger(a.logger),
		settlement.WithMetrics(a.metrics),
		settlement.WithSearchTimeout(cfg.SearchTimeout),
		settlement.WithMaxSearchParticipants(cfg.MaxSearchParticipants),
	)
	a.service = service.NewExpenseService(a.store, a.ledger, a.logger)

	if cfg.MetricsAddr != "" {
		return a.serveMetrics(cfg.MetricsAddr)
	}
	return nil
}

func (a *app) databaseURLFor() (string, error) {
	if a.cfg.DatabaseName == "" {
		return a.cfg.DatabaseURL, nil
	}
	return postgres.ConstructDatabaseURL(a.cfg.DatabaseURL, a.cfg.DatabaseName)
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store {
	case config.StoreMemory:
		a.store = memory.New()
		a.logger.Warn("Using in-memory storage; nothing is kept after this command")

	case config.StoreSQLite:
		store, err := sqlite.New(a.cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.store = store
		a.logger.Debug("Storage initialized", "backend", config.StoreSQLite, "database", a.cfg.DBPath)

	case config.StorePostgres:
		url, err := a.databaseURLFor()
		if err != nil {
			return err
		}
		version, changed, err := postgres.Migrate(url)
		if err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		if changed {
			a.logger.Info("Database migrated", "version", version)
		}
		store, err := postgres.New(ctx, url)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.store = store
		a.logger.Debug("Storage initialized", "backend", config.StorePostgres, "schema_version", version)

	default:
		return fmt.Errorf("unknown store %q", a.cfg.Store)
	}
	return nil
}

func (a *app) serveMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics: %w", err)
	}
	srv := &http.Server{
		Handler:           middleware.Logging(a.logger, a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.metricsServer = srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server failed", "error", err)
		}
	}()
	a.logger.Info("Metrics server starting", "address", ln.Addr().String())
	return nil
}

// teardown stops the metrics server and closes the store. It is safe to call
// more than once.
func (a *app) teardown() error {
	var errs []error
	if a.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, a.metricsServer.Shutdown(ctx))
		a.metricsServer = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	return errors.Join(errs...)
}
