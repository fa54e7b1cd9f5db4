// Command server runs the service metadata publisher registry. main wires
// the configured backend, the locator hook, the audit trail, and the HTTP
// router; business logic lives in the internal services packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"smpserver/internal/audit"
	"smpserver/internal/platform/config"
	"smpserver/internal/platform/httpserver"
	"smpserver/internal/platform/logger"
	"smpserver/internal/sml"
	"smpserver/internal/smp/exchange"
	smpmetrics "smpserver/internal/smp/metrics"
	"smpserver/internal/smp/service"
	"smpserver/internal/smp/store"
	"smpserver/internal/smp/store/memory"
	"smpserver/internal/smp/store/postgres"
	"smpserver/internal/smp/store/xmlfile"
	"smpserver/internal/transport/rest"
	"smpserver/pkg/identifier"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory := identifier.Factory{AllowUnverified: cfg.AllowUnverifiedSchemes}

	backend, db, err := openBackend(ctx, cfg, factory)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	var hook sml.Hook = sml.Noop{}
	if cfg.SMLEnabled {
		hook = sml.NewClient(sml.ClientConfig{
			BaseURL:    cfg.SMLBaseURL,
			HTTPClient: &http.Client{Timeout: cfg.SMLTimeout},
		})
	}

	auditStore, closeAudit, err := buildAuditStore(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer closeAudit()
	publisher := audit.NewPublisher(auditStore, log)

	metrics := smpmetrics.New()
	locks := service.NewLocks()
	groups := service.NewServiceGroupService(backend, hook, locks, publisher, metrics, log)
	infos := service.NewServiceInformationService(backend, locks, publisher, metrics, log)
	redirects := service.NewRedirectService(backend, locks, publisher, metrics, log)
	cards := service.NewBusinessCardService(backend, publisher, log)
	migrations := service.NewMigrationService(backend, groups, publisher, metrics, log)
	exporter := exchange.NewExporter(backend, metrics, log)
	importer := exchange.NewImporter(backend, factory, publisher, metrics, log)

	handler := rest.New(log, factory, groups, infos, redirects, cards, migrations,
		exporter, importer, cfg.WritableAPI)

	router := chi.NewRouter()
	handler.Register(router)
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("registry listening",
			"addr", cfg.Addr,
			"backend", string(cfg.Backend),
			"sml_enabled", cfg.SMLEnabled,
			"writable", cfg.WritableAPI)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("registry stopped")
	return nil
}

func openBackend(ctx context.Context, cfg config.Server, factory identifier.Factory) (*store.Backend, *sql.DB, error) {
	switch cfg.Backend {
	case config.BackendXML:
		backend, err := xmlfile.NewBackend(cfg.XMLPath, factory)
		return backend, nil, err
	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		if err := postgres.MigrateSchema(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.NewBackend(db), db, nil
	default:
		return memory.NewBackend(), nil, nil
	}
}

// buildAuditStore assembles the audit fanout: the local store keeps the
// trail queryable, and when brokers are configured a channel worker streams
// every event to Kafka off the request path.
func buildAuditStore(ctx context.Context, cfg config.Server, db *sql.DB, log *slog.Logger) (audit.Store, func(), error) {
	var local audit.Store
	if db != nil {
		local = audit.NewPostgresStore(db)
	} else {
		local = audit.NewInMemoryStore()
	}

	if len(cfg.KafkaBrokers) == 0 {
		return local, func() {}, nil
	}

	sink, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	inbox := make(chan audit.Event, 256)
	worker := audit.NewWorker(sink, inbox)
	workerCtx, stopWorker := context.WithCancel(ctx)
	go func() {
		if err := worker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit stream worker stopped", "error", err.Error())
		}
	}()

	closeAll := func() {
		stopWorker()
		sink.Close()
	}
	return audit.Multi(local, audit.ChannelStore(inbox)), closeAll, nil
}
