// Command processengine runs the process-mining engine's HTTP API: it owns
// the Postgres-backed store, the ontology extractor, the LLM enrichment
// queue, and the on-demand analysis orchestrator, exposing all four over
// the REST surface in internal/httpapi.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/processlens/engine/internal/httpapi"
	"github.com/processlens/engine/internal/llmqueue"
	"github.com/processlens/engine/internal/ontology"
	"github.com/processlens/engine/internal/orchestrator"
	"github.com/processlens/engine/internal/platform/database"
	"github.com/processlens/engine/internal/platform/migrations"
	pgstore "github.com/processlens/engine/internal/store/postgres"
	"github.com/processlens/engine/pkg/config"
	"github.com/processlens/engine/pkg/logger"
)

// Exit codes per the documented process contract: 0 clean shutdown, 1 fatal
// init error, 2 port bind failure, 3 store migration failure.
const (
	exitOK = iota
	exitInitError
	exitBindError
	exitMigrationError
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("load config: " + err.Error() + "\n")
		return exitInitError
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.StorePath)
	if err != nil {
		log.WithError(err).Error("open database")
		return exitInitError
	}
	defer db.Close()
	database.Configure(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifetime)*time.Second)

	if cfg.Database.MigrateOnStart {
		if err := migrations.Apply(db); err != nil {
			if errors.Is(err, migrations.ErrFutureVersion) {
				log.WithError(err).Error("store schema is newer than this binary")
				return exitMigrationError
			}
			log.WithError(err).Error("apply migrations")
			return exitMigrationError
		}
	}

	st := pgstore.New(db)

	if err := ontology.Bootstrap(ctx, st); err != nil {
		log.WithError(err).Error("bootstrap ontology")
		return exitInitError
	}

	onDemotion := func(ruleID, reason string) {
		log.WithFields(map[string]interface{}{"rule_id": ruleID, "reason": reason}).Warn("extraction rule demoted")
	}
	orch := orchestrator.New(st, onDemotion)
	extract := orch.Extractor()

	cache, err := llmqueue.NewCache(llmqueue.DefaultCacheSize, llmqueue.DefaultCacheTTL)
	if err != nil {
		log.WithError(err).Error("build llm cache")
		return exitInitError
	}
	queue := llmqueue.NewQueue(cfg.LLM.QueueCapacity)

	var provider llmqueue.Provider
	if cfg.LLM.ProviderURL != "" {
		provider = llmqueue.NewHTTPProvider(cfg.LLM.ProviderURL, cfg.LLM.APIKey, cfg.LLM.Model, 2, 4)
	}
	if provider != nil {
		pool := llmqueue.NewPool(queue, provider, cache, st, llmqueue.PoolConfig{
			Workers: cfg.LLM.Workers,
			Logger:  log.Logger,
		})
		pool.Start(ctx)
		defer pool.Stop()
		orch.SetEnrichmentQueue(queue)
	}

	housekeeping := cron.New()
	if _, err := housekeeping.AddFunc("@every 10m", func() {
		removed := cache.Sweep()
		pruned, err := st.PruneTerminalJobs(context.Background(), 24*time.Hour)
		if err != nil {
			log.WithError(err).Warn("prune terminal jobs")
			return
		}
		log.WithFields(map[string]interface{}{"cache_entries_swept": removed, "jobs_pruned": pruned}).Info("housekeeping sweep")
	}); err != nil {
		log.WithError(err).Error("schedule housekeeping")
		return exitInitError
	}
	housekeeping.Start()
	defer housekeeping.Stop()

	server := httpapi.NewServer(st, orch, extract, log)
	router := httpapi.NewRouter(server)

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("http server listening")
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("graceful shutdown")
			return exitInitError
		}
		return exitOK
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server")
			return exitBindError
		}
		return exitOK
	}
}
