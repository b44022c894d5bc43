package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/omni/question-oracle/checkpoint"
	"github.com/omni/question-oracle/config"
	"github.com/omni/question-oracle/db"
	"github.com/omni/question-oracle/logging"
	"github.com/omni/question-oracle/oracle"
	"github.com/omni/question-oracle/presenter"
	"github.com/omni/question-oracle/repository"
)

func main() {
	logger := logging.New()

	cfg, err := config.ReadConfigFromFile(config.Path())
	if err != nil {
		logger.WithError(err).Fatal("can't read config")
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	var repo *repository.Repo
	if cfg.NeedsDB() {
		dbConn, err2 := db.ConnectToDBAndMigrate(cfg.DBConfig)
		if err2 != nil {
			logger.WithError(err2).Fatal("can't connect to database and apply migrations")
		}
		defer dbConn.Close()
		repo = repository.NewRepo(dbConn)
	}

	services, err := oracle.NewServices(ctx, logger, cfg)
	if err != nil {
		logger.WithError(err).Fatal("can't initialize oracle services")
	}
	defer services.Close()

	store, closeStore, err := newCheckpointStore(cfg, repo, services.Client.ChainID())
	if err != nil {
		logger.WithError(err).Fatal("can't open checkpoint store")
	}
	defer closeStore()

	oracleCfg := oracle.Config{
		ChainID:      services.Client.ChainID(),
		Contract:     cfg.Oracle.ContractAddress,
		PollInterval: cfg.Oracle.PollInterval,
	}
	if cfg.Oracle.Subscribe {
		oracleCfg.Subscriber = services.Source
	}
	if cfg.Journal {
		oracleCfg.Journal = repo.Answers
	}
	o := oracle.NewOracle(logger.WithField("service", "oracle"), store, services.Source, services.Answerer, services.Submitter, oracleCfg)
	if _, err = o.Init(ctx, cfg.Oracle.StartBlock); err != nil {
		logger.WithError(err).Fatal("can't load checkpoint")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveMetrics(ctx, cfg.MetricsHost)
	})
	if cfg.Presenter != nil {
		pr := presenter.NewPresenter(logger.WithField("service", "presenter"), repo.Answers, o, presenter.Info{
			ChainID:  services.Client.ChainID(),
			Contract: cfg.Oracle.ContractAddress,
			Oracle:   services.Submitter.Address(),
		})
		g.Go(func() error {
			return pr.Serve(ctx, cfg.Presenter.Host)
		})
	}
	g.Go(func() error {
		o.Start(ctx)
		return nil
	})

	<-ctx.Done()
	logger.Warn("shutting down, waiting for the current cycle to finish")
	if err = g.Wait(); err != nil {
		logger.WithError(err).Error("oracle terminated with error")
		os.Exit(1)
	}
}

func newCheckpointStore(cfg *config.Config, repo *repository.Repo, chainID string) (checkpoint.Store, func(), error) {
	switch cfg.Checkpoint.Backend {
	case config.CheckpointBackendPebble:
		store, err := checkpoint.NewPebbleStore(cfg.Checkpoint.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case config.CheckpointBackendPostgres:
		return checkpoint.NewRepoStore(repo.Checkpoints, chainID, cfg.Oracle.ContractAddress), func() {}, nil
	default:
		return checkpoint.NewFileStore(cfg.Checkpoint.File), func() {}, nil
	}
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
