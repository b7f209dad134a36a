package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	redis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/axellelanca/affiliatelinks/cmd"
	"github.com/axellelanca/affiliatelinks/internal/api"
	"github.com/axellelanca/affiliatelinks/internal/attribution"
	"github.com/axellelanca/affiliatelinks/internal/changefeed"
	"github.com/axellelanca/affiliatelinks/internal/clock"
	"github.com/axellelanca/affiliatelinks/internal/config"
	"github.com/axellelanca/affiliatelinks/internal/database"
	"github.com/axellelanca/affiliatelinks/internal/metrics"
	"github.com/axellelanca/affiliatelinks/internal/models"
	"github.com/axellelanca/affiliatelinks/internal/monitor"
	"github.com/axellelanca/affiliatelinks/internal/repository"
	"github.com/axellelanca/affiliatelinks/internal/services"
	"github.com/axellelanca/affiliatelinks/internal/workers"
)

// RunServerCmd lance le serveur HTTP et les processus de fond.
var RunServerCmd = &cobra.Command{
	Use:   "run-server",
	Short: "Starts the redirect server and the background workers.",
	Long: `This command opens the database, starts the click workers, the URL
monitor and the activity pruner, then serves the redirect and admin APIs
until SIGINT or SIGTERM.`,
	RunE: func(c *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cmd.Cfg, cmd.Log)
	},
}

func init() {
	cmd.RootCmd.AddCommand(RunServerCmd)
}

func newBroker(ctx context.Context, cfg *config.Config, log *zap.Logger) (changefeed.Broker, error) {
	if cfg.Changefeed.RedisAddr == "" {
		log.Info("link changefeed kept in process")
		return changefeed.NewMemoryBroker(), nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Changefeed.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Changefeed.RedisAddr, err)
	}
	log.Info("link changefeed on redis",
		zap.String("addr", cfg.Changefeed.RedisAddr),
		zap.String("channel", cfg.Changefeed.Channel))
	return changefeed.NewRedisBroker(client, cfg.Changefeed.Channel, log), nil
}

// newHTTPServer closes streamsDone once Shutdown starts, so open watch streams
// end and the server can drain before the shutdown timeout.
func newHTTPServer(addr string, handler http.Handler, streamsDone chan struct{}) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler}
	var once sync.Once
	srv.RegisterOnShutdown(func() {
		once.Do(func() { close(streamsDone) })
	})
	return srv
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	db, err := cmd.OpenDatabase()
	if err != nil {
		return err
	}
	defer database.Close(db)

	clk := clock.New()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	linkRepo := repository.NewLinkRepository(db)
	statsRepo := repository.NewDailyStatRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	broker, err := newBroker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer broker.Close()

	engine := attribution.NewEngine(linkRepo, clk, log, m, attribution.Options{
		Timeout:        cfg.Resolver.RecordTimeout,
		MaxRetries:     cfg.Resolver.MaxRetries,
		InitialBackoff: cfg.Resolver.InitialBackoff,
	})

	var resolver *services.Resolver
	pool := workers.NewPool(cfg.Analytics.BufferSize, activityRepo, engine,
		func(ctx context.Context, outcome *models.ClickOutcome) { resolver.Publish(ctx, outcome) },
		log, m)
	resolver = services.NewResolver(linkRepo, engine, pool, broker, clk, log, m, cfg.Resolver.LookupTimeout)
	pool.Start(cfg.Analytics.WorkerCount)

	linkService := services.NewLinkService(linkRepo, statsRepo, broker, clk, log, cfg.Links.ShortIDLength)
	activityService := services.NewActivityService(activityRepo, clk, log)

	urlMonitor := monitor.NewUrlMonitor(linkRepo, time.Duration(cfg.Monitor.IntervalMinutes)*time.Minute, log)
	pruner := monitor.NewActivityPruner(activityService, cfg.Activity.Retention, cfg.Activity.PruneInterval, log)

	streamsDone := make(chan struct{})
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(log))
	api.SetupRoutes(router, api.Dependencies{
		Links:       linkService,
		Resolver:    resolver,
		Activity:    activityService,
		Broker:      broker,
		Gatherer:    reg,
		BaseURL:     cfg.Server.BaseURL,
		Log:         log,
		StreamsDone: streamsDone,
	})

	srv := newHTTPServer(fmt.Sprintf(":%d", cfg.Server.Port), router, streamsDone)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error { return urlMonitor.Start(gctx) })
	g.Go(func() error { return pruner.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		// Requests are drained, queued click events can be finished.
		pool.Stop()
		log.Info("click workers stopped")
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
