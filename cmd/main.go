package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/angeloszaimis/library-gateway/config"
	"github.com/angeloszaimis/library-gateway/internal/apperror"
	"github.com/angeloszaimis/library-gateway/internal/auth"
	"github.com/angeloszaimis/library-gateway/internal/backend"
	"github.com/angeloszaimis/library-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/library-gateway/internal/client"
	"github.com/angeloszaimis/library-gateway/internal/gateway"
	"github.com/angeloszaimis/library-gateway/internal/handler"
	"github.com/angeloszaimis/library-gateway/internal/healthcheck"
	"github.com/angeloszaimis/library-gateway/internal/httpserver"
	"github.com/angeloszaimis/library-gateway/internal/loadbalancer"
	"github.com/angeloszaimis/library-gateway/internal/metrics"
	"github.com/angeloszaimis/library-gateway/internal/retryqueue"
	"github.com/angeloszaimis/library-gateway/internal/strategy"
	"github.com/angeloszaimis/library-gateway/pkg/logger"
	"github.com/angeloszaimis/library-gateway/pkg/redis"
)

const metricsBufferSize = 1024

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Gateway stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	collector := metrics.NewCollector(metricsBufferSize, log)
	collector.Start(ctx)

	rdb, err := redis.Connect(ctx, redis.Options{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	store := retryqueue.NewStore(rdb.Raw(), cfg.Queue.KeyPrefix, cfg.Queue.Instance)

	app, err := assemble(cfg, log, collector, store)
	if err != nil {
		return err
	}

	for _, pool := range app.pools {
		for _, b := range pool.Backends() {
			go healthcheck.HealthCheck(ctx, b, cfg.HealthCheck.Every(), log, collector)
		}
	}

	if err := app.worker.Start(ctx); err != nil {
		return fmt.Errorf("start retry worker: %w", err)
	}
	defer app.worker.Stop()

	srv, err := httpserver.New(cfg.Server.Address, app.router, log, httpserver.Options{})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Gateway listening",
		slog.String("address", cfg.Server.Address),
		slog.String("strategy", cfg.Strategy.Type))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
		return nil
	case err := <-srvErrCh:
		return err
	}
}

// application is the wired gateway minus its long-running loops.
type application struct {
	router http.Handler
	worker *retryqueue.Worker
	pools  []*loadbalancer.LoadBalancer
}

func assemble(cfg *config.Config, log *slog.Logger, collector *metrics.Collector, store *retryqueue.Store) (*application, error) {
	breakers := circuitbreaker.NewRegistry(log, func(name string, _, to circuitbreaker.State) {
		collector.Emit(metrics.MetricEvent{
			Type:       metrics.EventBreakerChanged,
			Dependency: name,
			State:      to.String(),
		})
	})

	httpClient := &http.Client{}
	deps := cfg.Dependencies.ByName()
	pools := make([]*loadbalancer.LoadBalancer, 0, len(deps))

	options := func(name string) (client.Options, error) {
		depCfg := deps[name]
		pool, err := newPool(name, depCfg.URLs, cfg.Strategy.Type)
		if err != nil {
			return client.Options{}, err
		}
		pools = append(pools, pool)

		return client.Options{
			Executor: client.NewExecutor(pool, httpClient, depCfg.CallTimeout(), collector),
			Breaker: breakers.Breaker(name, circuitbreaker.Settings{
				FailureThreshold: depCfg.FailureThreshold,
				OpenTimeout:      depCfg.CoolDown(),
				IsFailure:        apperror.IsOutage,
			}),
			Queue:  store,
			Logger: log,
			Events: collector,
		}, nil
	}

	libraryOpts, err := options(config.DependencyLibrary)
	if err != nil {
		return nil, err
	}
	reservationOpts, err := options(config.DependencyReservation)
	if err != nil {
		return nil, err
	}
	ratingOpts, err := options(config.DependencyRating)
	if err != nil {
		return nil, err
	}

	library := client.NewLibraryClient(libraryOpts)
	reservations := client.NewReservationClient(reservationOpts)
	rating := client.NewRatingClient(ratingOpts)

	worker := retryqueue.NewWorker(store, retryqueue.WorkerConfig{
		PollInterval: cfg.Queue.PollEvery(),
		MaxAttempts:  cfg.Queue.MaxAttempts,
	}, log, collector, library, reservations, rating)

	handlerPools := make([]handler.Pool, len(pools))
	for i, pool := range pools {
		handlerPools[i] = pool
	}

	router := setupRouter(
		log,
		collector,
		auth.NewMiddleware(cfg.Auth.JWTSecret, cfg.Auth.UsernameClaim, log),
		handler.NewGatewayHandler(log, gateway.New(library, reservations, rating, log)),
		handler.NewManageHandler(log, breakers, store, collector.Handler(cfg.Strategy.Type), handlerPools...),
		collector.PrometheusHandler(),
	)

	return &application{
		router: router,
		worker: worker,
		pools:  pools,
	}, nil
}

// newPool builds the load balancer for one dependency. Each pool gets its
// own strategy so round-robin positions are not shared across dependencies.
func newPool(dependency string, urls []string, strategyName string) (*loadbalancer.LoadBalancer, error) {
	backends, err := backend.ParseAll(dependency, urls)
	if err != nil {
		return nil, err
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("%s: no replicas configured", dependency)
	}

	strat, err := strategy.New(strategyName)
	if err != nil {
		return nil, err
	}

	return loadbalancer.NewLoadBalancer(dependency, backends, strat), nil
}
