package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/competition"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/config"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/events"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/feed"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/gateway"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/grpc/profile"
	httphandler "github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/handler/http"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/identity"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/repository"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/service"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/session"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/websocket"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/storage/postgres"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/storage/redis"
	"github.com/Tonic56/proto-crypto-asset-tracker/proto/gen/go/auth"
	grpc_profile "github.com/Tonic56/proto-crypto-asset-tracker/proto/gen/go/profile"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const eventBuffer = 1024

type App struct {
	cfg        *config.Config
	log        *slog.Logger
	grpcServer *grpc.Server
	httpServer *http.Server
	storage    *postgres.Storage
	store      *redis.Store
	authConn   *grpc.ClientConn
	wsManager  *websocket.Manager
	registry   *session.Registry
	unfollow   func()
	poller     *feed.Poller
	publisher  *events.Publisher

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func New(log *slog.Logger, cfg *config.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())

	rules, startingBalance, err := competitionRules(cfg.Competition)
	if err != nil {
		panic(fmt.Errorf("invalid competition config: %w", err))
	}

	storage, err := postgres.New(cfg.Database)
	if err != nil {
		panic(fmt.Errorf("failed to init storage: %w", err))
	}
	poolService := service.NewPoolService(repository.NewPoolRepository(storage.DB))

	store := redis.New(cfg.Redis, log)
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		log.Warn("redis is not reachable yet, sync will retry", slog.Any("error", err))
	}
	pingCancel()

	gw := gateway.New(store, poolService, log, gateway.Options{
		BotPattern: cfg.Competition.BotPattern,
		Backoff: gateway.Backoff{
			Min:    cfg.Outbox.MinBackoff,
			Max:    cfg.Outbox.MaxBackoff,
			Factor: 2,
			Jitter: 0.2,
		},
		OpTimeout: cfg.Outbox.OpTimeout,
	})

	publisher := events.NewPublisher(log, eventBuffer, eventSinks(ctx, cfg, log)...)
	wsManager := websocket.NewManager(log)

	registry := session.NewRegistry(ctx, session.Deps{
		Gateway:         gw,
		Rules:           rules,
		StartingBalance: startingBalance,
		FlushTimeout:    cfg.Outbox.FlushTimeout,
		Notifier:        wsManager,
		Events:          publisher,
		Now:             time.Now,
		Log:             log,
	})

	authConn, err := grpc.NewClient(cfg.GRPC.AuthServiceAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		panic(fmt.Errorf("failed to connect to auth service: %w", err))
	}
	provider := identity.NewProvider(auth.NewAuthClient(authConn), cfg.Security.JWTSecret, log)
	unfollow := registry.Follow(provider.Watcher())

	poller := feed.NewPoller(feed.NewHTTPFetcher(cfg.Feed.BaseURL, cfg.Feed.Timeout), cfg.Feed.Symbols, cfg.Feed.Interval, log)
	poller.Subscribe(registry.ApplyPrices)

	grpcServer := grpc.NewServer()
	grpc_profile.RegisterProfileServer(grpcServer, profile.NewServer(registry, log))

	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())
	httphandler.NewHandler(registry, provider, wsManager, log, cfg.Security.JWTSecret).RegisterRoutes(ginEngine)

	httpServer := &http.Server{
		Addr:    net.JoinHostPort("", strconv.FormatUint(uint64(cfg.HTTP.Port), 10)),
		Handler: ginEngine,
	}

	return &App{
		cfg:        cfg,
		log:        log,
		grpcServer: grpcServer,
		httpServer: httpServer,
		storage:    storage,
		store:      store,
		authConn:   authConn,
		wsManager:  wsManager,
		registry:   registry,
		unfollow:   unfollow,
		poller:     poller,
		publisher:  publisher,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func competitionRules(cfg config.CompetitionConfig) (competition.Rules, decimal.Decimal, error) {
	fee, err := decimal.NewFromString(cfg.EntryFee)
	if err != nil {
		return competition.Rules{}, decimal.Zero, fmt.Errorf("entry fee: %w", err)
	}
	baseline, err := decimal.NewFromString(cfg.BaselineNetWorth)
	if err != nil {
		return competition.Rules{}, decimal.Zero, fmt.Errorf("baseline net worth: %w", err)
	}
	starting, err := decimal.NewFromString(cfg.StartingBalance)
	if err != nil {
		return competition.Rules{}, decimal.Zero, fmt.Errorf("starting balance: %w", err)
	}
	return competition.Rules{EntryFee: fee, BaselineNetWorth: baseline, Duration: cfg.Duration}, starting, nil
}

func eventSinks(ctx context.Context, cfg *config.Config, log *slog.Logger) []events.Sink {
	var sinks []events.Sink

	if len(cfg.Kafka.Brokers) > 0 {
		sinks = append(sinks, events.NewKafkaSink(cfg.Kafka))
		log.Info("transaction stream enabled", "sink", "kafka", "topic", cfg.Kafka.Topic)
	}

	if cfg.ClickHouse.Addr != "" {
		chSink, err := events.NewClickHouseSink(ctx, cfg.ClickHouse, log)
		if err != nil {
			log.Error("clickhouse sink disabled", slog.Any("error", err))
		} else {
			sinks = append(sinks, chSink)
			log.Info("transaction stream enabled", "sink", "clickhouse", "table", cfg.ClickHouse.Table)
		}
	}

	return sinks
}

func (a *App) Run() error {
	errChan := make(chan error, 2)
	a.log.Info("starting application components...")

	go func() {
		a.log.Info("websocket manager started")
		a.wsManager.Run(a.ctx)
		a.log.Info("websocket manager stopped")
	}()

	a.publisher.Start(a.ctx)

	go func() {
		a.log.Info("price feed started", "symbols", len(a.cfg.Feed.Symbols), "interval", a.cfg.Feed.Interval)
		a.poller.Run(a.ctx)
	}()

	go func() {
		if err := a.runGRPC(); err != nil {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	go func() {
		if err := a.runHTTP(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		a.log.Warn("shutting down application due to an error", "error", err)
		a.Stop()
		return err
	case <-a.ctx.Done():
		return nil
	}
}

// Stop shuts the servers down, flushes every session and then releases the stores.
func (a *App) Stop() {
	a.stopOnce.Do(a.stop)
}

func (a *App) stop() {
	a.log.Info("stopping application components gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.HTTP.Timeout)
	defer shutdownCancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("failed to gracefully shutdown HTTP server", "error", err)
	} else {
		a.log.Info("HTTP server stopped")
	}

	a.grpcServer.GracefulStop()
	a.log.Info("gRPC server stopped")

	a.unfollow()
	a.registry.Close()
	a.log.Info("sessions closed")

	a.cancel()
	a.publisher.Wait()

	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close redis client", "error", err)
	}

	if err := a.authConn.Close(); err != nil {
		a.log.Warn("failed to close auth connection", "error", err)
	}

	if err := a.storage.Stop(); err != nil {
		a.log.Error("failed to stop storage", "error", err)
	} else {
		a.log.Info("database connection closed")
	}
}

func (a *App) runGRPC() error {
	const op = "app.runGRPC"

	grpcAddress := net.JoinHostPort("", strconv.FormatUint(uint64(a.cfg.GRPC.Port), 10))
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	a.log.Info("gRPC server is running", "addr", listener.Addr().String())

	if err := a.grpcServer.Serve(listener); err != nil {
		if !errors.Is(err, net.ErrClosed) && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func (a *App) runHTTP() error {
	const op = "app.runHTTP"

	a.log.Info("HTTP server is running", "addr", a.httpServer.Addr)

	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
