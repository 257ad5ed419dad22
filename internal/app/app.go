package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/classgo/internal/config"
	"github.com/kirinyoku/classgo/internal/jobs"
	"github.com/kirinyoku/classgo/internal/metrics"
	"github.com/kirinyoku/classgo/internal/notify"
	"github.com/kirinyoku/classgo/internal/postgres"
	"github.com/kirinyoku/classgo/internal/redis"
	postgresrepo "github.com/kirinyoku/classgo/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/classgo/internal/repository/redis"
	"github.com/kirinyoku/classgo/internal/service"
	"github.com/kirinyoku/classgo/internal/service/ledger"
	"github.com/kirinyoku/classgo/internal/service/query"
	"github.com/kirinyoku/classgo/internal/service/waitlist"
	httpgin "github.com/kirinyoku/classgo/internal/transport/http/gin"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	scheduler  *jobs.Scheduler

	pool *pgxpool.Pool
	rdb  *goredis.Client
	amqp *notify.AMQPSink
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	// Connect to the backing services in parallel
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pool, err := postgres.New(gCtx, postgres.Config{
			DSN:      cfg.Postgres.DSN(),
			MaxConns: cfg.Postgres.MaxConns,
			AppName:  "classgo",
		})
		if err != nil {
			return fmt.Errorf("failed to initialize postgres: %w", err)
		}
		a.pool = pool
		return nil
	})

	if cfg.Redis.Addr != "" {
		g.Go(func() error {
			rdb, err := redis.New(gCtx, redis.Config{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize redis: %w", err)
			}
			a.rdb = rdb
			return nil
		})
	}

	if cfg.RabbitMQ.URL != "" {
		g.Go(func() error {
			sink, err := notify.NewAMQPSink(notify.AMQPConfig{
				URL:   cfg.RabbitMQ.URL,
				Queue: cfg.RabbitMQ.Queue,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize rabbitmq: %w", err)
			}
			a.amqp = sink
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		a.close()
		return nil, err
	}

	// Initialize repositories
	store := postgresrepo.NewStore(a.pool)

	var (
		cache      *redisrepo.Cache
		pubsub     *redisrepo.SessionsPubSub
		sinks      []notify.Sink
		routerOpts httpgin.Options
	)
	if a.rdb != nil {
		cache = redisrepo.NewCache(a.rdb)
		pubsub = redisrepo.NewSessionsPubSub(a.rdb)
		sinks = append(sinks, notify.NewRedisSink(cache, pubsub))

		routerOpts.Idempotency = redisrepo.NewIdempotencyStore(a.rdb, cfg.Server.IdempotencyTTL)
		routerOpts.Limiter = redisrepo.NewSlidingWindowLimiter(
			a.rdb,
			redisrepo.KeyRateLimit("reserve", "ip"),
			cfg.Server.RateLimit,
			cfg.Server.RateWindow,
		)
	} else {
		logger.Warn("redis is not configured; caching, event streams, idempotency and rate limiting are off")
	}
	if a.amqp != nil {
		sinks = append(sinks, a.amqp)
	}

	events := notify.NewFanout(logger, sinks...)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New("classgo", reg)

	// Initialize services
	services := service.NewServices(store, cache, pubsub, events, m, logger, service.Config{
		Ledger: ledger.Config{
			DefaultTTL: cfg.Reservation.DefaultTTL,
			MinTTL:     cfg.Reservation.MinTTL,
			MaxTTL:     cfg.Reservation.MaxTTL,
		},
		Waitlist: waitlist.Config{
			PromotionTTL: cfg.Reservation.PromotionTTL,
		},
		Query:          query.Config{},
		ReaperBatch:    cfg.Jobs.BatchSize,
		ImportLocation: cfg.Import.Location,
	})

	// Background jobs
	if cfg.Jobs.Enabled {
		a.scheduler = jobs.New(services.Reaper, services.Waitlist, jobs.Config{
			ExpirySpec:   cfg.Jobs.ExpirySpec,
			WaitlistSpec: cfg.Jobs.WaitlistSpec,
		}, logger)
		if err := a.scheduler.Register(); err != nil {
			a.close()
			return nil, err
		}
	}

	// Initialize Gin router
	routerOpts.Gatherer = reg
	routerOpts.Middlewares = []gin.HandlerFunc{m.Middleware()}
	router := httpgin.NewRouter(services, routerOpts, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer a.close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	if a.scheduler != nil {
		a.scheduler.Start()
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if a.scheduler != nil {
			if err := a.scheduler.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("jobs: %w", err))
			}
		}
		if err := a.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func (a *App) close() {
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq", slog.String("error", err.Error()))
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn("failed to close redis", slog.String("error", err.Error()))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
