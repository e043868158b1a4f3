package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/CrewTrack/config"
	"github.com/BearBump/CrewTrack/internal/api/crewapi"
	"github.com/BearBump/CrewTrack/internal/auth/codec"
	"github.com/BearBump/CrewTrack/internal/auth/pinhash"
	"github.com/BearBump/CrewTrack/internal/broker/kafka"
	"github.com/BearBump/CrewTrack/internal/cache/memcache"
	"github.com/BearBump/CrewTrack/internal/cache/rediscache"
	"github.com/BearBump/CrewTrack/internal/services/checkpoints"
	"github.com/BearBump/CrewTrack/internal/services/clientportal"
	"github.com/BearBump/CrewTrack/internal/services/crewauth"
	"github.com/BearBump/CrewTrack/internal/services/locations"
	"github.com/BearBump/CrewTrack/internal/services/lockout"
	"github.com/BearBump/CrewTrack/internal/services/trackinglink"
	"github.com/BearBump/CrewTrack/internal/storage/pgcrew"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

type crewAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     crewAPIOpts
	api      *crewapi.API
	engine   *checkpoints.Engine
	producer *kafka.Producer
	rdb      *redis.Client
	closeDB  func()
}

func mustBootstrapCrewAPI() *crewAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	prod := cfg.Secrets.Production()

	sessionCodec, err := codec.New(cfg.Secrets.SessionSecret, prod)
	if err != nil {
		panic(fmt.Sprintf("session secret: %v", err))
	}
	trackingCodec, err := codec.New(cfg.Secrets.TrackingSecret, prod)
	if err != nil {
		panic(fmt.Sprintf("tracking secret: %v", err))
	}
	pinCodec, err := codec.New(cfg.Secrets.PINPepper, prod)
	if err != nil {
		panic(fmt.Sprintf("pin pepper: %v", err))
	}

	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr()})
	producer := kafka.NewProducer(cfg.Kafka.Brokers())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ct := cfg.CrewTrack
	guard := lockout.New(st).
		WithSettings(ct.LockoutThreshold, time.Duration(ct.LockoutCooldownMinutes)*time.Minute)

	var loginLimiter crewauth.RateLimiter = memcache.NewSlidingWindow()
	if ct.LoginRateLimitShared {
		loginLimiter = rediscache.NewRateLimiterWithClient(rdb)
	}
	auth := crewauth.New(st, guard, loginLimiter, sessionCodec).
		WithPINHasher(pinhash.New(pinCodec)).
		WithSettings(
			time.Duration(ct.SessionTTLHours)*time.Hour,
			int64(ct.LoginRateLimit),
			time.Duration(ct.LoginRateWindowSeconds)*time.Second,
		)

	links := trackinglink.New(trackingCodec, ct.PublicBaseURL)

	notifier := checkpoints.NewKafkaNotifier(producer, cfg.Kafka.Topic())
	engine := checkpoints.New(st, notifier, rediscache.NewWithClient(rdb), viewTTL(ct)).
		WithIdleSettings(time.Duration(ct.IdleAfterMinutes)*time.Minute, ct.IdleToleranceMeters).
		WithNotifyTimeout(time.Duration(cfg.Notify.PublishTimeoutSecs) * time.Second).
		WithMetrics(reg)

	var pingGate locations.PingGate = rediscache.NewPingGateWithClient(rdb)
	if ct.PingGateLocal {
		pingGate = memcache.NewPingGate()
	}
	ingestor := locations.New(st, pingGate, engine).
		WithSettings(time.Duration(ct.PingMinIntervalMillis) * time.Millisecond)

	portal := clientportal.New(engine, links, st)

	api := crewapi.New(auth, engine, ingestor, portal, crewapi.Options{
		Production:             prod,
		TrackRequestsPerSecond: trackRPS(ct),
		TrackIPLookups:         ct.TrackIPLookups,
		Registry:               reg,
	}).WithTeamData(st, engine)

	httpAddr := ct.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	grpcAddr := ct.GRPCAddr
	if grpcAddr == "" {
		grpcAddr = ":50051"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	slog.Info("crew-api configured", "env", cfg.Secrets.Env, "topic", cfg.Kafka.Topic(), "shared_login_limit", ct.LoginRateLimitShared, "local_ping_gate", ct.PingGateLocal)
	return &crewAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: crewAPIOpts{
			httpAddr:    httpAddr,
			grpcAddr:    grpcAddr,
			swaggerPath: os.Getenv("swaggerPath"),
			gatherer:    reg,
			ready: func(ctx context.Context) error {
				if err := st.Ping(ctx); err != nil {
					return err
				}
				return rdb.Ping(ctx).Err()
			},
		},
		api:      api,
		engine:   engine,
		producer: producer,
		rdb:      rdb,
		closeDB:  st.Close,
	}
}

func viewTTL(ct config.CrewTrackConfig) time.Duration {
	ttl := time.Duration(ct.TrackingViewTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return ttl
}

func trackRPS(ct config.CrewTrackConfig) float64 {
	if ct.TrackRequestsPerSecond <= 0 {
		return 5
	}
	return ct.TrackRequestsPerSecond
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgcrew.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgcrew.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *crewAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	// дожидаемся фоновых уведомлений до закрытия producer
	if a.engine != nil {
		a.engine.Wait()
	}
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *crewAPIApp) Run() error {
	return runCrewAPI(a.ctx, a.opts, a.api)
}
