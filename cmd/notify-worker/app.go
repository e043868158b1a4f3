package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/CrewTrack/config"
	"github.com/BearBump/CrewTrack/internal/auth/codec"
	"github.com/BearBump/CrewTrack/internal/broker/kafka"
	"github.com/BearBump/CrewTrack/internal/cache/rediscache"
	"github.com/BearBump/CrewTrack/internal/integrations/notify"
	"github.com/BearBump/CrewTrack/internal/integrations/notify/fake"
	"github.com/BearBump/CrewTrack/internal/integrations/notify/gatewayhttp"
	"github.com/BearBump/CrewTrack/internal/services/dispatcher"
	"github.com/BearBump/CrewTrack/internal/services/trackinglink"
)

type workerFactories struct {
	newConsumer    func(cfg *config.Config) (dispatcher.Consumer, func(), error)
	newRateLimiter func(cfg *config.Config) dispatcher.RateLimiter
	newSender      func(cfg *config.Config) notify.Sender
	newLinks       func(cfg *config.Config) (dispatcher.LinkBuilder, error)
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newConsumer: func(cfg *config.Config) (dispatcher.Consumer, func(), error) {
			group := cfg.Notify.ConsumerGroup
			if group == "" {
				group = "notify-worker"
			}
			c := kafka.NewConsumer(cfg.Kafka.Brokers(), cfg.Kafka.Topic(), group)
			return c, func() { _ = c.Close() }, nil
		},
		newRateLimiter: func(cfg *config.Config) dispatcher.RateLimiter {
			return rediscache.NewRateLimiter(cfg.Redis.Addr())
		},
		newSender: func(cfg *config.Config) notify.Sender {
			// без адреса шлюза уведомления только логируются
			if cfg.Notify.GatewayBaseURL != "" {
				return gatewayhttp.New(cfg.Notify.GatewayBaseURL, cfg.Secrets.NotifyAPIKey)
			}
			return fake.New()
		},
		newLinks: func(cfg *config.Config) (dispatcher.LinkBuilder, error) {
			c, err := codec.New(cfg.Secrets.TrackingSecret, cfg.Secrets.Production())
			if err != nil {
				return nil, err
			}
			return trackinglink.New(c, cfg.CrewTrack.PublicBaseURL), nil
		},
	}
}

func backoffFromConfig(cfg *config.Config) dispatcher.BackoffConfig {
	b := dispatcher.DefaultBackoffConfig()
	if cfg.Notify.RetryAttempts > 0 {
		b.Attempts = cfg.Notify.RetryAttempts
	}
	if cfg.Notify.RetryBaseMillis > 0 {
		b.Base = time.Duration(cfg.Notify.RetryBaseMillis) * time.Millisecond
	}
	return b
}

func buildDispatcher(cfg *config.Config, f workerFactories) (*dispatcher.Dispatcher, func(), error) {
	consumer, closeFn, err := f.newConsumer(cfg)
	if err != nil {
		return nil, nil, err
	}
	links, err := f.newLinks(cfg)
	if err != nil {
		if closeFn != nil {
			closeFn()
		}
		return nil, nil, err
	}

	d := dispatcher.New(consumer, f.newSender(cfg), f.newRateLimiter(cfg), links).
		WithSettings(int64(cfg.Notify.SMSPerHour), backoffFromConfig(cfg))
	return d, closeFn, nil
}

// RunNotifyWorker consumes checkpoint events until ctx is done, with the
// status HTTP server alongside.
func RunNotifyWorker(ctx context.Context, cfg *config.Config, f workerFactories, swaggerPath string) error {
	d, closeFn, err := buildDispatcher(cfg, f)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    cfg.Notify.WorkerHTTPAddr,
			swaggerPath: swaggerPath,
			dispatcher:  d,
			cfg:         cfg,
		})
	}()

	slog.Info("notify-worker started", "topic", cfg.Kafka.Topic(), "sms_per_hour", cfg.Notify.SMSPerHour)
	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(ctx) }()

	select {
	case err := <-runErr:
		return err
	case err := <-httpErr:
		if err != nil {
			return err
		}
		return <-runErr
	}
}
