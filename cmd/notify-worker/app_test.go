package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/CrewTrack/config"
	"github.com/BearBump/CrewTrack/internal/broker/messages"
	"github.com/BearBump/CrewTrack/internal/cache/memcache"
	"github.com/BearBump/CrewTrack/internal/integrations/notify"
	"github.com/BearBump/CrewTrack/internal/integrations/notify/fake"
	"github.com/BearBump/CrewTrack/internal/integrations/notify/gatewayhttp"
	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/BearBump/CrewTrack/internal/services/dispatcher"
	"github.com/stretchr/testify/require"
)

// onceConsumer hands out its messages, then blocks until ctx is done.
type onceConsumer struct {
	values [][]byte
}

func (c *onceConsumer) Consume(ctx context.Context, handler func(key, value []byte) error) error {
	for _, v := range c.values {
		if err := handler(nil, v); err != nil {
			return err
		}
	}
	c.values = nil
	<-ctx.Done()
	return ctx.Err()
}

func TestDefaultWorkerFactories_SelectSender(t *testing.T) {
	f := defaultWorkerFactories()

	withGateway := &config.Config{Notify: config.NotifyConfig{GatewayBaseURL: "http://localhost:9000"}}
	_, ok := f.newSender(withGateway).(*gatewayhttp.Client)
	require.True(t, ok)

	_, ok = f.newSender(&config.Config{}).(*fake.Sender)
	require.True(t, ok)
}

func TestDefaultWorkerFactories_ConsumerAndRateLimiter_NonNil(t *testing.T) {
	f := defaultWorkerFactories()
	cfg := &config.Config{
		Kafka: config.KafkaConfig{Host: "localhost", Port: 9092},
		Redis: config.RedisConfig{Host: "localhost", Port: 6379},
	}
	c, closeFn, err := f.newConsumer(cfg)
	require.NoError(t, err)
	require.NotNil(t, c)
	closeFn()
	require.NotNil(t, f.newRateLimiter(cfg))
}

func TestDefaultWorkerFactories_Links(t *testing.T) {
	f := defaultWorkerFactories()

	cfg := &config.Config{
		CrewTrack: config.CrewTrackConfig{PublicBaseURL: "https://track.example.com/"},
		Secrets:   config.Secrets{TrackingSecret: "tracking-secret-for-tests", Env: "production"},
	}
	links, err := f.newLinks(cfg)
	require.NoError(t, err)
	url := links.URL(models.MoveRef("j1"), "MV-1001")
	require.True(t, strings.HasPrefix(url, "https://track.example.com/track/move/MV-1001?token="), url)

	cfg.Secrets.TrackingSecret = "changeme"
	_, err = f.newLinks(cfg)
	require.Error(t, err)
}

func TestRunNotifyWorker_DeliversAndStopsOnCancel(t *testing.T) {
	phone := "4165551234"
	evt, err := json.Marshal(messages.CheckpointRecorded{
		SessionID: "s1", JobKind: "move", JobID: "j1", JobCode: "MV-1001", TeamID: "t1",
		Status: models.StatusEnRouteToPickup, At: time.Now().UTC(), ClientPhone: &phone,
	})
	require.NoError(t, err)

	sender := fake.New()
	closed := false
	f := defaultWorkerFactories()
	f.newConsumer = func(cfg *config.Config) (dispatcher.Consumer, func(), error) {
		return &onceConsumer{values: [][]byte{evt}}, func() { closed = true }, nil
	}
	f.newRateLimiter = func(cfg *config.Config) dispatcher.RateLimiter { return memcache.NewSlidingWindow() }
	f.newSender = func(cfg *config.Config) notify.Sender { return sender }

	cfg := &config.Config{
		CrewTrack: config.CrewTrackConfig{PublicBaseURL: "https://track.example.com"},
		Notify:    config.NotifyConfig{WorkerHTTPAddr: "127.0.0.1:0"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	err = RunNotifyWorker(ctx, cfg, f, "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.True(t, closed)

	sent := sender.Sent()
	require.NotEmpty(t, sent)
	require.Equal(t, notify.ChannelSMS, sent[0].Channel)
	require.Contains(t, sent[0].TrackingURL, "/track/move/MV-1001?token=")
}

func TestWorkerRouter_StatsAndConfig(t *testing.T) {
	d := dispatcher.New(&onceConsumer{}, fake.New(), nil, nil)
	cfg := &config.Config{
		Notify:  config.NotifyConfig{SMSPerHour: 6, GatewayBaseURL: "http://gw"},
		Secrets: config.Secrets{NotifyAPIKey: "super-secret-key"},
	}
	h := newWorkerRouter(workerHTTPOpts{dispatcher: d, cfg: cfg})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"totalConsumed"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"smsPerHour":6`)
	require.NotContains(t, rec.Body.String(), "super-secret-key")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs/index.html", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
