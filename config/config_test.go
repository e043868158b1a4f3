package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("CREWTRACK_SESSION_SECRET", "s3")
	t.Setenv("CREWTRACK_TRACKING_SECRET", "t3")
	t.Setenv("CREWTRACK_PIN_PEPPER", "p3")
	t.Setenv("CREWTRACK_ENV", "production")

	p := writeConfig(t, `
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  checkpoint_recorded_topic_name: "checkpoint.recorded"
redis:
  host: "localhost"
  port: 6379
crewtrack:
  http_addr: ":8080"
  public_base_url: "https://track.example.com"
  idle_tolerance_meters: 25.5
  ping_gate_local: true
  track_ip_lookups: ["X-Real-IP", "RemoteAddr"]
notify:
  consumer_group: "notify-worker"
  sms_per_hour: 4
`)

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "postgres://u:p@localhost:5432/db?sslmode=disable", cfg.Database.ConnString())
	require.Equal(t, "checkpoint.recorded", cfg.Kafka.Topic())
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers())
	require.Equal(t, "localhost:6379", cfg.Redis.Addr())
	require.Equal(t, ":8080", cfg.CrewTrack.HTTPAddr)
	require.InDelta(t, 25.5, cfg.CrewTrack.IdleToleranceMeters, 1e-9)
	require.Equal(t, 4, cfg.Notify.SMSPerHour)

	require.Equal(t, "s3", cfg.Secrets.SessionSecret)
	require.Equal(t, "t3", cfg.Secrets.TrackingSecret)
	require.Equal(t, "p3", cfg.Secrets.PINPepper)
	require.True(t, cfg.CrewTrack.PingGateLocal)
	require.Equal(t, []string{"X-Real-IP", "RemoteAddr"}, cfg.CrewTrack.TrackIPLookups)
	require.True(t, cfg.Secrets.Production())
}

func TestLoadConfig_Defaults(t *testing.T) {
	p := writeConfig(t, "database:\n  host: db\n")
	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "checkpoint.recorded", cfg.Kafka.Topic())
	require.Equal(t, "development", cfg.Secrets.Env)
	require.False(t, cfg.Secrets.Production())
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
