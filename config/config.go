package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	CrewTrack CrewTrackConfig `yaml:"crewtrack"`
	Notify    NotifyConfig    `yaml:"notify"`

	// Secrets never live in the YAML file; they come from CREWTRACK_* env vars.
	Secrets Secrets `yaml:"-"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (d DatabaseConfig) ConnString() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

type KafkaConfig struct {
	Host                        string `yaml:"host"`
	Port                        int    `yaml:"port"`
	CheckpointRecordedTopicName string `yaml:"checkpoint_recorded_topic_name"`
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

func (k KafkaConfig) Topic() string {
	if k.CheckpointRecordedTopicName == "" {
		return "checkpoint.recorded"
	}
	return k.CheckpointRecordedTopicName
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type CrewTrackConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// GRPCAddr serves grpc.health.v1 only.
	GRPCAddr string `yaml:"grpc_addr"`

	PublicBaseURL string `yaml:"public_base_url"`

	SessionTTLHours        int `yaml:"session_ttl_hours"`
	LoginRateLimit         int `yaml:"login_rate_limit"`
	LoginRateWindowSeconds int `yaml:"login_rate_window_seconds"`
	// LoginRateLimitShared moves the soft login throttle to Redis.
	LoginRateLimitShared bool `yaml:"login_rate_limit_shared"`

	LockoutThreshold       int `yaml:"lockout_threshold"`
	LockoutCooldownMinutes int `yaml:"lockout_cooldown_minutes"`

	PingMinIntervalMillis int `yaml:"ping_min_interval_millis"`
	// PingGateLocal keeps the ping gate in process memory. Single instance only.
	PingGateLocal bool `yaml:"ping_gate_local"`

	IdleAfterMinutes    int     `yaml:"idle_after_minutes"`
	IdleToleranceMeters float64 `yaml:"idle_tolerance_meters"`

	TrackingViewTTLSeconds int     `yaml:"tracking_view_ttl_seconds"`
	TrackRequestsPerSecond float64 `yaml:"track_requests_per_second"`
	// TrackIPLookups lists where the /track limiter reads the client IP,
	// e.g. [X-Real-IP, RemoteAddr] behind a trusted proxy. Empty means RemoteAddr.
	TrackIPLookups []string `yaml:"track_ip_lookups"`
}

type NotifyConfig struct {
	WorkerHTTPAddr     string `yaml:"worker_http_addr"`
	ConsumerGroup      string `yaml:"consumer_group"`
	GatewayBaseURL     string `yaml:"gateway_base_url"`
	SMSPerHour         int    `yaml:"sms_per_hour"`
	RetryAttempts      int    `yaml:"retry_attempts"`
	RetryBaseMillis    int    `yaml:"retry_base_millis"`
	PublishTimeoutSecs int    `yaml:"publish_timeout_seconds"`
}

type Secrets struct {
	SessionSecret  string `envconfig:"SESSION_SECRET"`
	TrackingSecret string `envconfig:"TRACKING_SECRET"`
	// PINPepper keys stored PIN hashes, so SessionSecret can rotate alone.
	PINPepper    string `envconfig:"PIN_PEPPER"`
	NotifyAPIKey string `envconfig:"NOTIFY_API_KEY"`
	Env          string `envconfig:"ENV" default:"development"`
}

func (s Secrets) Production() bool {
	return s.Env == "production"
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := envconfig.Process("CREWTRACK", &config.Secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets from env: %w", err)
	}

	return &config, nil
}
