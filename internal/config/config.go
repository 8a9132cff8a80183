package config

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the broker.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	TopicPrefix   string `mapstructure:"topic_prefix"`

	HttpListenAddr   string `mapstructure:"http_listen_addr"`
	GrpcListenAddr   string `mapstructure:"grpc_listen_addr"`
	AdvertisedHost   string `mapstructure:"advertised_host"`
	CallbackEndpoint string `mapstructure:"callback_endpoint"`

	CredentialsSource        string        `mapstructure:"credentials_source"` // "file" or "etcd"
	CredentialsFile          string        `mapstructure:"credentials_file"`
	CredentialsEtcdKey       string        `mapstructure:"credentials_etcd_key"`
	CredentialReloadSchedule string        `mapstructure:"credential_reload_schedule"`
	FallbackAPIKey           string        `mapstructure:"fallback_api_key"`
	EmptyCredentialPolicy    string        `mapstructure:"empty_credential_policy"`
	EtcdEndpoints            []string      `mapstructure:"etcd_endpoints"`
	EtcdTimeout              time.Duration `mapstructure:"etcd_timeout"`

	CapabilityMatching   bool          `mapstructure:"capability_matching"`
	AbandonedTaskAfter   time.Duration `mapstructure:"abandoned_task_after"`
	AbandonedTaskAuditAt string        `mapstructure:"abandoned_task_audit_schedule"`
}

// Load loads broker configuration from file and environment variables.
func Load() (*Config, error) {
	v := newViper()

	v.SetDefault("http_listen_addr", ":8888")
	v.SetDefault("grpc_listen_addr", ":50051")
	v.SetDefault("advertised_host", "master")
	v.SetDefault("callback_endpoint", "")
	v.SetDefault("credentials_source", "file")
	v.SetDefault("credentials_file", "./config/api_keys.json")
	v.SetDefault("credentials_etcd_key", "/broker/credentials")
	v.SetDefault("credential_reload_schedule", "")
	v.SetDefault("empty_credential_policy", "proceed")
	v.SetDefault("etcd_endpoints", []string{"localhost:2379"})
	v.SetDefault("etcd_timeout", "5s")
	v.SetDefault("capability_matching", false)
	v.SetDefault("abandoned_task_after", "10m")
	v.SetDefault("abandoned_task_audit_schedule", "@every 1m")

	// The fallback credential keeps the name the workers' upstream uses.
	if err := v.BindEnv("fallback_api_key", "GEMINI_API_KEY"); err != nil {
		return nil, err
	}

	if err := read(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.CallbackEndpoint == "" {
		_, port, err := net.SplitHostPort(cfg.GrpcListenAddr)
		if err != nil {
			return nil, fmt.Errorf("invalid grpc_listen_addr %q: %w", cfg.GrpcListenAddr, err)
		}
		cfg.CallbackEndpoint = net.JoinHostPort(cfg.AdvertisedHost, port)
	}
	return &cfg, nil
}

// WorkerConfig holds all configuration for a worker process.
type WorkerConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	TopicPrefix   string `mapstructure:"topic_prefix"`

	WorkerID      string        `mapstructure:"worker_id"`
	Executor      string        `mapstructure:"executor"` // "http" or "shell"
	Language      string        `mapstructure:"language"`
	HttpEndpoint  string        `mapstructure:"http_endpoint"`
	ShellCommand  string        `mapstructure:"shell_command"`
	ExecTimeout   time.Duration `mapstructure:"exec_timeout"`
	SimulateDelay time.Duration `mapstructure:"simulate_delay"`
	MetricsAddr   string        `mapstructure:"metrics_addr"`
}

// LoadWorker loads worker configuration from file and environment variables.
func LoadWorker() (*WorkerConfig, error) {
	v := newViper()

	v.SetDefault("worker_id", "")
	v.SetDefault("executor", "http")
	v.SetDefault("language", "Go")
	v.SetDefault("http_endpoint", "https://generativelanguage.googleapis.com/v1beta/models/gemini-pro:generateContent")
	v.SetDefault("shell_command", "cat")
	v.SetDefault("exec_timeout", "60s")
	v.SetDefault("simulate_delay", "0s")
	v.SetDefault("metrics_addr", "")

	if err := read(v); err != nil {
		return nil, err
	}

	var cfg WorkerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("topic_prefix", "upb")

	v.SetConfigName("config")    // name of config file (without extension)
	v.SetConfigType("yaml")      // or "json", "toml"
	v.AddConfigPath("./configs") // path to look for the config file in
	v.AddConfigPath(".")         // optionally look for config in the working directory

	v.AutomaticEnv()
	return v
}

func read(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			return err
		}
		// No config file: defaults and env vars are enough.
	}
	return nil
}
