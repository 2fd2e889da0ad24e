package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// KafkaConfig names the brokers and the topics the core produces to and the
// reconciler consumes from.
type KafkaConfig struct {
	BootstrapServers string `yaml:"bootstrap_servers"`
	SettledTopic     string `yaml:"settled_topic"`
	RewardTopic      string `yaml:"reward_topic"`
	ReconcileTopic   string `yaml:"reconcile_topic"`
	DLQTopic         string `yaml:"dlq_topic"`
	ConsumerGroup    string `yaml:"consumer_group"`
}

// ClickHouseConfig is the analytics sink used by the reconciler and the
// query tooling.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// CollaboratorsConfig points at the external services the core consumes.
type CollaboratorsConfig struct {
	GatewayURL     string `yaml:"gateway_url"`
	BillsURL       string `yaml:"bills_url"`
	OTPURL         string `yaml:"otp_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	Limit         int `yaml:"limit"`
	WindowSeconds int `yaml:"window_seconds"`
}

type Config struct {
	App struct {
		Env string `yaml:"env"`
	} `yaml:"app"`
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Jaeger     struct {
		Port string `yaml:"port"`
	} `yaml:"jaeger"`
	OPA struct {
		URL string `yaml:"url"`
	} `yaml:"opa"`
	JWT struct {
		Secret string `yaml:"secret"`
	} `yaml:"jwt"`
	OAuth struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		Domain       string `yaml:"domain"`
	} `yaml:"oauth"`
	Collaborators CollaboratorsConfig `yaml:"collaborators"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
}

// Load reads the YAML config, expanding ${ENV_VAR} references first so
// secrets stay out of the file.
func Load(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	expandedFile := os.ExpandEnv(string(file))

	if err := yaml.Unmarshal([]byte(expandedFile), config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}
