package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all orchestrator configuration.
type Config struct {
	App           AppConfig
	Models        ModelsConfig
	Router        RouterConfig
	EventBus      EventBusConfig
	Orchestrator  OrchestratorConfig
	Observability ObservabilityConfig
}

// AppConfig contains process-level configuration.
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// ModelsConfig describes which model serves each domain at each size tier.
type ModelsConfig struct {
	SmallEndpointURL string               `mapstructure:"small_endpoint_url"`
	LargeEndpointURL string               `mapstructure:"large_endpoint_url"`
	DecomposerModel  string               `mapstructure:"decomposer_model"`
	SynthesizerModel string               `mapstructure:"synthesizer_model"`
	Commonsense      DomainModelConfig    `mapstructure:"commonsense"`
	Medical          DomainModelConfig    `mapstructure:"medical"`
	Law              DomainModelConfig    `mapstructure:"law"`
	Math             DomainModelConfig    `mapstructure:"math"`
}

// DomainModelConfig names the small and large model for one task domain.
type DomainModelConfig struct {
	Small string `mapstructure:"small"`
	Large string `mapstructure:"large"`
}

// RouterConfig configures the remote small/large routing classifier.
type RouterConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	CacheBackend     string `mapstructure:"cache_backend"` // "memory" or "redis"
	CacheRedisAddr   string `mapstructure:"cache_redis_addr"`
}

// EventBusConfig configures lifecycle event publishing.
type EventBusConfig struct {
	Backend      string `mapstructure:"backend"` // "noop" or "kafka"
	KafkaBrokers string `mapstructure:"kafka_brokers"`
	KafkaTopic   string `mapstructure:"kafka_topic"`
}

// OrchestratorConfig bounds the decompose/execute/synthesize run loop.
type OrchestratorConfig struct {
	MaxRetry              int `mapstructure:"max_retry"`
	MaxConcurrentSubtasks int `mapstructure:"max_concurrent_subtasks"`
}

// ObservabilityConfig contains logging, metrics and tracing configuration.
type ObservabilityConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	Exporter     string  `mapstructure:"exporter"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SamplingRatio float64 `mapstructure:"sampling_ratio"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// Load reads configuration from a .env file (if present) and environment
// variables. Environment variables always win over any config file default.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "orchestrator")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("models.small_endpoint_url", "http://localhost:8000")
	v.SetDefault("models.large_endpoint_url", "http://localhost:8001")
	v.SetDefault("models.decomposer_model", "llama-3.1-8b-instruct")
	v.SetDefault("models.synthesizer_model", "llama-3.1-8b-instruct")

	v.SetDefault("router.base_url", "http://localhost:9000")
	v.SetDefault("router.cache_backend", "memory")

	v.SetDefault("eventbus.backend", "noop")
	v.SetDefault("eventbus.kafka_topic", "orchestrator.run_events")

	v.SetDefault("orchestrator.max_retry", 3)
	v.SetDefault("orchestrator.max_concurrent_subtasks", 16)

	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.service_name", "llm-agent-orchestrator")
	v.SetDefault("observability.tracing.exporter", "otlp")
	v.SetDefault("observability.tracing.sampling_ratio", 1.0)

	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9090)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.json", true)
}

func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("app.name", "ORCH_APP_NAME")
	_ = v.BindEnv("app.env", "ORCH_APP_ENV")
	_ = v.BindEnv("app.log_level", "ORCH_LOG_LEVEL")

	_ = v.BindEnv("models.small_endpoint_url", "ORCH_SMALL_ENDPOINT_URL")
	_ = v.BindEnv("models.large_endpoint_url", "ORCH_LARGE_ENDPOINT_URL")
	_ = v.BindEnv("models.decomposer_model", "ORCH_DECOMPOSER_MODEL")
	_ = v.BindEnv("models.synthesizer_model", "ORCH_SYNTHESIZER_MODEL")

	_ = v.BindEnv("models.commonsense.small", "ORCH_MODEL_COMMONSENSE_SMALL")
	_ = v.BindEnv("models.commonsense.large", "ORCH_MODEL_COMMONSENSE_LARGE")
	_ = v.BindEnv("models.medical.small", "ORCH_MODEL_MEDICAL_SMALL")
	_ = v.BindEnv("models.medical.large", "ORCH_MODEL_MEDICAL_LARGE")
	_ = v.BindEnv("models.law.small", "ORCH_MODEL_LAW_SMALL")
	_ = v.BindEnv("models.law.large", "ORCH_MODEL_LAW_LARGE")
	_ = v.BindEnv("models.math.small", "ORCH_MODEL_MATH_SMALL")
	_ = v.BindEnv("models.math.large", "ORCH_MODEL_MATH_LARGE")

	_ = v.BindEnv("router.base_url", "ORCH_ROUTER_BASE_URL")
	_ = v.BindEnv("router.cache_backend", "ORCH_ROUTER_CACHE_BACKEND")
	_ = v.BindEnv("router.cache_redis_addr", "ORCH_ROUTER_CACHE_REDIS_ADDR")

	_ = v.BindEnv("eventbus.backend", "ORCH_EVENTBUS_BACKEND")
	_ = v.BindEnv("eventbus.kafka_brokers", "ORCH_EVENTBUS_KAFKA_BROKERS")
	_ = v.BindEnv("eventbus.kafka_topic", "ORCH_EVENTBUS_KAFKA_TOPIC")

	_ = v.BindEnv("orchestrator.max_retry", "ORCH_MAX_RETRY")
	_ = v.BindEnv("orchestrator.max_concurrent_subtasks", "ORCH_MAX_CONCURRENT_SUBTASKS")

	_ = v.BindEnv("observability.tracing.enabled", "ORCH_TRACING_ENABLED")
	_ = v.BindEnv("observability.tracing.exporter", "ORCH_TRACING_EXPORTER")
	_ = v.BindEnv("observability.tracing.otlp_endpoint", "ORCH_TRACING_OTLP_ENDPOINT")

	_ = v.BindEnv("observability.metrics.enabled", "ORCH_METRICS_ENABLED")
	_ = v.BindEnv("observability.metrics.port", "ORCH_METRICS_PORT")

	_ = v.BindEnv("observability.logging.level", "ORCH_LOG_LEVEL")
	_ = v.BindEnv("observability.logging.json", "ORCH_LOG_JSON")
}

func validate(cfg *Config) error {
	validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
	if !validEnvs[cfg.App.Env] {
		return fmt.Errorf("invalid app.env: must be development, staging, or production")
	}

	if cfg.Models.SmallEndpointURL == "" {
		return fmt.Errorf("models.small_endpoint_url is required")
	}
	if cfg.Models.LargeEndpointURL == "" {
		return fmt.Errorf("models.large_endpoint_url is required")
	}

	if cfg.Router.BaseURL == "" {
		return fmt.Errorf("router.base_url is required")
	}
	validCacheBackends := map[string]bool{"memory": true, "redis": true}
	if !validCacheBackends[cfg.Router.CacheBackend] {
		return fmt.Errorf("invalid router.cache_backend: must be memory or redis")
	}
	if cfg.Router.CacheBackend == "redis" && cfg.Router.CacheRedisAddr == "" {
		return fmt.Errorf("router.cache_redis_addr is required when cache_backend is redis")
	}

	validEventBusBackends := map[string]bool{"noop": true, "kafka": true}
	if !validEventBusBackends[cfg.EventBus.Backend] {
		return fmt.Errorf("invalid eventbus.backend: must be noop or kafka")
	}
	if cfg.EventBus.Backend == "kafka" && cfg.EventBus.KafkaBrokers == "" {
		return fmt.Errorf("eventbus.kafka_brokers is required when backend is kafka")
	}

	if cfg.Orchestrator.MaxRetry < 1 {
		return fmt.Errorf("invalid orchestrator.max_retry: must be >= 1")
	}
	if cfg.Orchestrator.MaxConcurrentSubtasks < 1 {
		return fmt.Errorf("invalid orchestrator.max_concurrent_subtasks: must be >= 1")
	}

	if cfg.Observability.Tracing.SamplingRatio < 0 || cfg.Observability.Tracing.SamplingRatio > 1.0 {
		return fmt.Errorf("invalid observability.tracing.sampling_ratio: must be between 0.0 and 1.0")
	}

	return nil
}

// IsProduction returns true if running in the production environment.
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment returns true if running in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}
