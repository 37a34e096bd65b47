package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "askadmit.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "ASKADMIT_PORT")
	setString(&cfg.Server.CORSOrigin, "ASKADMIT_CORS_ORIGIN")
	setInt(&cfg.Server.MaxInFlight, "ASKADMIT_MAX_IN_FLIGHT")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "ASKADMIT_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "ASKADMIT_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "ASKADMIT_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "ASKADMIT_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "ASKADMIT_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Graph.URL, "ASKADMIT_GRAPH_URL")
	setString(&cfg.Graph.Database, "ASKADMIT_GRAPH_DATABASE")
	setString(&cfg.Graph.Username, "ASKADMIT_GRAPH_USERNAME")
	setString(&cfg.Graph.Password, "ASKADMIT_GRAPH_PASSWORD")
	setDuration(&cfg.Graph.Timeout, "ASKADMIT_GRAPH_TIMEOUT")

	setString(&cfg.Model.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Model.BaseURL, "ASKADMIT_MODEL_BASE_URL")
	setString(&cfg.Model.ChatModel, "ASKADMIT_MODEL_CHAT")

	setString(&cfg.Logging.Level, "ASKADMIT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "ASKADMIT_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "ASKADMIT_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "ASKADMIT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.RecoveryTimeout, "ASKADMIT_BREAKER_RECOVERY_TIMEOUT")
	setInt(&cfg.Breaker.HalfOpenMaxCalls, "ASKADMIT_BREAKER_HALF_OPEN_MAX_CALLS")

	setInt(&cfg.Dispatch.MaxConcurrent, "ASKADMIT_DISPATCH_MAX_CONCURRENT")
	setDuration(&cfg.Dispatch.RequestDelay, "ASKADMIT_DISPATCH_REQUEST_DELAY")
	setDuration(&cfg.Dispatch.TaskTimeout, "ASKADMIT_DISPATCH_TASK_TIMEOUT")
	setInt(&cfg.Dispatch.MaxRetries, "ASKADMIT_DISPATCH_MAX_RETRIES")
	setDuration(&cfg.Dispatch.RetryBase, "ASKADMIT_DISPATCH_RETRY_BASE")
	setDuration(&cfg.Dispatch.RetryCap, "ASKADMIT_DISPATCH_RETRY_CAP")
	setInt(&cfg.Dispatch.QueueSize, "ASKADMIT_DISPATCH_QUEUE_SIZE")

	setInt64(&cfg.Cache.MaxSizeMB, "ASKADMIT_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.DefaultTTL, "ASKADMIT_CACHE_DEFAULT_TTL")
	setDuration(&cfg.Cache.VerifyTTL, "ASKADMIT_CACHE_VERIFY_TTL")
	setDuration(&cfg.Cache.SyntaxFixTTL, "ASKADMIT_CACHE_SYNTAX_FIX_TTL")

	setInt(&cfg.Validator.MaxSyntaxRetries, "ASKADMIT_VALIDATOR_MAX_SYNTAX_RETRIES")
	setInt(&cfg.Validator.MaxContextRetries, "ASKADMIT_VALIDATOR_MAX_CONTEXT_RETRIES")
	setInt(&cfg.Validator.MinContextThreshold, "ASKADMIT_VALIDATOR_MIN_CONTEXT_THRESHOLD")
	setDuration(&cfg.Validator.OptimizeDelay, "ASKADMIT_VALIDATOR_OPTIMIZE_DELAY")

	setInt(&cfg.Enrichment.MaxQueries, "ASKADMIT_ENRICH_MAX_QUERIES")
	setInt(&cfg.Enrichment.MaxContextSize, "ASKADMIT_ENRICH_MAX_CONTEXT_SIZE")
	setFloat64(&cfg.Enrichment.EarlyTermination, "ASKADMIT_ENRICH_EARLY_TERMINATION")
	setFloat64(&cfg.Enrichment.MinScoreImprovement, "ASKADMIT_ENRICH_MIN_IMPROVEMENT")
	setInt(&cfg.Enrichment.EntityCatalogSize, "ASKADMIT_ENRICH_CATALOG_SIZE")

	setString(&cfg.Verification.Mode, "ASKADMIT_VERIFY_MODE")
	setDuration(&cfg.Verification.Timeout, "ASKADMIT_VERIFY_TIMEOUT")
	setFloat64(&cfg.Verification.SampleRate, "ASKADMIT_VERIFY_SAMPLE_RATE")
	setInt(&cfg.Verification.MinAnswerLength, "ASKADMIT_VERIFY_MIN_ANSWER_LENGTH")

	setBool(&cfg.Telemetry.Enabled, "ASKADMIT_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "ASKADMIT_OTEL_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Graph.URL == "" {
		return errors.New("graph.url is required")
	}
	if cfg.Dispatch.MaxConcurrent < 1 {
		return errors.New("dispatch.max_concurrent must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Breaker.HalfOpenMaxCalls < 1 {
		return errors.New("breaker.half_open_max_calls must be >= 1")
	}
	if cfg.Validator.MaxSyntaxRetries < 1 {
		return errors.New("validator.max_syntax_retries must be >= 1")
	}
	if cfg.Enrichment.EarlyTermination <= 0 || cfg.Enrichment.EarlyTermination > 1 {
		return errors.New("enrichment.early_termination_threshold must be in (0, 1]")
	}
	if cfg.Verification.SampleRate < 0 || cfg.Verification.SampleRate > 1 {
		return errors.New("verification.sample_rate must be in [0, 1]")
	}
	switch cfg.Verification.Mode {
	case "pre_response", "post_async", "background":
	default:
		return fmt.Errorf("verification.mode %q is not one of pre_response, post_async, background", cfg.Verification.Mode)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
