package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/themobileprof/lambdachat/pkg/lambda"
)

const defaultConfigFile = "secrets.yaml"

type Config struct {
	// Server
	Port           string   // default: 8080
	AllowedOrigins []string // empty: any origin

	// Chat endpoint
	LambdaAPIKey      string
	LambdaURL         string
	LambdaContentType string // default: application/json
	LambdaModel       string // default: gpt-4o-mini
	IndexName         string
	Instructions      string
	RequestTimeout    time.Duration // per attempt, default: 30s
	MaxAttempts       int           // default: 3
	RetryMaxWait      time.Duration // default: 15s

	// Conversation
	InitialMessage  string
	StreamResponses bool
	MaxInputChars   int // default: 250

	// Sessions
	SessionStore  string // "memory" or "redis"
	RedisAddr     string
	SessionTTL    time.Duration // default: 24h
	SessionSecret string

	// Rate Limiting
	RateLimitPerMinute int // per IP, default: 100

	// Observability
	OTELExporterType     string // "none", "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"
}

// source resolves a key from the environment first, then the secrets file
type source struct {
	file map[string]string
	errs []error
}

func (s *source) get(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value
	}
	return fallback
}

func (s *source) duration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(s.get(key, fallback))
	if err != nil || d < 0 {
		s.errs = append(s.errs, fmt.Errorf("invalid %s: %q is not a duration", key, s.get(key, fallback)))
	}
	return d
}

func (s *source) integer(key, fallback string) int {
	n, err := strconv.Atoi(s.get(key, fallback))
	if err != nil || n < 1 {
		s.errs = append(s.errs, fmt.Errorf("invalid %s: %q is not a positive integer", key, s.get(key, fallback)))
	}
	return n
}

func (s *source) boolean(key, fallback string) bool {
	b, err := strconv.ParseBool(s.get(key, fallback))
	if err != nil {
		s.errs = append(s.errs, fmt.Errorf("invalid %s: %q is not a boolean", key, s.get(key, fallback)))
	}
	return b
}

// Load reads configuration from .env, the optional secrets file and the
// environment, in increasing order of precedence
func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	file, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	src := &source{file: file}

	cfg := &Config{
		Port:                 src.get("PORT", "8080"),
		LambdaAPIKey:         src.get("LAMBDA_API_KEY", ""),
		LambdaURL:            src.get("LAMBDA_GPT_URL", ""),
		LambdaContentType:    src.get("LAMBDA_CONTENT_TYPE", "application/json"),
		LambdaModel:          src.get("LAMBDA_MODEL", "gpt-4o-mini"),
		IndexName:            src.get("INDEX_NAME", ""),
		Instructions:         src.get("INSTRUCTIONS", ""),
		RequestTimeout:       src.duration("REQUEST_TIMEOUT", "30s"),
		MaxAttempts:          src.integer("MAX_ATTEMPTS", "3"),
		RetryMaxWait:         src.duration("RETRY_MAX_WAIT", "15s"),
		InitialMessage:       src.get("INITIAL_MESSAGE", "Hello! How can I help you today?"),
		StreamResponses:      src.boolean("STREAM_RESPONSES", "false"),
		MaxInputChars:        src.integer("MAX_INPUT_CHARS", "250"),
		SessionStore:         strings.ToLower(src.get("SESSION_STORE", "memory")),
		RedisAddr:            src.get("REDIS_ADDR", ""),
		SessionTTL:           src.duration("SESSION_TTL", "24h"),
		SessionSecret:        src.get("SESSION_SECRET", ""),
		RateLimitPerMinute:   src.integer("RATE_LIMIT_PER_MINUTE", "100"),
		OTELExporterType:     strings.ToLower(src.get("OTEL_EXPORTER_TYPE", "none")),
		OTELExporterEndpoint: src.get("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}
	if origins := src.get("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	// Validation
	if cfg.LambdaAPIKey == "" {
		src.errs = append(src.errs, errors.New("LAMBDA_API_KEY is required"))
	}
	if cfg.LambdaURL == "" {
		src.errs = append(src.errs, errors.New("LAMBDA_GPT_URL is required"))
	}
	switch cfg.SessionStore {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			src.errs = append(src.errs, errors.New("REDIS_ADDR is required when SESSION_STORE=redis"))
		}
	default:
		src.errs = append(src.errs, fmt.Errorf("invalid SESSION_STORE: %q (want memory or redis)", cfg.SessionStore))
	}
	switch cfg.OTELExporterType {
	case "none", "stdout", "otlp":
	default:
		src.errs = append(src.errs, fmt.Errorf("invalid OTEL_EXPORTER_TYPE: %q (want none, stdout or otlp)", cfg.OTELExporterType))
	}

	if err := errors.Join(src.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile reads flat KEY: value pairs from a YAML secrets file. An unset
// path falls back to secrets.yaml when that file exists.
func loadFile(path string) (map[string]string, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	values := make(map[string]string)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return values, nil
}

// TurnTimeout bounds a reply from an endpoint that sends nothing: every
// attempt timing out plus the longest wait before each
func (c *Config) TurnTimeout() time.Duration {
	return time.Duration(c.MaxAttempts) * (c.RequestTimeout + c.RetryMaxWait)
}

// LambdaConfig returns the chat endpoint client settings
func (c *Config) LambdaConfig() lambda.Config {
	return lambda.Config{
		APIKey:       c.LambdaAPIKey,
		URL:          c.LambdaURL,
		ContentType:  c.LambdaContentType,
		Model:        c.LambdaModel,
		IndexName:    c.IndexName,
		Instructions: c.Instructions,
		Timeout:      c.RequestTimeout,
		MaxAttempts:  uint(c.MaxAttempts),
		MaxWait:      c.RetryMaxWait,
	}
}
