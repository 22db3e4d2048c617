package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the OrthoGate server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Backend   BackendConfig   `yaml:"backend"`
	Reports   ReportsConfig   `yaml:"reports"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Env            string   `yaml:"env"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
	RateLimit      int      `yaml:"rateLimitPerMinute"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
	// AnalysisTTL is how long a stored analysis stays cached.
	AnalysisTTL time.Duration `yaml:"analysisTTL"`
}

// BackendConfig describes the analysis backend that hosts the
// clinical-analysis, chat and report endpoints.
type BackendConfig struct {
	BaseURL         string        `yaml:"baseURL"`
	AnalysisTimeout time.Duration `yaml:"analysisTimeout"`
	ChatTimeout     time.Duration `yaml:"chatTimeout"`
	ReportTimeout   time.Duration `yaml:"reportTimeout"`
	// ReportIdleTimeout is the longest a report download may stall once
	// headers have arrived.
	ReportIdleTimeout time.Duration `yaml:"reportIdleTimeout"`
}

// ReportsConfig selects where report PDFs are looked up when the backend
// cannot serve them.
type ReportsConfig struct {
	Fallback string      `yaml:"fallback"`
	Dir      string      `yaml:"dir"`
	Minio    MinioConfig `yaml:"minio"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"useSSL"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

const (
	FallbackFS    = "fs"
	FallbackMinio = "minio"
)

// defaults returns the configuration used when neither file nor environment
// set a value.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      8080,
			Env:       "development",
			RateLimit: 60,
		},
		Redis: RedisConfig{
			AnalysisTTL: 10 * time.Minute,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Backend: BackendConfig{
			AnalysisTimeout:   30 * time.Second,
			ChatTimeout:       15 * time.Second,
			ReportTimeout:     10 * time.Second,
			ReportIdleTimeout: 30 * time.Second,
		},
		Reports: ReportsConfig{
			Fallback: FallbackFS,
			Dir:      "reports",
			Minio: MinioConfig{
				Region: "us-east-1",
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "orthogate",
		},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// ORTHOGATE_CONFIG_FILE (if set), then environment variables, and validates it.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("ORTHOGATE_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = envInt("ORTHOGATE_PORT", c.Server.Port)
	c.Server.Env = envString("ORTHOGATE_ENV", c.Server.Env)
	c.Server.AllowedOrigins = envList("ORTHOGATE_ALLOWED_ORIGINS", c.Server.AllowedOrigins)
	c.Server.RateLimit = envInt("RATE_LIMIT_PER_MINUTE", c.Server.RateLimit)

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = envDuration("DATABASE_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.Redis.URL = envString("REDIS_URL", c.Redis.URL)
	c.Redis.AnalysisTTL = envDuration("REDIS_ANALYSIS_TTL", c.Redis.AnalysisTTL)

	c.Backend.BaseURL = strings.TrimRight(envString("BACKEND_BASE_URL", c.Backend.BaseURL), "/")
	c.Backend.AnalysisTimeout = envDuration("BACKEND_ANALYSIS_TIMEOUT", c.Backend.AnalysisTimeout)
	c.Backend.ChatTimeout = envDuration("BACKEND_CHAT_TIMEOUT", c.Backend.ChatTimeout)
	c.Backend.ReportTimeout = envDuration("BACKEND_REPORT_TIMEOUT", c.Backend.ReportTimeout)
	c.Backend.ReportIdleTimeout = envDuration("BACKEND_REPORT_IDLE_TIMEOUT", c.Backend.ReportIdleTimeout)

	c.Reports.Fallback = envString("REPORTS_FALLBACK", c.Reports.Fallback)
	c.Reports.Dir = envString("REPORTS_DIR", c.Reports.Dir)
	c.Reports.Minio.Endpoint = envString("MINIO_ENDPOINT", c.Reports.Minio.Endpoint)
	c.Reports.Minio.AccessKey = envString("MINIO_ACCESS_KEY", c.Reports.Minio.AccessKey)
	c.Reports.Minio.SecretKey = envString("MINIO_SECRET_KEY", c.Reports.Minio.SecretKey)
	c.Reports.Minio.Bucket = envString("MINIO_BUCKET", c.Reports.Minio.Bucket)
	c.Reports.Minio.Region = envString("MINIO_REGION", c.Reports.Minio.Region)
	c.Reports.Minio.UseSSL = envBool("MINIO_USE_SSL", c.Reports.Minio.UseSSL)

	c.Telemetry.OTLPEndpoint = envString("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = envString("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Redis.AnalysisTTL <= 0 {
		return fmt.Errorf("REDIS_ANALYSIS_TTL must be positive")
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("BACKEND_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Backend.BaseURL, "http://") && !strings.HasPrefix(c.Backend.BaseURL, "https://") {
		return fmt.Errorf("BACKEND_BASE_URL must start with http:// or https://, got %q", c.Backend.BaseURL)
	}
	if c.Backend.AnalysisTimeout <= 0 || c.Backend.ChatTimeout <= 0 ||
		c.Backend.ReportTimeout <= 0 || c.Backend.ReportIdleTimeout <= 0 {
		return fmt.Errorf("backend timeouts must be positive")
	}

	switch c.Reports.Fallback {
	case FallbackFS:
		if c.Reports.Dir == "" {
			return fmt.Errorf("REPORTS_DIR is required when REPORTS_FALLBACK is fs")
		}
	case FallbackMinio:
		if c.Reports.Minio.Endpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required when REPORTS_FALLBACK is minio")
		}
		if c.Reports.Minio.Bucket == "" {
			return fmt.Errorf("MINIO_BUCKET is required when REPORTS_FALLBACK is minio")
		}
	default:
		return fmt.Errorf("REPORTS_FALLBACK must be one of fs, minio; got %q", c.Reports.Fallback)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// envList parses a comma-separated list, dropping empty entries.
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
