package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends accepted in StoreConfig.Backend.
const (
	StoreFile     = "file"
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config captures the runtime configuration shared by the daemon and the agent.
type Config struct {
	BindHost string `yaml:"bindHost"`
	AppPort  int    `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	APIEndpoint     string            `yaml:"apiEndpoint"`
	EndpointPattern string            `yaml:"endpointPattern"`
	VideoHost       string            `yaml:"videoHost"`
	VideoPathMarker string            `yaml:"videoPathMarker"`
	Origin          string            `yaml:"origin"`
	RequestTimeout  time.Duration     `yaml:"requestTimeout"`
	Headers         map[string]string `yaml:"headers"`

	AgentURL       string        `yaml:"agentUrl"`
	RefreshTimeout time.Duration `yaml:"refreshTimeout"`

	MigrationDir string `yaml:"migrationDir"`

	Store     StoreConfig     `yaml:"store"`
	Archive   ArchiveConfig   `yaml:"archive"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Agent     AgentConfig     `yaml:"agent"`
}

// StoreConfig selects and configures the credential store backend.
type StoreConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	DatabaseURL   string `yaml:"databaseUrl"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDb"`
	RedisKey      string `yaml:"redisKey"`
}

// ArchiveConfig configures the optional S3 result archive. An empty bucket disables it.
type ArchiveConfig struct {
	Bucket        string `yaml:"bucket"`
	Endpoint      string `yaml:"endpoint"`
	Region        string `yaml:"region"`
	PublicBaseURL string `yaml:"publicBaseUrl"`
	Workers       int    `yaml:"workers"`
	QueueSize     int    `yaml:"queueSize"`
}

// Enabled reports whether archiving is configured.
func (a ArchiveConfig) Enabled() bool {
	return strings.TrimSpace(a.Bucket) != ""
}

// RateLimitConfig bounds how often one client may submit commands.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
	Burst    int           `yaml:"burst"`
}

// AgentConfig configures the short-lived agent and its identity provider.
type AgentConfig struct {
	Port         int      `yaml:"port"`
	DaemonURL    string   `yaml:"daemonUrl"`
	TokenURL     string   `yaml:"tokenUrl"`
	ClientID     string   `yaml:"clientId"`
	ClientSecret string   `yaml:"clientSecret"`
	Scopes       []string `yaml:"scopes"`
	Email        string   `yaml:"email"`
	Password     string   `yaml:"-"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		BindHost:        "127.0.0.1",
		AppPort:         8080,
		LogLevel:        "info",
		APIEndpoint:     "http://localhost:3000/api/ai-videos/generate-from-tiktok",
		EndpointPattern: "/api/",
		VideoHost:       "tiktok.com",
		VideoPathMarker: "/video/",
		Origin:          "genbridge://daemon",
		RequestTimeout:  240 * time.Second,
		AgentURL:        "http://127.0.0.1:8091",
		RefreshTimeout:  10 * time.Second,
		MigrationDir:    "migrations",
		Store: StoreConfig{
			Backend:  StoreFile,
			Path:     defaultStorePath(),
			RedisKey: "genbridge:credential",
		},
		Archive: ArchiveConfig{
			Region:    "us-east-1",
			Workers:   2,
			QueueSize: 32,
		},
		RateLimit: RateLimitConfig{
			Requests: 30,
			Window:   time.Minute,
			Burst:    10,
		},
		Agent: AgentConfig{
			Port:      8091,
			DaemonURL: "http://127.0.0.1:8080",
			Scopes:    []string{"openid", "email", "profile"},
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// GENBRIDGE_CONFIG, and environment overrides, in that order.
func Load() (Config, error) {
	return LoadFile(os.Getenv("GENBRIDGE_CONFIG"))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	if path = strings.TrimSpace(path); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.BindHost = getString("GENBRIDGE_BIND_HOST", cfg.BindHost)
	cfg.AppPort = getInt("GENBRIDGE_PORT", cfg.AppPort)
	cfg.LogLevel = getString("GENBRIDGE_LOG_LEVEL", cfg.LogLevel)
	cfg.APIEndpoint = getString("GENBRIDGE_API_ENDPOINT", cfg.APIEndpoint)
	cfg.EndpointPattern = getString("GENBRIDGE_ENDPOINT_PATTERN", cfg.EndpointPattern)
	cfg.VideoHost = getString("GENBRIDGE_VIDEO_HOST", cfg.VideoHost)
	cfg.VideoPathMarker = getString("GENBRIDGE_VIDEO_PATH", cfg.VideoPathMarker)
	cfg.Origin = getString("GENBRIDGE_ORIGIN", cfg.Origin)
	cfg.RequestTimeout = getDuration("GENBRIDGE_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.AgentURL = getString("GENBRIDGE_AGENT_URL", cfg.AgentURL)
	cfg.RefreshTimeout = getDuration("GENBRIDGE_REFRESH_TIMEOUT", cfg.RefreshTimeout)
	cfg.MigrationDir = getString("GENBRIDGE_MIGRATIONS", cfg.MigrationDir)

	cfg.Store.Backend = strings.ToLower(getString("GENBRIDGE_STORE_BACKEND", cfg.Store.Backend))
	cfg.Store.Path = getString("GENBRIDGE_STORE_PATH", cfg.Store.Path)
	cfg.Store.DatabaseURL = getString("GENBRIDGE_DATABASE_URL", cfg.Store.DatabaseURL)
	cfg.Store.RedisAddr = getString("GENBRIDGE_REDIS_ADDR", cfg.Store.RedisAddr)
	cfg.Store.RedisPassword = getString("GENBRIDGE_REDIS_PASSWORD", cfg.Store.RedisPassword)
	cfg.Store.RedisDB = getInt("GENBRIDGE_REDIS_DB", cfg.Store.RedisDB)
	cfg.Store.RedisKey = getString("GENBRIDGE_REDIS_KEY", cfg.Store.RedisKey)

	cfg.Archive.Bucket = getString("GENBRIDGE_ARCHIVE_BUCKET", cfg.Archive.Bucket)
	cfg.Archive.Endpoint = getString("GENBRIDGE_ARCHIVE_ENDPOINT", cfg.Archive.Endpoint)
	cfg.Archive.Region = getString("GENBRIDGE_ARCHIVE_REGION", cfg.Archive.Region)
	cfg.Archive.PublicBaseURL = getString("GENBRIDGE_ARCHIVE_PUBLIC_URL", cfg.Archive.PublicBaseURL)

	cfg.RateLimit.Requests = getInt("GENBRIDGE_RATE_LIMIT_REQUESTS", cfg.RateLimit.Requests)
	cfg.RateLimit.Window = getDuration("GENBRIDGE_RATE_LIMIT_WINDOW", cfg.RateLimit.Window)
	cfg.RateLimit.Burst = getInt("GENBRIDGE_RATE_LIMIT_BURST", cfg.RateLimit.Burst)

	cfg.Agent.Port = getInt("GENBRIDGE_AGENT_PORT", cfg.Agent.Port)
	cfg.Agent.DaemonURL = getString("GENBRIDGE_DAEMON_URL", cfg.Agent.DaemonURL)
	cfg.Agent.TokenURL = getString("GENBRIDGE_IDP_TOKEN_URL", cfg.Agent.TokenURL)
	cfg.Agent.ClientID = getString("GENBRIDGE_IDP_CLIENT_ID", cfg.Agent.ClientID)
	cfg.Agent.ClientSecret = getString("GENBRIDGE_IDP_CLIENT_SECRET", cfg.Agent.ClientSecret)
	cfg.Agent.Email = getString("GENBRIDGE_AGENT_EMAIL", cfg.Agent.Email)
	cfg.Agent.Password = getString("GENBRIDGE_AGENT_PASSWORD", cfg.Agent.Password)
	if scopes := getString("GENBRIDGE_IDP_SCOPES", ""); scopes != "" {
		cfg.Agent.Scopes = strings.Fields(strings.ReplaceAll(scopes, ",", " "))
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.AppPort <= 0 || c.AppPort > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.AppPort))
	}
	if c.Agent.Port <= 0 || c.Agent.Port > 65535 {
		errs = append(errs, fmt.Errorf("agent port %d out of range", c.Agent.Port))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.RefreshTimeout <= 0 {
		errs = append(errs, errors.New("refresh timeout must be positive"))
	}
	switch c.Store.Backend {
	case StoreFile:
		if strings.TrimSpace(c.Store.Path) == "" {
			errs = append(errs, errors.New("file store requires a path"))
		}
	case StoreMemory:
	case StoreRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			errs = append(errs, errors.New("redis store requires an address"))
		}
	case StorePostgres:
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			errs = append(errs, errors.New("postgres store requires a database url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	return errors.Join(errs...)
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return filepath.Join(".genbridge", "credential.json")
	}
	return filepath.Join(dir, "genbridge", "credential.json")
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
