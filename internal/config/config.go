// Package config loads server settings from defaults, an optional YAML file
// and the environment, in that order of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/alz-api/internal/cache"
)

// ModelFilename is the artifact name looked up next to the server binary.
const ModelFilename = "alzheimers_efficientnet_model.onnx"

// Defaults.
const (
	DefaultAddr            = "0.0.0.0:5000"
	DefaultCacheTTL        = cache.DefaultTTL
	DefaultCacheNamespace  = cache.DefaultNamespace
	DefaultShutdownTimeout = 15 * time.Second
)

type Config struct {
	Addr string `yaml:"addr"`

	ModelPath       string `yaml:"model_path"`
	ModelInputName  string `yaml:"model_input_name"`
	ModelOutputName string `yaml:"model_output_name"`
	OnnxRuntimeLib  string `yaml:"onnxruntime_lib"`

	RedisAddr      string        `yaml:"redis_addr"`
	RedisPassword  string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	CacheNamespace string        `yaml:"cache_namespace"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	GinMode   string `yaml:"gin_mode"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Defaults returns the built-in settings. The model is expected in baseDir.
func Defaults(baseDir string) *Config {
	return &Config{
		Addr:            DefaultAddr,
		ModelPath:       filepath.Join(baseDir, ModelFilename),
		CacheTTL:        DefaultCacheTTL,
		CacheNamespace:  DefaultCacheNamespace,
		LogLevel:        "info",
		LogFormat:       "text",
		GinMode:         "release",
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Load reads .env (if present), then CONFIG_FILE (if set), then the
// environment. The model path defaults to the directory of the running binary.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	baseDir, err := executableDir()
	if err != nil {
		return nil, err
	}
	return load(baseDir, os.Getenv)
}

func load(baseDir string, getenv func(string) string) (*Config, error) {
	cfg := Defaults(baseDir)

	if path := getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.mergeEnv(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays the keys present in a YAML file.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func (c *Config) mergeEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"ADDR":              &c.Addr,
		"MODEL_PATH":        &c.ModelPath,
		"MODEL_INPUT_NAME":  &c.ModelInputName,
		"MODEL_OUTPUT_NAME": &c.ModelOutputName,
		"ONNXRUNTIME_LIB":   &c.OnnxRuntimeLib,
		"REDIS_ADDR":        &c.RedisAddr,
		"REDIS_PASSWORD":    &c.RedisPassword,
		"CACHE_NAMESPACE":   &c.CacheNamespace,
		"LOG_LEVEL":         &c.LogLevel,
		"LOG_FORMAT":        &c.LogFormat,
		"GIN_MODE":          &c.GinMode,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	if v := getenv("REDIS_DB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.RedisDB = n
	}

	durations := map[string]*time.Duration{
		"CACHE_TTL":        &c.CacheTTL,
		"SHUTDOWN_TIMEOUT": &c.ShutdownTimeout,
	}
	for key, dst := range durations {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if c.ModelPath == "" {
		return errors.New("model path must not be empty")
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("redis db must be >= 0, got %d", c.RedisDB)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache ttl must be >= 0, got %s", c.CacheTTL)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be > 0, got %s", c.ShutdownTimeout)
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("unknown gin mode %q", c.GinMode)
	}
	return nil
}

// CacheEnabled reports whether a Redis address was configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

func executableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}
