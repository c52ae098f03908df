package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort           = "8080"
	DefaultModelPath      = "models/asl_mlp.onnx"
	DefaultLabelMapPath   = "models/label_map.json"
	DefaultRequestTimeout = 10 * time.Second
)

type Config struct {
	Port     string
	AppEnv   string
	LogLevel string
	LogDir   string

	BaseDir           string
	ModelPath         string
	LabelMapPath      string
	SharedLibraryPath string

	ModelInputName  string
	ModelOutputName string

	PoolSize       int
	IntraOpThreads int
	RequestTimeout time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	CORSAllowOrigins string
}

// Load reads .env when present, then the process environment. Relative
// artifact paths resolve against BaseDir, which defaults to the directory of
// the running executable rather than the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		AppEnv:            getEnv("APP_ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "debug"),
		SharedLibraryPath: os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"),
		ModelInputName:    getEnv("MODEL_INPUT_NAME", ""),
		ModelOutputName:   getEnv("MODEL_OUTPUT_NAME", ""),
		CORSAllowOrigins:  getEnv("CORS_ALLOW_ORIGINS", "*"),
	}

	baseDir, err := resolveBaseDir(os.Getenv("BASE_DIR"))
	if err != nil {
		return nil, err
	}
	cfg.BaseDir = baseDir
	cfg.ModelPath = cfg.Resolve(getEnv("MODEL_PATH", DefaultModelPath))
	cfg.LabelMapPath = cfg.Resolve(getEnv("LABEL_MAP_PATH", DefaultLabelMapPath))
	cfg.LogDir = cfg.Resolve(getEnv("LOG_DIR", filepath.Join("storage", "logs")))

	if cfg.PoolSize, err = getInt("INFERENCE_POOL_SIZE", runtime.NumCPU()); err != nil {
		return nil, err
	}
	if cfg.IntraOpThreads, err = getInt("INTRA_OP_THREADS", 1); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getInt("RATE_LIMIT_BURST", 40); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = getFloat("RATE_LIMIT_RPS", 20); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", DefaultRequestTimeout); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := strconv.ParseUint(c.Port, 10, 16); err != nil {
		return fmt.Errorf("invalid PORT %q: %w", c.Port, err)
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("INFERENCE_POOL_SIZE must be positive, got %d", c.PoolSize)
	}
	if c.IntraOpThreads < 0 {
		return fmt.Errorf("INTRA_OP_THREADS must not be negative, got %d", c.IntraOpThreads)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive, got %v rps burst %d", c.RateLimitRPS, c.RateLimitBurst)
	}
	return nil
}

// Resolve makes p absolute against BaseDir.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

func resolveBaseDir(override string) (string, error) {
	if override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("invalid BASE_DIR %q: %w", override, err)
		}
		return abs, nil
	}

	execPath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = resolved
	}
	dir := filepath.Dir(execPath)

	// Built into <root>/bin or run from <root>/cmd/server.
	switch filepath.Base(dir) {
	case "bin":
		dir = filepath.Dir(dir)
	case "server":
		if filepath.Base(filepath.Dir(dir)) == "cmd" {
			dir = filepath.Join(dir, "..", "..")
		}
	}

	return filepath.Clean(dir), nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
