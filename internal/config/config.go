package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pbaille/nutrilog/internal/nutrition"
)

const defaultUSDAKey = "DEMO_KEY"

// Config holds everything the CLI and server need
type Config struct {
	DBPath         string            `yaml:"db"`
	Addr           string            `yaml:"addr"`
	LogMode        string            `yaml:"log_mode"`
	USDAAPIKey     string            `yaml:"usda_api_key"`
	USDABaseURL    string            `yaml:"usda_base_url"`
	OFFAppUUID     string            `yaml:"off_app_uuid"`
	OFFBaseURL     string            `yaml:"off_base_url"`
	RedisAddr      string            `yaml:"redis_addr"`
	SearchCacheTTL time.Duration     `yaml:"search_cache_ttl"`
	Targets        nutrition.Targets `yaml:"targets"`
}

// Default returns the built-in configuration rooted at ~/.nutrilog
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DBPath:         filepath.Join(home, ".nutrilog", "diary.db"),
		Addr:           ":8080",
		LogMode:        "development",
		USDAAPIKey:     defaultUSDAKey,
		SearchCacheTTL: time.Hour,
	}
}

// DefaultPath is where Load looks for a YAML file when none is given
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".nutrilog", "config.yaml")
}

// Load layers defaults, the YAML file at path (optional), .env and the process environment
func Load(path string) (Config, error) {
	cfg := Default()

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if strings.TrimSpace(cfg.USDAAPIKey) == "" {
		cfg.USDAAPIKey = defaultUSDAKey
	}
	if strings.TrimSpace(cfg.OFFAppUUID) == "" {
		cfg.OFFAppUUID = uuid.New().String()
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"NUTRILOG_DB":       &cfg.DBPath,
		"NUTRILOG_ADDR":     &cfg.Addr,
		"NUTRILOG_LOG_MODE": &cfg.LogMode,
		"USDA_API_KEY":      &cfg.USDAAPIKey,
		"USDA_BASE_URL":     &cfg.USDABaseURL,
		"OFF_APP_UUID":      &cfg.OFFAppUUID,
		"OFF_BASE_URL":      &cfg.OFFBaseURL,
		"REDIS_ADDR":        &cfg.RedisAddr,
	}
	for name, dst := range str {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}

	if v := strings.TrimSpace(os.Getenv("NUTRILOG_SEARCH_CACHE_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NUTRILOG_SEARCH_CACHE_TTL: %w", err)
		}
		cfg.SearchCacheTTL = d
	}

	floats := map[string]*float64{
		"NUTRILOG_TARGET_CALORIES":    &cfg.Targets.Calories,
		"NUTRILOG_TARGET_CARBS_PCT":   &cfg.Targets.CarbsPct,
		"NUTRILOG_TARGET_PROTEIN_PCT": &cfg.Targets.ProteinPct,
		"NUTRILOG_TARGET_FAT_PCT":     &cfg.Targets.FatPct,
	}
	for name, dst := range floats {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = f
	}
	return nil
}
