package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all katrbc configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	BaseURL       string `json:"base_url"`
	SpecPath      string `json:"spec_path"`
	ScriptsDir    string `json:"scripts_dir"`
	ExchangesPath string `json:"exchanges_path"`
	ReportPath    string `json:"report_path"`
	DBPath        string `json:"db_path"`
	LogLevel      string `json:"log_level"`
	PoolSize      int    `json:"pool_size"`
	TimeoutSec    int    `json:"timeout_sec"`
	MaxSequences  int    `json:"max_sequences"`
	MaxSeqLength  int    `json:"max_sequence_length"`
}

func defaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:8080",
		ReportPath:   "results.json",
		DBPath:       "file:" + filepath.Join(katrbcDir(), "katrbc.db"),
		LogLevel:     "info",
		PoolSize:     1,
		TimeoutSec:   60,
		MaxSequences: 20,
		MaxSeqLength: 10,
	}
}

func katrbcDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".katrbc"
	}
	return filepath.Join(home, ".katrbc")
}

func settingsPath() string {
	return filepath.Join(katrbcDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("KATRBC_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("KATRBC_SPEC_PATH"); v != "" {
		cfg.SpecPath = v
	}
	if v := os.Getenv("KATRBC_SCRIPTS_DIR"); v != "" {
		cfg.ScriptsDir = v
	}
	if v := os.Getenv("KATRBC_EXCHANGES_PATH"); v != "" {
		cfg.ExchangesPath = v
	}
	if v := os.Getenv("KATRBC_REPORT_PATH"); v != "" {
		cfg.ReportPath = v
	}
	if v := os.Getenv("KATRBC_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("KATRBC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("KATRBC_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("KATRBC_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutSec = n
		}
	}
	if v := os.Getenv("KATRBC_MAX_SEQUENCES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSequences = n
		}
	}
	if v := os.Getenv("KATRBC_MAX_SEQ_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxSeqLength = n
		}
	}

	return cfg
}
