// Package config provides configuration management for the workbench.
//
// Configuration is loaded once at startup: a .env file (if present) via
// godotenv, then environment variables with defaults, matching the
// teacher's Load/getEnv* shape.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir    string // base directory for clientdata/backup sqlite files and the real-time stream
	BackendURL string // market-data provider base URL (--backend / BACKEND_URL)

	MarketDataAPIToken string // provider api_token
	DisableRealtime    bool   // --disable-realtime / DISABLE_REALTIME
	GoogleAPIsKey      string // threaded through to the out-of-scope search collaborator

	LogLevel string
	Port     int
	DevMode  bool

	S3BackupBucket string
	AWSRegion      string

	RealtimeBatchSize    int // override for tests (spec default: 32)
	RealtimePollInterval int // seconds, override for tests (spec default: 60)
}

// Load reads configuration from .env plus environment variables.
//
// dataDirOverride, if non-empty, takes priority over DATA_DIR and the
// built-in default, mirroring the teacher's CLI-flag-beats-env-beats-default
// resolution order.
func Load(dataDirOverride ...string) (*Config, error) {
	_ = godotenv.Load()

	var dataDir string
	if len(dataDirOverride) > 0 && dataDirOverride[0] != "" {
		dataDir = dataDirOverride[0]
	} else {
		dataDir = getEnv("DATA_DIR", "")
		if dataDir == "" {
			dataDir = "./data"
		}
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:              absDataDir,
		BackendURL:           getEnv("BACKEND_URL", ""),
		MarketDataAPIToken:   getEnv("MARKETDATA_API_TOKEN", ""),
		DisableRealtime:      getEnvAsBool("DISABLE_REALTIME", false),
		GoogleAPIsKey:        getEnv("GOOGLE_APIS_KEY", ""),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		Port:                 getEnvAsInt("GO_PORT", 8001),
		DevMode:              getEnvAsBool("DEV_MODE", false),
		S3BackupBucket:       getEnv("S3_BACKUP_BUCKET", ""),
		AWSRegion:            getEnv("AWS_REGION", "us-east-1"),
		RealtimeBatchSize:    getEnvAsInt("REALTIME_BATCH_SIZE", 32),
		RealtimePollInterval: getEnvAsInt("REALTIME_POLL_INTERVAL", 60),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
