package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is configuration to start main server.
type Profile struct {
	// Server
	Mode    string
	Addr    string
	Data    string
	Driver  string
	DSN     string
	Version string
	// Secret signs and verifies bearer tokens (HS256).
	Secret string
	Port   int

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json or text

	// Learning
	LearningInterval time.Duration // period between learning cycles (default: 4h)
	CycleTimeout     time.Duration // upper bound of one cycle, 0 disables (default: 5m)
	ResumeLearning   bool          // restart learning for enabled users on boot

	// POST /suggestions/generate limit per user.
	GenerateRatePerMinute float64
	GenerateBurst         int

	MetricsEnabled bool
}

const (
	DefaultLearningInterval = 4 * time.Hour
	DefaultCycleTimeout     = 5 * time.Minute

	// DevSecret signs tokens in dev and demo mode when no secret is set.
	DevSecret = "rhythm-dev-secret"
)

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

// FromEnv loads the settings that have no command line flag.
func (p *Profile) FromEnv() {
	p.LogLevel = strings.ToLower(getEnvOrDefault("RHYTHM_LOG_LEVEL", "info"))
	p.LogFormat = strings.ToLower(getEnvOrDefault("RHYTHM_LOG_FORMAT", "json"))
	if p.LogFormat != "json" && p.LogFormat != "text" {
		slog.Warn("Unknown log format, using default: json", "format", p.LogFormat)
		p.LogFormat = "json"
	}

	p.GenerateRatePerMinute = getEnvOrDefaultFloat("RHYTHM_GENERATE_RATE_PER_MINUTE", 6)
	p.GenerateBurst = getEnvOrDefaultInt("RHYTHM_GENERATE_BURST", 3)
	p.MetricsEnabled = getEnvOrDefault("RHYTHM_METRICS_ENABLED", "true") == "true"
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.LearningInterval <= 0 {
		p.LearningInterval = DefaultLearningInterval
	}
	if p.CycleTimeout < 0 {
		p.CycleTimeout = 0
	}
	if p.Secret == "" {
		if p.Mode == "prod" {
			return errors.New("prod mode requires a secret")
		}
		p.Secret = DevSecret
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "rhythm")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/rhythm"
		}
	}

	if p.Driver == "memory" {
		return nil
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = filepath.Join(dataDir, fmt.Sprintf("rhythm_%s.db", p.Mode))
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a dsn")
	}

	return nil
}
