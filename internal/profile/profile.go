package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// DSN points to where cookforge stores its own data
	DSN string
	// Version is the current version of server
	Version string
	// InstanceURL is the url of your cookforge instance
	InstanceURL string
	// JWTSecret signs and verifies API-key bearer tokens
	JWTSecret string

	// AI configuration
	AIAPIKey    string // COOKFORGE_AI_API_KEY
	AIBaseURL   string // COOKFORGE_AI_BASE_URL (default: https://api.openai.com/v1)
	AIChatModel string // COOKFORGE_AI_CHAT_MODEL (default: gpt-4o-mini)

	// Session configuration
	SessionTTL    time.Duration // COOKFORGE_SESSION_TTL (default: 10m)
	SweepInterval time.Duration // COOKFORGE_SWEEP_INTERVAL (default: 30s)

	// FanoutParallelism bounds concurrent fan-out work items (0 = host parallelism)
	FanoutParallelism int
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if an AI API key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIAPIKey != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return d
}

func getIntEnv(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return n
}

// FromEnv loads configuration from COOKFORGE_* environment variables.
// Values already set on the profile are only overridden when the
// corresponding variable is present.
func (p *Profile) FromEnv() {
	p.AIAPIKey = getEnvOrDefault("COOKFORGE_AI_API_KEY", p.AIAPIKey)
	p.AIBaseURL = getEnvOrDefault("COOKFORGE_AI_BASE_URL", p.AIBaseURL)
	p.AIChatModel = getEnvOrDefault("COOKFORGE_AI_CHAT_MODEL", p.AIChatModel)
	p.JWTSecret = getEnvOrDefault("COOKFORGE_JWT_SECRET", p.JWTSecret)
	p.SessionTTL = getDurationEnv("COOKFORGE_SESSION_TTL", p.SessionTTL)
	p.SweepInterval = getDurationEnv("COOKFORGE_SWEEP_INTERVAL", p.SweepInterval)
	p.FanoutParallelism = getIntEnv("COOKFORGE_FANOUT_PARALLELISM", p.FanoutParallelism)
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

// Validate normalizes the profile and fills in defaults.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.AIChatModel == "" {
		p.AIChatModel = "gpt-4o-mini"
	}
	if p.AIBaseURL == "" {
		p.AIBaseURL = "https://api.openai.com/v1"
	}
	if p.SessionTTL <= 0 {
		p.SessionTTL = 10 * time.Minute
	}
	if p.SweepInterval <= 0 {
		p.SweepInterval = 30 * time.Second
	}

	if p.Mode == "prod" && p.Data == "" {
		p.Data = "/var/opt/cookforge"
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		return errors.Wrap(err, "failed to check data directory")
	}
	p.Data = dataDir

	if p.Driver == "sqlite" && p.DSN == "" {
		dbFile := fmt.Sprintf("cookforge_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("dsn is required for postgres driver")
	}

	return nil
}
