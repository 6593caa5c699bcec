// Package config holds global settings for the visitor gateway. Everything
// can be set via environment variables or programmatically; tank definitions
// can additionally come from a YAML file.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/digiquarium/bouncer/pkg/pool"
	"github.com/digiquarium/bouncer/pkg/ratelimit"
	"github.com/digiquarium/bouncer/pkg/session"
)

// Config holds global settings for the bouncer gateway.
type Config struct {
	// === Core Settings ===
	ListenAddr   string // HTTP listen address (default: ":8089")
	AuditDir     string // Directory for session event logs and transcripts
	StateFile    string // Ban persistence file (ignored when Redis is configured)
	IdentitySalt string // Salt for visitor identity hashing
	AccessSecret string // Shared secret visitors present at admission
	AdminToken   string // Token guarding the admin endpoints; empty disables them

	// === Specimen Backend ===
	OllamaURL       string        // Base URL of the Ollama instance
	DefaultModel    string        // Model used by tanks without an override
	GenerateTimeout time.Duration // Per-generation timeout
	MaxConcurrent   int           // In-flight generation cap across all tanks

	// === Tanks ===
	TanksFile string      // Optional YAML file defining the tank pool
	Tanks     []pool.Tank // Resolved tank set

	// === Limits ===
	RateLimits       ratelimit.Limits
	SessionLimits    session.Limits
	MaxInboundChars  int // visitor message length cap
	MaxOutboundChars int // specimen response length cap after sanitization

	// === Optional Backends ===
	RedisURL    string // Shared rate limits and ban set when set
	PostgresURL string // Durable audit archive when set

	// === Feature Flags ===
	EnableSemantics bool   // Embedding-based distress layer (needs Ollama)
	EmbeddingModel  string // Model for the semantic layer
}

// NewDefaultConfig creates a Config with production defaults, each
// overridable via environment variables.
func NewDefaultConfig() *Config {
	cfg := &Config{
		ListenAddr:   GetEnv("BOUNCER_LISTEN_ADDR", ":8089"),
		AuditDir:     GetEnv("BOUNCER_AUDIT_DIR", "audit"),
		StateFile:    GetEnv("BOUNCER_STATE_FILE", "state.json"),
		IdentitySalt: GetEnv("BOUNCER_IDENTITY_SALT", "digiquarium"),
		AccessSecret: getAccessSecret(),
		AdminToken:   GetEnv("BOUNCER_ADMIN_TOKEN", ""),

		OllamaURL:       GetEnv("BOUNCER_OLLAMA_URL", "http://localhost:11434"),
		DefaultModel:    GetEnv("BOUNCER_MODEL", "llama3.2"),
		GenerateTimeout: GetEnvDuration("BOUNCER_GENERATE_TIMEOUT", 60*time.Second),
		MaxConcurrent:   clampInt(GetEnvInt("BOUNCER_MAX_CONCURRENT", 8), 1, 64),

		TanksFile: GetEnv("BOUNCER_TANKS_FILE", ""),

		RateLimits: ratelimit.Limits{
			PerMinute: int64(GetEnvInt("BOUNCER_RATE_PER_MINUTE", 10)),
			PerHour:   int64(GetEnvInt("BOUNCER_RATE_PER_HOUR", 100)),
			PerDay:    int64(GetEnvInt("BOUNCER_RATE_PER_DAY", 500)),
			Cooldown:  GetEnvDuration("BOUNCER_COOLDOWN", 10*time.Minute),
		},
		SessionLimits: session.Limits{
			MaxDuration:      GetEnvDuration("BOUNCER_SESSION_MAX", 30*time.Minute),
			IdleTimeout:      GetEnvDuration("BOUNCER_SESSION_IDLE", 5*time.Minute),
			MaxMessages:      GetEnvInt("BOUNCER_SESSION_MESSAGES", 50),
			MaxBlocks:        GetEnvInt("BOUNCER_SESSION_BLOCKS", 3),
			MaxDistressFlags: GetEnvInt("BOUNCER_SESSION_DISTRESS", 2),
		},
		MaxInboundChars:  GetEnvInt("BOUNCER_MAX_INBOUND", 1000),
		MaxOutboundChars: GetEnvInt("BOUNCER_MAX_OUTBOUND", 2000),

		RedisURL:    GetEnv("BOUNCER_REDIS_URL", ""),
		PostgresURL: GetEnv("BOUNCER_POSTGRES_URL", ""),

		EnableSemantics: GetEnvBool("BOUNCER_ENABLE_SEMANTICS", false),
		EmbeddingModel:  GetEnv("BOUNCER_EMBEDDING_MODEL", "embeddinggemma"),
	}

	return cfg
}

// NewHighSecurityConfig tightens the session bounds for high-traffic events:
// a single block ends the session and every bound is halved.
func NewHighSecurityConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.SessionLimits.MaxDuration = 15 * time.Minute
	cfg.SessionLimits.IdleTimeout = 2 * time.Minute
	cfg.SessionLimits.MaxMessages = 25
	cfg.SessionLimits.MaxBlocks = 1
	cfg.RateLimits.PerMinute = 5
	cfg.RateLimits.Cooldown = 30 * time.Minute
	cfg.MaxInboundChars = 500
	return cfg
}

// getAccessSecret returns the shared admission secret from env, or generates
// an ephemeral one for development. In production BOUNCER_ACCESS_SECRET must
// be set: an ephemeral secret locks every visitor out after a restart.
func getAccessSecret() string {
	if secret := os.Getenv("BOUNCER_ACCESS_SECRET"); secret != "" {
		return secret
	}

	env := strings.ToLower(os.Getenv("BOUNCER_ENV"))
	isProduction := env == "production" || env == "prod"

	log.Printf("[WARN] BOUNCER_ACCESS_SECRET not set - using ephemeral secret. Visitors cannot be admitted after a restart. Set BOUNCER_ACCESS_SECRET in production!")

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		if isProduction {
			log.Fatalf("[FATAL] crypto/rand failure in production - cannot generate access secret: %v", err)
		}
		log.Printf("[CRITICAL] crypto/rand failure - access secret severely compromised: %v", err)
		fallback := make([]byte, 32)
		for i := range fallback {
			fallback[i] = byte((os.Getpid() + time.Now().Nanosecond() + i*31) & 0xFF)
		}
		return hex.EncodeToString(fallback)
	}
	return hex.EncodeToString(b)
}

// tanksFile is the YAML shape of a tank definitions file.
type tanksFile struct {
	Tanks []pool.Tank `yaml:"tanks"`
}

// ResolveTanks fills cfg.Tanks from the tanks file, or the stock three-tank
// set when no file is configured.
func (c *Config) ResolveTanks() error {
	if c.TanksFile == "" {
		c.Tanks = pool.DefaultTanks()
		return nil
	}

	data, err := os.ReadFile(c.TanksFile)
	if err != nil {
		return fmt.Errorf("read tanks file: %w", err)
	}

	var tf tanksFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("parse tanks file %s: %w", c.TanksFile, err)
	}
	if len(tf.Tanks) == 0 {
		return fmt.Errorf("tanks file %s defines no tanks", c.TanksFile)
	}

	c.Tanks = tf.Tanks
	return nil
}

// Validate checks the configuration. In production mode missing critical
// settings are errors; in development they are warnings.
func (c *Config) Validate() error {
	env := strings.ToLower(os.Getenv("BOUNCER_ENV"))
	isProduction := env == "production" || env == "prod"

	var missing []string

	if os.Getenv("BOUNCER_ACCESS_SECRET") == "" {
		if isProduction {
			missing = append(missing, "BOUNCER_ACCESS_SECRET (shared admission secret)")
		}
	}
	if isProduction && c.IdentitySalt == "digiquarium" {
		missing = append(missing, "BOUNCER_IDENTITY_SALT (must not use the default salt in production)")
	}
	if c.OllamaURL == "" {
		missing = append(missing, "BOUNCER_OLLAMA_URL (specimen backend)")
	}
	if len(c.Tanks) == 0 {
		missing = append(missing, "tanks (call ResolveTanks or set Tanks)")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration:\n  - %s", strings.Join(missing, "\n  - "))
	}
	return nil
}

// MustValidate exits on invalid configuration.
func (c *Config) MustValidate() {
	if err := c.Validate(); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
}

// clampInt ensures a value is within bounds
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// Helper functions for environment variable parsing

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvDuration returns the duration value of an environment variable or a
// default value. Accepts Go duration syntax ("90s", "10m").
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
