// Package profile resolves the runtime configuration from flags and
// COOPCHAT_* environment variables.
package profile

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the main server.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for the server
	Addr string
	// Port is the binding port for the server
	Port int
	// Data is the data directory holding the catalog, the policy
	// corpus and the optional model artifact
	Data string
	// Version is the current version of the server
	Version string

	// LLM configuration
	LLMAPIKey  string // COOPCHAT_LLM_API_KEY
	LLMBaseURL string // COOPCHAT_LLM_BASE_URL，OpenAI 兼容端点
	LLMModel   string // COOPCHAT_LLM_MODEL (default: deepseek-chat)

	// RedisAddr enables the shared L2 cache when non-empty
	RedisAddr     string // COOPCHAT_REDIS_ADDR
	RedisPassword string // COOPCHAT_REDIS_PASSWORD
}

// IsDev reports whether the server runs in development mode.
func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsLLMEnabled reports whether the generative fallback is configured.
func (p *Profile) IsLLMEnabled() bool {
	return p.LLMAPIKey != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	p.LLMAPIKey = os.Getenv("COOPCHAT_LLM_API_KEY")
	p.LLMBaseURL = getEnvOrDefault("COOPCHAT_LLM_BASE_URL", "https://api.deepseek.com")
	p.LLMModel = getEnvOrDefault("COOPCHAT_LLM_MODEL", "deepseek-chat")
	p.RedisAddr = os.Getenv("COOPCHAT_REDIS_ADDR")
	p.RedisPassword = os.Getenv("COOPCHAT_REDIS_PASSWORD")
}

// Validate normalizes modes and checks the data directory.
func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.Port <= 0 || p.Port > 65535 {
		return errors.Errorf("invalid port %d", p.Port)
	}

	if p.Data == "" {
		p.Data = "data"
	}
	if !filepath.IsAbs(p.Data) {
		absDir, err := filepath.Abs(p.Data)
		if err != nil {
			return errors.Wrap(err, "resolve data dir")
		}
		p.Data = absDir
	}
	p.Data = strings.TrimRight(p.Data, "\\/")
	if _, err := os.Stat(p.Data); err != nil {
		return errors.Wrapf(err, "unable to access data folder %s", p.Data)
	}
	return nil
}
