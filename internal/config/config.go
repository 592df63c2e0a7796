// Package config handles loading and validating gateway configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level configuration for the codegate gateway.
type Config struct {
	Server    ServerConfig              `koanf:"server"`
	Gateway   GatewayConfig             `koanf:"gateway"`
	Providers map[string]ProviderConfig `koanf:"providers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// GatewayConfig holds the settings specific to codegate's pipeline,
// session store, and persona matching — the ambient knobs spec.md
// leaves to configuration rather than hardcoding.
type GatewayConfig struct {
	// DataDir is where the bbolt-backed control-plane snapshot
	// (internal/store) is persisted between restarts.
	DataDir string `koanf:"data_dir"`

	// SessionTTL bounds how long a session's secret/PII placeholder
	// mappings survive without being touched, mirroring the original's
	// encryption-controller session expiry.
	SessionTTL time.Duration `koanf:"session_ttl"`

	// RedisAddr, if set, backs the Session Store with
	// internal/session/redisstore instead of the in-memory default —
	// needed once codegate runs as more than one replica.
	RedisAddr string `koanf:"redis_addr"`

	// PersonaThreshold and PersonaWeightFactor parameterize
	// matcher.PersonaDesc's position-weighted cosine-distance match.
	PersonaThreshold    float32 `koanf:"persona_threshold"`
	PersonaWeightFactor float32 `koanf:"persona_weight_factor"`
	// PersonaDiffThreshold is the minimum embedding distance enforced
	// between any two personas' descriptions on create/update.
	PersonaDiffThreshold float32 `koanf:"persona_diff_desc_threshold"`

	// SignaturesPath points at the YAML secret-signature file the
	// secrets redaction step loads; left empty, the built-in set is used.
	SignaturesPath string `koanf:"signatures_path"`

	// ONNXModelPath and ONNXTokenizerPath locate the embedding model and
	// tokenizer internal/embed/onnxembedder loads at startup. Left
	// empty, the gateway falls back to the deterministic FakeEmbedder —
	// fine for development, not for persona matching in production.
	ONNXModelPath     string `koanf:"onnx_model_path"`
	ONNXTokenizerPath string `koanf:"onnx_tokenizer_path"`
}

// ProviderConfig holds the settings for a single LLM provider,
// seeded into internal/store as a ProviderEndpoint at startup.
type ProviderConfig struct {
	Name    string   `koanf:"name"`
	Type    string   `koanf:"type"`
	APIKey  string   `koanf:"api_key"`
	BaseURL string   `koanf:"base_url"`
	Models  []string `koanf:"models"`
}

// Load reads configuration from a YAML file, layers environment variable
// overrides on top, and returns a fully populated Config.
func Load(path string) (*Config, error) {
	// Load .env file into the process environment (ignored if not present).
	// This is the equivalent of require('dotenv').config() in Node.
	_ = godotenv.Load()

	// Create a new koanf instance. The "." delimiter tells koanf how to
	// separate nested keys internally (e.g., "server.port").
	k := koanf.New(".")

	// Load the YAML config file. file.Provider reads the file,
	// yaml.Parser() decodes the YAML format into koanf's internal map.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// Layer environment variables on top. Any env var starting with
	// "CODEGATE_" can override a config value. The callback transforms
	// the env var name into a koanf key path:
	//   CODEGATE_SERVER_PORT -> server.port
	//   CODEGATE_GATEWAY_REDIS_ADDR -> gateway.redis_addr
	if err := k.Load(env.Provider("CODEGATE_", ".", func(s string) string {
		return strings.Replace(
			strings.ToLower(strings.TrimPrefix(s, "CODEGATE_")),
			"_", ".", 1,
		)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	// Unmarshal the loaded key-value pairs into our Config struct.
	// The "" means start from the root. &cfg passes a pointer so koanf
	// can write into the struct (like passing by reference in Node).
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR_NAME} placeholders in provider API keys.
	// koanf doesn't do this automatically, so we handle it ourselves
	// using os.Getenv to look up the actual environment variable value.
	for name, p := range cfg.Providers {
		if strings.HasPrefix(p.APIKey, "${") && strings.HasSuffix(p.APIKey, "}") {
			envVar := p.APIKey[2 : len(p.APIKey)-1] // strip ${ and }
			p.APIKey = os.Getenv(envVar)
			cfg.Providers[name] = p // write back into the map
		}
	}

	return &cfg, nil
}
