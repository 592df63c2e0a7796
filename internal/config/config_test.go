package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary YAML config file with known values.
	// t.TempDir() gives us a directory that's auto-deleted after the test.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 9090
  read_timeout: 10s
  write_timeout: 60s

gateway:
  data_dir: /var/lib/codegate
  session_ttl: 2h
  redis_addr: localhost:6379
  persona_threshold: 0.75
  persona_weight_factor: 1.5
  persona_diff_desc_threshold: 0.2
  signatures_path: /etc/codegate/signatures.yaml
  onnx_model_path: /etc/codegate/model.onnx
  onnx_tokenizer_path: /etc/codegate/tokenizer.json

providers:
  anthropic:
    api_key: ${TEST_API_KEY}
    base_url: https://example.com/v1
    models:
      - model-a
      - model-b
`
	// os.WriteFile writes a byte slice to a file. The 0644 is the Unix file
	// permission (owner read/write, group and others read-only).
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err) // require stops the test immediately if this fails

	// Set the environment variable that ${TEST_API_KEY} should resolve to.
	// t.Setenv auto-restores the original value when the test finishes.
	t.Setenv("TEST_API_KEY", "my-secret-key")

	// Load the config.
	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Assert server config values.
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)

	// Assert provider config values.
	anthropic, ok := cfg.Providers["anthropic"]
	assert.True(t, ok, "anthropic provider should exist")
	assert.Equal(t, "my-secret-key", anthropic.APIKey)
	assert.Equal(t, "https://example.com/v1", anthropic.BaseURL)
	assert.Equal(t, []string{"model-a", "model-b"}, anthropic.Models)

	// Assert gateway config values round-trip through YAML.
	assert.Equal(t, "/var/lib/codegate", cfg.Gateway.DataDir)
	assert.Equal(t, 2*time.Hour, cfg.Gateway.SessionTTL)
	assert.Equal(t, "localhost:6379", cfg.Gateway.RedisAddr)
	assert.Equal(t, float32(0.75), cfg.Gateway.PersonaThreshold)
	assert.Equal(t, float32(1.5), cfg.Gateway.PersonaWeightFactor)
	assert.Equal(t, float32(0.2), cfg.Gateway.PersonaDiffThreshold)
	assert.Equal(t, "/etc/codegate/signatures.yaml", cfg.Gateway.SignaturesPath)
	assert.Equal(t, "/etc/codegate/model.onnx", cfg.Gateway.ONNXModelPath)
	assert.Equal(t, "/etc/codegate/tokenizer.json", cfg.Gateway.ONNXTokenizerPath)
}

func TestLoadEnvOverride(t *testing.T) {
	// Verify that CODEGATE_ env vars override YAML values.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  port: 8080
  read_timeout: 30s
  write_timeout: 120s
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	// This should override server.port from 8080 to 3000.
	t.Setenv("CODEGATE_SERVER_PORT", "3000")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadEnvOverride_GatewayField(t *testing.T) {
	// Verify that a CODEGATE_GATEWAY_* env var overrides a gateway.* value
	// the same way CODEGATE_SERVER_* overrides server.*.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
gateway:
  data_dir: /var/lib/codegate
  redis_addr: localhost:6379
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	t.Setenv("CODEGATE_GATEWAY_REDIS_ADDR", "redis.internal:6380")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Gateway.RedisAddr)
	assert.Equal(t, "/var/lib/codegate", cfg.Gateway.DataDir, "fields not overridden keep their YAML value")
}
