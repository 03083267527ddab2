package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Name != "usd-mcp-go" {
		t.Errorf("Expected name 'usd-mcp-go', got '%s'", cfg.Name)
	}

	if cfg.Version != "0.1.0" {
		t.Errorf("Expected version '0.1.0', got '%s'", cfg.Version)
	}

	if cfg.Server.Host != "localhost" {
		t.Errorf("Expected host 'localhost', got '%s'", cfg.Server.Host)
	}

	if cfg.Server.Port != 9080 {
		t.Errorf("Expected port 9080, got %d", cfg.Server.Port)
	}

	if len(cfg.Transports) != 2 {
		t.Errorf("Expected 2 transports, got %d", len(cfg.Transports))
	}

	if cfg.Transports[0].Type != "stdio" || !cfg.Transports[0].Enabled {
		t.Errorf("Expected stdio transport enabled by default, got %+v", cfg.Transports[0])
	}

	if cfg.Transports[1].Type != "streamable_http" {
		t.Errorf("Expected second transport type 'streamable_http', got '%s'", cfg.Transports[1].Type)
	}
	if cfg.Transports[1].Enabled {
		t.Error("Expected streamable_http transport to be disabled by default")
	}

	if !cfg.StdioEnabled() || cfg.HTTPEnabled() {
		t.Error("Default config should enable stdio only")
	}

	if cfg.StageCache.WatchFiles {
		t.Error("Stage file watching should be off by default")
	}
	if len(cfg.StageCache.AllowedRoots) != 0 {
		t.Errorf("Expected no allowed roots by default, got %v", cfg.StageCache.AllowedRoots)
	}
}

func TestLoadConfig(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test_config.json")

	testConfig := `{
		"name": "test-server",
		"version": "1.0.0",
		"description": "Test server",
		"server": {
			"host": "127.0.0.1",
			"port": 8080,
			"debug": true
		},
		"transports": [
			{
				"type": "stdio",
				"enabled": false
			},
			{
				"type": "streamable_http",
				"enabled": true,
				"url": "http://localhost:8080/mcp",
				"headers": {
					"Accept": "application/json, text/event-stream",
					"Content-Type": "application/json"
				}
			}
		],
		"logging": {
			"level": "debug",
			"format": "text",
			"path": "/tmp/test.log"
		},
		"stage_cache": {
			"allowed_roots": ["/srv/assets"],
			"watch_files": true
		}
	}`

	err := os.WriteFile(configPath, []byte(testConfig), 0644)
	if err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Name != "test-server" {
		t.Errorf("Expected name 'test-server', got '%s'", cfg.Name)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host '127.0.0.1', got '%s'", cfg.Server.Host)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}

	if !cfg.Server.Debug {
		t.Errorf("Expected debug to be true")
	}

	if cfg.StdioEnabled() {
		t.Error("Expected stdio transport to be disabled")
	}
	if !cfg.HTTPEnabled() {
		t.Error("Expected streamable_http transport to be enabled")
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Unexpected logging config %+v", cfg.Logging)
	}

	if len(cfg.StageCache.AllowedRoots) != 1 || cfg.StageCache.AllowedRoots[0] != "/srv/assets" {
		t.Errorf("Unexpected allowed roots %v", cfg.StageCache.AllowedRoots)
	}
	if !cfg.StageCache.WatchFiles {
		t.Error("Expected watch_files to be enabled")
	}
}

func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.json")
	if err == nil {
		t.Error("Expected error when loading non-existent config file")
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.json")
	if err := os.WriteFile(configPath, []byte(`{}`), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	t.Setenv("MCP_PORT", "9999")
	t.Setenv("MCP_LOG_LEVEL", "error")
	t.Setenv("USD_MCP_ALLOWED_ROOTS", "/data/usd, /mnt/assets")
	t.Setenv("USD_MCP_WATCH_FILES", "true")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port override 9999, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Expected log level override 'error', got '%s'", cfg.Logging.Level)
	}
	if len(cfg.StageCache.AllowedRoots) != 2 || cfg.StageCache.AllowedRoots[0] != "/data/usd" {
		t.Errorf("Unexpected allowed roots %v", cfg.StageCache.AllowedRoots)
	}
	if !cfg.StageCache.WatchFiles {
		t.Error("Expected watch_files override to be true")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }},
		{"empty host", func(c *Config) { c.Server.Host = "  " }},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"empty log path", func(c *Config) { c.Logging.Path = "" }},
		{"no transports", func(c *Config) { c.Transports = nil }},
		{"unknown transport", func(c *Config) { c.Transports[0].Type = "websocket" }},
		{"all transports disabled", func(c *Config) {
			for i := range c.Transports {
				c.Transports[i].Enabled = false
			}
		}},
		{"relative allowed root", func(c *Config) { c.StageCache.AllowedRoots = []string{"assets"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewConfig()
			tc.mutate(cfg)
			cfg.Normalize()
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}

	cfg := NewConfig()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestResolveConfigPath(t *testing.T) {
	path, err := ResolveConfigPath()
	if err != nil {
		t.Fatalf("Expected no error resolving config path, got %v", err)
	}
	if path == "" {
		t.Error("Expected non-empty config path")
	}

	expectedFilename := "mcp_config.json"
	if filepath.Base(path) != expectedFilename {
		t.Errorf("Expected config filename '%s', got '%s'", expectedFilename, filepath.Base(path))
	}

	t.Setenv("MCP_CONFIG_PATH", "/etc/usd-mcp/config.json")
	path, err = ResolveConfigPath()
	if err != nil {
		t.Fatalf("Expected no error resolving config path, got %v", err)
	}
	if path != "/etc/usd-mcp/config.json" {
		t.Errorf("Expected env override path, got '%s'", path)
	}
}

func TestEnsureDefaultConfig(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "nested", "mcp_config.json")

	if err := EnsureDefaultConfig(configPath); err != nil {
		t.Fatalf("Failed to create default config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}
	if cfg.Name != "usd-mcp-go" {
		t.Errorf("Unexpected generated config name '%s'", cfg.Name)
	}

	// A second call leaves the existing file alone.
	if err := EnsureDefaultConfig(configPath); err != nil {
		t.Fatalf("EnsureDefaultConfig on existing file: %v", err)
	}
}
