package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Listen != DefaultListen {
		t.Errorf("Expected listen %s, got %s", DefaultListen, cfg.Listen)
	}
	if cfg.Socket.Path != DefaultSocketPath {
		t.Errorf("Expected socket path %s, got %s", DefaultSocketPath, cfg.Socket.Path)
	}
	if !cfg.Socket.AllowEIO3 {
		t.Error("Expected EIO3 to be allowed by default")
	}
	if cfg.Relay.SendQueueSize != DefaultSendQueueSize {
		t.Errorf("Expected queue size %d, got %d", DefaultSendQueueSize, cfg.Relay.SendQueueSize)
	}
	if cfg.Relay.MaxRoomMembers != 0 {
		t.Errorf("Expected unlimited room size, got %d", cfg.Relay.MaxRoomMembers)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("Expected memory storage, got %s", cfg.Storage.Type)
	}
}

func TestLoad_YAMLWithEnvExpansion(t *testing.T) {
	t.Setenv("RELAY_TEST_DSN", "/tmp/relay.db")
	path := writeConfig(t, `
listen: ":7000"
log_level: debug
log_format: json
socket:
  path: /rt
  allow_eio3: false
  allowed_origins: ["https://example.com"]
relay:
  send_queue_size: 16
  max_room_members: 8
storage:
  type: sqlite
  data_source_name: ${RELAY_TEST_DSN}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Listen != ":7000" {
		t.Errorf("Expected listen :7000, got %s", cfg.Listen)
	}
	if cfg.Socket.Path != "/rt" {
		t.Errorf("Expected socket path /rt, got %s", cfg.Socket.Path)
	}
	if cfg.Socket.AllowEIO3 {
		t.Error("Expected EIO3 to be disabled")
	}
	if len(cfg.Socket.AllowedOrigins) != 1 || cfg.Socket.AllowedOrigins[0] != "https://example.com" {
		t.Errorf("Unexpected allowed origins: %v", cfg.Socket.AllowedOrigins)
	}
	if cfg.Relay.SendQueueSize != 16 || cfg.Relay.MaxRoomMembers != 8 {
		t.Errorf("Unexpected relay config: %+v", cfg.Relay)
	}
	if cfg.Storage.DataSourceName != "/tmp/relay.db" {
		t.Errorf("Expected expanded DSN, got %s", cfg.Storage.DataSourceName)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "listen: \":7000\"\n")
	t.Setenv("LISTEN_ADDR", ":7100")
	t.Setenv("SEND_QUEUE_SIZE", "32")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Listen != ":7100" {
		t.Errorf("Expected env listen :7100, got %s", cfg.Listen)
	}
	if cfg.Relay.SendQueueSize != 32 {
		t.Errorf("Expected queue size 32, got %d", cfg.Relay.SendQueueSize)
	}
	if len(cfg.Socket.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 origins, got %v", cfg.Socket.AllowedOrigins)
	}
}

func TestLoad_Errors(t *testing.T) {
	testCases := []struct {
		name string
		body string
		env  map[string]string
	}{
		{"bad yaml", "listen: [", nil},
		{"bad level", "log_level: loud\n", nil},
		{"bad format", "log_format: xml\n", nil},
		{"bad path", "socket:\n  path: rt\n", nil},
		{"negative room limit", "relay:\n  max_room_members: -1\n", nil},
		{"sqlite without dsn", "storage:\n  type: sqlite\n", nil},
		{"unknown storage", "storage:\n  type: s3\n", nil},
		{"bad env int", "", map[string]string{"SEND_QUEUE_SIZE": "many"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			path := writeConfig(t, tc.body)
			if _, err := Load(path); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestDefault_Validates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}
