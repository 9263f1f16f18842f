package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config fixture: %v", err)
	}
	return configPath
}

func TestLoadConfigSuccess(t *testing.T) {
	original := AppConfig
	t.Cleanup(func() {
		AppConfig = original
	})

	configPath := writeConfig(t, `{
		"database": {
			"host": "localhost",
			"user": "test-user",
			"password": "test-pass",
			"dbname": "testdb",
			"port": 5433,
			"sslmode": "disable"
		},
		"telegram": {
			"token": "test-token"
		},
		"worker": {
			"batch_size": 20
		}
	}`)

	if err := LoadConfig(configPath); err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if AppConfig.Database.Host != "localhost" {
		t.Errorf("expected host to be localhost, got %q", AppConfig.Database.Host)
	}
	if AppConfig.Database.Port != 5433 {
		t.Errorf("expected port to be 5433, got %d", AppConfig.Database.Port)
	}
	if AppConfig.Telegram.Token != "test-token" {
		t.Errorf("expected token to be test-token, got %q", AppConfig.Telegram.Token)
	}
	if AppConfig.Worker.BatchSize != 20 {
		t.Errorf("expected batch size 20, got %d", AppConfig.Worker.BatchSize)
	}
	if AppConfig.Worker.Concurrency != 10 {
		t.Errorf("expected default concurrency 10, got %d", AppConfig.Worker.Concurrency)
	}
	if AppConfig.Pairing.MaxPairsPerUser != 3 {
		t.Errorf("expected default max pairs 3, got %d", AppConfig.Pairing.MaxPairsPerUser)
	}
	if got := AppConfig.Worker.DrainTimeout(); got != 30*time.Second {
		t.Errorf("expected drain timeout 30s, got %v", got)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	original := AppConfig
	t.Cleanup(func() {
		AppConfig = original
	})
	t.Setenv("ORATOR_WORKER_BATCH_SIZE", "75")
	t.Setenv("ORATOR_TELEGRAM_TOKEN", "env-token")

	configPath := writeConfig(t, `{"telegram": {"token": "file-token"}}`)
	if err := LoadConfig(configPath); err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if AppConfig.Worker.BatchSize != 75 {
		t.Errorf("expected env batch size 75, got %d", AppConfig.Worker.BatchSize)
	}
	if AppConfig.Telegram.Token != "env-token" {
		t.Errorf("expected env token, got %q", AppConfig.Telegram.Token)
	}
}

func TestLoadConfigRejectsInvalidWorker(t *testing.T) {
	configPath := writeConfig(t, `{"worker": {"concurrency": 0, "max_attempts": -1}}`)
	if _, err := Load(configPath); err == nil {
		t.Fatal("expected validation error for zero concurrency")
	}
}

func TestLoadConfigRejectsZeroDrainTimeout(t *testing.T) {
	configPath := writeConfig(t, `{"worker": {"drain_timeout_seconds": 0}}`)
	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "worker.drain_timeout_seconds") {
		t.Fatalf("expected drain timeout validation error, got %v", err)
	}
}

func TestValidateFlowStateBackend(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		addr    string
		wantErr bool
	}{
		{name: "auto", backend: FlowStateAuto},
		{name: "database", backend: FlowStateDatabase},
		{name: "memory", backend: FlowStateMemory},
		{name: "redis with address", backend: FlowStateRedis, addr: "localhost:6379"},
		{name: "redis without address", backend: FlowStateRedis, wantErr: true},
		{name: "unknown", backend: "etcd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.FlowState.Backend = tt.backend
			cfg.Redis.Addr = tt.addr
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	original := AppConfig
	t.Cleanup(func() {
		AppConfig = original
	})

	if err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected an error when loading a missing config file")
	}
}
