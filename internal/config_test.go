package internal

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoadConfigDefaults tests that the default values are applied correctly when loading a config.
func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Providers.GitHub.Path != "/webhooks/github" {
		t.Fatalf("expected default github path, got %q", cfg.Providers.GitHub.Path)
	}
	if cfg.Storage.Driver != "sqlite" || !cfg.Storage.AutoMigrate || cfg.Storage.MaxOpenConns != 1 {
		t.Fatalf("expected migrated sqlite storage by default, got %+v", cfg.Storage)
	}
	if cfg.Ingest.Mode != IngestModeSync {
		t.Fatalf("expected sync ingest, got %q", cfg.Ingest.Mode)
	}
	if cfg.Notifications.Topic != "achievibit.changes" {
		t.Fatalf("expected default topic, got %q", cfg.Notifications.Topic)
	}
	if cfg.Watermill.Driver != "gochannel" {
		t.Fatalf("expected default watermill driver, got %q", cfg.Watermill.Driver)
	}
	if cfg.Watermill.GoChannel.OutputChannelBuffer != 64 {
		t.Fatalf("expected default gochannel output buffer, got %d", cfg.Watermill.GoChannel.OutputChannelBuffer)
	}
	if cfg.Watermill.HTTP.Mode != "topic_url" {
		t.Fatalf("expected default http mode topic_url, got %q", cfg.Watermill.HTTP.Mode)
	}
}

// TestLoadConfigExpandsEnvAndDotEnv tests ${VAR} expansion with values from a .env file.
func TestLoadConfigExpandsEnvAndDotEnv(t *testing.T) {
	path := writeConfig(t, "providers:\n  github:\n    enabled: true\n    secret: ${ACHIEVIBIT_TEST_SECRET}\nstorage:\n  driver: postgres\n  dsn: ${ACHIEVIBIT_TEST_DSN}\n")
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(envFile, []byte("ACHIEVIBIT_TEST_SECRET=from-dotenv\nACHIEVIBIT_TEST_DSN=postgres://dotenv\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("ACHIEVIBIT_TEST_DSN", "postgres://env")
	t.Cleanup(func() { os.Unsetenv("ACHIEVIBIT_TEST_SECRET") })

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Providers.GitHub.Secret != "from-dotenv" {
		t.Fatalf("expected secret from .env, got %q", cfg.Providers.GitHub.Secret)
	}
	if cfg.Storage.DSN != "postgres://env" {
		t.Fatalf("expected environment to win over .env, got %q", cfg.Storage.DSN)
	}
	if cfg.Storage.AutoMigrate {
		t.Fatalf("expected explicit storage to keep auto_migrate off")
	}
}

func TestLoadConfigValidatesIngest(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "ingest:\n  mode: queue\n")); err == nil {
		t.Fatalf("expected error for queue mode without river dsn")
	}
	if _, err := LoadConfig(writeConfig(t, "ingest:\n  mode: batch\n")); err == nil {
		t.Fatalf("expected error for unknown ingest mode")
	}
	cfg, err := LoadConfig(writeConfig(t, "ingest:\n  mode: QUEUE\n  river:\n    dsn: postgres://river\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Ingest.Mode != IngestModeQueue || cfg.Ingest.River.Queue != "achievibit_deliveries" {
		t.Fatalf("unexpected ingest config %+v", cfg.Ingest)
	}
}

// TestLoadConfigInvalidRule tests that loading a config with an invalid rule returns an error.
func TestLoadConfigInvalidRule(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "rules:\n  - when: action == \"opened\"\n")); err == nil {
		t.Fatalf("expected error for missing emit")
	}
}

// TestLoadConfigTrimsFields tests that the fields in a rule are trimmed correctly.
func TestLoadConfigTrimsFields(t *testing.T) {
	content := "rules:\n  - when: \"  action == \\\"opened\\\"  \"\n    emit: \"  pr.opened.ready  \"\n    drivers: [\" amqp \", \"\"]\n"
	cfg, err := LoadConfig(writeConfig(t, content))
	if err != nil {
		t.Fatalf("load rules config: %v", err)
	}
	if cfg.Rules[0].When != "action == \"opened\"" {
		t.Fatalf("expected trimmed when, got %q", cfg.Rules[0].When)
	}
	if cfg.Rules[0].Emit[0] != "pr.opened.ready" {
		t.Fatalf("expected trimmed emit, got %q", cfg.Rules[0].Emit[0])
	}
	if len(cfg.Rules[0].Drivers) != 1 || cfg.Rules[0].Drivers[0] != "amqp" {
		t.Fatalf("expected trimmed drivers, got %v", cfg.Rules[0].Drivers)
	}
}
