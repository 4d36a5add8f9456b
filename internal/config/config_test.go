package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// chdir moves into dir so no stray config.yaml is picked up.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.BaseURL != "http://localhost:8000/" {
		t.Errorf("unexpected base url %q", cfg.API.BaseURL)
	}
	if cfg.API.ModelName != "mnist" {
		t.Errorf("expected model name 'mnist', got %q", cfg.API.ModelName)
	}
	if cfg.API.PollInterval != time.Second {
		t.Errorf("expected 1s poll interval, got %v", cfg.API.PollInterval)
	}
	if cfg.API.RequestTimeout != 0 {
		t.Errorf("expected no request timeout, got %v", cfg.API.RequestTimeout)
	}
	if cfg.Storage.IsConfigured() {
		t.Error("storage should not be configured without credentials")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("API_BASE_URL", "http://serving.internal:9000/")
	t.Setenv("MODEL_NAME", "imagenet")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("MODEL_ARCHIVE", "examples/mnist.zip")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.BaseURL != "http://serving.internal:9000/" {
		t.Errorf("unexpected base url %q", cfg.API.BaseURL)
	}
	if cfg.API.ModelName != "imagenet" {
		t.Errorf("expected model name 'imagenet', got %q", cfg.API.ModelName)
	}
	if cfg.API.PollInterval != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.API.PollInterval)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("expected log level to be lowercased, got %q", cfg.Server.LogLevel)
	}
	if cfg.API.ModelArchive != "examples/mnist.zip" {
		t.Errorf("unexpected model archive %q", cfg.API.ModelArchive)
	}
}

func TestLoad_SecretFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	secretPath := filepath.Join(dir, "secret")
	if err := os.WriteFile(secretPath, []byte("s3cr3t\n"), 0o600); err != nil {
		t.Fatalf("failed to write secret: %v", err)
	}
	t.Setenv("STORAGE_ACCESS_KEY_ID", "minio")
	t.Setenv("STORAGE_SECRET_ACCESS_KEY", "")
	t.Setenv("STORAGE_SECRET_ACCESS_KEY_FILE", secretPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Storage.SecretAccessKey != "s3cr3t" {
		t.Errorf("expected secret from file, got %q", cfg.Storage.SecretAccessKey)
	}
	if !cfg.Storage.IsConfigured() {
		t.Error("storage should be configured")
	}
}

func TestLoad_InvalidPollInterval(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("POLL_INTERVAL", "0s")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for zero poll interval")
	}
}
