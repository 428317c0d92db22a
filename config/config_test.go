package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	configContent := `
server:
  port: 9090
log:
  level: "debug"
  format: "json"
auth:
  jwt_secret: "test-secret"
  token_expire_hours: 48
database:
  path: "tmp/test.sqlite"
pdf:
  root_dir: "tmp/pdf"
  upload_dir: "tmp/upload"
importer:
  max_file_size_mb: 50
  queue_size: 4
  max_jobs_retained: 100
render:
  semaphore: 2
  timeout_s: 10
search:
  default_page_size: 25
users:
  - username: "testuser"
    password: "testpass"
`
	tmpFile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(configContent); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()

	// Test loading config
	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify values
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Database.Path != "tmp/test.sqlite" {
		t.Errorf("Expected database path tmp/test.sqlite, got %s", cfg.Database.Path)
	}
	if cfg.PDF.RootDir != "tmp/pdf" {
		t.Errorf("Expected pdf root tmp/pdf, got %s", cfg.PDF.RootDir)
	}
	if cfg.Importer.MaxFileSizeMB != 50 {
		t.Errorf("Expected max_file_size_mb 50, got %d", cfg.Importer.MaxFileSizeMB)
	}
	if cfg.Importer.QueueSize != 4 {
		t.Errorf("Expected queue_size 4, got %d", cfg.Importer.QueueSize)
	}
	if cfg.Auth.TokenExpireHours != 48 {
		t.Errorf("Expected token_expire_hours 48, got %d", cfg.Auth.TokenExpireHours)
	}
	if cfg.Render.Semaphore != 2 {
		t.Errorf("Expected render semaphore 2, got %d", cfg.Render.Semaphore)
	}
	if cfg.Search.DefaultPageSize != 25 {
		t.Errorf("Expected default_page_size 25, got %d", cfg.Search.DefaultPageSize)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Log.Level)
	}
	if len(cfg.Users) != 1 {
		t.Errorf("Expected 1 user, got %d", len(cfg.Users))
	}
	if cfg.Users[0].Username != "testuser" {
		t.Errorf("Expected username testuser, got %s", cfg.Users[0].Username)
	}
}

func TestLoadDefaults(t *testing.T) {
	// Create minimal config to test defaults
	configContent := `
auth:
  jwt_secret: "s"
`
	tmpFile, err := os.CreateTemp("", "config-defaults-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(configContent); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults
	if cfg.Server.Port != 8791 {
		t.Errorf("Expected default port 8791, got %d", cfg.Server.Port)
	}
	if cfg.Database.Path != "data/ipc.sqlite" {
		t.Errorf("Expected default database path, got %s", cfg.Database.Path)
	}
	if cfg.Auth.TokenExpireHours != 24 {
		t.Errorf("Expected default token_expire_hours 24, got %d", cfg.Auth.TokenExpireHours)
	}
	if cfg.Importer.MaxFileSizeMB != 100 {
		t.Errorf("Expected default max_file_size_mb 100, got %d", cfg.Importer.MaxFileSizeMB)
	}
	if cfg.Importer.QueueSize != 8 {
		t.Errorf("Expected default queue_size 8, got %d", cfg.Importer.QueueSize)
	}
	if cfg.Scanner.MaxJobsRetained != 200 {
		t.Errorf("Expected default scanner retention 200, got %d", cfg.Scanner.MaxJobsRetained)
	}
	if cfg.Render.CacheTTLSec != 3600 {
		t.Errorf("Expected default render cache TTL 3600, got %d", cfg.Render.CacheTTLSec)
	}
	if cfg.Search.MaxPageSize != 100 {
		t.Errorf("Expected default max_page_size 100, got %d", cfg.Search.MaxPageSize)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected default log level info, got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected default log format json, got %s", cfg.Log.Format)
	}
}

func TestLoadNonExistent(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Error("Expected error for non-existent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-invalid-*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString("invalid: yaml: content:"); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpFile.Close()

	_, err = Load(tmpFile.Name())
	if err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestFindUser(t *testing.T) {
	cfg := &Config{
		Users: []User{
			{Username: "user1", Password: "pass1"},
			{Username: "user2", Password: "pass2"},
		},
	}

	// Test finding existing user
	user := cfg.FindUser("user1")
	if user == nil {
		t.Fatal("Expected to find user1")
	}
	if user.Password != "pass1" {
		t.Errorf("Expected password pass1, got %s", user.Password)
	}

	// Test finding non-existent user
	user = cfg.FindUser("nonexistent")
	if user != nil {
		t.Error("Expected nil for non-existent user")
	}
}
