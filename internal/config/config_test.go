package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HttpListenAddr != ":8888" || cfg.GrpcListenAddr != ":50051" {
		t.Fatalf("unexpected listen addresses: %q %q", cfg.HttpListenAddr, cfg.GrpcListenAddr)
	}
	if cfg.CallbackEndpoint != "master:50051" {
		t.Fatalf("expected callback endpoint derived from advertised host, got %q", cfg.CallbackEndpoint)
	}
	if cfg.TopicPrefix != "upb" || cfg.CredentialsSource != "file" || cfg.EmptyCredentialPolicy != "proceed" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.AbandonedTaskAfter != 10*time.Minute {
		t.Fatalf("expected 10m abandoned-task threshold, got %s", cfg.AbandonedTaskAfter)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "env-secret")
	t.Setenv("ADVERTISED_HOST", "broker.internal")
	t.Setenv("GRPC_LISTEN_ADDR", ":6000")
	t.Setenv("CAPABILITY_MATCHING", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.FallbackAPIKey != "env-secret" {
		t.Fatalf("expected fallback key from GEMINI_API_KEY, got %q", cfg.FallbackAPIKey)
	}
	if cfg.CallbackEndpoint != "broker.internal:6000" {
		t.Fatalf("unexpected callback endpoint %q", cfg.CallbackEndpoint)
	}
	if !cfg.CapabilityMatching {
		t.Fatalf("expected capability matching enabled")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.MkdirAll(filepath.Join(dir, "configs"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := `
redis_addr: redis:6379
callback_endpoint: 10.0.0.5:50051
empty_credential_policy: reject
credentials_source: etcd
etcd_endpoints:
  - etcd-1:2379
  - etcd-2:2379
`
	if err := os.WriteFile(filepath.Join(dir, "configs", "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RedisAddr != "redis:6379" || cfg.CallbackEndpoint != "10.0.0.5:50051" || cfg.EmptyCredentialPolicy != "reject" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if len(cfg.EtcdEndpoints) != 2 || cfg.EtcdEndpoints[1] != "etcd-2:2379" {
		t.Fatalf("unexpected etcd endpoints: %v", cfg.EtcdEndpoints)
	}
}

func TestLoadWorker(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WORKER_ID", "go-worker-1")
	t.Setenv("EXECUTOR", "shell")
	t.Setenv("SIMULATE_DELAY", "10s")

	cfg, err := LoadWorker()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WorkerID != "go-worker-1" || cfg.Executor != "shell" || cfg.SimulateDelay != 10*time.Second {
		t.Fatalf("unexpected worker config: %+v", cfg)
	}
	if cfg.Language != "Go" || cfg.ExecTimeout != 60*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
