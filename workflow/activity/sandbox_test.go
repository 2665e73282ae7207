package activity

import (
	"context"
	"testing"

	"github.com/shannon-run/shannon/workflow/sandbox"
)

func TestSandboxActivity_MissingModuleIsNonRetryable(t *testing.T) {
	a := NewSandboxActivity(nil)
	_, err := a.Execute(context.Background(), Context{}, map[string]any{})
	if err == nil {
		t.Fatal("expected an error for missing module input")
	}
	if !isNonRetryable(err) {
		t.Fatalf("expected a non-retryable error, got %v", err)
	}
}

func isNonRetryable(err error) bool {
	return !isRetryable(err)
}

func TestProfileFromInput_Defaults(t *testing.T) {
	p := profileFromInput(map[string]any{})
	if p.MaxMemoryMB != 64 {
		t.Errorf("MaxMemoryMB = %d, want 64", p.MaxMemoryMB)
	}
	if p.TimeoutMS != 5000 {
		t.Errorf("TimeoutMS = %d, want 5000", p.TimeoutMS)
	}
	if p.FS.Mode != sandbox.FSNone {
		t.Errorf("FS.Mode = %v, want FSNone", p.FS.Mode)
	}
	if p.Net.Mode != sandbox.NetBlockAll {
		t.Errorf("Net.Mode = %v, want NetBlockAll", p.Net.Mode)
	}
}

func TestProfileFromInput_GrantsFromInput(t *testing.T) {
	p := profileFromInput(map[string]any{
		"fs_mode":       "read_only",
		"fs_paths":      []any{"/data"},
		"net_hosts":     []any{"api.example.com"},
		"max_memory_mb": float64(128),
		"timeout_ms":    float64(2000),
	})
	if p.FS.Mode != sandbox.FSReadOnly || len(p.FS.Paths) != 1 || p.FS.Paths[0] != "/data" {
		t.Errorf("unexpected FS grant: %+v", p.FS)
	}
	if p.Net.Mode != sandbox.NetAllowList || len(p.Net.Hosts) != 1 || p.Net.Hosts[0] != "api.example.com" {
		t.Errorf("unexpected Net grant: %+v", p.Net)
	}
	if p.MaxMemoryMB != 128 || p.TimeoutMS != 2000 {
		t.Errorf("unexpected resource limits: %+v", p)
	}
}
