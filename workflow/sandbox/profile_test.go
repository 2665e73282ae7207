package sandbox

import "testing"

func TestCapabilityProfile_ValidateRejectsZeroMemory(t *testing.T) {
	p := CapabilityProfile{MaxMemoryMB: 0, TimeoutMS: 1000}
	if err := p.Validate(); err == nil {
		t.Fatal("Validate should reject max_memory_mb <= 0")
	}
}

func TestCapabilityProfile_ValidateRejectsZeroTimeout(t *testing.T) {
	p := CapabilityProfile{MaxMemoryMB: 64, TimeoutMS: 0}
	if err := p.Validate(); err == nil {
		t.Fatal("Validate should reject timeout_ms <= 0")
	}
}

func TestCapabilityProfile_ValidateAcceptsMinimalGrant(t *testing.T) {
	p := CapabilityProfile{MaxMemoryMB: 64, TimeoutMS: 1000}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestFileSystemCapability_PathOutsideGrantDenied(t *testing.T) {
	p := CapabilityProfile{
		FS:          FileSystemCapability{Mode: FSReadOnly, Paths: []string{"/tmp/sandbox"}},
		MaxMemoryMB: 64,
		TimeoutMS:   1000,
	}
	if err := p.checkPath("/etc/passwd", false); err == nil {
		t.Fatal("checkPath should deny a path outside the granted root")
	}
	if err := p.checkPath("/tmp/sandbox/data.txt", false); err != nil {
		t.Fatalf("checkPath should allow a path under the granted root: %v", err)
	}
}

func TestFileSystemCapability_ReadOnlyDeniesWrite(t *testing.T) {
	p := CapabilityProfile{
		FS:          FileSystemCapability{Mode: FSReadOnly, Paths: []string{"/tmp/sandbox"}},
		MaxMemoryMB: 64,
		TimeoutMS:   1000,
	}
	if err := p.checkPath("/tmp/sandbox/data.txt", true); err == nil {
		t.Fatal("checkPath should deny a write under a ReadOnly grant")
	}
}

func TestFileSystemCapability_NoneDeniesEverything(t *testing.T) {
	p := CapabilityProfile{MaxMemoryMB: 64, TimeoutMS: 1000}
	if err := p.checkPath("/tmp/anything", false); err == nil {
		t.Fatal("checkPath should deny all paths when FS.Mode is FSNone")
	}
}

func TestNetworkCapability_AllowList(t *testing.T) {
	n := NetworkCapability{Mode: NetAllowList, Hosts: []string{"api.example.com"}}
	if !n.Allows("api.example.com") {
		t.Fatal("allow-listed host should be permitted")
	}
	if n.Allows("evil.example.com") {
		t.Fatal("non-allow-listed host should be denied")
	}
}

func TestNetworkCapability_BlockAllDeniesEverything(t *testing.T) {
	n := NetworkCapability{Mode: NetBlockAll}
	if n.Allows("anything.example.com") {
		t.Fatal("BlockAll should deny every host")
	}
}

func TestNetworkCapability_AllowAllPermitsEverything(t *testing.T) {
	n := NetworkCapability{Mode: NetAllowAll}
	if !n.Allows("anything.example.com") {
		t.Fatal("AllowAll should permit every host")
	}
}

func TestEnvironmentCapability_LookupRespectsMode(t *testing.T) {
	e := EnvironmentCapability{Mode: EnvNone, Values: map[string]string{"FOO": "bar"}}
	if _, ok := e.Lookup("FOO"); ok {
		t.Fatal("EnvNone should grant no lookups")
	}

	e = EnvironmentCapability{Mode: EnvAllowList, Values: map[string]string{"FOO": "bar"}}
	if v, ok := e.Lookup("FOO"); !ok || v != "bar" {
		t.Fatalf("expected granted lookup, got %q ok=%v", v, ok)
	}
	if _, ok := e.Lookup("UNSET"); ok {
		t.Fatal("ungranted key should not be looked up")
	}
}

func TestError_RetryableExcludesPolicy(t *testing.T) {
	if (&Error{Kind: Policy}).Retryable() {
		t.Fatal("Policy errors must not be retryable")
	}
	if !(&Error{Kind: Io}).Retryable() {
		t.Fatal("Io errors should be retryable")
	}
}
