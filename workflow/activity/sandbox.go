package activity

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/shannon-run/shannon/workflow/sandbox"
)

// SandboxActivity runs a WASM module under a capability profile built
// from the activity input (spec §4.D, wired to a pattern-invocable
// activity; DESIGN.md's workflow/sandbox entry describes the sandbox as
// a general-purpose capability-sandboxed activity executor). Input
// shape: {"module": base64 bytecode, "args": []string, "fs_paths":
// []string, "fs_mode": "none|read_only|read_write", "net_hosts":
// []string, "max_memory_mb": int, "timeout_ms": int, "cpu_fuel": int}.
type SandboxActivity struct {
	box *sandbox.Sandbox
}

// NewSandboxActivity wraps an existing sandbox.Sandbox (one per
// process, per the sandbox.Sandbox type's doc comment) as an Activity.
func NewSandboxActivity(box *sandbox.Sandbox) *SandboxActivity {
	return &SandboxActivity{box: box}
}

func (*SandboxActivity) Name() string { return "sandbox_execute" }

func (a *SandboxActivity) Execute(ctx context.Context, _ Context, input map[string]any) (map[string]any, error) {
	moduleB64, _ := input["module"].(string)
	if moduleB64 == "" {
		return nil, NonRetryable(fmt.Errorf("sandbox_execute: missing %q", "module"))
	}
	wasmBytes, err := base64.StdEncoding.DecodeString(moduleB64)
	if err != nil {
		return nil, NonRetryable(fmt.Errorf("sandbox_execute: decode module: %w", err))
	}

	profile := profileFromInput(input)
	result, err := a.box.Execute(ctx, wasmBytes, profile, stringSlice(input["args"]))
	if err != nil {
		var sandboxErr *sandbox.Error
		if errors.As(err, &sandboxErr) && !sandboxErr.Retryable() {
			return nil, NonRetryable(err)
		}
		return nil, err
	}

	return map[string]any{
		"exit_code": result.ExitCode,
		"stdout":    string(result.Stdout),
		"stderr":    string(result.Stderr),
		"fuel_used": result.FuelUsed,
	}, nil
}

func profileFromInput(input map[string]any) sandbox.CapabilityProfile {
	p := sandbox.CapabilityProfile{
		MaxMemoryMB: configIntFrom(input, "max_memory_mb", 64),
		TimeoutMS:   configIntFrom(input, "timeout_ms", 5000),
		CPUFuel:     uint64(configIntFrom(input, "cpu_fuel", 1_000_000)),
	}

	switch stringField(input, "fs_mode") {
	case "read_only":
		p.FS = sandbox.FileSystemCapability{Mode: sandbox.FSReadOnly, Paths: stringSlice(input["fs_paths"])}
	case "read_write":
		p.FS = sandbox.FileSystemCapability{Mode: sandbox.FSReadWrite, Paths: stringSlice(input["fs_paths"])}
	default:
		p.FS = sandbox.FileSystemCapability{Mode: sandbox.FSNone}
	}

	if hosts := stringSlice(input["net_hosts"]); len(hosts) > 0 {
		p.Net = sandbox.NetworkCapability{Mode: sandbox.NetAllowList, Hosts: hosts}
	} else {
		p.Net = sandbox.NetworkCapability{Mode: sandbox.NetBlockAll}
	}

	return p
}

func configIntFrom(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
