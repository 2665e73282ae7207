// Package sandbox executes untrusted WASM modules under an explicit
// CapabilityProfile (spec §4.D): a memory cap, a wall-clock timeout, a
// host-call fuel budget, and filesystem/network/environment grants
// enforced both at instantiation and at every host call.
package sandbox

import "fmt"

// FSMode is the filesystem grant kind.
type FSMode int

const (
	FSNone FSMode = iota
	FSReadOnly
	FSReadWrite
)

// FileSystemCapability grants access to a fixed set of host paths.
// Grants are fixed at instantiation time and never widen at runtime.
type FileSystemCapability struct {
	Mode  FSMode
	Paths []string
}

// NetMode is the network grant kind.
type NetMode int

const (
	NetBlockAll NetMode = iota
	NetAllowList
	NetAllowAll
)

// NetworkCapability grants outbound network access by hostname.
type NetworkCapability struct {
	Mode  NetMode
	Hosts []string
}

// Allows reports whether host is permitted under this capability.
func (n NetworkCapability) Allows(host string) bool {
	switch n.Mode {
	case NetAllowAll:
		return true
	case NetAllowList:
		for _, h := range n.Hosts {
			if h == host {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// EnvMode is the environment-variable grant kind.
type EnvMode int

const (
	EnvNone EnvMode = iota
	EnvAllowList
	EnvAllowAll
)

// EnvironmentCapability grants visibility of host environment variables
// to the guest, either none, a fixed allow-listed set, or all of Values.
type EnvironmentCapability struct {
	Mode   EnvMode
	Values map[string]string
}

// Lookup returns the value exposed to the guest for key, if granted.
func (e EnvironmentCapability) Lookup(key string) (string, bool) {
	if e.Mode == EnvNone {
		return "", false
	}
	v, ok := e.Values[key]
	return v, ok
}

// CapabilityProfile parameterizes a single sandbox invocation (spec §4.D).
type CapabilityProfile struct {
	FS          FileSystemCapability
	Net         NetworkCapability
	Env         EnvironmentCapability
	MaxMemoryMB int
	TimeoutMS   int
	CPUFuel     uint64
}

// Validate enforces the spec's profile invariants: max_memory_mb>0,
// timeout_ms>0.
func (p CapabilityProfile) Validate() error {
	if p.MaxMemoryMB <= 0 {
		return newErr(Profile, fmt.Sprintf("max_memory_mb must be > 0, got %d", p.MaxMemoryMB), nil)
	}
	if p.TimeoutMS <= 0 {
		return newErr(Profile, fmt.Sprintf("timeout_ms must be > 0, got %d", p.TimeoutMS), nil)
	}
	if p.FS.Mode != FSNone && len(p.FS.Paths) == 0 {
		return newErr(Profile, "filesystem capability grants a mode but no paths", nil)
	}
	if p.Net.Mode == NetAllowList && len(p.Net.Hosts) == 0 {
		return newErr(Profile, "network capability is AllowList but no hosts are granted", nil)
	}
	return nil
}

// checkPath reports whether path is permitted by the filesystem grant,
// and whether the access would require write permission.
func (p CapabilityProfile) checkPath(path string, write bool) error {
	switch p.FS.Mode {
	case FSNone:
		return newErr(Policy, fmt.Sprintf("filesystem access denied: %q (no grant)", path), nil)
	case FSReadOnly:
		if write {
			return newErr(Policy, fmt.Sprintf("write denied: %q is read-only", path), nil)
		}
	}
	for _, root := range p.FS.Paths {
		if pathWithin(root, path) {
			return nil
		}
	}
	return newErr(Policy, fmt.Sprintf("path %q is outside granted roots %v", path, p.FS.Paths), nil)
}

func pathWithin(root, path string) bool {
	if path == root {
		return true
	}
	if len(path) > len(root) && path[:len(root)] == root && path[len(root)] == '/' {
		return true
	}
	return false
}
