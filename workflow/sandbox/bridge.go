package sandbox

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// bridge holds the host-side state backing a single invocation's
// imports: the capability profile it enforces and the remaining fuel
// budget. Every host import consults the profile and debits fuel
// before doing any work, so grants can never widen mid-run and a
// guest cannot exceed its step budget by staying entirely in
// host-call territory.
type bridge struct {
	profile CapabilityProfile
	fuel    int64
	lastErr error
	client  *http.Client
}

func newBridge(profile CapabilityProfile) *bridge {
	fuel := int64(profile.CPUFuel)
	if profile.CPUFuel == 0 {
		fuel = -1 // unlimited
	}
	return &bridge{
		profile: profile,
		fuel:    fuel,
		client:  &http.Client{Timeout: time.Duration(profile.TimeoutMS) * time.Millisecond},
	}
}

// debit consumes one unit of fuel, returning false once exhausted.
func (b *bridge) debit() bool {
	if b.profile.CPUFuel == 0 {
		return true
	}
	if atomic.AddInt64(&b.fuel, -1) < 0 {
		return false
	}
	return true
}

// instantiateHostModule registers the "env" host module consulted by
// guest imports: http_fetch (network capability), get (environment
// capability), and yield_fuel (an explicit checkpoint a compute-bound
// guest can call so its fuel budget is enforced even without
// performing I/O).
func instantiateHostModule(ctx context.Context, runtime wazero.Runtime, b *bridge) (api.Closer, error) {
	builder := runtime.NewHostModuleBuilder("env")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, hostPtr, hostLen uint32) uint32 {
			if !b.debit() {
				b.lastErr = newErr(Policy, "cpu_fuel exhausted", nil)
				return 1
			}
			host, ok := readString(mod, hostPtr, hostLen)
			if !ok {
				b.lastErr = newErr(Bridge, "invalid host pointer from guest", nil)
				return 1
			}
			if !b.profile.Net.Allows(host) {
				b.lastErr = newErr(Policy, "network access denied: "+host, nil)
				return 1
			}
			return 0
		}).
		Export("http_fetch")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, keyPtr, keyLen uint32) uint32 {
			if !b.debit() {
				b.lastErr = newErr(Policy, "cpu_fuel exhausted", nil)
				return 1
			}
			key, ok := readString(mod, keyPtr, keyLen)
			if !ok {
				b.lastErr = newErr(Bridge, "invalid key pointer from guest", nil)
				return 1
			}
			if _, granted := b.profile.Env.Lookup(key); !granted {
				b.lastErr = newErr(Policy, "environment access denied: "+key, nil)
				return 1
			}
			return 0
		}).
		Export("get")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context) uint32 {
			if !b.debit() {
				b.lastErr = newErr(Policy, "cpu_fuel exhausted", nil)
				return 1
			}
			return 0
		}).
		Export("yield_fuel")

	return builder.Instantiate(ctx)
}

func readString(mod api.Module, ptr, length uint32) (string, bool) {
	buf, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return "", false
	}
	return string(buf), true
}
