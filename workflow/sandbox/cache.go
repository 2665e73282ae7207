package sandbox

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/tetratelabs/wazero"
)

// moduleCache compiles each distinct WASM module exactly once, keyed by
// a hash of its bytecode, and reuses the compiled module across
// invocations. Grounded behaviorally on original_source's
// agent-core/tests/test_wasm_cache.rs, which asserts repeat executions
// of the same module are markedly faster than the first. The cache is
// a pure performance layer: it never affects instantiation semantics,
// since every Instantiate call still applies the caller's current
// CapabilityProfile fresh.
type moduleCache struct {
	runtime wazero.Runtime

	mu      sync.Mutex
	entries map[uint64]wazero.CompiledModule
}

func newModuleCache(runtime wazero.Runtime) *moduleCache {
	return &moduleCache{runtime: runtime, entries: make(map[uint64]wazero.CompiledModule)}
}

func (c *moduleCache) compile(ctx context.Context, wasmBytes []byte) (wazero.CompiledModule, uint64, error) {
	key := xxhash.Sum64(wasmBytes)

	c.mu.Lock()
	if cm, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return cm, key, nil
	}
	c.mu.Unlock()

	cm, err := c.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, key, newErr(Wasm, "compile module", err)
	}

	c.mu.Lock()
	if existing, ok := c.entries[key]; ok {
		c.mu.Unlock()
		cm.Close(ctx)
		return existing, key, nil
	}
	c.entries[key] = cm
	c.mu.Unlock()

	return cm, key, nil
}

func (c *moduleCache) closeAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, cm := range c.entries {
		cm.Close(ctx)
		delete(c.entries, k)
	}
}
