package sandbox

import (
	"context"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Result carries the outcome of a single guest invocation.
type Result struct {
	ExitCode uint32
	Stdout   []byte
	Stderr   []byte
	FuelUsed uint64
	Duration time.Duration
}

// Sandbox executes WASM modules under a CapabilityProfile, backed by a
// shared wazero runtime and compiled-module cache. One Sandbox is
// intended to live for the lifetime of the process; each Execute call
// is independent and carries its own fresh capability grants.
//
// wazero's memory limit is a runtime-wide engine setting, not a
// per-instantiation one, so MaxMemoryMB is enforced against a single
// process-wide ceiling fixed at construction: a profile asking for
// more than the ceiling is a Policy error, and every instantiation
// runs under that one shared limit.
type Sandbox struct {
	runtime      wazero.Runtime
	cache        *moduleCache
	log          hclog.Logger
	memCeilingMB int
}

// memoryPageSize is the WASM linear-memory page size (64KiB), used to
// translate max_memory_mb into wazero's page-count limit.
const memoryPageSize = 65536

// New constructs a Sandbox with its own wazero runtime, bounding every
// instantiation's linear memory to memCeilingMB.
func New(ctx context.Context, log hclog.Logger, memCeilingMB int) (*Sandbox, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if memCeilingMB <= 0 {
		memCeilingMB = 256
	}
	pages := uint32(memCeilingMB * 1024 * 1024 / memoryPageSize)
	rc := wazero.NewRuntimeConfig().WithMemoryLimitPages(pages)
	runtime := wazero.NewRuntimeWithConfig(ctx, rc)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, newErr(Launch, "instantiate WASI snapshot preview1", err)
	}
	return &Sandbox{runtime: runtime, cache: newModuleCache(runtime), log: log, memCeilingMB: memCeilingMB}, nil
}

// Close releases the runtime and every cached compiled module.
func (s *Sandbox) Close(ctx context.Context) error {
	s.cache.closeAll(ctx)
	return s.runtime.Close(ctx)
}

// Execute instantiates wasmBytes under profile, which runs the module's
// "_start" export (a WASI command module's entry point), enforcing
// every grant in spec §4.D. Policy is checked both here, at
// instantiation, and inside every host call the guest makes; grants
// never widen mid-run. A Policy or Bridge error recorded by a host call
// is returned even when the guest itself runs to completion.
func (s *Sandbox) Execute(ctx context.Context, wasmBytes []byte, profile CapabilityProfile, args []string) (Result, error) {
	if err := profile.Validate(); err != nil {
		return Result{}, err
	}
	if profile.MaxMemoryMB > s.memCeilingMB {
		return Result{}, newErr(Policy, "max_memory_mb exceeds sandbox ceiling", nil)
	}

	compiled, _, err := s.cache.compile(ctx, wasmBytes)
	if err != nil {
		return Result{}, err
	}

	timeout := time.Duration(profile.TimeoutMS) * time.Millisecond
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := newBridge(profile)
	hostMod, err := instantiateHostModule(runCtx, s.runtime, b)
	if err != nil {
		return Result{}, newErr(Launch, "instantiate host module", err)
	}
	defer hostMod.Close(runCtx)

	cfg, err := moduleConfig(profile, args)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	mod, err := s.runtime.InstantiateModule(runCtx, compiled, cfg)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return Result{}, newErr(Wasm, "execution exceeded timeout_ms", err)
		}
		if b.lastErr != nil {
			return Result{}, b.lastErr
		}
		return Result{}, newErr(Wasm, "instantiate guest module", err)
	}
	defer mod.Close(runCtx)
	if b.lastErr != nil {
		return Result{}, b.lastErr
	}

	elapsed := time.Since(start)
	used := uint64(0)
	if profile.CPUFuel > 0 {
		used = profile.CPUFuel - fuelRemaining(b)
	}

	return Result{ExitCode: 0, FuelUsed: used, Duration: elapsed}, nil
}

func fuelRemaining(b *bridge) uint64 {
	if b.fuel < 0 {
		return 0
	}
	return uint64(b.fuel)
}

// moduleConfig translates a CapabilityProfile's filesystem and
// environment grants into a wazero ModuleConfig. Network is not part
// of WASI preview1's surface, so it is enforced purely at the host
// import layer (bridge.go), not here.
func moduleConfig(profile CapabilityProfile, args []string) (wazero.ModuleConfig, error) {
	cfg := wazero.NewModuleConfig().WithArgs(args...).WithStartFunctions("_start")

	fsConfig := wazero.NewFSConfig()
	switch profile.FS.Mode {
	case FSReadOnly:
		for _, root := range profile.FS.Paths {
			fsConfig = fsConfig.WithFSMount(os.DirFS(root), root)
		}
	case FSReadWrite:
		for _, root := range profile.FS.Paths {
			fsConfig = fsConfig.WithDirMount(root, root)
		}
	case FSNone:
		// no preopens granted; any guest path access fails at the WASI layer.
	}
	cfg = cfg.WithFSConfig(fsConfig)

	switch profile.Env.Mode {
	case EnvAllowAll:
		for k, v := range profile.Env.Values {
			cfg = cfg.WithEnv(k, v)
		}
	case EnvAllowList:
		for k, v := range profile.Env.Values {
			cfg = cfg.WithEnv(k, v)
		}
	}

	return cfg, nil
}
