// Package ckpt implements the checkpoint manager: compression, checksum
// verification, adaptive triggering, and pruning of durable workflow
// snapshots (spec §4.C).
package ckpt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// ErrCorruption is returned by Load when the stored checksum does not match
// the decompressed payload, or when a checksummed payload no longer
// decompresses at all.
var ErrCorruption = errors.New("ckpt: checksum mismatch: checkpoint data corruption detected")

// Checkpoint is a single durable snapshot, addressed by a monotonically
// increasing Sequence within its workflow.
type Checkpoint struct {
	Sequence       uint64
	Data           []byte // compressed if Config.EnableCompression was set at creation
	Checksum       uint64 // xxhash of the uncompressed payload, 0 if checksums disabled
	OriginalSize   int
	CompressedSize int
	IsIncremental  bool
	BaseSequence   *uint64
	CreatedAt      time.Time
}

// Config controls the checkpoint manager's behavior. The zero value is not
// directly usable; use DefaultConfig.
type Config struct {
	EnableCompression bool
	EnableChecksum    bool
	EnableIncremental bool
	MaxCheckpoints    int           // prune keeps this many most-recent checkpoints; 0 disables pruning
	MinEvents         int           // should_checkpoint() trigger: events since last checkpoint
	MaxInterval       time.Duration // should_checkpoint() trigger: elapsed time since last checkpoint
}

// DefaultConfig matches the manager's out-of-the-box behavior: compression
// and checksums on, pruning and adaptive triggers off.
func DefaultConfig() Config {
	return Config{
		EnableCompression: true,
		EnableChecksum:    true,
		EnableIncremental: false,
		MaxCheckpoints:    0,
		MinEvents:         0,
		MaxInterval:       0,
	}
}

// Stats accumulates lifetime counters across every checkpoint a Manager creates.
type Stats struct {
	TotalCreated         int
	TotalBytesCompressed int64 // sum of original sizes
	TotalBytesSaved      int64 // sum of (original - compressed)
	TotalCompressionTime time.Duration
}

// Manager creates, loads, and prunes Checkpoints, and decides when a new
// one is due via an adaptive event-count/interval trigger.
type Manager struct {
	cfg Config

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	eventsSinceCheckpoint int
	lastCheckpointAt      time.Time
	stats                 Stats
}

// NewManager constructs a Manager. The returned Manager owns zstd
// encoder/decoder resources; call Close when done with it.
func NewManager(cfg Config) (*Manager, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("ckpt: new zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("ckpt: new zstd decoder: %w", err)
	}
	return &Manager{
		cfg:              cfg,
		encoder:          enc,
		decoder:          dec,
		lastCheckpointAt: time.Now(),
	}, nil
}

// Close releases the manager's compression resources.
func (m *Manager) Close() {
	m.encoder.Close()
	m.decoder.Close()
}

// RecordEvent registers that one more event has been appended since the
// last checkpoint, advancing the adaptive trigger.
func (m *Manager) RecordEvent() {
	m.eventsSinceCheckpoint++
}

// ShouldCheckpoint reports whether the adaptive trigger (min event count or
// max elapsed interval, whichever configured threshold fires first) says a
// new checkpoint is due. A zero threshold disables that arm of the trigger.
func (m *Manager) ShouldCheckpoint() bool {
	if m.cfg.MinEvents > 0 && m.eventsSinceCheckpoint >= m.cfg.MinEvents {
		return true
	}
	if m.cfg.MaxInterval > 0 && time.Since(m.lastCheckpointAt) >= m.cfg.MaxInterval {
		return true
	}
	return false
}

// Create builds a Checkpoint for the given sequence and state, compressing
// and checksumming it per Config, and resets the adaptive trigger.
func (m *Manager) Create(sequence uint64, state []byte, baseSequence *uint64) (Checkpoint, error) {
	start := time.Now()
	original := len(state)

	var data []byte
	var compressed int
	if m.cfg.EnableCompression {
		var buf bytes.Buffer
		m.encoder.Reset(&buf)
		if _, err := m.encoder.Write(state); err != nil {
			return Checkpoint{}, fmt.Errorf("ckpt: compress: %w", err)
		}
		if err := m.encoder.Close(); err != nil {
			return Checkpoint{}, fmt.Errorf("ckpt: compress: %w", err)
		}
		data = buf.Bytes()
		compressed = len(data)
	} else {
		data = append([]byte(nil), state...)
		compressed = original
	}

	var checksum uint64
	if m.cfg.EnableChecksum {
		checksum = xxhash.Sum64(state)
	}

	cp := Checkpoint{
		Sequence:       sequence,
		Data:           data,
		Checksum:       checksum,
		OriginalSize:   original,
		CompressedSize: compressed,
		IsIncremental:  m.cfg.EnableIncremental && baseSequence != nil,
		BaseSequence:   baseSequence,
		CreatedAt:      time.Now(),
	}

	m.eventsSinceCheckpoint = 0
	m.lastCheckpointAt = cp.CreatedAt
	m.stats.TotalCreated++
	m.stats.TotalBytesCompressed += int64(original)
	m.stats.TotalBytesSaved += int64(original - compressed)
	m.stats.TotalCompressionTime += time.Since(start)

	return cp, nil
}

// Load decompresses a Checkpoint's data and, if checksums are enabled,
// verifies it against the stored checksum before returning it.
func (m *Manager) Load(cp Checkpoint) ([]byte, error) {
	var state []byte
	if m.cfg.EnableCompression {
		m.decoder.Reset(bytes.NewReader(cp.Data))
		decoded, err := io.ReadAll(m.decoder)
		if err != nil {
			if m.cfg.EnableChecksum && cp.Checksum != 0 {
				return nil, ErrCorruption
			}
			return nil, fmt.Errorf("ckpt: decompress: %w", err)
		}
		state = decoded
	} else {
		state = cp.Data
	}

	if m.cfg.EnableChecksum && cp.Checksum != 0 {
		if xxhash.Sum64(state) != cp.Checksum {
			return nil, ErrCorruption
		}
	}
	return state, nil
}

// Prune keeps the MaxCheckpoints most recent checkpoints by Sequence,
// newest first. A non-positive MaxCheckpoints is a no-op.
func (m *Manager) Prune(checkpoints []Checkpoint) []Checkpoint {
	if m.cfg.MaxCheckpoints <= 0 || len(checkpoints) <= m.cfg.MaxCheckpoints {
		sorted := append([]Checkpoint(nil), checkpoints...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence > sorted[j].Sequence })
		return sorted
	}

	sorted := append([]Checkpoint(nil), checkpoints...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sequence > sorted[j].Sequence })
	return sorted[:m.cfg.MaxCheckpoints]
}

// StatsSnapshot returns the lifetime counters accumulated so far.
func (m *Manager) StatsSnapshot() Stats { return m.stats }
