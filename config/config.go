// Package config loads and defaults the settings the peer pool, peer
// sessions and generator executor need (SPEC_FULL.md §10.3), the same
// shape cmd/geth's own config.go gives eth.Config/node.Config: a plain
// struct with defaults plus an optional TOML override file.
package config

import (
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/naoina/toml"
)

// Config is the full set of tunables this module's components read
// (spec.md §4.4, §4.8, §4.6 plus the ambient CLI/cert-dir settings
// SPEC_FULL.md §10.3 adds).
type Config struct {
	NetworkID       string
	SoftwareVersion string
	// CertDir is loaded from a config file but no component reads it: the
	// client identity directory comes from CHIA_BLOCK_LISTENER_SSL_DIR or
	// <home>/.chia-block-listener/ssl (internal/transport).
	CertDir         string

	DialTimeout      time.Duration
	HandshakeTimeout time.Duration

	// RequestRateLimit is the per-session minimum spacing between
	// requests (spec.md §4.4, 200ms default).
	RequestRateLimit time.Duration
	// PoolSelectionRateLimit is the per-peer minimum spacing between
	// dispatcher selections (spec.md §4.8, 500ms default).
	PoolSelectionRateLimit time.Duration

	MaxSkippedFrames     int
	RequestQueueCapacity int
	FailureThreshold     int
	MaxBlockCost         uint64
	MaxHeapSize          uint64

	RetryOnDifferentPeer bool
}

// Default returns the configuration matching spec.md's named constants
// (§4.4, §4.8, §9 open questions) unless overridden.
func Default() Config {
	return Config{
		NetworkID:              "mainnet",
		SoftwareVersion:        "chia-block-listener/0.1.0",
		DialTimeout:            10 * time.Second,
		HandshakeTimeout:       10 * time.Second,
		RequestRateLimit:       200 * time.Millisecond,
		PoolSelectionRateLimit: 500 * time.Millisecond,
		MaxSkippedFrames:       100,
		RequestQueueCapacity:   100,
		FailureThreshold:       3,
		MaxBlockCost:           11_000_000_000,
		MaxHeapSize:            1 << 28,
		RetryOnDifferentPeer:   true,
	}
}

// tomlSettings mirrors cmd/geth's own toml.Config: TOML keys must match
// the Go struct field names exactly, and unknown keys are rejected so a
// typo in a config file surfaces immediately instead of being silently
// ignored.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, field string) string { return field },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("config: field %q is not defined in %s", field, rt.String())
	},
}

// LoadFile reads path as TOML and applies it on top of Default().
func LoadFile(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
