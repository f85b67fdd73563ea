// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults, Load(ctx) to layer
//   file and environment overrides on top.
// - External errors are wrapped via this package's sentinels.
package config

import "runtime"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// SQLitePath locates the durable store. ":memory:" keeps it ephemeral.
	SQLitePath string `koanf:"sqlite_path"`

	// JoinTimeoutMinutes bounds how long a staked session waits for a joiner.
	JoinTimeoutMinutes int `koanf:"join_timeout_minutes"`

	// SweepIntervalSeconds sets how often the expiry sweep runs.
	SweepIntervalSeconds int `koanf:"sweep_interval_seconds"`

	// TimeBudgetSeconds is each player's play window.
	TimeBudgetSeconds int `koanf:"time_budget_seconds"`

	// MinMoveGapMS is the anti-cheat suspicious-move threshold.
	MinMoveGapMS int `koanf:"min_move_gap_ms"`

	// MaxStrikes blocks a player after this many suspicious moves.
	MaxStrikes int `koanf:"max_strikes"`

	// PlatformFeeBP and AffiliateFeeBP are settlement fees in basis points.
	PlatformFeeBP  int64 `koanf:"platform_fee_bp"`
	AffiliateFeeBP int64 `koanf:"affiliate_fee_bp"`

	// TaskQueueSize bounds the ledger follow-up queue.
	TaskQueueSize int `koanf:"task_queue_size"`

	// WorkerCount sets the number of ledger task workers.
	WorkerCount int `koanf:"worker_count"`

	// ShardCount configures the session state store sharding.
	ShardCount int `koanf:"shard_count"`

	// MaxLobbyLimit caps GET /lobbies?limit.
	MaxLobbyLimit int `koanf:"max_lobby_limit"`

	// LedgerLatencyMinMS and LedgerLatencyMaxMS bound the simulated chain
	// latency of the built-in ledger.
	LedgerLatencyMinMS int `koanf:"ledger_latency_min_ms"`
	LedgerLatencyMaxMS int `koanf:"ledger_latency_max_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		SQLitePath:           "twinpot.db",
		JoinTimeoutMinutes:   10,
		SweepIntervalSeconds: 30,
		TimeBudgetSeconds:    60,
		MinMoveGapMS:         100,
		MaxStrikes:           3,
		PlatformFeeBP:        1500,
		AffiliateFeeBP:       300,
		TaskQueueSize:        10_000,
		WorkerCount:          runtime.NumCPU(),
		ShardCount:           16,
		MaxLobbyLimit:        100,
		LedgerLatencyMinMS:   20,
		LedgerLatencyMaxMS:   80,
	}
}
