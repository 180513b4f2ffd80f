// Package config provides application configuration.
//
// Configuration is loaded from environment variables with sensible
// defaults. All timeouts and queue/buffer sizes are configurable.
//
// Configuration categories:
//   - Server: host/port the gateway listens on
//   - Outbound: per-connection queue capacity, coalescing window, replay history
//   - Session: heartbeat interval, reconnect grace period, confirmation timeout
//   - State: HMAC secret, max snapshot size, snapshot expiry
//   - Pipeline: plan confirmation requirement and timeout
//
// Every environment variable read is listed in Load.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// OutboundConfig controls the per-connection send path.
type OutboundConfig struct {
	QueueCapacity  int           // Max queued events before non-streaming sends block (default: 1000)
	CoalesceWindow time.Duration // Streaming-tag merge window (default: 75ms)
	HistorySize    int           // Events retained per connection/session for replay (default: 1000)
	ReplayCap      int           // Max events replayed on a single reconnect (default: 200)
}

// SessionConfig controls session lifecycle and liveness behavior.
type SessionConfig struct {
	HeartbeatInterval    time.Duration // system.heartbeat cadence (default: 60s)
	ConfirmationTimeout  time.Duration // Unanswered agent.user_confirm timeout (default: 300s)
	ReconnectGrace       time.Duration // How long a disconnected session stays resumable (default: 120s)
	MaxInboundFrameBytes int           // Max bytes accepted per inbound frame (default: 1MiB)
	SendLLMMessage       bool          // Whether to emit raw agent.llm_message events (default: false)
}

// StateConfig controls signed client-held session snapshots.
type StateConfig struct {
	SecretKey        string        // HMAC-SHA256 signing key; required
	MaxSnapshotBytes int           // Max encoded snapshot size (default: 100KiB)
	MaxMemoryMessages int          // Max conversation messages retained in a snapshot (default: 100)
	SnapshotTTL       time.Duration // How long a signed snapshot remains acceptable (default: 24h)
}

// PipelineConfig controls the plan-solve-aggregate pipeline.
type PipelineConfig struct {
	PlanConfirmationRequired bool          // Whether a plan must be user-confirmed before solving (default: false)
	PlanConfirmationTimeout  time.Duration // Timeout for an unanswered plan confirmation (default: 300s)
	MaxConcurrentTasks       int           // Fan-out concurrency bound for solve_tasks (default: 8)
}

// Config holds all application configuration.
type Config struct {
	Host string
	Port string

	Outbound OutboundConfig
	Session  SessionConfig
	State    StateConfig
	Pipeline PipelineConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Host: getEnv("AGENTRELAY_HOST", "0.0.0.0"),
		Port: getEnv("AGENTRELAY_PORT", "8080"),
		Outbound: OutboundConfig{
			QueueCapacity:  getEnvInt("AGENTRELAY_OUTBOUND_QUEUE_CAPACITY", 1000),
			CoalesceWindow: getEnvDuration("AGENTRELAY_COALESCE_WINDOW", 75*time.Millisecond),
			HistorySize:    getEnvInt("AGENTRELAY_HISTORY_RING_SIZE", 1000),
			ReplayCap:      getEnvInt("AGENTRELAY_REPLAY_CAP", 200),
		},
		Session: SessionConfig{
			HeartbeatInterval:    getEnvDuration("AGENTRELAY_HEARTBEAT_INTERVAL", 60*time.Second),
			ConfirmationTimeout:  getEnvDuration("AGENTRELAY_CONFIRMATION_TIMEOUT", 300*time.Second),
			ReconnectGrace:       getEnvDuration("AGENTRELAY_RECONNECT_GRACE", 120*time.Second),
			MaxInboundFrameBytes: getEnvInt("AGENTRELAY_MAX_INBOUND_FRAME_BYTES", 1<<20),
			SendLLMMessage:       getEnvBool("AGENTRELAY_SEND_LLM_MESSAGE", false),
		},
		State: StateConfig{
			SecretKey:         getEnv("AGENTRELAY_STATE_SECRET_KEY", ""),
			MaxSnapshotBytes:  getEnvInt("AGENTRELAY_MAX_STATE_BYTES", 100*1024),
			MaxMemoryMessages: getEnvInt("AGENTRELAY_MAX_MEMORY_MESSAGES", 100),
			SnapshotTTL:       getEnvDuration("AGENTRELAY_SNAPSHOT_TTL", 24*time.Hour),
		},
		Pipeline: PipelineConfig{
			PlanConfirmationRequired: getEnvBool("AGENTRELAY_PLAN_CONFIRMATION_REQUIRED", false),
			PlanConfirmationTimeout:  getEnvDuration("AGENTRELAY_PLAN_CONFIRMATION_TIMEOUT", 300*time.Second),
			MaxConcurrentTasks:       getEnvInt("AGENTRELAY_MAX_CONCURRENT_TASKS", 8),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set and
// internally consistent.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("AGENTRELAY_PORT cannot be empty")
	}
	if c.State.SecretKey == "" {
		return fmt.Errorf("AGENTRELAY_STATE_SECRET_KEY cannot be empty")
	}
	if c.Outbound.QueueCapacity <= 0 {
		return fmt.Errorf("AGENTRELAY_OUTBOUND_QUEUE_CAPACITY must be > 0")
	}
	if c.Outbound.HistorySize <= 0 {
		return fmt.Errorf("AGENTRELAY_HISTORY_RING_SIZE must be > 0")
	}
	if c.Outbound.ReplayCap <= 0 {
		return fmt.Errorf("AGENTRELAY_REPLAY_CAP must be > 0")
	}
	if c.Session.MaxInboundFrameBytes <= 0 {
		return fmt.Errorf("AGENTRELAY_MAX_INBOUND_FRAME_BYTES must be > 0")
	}
	if c.Pipeline.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("AGENTRELAY_MAX_CONCURRENT_TASKS must be > 0")
	}
	return nil
}

// IsDevelopment returns true if AGENTRELAY_HOST suggests a local run.
func (c *Config) IsDevelopment() bool {
	return c.Host == "" || c.Host == "localhost" || c.Host == "127.0.0.1"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
