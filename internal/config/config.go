// Package config holds all swarmgov configuration. Retry counts, backoff
// durations, and the ledger constants are observed defaults from the
// reference deployment, exposed here as tunables rather than hard-coded.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all swarmgov configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	LLM      LLMConfig      `yaml:"llm"`
	Window   WindowConfig   `yaml:"context_window"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	DAO      DAOConfig      `yaml:"dao"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LLMConfig configures the generation capability.
type LLMConfig struct {
	Provider      string `yaml:"provider"` // genai, mock
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	BaselineModel string `yaml:"baseline_model"` // degraded profile for fallback generation
	Timeout       string `yaml:"timeout"`
	MaxTokens     int    `yaml:"max_tokens"`
}

// WindowConfig configures the context window builder.
type WindowConfig struct {
	// MaxTokens is the soft budget for the assembled prompt, measured with
	// the chars/4 proxy.
	MaxTokens int `yaml:"max_tokens"`

	// LayerRetries is the attempt bound for a single layer's generator.
	LayerRetries int `yaml:"layer_retries"`

	// LayerBackoff is the fixed delay between layer generation attempts.
	LayerBackoff time.Duration `yaml:"layer_backoff"`
}

// PipelineConfig configures the task pipeline state machine.
type PipelineConfig struct {
	// GenerationRetries bounds retries of invalid generation output within
	// one transition.
	GenerationRetries int `yaml:"generation_retries"`

	// GenerationBackoff is the base delay between generation retries.
	GenerationBackoff time.Duration `yaml:"generation_backoff"`

	// MinPlanLength is the minimum accepted length for plan/refine output.
	MinPlanLength int `yaml:"min_plan_length"`
}

// LedgerConfig holds the reputation and escrow arithmetic constants.
type LedgerConfig struct {
	// Escrow movements.
	HighRiskLock    float64 `yaml:"high_risk_lock"`    // locked when a high-risk experiment is created
	SuccessRefund   float64 `yaml:"success_refund"`    // released on a fully successful attestation
	FailurePenalty  float64 `yaml:"failure_penalty"`   // added when a high-risk experiment falls short
	RemediateRefund float64 `yaml:"remediate_refund"`  // released on remediation

	// Reputation deltas.
	MetricPassReward    float64 `yaml:"metric_pass_reward"`
	FinancialPenalty    float64 `yaml:"financial_penalty"`
	EcologicalPenalty   float64 `yaml:"ecological_penalty"`
	SocialPenalty       float64 `yaml:"social_penalty"`
	HighRiskMissPenalty float64 `yaml:"high_risk_miss_penalty"`
	RemediateReward     float64 `yaml:"remediate_reward"`
	VerifyReward        float64 `yaml:"verify_reward"`
	VerifyMismatch      float64 `yaml:"verify_mismatch"`

	// Per-metric pass thresholds as a fraction of the agent's goal.
	FinancialThreshold  float64 `yaml:"financial_threshold"`
	EcologicalThreshold float64 `yaml:"ecological_threshold"`
	SocialThreshold     float64 `yaml:"social_threshold"`

	// AgentLogSize bounds each agent's in-memory log ring buffer.
	AgentLogSize int `yaml:"agent_log_size"`
}

// DAOConfig configures proposal resolution.
type DAOConfig struct {
	// Policy selects the resolution rule: "majority-cast" resolves once all
	// stakeholders have voted, by simple majority of cast votes, ties
	// rejected.
	Policy string `yaml:"policy"`
}

// StorageConfig configures the SQLite-backed store.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default configuration. The ledger numbers are the
// observed constants from the reference deployment (spec defaults).
func DefaultConfig() *Config {
	return &Config{
		Name:    "swarmgov",
		Version: "0.3.0",
		LLM: LLMConfig{
			Provider:      "genai",
			Model:         "gemini-2.0-flash",
			BaselineModel: "gemini-2.0-flash-lite",
			Timeout:       "120s",
			MaxTokens:     4096,
		},
		Window: WindowConfig{
			MaxTokens:    2048,
			LayerRetries: 3,
			LayerBackoff: time.Second,
		},
		Pipeline: PipelineConfig{
			GenerationRetries: 3,
			GenerationBackoff: time.Second,
			MinPlanLength:     20,
		},
		Ledger: LedgerConfig{
			HighRiskLock:        20,
			SuccessRefund:       10,
			FailurePenalty:      30,
			RemediateRefund:     25,
			MetricPassReward:    5,
			FinancialPenalty:    10,
			EcologicalPenalty:   12,
			SocialPenalty:       8,
			HighRiskMissPenalty: 15,
			RemediateReward:     10,
			VerifyReward:        5,
			VerifyMismatch:      10,
			FinancialThreshold:  1.0,
			EcologicalThreshold: 0.8,
			SocialThreshold:     0.9,
			AgentLogSize:        64,
		},
		DAO: DAOConfig{
			Policy: "majority-cast",
		},
		Storage: StorageConfig{
			DatabasePath: ".swarmgov/swarmgov.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LLMTimeout parses the configured LLM timeout, falling back to 120s.
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// Load reads configuration from a YAML file, layering it over the defaults.
// A missing file returns the defaults without error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	if err := c.validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// validate rejects configurations that would break core invariants.
func (c *Config) validate() error {
	if c.Window.MaxTokens <= 0 {
		return fmt.Errorf("context_window.max_tokens must be > 0")
	}
	if c.Window.LayerRetries < 1 {
		return fmt.Errorf("context_window.layer_retries must be >= 1")
	}
	if c.Pipeline.GenerationRetries < 1 {
		return fmt.Errorf("pipeline.generation_retries must be >= 1")
	}
	if c.Ledger.HighRiskLock < 0 || c.Ledger.SuccessRefund < 0 ||
		c.Ledger.FailurePenalty < 0 || c.Ledger.RemediateRefund < 0 {
		return fmt.Errorf("ledger escrow amounts must be >= 0")
	}
	return nil
}
