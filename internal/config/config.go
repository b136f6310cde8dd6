package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type ServerConfig struct {
	Port int `toml:"port"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

// ResolutionConfig drives scoring and policy. Thresholds are score
// band floors, both inclusive.
type ResolutionConfig struct {
	AutoMergeThreshold float64  `toml:"auto_merge_threshold"`
	ReviewThreshold    float64  `toml:"review_threshold"`
	Workers            int      `toml:"workers"`
	MaxCandidates      int      `toml:"max_candidates"`
	LLMAssist          bool     `toml:"llm_assist"`
	LLMConfidence      float64  `toml:"llm_confidence"`
	LLMTimeoutSeconds  int      `toml:"llm_timeout_seconds"`
	GenericDomains     []string `toml:"generic_domains"`
}

func (r ResolutionConfig) LLMTimeout() time.Duration {
	return time.Duration(r.LLMTimeoutSeconds) * time.Second
}

type SchedulerConfig struct {
	DebounceSeconds int `toml:"debounce_seconds"`
	HistoryLimit    int `toml:"history_limit"`
}

func (s SchedulerConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceSeconds) * time.Second
}

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Memgraph   MemgraphConfig   `toml:"memgraph"`
	LLM        LLMConfig        `toml:"llm"`
	Resolution ResolutionConfig `toml:"resolution"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	return &cfg, nil
}

// Default returns the config used when no file is present; env
// overrides still apply on top.
func Default() *Config {
	cfg := &Config{}
	_ = cfg.Validate()
	return cfg
}

// ApplyEnv layers deploy-time overrides over file values. Secrets
// should arrive this way rather than in the TOML.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("MEMGRAPH_URI"); v != "" {
		c.Memgraph.URI = v
	}
	if v := os.Getenv("MEMGRAPH_USER"); v != "" {
		c.Memgraph.User = v
	}
	if v := os.Getenv("MEMGRAPH_PASSWORD"); v != "" {
		c.Memgraph.Password = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
}

// Validate fills defaults and rejects configurations the pipeline
// cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Memgraph.URI == "" {
		c.Memgraph.URI = "bolt://localhost:7687"
	}

	r := &c.Resolution
	if r.AutoMergeThreshold == 0 {
		r.AutoMergeThreshold = 0.90
	}
	if r.ReviewThreshold == 0 {
		r.ReviewThreshold = 0.75
	}
	if r.AutoMergeThreshold < 0 || r.AutoMergeThreshold > 1 {
		return fmt.Errorf("resolution.auto_merge_threshold %v outside [0,1]", r.AutoMergeThreshold)
	}
	if r.ReviewThreshold < 0 || r.ReviewThreshold > 1 {
		return fmt.Errorf("resolution.review_threshold %v outside [0,1]", r.ReviewThreshold)
	}
	if r.ReviewThreshold > r.AutoMergeThreshold {
		return fmt.Errorf("resolution.review_threshold %v above auto_merge_threshold %v", r.ReviewThreshold, r.AutoMergeThreshold)
	}
	if r.Workers <= 0 {
		r.Workers = 4
	}
	if r.MaxCandidates <= 0 {
		r.MaxCandidates = 64
	}
	if r.LLMConfidence == 0 {
		r.LLMConfidence = 0.80
	}
	if r.LLMConfidence < 0 || r.LLMConfidence > 1 {
		return fmt.Errorf("resolution.llm_confidence %v outside [0,1]", r.LLMConfidence)
	}
	if r.LLMTimeoutSeconds <= 0 {
		r.LLMTimeoutSeconds = 10
	}

	s := &c.Scheduler
	if s.DebounceSeconds <= 0 {
		s.DebounceSeconds = 15
	}
	if s.HistoryLimit <= 0 {
		s.HistoryLimit = 50
	}
	return nil
}
