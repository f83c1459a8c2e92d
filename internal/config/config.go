package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Driver names accepted by the "driver" key.
const (
	DriverDocker = "docker"
	DriverE2B    = "e2b"
)

type DockerConfig struct {
	Image       string  `yaml:"image"`
	CPULimit    float64 `yaml:"cpu_limit"`
	MemLimitMB  int     `yaml:"mem_limit_mb"`
	PidsLimit   int     `yaml:"pids_limit"`
	NetworkMode string  `yaml:"network_mode"`
}

type E2BConfig struct {
	APIKey   string `yaml:"api_key"`
	APIURL   string `yaml:"api_url"`
	Domain   string `yaml:"domain"`
	Template string `yaml:"template"`
}

// ContextConfig bounds the workspace digest handed to the model.
type ContextConfig struct {
	MaxFiles          int `yaml:"max_files"`
	SnippetChars      int `yaml:"snippet_chars"`
	TotalSnippetChars int `yaml:"total_snippet_chars"`
}

type IngestConfig struct {
	FetchTimeoutMs int   `yaml:"fetch_timeout_ms"`
	MaxBytes       int64 `yaml:"max_bytes"`
}

type PoolConfig struct {
	Size int `yaml:"size"` // 0 disables the warm pool
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

type Config struct {
	Listen                 string        `yaml:"listen"`
	APIKey                 string        `yaml:"api_key"`
	DBPath                 string        `yaml:"db_path"`
	Driver                 string        `yaml:"driver"`
	SandboxTTLSeconds      int           `yaml:"sandbox_ttl_seconds"`
	MinRemainingTTLSeconds int           `yaml:"min_remaining_ttl_seconds"`
	WorkspaceBase          string        `yaml:"workspace_base"`
	ReaperIntervalSeconds  int           `yaml:"reaper_interval_seconds"`
	Context                ContextConfig `yaml:"context"`
	Ingest                 IngestConfig  `yaml:"ingest"`
	Pool                   PoolConfig    `yaml:"pool"`
	Log                    LogConfig     `yaml:"log"`
	Docker                 DockerConfig  `yaml:"docker"`
	E2B                    E2BConfig     `yaml:"e2b"`
}

// SandboxTTL is the lifetime requested for every created or extended sandbox.
func (c *Config) SandboxTTL() time.Duration {
	return time.Duration(c.SandboxTTLSeconds) * time.Second
}

func (c *Config) MinRemainingTTL() time.Duration {
	return time.Duration(c.MinRemainingTTLSeconds) * time.Second
}

func (c *Config) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalSeconds) * time.Second
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Ingest.FetchTimeoutMs) * time.Millisecond
}

func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		Listen:                 "127.0.0.1:8080",
		DBPath:                 "./werkbank.db",
		Driver:                 DriverDocker,
		SandboxTTLSeconds:      3600,
		MinRemainingTTLSeconds: 60,
		WorkspaceBase:          "/home/user/workspace",
		ReaperIntervalSeconds:  30,
		Context: ContextConfig{
			MaxFiles:          20,
			SnippetChars:      280,
			TotalSnippetChars: 2400,
		},
		Ingest: IngestConfig{
			FetchTimeoutMs: 15000,
			MaxBytes:       10 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Docker: DockerConfig{
			Image:       "python:3.12-slim",
			CPULimit:    1.0,
			MemLimitMB:  512,
			PidsLimit:   256,
			NetworkMode: "none",
		},
		E2B: E2BConfig{
			APIURL:   "https://api.e2b.app",
			Domain:   "e2b.app",
			Template: "base",
		},
	}

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverDocker, DriverE2B:
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if c.SandboxTTLSeconds <= 0 {
		return fmt.Errorf("sandbox_ttl_seconds must be positive")
	}
	if c.MinRemainingTTLSeconds < 0 || c.MinRemainingTTLSeconds >= c.SandboxTTLSeconds {
		return fmt.Errorf("min_remaining_ttl_seconds must be in [0, sandbox_ttl_seconds)")
	}
	if c.ReaperIntervalSeconds <= 0 {
		return fmt.Errorf("reaper_interval_seconds must be positive")
	}
	if c.Ingest.FetchTimeoutMs <= 0 {
		return fmt.Errorf("ingest.fetch_timeout_ms must be positive")
	}
	if c.Ingest.MaxBytes <= 0 {
		return fmt.Errorf("ingest.max_bytes must be positive")
	}
	if c.Context.MaxFiles <= 0 || c.Context.SnippetChars <= 0 || c.Context.TotalSnippetChars <= 0 {
		return fmt.Errorf("context limits must be positive")
	}
	if c.WorkspaceBase == "" || c.WorkspaceBase[0] != '/' {
		return fmt.Errorf("workspace_base must be an absolute path")
	}
	if c.Driver == DriverE2B && c.E2B.APIKey == "" {
		return fmt.Errorf("e2b.api_key is required for the e2b driver")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WERKBANK_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("WERKBANK_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("WERKBANK_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("WERKBANK_DRIVER"); v != "" {
		cfg.Driver = v
	}
	if v := os.Getenv("WERKBANK_SANDBOX_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SandboxTTLSeconds = n
		}
	}
	if v := os.Getenv("WERKBANK_MIN_REMAINING_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinRemainingTTLSeconds = n
		}
	}
	if v := os.Getenv("WERKBANK_WORKSPACE_BASE"); v != "" {
		cfg.WorkspaceBase = v
	}
	if v := os.Getenv("WERKBANK_REAPER_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReaperIntervalSeconds = n
		}
	}
	if v := os.Getenv("WERKBANK_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.Size = n
		}
	}
	if v := os.Getenv("WERKBANK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("WERKBANK_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("WERKBANK_DOCKER_IMAGE"); v != "" {
		cfg.Docker.Image = v
	}
	if v := os.Getenv("WERKBANK_CPU_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Docker.CPULimit = f
		}
	}
	if v := os.Getenv("WERKBANK_MEM_LIMIT_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Docker.MemLimitMB = n
		}
	}
	if v := os.Getenv("WERKBANK_NETWORK_MODE"); v != "" {
		cfg.Docker.NetworkMode = v
	}
	if v := os.Getenv("WERKBANK_E2B_API_KEY"); v != "" {
		cfg.E2B.APIKey = v
	} else if v := os.Getenv("E2B_API_KEY"); v != "" {
		cfg.E2B.APIKey = v
	}
	if v := os.Getenv("WERKBANK_E2B_API_URL"); v != "" {
		cfg.E2B.APIURL = v
	}
	if v := os.Getenv("WERKBANK_E2B_DOMAIN"); v != "" {
		cfg.E2B.Domain = v
	}
	if v := os.Getenv("WERKBANK_E2B_TEMPLATE"); v != "" {
		cfg.E2B.Template = v
	}
}
