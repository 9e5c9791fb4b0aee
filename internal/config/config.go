// Package config resolves threatc settings. Sources apply in order: built-in
// defaults, an optional YAML file, a .env file, THREATC_* environment
// variables, and finally command-line flags bound by the cli package.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mark-chris/threatc/internal/agents"
	"github.com/mark-chris/threatc/internal/compiler"
	"github.com/mark-chris/threatc/internal/llm"
	"github.com/mark-chris/threatc/internal/store"
)

// DefaultFile is read when no config path is given and it exists
const DefaultFile = "threatc.yaml"

// Config is the complete runtime configuration
type Config struct {
	KnowledgeDir string          `yaml:"knowledge_dir"`
	LLM          llm.Config      `yaml:"llm"`
	Agents       AgentConfig     `yaml:"agents"`
	Compiler     compiler.Config `yaml:"compiler"`
	Store        store.Config    `yaml:"store"`
	Server       ServerConfig    `yaml:"server"`
	Log          LogConfig       `yaml:"log"`
}

// AgentConfig tunes every agent invocation
type AgentConfig struct {
	Retries      int `yaml:"retries"`
	PromptTokens int `yaml:"prompt_tokens"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig selects the logger
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration
func Default() *Config {
	ao := agents.DefaultOptions()
	return &Config{
		KnowledgeDir: "knowledge",
		LLM: llm.Config{
			Timeout:        llm.DefaultTimeout,
			Temperature:    ao.Temperature,
			MaxTokens:      4096,
			MaxAttempts:    3,
			InitialBackoff: time.Second,
		},
		Agents: AgentConfig{
			Retries:      ao.Retries,
			PromptTokens: ao.PromptTokens,
		},
		Compiler: compiler.DefaultConfig(),
		Store:    store.Config{Driver: store.DriverMemory},
		Server:   ServerConfig{Addr: ":8080"},
		Log:      LogConfig{Level: "info", Format: "console"},
	}
}

// Load resolves configuration from path (or DefaultFile when path is empty),
// .env and the process environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	file := path
	if file == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			file = DefaultFile
		}
	}
	if file != "" {
		if err := cfg.loadFile(file); err != nil {
			return nil, err
		}
	}

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.Finalize()
	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from THREATC_* variables read through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str("THREATC_KNOWLEDGE_DIR", &c.KnowledgeDir)

	e.str("THREATC_LLM_PROVIDER", &c.LLM.Provider)
	e.str("THREATC_LLM_MODEL", &c.LLM.Model)
	e.str("THREATC_LLM_BASE_URL", &c.LLM.BaseURL)
	e.str("OPENAI_API_KEY", &c.LLM.APIKey)
	e.str("THREATC_LLM_API_KEY", &c.LLM.APIKey)
	e.duration("THREATC_LLM_TIMEOUT", &c.LLM.Timeout)
	e.float("THREATC_LLM_TEMPERATURE", &c.LLM.Temperature)
	e.integer("THREATC_LLM_MAX_TOKENS", &c.LLM.MaxTokens)
	e.integer("THREATC_LLM_MAX_ATTEMPTS", &c.LLM.MaxAttempts)

	e.integer("THREATC_AGENT_RETRIES", &c.Agents.Retries)
	e.integer("THREATC_PROMPT_TOKENS", &c.Agents.PromptTokens)

	e.float("THREATC_SIMILARITY_THRESHOLD", &c.Compiler.SimilarityThreshold)
	e.float("THREATC_TEST_CASE_THRESHOLD", &c.Compiler.TestCaseThreshold)
	e.integer("THREATC_DREAD_RETRIES", &c.Compiler.DreadRetries)
	e.integer("THREATC_DREAD_WORKERS", &c.Compiler.DreadWorkers)

	e.str("THREATC_STORE_DRIVER", &c.Store.Driver)
	e.str("THREATC_STORE_DSN", &c.Store.DSN)

	e.str("THREATC_HTTP_ADDR", &c.Server.Addr)

	e.str("THREATC_LOG_LEVEL", &c.Log.Level)
	e.str("THREATC_LOG_FORMAT", &c.Log.Format)

	return errors.Join(e.errs...)
}

// Finalize fills settings that depend on other settings. Without a provider,
// a configured API key selects openai and anything else runs offline.
func (c *Config) Finalize() {
	if c.LLM.Provider == "" {
		if c.LLM.APIKey != "" {
			c.LLM.Provider = llm.ProviderOpenAI
		} else {
			c.LLM.Provider = llm.ProviderOffline
		}
	}
	if c.LLM.Model == "" && c.LLM.Provider == llm.ProviderOpenAI {
		c.LLM.Model = "gpt-4o-mini"
	}
}

// Validate reports settings that can never work
func (c *Config) Validate() error {
	var errs []error
	if c.KnowledgeDir == "" {
		errs = append(errs, errors.New("knowledge_dir must not be empty"))
	}
	if t := c.Compiler.SimilarityThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("compiler.similarity_threshold must be in (0, 1], got %v", t))
	}
	if t := c.Compiler.TestCaseThreshold; t < 0 || t > 10 {
		errs = append(errs, fmt.Errorf("compiler.test_case_threshold must be in [0, 10], got %v", t))
	}
	if c.Agents.Retries < 0 {
		errs = append(errs, fmt.Errorf("agents.retries must not be negative, got %d", c.Agents.Retries))
	}
	switch c.Store.Driver {
	case "", store.DriverMemory, store.DriverSQLite:
	case store.DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	return errors.Join(errs...)
}

// AgentOptions derives the agent settings
func (c *Config) AgentOptions() agents.Options {
	opts := agents.DefaultOptions()
	opts.Retries = c.Agents.Retries
	opts.PromptTokens = c.Agents.PromptTokens
	opts.Temperature = c.LLM.Temperature
	if c.LLM.Timeout > 0 {
		opts.Timeout = c.LLM.Timeout
	}
	return opts
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	if v, ok := e.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) float(key string, dst *float64) {
	if v, ok := e.get(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) duration(key string, dst *time.Duration) {
	if v, ok := e.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
}
