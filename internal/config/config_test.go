package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark-chris/threatc/internal/llm"
	"github.com/mark-chris/threatc/internal/store"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	cfg.Finalize()

	if cfg.Compiler.SimilarityThreshold != 0.6 || cfg.Compiler.TestCaseThreshold != 5 {
		t.Errorf("compiler defaults = %+v", cfg.Compiler)
	}
	if cfg.Agents.Retries != 2 || cfg.Compiler.DreadRetries != 2 {
		t.Errorf("retry defaults = %d/%d, want 2/2", cfg.Agents.Retries, cfg.Compiler.DreadRetries)
	}
	if cfg.LLM.Provider != llm.ProviderOffline {
		t.Errorf("provider without key = %q, want offline", cfg.LLM.Provider)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"THREATC_KNOWLEDGE_DIR":        "/srv/kb",
		"OPENAI_API_KEY":               "sk-fallback",
		"THREATC_LLM_API_KEY":          "sk-primary",
		"THREATC_LLM_TIMEOUT":          "90s",
		"THREATC_SIMILARITY_THRESHOLD": "0.75",
		"THREATC_DREAD_WORKERS":        "8",
		"THREATC_STORE_DRIVER":         "sqlite",
		"THREATC_LOG_FORMAT":           "json",
		"THREATC_HTTP_ADDR":            "   ",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	cfg.Finalize()

	if cfg.KnowledgeDir != "/srv/kb" {
		t.Errorf("KnowledgeDir = %q", cfg.KnowledgeDir)
	}
	if cfg.LLM.APIKey != "sk-primary" || cfg.LLM.Provider != llm.ProviderOpenAI {
		t.Errorf("llm = %+v, want the THREATC key and openai", cfg.LLM)
	}
	if cfg.LLM.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v", cfg.LLM.Timeout)
	}
	if cfg.Compiler.SimilarityThreshold != 0.75 || cfg.Compiler.DreadWorkers != 8 {
		t.Errorf("compiler = %+v", cfg.Compiler)
	}
	if cfg.Store.Driver != store.DriverSQLite || cfg.Log.Format != "json" {
		t.Errorf("store/log = %+v/%+v", cfg.Store, cfg.Log)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("blank variable overrode Addr: %q", cfg.Server.Addr)
	}
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"THREATC_DREAD_RETRIES":       "many",
		"THREATC_TEST_CASE_THRESHOLD": "high",
		"THREATC_LLM_TIMEOUT":         "soon",
	}))
	if err == nil {
		t.Fatal("ApplyEnv() accepted invalid values")
	}
	for _, key := range []string{"THREATC_DREAD_RETRIES", "THREATC_TEST_CASE_THRESHOLD", "THREATC_LLM_TIMEOUT"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error does not name %s: %v", key, err)
		}
	}
	if cfg.Compiler.DreadRetries != 2 {
		t.Errorf("invalid value changed DreadRetries to %d", cfg.Compiler.DreadRetries)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "threatc.yaml")
	content := `knowledge_dir: ./kb
llm:
  provider: ollama
  model: llama3
  timeout: 2m
compiler:
  similarity_threshold: 0.5
  test_case_threshold: 7
store:
  driver: postgres
  dsn: postgres://localhost/threatc
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Chdir(dir)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.KnowledgeDir != "./kb" || cfg.LLM.Provider != llm.ProviderOllama || cfg.LLM.Timeout != 2*time.Minute {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Compiler.SimilarityThreshold != 0.5 || cfg.Compiler.TestCaseThreshold != 7 {
		t.Errorf("compiler = %+v", cfg.Compiler)
	}
	// keys absent from the file keep their defaults
	if cfg.Compiler.DreadRetries != 2 || cfg.Log.Format != "console" {
		t.Errorf("defaults lost: %+v %+v", cfg.Compiler, cfg.Log)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load() accepted a missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	os.WriteFile(bad, []byte("compiler: [oops"), 0644)
	if _, err := Load(bad); err == nil {
		t.Error("Load() accepted malformed YAML")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	os.WriteFile(invalid, []byte("compiler:\n  similarity_threshold: 1.5\nstore:\n  driver: mongo\n"), 0644)
	_, err := Load(invalid)
	if err == nil || !strings.Contains(err.Error(), "similarity_threshold") || !strings.Contains(err.Error(), "mongo") {
		t.Errorf("Load() error = %v, want both validation problems", err)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	os.WriteFile(filepath.Join(dir, ".env"), []byte("THREATC_LOG_LEVEL=warn\n"), 0644)
	t.Setenv("THREATC_LOG_LEVEL", "")
	os.Unsetenv("THREATC_LOG_LEVEL")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn from .env", cfg.Log.Level)
	}
}

func TestAgentOptions(t *testing.T) {
	cfg := Default()
	cfg.Agents.Retries = 4
	cfg.Agents.PromptTokens = 100
	cfg.LLM.Timeout = 5 * time.Second

	opts := cfg.AgentOptions()
	if opts.Retries != 4 || opts.PromptTokens != 100 || opts.Timeout != 5*time.Second {
		t.Errorf("AgentOptions() = %+v", opts)
	}
}
