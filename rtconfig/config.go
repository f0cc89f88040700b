// Package rtconfig loads the runtime's configuration from environment
// variables, per spec.md §6, applying the documented defaults and
// validating the llm_api_format token against the known set.
package rtconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every configuration key the core runtime consumes.
type Config struct {
	DataRoot      string
	DebounceMs    int
	IdleTimeoutMs int
	LlmAPIFormat  string
	LlmModel      string
	LlmBaseURL    string
	LlmAPIKeyEnv  string
}

const (
	envDataRoot      = "MINI_AGENT_DATA_ROOT"
	envDebounceMs    = "MINI_AGENT_DEBOUNCE_MS"
	envIdleTimeoutMs = "MINI_AGENT_IDLE_TIMEOUT_MS"
	envLlmAPIFormat  = "MINI_AGENT_LLM_API_FORMAT"
	envLlmModel      = "MINI_AGENT_LLM_MODEL"
	envLlmBaseURL    = "MINI_AGENT_LLM_BASE_URL"
	envLlmAPIKeyEnv  = "MINI_AGENT_LLM_API_KEY_ENV"

	defaultDataRoot      = ".mini-agent"
	defaultDebounceMs    = 10
	defaultIdleTimeoutMs = 50
)

// knownAPIFormats is the set of llm_api_format tokens spec.md §6
// recognizes. "" and "mock" are always accepted as the built-in oracle.
var knownAPIFormats = map[string]bool{
	"":                        true,
	"mock":                    true,
	"openai-responses":        true,
	"openai-chat-completions": true,
	"anthropic":               true,
	"gemini":                  true,
}

// Default returns a Config populated with spec.md §6's documented
// defaults and no LLM provider configured (the mock oracle).
func Default() Config {
	return Config{
		DataRoot:      defaultDataRoot,
		DebounceMs:    defaultDebounceMs,
		IdleTimeoutMs: defaultIdleTimeoutMs,
	}
}

// loadDotEnv loads a local .env file into the process environment:
// current directory first, then one level up, so a run from a
// subdirectory still finds a project-root .env. Variables already set
// in the environment are never overridden. A missing file at every
// candidate path is not an error: most deployments configure the
// environment directly.
func loadDotEnv() {
	candidates := []string{".env", filepath.Join("..", ".env")}
	for _, path := range candidates {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

// FromEnv loads a Config from the MINI_AGENT_* environment variables,
// falling back to Default()'s values for anything unset. It first loads
// a local .env file, if present, without overriding variables already
// set in the process environment.
func FromEnv() (Config, error) {
	loadDotEnv()
	cfg := Default()

	if v := os.Getenv(envDataRoot); v != "" {
		cfg.DataRoot = v
	}
	if v, err := envInt(envDebounceMs); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.DebounceMs = *v
	}
	if v, err := envInt(envIdleTimeoutMs); err != nil {
		return cfg, err
	} else if v != nil {
		cfg.IdleTimeoutMs = *v
	}

	cfg.LlmAPIFormat = os.Getenv(envLlmAPIFormat)
	cfg.LlmModel = os.Getenv(envLlmModel)
	cfg.LlmBaseURL = os.Getenv(envLlmBaseURL)
	cfg.LlmAPIKeyEnv = os.Getenv(envLlmAPIKeyEnv)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field-level invariants after defaults have been
// applied: every field is checked exactly once.
func (c Config) Validate() error {
	if c.DebounceMs < 0 {
		return fmt.Errorf("rtconfig: %s must be >= 0, got %d", envDebounceMs, c.DebounceMs)
	}
	if c.IdleTimeoutMs < 0 {
		return fmt.Errorf("rtconfig: %s must be >= 0, got %d", envIdleTimeoutMs, c.IdleTimeoutMs)
	}
	if !knownAPIFormats[c.LlmAPIFormat] {
		return fmt.Errorf("rtconfig: unrecognized %s %q", envLlmAPIFormat, c.LlmAPIFormat)
	}
	return nil
}

// ResolveAPIKey reads the API key from the environment variable named by
// LlmAPIKeyEnv, per spec.md §6 ("API keys read from the configured
// env-var name"). It returns "" if no env var name is configured.
func (c Config) ResolveAPIKey() string {
	if c.LlmAPIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.LlmAPIKeyEnv)
}

func envInt(name string) (*int, error) {
	v := os.Getenv(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("rtconfig: %s must be an integer, got %q: %w", name, v, err)
	}
	return &n, nil
}
