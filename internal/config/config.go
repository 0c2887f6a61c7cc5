// Package config provides application configuration management with support
// for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Server    ServerConfig
	Schema    SchemaConfig
	Store     StoreConfig
	Matcher   MatcherConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Learning  LearningConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Name         string
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 15s)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
}

// SchemaConfig holds target schema registry configuration.
type SchemaConfig struct {
	// Dir contains the target schema JSON files, one per entity.
	Dir string
	// Watch enables fsnotify invalidation when schema files change.
	Watch bool
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	// DataPath is the base directory for the badger store, the correction
	// log database, and the lexical search index.
	DataPath string
}

// MatcherConfig holds the confidence thresholds for the mapping pipeline.
// Thresholds live in config, not in code, so tuning does not require a
// rebuild.
type MatcherConfig struct {
	// High accepts an alias-tier candidate outright (default 0.85).
	High float64
	// Medium accepts a semantic candidate as a standalone match (default 0.70).
	Medium float64
	// LLMFloor is the bottom of the ambiguous band that seeds LLM
	// escalation (default 0.40).
	LLMFloor float64
	// Min is the floor for the fuzzy fallback tier (default 0.70).
	Min float64
	// LLMAccept is the minimum reasoner confidence to accept (default 0.60).
	LLMAccept float64
	// AlternativeCount is how many runner-ups each mapping carries (default 3).
	AlternativeCount int
	// Workers bounds the per-field scoring fan-out (default 8).
	Workers int
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	// Enabled turns the semantic tier on (default: true when Endpoint set).
	Enabled bool
	// Endpoint is the base URL of the embedding API.
	Endpoint string
	// Model is the embedding model name, part of every cache key.
	Model string
	// APIKey authenticates against the provider, if required.
	APIKey string
	// Timeout bounds a single embed call (default: 2s).
	Timeout time.Duration
	// RPS rate-limits outbound calls (default: 5).
	RPS float64
}

// LLMConfig holds the escalation reasoner configuration.
type LLMConfig struct {
	// Enabled turns the LLM escalation tier on (default: false).
	Enabled bool
	// Endpoint is the base URL of the chat-completions API.
	Endpoint string
	// Model is the reasoner model name.
	Model string
	// APIKey authenticates against the provider, if required.
	APIKey string
	// Timeout is the hard per-call deadline (default: 2s).
	Timeout time.Duration
	// CacheTTL bounds how long a verdict is reused (default: 24h).
	CacheTTL time.Duration
	// RPS rate-limits outbound calls (default: 2).
	RPS float64
}

// LearningConfig holds active-learning promotion configuration.
type LearningConfig struct {
	// MinCorrections is how many agreeing corrections promote a rule (default: 3).
	MinCorrections int
	// AgreementThreshold is the plurality share required (default: 0.80).
	AgreementThreshold float64
	// PromoteInterval is the period of the background promotion scan.
	// Zero disables the background job; promotions still run on submit.
	PromoteInterval time.Duration
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Base path for persistent state")
	schemaDir := flag.String("schema-dir", "", "Directory containing target schema JSON files")
	schemaWatch := flag.String("schema-watch", "", "Watch schema dir for changes (default: true)")
	serverName := flag.String("server-name", "", "Name for the server")
	serverPort := flag.String("port", "", "Server port (default: 8080)")
	readTimeout := flag.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := flag.String("write-timeout", "", "HTTP write timeout (default: 15s)")
	idleTimeout := flag.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")

	embeddingEndpoint := flag.String("embedding-endpoint", "", "Embedding provider base URL")
	embeddingModel := flag.String("embedding-model", "", "Embedding model name")
	embeddingTimeout := flag.String("embedding-timeout", "", "Embedding call timeout (default: 2s)")

	llmEnabled := flag.String("llm-enabled", "", "Enable LLM escalation tier (default: false)")
	llmEndpoint := flag.String("llm-endpoint", "", "LLM reasoner base URL")
	llmModel := flag.String("llm-model", "", "LLM reasoner model name")
	llmTimeout := flag.String("llm-timeout", "", "LLM call timeout (default: 2s)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	// Parse flags but don't exit on error - we want to handle it gracefully.
	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Name: getConfigValue(*serverName, "SERVER_NAME", "FieldMap Server"),
			Port: getConfigValue(*serverPort, "SERVER_PORT", "8080"),
		},
		Schema: SchemaConfig{
			Dir:   getConfigValue(*schemaDir, "SCHEMA_DIR", ""),
			Watch: getBoolConfigValue(*schemaWatch, "SCHEMA_WATCH", true),
		},
		Store: StoreConfig{
			DataPath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Matcher: MatcherConfig{
			High:             getFloatConfigValue("", "MATCHER_HIGH", 0.85),
			Medium:           getFloatConfigValue("", "MATCHER_MEDIUM", 0.70),
			LLMFloor:         getFloatConfigValue("", "MATCHER_LLM_FLOOR", 0.40),
			Min:              getFloatConfigValue("", "MATCHER_MIN", 0.70),
			LLMAccept:        getFloatConfigValue("", "MATCHER_LLM_ACCEPT", 0.60),
			AlternativeCount: getIntConfigValue("", "MATCHER_ALTERNATIVES", 3),
			Workers:          getIntConfigValue("", "MATCHER_WORKERS", 8),
		},
		Embedding: EmbeddingConfig{
			Endpoint: getConfigValue(*embeddingEndpoint, "EMBEDDING_ENDPOINT", ""),
			Model:    getConfigValue(*embeddingModel, "EMBEDDING_MODEL", "text-embedding-3-small"),
			APIKey:   getConfigValue("", "EMBEDDING_API_KEY", ""),
			RPS:      getFloatConfigValue("", "EMBEDDING_RPS", 5),
		},
		LLM: LLMConfig{
			Enabled:  getBoolConfigValue(*llmEnabled, "LLM_ENABLED", false),
			Endpoint: getConfigValue(*llmEndpoint, "LLM_ENDPOINT", ""),
			Model:    getConfigValue(*llmModel, "LLM_MODEL", ""),
			APIKey:   getConfigValue("", "LLM_API_KEY", ""),
			RPS:      getFloatConfigValue("", "LLM_RPS", 2),
		},
		Learning: LearningConfig{
			MinCorrections:     getIntConfigValue("", "LEARNING_MIN_CORRECTIONS", 3),
			AgreementThreshold: getFloatConfigValue("", "LEARNING_AGREEMENT", 0.80),
		},
	}

	// The semantic tier is on whenever a provider endpoint is configured.
	cfg.Embedding.Enabled = getBoolConfigValue("", "EMBEDDING_ENABLED", cfg.Embedding.Endpoint != "")

	// Parse durations.
	var err error
	if cfg.Server.ReadTimeout, err = parseDurationValue(*readTimeout, "SERVER_READ_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.WriteTimeout, err = parseDurationValue(*writeTimeout, "SERVER_WRITE_TIMEOUT", "15s"); err != nil {
		return nil, err
	}
	if cfg.Server.IdleTimeout, err = parseDurationValue(*idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"); err != nil {
		return nil, err
	}
	if cfg.Embedding.Timeout, err = parseDurationValue(*embeddingTimeout, "EMBEDDING_TIMEOUT", "2s"); err != nil {
		return nil, err
	}
	if cfg.LLM.Timeout, err = parseDurationValue(*llmTimeout, "LLM_TIMEOUT", "2s"); err != nil {
		return nil, err
	}
	if cfg.LLM.CacheTTL, err = parseDurationValue("", "LLM_CACHE_TTL", "24h"); err != nil {
		return nil, err
	}
	if cfg.Learning.PromoteInterval, err = parseDurationValue("", "LEARNING_PROMOTE_INTERVAL", "5m"); err != nil {
		return nil, err
	}

	// Expand and validate storage and schema paths.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}
	if err := cfg.expandSchemaDir(); err != nil {
		return nil, fmt.Errorf("invalid schema dir: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Store.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	if c.LLM.Enabled && c.LLM.Endpoint == "" {
		return errors.New("LLM_ENDPOINT is required when LLM escalation is enabled")
	}

	for name, v := range map[string]float64{
		"MATCHER_HIGH":       c.Matcher.High,
		"MATCHER_MEDIUM":     c.Matcher.Medium,
		"MATCHER_LLM_FLOOR":  c.Matcher.LLMFloor,
		"MATCHER_MIN":        c.Matcher.Min,
		"MATCHER_LLM_ACCEPT": c.Matcher.LLMAccept,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
	}
	if c.Matcher.LLMFloor > c.Matcher.Medium {
		return fmt.Errorf("MATCHER_LLM_FLOOR (%v) must not exceed MATCHER_MEDIUM (%v)", c.Matcher.LLMFloor, c.Matcher.Medium)
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute.
// Defaults to ~/fieldmap/data.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "fieldmap", "data")

	expanded, err := expandPath(c.Store.DataPath, defaultPath)
	if err != nil {
		return err
	}
	c.Store.DataPath = expanded
	return nil
}

// expandSchemaDir expands ~ and makes the path absolute.
// Defaults to {data}/schemas when unset.
func (c *Config) expandSchemaDir() error {
	defaultPath := filepath.Join(c.Store.DataPath, "schemas")

	expanded, err := expandPath(c.Schema.Dir, defaultPath)
	if err != nil {
		return err
	}
	c.Schema.Dir = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float64 from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

// parseDurationValue parses a duration from flag, env var, or default.
func parseDurationValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return d, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		// Env vars take precedence over .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
