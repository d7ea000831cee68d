package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the hscodex API configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Database     DatabaseConfig     `yaml:"database"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Completion   CompletionConfig   `yaml:"completion"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Conversation ConversationConfig `yaml:"conversation"`
	Rules        RulesConfig        `yaml:"rules"`
	Auth         AuthConfig         `yaml:"auth"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	IndexName string `yaml:"index_name"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	Model            string `yaml:"model"`
	Dimensions       int    `yaml:"dimensions"`
	QueryInstruction string `yaml:"query_instruction"`
	CacheEnabled     *bool  `yaml:"cache_enabled"`
}

// CompletionConfig holds completion provider settings.
type CompletionConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
	MaxTokens  int    `yaml:"max_tokens"`
}

// PipelineConfig exposes the classification calibration constants. The
// defaults reproduce the tuning of the taxonomy this service ships with and
// should not be assumed to generalize to other code trees.
type PipelineConfig struct {
	SimilarityFloor     float64 `yaml:"similarity_floor"`      // min normalized cosine similarity
	RelevanceFloor      int     `yaml:"relevance_floor"`       // 0-100, drop below as false positives
	RelevanceEnabled    *bool   `yaml:"relevance_enabled"`     // completion-service relevance filtering
	RelevanceParallel   int     `yaml:"relevance_parallelism"` // bounded completion fan-out
	VectorTopK          int     `yaml:"vector_top_k"`
	ChildDecay          float64 `yaml:"child_decay"`      // hierarchy expansion score decay
	DescendantDecay     float64 `yaml:"descendant_decay"` // deeper descendant decay
	ExpandDescendants   *bool   `yaml:"expand_descendants"`
	ContextPenalty      float64 `yaml:"context_penalty"` // context-only match multiplier
	SubjectBoost        float64 `yaml:"subject_boost"`   // primary-subject match multiplier
	CatchAllCeiling     int     `yaml:"catchall_ceiling"`
	CatchAllSwapPenalty int     `yaml:"catchall_swap_penalty"`
	MaxAlternatives     int     `yaml:"max_alternatives"`
}

// ConversationConfig holds multi-turn clarification settings.
type ConversationConfig struct {
	ConfidenceThreshold int `yaml:"confidence_threshold"` // below this, ask questions
	MaxQuestions        int `yaml:"max_questions"`        // per turn
	MaxTurns            int `yaml:"max_turns"`
	TTLHours            int `yaml:"ttl_hours"` // conversation persistence TTL
}

// RulesConfig holds rule-set loading settings.
type RulesConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60 // classification waits on slow completion calls
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.IndexName == "" {
		c.Storage.IndexName = "hscodex:entries:idx"
	}
	if c.Embedding.CacheEnabled == nil {
		c.Embedding.CacheEnabled = boolPtr(true)
	}
	if c.Completion.TimeoutSec <= 0 {
		c.Completion.TimeoutSec = 15
	}
	if c.Completion.MaxTokens <= 0 {
		c.Completion.MaxTokens = 512
	}

	if c.Pipeline.SimilarityFloor <= 0 {
		c.Pipeline.SimilarityFloor = 0.3
	}
	if c.Pipeline.RelevanceFloor <= 0 {
		c.Pipeline.RelevanceFloor = 50
	}
	if c.Pipeline.RelevanceEnabled == nil {
		c.Pipeline.RelevanceEnabled = boolPtr(true)
	}
	if c.Pipeline.RelevanceParallel <= 0 {
		c.Pipeline.RelevanceParallel = 4
	}
	if c.Pipeline.VectorTopK <= 0 {
		c.Pipeline.VectorTopK = 20
	}
	if c.Pipeline.ChildDecay <= 0 {
		c.Pipeline.ChildDecay = 0.85
	}
	if c.Pipeline.DescendantDecay <= 0 {
		c.Pipeline.DescendantDecay = 0.7
	}
	if c.Pipeline.ExpandDescendants == nil {
		c.Pipeline.ExpandDescendants = boolPtr(false)
	}
	if c.Pipeline.ContextPenalty <= 0 {
		c.Pipeline.ContextPenalty = 0.6
	}
	if c.Pipeline.SubjectBoost <= 0 {
		c.Pipeline.SubjectBoost = 1.25
	}
	if c.Pipeline.CatchAllCeiling <= 0 {
		c.Pipeline.CatchAllCeiling = 85
	}
	if c.Pipeline.CatchAllSwapPenalty <= 0 {
		c.Pipeline.CatchAllSwapPenalty = 5
	}
	if c.Pipeline.MaxAlternatives <= 0 {
		c.Pipeline.MaxAlternatives = 3
	}

	if c.Conversation.ConfidenceThreshold <= 0 {
		c.Conversation.ConfidenceThreshold = 85
	}
	if c.Conversation.MaxQuestions <= 0 {
		c.Conversation.MaxQuestions = 3
	}
	if c.Conversation.MaxTurns <= 0 {
		c.Conversation.MaxTurns = 3
	}
	if c.Conversation.TTLHours <= 0 {
		c.Conversation.TTLHours = 24
	}

	if c.Rules.Dir == "" {
		c.Rules.Dir = "rulesets"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Pipeline.SimilarityFloor >= 1 {
		return fmt.Errorf("pipeline.similarity_floor must be below 1, got %g", c.Pipeline.SimilarityFloor)
	}
	if c.Pipeline.RelevanceFloor > 100 {
		return fmt.Errorf("pipeline.relevance_floor must be at most 100, got %d", c.Pipeline.RelevanceFloor)
	}
	if c.Pipeline.ChildDecay > 1 || c.Pipeline.DescendantDecay > 1 {
		return fmt.Errorf("hierarchy decay factors must be at most 1")
	}
	if c.Conversation.ConfidenceThreshold > 100 {
		return fmt.Errorf("conversation.confidence_threshold must be at most 100, got %d",
			c.Conversation.ConfidenceThreshold)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
