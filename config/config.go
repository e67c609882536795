package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine.
type Config struct {
	Corpus     CorpusConfig     `yaml:"corpus"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Generation GenerationConfig `yaml:"generation"`
	Personas   PersonasConfig   `yaml:"personas"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CorpusConfig selects which note files are indexed.
type CorpusConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "ollama", "openai", "mock"
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"` // environment variable holding the API key
}

// ChunkingConfig controls document splitting. Sizes are in characters.
type ChunkingConfig struct {
	TargetSize int `yaml:"target_size"`
	Overlap    int `yaml:"overlap"`
}

// RetrieveConfig controls similarity search.
type RetrieveConfig struct {
	TopK     int     `yaml:"top_k"`
	MinScore float64 `yaml:"min_score"` // hits below this score are discarded (0 = keep all)
}

// GenerationConfig selects the text-generation service that phrases answers.
type GenerationConfig struct {
	Provider         string       `yaml:"provider"` // "ollama", "openai"
	Model            string       `yaml:"model"`
	BaseURL          string       `yaml:"base_url"`
	APIKeyEnv        string       `yaml:"api_key_env"`
	StripReasoning   bool         `yaml:"strip_reasoning"`
	ReasoningMarkers []MarkerPair `yaml:"reasoning_markers"`
}

// MarkerPair delimits a reasoning section in model output.
type MarkerPair struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// PersonasConfig seeds the persona store.
type PersonasConfig struct {
	Active  string            `yaml:"active"`
	Prompts map[string]string `yaml:"prompts"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration: a local Ollama server for
// both embedding and generation, markdown-only corpus.
func DefaultConfig() *Config {
	return &Config{
		Corpus: CorpusConfig{
			Includes: []string{"**/*.md", "**/*.markdown", "**/*.txt"},
			Excludes: []string{"**/.git/**", "**/.noterag/**", "**/node_modules/**"},
		},
		Embedding: EmbeddingConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			BaseURL:   "http://localhost:11434",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Chunking: ChunkingConfig{
			TargetSize: 1000,
			Overlap:    100,
		},
		Retrieve: RetrieveConfig{
			TopK:     4,
			MinScore: 0.25,
		},
		Generation: GenerationConfig{
			Provider:       "ollama",
			Model:          "llama3.2",
			BaseURL:        "http://localhost:11434",
			APIKeyEnv:      "OPENAI_API_KEY",
			StripReasoning: true,
		},
		Personas: PersonasConfig{
			Active: "default",
			Prompts: map[string]string{
				"default": "You are a careful assistant answering questions about the user's personal notes.",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, over defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a vault directory (noterag.yaml or
// .noterag/config.yaml), falling back to defaults.
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "noterag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".noterag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// SnapshotPath returns the embeddings snapshot location for a vault.
func SnapshotPath(dir string) string {
	return filepath.Join(dir, ".noterag", "embeddings.json")
}

// CachePath returns the embedding cache database location for a vault.
func CachePath(dir string) string {
	return filepath.Join(dir, ".noterag", "cache.db")
}

// EnsureDataDir creates the .noterag directory for a vault.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".noterag"), 0o755)
}
