package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port    int    `yaml:"port"`
	MCPPort int    `yaml:"mcp_port"`
	Token   string `yaml:"-"` // env only, never written to disk
}

type OllamaConfig struct {
	BaseURL       string `yaml:"base_url"`
	EmbedModel    string `yaml:"embed_model"`
	GenerateModel string `yaml:"generate_model"`
}

type EmbeddingConfig struct {
	// Dimension is the vector size the embedding model produces. Every
	// vector stored or searched must have exactly this dimension.
	Dimension int `yaml:"dimension"`
}

type ChunkingConfig struct {
	WindowSize  int `yaml:"window_size"`
	OverlapSize int `yaml:"overlap_size"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:    8080,
			MCPPort: 8081,
		},
		Ollama: OllamaConfig{
			BaseURL:       "http://localhost:11434",
			EmbedModel:    "nomic-embed-text",
			GenerateModel: "granite3.3:2b",
		},
		Embedding: EmbeddingConfig{
			Dimension: 768,
		},
		Chunking: ChunkingConfig{
			WindowSize:  1000,
			OverlapSize: 100,
		},
		Retrieval: RetrievalConfig{
			TopK: 4,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "docchat")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "docchat")
}

// Load reads configuration from an optional YAML file, then applies
// DOCCHAT_* environment overrides, then validates.
//
// The file is looked up at ./config.yaml first, then
// $XDG_CONFIG_HOME/docchat/config.yaml; a missing file is not an error,
// defaults apply.
func Load() (Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit file path. An empty path skips the
// file and uses defaults + environment only.
func LoadFile(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "docchat", "config.yaml")
}

// applyEnvOverrides applies DOCCHAT_* overrides. A malformed integer
// value is a configuration error, not something to fall back from.
func applyEnvOverrides(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid config: %s=%q is not an integer", key, v)
		}
		*dst = n
		return nil
	}

	setString("DOCCHAT_API_TOKEN", &cfg.Server.Token)
	setString("DOCCHAT_OLLAMA_BASE_URL", &cfg.Ollama.BaseURL)
	setString("DOCCHAT_EMBED_MODEL", &cfg.Ollama.EmbedModel)
	setString("DOCCHAT_GENERATE_MODEL", &cfg.Ollama.GenerateModel)
	setString("DOCCHAT_DATA_DIR", &cfg.Storage.DataDir)
	setString("DOCCHAT_LOG_LEVEL", &cfg.Log.Level)

	for _, v := range []struct {
		key string
		dst *int
	}{
		{"DOCCHAT_PORT", &cfg.Server.Port},
		{"DOCCHAT_MCP_PORT", &cfg.Server.MCPPort},
		{"DOCCHAT_EMBED_DIMENSION", &cfg.Embedding.Dimension},
		{"DOCCHAT_CHUNK_WINDOW", &cfg.Chunking.WindowSize},
		{"DOCCHAT_CHUNK_OVERLAP", &cfg.Chunking.OverlapSize},
		{"DOCCHAT_TOP_K", &cfg.Retrieval.TopK},
	} {
		if err := setInt(v.key, v.dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks deployment invariants. Violations are fatal at startup,
// never recoverable per-request.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server port %d out of range", c.Server.Port)
	}
	if c.Server.MCPPort < 0 || c.Server.MCPPort > 65535 {
		return fmt.Errorf("invalid config: MCP port %d out of range", c.Server.MCPPort)
	}
	if c.Ollama.BaseURL == "" {
		return fmt.Errorf("invalid config: ollama base URL is required")
	}
	if c.Ollama.EmbedModel == "" || c.Ollama.GenerateModel == "" {
		return fmt.Errorf("invalid config: embed and generate models are required")
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("invalid config: embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Chunking.WindowSize <= 0 {
		return fmt.Errorf("invalid config: chunk window size must be positive, got %d", c.Chunking.WindowSize)
	}
	if c.Chunking.OverlapSize < 0 || c.Chunking.OverlapSize >= c.Chunking.WindowSize {
		return fmt.Errorf("invalid config: chunk overlap %d must satisfy 0 <= overlap < window (%d)",
			c.Chunking.OverlapSize, c.Chunking.WindowSize)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("invalid config: retrieval top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("invalid config: storage data_dir is required")
	}
	return nil
}
