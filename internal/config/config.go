package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type LLMConfig struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContextSize int    `json:"context_size"`
}

// GenerationConfig controls the model invocation made once per turn.
type GenerationConfig struct {
	Model                 string  `json:"model"`
	TimeoutSeconds        int     `json:"timeout_seconds"`
	MaxConcurrent         int     `json:"max_concurrent"`
	CriticalQueueSize     int     `json:"critical_queue_size"`
	BackgroundQueueSize   int     `json:"background_queue_size"`
	BreakerFailures       int     `json:"breaker_failures"`
	BreakerTimeoutSeconds int     `json:"breaker_timeout_seconds"`
	Temperature           float64 `json:"temperature"`
}

type MemoryConfig struct {
	CacheTTLSeconds int     `json:"cache_ttl_seconds"`
	RetrievalLimit  int     `json:"retrieval_limit"`
	MinImportance   float64 `json:"min_importance"`
	Qdrant          struct {
		URL        string `json:"url"`
		Collection string `json:"collection"`
		APIKey     string `json:"api_key"`
		VectorSize int    `json:"vector_size"`
	} `json:"qdrant"`
	EmbeddingModel struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"embedding_model"`
}

type Config struct {
	Server struct {
		Host      string `json:"host"`
		Port      int    `json:"port"`
		Subpath   string `json:"subpath"`
		JWTSecret string `json:"jwtSecret"`
	} `json:"server"`
	Postgres struct {
		DSN string `json:"dsn"`
	} `json:"postgres"`
	Redis struct {
		Addr     string `json:"addr"`
		Password string `json:"password"`
		DB       int    `json:"db"`
	} `json:"redis"`
	LLMs          []LLMConfig      `json:"llms"`
	Generation    GenerationConfig `json:"generation"`
	Memory        MemoryConfig     `json:"memory"`
	Conversations struct {
		StateTTLMinutes int `json:"state_ttl_minutes"`
	} `json:"conversations"`
	PersonaPath string `json:"persona_path"`
}

// ValidationError reports a config field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

var (
	once   sync.Once
	cfg    *Config
	cfgErr error
)

// LoadConfig reads config.json from disk (singleton)
func LoadConfig(path string) (*Config, error) {
	once.Do(func() {
		cfg, cfgErr = load(path)
	})
	return cfg, cfgErr
}

func load(path string) (*Config, error) {
	// .env is optional; real environment variables still win over the file
	_ = godotenv.Load()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("invalid config format: %w", err)
	}
	c.applyEnv()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ADVISOR_JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv("ADVISOR_POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("ADVISOR_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("ADVISOR_QDRANT_URL"); v != "" {
		c.Memory.Qdrant.URL = v
	}
	if v := os.Getenv("ADVISOR_PERSONA_PATH"); v != "" {
		c.PersonaPath = v
	}
}

func (c *Config) applyDefaults() {
	g := &c.Generation
	if g.TimeoutSeconds <= 0 {
		g.TimeoutSeconds = 60
	}
	if g.MaxConcurrent <= 0 {
		g.MaxConcurrent = 2
	}
	if g.CriticalQueueSize <= 0 {
		g.CriticalQueueSize = 20
	}
	if g.BackgroundQueueSize <= 0 {
		g.BackgroundQueueSize = 100
	}
	if g.BreakerFailures <= 0 {
		g.BreakerFailures = 3
	}
	if g.BreakerTimeoutSeconds <= 0 {
		g.BreakerTimeoutSeconds = 60
	}
	if g.Temperature == 0 {
		g.Temperature = 0.7
	}

	m := &c.Memory
	if m.CacheTTLSeconds <= 0 {
		m.CacheTTLSeconds = 300
	}
	if m.RetrievalLimit <= 0 {
		m.RetrievalLimit = 5
	}
	if m.Qdrant.Collection == "" {
		m.Qdrant.Collection = "advisor_memories"
	}
	if m.Qdrant.VectorSize <= 0 {
		m.Qdrant.VectorSize = 384
	}
	if c.Conversations.StateTTLMinutes <= 0 {
		c.Conversations.StateTTLMinutes = 24 * 60
	}
}

// Validate checks the fields the server cannot start without.
func (c *Config) Validate() error {
	if c.Server.JWTSecret == "" {
		return &ValidationError{Field: "server.jwtSecret", Message: "must be set"}
	}
	if c.Generation.Model != "" && len(c.LLMs) > 0 {
		if _, ok := c.FindLLM(c.Generation.Model); !ok {
			return &ValidationError{Field: "generation.model", Message: fmt.Sprintf("no llm named %q", c.Generation.Model)}
		}
	}
	if c.Memory.MinImportance < 0 || c.Memory.MinImportance > 10 {
		return &ValidationError{Field: "memory.min_importance", Message: "must be within 0..10"}
	}
	return nil
}

// FindLLM looks up a configured model endpoint by name.
func (c *Config) FindLLM(name string) (LLMConfig, bool) {
	for _, l := range c.LLMs {
		if l.Name == name {
			return l, true
		}
	}
	return LLMConfig{}, false
}

// GenerationLLM returns the endpoint used for turn generation: the named
// model when set, otherwise the first configured one.
func (c *Config) GenerationLLM() (LLMConfig, bool) {
	if c.Generation.Model != "" {
		return c.FindLLM(c.Generation.Model)
	}
	if len(c.LLMs) == 0 {
		return LLMConfig{}, false
	}
	return c.LLMs[0], true
}

func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.Generation.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Memory.CacheTTLSeconds) * time.Second
}

func (c *Config) StateTTL() time.Duration {
	return time.Duration(c.Conversations.StateTTLMinutes) * time.Minute
}

// GetConfig returns the loaded config (must call LoadConfig first)
func GetConfig() *Config {
	return cfg
}

// ResetConfigForTest resets the singleton state (for testing only)
func ResetConfigForTest() {
	once = sync.Once{}
	cfg = nil
	cfgErr = nil
}
