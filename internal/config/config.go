package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/tributary-ai/model-router/internal/analyzer"
	"github.com/tributary-ai/model-router/internal/health"
	"github.com/tributary-ai/model-router/internal/providers/anthropic"
	"github.com/tributary-ai/model-router/internal/providers/openai"
	"github.com/tributary-ai/model-router/internal/registry"
	"github.com/tributary-ai/model-router/internal/routing"
	"github.com/tributary-ai/model-router/internal/scoring"
	"github.com/tributary-ai/model-router/internal/server"
	"github.com/tributary-ai/model-router/internal/strategy"
	"github.com/tributary-ai/model-router/internal/types"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Router    RouterConfig            `yaml:"router"`
	Analyzer  analyzer.Config         `yaml:"analyzer"`
	Health    health.Config           `yaml:"health"`
	Providers ProvidersConfig         `yaml:"providers"`
	Models    []types.CapabilityEntry `yaml:"models"`
	Logging   LoggingConfig           `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	MaxRequestSize int64         `yaml:"max_request_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ValidateAPI    bool          `yaml:"validate_api"`
}

// RouterConfig holds routing engine configuration
type RouterConfig struct {
	DefaultModel        string        `yaml:"default_model"`
	AutoSelect          bool          `yaml:"auto_select"`
	CostRouting         bool          `yaml:"cost_routing"`
	HealthRouting       bool          `yaml:"health_routing"`
	MaxFallbackAttempts int           `yaml:"max_fallback_attempts"`
	WeightProfile       string        `yaml:"weight_profile"`
	DefaultStrategy     string        `yaml:"default_strategy"`
	AnalysisCacheTTL    time.Duration `yaml:"analysis_cache_ttl"`
	AnalysisCacheSize   int           `yaml:"analysis_cache_size"`
	HealthCacheTTL      time.Duration `yaml:"health_cache_ttl"`
	HealthTimeout       time.Duration `yaml:"health_timeout"`
}

// ProvidersConfig holds configuration for all providers
type ProvidersConfig struct {
	OpenAI    *openai.OpenAIConfig                `yaml:"openai"`
	Anthropic *anthropic.AnthropicConfig          `yaml:"anthropic"`
	Pricing   map[string]registry.ProviderPricing `yaml:"pricing"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stdout", "stderr", or file path
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	config.setDefaults()

	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	config.loadFromEnv()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() {
	c.Server = ServerConfig{
		Port:           "8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   150 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
		MaxRequestSize: 10 << 20,
		RequestTimeout: 120 * time.Second,
		AllowedOrigins: []string{"*"},
		ValidateAPI:    true,
	}

	rc := routing.DefaultConfig()
	c.Router = RouterConfig{
		DefaultModel:        rc.DefaultModel,
		AutoSelect:          rc.AutoSelect,
		CostRouting:         rc.CostRouting,
		HealthRouting:       rc.HealthRouting,
		MaxFallbackAttempts: rc.MaxFallbackAttempts,
		WeightProfile:       string(rc.WeightProfile),
		DefaultStrategy:     string(rc.DefaultStrategy),
		AnalysisCacheTTL:    rc.AnalysisCacheTTL,
		AnalysisCacheSize:   rc.AnalysisCacheSize,
		HealthCacheTTL:      rc.HealthCacheTTL,
		HealthTimeout:       rc.HealthTimeout,
	}

	c.Analyzer = analyzer.DefaultConfig()
	c.Health = health.DefaultConfig()

	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}

	c.Providers = ProvidersConfig{
		OpenAI: &openai.OpenAIConfig{
			Timeout: 120 * time.Second,
		},
		Anthropic: &anthropic.AnthropicConfig{
			Timeout:    120 * time.Second,
			MaxRetries: 1,
		},
		Pricing: map[string]registry.ProviderPricing{
			"openai":    {InputPer1K: 0.005, OutputPer1K: 0.015},
			"anthropic": {InputPer1K: 0.003, OutputPer1K: 0.015},
		},
	}

	c.Models = DefaultModels()
}

// DefaultModels is the built-in catalog used when the config file has no models section
func DefaultModels() []types.CapabilityEntry {
	return []types.CapabilityEntry{
		{
			ID:               "gpt-4o",
			Name:             "GPT-4o",
			ProviderID:       "openai",
			Capabilities:     []string{types.CapabilityVision, types.CapabilityCoding, types.CapabilityReasoning, types.CapabilityAnalysis},
			ContextWindow:    128000,
			InputPricePer1K:  0.005,
			OutputPricePer1K: 0.015,
			PriorityTier:     1,
		},
		{
			ID:               "gpt-4o-mini",
			Name:             "GPT-4o mini",
			ProviderID:       "openai",
			Capabilities:     []string{types.CapabilityVision, types.CapabilityCoding, types.CapabilityAnalysis},
			ContextWindow:    128000,
			InputPricePer1K:  0.00015,
			OutputPricePer1K: 0.0006,
			PriorityTier:     3,
		},
		{
			ID:               "gpt-3.5-turbo",
			Name:             "GPT-3.5 Turbo",
			ProviderID:       "openai",
			Capabilities:     []string{types.CapabilityCoding},
			ContextWindow:    16385,
			InputPricePer1K:  0.0015,
			OutputPricePer1K: 0.002,
			PriorityTier:     4,
		},
		{
			ID:               "claude-3-5-sonnet-20241022",
			Name:             "Claude 3.5 Sonnet",
			ProviderID:       "anthropic",
			Capabilities:     []string{types.CapabilityVision, types.CapabilityCoding, types.CapabilityReasoning, types.CapabilityAnalysis},
			ContextWindow:    200000,
			InputPricePer1K:  0.003,
			OutputPricePer1K: 0.015,
			PriorityTier:     1,
		},
		{
			ID:               "claude-3-haiku-20240307",
			Name:             "Claude 3 Haiku",
			ProviderID:       "anthropic",
			Capabilities:     []string{types.CapabilityVision, types.CapabilityAnalysis},
			ContextWindow:    200000,
			InputPricePer1K:  0.00025,
			OutputPricePer1K: 0.00125,
			PriorityTier:     3,
		},
	}
}

// loadFromFile loads configuration from YAML file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	if port := os.Getenv("MODEL_ROUTER_PORT"); port != "" {
		c.Server.Port = port
	}

	if openaiKey := os.Getenv("OPENAI_API_KEY"); openaiKey != "" {
		if c.Providers.OpenAI == nil {
			c.Providers.OpenAI = &openai.OpenAIConfig{}
		}
		c.Providers.OpenAI.APIKey = openaiKey
	}

	if anthropicKey := os.Getenv("ANTHROPIC_API_KEY"); anthropicKey != "" {
		if c.Providers.Anthropic == nil {
			c.Providers.Anthropic = &anthropic.AnthropicConfig{}
		}
		c.Providers.Anthropic.APIKey = anthropicKey
	}

	if level := os.Getenv("MODEL_ROUTER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if format := os.Getenv("MODEL_ROUTER_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	if s := os.Getenv("MODEL_ROUTER_DEFAULT_STRATEGY"); s != "" {
		c.Router.DefaultStrategy = s
	}

	if model := os.Getenv("MODEL_ROUTER_DEFAULT_MODEL"); model != "" {
		c.Router.DefaultModel = model
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if !validStrategy(c.Router.DefaultStrategy) {
		return fmt.Errorf("invalid default strategy: %s", c.Router.DefaultStrategy)
	}

	if _, err := scoring.WeightsFor(scoring.Profile(c.Router.WeightProfile)); err != nil {
		return fmt.Errorf("invalid weight profile: %s", c.Router.WeightProfile)
	}

	if c.Router.MaxFallbackAttempts < 0 {
		return fmt.Errorf("max fallback attempts must be >= 0, got %d", c.Router.MaxFallbackAttempts)
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model must be configured")
	}

	found := false
	for _, m := range c.Models {
		if m.ID == c.Router.DefaultModel {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default model %s is not in the model catalog", c.Router.DefaultModel)
	}

	return nil
}

func validStrategy(name string) bool {
	for _, n := range strategy.Names() {
		if string(n) == name {
			return true
		}
	}
	return false
}

// ToRouterConfig converts to routing.Config
func (c *Config) ToRouterConfig() routing.Config {
	return routing.Config{
		DefaultModel:        c.Router.DefaultModel,
		AutoSelect:          c.Router.AutoSelect,
		CostRouting:         c.Router.CostRouting,
		HealthRouting:       c.Router.HealthRouting,
		MaxFallbackAttempts: c.Router.MaxFallbackAttempts,
		WeightProfile:       scoring.Profile(c.Router.WeightProfile),
		DefaultStrategy:     strategy.Name(c.Router.DefaultStrategy),
		AnalysisCacheTTL:    c.Router.AnalysisCacheTTL,
		AnalysisCacheSize:   c.Router.AnalysisCacheSize,
		HealthCacheTTL:      c.Router.HealthCacheTTL,
		HealthTimeout:       c.Router.HealthTimeout,
		Analyzer:            c.Analyzer,
	}
}

// ToServerConfig converts to server.ServerConfig
func (c *Config) ToServerConfig() *server.ServerConfig {
	return &server.ServerConfig{
		Port:           c.Server.Port,
		ReadTimeout:    c.Server.ReadTimeout,
		WriteTimeout:   c.Server.WriteTimeout,
		MaxHeaderBytes: c.Server.MaxHeaderBytes,
		MaxRequestSize: c.Server.MaxRequestSize,
		RequestTimeout: c.Server.RequestTimeout,
		AllowedOrigins: c.Server.AllowedOrigins,
		ValidateAPI:    c.Server.ValidateAPI,
	}
}

// SaveToFile saves the current configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetEnabledProviders returns the providers that have an API key
func (c *Config) GetEnabledProviders() []string {
	var providers []string

	if c.Providers.OpenAI != nil && c.Providers.OpenAI.APIKey != "" {
		providers = append(providers, openai.ProviderName)
	}

	if c.Providers.Anthropic != nil && c.Providers.Anthropic.APIKey != "" {
		providers = append(providers, anthropic.ProviderName)
	}

	return providers
}
