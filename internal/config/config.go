package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"maestro/internal/ports"
)

// KnownProviders enumerates providers the registry can validate against.
// Provider keys double as the prefix of qualified model ids ("openai/gpt-4o").
var KnownProviders = []string{"openai", "openrouter", "deepseek", "ollama"}

// ProviderConfig holds per-provider connection settings and the declared
// available-model set.
type ProviderConfig struct {
	APIKey  string   `yaml:"api_key"`
	BaseURL string   `yaml:"base_url"`
	Models  []string `yaml:"models"`
}

// Config is the full server configuration surface.
type Config struct {
	Addr          string
	WorkspaceRoot string
	DBPath        string

	DefaultModel string
	RoleModels   map[ports.Role]string
	Providers    map[string]ProviderConfig

	MemoryWindow   int
	MaxStepRetries int
	ToolOutputCap  int

	ShellTimeout   time.Duration
	InstallTimeout time.Duration
	FetchTimeout   time.Duration
	CommandTimeout time.Duration

	WSMaxMessageBytes int64
	WSPingInterval    time.Duration

	TavilyAPIKey string

	LogLevel       string
	OTLPEndpoint   string
	EmbeddingModel string
}

// Load reads configuration from MAESTRO_* environment variables, then merges
// an optional YAML model catalog on top of the provider defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("maestro")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("workspace_root", "./workspace")
	v.SetDefault("db_path", "./maestro.db")
	v.SetDefault("default_model", "openai/gpt-4o-mini")
	v.SetDefault("memory_window", 10)
	v.SetDefault("max_step_retries", 1)
	v.SetDefault("tool_output_cap", 8000)
	v.SetDefault("shell_timeout", "60s")
	v.SetDefault("install_timeout", "300s")
	v.SetDefault("fetch_timeout", "15s")
	v.SetDefault("command_timeout", "120s")
	v.SetDefault("ws_max_message_bytes", 1<<20)
	v.SetDefault("ws_ping_interval", "30s")
	v.SetDefault("log_level", "info")

	cfg := &Config{
		Addr:              v.GetString("addr"),
		WorkspaceRoot:     v.GetString("workspace_root"),
		DBPath:            v.GetString("db_path"),
		DefaultModel:      v.GetString("default_model"),
		RoleModels:        make(map[ports.Role]string),
		Providers:         make(map[string]ProviderConfig),
		MemoryWindow:      v.GetInt("memory_window"),
		MaxStepRetries:    v.GetInt("max_step_retries"),
		ToolOutputCap:     v.GetInt("tool_output_cap"),
		ShellTimeout:      v.GetDuration("shell_timeout"),
		InstallTimeout:    v.GetDuration("install_timeout"),
		FetchTimeout:      v.GetDuration("fetch_timeout"),
		CommandTimeout:    v.GetDuration("command_timeout"),
		WSMaxMessageBytes: v.GetInt64("ws_max_message_bytes"),
		WSPingInterval:    v.GetDuration("ws_ping_interval"),
		TavilyAPIKey:      v.GetString("tavily_api_key"),
		LogLevel:          v.GetString("log_level"),
		OTLPEndpoint:      v.GetString("otlp_endpoint"),
		EmbeddingModel:    v.GetString("embedding_model"),
	}

	for _, role := range ports.Roles {
		if m := v.GetString(fmt.Sprintf("role_%s_model", role)); m != "" {
			cfg.RoleModels[role] = m
		}
	}

	for _, provider := range KnownProviders {
		pc := ProviderConfig{
			APIKey:  v.GetString(provider + "_api_key"),
			BaseURL: v.GetString(provider + "_base_url"),
		}
		if pc.APIKey == "" && pc.BaseURL == "" {
			continue
		}
		pc.Models = defaultModels(provider)
		cfg.Providers[provider] = pc
	}

	if catalogPath := v.GetString("model_catalog"); catalogPath != "" {
		if err := cfg.mergeCatalog(catalogPath); err != nil {
			return nil, fmt.Errorf("load model catalog: %w", err)
		}
	}

	return cfg, nil
}

// catalogFile is the YAML shape of the optional model catalog.
type catalogFile struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

func (c *Config) mergeCatalog(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var catalog catalogFile
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for provider, entry := range catalog.Providers {
		existing := c.Providers[provider]
		if entry.APIKey != "" {
			existing.APIKey = entry.APIKey
		}
		if entry.BaseURL != "" {
			existing.BaseURL = entry.BaseURL
		}
		if len(entry.Models) > 0 {
			existing.Models = entry.Models
		}
		c.Providers[provider] = existing
	}
	return nil
}

// ModelForRole resolves the process-default model id for a role, falling back
// to the system default.
func (c *Config) ModelForRole(role ports.Role) string {
	if m, ok := c.RoleModels[role]; ok && m != "" {
		return m
	}
	return c.DefaultModel
}

// SplitModelID splits a qualified "provider/model" id. An unqualified id is
// attributed to the openai provider.
func SplitModelID(id string) (provider, model string) {
	if i := strings.Index(id, "/"); i > 0 {
		return id[:i], id[i+1:]
	}
	return "openai", id
}

func defaultModels(provider string) []string {
	switch provider {
	case "openai":
		return []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini", "o3-mini"}
	case "openrouter":
		return nil // openrouter proxies arbitrary models; validated lazily
	case "deepseek":
		return []string{"deepseek-chat", "deepseek-reasoner"}
	case "ollama":
		return nil // local models are discovered, not declared
	default:
		return nil
	}
}
