package llm

import (
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"maestro/internal/config"
	"maestro/internal/logging"
	"maestro/internal/ports"
)

// Overrides maps a role to a session-selected model id. An absent or empty
// entry falls through to the process default for that role.
type Overrides map[ports.Role]string

// Registry resolves pipeline roles to concrete LLM handles. Handles are
// cached per provider/model pair; the cache is effectively write-once.
type Registry struct {
	cfg     *config.Config
	cache   *lru.Cache[string, ports.LLMClient]
	logger  logging.Logger
	factory func(provider, model string, pc config.ProviderConfig) ports.LLMClient
}

// NewRegistry creates a role registry over the configured providers.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	cache, err := lru.New[string, ports.LLMClient](32)
	if err != nil {
		return nil, err
	}
	return &Registry{
		cfg:    cfg,
		cache:  cache,
		logger: logging.NewComponentLogger("LLMRegistry"),
		factory: func(provider, model string, pc config.ProviderConfig) ports.LLMClient {
			base := NewOpenAIClient(model, Config{
				APIKey:  pc.APIKey,
				BaseURL: pc.BaseURL,
			})
			return NewRetryClient(base, 2)
		},
	}, nil
}

// Get resolves a role to a model handle. Resolution precedence: session
// override -> process role default -> system default. On a resolution error
// the registry attempts exactly one fallback to the system default; a second
// failure is fatal for the call.
func (r *Registry) Get(role ports.Role, overrides Overrides) (ports.LLMClient, error) {
	candidate := ""
	if overrides != nil {
		candidate = overrides[role]
	}
	if candidate == "" {
		candidate = r.cfg.ModelForRole(role)
	}

	client, err := r.resolve(candidate)
	if err == nil {
		return client, nil
	}
	if candidate == r.cfg.DefaultModel {
		return nil, fmt.Errorf("resolve %s model %q: %w", role, candidate, err)
	}

	r.logger.Warn("Model %q for role %s unavailable (%v); falling back to default %q",
		candidate, role, err, r.cfg.DefaultModel)
	client, fallbackErr := r.resolve(r.cfg.DefaultModel)
	if fallbackErr != nil {
		return nil, fmt.Errorf("resolve fallback model %q: %w", r.cfg.DefaultModel, fallbackErr)
	}
	return client, nil
}

func (r *Registry) resolve(modelID string) (ports.LLMClient, error) {
	provider, model := config.SplitModelID(modelID)
	if model == "" {
		return nil, fmt.Errorf("empty model id")
	}

	pc, ok := r.cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", provider)
	}
	// A declared model list is authoritative; an empty list means the
	// provider accepts arbitrary ids (openrouter, ollama).
	if len(pc.Models) > 0 && !slices.Contains(pc.Models, model) {
		return nil, fmt.Errorf("model %q not in %s catalog", model, provider)
	}

	key := provider + "/" + model
	if client, ok := r.cache.Get(key); ok {
		return client, nil
	}
	client := r.factory(provider, model, pc)
	r.cache.Add(key, client)
	return client, nil
}

// Catalog describes the providers and defaults published to clients.
type Catalog struct {
	Providers         map[string][]string   `json:"providers"`
	DefaultExecutorID string                `json:"default_executor_llm_id"`
	RoleDefaults      map[ports.Role]string `json:"role_llm_defaults"`
}

// Catalog returns the model catalog for the available_models message.
func (r *Registry) Catalog() Catalog {
	catalog := Catalog{
		Providers:         make(map[string][]string, len(r.cfg.Providers)),
		DefaultExecutorID: r.cfg.ModelForRole(ports.RoleExecutor),
		RoleDefaults:      make(map[ports.Role]string, len(ports.Roles)),
	}
	for provider, pc := range r.cfg.Providers {
		catalog.Providers[provider] = pc.Models
	}
	for _, role := range ports.Roles {
		catalog.RoleDefaults[role] = r.cfg.ModelForRole(role)
	}
	return catalog
}
