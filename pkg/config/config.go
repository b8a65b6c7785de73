package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/indaba-ai/indaba-engine/pkg/apperrors"
)

// Config holds all configuration for indaba-engine.
// Values come from config.yaml with environment variable overrides; secrets
// (API keys, graph password) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"development"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// LLM binding
	LLM LLMConfig `yaml:"llm"`

	// Knowledge graph insights
	Graph GraphConfig `yaml:"graph"`

	// Similar-query retrieval
	RAG RAGConfig `yaml:"rag"`

	// Ontology generation
	Ontology OntologyConfig `yaml:"ontology"`

	// Schema caching
	Cache CacheConfig `yaml:"cache"`

	// Retry budget and per-query limits
	General GeneralConfig `yaml:"general"`

	// Connection pool management
	Pools PoolConfig `yaml:"pools"`

	// Session management
	Sessions SessionConfig `yaml:"sessions"`

	// MCP tool server
	MCP MCPConfig `yaml:"mcp"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether bearer tokens are validated.
	// Disable for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"false"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// CookieSecret signs the browser session cookie. Empty disables the
	// cookie fallback for session resolution.
	CookieSecret string `yaml:"-" env:"AUTH_COOKIE_SECRET" env-default:""`

	// BaseURL is the externally visible URL of this server, used to derive
	// cookie security settings.
	BaseURL string `yaml:"base_url" env:"BASE_URL" env-default:""`

	// CookieDomain overrides the derived cookie domain scope.
	CookieDomain string `yaml:"cookie_domain" env:"AUTH_COOKIE_DOMAIN" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr.
	JWKSEndpoints map[string]string `yaml:"-"`
}

// LLMConfig selects and configures the model binding.
type LLMConfig struct {
	// Provider selects the vendor client: "openai" (any OpenAI-compatible
	// endpoint) or "anthropic".
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML

	// MaxTokens drives context strategy selection.
	MaxTokens int `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"8000"`

	// ContextStrategy overrides strategy selection: auto, concise, semi,
	// expanded, large.
	ContextStrategy string `yaml:"context_strategy" env:"LLM_CONTEXT_STRATEGY" env-default:"auto"`
}

// GraphConfig holds knowledge graph settings.
type GraphConfig struct {
	Enabled          bool   `yaml:"enabled" env:"GRAPH_ENABLED" env-default:"false"`
	IncludeInContext bool   `yaml:"include_in_context" env:"GRAPH_INCLUDE_IN_CONTEXT" env-default:"true"`
	URI              string `yaml:"uri" env:"GRAPH_URI" env-default:""`
	Username         string `yaml:"username" env:"GRAPH_USERNAME" env-default:""`
	Password         string `yaml:"-" env:"GRAPH_PASSWORD"` // Secret - not in YAML
	Database         string `yaml:"database" env:"GRAPH_DATABASE" env-default:""`
	// ConnectTimeoutSeconds bounds the initial reachability probe.
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds" env:"GRAPH_CONNECT_TIMEOUT_SECONDS" env-default:"5"`
}

// RAGConfig holds similar-query retrieval settings.
type RAGConfig struct {
	Enabled             bool    `yaml:"enabled" env:"RAG_ENABLED" env-default:"false"`
	TopK                int     `yaml:"top_k" env:"RAG_TOP_K" env-default:"3"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"RAG_SIMILARITY_THRESHOLD" env-default:"0.7"`
	CollectionName      string  `yaml:"collection_name" env:"RAG_COLLECTION_NAME" env-default:"query_history"`
	EmbeddingModel      string  `yaml:"embedding_model" env:"RAG_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
}

// OntologyConfig holds semantic ontology settings.
type OntologyConfig struct {
	Enabled           bool                    `yaml:"enabled" env:"ONTOLOGY_ENABLED" env-default:"false"`
	DynamicGeneration DynamicGenerationConfig `yaml:"dynamic_generation"`
}

// DynamicGenerationConfig controls LLM-driven ontology extraction.
type DynamicGenerationConfig struct {
	Enabled bool `yaml:"enabled" env:"ONTOLOGY_DYNAMIC_GENERATION_ENABLED" env-default:"false"`
	// ExportFormat selects the artifact written after generation: yml, owl, both.
	ExportFormat string `yaml:"export_format" env:"ONTOLOGY_EXPORT_FORMAT" env-default:"both"`
	// ExportDir is where artifacts are written.
	ExportDir string `yaml:"export_dir" env:"ONTOLOGY_EXPORT_DIR" env-default:"./ontology_exports"`
}

// CacheConfig holds schema cache settings.
type CacheConfig struct {
	// SchemaCacheTTLSeconds is how long a captured snapshot stays fresh.
	SchemaCacheTTLSeconds int `yaml:"schema_cache_ttl" env:"SCHEMA_CACHE_TTL" env-default:"3600"`
}

// GeneralConfig holds request-level limits.
type GeneralConfig struct {
	// MaxRetryAttempts is the default retry budget per query.
	MaxRetryAttempts int `yaml:"max_retry_attempts" env:"MAX_RETRY_ATTEMPTS" env-default:"3"`
	// QueryTimeoutSeconds bounds one orchestrated query end to end.
	QueryTimeoutSeconds int `yaml:"query_timeout_seconds" env:"QUERY_TIMEOUT_SECONDS" env-default:"300"`
}

// PoolConfig holds connection pool management settings.
type PoolConfig struct {
	// IdleTTLMinutes is how long an unused pool survives before the sweeper
	// closes it.
	IdleTTLMinutes int `yaml:"idle_ttl_minutes" env:"POOL_IDLE_TTL_MINUTES" env-default:"30"`
	// SweepIntervalMinutes is how often the sweeper runs.
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes" env:"POOL_SWEEP_INTERVAL_MINUTES" env-default:"5"`
	// MaxConns is the per-pool connection ceiling.
	MaxConns int32 `yaml:"max_conns" env:"POOL_MAX_CONNS" env-default:"10"`
	// MinConns is the per-pool floor kept open.
	MinConns int32 `yaml:"min_conns" env:"POOL_MIN_CONNS" env-default:"1"`
}

// SessionConfig holds session registry settings.
type SessionConfig struct {
	// IdleTTLMinutes is how long an untouched session survives.
	IdleTTLMinutes int `yaml:"idle_ttl_minutes" env:"SESSION_IDLE_TTL_MINUTES" env-default:"60"`
	// SweepIntervalMinutes is how often expired sessions are evicted.
	SweepIntervalMinutes int `yaml:"sweep_interval_minutes" env:"SESSION_SWEEP_INTERVAL_MINUTES" env-default:"5"`
}

// MCPConfig holds the MCP tool server settings.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"false"`
}

// ContextStrategies are the accepted llm.context_strategy values.
var ContextStrategies = []string{"auto", "concise", "semi", "expanded", "large"}

// ExportFormats are the accepted ontology export formats.
var ExportFormats = []string{"yml", "owl", "both"}

// Load reads configuration from config.yaml with environment variable
// overrides and validates it. The version is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("%w: llm.provider %q (want openai or anthropic)", apperrors.ErrConfigInvalid, c.LLM.Provider)
	}

	if !contains(ContextStrategies, c.LLM.ContextStrategy) {
		return fmt.Errorf("%w: llm.context_strategy %q (want one of %s)",
			apperrors.ErrConfigInvalid, c.LLM.ContextStrategy, strings.Join(ContextStrategies, ", "))
	}

	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("%w: llm.max_tokens must be positive", apperrors.ErrConfigInvalid)
	}

	if c.Ontology.DynamicGeneration.Enabled && !contains(ExportFormats, c.Ontology.DynamicGeneration.ExportFormat) {
		return fmt.Errorf("%w: ontology.dynamic_generation.export_format %q (want one of %s)",
			apperrors.ErrConfigInvalid, c.Ontology.DynamicGeneration.ExportFormat, strings.Join(ExportFormats, ", "))
	}

	if c.RAG.TopK <= 0 {
		return fmt.Errorf("%w: rag.top_k must be positive", apperrors.ErrConfigInvalid)
	}
	if c.RAG.SimilarityThreshold < 0 || c.RAG.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: rag.similarity_threshold must be in [0,1]", apperrors.ErrConfigInvalid)
	}

	if c.Pools.MinConns > c.Pools.MaxConns {
		return fmt.Errorf("%w: pools.min_conns exceeds pools.max_conns", apperrors.ErrConfigInvalid)
	}

	if c.Graph.Enabled && c.Graph.URI == "" {
		return fmt.Errorf("%w: graph.enabled requires graph.uri", apperrors.ErrConfigInvalid)
	}

	if c.Auth.EnableVerification && len(c.Auth.JWKSEndpoints) == 0 {
		return fmt.Errorf("%w: auth.enable_verification requires jwks_endpoints", apperrors.ErrConfigInvalid)
	}

	return nil
}

// parseJWKSEndpoints parses "issuer1=url1,issuer2=url2" into a map.
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		parts := strings.Split(pair, "=")
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
