// Package config loads runtime configuration for the code-acting agent
// core: task limits, the SSE LLM endpoint, the reflection provider, memory
// store backend, and the narrow-contract external collaborators (sandbox
// runtime, document store, browser automation).
package config

// SSEConfig configures component A, the tolerant SSE LLM client.
type SSEConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	// Delimiter separates SSE messages in the response body. Default "\n\n".
	Delimiter string `yaml:"delimiter"`
}

// OpenAIConfig, AnthropicConfig and GoogleConfig configure the reflection
// collaborator's multi-provider factory (component I). They are
// deliberately independent of SSEConfig: A talks to whatever
// OpenAI-compatible endpoint is configured; I talks to one of these three
// vendor SDKs to produce {status, comments} judgments.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type GoogleConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// ReflectionConfig selects and configures the reflection provider.
type ReflectionConfig struct {
	Provider  string          `yaml:"provider"` // "anthropic" | "openai" | "google"
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Google    GoogleConfig    `yaml:"google"`
}

// StoreConfig selects the memory store backend (component E).
type StoreConfig struct {
	Backend     string `yaml:"backend"` // "file" (default) | "postgres"
	MemoryDir   string `yaml:"memory_dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

// WebAuthConfig protects the HTTP daemon's task-run API with browser-login
// OIDC sessions. Empty Issuer disables auth entirely (dev mode).
type WebAuthConfig struct {
	Issuer          string   `yaml:"oidc_issuer"`
	ClientID        string   `yaml:"oidc_client_id"`
	ClientSecret    string   `yaml:"oidc_client_secret"`
	RedirectURL     string   `yaml:"redirect_url"`
	PostgresDSN     string   `yaml:"postgres_dsn"`
	CookieName      string   `yaml:"cookie_name"`
	AllowedDomains  []string `yaml:"allowed_domains"`
	SessionTTLHours int      `yaml:"session_ttl_hours"`
	CookieSecure    bool     `yaml:"cookie_secure"`
	RequiredRoles   []string `yaml:"required_roles"`
}

// SandboxConfig points the runtime dispatcher (D) at the external sandbox
// execution server.
type SandboxConfig struct {
	BaseURL          string `yaml:"base_url"`
	OIDCIssuer       string `yaml:"oidc_issuer"`
	OIDCClientID     string `yaml:"oidc_client_id"`
	OIDCClientSecret string `yaml:"oidc_client_secret"`
}

// EventsConfig selects the UI-event-bus transport the dispatcher publishes
// "running"/"final" placeholders on.
type EventsConfig struct {
	Transport    string   `yaml:"transport"` // "inproc" (default) | "kafka"
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// DocumentStoreConfig backs the document_query/document_upload tools.
type DocumentStoreConfig struct {
	QdrantAddr string         `yaml:"qdrant_addr"`
	Collection string         `yaml:"collection"`
	Embedding  EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig points the document adapter's embedder at an
// OpenAI-compatible /embeddings endpoint.
type EmbeddingConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// WebConfig backs the web_search/read_url tools.
type WebConfig struct {
	SearchURL    string `yaml:"search_url"`
	SearchAPIKey string `yaml:"search_api_key"`
}

// BrowserConfig backs the browser tool's headless-Chrome adapter.
type BrowserConfig struct {
	NavigateURL string `yaml:"navigate_url"`
}

// ObjectStoreConfig configures optional workspace snapshot archival on finish.
type ObjectStoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
}

// ObsConfig configures OTel/ClickHouse telemetry (component H).
type ObsConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
	OTLP           string `yaml:"otlp_endpoint"`
	LogLevel       string `yaml:"log_level"`
	LogPath        string `yaml:"log_path"`
	ClickHouseDSN  string `yaml:"clickhouse_dsn"`
}

// MCPTLSConfig controls TLS verification for an HTTP-transport MCP server.
type MCPTLSConfig struct {
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// MCPHTTPConfig configures the HTTP client used for a streamable-HTTP MCP
// server transport.
type MCPHTTPConfig struct {
	ProxyURL       string       `yaml:"proxy_url"`
	TimeoutSeconds int          `yaml:"timeout_seconds"`
	TLS            MCPTLSConfig `yaml:"tls"`
}

// MCPServerConfig describes one MCP server the mcp_tool action can reach,
// either spawned as a stdio subprocess (Command/Args/Env) or reached over
// streamable HTTP (URL/Headers/BearerToken).
type MCPServerConfig struct {
	Name             string            `yaml:"name"`
	Command          string            `yaml:"command"`
	Args             []string          `yaml:"args"`
	Env              map[string]string `yaml:"env"`
	URL              string            `yaml:"url"`
	Headers          map[string]string `yaml:"headers"`
	BearerToken      string            `yaml:"bearer_token"`
	Origin           string            `yaml:"origin"`
	ProtocolVersion  string            `yaml:"protocol_version"`
	KeepAliveSeconds int               `yaml:"keep_alive_seconds"`
	PathDependent    bool              `yaml:"path_dependent"`
	HTTP             MCPHTTPConfig     `yaml:"http"`
}

// MCPConfig lists the MCP servers registered as mcp_tool targets at startup.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// PromptCacheConfig configures G's resolved-template cache.
type PromptCacheConfig struct {
	Backend  string `yaml:"backend"` // "redis"; any other value disables prompt caching
	RedisDSN string `yaml:"redis_dsn"`
}

// Limits carries the agent loop's tunable retry/pruning/timeout knobs.
type Limits struct {
	MaxRetryTimes      int `yaml:"max_retry_times"`         // default 10
	MaxTotalRetries    int `yaml:"max_total_retries"`       // default 0 (disabled, open question 3)
	RepeatDetectWindow int `yaml:"repeat_detect_window"`    // default 2
	PruneKeepOccurs    int `yaml:"prune_keep_occurrences"`  // default 3
	PruneMaxChars      int `yaml:"prune_max_chars"`         // default 60000
	TerminalRunTimeout int `yaml:"terminal_run_timeout_ms"` // default 30000
	MaxContentLength   int `yaml:"max_content_length"`      // default 50000
}

// DefaultLimits returns the documented defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxRetryTimes:      10,
		MaxTotalRetries:    0,
		RepeatDetectWindow: 2,
		PruneKeepOccurs:    3,
		PruneMaxChars:      60000,
		TerminalRunTimeout:  30000,
		MaxContentLength:   50000,
	}
}

// Config is the root configuration for the codeact core.
type Config struct {
	SSE           SSEConfig           `yaml:"sse"`
	Reflection    ReflectionConfig    `yaml:"reflection"`
	Store         StoreConfig         `yaml:"store"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	WebAuth       WebAuthConfig       `yaml:"web_auth"`
	Events        EventsConfig        `yaml:"events"`
	DocumentStore DocumentStoreConfig `yaml:"document_store"`
	ObjectStore   ObjectStoreConfig   `yaml:"object_store"`
	Web           WebConfig           `yaml:"web"`
	Browser       BrowserConfig       `yaml:"browser"`
	MCP           MCPConfig           `yaml:"mcp"`
	Obs           ObsConfig           `yaml:"observability"`
	PromptCache   PromptCacheConfig   `yaml:"prompt_cache"`
	Limits        Limits              `yaml:"limits"`
	WorkspaceRoot string              `yaml:"workspace_root"`
	HTTPAddr      string              `yaml:"http_addr"`
}
