package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load reads configuration from an optional YAML file and then lets
// environment variables (and a `.env` file, if present) override it:
// defaults -> YAML -> env.
func Load(yamlPath string) (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{Limits: DefaultLimits()}
	if yamlPath != "" {
		if b, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, err
			}
		}
	}
	applyLimitDefaults(&cfg.Limits)
	applyEnv(&cfg)
	return cfg, nil
}

func applyLimitDefaults(l *Limits) {
	d := DefaultLimits()
	if l.MaxRetryTimes == 0 {
		l.MaxRetryTimes = d.MaxRetryTimes
	}
	if l.RepeatDetectWindow == 0 {
		l.RepeatDetectWindow = d.RepeatDetectWindow
	}
	if l.PruneKeepOccurs == 0 {
		l.PruneKeepOccurs = d.PruneKeepOccurs
	}
	if l.PruneMaxChars == 0 {
		l.PruneMaxChars = d.PruneMaxChars
	}
	if l.TerminalRunTimeout == 0 {
		l.TerminalRunTimeout = d.TerminalRunTimeout
	}
	if l.MaxContentLength == 0 {
		l.MaxContentLength = d.MaxContentLength
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("CODEACT_SSE_ENDPOINT")); v != "" {
		cfg.SSE.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("CODEACT_SSE_API_KEY")); v != "" {
		cfg.SSE.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("CODEACT_SSE_MODEL")); v != "" {
		cfg.SSE.Model = v
	}
	if cfg.SSE.Delimiter == "" {
		cfg.SSE.Delimiter = "\n\n"
	}

	if v := strings.TrimSpace(os.Getenv("CODEACT_REFLECTION_PROVIDER")); v != "" {
		cfg.Reflection.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		cfg.Reflection.Anthropic.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.Reflection.OpenAI.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")); v != "" {
		cfg.Reflection.Google.APIKey = v
	}

	if v := strings.TrimSpace(os.Getenv("CODEACT_STORE_BACKEND")); v != "" {
		cfg.Store.Backend = v
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "file"
	}
	if v := strings.TrimSpace(os.Getenv("CODEACT_MEMORY_DIR")); v != "" {
		cfg.Store.MemoryDir = v
	}
	if cfg.Store.MemoryDir == "" {
		cfg.Store.MemoryDir = "memory"
	}
	if v := strings.TrimSpace(os.Getenv("CODEACT_POSTGRES_DSN")); v != "" {
		cfg.Store.PostgresDSN = v
	}

	if v := strings.TrimSpace(os.Getenv("CODEACT_SANDBOX_URL")); v != "" {
		cfg.Sandbox.BaseURL = v
	}

	if v := strings.TrimSpace(os.Getenv("CODEACT_WEBAUTH_OIDC_ISSUER")); v != "" {
		cfg.WebAuth.Issuer = v
	}
	if v := strings.TrimSpace(os.Getenv("CODEACT_WEBAUTH_OIDC_CLIENT_ID")); v != "" {
		cfg.WebAuth.ClientID = v
	}
	if v := strings.TrimSpace(os.Getenv("CODEACT_WEBAUTH_OIDC_CLIENT_SECRET")); v != "" {
		cfg.WebAuth.ClientSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("CODEACT_WEBAUTH_REDIRECT_URL")); v != "" {
		cfg.WebAuth.RedirectURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CODEACT_WEBAUTH_POSTGRES_DSN")); v != "" {
		cfg.WebAuth.PostgresDSN = v
	}

	if v := strings.TrimSpace(os.Getenv("CODEACT_WEB_SEARCH_URL")); v != "" {
		cfg.Web.SearchURL = v
	}
	if v := strings.TrimSpace(os.Getenv("CODEACT_WEB_SEARCH_API_KEY")); v != "" {
		cfg.Web.SearchAPIKey = v
	}

	if v := strings.TrimSpace(os.Getenv("CODEACT_QDRANT_ADDR")); v != "" {
		cfg.DocumentStore.QdrantAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("CODEACT_EMBEDDING_ENDPOINT")); v != "" {
		cfg.DocumentStore.Embedding.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("CODEACT_EMBEDDING_API_KEY")); v != "" {
		cfg.DocumentStore.Embedding.APIKey = v
	}

	if v := strings.TrimSpace(os.Getenv("CODEACT_WORKSPACE_ROOT")); v != "" {
		cfg.WorkspaceRoot = v
	}
	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = "workspace"
	}
	if v := strings.TrimSpace(os.Getenv("CODEACT_HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8088"
	}

	if v := strings.TrimSpace(os.Getenv("CODEACT_LOG_LEVEL")); v != "" {
		cfg.Obs.LogLevel = v
	}
	if cfg.Obs.ServiceName == "" {
		cfg.Obs.ServiceName = "codeactd"
	}
	if v := strings.TrimSpace(os.Getenv("CODEACT_OTLP_ENDPOINT")); v != "" {
		cfg.Obs.OTLP = v
	}
	if v := strings.TrimSpace(os.Getenv("CODEACT_CLICKHOUSE_DSN")); v != "" {
		cfg.Obs.ClickHouseDSN = v
	}

	if v := strings.TrimSpace(os.Getenv("CODEACT_MAX_RETRY_TIMES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxRetryTimes = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CODEACT_MAX_TOTAL_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxTotalRetries = n
		}
	}
}
