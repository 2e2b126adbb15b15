// Command codeactd runs the code-acting agent core as an HTTP daemon: one
// task-run endpoint that drives the control loop (component F) to
// completion or pause, backed by a per-task Dispatcher and Memory so that
// concurrent conversations never share sandbox roots or message logs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"codeact/internal/auth"
	"codeact/internal/codeact/codememory"
	"codeact/internal/codeact/llmstream"
	"codeact/internal/codeact/loop"
	"codeact/internal/codeact/prompt"
	"codeact/internal/codeact/reflect"
	"codeact/internal/codeact/runtime"
	"codeact/internal/codeact/telemetry"
	"codeact/internal/config"
	"codeact/internal/mcpclient"
	"codeact/internal/observability"
	"codeact/internal/tools"
)

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Overload(); err != nil {
			log.Warn().Err(err).Msg("failed to load .env, continuing with process environment")
		}
	}

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.InitLogger(cfg.Obs.LogPath, cfg.Obs.LogLevel)

	ctx := context.Background()
	shutdown, err := observability.InitOTel(ctx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	tel, err := telemetry.Build(ctx, cfg.Obs)
	if err != nil {
		log.Warn().Err(err).Msg("telemetry sink init failed, recording nothing")
		tel = telemetry.Noop()
	}
	defer func() { _ = tel.Close(context.Background()) }()

	httpClient := observability.NewHTTPClient(nil)

	chat := llmstream.New(cfg.SSE, httpClient)

	reflectAdapter, err := reflect.Build(cfg.Reflection, httpClient)
	if err != nil {
		log.Warn().Err(err).Msg("reflection adapter disabled")
		reflectAdapter = nil
	}

	registry := tools.NewRegistry()
	mcpMgr := mcpclient.NewManager()
	defer mcpMgr.Close()
	if err := mcpMgr.RegisterFromConfig(ctx, registry, cfg.MCP); err != nil {
		log.Warn().Err(err).Msg("one or more MCP servers failed to register")
	}

	web := runtime.NewHTTPWebAdapter(cfg.Web.SearchURL, cfg.Web.SearchAPIKey)
	browser := runtime.NewChromeDPBrowserAdapter(cfg.Browser.NavigateURL)
	mcpAdapter := runtime.NewRegistryMCPAdapter(registry)

	var documents runtime.DocumentAdapter
	if cfg.DocumentStore.QdrantAddr != "" {
		qc, err := newQdrantClient(cfg.DocumentStore.QdrantAddr)
		if err != nil {
			log.Warn().Err(err).Msg("qdrant client init failed, document_query/document_upload disabled")
		} else {
			embedder := runtime.NewHTTPEmbedder(cfg.DocumentStore.Embedding.Endpoint, cfg.DocumentStore.Embedding.APIKey, cfg.DocumentStore.Embedding.Model, httpClient)
			documents = runtime.NewQdrantDocumentAdapter(qc, embedder, cfg.DocumentStore.Collection)
		}
	}

	var events runtime.UIEvents
	if cfg.Events.Transport == "kafka" && len(cfg.Events.KafkaBrokers) > 0 {
		events = runtime.NewKafkaUIEvents(cfg.Events.KafkaBrokers[0], cfg.Events.KafkaTopic)
	}

	var cache prompt.Cache
	if cfg.PromptCache.Backend == "redis" && cfg.PromptCache.RedisDSN != "" {
		opts, err := redis.ParseURL(cfg.PromptCache.RedisDSN)
		if err != nil {
			log.Warn().Err(err).Msg("prompt cache redis DSN invalid, prompt caching disabled")
		} else {
			cache = prompt.NewRedisCache(opts.Addr, opts.Password, opts.DB)
		}
	}

	catalog := prompt.NewRegistryCatalog(registry)

	loopCfg := loop.Config{MaxRetryTimes: cfg.Limits.MaxRetryTimes, MaxTotalRetries: cfg.Limits.MaxTotalRetries}

	var sandboxHTTPClient *http.Client
	if cfg.Sandbox.OIDCIssuer != "" && cfg.Sandbox.BaseURL != "" {
		sandboxHTTPClient = runtime.NewOIDCHTTPClient(ctx, cfg.Sandbox.OIDCIssuer, cfg.Sandbox.OIDCClientID, cfg.Sandbox.OIDCClientSecret, []string{"sandbox"}, httpClient)
	}

	var archiver runtime.Archiver
	if cfg.ObjectStore.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.ObjectStore.Region))
		if err != nil {
			log.Warn().Err(err).Msg("aws config load failed, workspace archival disabled")
		} else {
			archiver = runtime.NewS3Archiver(s3.NewFromConfig(awsCfg), cfg.ObjectStore.Bucket)
		}
	}

	deps := taskDeps{
		cfg:         cfg,
		chat:        chat,
		catalog:     catalog,
		cache:       cache,
		reflect:     reflectAdapter,
		web:         web,
		browser:     browser,
		mcp:         mcpAdapter,
		documents:   documents,
		events:      events,
		tel:         tel,
		loopCfg:     loopCfg,
		sandboxHTTP: sandboxHTTPClient,
		archiver:    archiver,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { fmt.Fprintln(w, "ok") })
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) { fmt.Fprintln(w, "ready") })

	taskHandler := http.HandlerFunc(deps.runTask)

	if cfg.WebAuth.Issuer != "" {
		pool, err := newAuthPool(ctx, cfg.WebAuth.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("web auth postgres init failed")
		}
		store := auth.NewStore(pool, cfg.WebAuth.SessionTTLHours)
		if err := store.InitSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("web auth schema init failed")
		}
		if err := store.EnsureDefaultRoles(ctx); err != nil {
			log.Warn().Err(err).Msg("default role seed failed")
		}
		oidcClient, err := auth.NewOIDC(ctx, cfg.WebAuth.Issuer, cfg.WebAuth.ClientID, cfg.WebAuth.ClientSecret, cfg.WebAuth.RedirectURL, store, cfg.WebAuth.CookieName, cfg.WebAuth.AllowedDomains, 600, cfg.WebAuth.CookieSecure)
		if err != nil {
			log.Fatal().Err(err).Msg("oidc provider discovery failed")
		}
		mux.HandleFunc("/auth/login", oidcClient.LoginHandler())
		mux.HandleFunc("/auth/callback", oidcClient.CallbackHandler(cfg.WebAuth.CookieSecure, ""))
		mux.HandleFunc("/auth/logout", oidcClient.LogoutHandler(cfg.WebAuth.CookieSecure, ""))
		mux.HandleFunc("/auth/me", oidcClient.MeHandler())

		var guarded http.Handler = taskHandler
		if len(cfg.WebAuth.RequiredRoles) > 0 {
			guarded = auth.RequireRoles(store, cfg.WebAuth.RequiredRoles...)(guarded)
		}
		guarded = auth.Middleware(store, oidcClient.CookieName, true)(guarded)
		mux.Handle("/tasks/run", guarded)
	} else {
		log.Warn().Msg("web_auth.oidc_issuer not set, /tasks/run is unauthenticated (dev mode)")
		mux.Handle("/tasks/run", taskHandler)
	}

	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8088"
	}
	log.Info().Str("addr", addr).Msg("codeactd listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal().Err(err).Msg("http server exited")
	}
}

func newAuthPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, dsn)
}

func newQdrantClient(dsn string) (*qdrant.Client, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant addr: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant addr: %w", err)
	}
	qcfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		qcfg.UseTLS = true
	}
	if key := parsed.Query().Get("api_key"); key != "" {
		qcfg.APIKey = key
	}
	return qdrant.NewClient(qcfg)
}

// taskDeps holds the collaborators shared across tasks; per-task state
// (Dispatcher, Memory, Loop) is constructed fresh inside runTask so that
// concurrent conversations never share a sandbox root or message log.
type taskDeps struct {
	cfg         config.Config
	chat        *llmstream.Client
	catalog     *prompt.RegistryCatalog
	cache       prompt.Cache
	reflect     reflect.Adapter
	web         runtime.WebAdapter
	browser     runtime.BrowserAdapter
	mcp         runtime.MCPAdapter
	documents   runtime.DocumentAdapter
	events      runtime.UIEvents
	tel         telemetry.Sink
	loopCfg     loop.Config
	sandboxHTTP *http.Client
	archiver    runtime.Archiver
}

type runTaskRequest struct {
	ConversationID string `json:"conversation_id"`
	TaskKey        string `json:"task_key"`
	UserID         string `json:"user_id"`
	RootGoal       string `json:"root_goal"`
}

func (d *taskDeps) runTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req runTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.ConversationID == "" || req.TaskKey == "" {
		http.Error(w, "conversation_id and task_key are required", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = "anonymous"
	}

	convPrefix := "Conversation_" + req.ConversationID
	mem, err := d.buildMemory(r.Context(), req.UserID, convPrefix, req.TaskKey)
	if err != nil {
		log.Error().Err(err).Msg("memory store init failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	sandbox, workspaceDir, localRoot := d.buildSandbox(req.UserID, convPrefix)
	dispatch := runtime.New(sandbox, d.web, d.browser, d.mcp, d.documents, d.events, workspaceDir)
	dispatch.WithDefaultCredentials(runtime.LLMCredentials{Endpoint: d.cfg.SSE.Endpoint, APIKey: d.cfg.SSE.APIKey, Model: d.cfg.SSE.Model})
	if d.archiver != nil && localRoot != "" {
		dispatch.WithArchiver(d.archiver, localRoot)
	}

	promptBuilder := prompt.New(d.cfg.WorkspaceRoot, mem, d.catalog, d.cache)
	l := loop.New(d.loopCfg, d.chat, promptBuilder, mem, dispatch, d.reflect, d.tel)

	state := &loop.TaskState{
		ConversationID: req.ConversationID,
		TaskKey:        req.TaskKey,
		UUID:           uuid.NewString(),
		UserID:         req.UserID,
		RootGoal:       req.RootGoal,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Minute)
	defer cancel()

	result, err := l.RunTask(ctx, state)
	if err != nil {
		log.Error().Err(err).Msg("task run failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (d *taskDeps) buildMemory(ctx context.Context, userID, convPrefix, taskKey string) (*codememory.Memory, error) {
	limits := codememory.Limits{
		RepeatDetectWindow: d.cfg.Limits.RepeatDetectWindow,
		PruneKeepOccurs:    d.cfg.Limits.PruneKeepOccurs,
		PruneMaxChars:      d.cfg.Limits.PruneMaxChars,
	}
	sanitize := codememory.NewPathSanitizer()

	if d.cfg.Store.Backend == "postgres" && d.cfg.Store.PostgresDSN != "" {
		store, err := codememory.NewPostgresStore(ctx, d.cfg.Store.PostgresDSN, "user_"+userID+"/"+convPrefix, taskKey)
		if err != nil {
			return nil, err
		}
		return codememory.New(store, limits, sanitize)
	}
	memDir := d.cfg.Store.MemoryDir
	if memDir == "" {
		memDir = "memory"
	}
	store := codememory.NewFileStore(memDir, "user_"+userID+"/"+convPrefix, taskKey)
	return codememory.New(store, limits, sanitize)
}

// buildSandbox picks the in-process LocalSandboxClient (dev/self-hosted
// mode) when no external sandbox URL is configured, or the HTTP sandbox
// client otherwise. The two disagree on who owns the conversation-scoped
// path prefix: LocalSandboxClient is rooted directly at the conversation
// directory so the Dispatcher must pass paths through unprefixed, while the
// HTTP sandbox owns one shared root and expects the conversation subdir
// prepended by the Dispatcher on every call.
// buildSandbox's third return value is the conversation workspace's local
// filesystem path, used for archival; empty when the sandbox is an
// external HTTP server with no local filesystem access.
func (d *taskDeps) buildSandbox(userID, convPrefix string) (runtime.SandboxClient, string, string) {
	if d.cfg.Sandbox.BaseURL == "" {
		root := filepath.Join(d.cfg.WorkspaceRoot, "user_"+userID, convPrefix)
		timeout := time.Duration(d.cfg.Limits.TerminalRunTimeout) * time.Millisecond
		return runtime.NewLocalSandboxClient(root, timeout), "", root
	}
	httpClient := d.sandboxHTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return runtime.NewHTTPSandboxClient(d.cfg.Sandbox.BaseURL, httpClient), filepath.Join("user_"+userID, convPrefix), ""
}
