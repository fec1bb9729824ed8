package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
	"github.com/aryan0dhankhar/rulemaster/internal/featureflags"
	"github.com/aryan0dhankhar/rulemaster/internal/handler"
	"github.com/aryan0dhankhar/rulemaster/internal/infrastructure/keycloak"
	"github.com/aryan0dhankhar/rulemaster/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/rulemaster/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/rulemaster/internal/llm"
	"github.com/aryan0dhankhar/rulemaster/internal/nlp"
	"github.com/aryan0dhankhar/rulemaster/internal/observability/metrics"
	"github.com/aryan0dhankhar/rulemaster/internal/observability/requestid"
	"github.com/aryan0dhankhar/rulemaster/internal/observability/tracing"
	"github.com/aryan0dhankhar/rulemaster/internal/reliability/retry"
	"github.com/aryan0dhankhar/rulemaster/internal/repository"
	"github.com/aryan0dhankhar/rulemaster/internal/security"
	"github.com/aryan0dhankhar/rulemaster/internal/security/audit"
	"github.com/aryan0dhankhar/rulemaster/internal/security/auth"
	"github.com/aryan0dhankhar/rulemaster/internal/security/middleware"
	"github.com/aryan0dhankhar/rulemaster/internal/security/ratelimit"
	"github.com/aryan0dhankhar/rulemaster/internal/service"
	"github.com/aryan0dhankhar/rulemaster/internal/worker"
	"github.com/aryan0dhankhar/rulemaster/pkg/config"
	"github.com/aryan0dhankhar/rulemaster/pkg/database"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger and tracing
	log := logger.NewLogger(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting RuleMaster server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, "rulemaster", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	checks := map[string]handler.CheckFunc{}

	// 3. Initialize rule storage
	var ruleRepo domain.RuleRepository
	switch cfg.StorageDriver {
	case config.StorageMemory:
		log.Warn("using in-memory rule storage; rules are lost on restart")
		ruleRepo = repository.NewMemoryRuleRepository()
	default:
		pool, err := retry.Do(ctx, retry.StartupConfig(), log, "postgres",
			func(ctx context.Context) (*database.ConnectionPool, error) {
				return database.NewConnectionPool(ctx, &cfg.Database, log)
			})
		if err != nil {
			log.Error("failed to connect to Postgres", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Migrate(ctx); err != nil {
			log.Error("failed to migrate schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
		ruleRepo = repository.NewPostgresRuleRepository(pool.GetDB(), log)
		checks["database"] = pool.Health
	}

	// 4. Initialize rate limiting (Redis when configured, otherwise per-process)
	window := time.Minute
	loginLimiter := ratelimit.NewMemoryLimiter(cfg.LoginAttemptsPerMinute, window)
	defer loginLimiter.Stop()

	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		redisClient, err := retry.Do(ctx, retry.StartupConfig(), log, "redis",
			func(ctx context.Context) (*redis.Client, error) {
				return redis.NewClient(ctx, cfg.RedisURL, log)
			})
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitPerMinute, window, log)
		checks["redis"] = redisClient.Ping
	} else {
		memLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimitPerMinute, window)
		defer memLimiter.Stop()
		limiter = memLimiter
	}

	// 5. Initialize identity provider and token verification
	kc := keycloak.NewClient(keycloak.Config{
		BaseURL:      cfg.Keycloak.URL,
		Realm:        cfg.Keycloak.Realm,
		TokenRealm:   cfg.Keycloak.TokenRealm,
		ClientID:     cfg.Keycloak.ClientID,
		ClientSecret: cfg.Keycloak.ClientSecret,
	}, log)
	checks["keycloak"] = kc.Ping

	verifier, err := retry.Do(ctx, retry.StartupConfig(), log, "jwks",
		func(ctx context.Context) (*auth.Verifier, error) {
			return auth.NewJWKSVerifier(ctx, cfg.Keycloak.Issuer())
		})
	if err != nil {
		log.Error("failed to load signing keys", slog.String("error", err.Error()))
		os.Exit(1)
	}

	strategy, err := security.NewStrategy(cfg.AuthzStrategy, cfg.AdminRoleSuffix, cfg.SuperAdminRole, cfg.SuperAdminGroup)
	if err != nil {
		log.Error("invalid authorization strategy", slog.String("error", err.Error()))
		os.Exit(1)
	}
	authz := security.NewAuthorizationService(strategy, log)
	access := security.NewRuleAccess(log)
	auditLogger := audit.NewLogger(log)

	// 6. Initialize the oracle
	var oracle llm.Provider
	if strings.TrimSpace(cfg.Oracle.APIKey) == "" {
		log.Warn("ORACLE_API_KEY not set; prompt endpoints will return 502")
		oracle = llm.UnavailableProvider{Reason: "ORACLE_API_KEY not set"}
	} else {
		oracle, err = llm.NewOpenAIProvider(llm.Config{
			APIKey:  cfg.Oracle.APIKey,
			BaseURL: cfg.Oracle.BaseURL,
			Model:   cfg.Oracle.Model,
			Timeout: cfg.Oracle.HTTPTimeout,
		}, log)
		if err != nil {
			log.Error("failed to configure oracle", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 7. Initialize services
	ruleService := service.NewRuleService(ruleRepo, log)
	chatService := service.NewChatService(
		nlp.NewIntentClassifier(oracle, log),
		nlp.NewRuleParser(oracle, log),
		ruleService,
		authz,
		access,
		featureflags.EnabledOr(featureflags.DepartmentScopedParsing, true),
		log,
	)
	tenantService := service.NewTenantService(kc, log)
	userService := service.NewUserService(kc, log)
	authService := service.NewAuthService(kc, log)

	// 8. Initialize handlers
	healthHandler := handler.NewHealthHandler(checks, log)
	ruleHandler := handler.NewRuleHandler(ruleService, authz, access, auditLogger, log)
	chatHandler := handler.NewChatHandler(chatService, auditLogger, log)
	tenantHandler := handler.NewTenantHandler(tenantService, authz, auditLogger, log)
	userHandler := handler.NewUserHandler(userService, authz, auditLogger, log)
	authHandler := handler.NewAuthHandler(authService, log)

	requireFields := func(h http.HandlerFunc, fields ...string) http.Handler {
		return middleware.RequireJSONFields(log, fields...)(h)
	}

	// 9. Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthHandler.Health)
	mux.HandleFunc("GET /readyz", healthHandler.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle("POST /api/v1/auth/login", requireFields(authHandler.Login, "username", "password"))
	mux.Handle("POST /api/v1/auth/logout", requireFields(authHandler.Logout, "refresh_token"))

	mux.Handle("POST /api/v1/tenants", requireFields(tenantHandler.Create, "realmName"))
	mux.HandleFunc("GET /api/v1/tenants", tenantHandler.List)
	mux.HandleFunc("PATCH /api/v1/tenants/{realm}", tenantHandler.Update)
	mux.HandleFunc("DELETE /api/v1/tenants/{realm}", tenantHandler.Delete)

	mux.Handle("POST /api/v1/users/onboard", requireFields(userHandler.Onboard,
		"username", "email", "password", "groupName", "roleName"))
	mux.HandleFunc("GET /api/v1/users", userHandler.List)

	mux.HandleFunc("POST /api/v1/rules", ruleHandler.Create)
	mux.HandleFunc("GET /api/v1/rules", ruleHandler.List)
	mux.HandleFunc("GET /api/v1/rules/stats/rules", ruleHandler.Stats)
	mux.HandleFunc("GET /api/v1/rules/departments", ruleHandler.Departments)
	mux.HandleFunc("GET /api/v1/rules/department/{department}", ruleHandler.ListByDepartment)
	mux.HandleFunc("GET /api/v1/rules/{id}", ruleHandler.Get)
	mux.HandleFunc("PUT /api/v1/rules/{id}", ruleHandler.Update)
	mux.HandleFunc("DELETE /api/v1/rules/{id}", ruleHandler.Delete)
	mux.HandleFunc("PATCH /api/v1/rules/{id}/toggle", ruleHandler.Toggle)
	mux.Handle("POST /api/v1/rules/nlp", requireFields(chatHandler.ParseRule, "prompt"))

	mux.Handle("POST /api/v1/chat/ai", requireFields(chatHandler.Chat, "prompt"))
	if featureflags.Enabled(featureflags.ChatWebsocket) {
		mux.Handle("GET "+middleware.ChatSocketPath, handler.NewChatSocketHandler(chatHandler, cfg.CORSAllowedOrigins, log))
	}

	// Chain middleware: tracing -> request ID -> CORS -> metrics -> input checks -> JWT -> rate limit -> audit -> mux
	var root http.Handler = metrics.CaptureRoute(mux)
	root = middleware.AuditMiddleware(auditLogger)(root)
	root = middleware.RateLimitMiddleware(limiter, log)(root)
	root = middleware.JWTMiddleware(verifier, authz, log)(root)
	root = middleware.LoginRateLimit(loginLimiter, cfg.LoginAttemptsPerMinute, window, log)(root)
	root = middleware.SanitizeInputs(log)(root)
	root = middleware.ValidateJSONContentType(log)(root)
	root = metrics.HTTPMetricsMiddleware(root)
	root = withCORS(root, cfg.CORSAllowedOrigins)
	root = withRequestID(root, log)
	root = otelhttp.NewHandler(root, "rulemaster")

	// 10. Start stats worker in background
	statsWorker := worker.NewStatsWorker(ruleService, log, time.Duration(cfg.StatsIntervalMinutes)*time.Minute)
	go statsWorker.Start(ctx)

	// 11. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("storage", cfg.StorageDriver),
		slog.String("authz_strategy", strategy.Name()),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.Bool("chat_websocket", featureflags.Enabled(featureflags.ChatWebsocket)),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	cancel() // stops the stats worker and the JWKS refresh
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// withRequestID attaches a request ID to the context and response headers for traceability
func withRequestID(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestid.Header)
		if reqID == "" || len(reqID) > 128 {
			reqID = requestid.New()
		}
		w.Header().Set(requestid.Header, reqID)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(requestid.With(r.Context(), reqID)))

		log.Info("request completed",
			slog.String("request_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// withCORS honors the configured origins and answers preflight requests
func withCORS(next http.Handler, allowed []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if originAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Add("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
