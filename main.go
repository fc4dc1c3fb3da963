package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/finboard/finboard/backend/gateway/handlers"
	"github.com/finboard/finboard/backend/gateway/internal/auth"
	"github.com/finboard/finboard/backend/gateway/internal/config"
	"github.com/finboard/finboard/backend/gateway/internal/session"
	"github.com/finboard/finboard/backend/gateway/internal/tokens"
	"github.com/finboard/finboard/backend/gateway/internal/users"
	"github.com/finboard/finboard/backend/gateway/pkg/logger"
	"github.com/finboard/finboard/backend/gateway/pkg/metrics"
	"github.com/finboard/finboard/backend/gateway/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal, LOG_FORMAT: text|json
	logger.SetFormat(os.Getenv("LOG_FORMAT"))
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: postgres=%v mongo=%v redis=%v env=%s",
		cfg.Postgres.DSN != "", cfg.MongoDB.URI != "", cfg.Redis.Addr() != "", cfg.Server.Environment)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	issuer, err := tokens.NewIssuer(cfg.JWT)
	if err != nil {
		logger.Fatalf("token issuer: %v", err)
	}

	store, err := users.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("credential store: %v", err)
	}
	defer store.Close()

	deps := map[string]handlers.Pinger{"store": store.Ping}

	var rdb *redis.Client
	if addr := cfg.Redis.Addr(); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warnf("redis ping failed (%s): %v", addr, err)
		} else {
			logger.Infof("connected to redis at %s", addr)
		}
		deps["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.CORS(cfg.Server.CORSOrigin))

	var loginMW []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && rdb != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			loginMW = append(loginMW, middleware.RedisRateLimitMiddleware(rdb, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
			logger.Infof("login rate limit: redis, %.2f rps burst %d", cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		} else {
			loginMW = append(loginMW, middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
			logger.Infof("login rate limit: memory, %.2f rps burst %d", cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		}
	}

	authSvc := auth.NewService(users.NewService(store, cfg.Auth.BcryptCost), issuer, cfg.Auth.BcryptCost)
	handlers.NewAuthHandler(authSvc, issuer, cfg.Views.CookieSecure).Register(r.Group("/"), loginMW...)

	handlers.RegisterHealth(r, startTime, deps)
	handlers.RegisterSwagger(r)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// browser navigations; API routes above are classified "other" and pass through
	policy := session.DefaultPolicy().WithPaths(cfg.Views.LoginPath, cfg.Views.LandingPath)
	views := r.Group("/", middleware.ViewGuard(issuer, policy, cfg.Views.CookieSecure))
	serveView := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"view": c.Request.URL.Path})
	}
	views.GET("/", serveView)
	views.GET(policy.LoginPath, serveView)
	for _, p := range policy.Protected {
		views.GET(p, serveView)
		views.GET(p+"/*rest", serveView)
	}

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting gateway on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
