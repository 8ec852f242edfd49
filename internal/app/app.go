package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ctc-chat/core/internal/config"
	"github.com/ctc-chat/core/internal/database"
	"github.com/ctc-chat/core/internal/middleware"
	"github.com/ctc-chat/core/internal/modules/media"
	"github.com/ctc-chat/core/internal/modules/membership"
	"github.com/ctc-chat/core/internal/modules/realtime"
	"github.com/ctc-chat/core/internal/modules/realtime/state"
	pkgjwt "github.com/ctc-chat/core/internal/pkg/jwt"
	pkgredis "github.com/ctc-chat/core/internal/pkg/redis"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg      *config.AppConfig
	router   *gin.Engine
	db       *gorm.DB
	registry *realtime.Registry
	gateway  *realtime.Gateway
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// New initializes the application: config → DB → Redis → realtime core → routes.
func New(logger *zap.Logger, configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	pkgjwt.SetSecret(cfg.JWTSecret)

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	store := state.NewRedisStore(rc, cfg.Realtime.PresenceTTL, cfg.Realtime.TypingTTL)

	var issuer media.Issuer
	if tokenIssuer, err := media.NewTokenIssuer(cfg.Media.APIKey, cfg.Media.APISecret, cfg.Media.URL); err == nil {
		issuer = tokenIssuer
	} else {
		logger.Warn("media routing disabled", zap.Error(err))
		issuer = media.Disabled{}
	}

	registry := realtime.NewRegistry()
	subs := realtime.NewSubscriptions()
	fanout := realtime.NewFanout(registry, subs, store, logger)
	members := membership.NewService(db)
	coord := realtime.NewCoordinator(store, members, registry, subs, fanout, issuer, logger)
	gateway := realtime.NewGateway(coord, validateIdentity, cfg.Realtime.HeartbeatInterval, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go fanout.Run(ctx)

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	app := &App{
		cfg:      cfg,
		router:   router,
		db:       db,
		registry: registry,
		gateway:  gateway,
		logger:   logger,
		cancel:   cancel,
	}
	app.registerRoutes(members, store, issuer)
	return app, nil
}

// validateIdentity resolves a realtime handshake token to an identity.
func validateIdentity(token string) (realtime.Identity, error) {
	claims, err := middleware.ValidateTokenClaims(token)
	if err != nil {
		return realtime.Identity{}, err
	}
	return realtime.Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

func corsConfig(cfg *config.AppConfig) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if len(cfg.AllowedOrigins) > 0 && !cfg.IsDev() {
		patterns := cfg.AllowedOrigins
		corsCfg.AllowOriginFunc = func(origin string) bool {
			host := extractOriginHost(origin)
			for _, pattern := range patterns {
				if matchOriginPattern(pattern, host) {
					return true
				}
			}
			return false
		}
	} else {
		corsCfg.AllowOriginFunc = func(origin string) bool { return true }
	}
	return corsCfg
}

// extractOriginHost returns the "host[:port]" portion of an origin URL.
func extractOriginHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return origin
	}
	return u.Host
}

// matchOriginPattern reports whether host matches the given wildcard pattern.
func matchOriginPattern(pattern, host string) bool {
	if pattern == host {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:]
		return strings.HasSuffix(host, suffix)
	}
	if strings.HasSuffix(pattern, ":*") {
		prefix := pattern[:len(pattern)-1]
		return strings.HasPrefix(host, prefix)
	}
	return false
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown cleans up background goroutines and the socket server.
func (a *App) Shutdown() {
	a.cancel()
	a.gateway.Close()
}
