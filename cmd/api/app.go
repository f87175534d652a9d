package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"tastebud/internal/api"
	"tastebud/internal/auth"
	"tastebud/internal/cart"
	"tastebud/internal/catalog"
	"tastebud/internal/config"
	"tastebud/internal/platform/gemini"
	"tastebud/internal/platform/localllm"
	"tastebud/internal/platform/logger"
	"tastebud/internal/profile"
	"tastebud/internal/recommend"
	"tastebud/internal/store"
)

// app holds the wired dependencies shared by the subcommands.
type app struct {
	cfg           *config.Config
	log           *logger.Logger
	restaurants   store.Repository[catalog.Restaurant]
	profiles      *profile.Service
	carts         *cart.Service
	ingester      *catalog.Ingester
	recommender   *recommend.Service
	tokens        *auth.JWTManager
	generatorName string
	closers       []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	repos, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	profiles, restaurants := repos.profiles, repos.restaurants
	a.restaurants = restaurants
	a.profiles = profile.NewService(profiles)
	a.carts = cart.NewService(repos.carts, restaurants)
	a.ingester = catalog.NewIngester(restaurants, log)

	gen, err := a.newGenerator(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.recommender = recommend.NewService(profiles, restaurants, gen, recommend.Config{
		MaxMenuItems: cfg.LLM.MaxMenuItems,
		Client: recommend.ClientConfig{
			Timeout:          cfg.LLM.Timeout,
			FailureThreshold: cfg.LLM.FailureThreshold,
			OpenTimeout:      cfg.LLM.OpenTimeout,
		},
	}, log)

	a.tokens, err = newTokenManager(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

type stores struct {
	profiles    store.Repository[profile.UserProfile]
	restaurants store.Repository[catalog.Restaurant]
	carts       store.Repository[cart.Cart]
}

func (a *app) openStores(ctx context.Context) (*stores, error) {
	if a.cfg.Database.URL == "" {
		a.log.Warn("database.url not set, using in-memory store")
		return &stores{
			profiles:    store.NewMemoryRepository[profile.UserProfile](),
			restaurants: store.NewMemoryRepository[catalog.Restaurant](),
			carts:       store.NewMemoryRepository[cart.Cart](),
		}, nil
	}

	db, err := store.Connect(a.cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)

	return postgresStores(ctx, db)
}

func postgresStores(ctx context.Context, db *sqlx.DB) (*stores, error) {
	profiles, err := store.NewPostgresRepository[profile.UserProfile](ctx, db, "user_profiles")
	if err != nil {
		return nil, err
	}
	restaurants, err := store.NewPostgresRepository[catalog.Restaurant](ctx, db, "restaurants")
	if err != nil {
		return nil, err
	}
	carts, err := store.NewPostgresRepository[cart.Cart](ctx, db, "carts")
	if err != nil {
		return nil, err
	}
	return &stores{profiles: profiles, restaurants: restaurants, carts: carts}, nil
}

// newGenerator returns a nil Generator when no provider is usable, which
// makes every recommendation take the deterministic path.
func (a *app) newGenerator(ctx context.Context) (recommend.Generator, error) {
	llm := a.cfg.LLM
	switch llm.Provider {
	case "gemini":
		if llm.GeminiAPIKey == "" {
			a.log.Warn("gemini selected but no api key configured, recommendations will use the deterministic pick")
			a.generatorName = "none"
			return nil, nil
		}
		client, err := gemini.NewClient(ctx, gemini.Options{
			APIKey:          llm.GeminiAPIKey,
			Model:           llm.GeminiModel,
			Temperature:     llm.Temperature,
			MaxOutputTokens: llm.MaxOutputTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating gemini client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		a.generatorName = "gemini:" + llm.GeminiModel
		return client, nil
	case "local":
		a.generatorName = "local:" + llm.LocalModel
		return localllm.NewClient(localllm.Options{
			URL:         llm.LocalURL,
			Model:       llm.LocalModel,
			Temperature: float64(llm.Temperature),
			MaxTokens:   int(llm.MaxOutputTokens),
		}), nil
	default:
		a.generatorName = "none"
		return nil, nil
	}
}

func newTokenManager(cfg *config.Config) (*auth.JWTManager, error) {
	tokens, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("error creating token manager: %w", err)
	}
	return tokens, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

func newRouter(a *app) *gin.Engine {
	if a.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(a.log))

	// Configure CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handler := api.NewHandler(a.recommender, a.profiles, a.restaurants, a.ingester, a.carts, api.Options{
		ImageDir:       a.cfg.Server.ImageDir,
		RequestTimeout: a.cfg.Server.RequestTimeout,
		ToolSecret:     a.cfg.Vapi.Secret,
	}, a.log)
	api.RegisterRoutes(r, handler, a.tokens)
	return r
}
