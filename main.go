package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kata-board/api"
	"kata-board/domain"
	"kata-board/storage"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger := log.New()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	store, err := storage.New(cfg.StorageConnStr, cfg.ProjectsTable, cfg.UsersTable, cfg.ChangesQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	rc := redis.NewClient(cfg.Redis)
	defer rc.Close()
	projects := storage.NewCache(store, rc, cfg.CacheTTL)
	deduper := api.NewRedisDeduper(rc, cfg.DeduperTTL)

	var auth *api.Auth
	if cfg.TestMode {
		auth = api.NewTestAuth(cfg.TestSecret, cfg.RoleClaim)
	} else {
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
		auth = api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/", cfg.RoleClaim)
	}

	notifier := api.StartNotifier(store, cfg.Notifier, logger)
	defer notifier.Close()

	svc := api.Services{
		Projects: domain.NewProjectService(projects, notifier, logger),
		Boards:   domain.NewBoardService(projects, notifier, logger),
		Users:    domain.NewUserService(store, logger),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(api.AccessLogMiddleware(logger))
	e.Use(api.GzipRequestMiddleware())

	api.Register(e, svc, auth, deduper, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
