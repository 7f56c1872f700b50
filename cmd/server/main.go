package main // Entry point package

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/identity-service/internal/config"
	"github.com/iliyamo/identity-service/internal/database"
	"github.com/iliyamo/identity-service/internal/handler"
	"github.com/iliyamo/identity-service/internal/logger"
	"github.com/iliyamo/identity-service/internal/middleware"
	"github.com/iliyamo/identity-service/internal/queue"
	"github.com/iliyamo/identity-service/internal/repository"
	"github.com/iliyamo/identity-service/internal/router"
	"github.com/iliyamo/identity-service/internal/service"
	"github.com/iliyamo/identity-service/internal/utils"
)

const issuer = "identity-service"

func main() {
	cfg := config.Load()

	log, err := logger.New(issuer, cfg.Env, cfg.LogLevel)
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DSN())
	if err != nil {
		log.Fatal("mysql connect failed", zap.Error(err))
	}
	defer func() { _ = db.Close() }()
	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatal("migrations failed", zap.Error(err))
		}
	}

	rdb, err := config.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("redis connect failed", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	kv := repository.NewKVStore(rdb, cfg.Redis.KeyPrefix, cfg.Retry.Policy("redis"), log)
	store := repository.NewSQLStore(db, cfg.Retry.Policy("mysql"))
	users := repository.NewUserRepo(store)
	roles := repository.NewRoleRepo(store)
	history := repository.NewLoginHistoryRepo(store)

	hasher, err := utils.NewPasswordHasher(cfg.PBKDF2Iterations)
	if err != nil {
		log.Fatal("password hasher", zap.Error(err))
	}
	clock := service.SystemClock{}
	signer := utils.NewSigner(cfg.JWTSecret, issuer, clock.Now)
	tokens := service.NewTokenizer(kv, signer, cfg.AccessTTL(), cfg.RefreshTTL())

	var events service.LoginPublisher
	if cfg.LoginEvents {
		events = queue.NewPublisher(cfg.AMQPURL)
	}
	authSvc := service.NewAuthService(service.AuthDeps{
		Users:     users,
		Roles:     roles,
		History:   history,
		Passwords: hasher,
		Tokens:    tokens,
		Events:    events,
		Clock:     clock,
		Log:       log,
	})
	roleSvc := service.NewRoleService(roles, users, log)
	userSvc := service.NewUserService(users, roles, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(log))

	router.RegisterRoutes(e, map[string]handler.Pinger{
		"mysql": handler.PingFunc(db.PingContext),
		"redis": kv,
	})
	router.RegisterAuth(e,
		handler.NewAuthHandler(authSvc, clock, log),
		tokens,
		middleware.LoginRateLimit(cfg.RateLimit, kv, log),
	)
	router.RegisterAdmin(e,
		handler.NewUserHandler(userSvc, log),
		handler.NewRoleHandler(roleSvc, log),
		tokens,
	)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
