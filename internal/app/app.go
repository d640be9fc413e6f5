// Package app boots the usage accounting server from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tokenmeter/tokenmeter/internal/catalog"
	"github.com/tokenmeter/tokenmeter/internal/clock"
	"github.com/tokenmeter/tokenmeter/internal/config"
	"github.com/tokenmeter/tokenmeter/internal/db"
	internalhttp "github.com/tokenmeter/tokenmeter/internal/http"
	"github.com/tokenmeter/tokenmeter/internal/ledger"
	"github.com/tokenmeter/tokenmeter/internal/logging"
	"github.com/tokenmeter/tokenmeter/internal/models"
	"github.com/tokenmeter/tokenmeter/internal/pricing"
	"github.com/tokenmeter/tokenmeter/internal/security"
	"github.com/tokenmeter/tokenmeter/internal/settings"
	"github.com/tokenmeter/tokenmeter/internal/usage"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(configPath))
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the accounting API server with database-backed components.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(configPath))
	if errLoad != nil {
		return errLoad
	}
	logging.Setup(cfg.Logging)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errSeed := seedAdmin(ctx, conn, cfg.Admin); errSeed != nil {
		return errSeed
	}
	if errRefresh := settings.Refresh(ctx, conn); errRefresh != nil {
		return errRefresh
	}

	cache := newCacheClient(ctx, cfg.Redis)

	clk := clock.System{}
	cat := catalog.NewStore(conn, clk, cache, cfg.Redis.CacheTTL())
	resolver := pricing.NewResolver(cat)
	l := ledger.New(conn, clk)
	recorder := usage.NewRecorder(resolver, l)

	engine := internalhttp.NewRouter(internalhttp.RouterDeps{
		DB:       conn,
		Catalog:  cat,
		Ledger:   l,
		Recorder: recorder,
		JWT:      cfg.JWT,
		Pricing:  cfg.Pricing,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Server.Addr)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		log.Info("server stopped")
		return nil
	case errServe := <-errCh:
		return errServe
	}
}

// seedAdmin creates the bootstrap admin account when none exists.
func seedAdmin(ctx context.Context, conn *gorm.DB, adminCfg config.AdminConfig) error {
	var count int64
	if errCount := conn.WithContext(ctx).Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return fmt.Errorf("count admins: %w", errCount)
	}
	if count > 0 {
		return nil
	}
	if adminCfg.Password == "" {
		return fmt.Errorf("no admin accounts exist and admin.password is not set")
	}
	hashed, errHash := security.HashPassword(adminCfg.Password)
	if errHash != nil {
		return fmt.Errorf("hash admin password: %w", errHash)
	}
	now := time.Now().UTC()
	admin := models.Admin{
		Username:  adminCfg.Username,
		Password:  hashed,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := conn.WithContext(ctx).Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("create bootstrap admin: %w", errCreate)
	}
	log.Infof("created bootstrap admin %q", admin.Username)
	return nil
}

// newCacheClient connects to redis when configured; pricing lookups fall back
// to the database when the cache is absent or unreachable.
func newCacheClient(ctx context.Context, redisCfg config.RedisConfig) *redis.Client {
	if redisCfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		log.WithError(errPing).Warn("redis unreachable, price cache disabled")
		_ = client.Close()
		return nil
	}
	return client
}
