package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/httpapi"
	"github.com/MrEthical07/otpgate/identity"
	"github.com/MrEthical07/otpgate/identity/postgres"
	"github.com/MrEthical07/otpgate/identity/sqlite"
	"github.com/MrEthical07/otpgate/internal/serverconfig"
	"github.com/MrEthical07/otpgate/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	loadLocalEnv()

	cfg, err := serverconfig.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	rdb, closeRedis, err := openRedis(ctx, cfg)
	if err != nil {
		log.Fatalf("init redis: %v", err)
	}
	defer closeRedis()

	store, closeStore, err := openIdentityStore(ctx, cfg)
	if err != nil {
		log.Fatalf("init identity store: %v", err)
	}
	defer closeStore()

	builder := otpgate.New().
		WithConfig(cfg.Engine()).
		WithRedis(rdb).
		WithIdentityStore(store).
		WithDeliverer(otpgate.LogDeliverer{RevealSecrets: cfg.DevLogCodes})
	if cfg.AuditLog {
		builder = builder.WithAuditSink(otpgate.NewJSONWriterSink(os.Stdout))
	}
	engine, err := builder.Build()
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}
	defer engine.Close()

	if cfg.DevLogCodes {
		log.Println("WARNING: OTPGATE_DEV_LOG_CODES is set; codes and reset tokens are written to the log")
	}

	if err := provisionAdmin(ctx, engine, cfg.Admin); err != nil {
		log.Fatalf("provision admin: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(cfg, engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("otpgate listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}
}

func openRedis(ctx context.Context, cfg serverconfig.Config) (redis.UniversalClient, func(), error) {
	addr := cfg.RedisAddr
	var mr *miniredis.Miniredis
	if cfg.RedisEmbedded {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, err
		}
		addr = mr.Addr()
		log.Printf("using embedded redis at %s; state is lost on exit", addr)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	closeFn := func() {
		_ = client.Close()
		if mr != nil {
			mr.Close()
		}
	}

	if err := client.Ping(ctx).Err(); err != nil {
		closeFn()
		return nil, nil, err
	}
	return client, closeFn, nil
}

func openIdentityStore(ctx context.Context, cfg serverconfig.Config) (identity.Store, func(), error) {
	if cfg.UsesPostgres() {
		store, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		log.Println("identity store: postgres")
		return store, store.Close, nil
	}

	store, err := sqlite.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("identity store: sqlite %s", cfg.DatabaseURL)
	return store, func() { _ = store.Close() }, nil
}

// provisionAdmin creates the configured admin once. An existing account with
// the same email is left untouched.
func provisionAdmin(ctx context.Context, engine *otpgate.Engine, admin serverconfig.AdminConfig) error {
	if admin.Email == "" {
		return nil
	}

	account, err := engine.ProvisionAccount(ctx, otpgate.ProvisionRequest{
		Email:    admin.Email,
		Password: admin.Password,
		FullName: admin.FullName,
		Phone:    admin.Phone,
		Role:     identity.RoleAdmin,
	})
	switch {
	case errors.Is(err, otpgate.ErrDuplicateEmail):
		log.Printf("admin %s already provisioned", admin.Email)
		return nil
	case err != nil:
		return err
	}
	log.Printf("provisioned admin %s id=%s", account.Email, account.ID)
	return nil
}

func newRouter(cfg serverconfig.Config, engine *otpgate.Engine) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Printf("invalid trusted proxies %v: %v", cfg.TrustedProxies, err)
	}

	r.GET("/healthz", func(c *gin.Context) {
		if err := engine.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics {
		r.GET("/metrics", gin.WrapH(prometheus.New(engine).Handler()))
	}

	httpapi.New(engine).Register(r)
	return r
}
