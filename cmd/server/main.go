package main // Entry point package

import (
    "context" // background maintenance contexts
    "log"     // Logging library
    "time"    // maintenance ticker interval

    "github.com/joho/godotenv"    // .env loader for local development
    "github.com/labstack/echo/v4" // Echo web framework

    "github.com/iliyamo/identity-service/internal/auth"       // auth orchestrator and its collaborators
    "github.com/iliyamo/identity-service/internal/config"     // Internal config loader
    "github.com/iliyamo/identity-service/internal/database"   // MySQL connection pool
    "github.com/iliyamo/identity-service/internal/handler"    // HTTP adapters
    "github.com/iliyamo/identity-service/internal/middleware" // rate limiting
    "github.com/iliyamo/identity-service/internal/queue"      // email consumer
    "github.com/iliyamo/identity-service/internal/repository" // DB repositories
    "github.com/iliyamo/identity-service/internal/router"     // Internal router setup
    email "github.com/iliyamo/identity-service/internal/service"
)

func main() {
    // Load .env if present; real deployments set the environment directly.
    _ = godotenv.Load()

    cfg := config.Load()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.Fatalf("database: %v", err)
    }
    defer db.Close()

    // Redis is optional: nil disables rate limiting and degrades the
    // blacklist to its durable database fallback.
    rdb := config.NewRedisClient()
    if rdb == nil {
        log.Println("redis unavailable; blacklist falls back to database, rate limiting disabled")
    }

    users := repository.NewUserRepo(db)
    sessions := repository.NewSessionRepo(db)
    blacklist := auth.NewBlacklist(rdb, repository.NewBlacklistRepo(db))
    guard := auth.NewLockoutGuard(users, cfg.LockoutThreshold, cfg.LockoutDuration)
    audit := auth.NewAuditRecorder(repository.NewAuditRepo(db))
    mailer := email.New()

    svc := auth.NewService(cfg, users, sessions, blacklist, guard, audit, mailer)

    // Deliver queued verification / reset emails in the background.  The
    // consumer reconnects on broker failures and never takes the service
    // down with it.
    go func() {
        if err := queue.StartEmailConsumer(); err != nil {
            log.Printf("email consumer stopped: %v", err)
        }
    }()

    // Periodic maintenance: expire idle sessions, drop blacklist rows
    // whose tokens are past their natural expiry.
    go func() {
        ticker := time.NewTicker(time.Hour)
        defer ticker.Stop()
        for range ticker.C {
            ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
            svc.PurgeExpired(ctx)
            cancel()
        }
    }()

    e := echo.New()
    e.HideBanner = true

    router.RegisterRoutes(e)
    router.RegisterAuth(e,
        handler.NewAuthHandler(svc),
        handler.NewSessionHandler(svc),
        handler.NewAuditHandler(audit),
        cfg.JWTSecret,
        blacklist,
        middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
    )

    addr := ":" + cfg.Port
    log.Printf("listening on %s (env=%s)", addr, cfg.Env)
    if err := e.Start(addr); err != nil {
        log.Fatal(err)
    }
}
