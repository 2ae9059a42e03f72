package config // package config loads application configuration from environment variables

import (
    "log" // log is used to report configuration errors and halt execution
    "os"  // os provides access to environment variables
    "time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Token lifetimes, the lockout policy and the
// bcrypt cost are immutable after startup; the struct is built once in main
// and passed to constructors rather than read from ambient globals.
type Config struct {
    Env              string        // application environment (e.g. "dev", "prod")
    Port             string        // HTTP port to listen on
    DBUser           string        // database username
    DBPass           string        // database password (optional)
    DBHost           string        // database host address
    DBPort           string        // database port number
    DBName           string        // database name
    JWTSecret        string        // secret used to sign JWTs (HS256)
    AccessTTL        time.Duration // access token time-to-live
    RefreshTTL       time.Duration // refresh token time-to-live
    EmailTokenTTL    time.Duration // verification / password-reset token time-to-live
    BcryptCost       int           // bcrypt cost for password hashing
    LockoutThreshold int           // failed logins before the account locks
    LockoutDuration  time.Duration // how long a locked account stays locked
    RequireVerified  bool          // refuse login until the email is verified
    FrontendBaseURL  string        // base URL used when building email links
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Token lifetime and
// lockout defaults follow the security policy: 30 minute access tokens,
// 7 day refresh tokens, lockout for 30 minutes after 5 failures.
func Load() Config {
    return Config{
        Env:              must("APP_ENV"),
        Port:             must("APP_PORT"),
        DBUser:           must("DB_USER"),
        DBPass:           os.Getenv("DB_PASS"), // empty allowed
        DBHost:           must("DB_HOST"),
        DBPort:           must("DB_PORT"),
        DBName:           must("DB_NAME"),
        JWTSecret:        must("JWT_SECRET"),
        AccessTTL:        time.Duration(envInt("ACCESS_TOKEN_TTL_MIN", 30)) * time.Minute,
        RefreshTTL:       time.Duration(envInt("REFRESH_TOKEN_TTL_DAYS", 7)) * 24 * time.Hour,
        EmailTokenTTL:    time.Duration(envInt("EMAIL_TOKEN_TTL_HOURS", 24)) * time.Hour,
        BcryptCost:       envInt("BCRYPT_COST", 12),
        LockoutThreshold: envInt("LOCKOUT_THRESHOLD", 5),
        LockoutDuration:  time.Duration(envInt("LOCKOUT_DURATION_MIN", 30)) * time.Minute,
        RequireVerified:  envBool("REQUIRE_VERIFIED_EMAIL", false),
        FrontendBaseURL:  envStr("FRONTEND_BASE_URL", "http://localhost:3000"),
    }
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}
