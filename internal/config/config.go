package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8484"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	ProvidersFile    string        // path to providers.yaml
	OAuthRedirectURL string        // externally reachable base URL for OAuth redirects (ex: http://127.0.0.1:8484)
	RefreshInterval  time.Duration // default refresh interval before user settings apply
	CacheTTL         time.Duration // result cache TTL (default: 60s)
	ShowAllDay       bool          // show all-day events in the display list

	// Redis (optional; empty addr => in-memory credential store)
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // initial wait between retries (grows exponentially)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)

	AllowedCIDRS []string // restrict access to specific networks; tokens transit this surface
	TrustProxy   bool     // true => trust X-Forwarded-For headers
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("UPNEXT_LISTEN_PORT", ":8484"),
		ShutdownTimeout: mustDuration("UPNEXT_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("UPNEXT_LOG_LEVEL", "info"),
		PrettyLog: mustBool("UPNEXT_PRETTY_LOG", true),

		// Aggregation
		ProvidersFile:    getenv("UPNEXT_PROVIDERS_FILE", "/etc/upnext/providers.yaml"),
		OAuthRedirectURL: getenv("UPNEXT_OAUTH_REDIRECT_BASE", "http://127.0.0.1:8484"),
		RefreshInterval:  mustDuration("UPNEXT_REFRESH_INTERVAL", 60*time.Second),
		CacheTTL:         mustDuration("UPNEXT_CACHE_TTL", 60*time.Second),
		ShowAllDay:       mustBool("UPNEXT_SHOW_ALL_DAY", false),

		// Redis settings
		RedisAddr:           getenv("UPNEXT_REDIS_ADDR", ""),
		RedisUser:           getenv("UPNEXT_REDIS_USERNAME", "default"),
		RedisPassword:       getenv("UPNEXT_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("UPNEXT_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),

		// Access restrictions. Default to loopback only: OAuth tokens and
		// calendar data transit this surface.
		AllowedCIDRS: parseAllowedIPs(getenv("UPNEXT_ALLOWED_CIDRS", "127.0.0.0/8, ::1/128")),
		TrustProxy:   mustBool("UPNEXT_TRUST_PROXY", false),
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		if cfg.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
