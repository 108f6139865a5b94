package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Issuer  string // Required: issuer claim for tokens, also the public base URL
	BaseURL string // Optional: base URL for links in emails (default: Issuer)

	PrivateKeyFile string // Optional: path to RSA private key PEM; empty generates an ephemeral key
	RSABits        int    // Optional: RSA key size when generating (default: 4096)

	DatabaseFile string // Optional: path to SQLite database file (default: ./auth.db)

	RedisAddr     string // Optional: redis address (default: localhost:6379)
	RedisPassword string // Optional: redis password
	RedisDB       int    // Optional: redis database number (default: 0)

	AccessTokenTTL  time.Duration // Optional: access token lifetime (default: 15m)
	RefreshTokenTTL time.Duration // Optional: refresh token lifetime (default: 168h)
	AuthCodeTTL     time.Duration // Optional: authorization code lifetime (default: 10m)
	ResetTokenTTL   time.Duration // Optional: password reset link lifetime (default: 10m)
	SetupTokenTTL   time.Duration // Optional: account setup link lifetime (default: 24h)

	AdminEmail    string // Optional: seeded admin email (default: admin@localhost)
	AdminUsername string // Optional: seeded admin username (default: admin)
	AdminPassword string // Optional: seeded admin password; empty generates one

	// Clients maps registered OAuth2 client ids to their redirect URIs,
	// parsed from AUTH_CLIENTS as "id=uri[,uri];id2=uri".
	Clients map[string][]string

	SMTPAddr     string // Optional: SMTP host:port; empty disables outgoing mail
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	SecureCookies bool // Secure flag on session cookies (default: true outside dev)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

func LoadConfig() Config {
	_ = godotenv.Load()

	cfg := Config{
		Issuer:         getEnvOrDefault("AUTH_ISSUER", "http://localhost:8080"),
		BaseURL:        os.Getenv("AUTH_BASE_URL"),
		PrivateKeyFile: os.Getenv("AUTH_PRIVATE_KEY_FILE"),
		RSABits:        getEnvIntOrDefault("AUTH_RSA_BITS", 4096),
		DatabaseFile:   getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),

		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),

		AccessTokenTTL:  getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		AuthCodeTTL:     getEnvDurationOrDefault("AUTH_CODE_TTL", 10*time.Minute),
		ResetTokenTTL:   getEnvDurationOrDefault("AUTH_RESET_TOKEN_TTL", 10*time.Minute),
		SetupTokenTTL:   getEnvDurationOrDefault("AUTH_SETUP_TOKEN_TTL", 24*time.Hour),

		AdminEmail:    getEnvOrDefault("AUTH_ADMIN_EMAIL", "admin@localhost"),
		AdminUsername: getEnvOrDefault("AUTH_ADMIN_USERNAME", "admin"),
		AdminPassword: os.Getenv("AUTH_ADMIN_PASSWORD"),

		Clients: parseClients(os.Getenv("AUTH_CLIENTS")),

		SMTPAddr:     os.Getenv("SMTP_ADDR"),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getEnvOrDefault("SMTP_FROM", "no-reply@localhost"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = cfg.Issuer
	}
	cfg.SecureCookies = getEnvBoolOrDefault("AUTH_SECURE_COOKIES", cfg.Env != "dev")

	return cfg
}

// parseClients reads "id=uri[,uri];id2=uri" into the client registry. A
// malformed entry is skipped rather than failing startup.
func parseClients(raw string) map[string][]string {
	clients := make(map[string][]string)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, uris, ok := strings.Cut(entry, "=")
		if !ok || id == "" || uris == "" {
			continue
		}
		var parsed []string
		for _, uri := range strings.Split(uris, ",") {
			if uri = strings.TrimSpace(uri); uri != "" {
				parsed = append(parsed, uri)
			}
		}
		if len(parsed) > 0 {
			clients[strings.TrimSpace(id)] = parsed
		}
	}
	return clients
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
