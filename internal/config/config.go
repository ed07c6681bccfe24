package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	AuthProviderFirebase = "firebase"
	AuthProviderLocal    = "local"

	DefaultFirebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	DefaultLocalIssuer     = "learnhub-local"
)

type Config struct {
	DB     DBConfig
	Server ServerConfig
	Auth   AuthConfig
	Audit  AuditConfig
}

type DBConfig struct {
	URL             string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns DATABASE_URL when set, otherwise a keyword/value DSN built
// from the discrete settings.
func (c DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

type ServerConfig struct {
	Port            string
	FrontendURL     string
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	Provider string
	Firebase FirebaseConfig
	Local    LocalAuthConfig
	// BootstrapAdminEmails are promoted to ADMIN at startup if their row exists.
	BootstrapAdminEmails []string
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	CredentialsJSON string
	JWKSURL         string
}

type LocalAuthConfig struct {
	Secret string
	Issuer string
}

type AuditConfig struct {
	Enabled   bool
	QueueSize int
}

func Load() *Config {
	return &Config{
		DB: DBConfig{
			URL:             getEnv("DATABASE_URL", ""),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "learnhub"),
			Password:        getEnv("DB_PASSWORD", "learnhub_secret"),
			Name:            getEnv("DB_NAME", "learnhub"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:3000"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			Provider: strings.ToLower(getEnv("AUTH_PROVIDER", AuthProviderFirebase)),
			Firebase: FirebaseConfig{
				ProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
				CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
				CredentialsJSON: getEnv("FIREBASE_CREDENTIALS_JSON", ""),
				JWKSURL:         getEnv("FIREBASE_JWKS_URL", DefaultFirebaseJWKSURL),
			},
			Local: LocalAuthConfig{
				Secret: getEnv("LOCAL_AUTH_SECRET", ""),
				Issuer: getEnv("LOCAL_AUTH_ISSUER", DefaultLocalIssuer),
			},
			BootstrapAdminEmails: getEnvAsList("BOOTSTRAP_ADMIN_EMAILS"),
		},
		Audit: AuditConfig{
			Enabled:   getEnvAsBool("AUDIT_ENABLED", true),
			QueueSize: getEnvAsInt("AUDIT_QUEUE_SIZE", 1000),
		},
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Auth.Provider {
	case AuthProviderFirebase:
		f := c.Auth.Firebase
		if f.ProjectID == "" && f.CredentialsFile == "" && f.CredentialsJSON == "" {
			errs = append(errs, errors.New("firebase auth requires FIREBASE_PROJECT_ID or service account credentials"))
		}
		if f.JWKSURL == "" {
			errs = append(errs, errors.New("FIREBASE_JWKS_URL must not be empty"))
		}
	case AuthProviderLocal:
		if len(c.Auth.Local.Secret) < 16 {
			errs = append(errs, errors.New("local auth requires LOCAL_AUTH_SECRET of at least 16 characters"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_PROVIDER %q", c.Auth.Provider))
	}

	if c.Server.Port == "" {
		errs = append(errs, errors.New("SERVER_PORT must not be empty"))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
