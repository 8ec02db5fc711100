package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "identity"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth: AuthConfig{
			JWTSecret:   "0123456789abcdef0123456789abcdef",
			JWTIssuer:   "identity-api",
			JWTAudience: "identity-clients",
		},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.App.Store != StorePostgres {
		t.Fatalf("expected postgres store default, got %q", c.App.Store)
	}
	if c.Auth.JWTAlgorithm != "HS256" {
		t.Fatalf("expected HS256 default, got %q", c.Auth.JWTAlgorithm)
	}
	if c.Auth.AccessTokenTTL != 60*time.Minute {
		t.Fatalf("expected 60m access ttl default, got %s", c.Auth.AccessTokenTTL)
	}
	if c.Login.MaxAttempts != 5 || c.Login.AttemptWindow != 15*time.Minute {
		t.Fatalf("unexpected login defaults: %+v", c.Login)
	}
}

func TestValidate_IssuerAndAudienceRequired(t *testing.T) {
	c := validLocal()
	c.Auth.JWTIssuer = ""
	c.Auth.JWTAudience = ""
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "JWT_ISSUER") || !strings.Contains(err.Error(), "JWT_AUDIENCE") {
		t.Fatalf("expected both issuer and audience reported, got %v", err)
	}
}

func TestValidate_RejectsUnknownAlgorithm(t *testing.T) {
	c := validLocal()
	c.Auth.JWTAlgorithm = "none"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for alg none")
	}
}

func TestValidate_MemoryStoreSkipsDB(t *testing.T) {
	c := validLocal()
	c.App.Store = StoreMemory
	c.DB = DBConfig{}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	c.App.Env = "production"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected memory store rejected in production")
	}
}

func TestValidate_SeedRequiresBothFields(t *testing.T) {
	c := validLocal()
	c.Seed.AdminEmail = "admin@example.com"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error when seed password missing")
	}
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("STORE", "memory")
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("JWT_ISSUER", "identity-api")
	t.Setenv("JWT_AUDIENCE", "identity-clients")
	t.Setenv("JWT_ACCESS_TTL", "soon")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "JWT_ACCESS_TTL") {
		t.Fatalf("expected JWT_ACCESS_TTL parse error, got %v", err)
	}

	t.Setenv("JWT_ACCESS_TTL", "30m")
	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Auth.AccessTokenTTL != 30*time.Minute {
		t.Fatalf("expected 30m, got %s", c.Auth.AccessTokenTTL)
	}
}
