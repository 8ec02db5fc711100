package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values come from env; a local .env file is loaded first when present.
// No business logic should depend on raw environment variables.
type Config struct {
	App   AppConfig
	DB    DBConfig
	Redis RedisConfig
	Auth  AuthConfig
	Login LoginConfig
	Seed  SeedConfig
}

type AppConfig struct {
	Env  string
	Port int

	// Store selects the user directory backend: postgres or memory.
	Store string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

// AuthConfig is the signing configuration consumed by the token codec.
// It is read once at startup and never mutated afterwards.
type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	JWTAlgorithm   string
	AccessTokenTTL time.Duration
	ClockSkew      time.Duration
}

type LoginConfig struct {
	MaxAttempts   int
	AttemptWindow time.Duration
}

// SeedConfig optionally bootstraps an Admin account on startup.
type SeedConfig struct {
	AdminEmail    string
	AdminPassword string
}

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

func Load() (Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Store = strings.TrimSpace(os.Getenv("STORE"))
	{
		n, err := mustInt("APP_PORT")
		parseErrs = appendErr(parseErrs, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := optionalInt("DB_PORT")
		parseErrs = appendErr(parseErrs, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		parseErrs = appendErr(parseErrs, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.JWTAlgorithm = strings.TrimSpace(os.Getenv("JWT_ALGORITHM"))
	{
		d, err := optionalDuration("JWT_ACCESS_TTL")
		parseErrs = appendErr(parseErrs, err)
		c.Auth.AccessTokenTTL = d
	}
	{
		d, err := optionalDuration("JWT_CLOCK_SKEW")
		parseErrs = appendErr(parseErrs, err)
		c.Auth.ClockSkew = d
	}

	{
		n, err := optionalInt("LOGIN_MAX_ATTEMPTS")
		parseErrs = appendErr(parseErrs, err)
		c.Login.MaxAttempts = n
	}
	{
		d, err := optionalDuration("LOGIN_ATTEMPT_WINDOW")
		parseErrs = appendErr(parseErrs, err)
		c.Login.AttemptWindow = d
	}

	c.Seed.AdminEmail = strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL"))
	c.Seed.AdminPassword = os.Getenv("SEED_ADMIN_PASSWORD")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks the configuration and fills in defaults for optional values.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.Store == "" {
		c.App.Store = StorePostgres
	}
	switch c.App.Store {
	case StorePostgres:
		errs = append(errs, c.validateDB()...)
	case StoreMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE must be one of postgres, memory, got %q", c.App.Store))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.JWTIssuer == "" {
		errs = append(errs, errors.New("JWT_ISSUER is required"))
	}
	if c.Auth.JWTAudience == "" {
		errs = append(errs, errors.New("JWT_AUDIENCE is required"))
	}
	if c.Auth.JWTAlgorithm == "" {
		c.Auth.JWTAlgorithm = "HS256"
	}
	if !isValidAlgorithm(c.Auth.JWTAlgorithm) {
		errs = append(errs, fmt.Errorf("JWT_ALGORITHM must be one of HS256, HS384, HS512, got %q", c.Auth.JWTAlgorithm))
	}
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = 60 * time.Minute
	}
	if c.Auth.AccessTokenTTL < 0 {
		errs = append(errs, errors.New("JWT_ACCESS_TTL must be positive"))
	}
	if c.Auth.ClockSkew < 0 {
		errs = append(errs, errors.New("JWT_CLOCK_SKEW must not be negative"))
	}

	if c.Login.MaxAttempts == 0 {
		c.Login.MaxAttempts = 5
	}
	if c.Login.MaxAttempts < 0 {
		errs = append(errs, errors.New("LOGIN_MAX_ATTEMPTS must be positive"))
	}
	if c.Login.AttemptWindow == 0 {
		c.Login.AttemptWindow = 15 * time.Minute
	}
	if c.Login.AttemptWindow < 0 {
		errs = append(errs, errors.New("LOGIN_ATTEMPT_WINDOW must be positive"))
	}

	if (c.Seed.AdminEmail == "") != (c.Seed.AdminPassword == "") {
		errs = append(errs, errors.New("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD must be set together"))
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	return parseInt(key, v)
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	return parseInt(key, v)
}

func parseInt(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. 60m), got %q", key, v)
	}
	return d, nil
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		errs = append(errs, err)
	}
	return errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func isValidAlgorithm(v string) bool {
	switch v {
	case "HS256", "HS384", "HS512":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
