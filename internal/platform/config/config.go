// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Executor kinds
const (
	ExecutorREST = "rest"
	ExecutorSQL  = "sql"
)

// Session store kinds
const (
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// Config represents the client configuration
type Config struct {
	Supabase SupabaseConfig `json:"supabase"`
	Query    QueryConfig    `json:"query"`
	Auth     AuthConfig     `json:"auth"`
	Database DatabaseConfig `json:"database"`
	Debug    bool           `json:"debug"`
}

// SupabaseConfig holds project endpoint and key
type SupabaseConfig struct {
	URL     string        `json:"url"`
	Key     string        `json:"key"`
	Schema  string        `json:"schema"`
	Timeout time.Duration `json:"timeout"`
}

// QueryConfig holds query builder settings
type QueryConfig struct {
	Executor        string `json:"executor"`
	DefaultPageSize int    `json:"defaultPageSize"`
}

// AuthConfig holds auth wrapper settings
type AuthConfig struct {
	MinPasswordScore int         `json:"minPasswordScore"`
	SessionStore     string      `json:"sessionStore"`
	SessionKey       string      `json:"sessionKey"`
	Redis            RedisConfig `json:"redis"`
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	Database int    `json:"database"`
}

// DatabaseConfig holds the direct PostgreSQL connection used by the sql executor
type DatabaseConfig struct {
	DSN             string        `json:"dsn"`
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
}

// LoadFromEnv loads configuration from the environment.
// Precedence:
// 1. Explicit Environment Variables
// 2. Values from the .env file (if it exists)
// 3. Hardcoded defaults
func LoadFromEnv() (*Config, error) {
	// godotenv never overrides variables that are already set
	envPaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	var loadErr error
	for _, envPath := range envPaths {
		loadErr = godotenv.Load(envPath)
		if loadErr == nil {
			break
		}
	}
	if loadErr != nil {
		fmt.Println("INFO: .env file not found, using environment variables and defaults.")
	}

	return build(func(key string) (string, bool) {
		value := os.Getenv(key)
		return value, value != ""
	})
}

// LoadFromMap loads configuration from an in-memory map.
// This is the primary helper for testing configuration logic in isolation
// without manipulating global environment variables.
func LoadFromMap(envMap map[string]string) (*Config, error) {
	return build(func(key string) (string, bool) {
		value, exists := envMap[key]
		return value, exists
	})
}

func build(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, defaultValue string) string {
		if value, ok := lookup(key); ok {
			return value
		}
		return defaultValue
	}
	getInt := func(key string, defaultValue int) int {
		if value, ok := lookup(key); ok {
			if intValue, err := strconv.Atoi(value); err == nil {
				return intValue
			}
		}
		return defaultValue
	}
	getBool := func(key string, defaultValue bool) bool {
		if value, ok := lookup(key); ok {
			if boolValue, err := strconv.ParseBool(value); err == nil {
				return boolValue
			}
		}
		return defaultValue
	}
	getDuration := func(key string, defaultValue time.Duration) time.Duration {
		if value, ok := lookup(key); ok {
			if duration, err := time.ParseDuration(value); err == nil {
				return duration
			}
		}
		return defaultValue
	}

	config := &Config{
		Supabase: SupabaseConfig{
			URL:     strings.TrimRight(get("SUPABASE_URL", ""), "/"),
			Key:     get("SUPABASE_KEY", ""),
			Schema:  get("SUPABASE_SCHEMA", "public"),
			Timeout: getDuration("SUPABASE_TIMEOUT", 30*time.Second),
		},
		Query: QueryConfig{
			Executor:        get("QUERY_EXECUTOR", ExecutorREST),
			DefaultPageSize: getInt("SUPABASE_DEFAULT_PAGE_SIZE", 1000),
		},
		Auth: AuthConfig{
			MinPasswordScore: getInt("AUTH_MIN_PASSWORD_SCORE", 0),
			SessionStore:     get("AUTH_SESSION_STORE", SessionStoreMemory),
			SessionKey:       get("AUTH_SESSION_KEY", "supabase:session"),
			Redis: RedisConfig{
				Address:  get("REDIS_ADDRESS", "localhost:6379"),
				Password: get("REDIS_PASSWORD", ""),
				Database: getInt("REDIS_DATABASE", 0),
			},
		},
		Database: DatabaseConfig{
			DSN:             get("DATABASE_DSN", ""),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Debug: getBool("DEBUG", false),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration for required fields
func (c *Config) Validate() error {
	var errors []string

	if strings.TrimSpace(c.Supabase.URL) == "" {
		errors = append(errors, "SUPABASE_URL is required")
	} else if u, err := url.Parse(c.Supabase.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, "SUPABASE_URL must be an absolute URL")
	}
	if strings.TrimSpace(c.Supabase.Key) == "" {
		errors = append(errors, "SUPABASE_KEY is required")
	}
	if c.Query.DefaultPageSize <= 0 {
		errors = append(errors, "SUPABASE_DEFAULT_PAGE_SIZE must be positive")
	}
	if c.Auth.MinPasswordScore < 0 || c.Auth.MinPasswordScore > 4 {
		errors = append(errors, "AUTH_MIN_PASSWORD_SCORE must be between 0 and 4")
	}

	validExecutors := []string{ExecutorREST, ExecutorSQL}
	if !contains(validExecutors, c.Query.Executor) {
		errors = append(errors, fmt.Sprintf("QUERY_EXECUTOR must be one of: %s", strings.Join(validExecutors, ", ")))
	}
	if c.Query.Executor == ExecutorSQL && strings.TrimSpace(c.Database.DSN) == "" {
		errors = append(errors, "DATABASE_DSN is required when QUERY_EXECUTOR=sql")
	}

	validStores := []string{SessionStoreMemory, SessionStoreRedis}
	if !contains(validStores, c.Auth.SessionStore) {
		errors = append(errors, fmt.Sprintf("AUTH_SESSION_STORE must be one of: %s", strings.Join(validStores, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
