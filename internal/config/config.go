package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	InferenceWorkflow = "workflow"
	InferenceOpenAI   = "openai"

	SessionStoreMemory = "memory"
	SessionStoreSQLite = "sqlite"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Warehouse     WarehouseConfig
	Inference     InferenceConfig
	Agent         AgentConfig
	Session       SessionConfig
	Export        ExportConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CORSOrigins  []string
}

type WarehouseConfig struct {
	Driver       string
	DSN          string
	MaxRows      int
	MaxOpenConns int
	Snowflake    SnowflakeConfig
}

type SnowflakeConfig struct {
	Account       string
	User          string
	Token         string
	Authenticator string
	Warehouse     string
	Database      string
	Schema        string
	Role          string
	QueryTag      string
}

type InferenceConfig struct {
	Provider    string
	URL         string
	APIToken    string
	WorkflowID  string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	TopK        int
	Effort      string
}

type AgentConfig struct {
	MaxLoops         int
	SystemPrompt     string
	SystemPromptFile string
	SchemaPrefix     string
	// ConversationID seeds the terminal session token.
	ConversationID string
}

type SessionConfig struct {
	Store         string
	DBPath        string
	MaxSessions   int
	IdleTTL       time.Duration
	SweepInterval time.Duration
	// TokenRetention bounds how long a persisted token may sit unused. Zero
	// keeps tokens forever.
	TokenRetention time.Duration
}

type ExportConfig struct {
	ArchiveEnabled bool
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

// LoadFromEnv reads an optional .env file from the working directory and then
// the process environment. Variables already set win over the file.
func LoadFromEnv(serviceName string) (Config, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return Load(serviceName, os.LookupEnv)
}

// LoadDotEnv loads the given env files, skipping ones that do not exist.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("SQLANALYST_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SQLANALYST_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	for _, load := range []func(LookupFunc, *Config) error{
		loadService,
		loadWarehouse,
		loadInference,
		loadAgent,
		loadSession,
		loadExport,
		loadObservability,
	} {
		if err := load(lookup, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadService(lookup LookupFunc, cfg *Config) error {
	if err := applyString(lookup, "SQLANALYST_SERVICE_NAME", &cfg.Service.Name); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLANALYST_HTTP_ADDR", &cfg.HTTP.Address); err != nil {
		return err
	}
	if err := applyDuration(lookup, "SQLANALYST_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return err
	}
	if err := applyDuration(lookup, "SQLANALYST_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return err
	}
	if err := applyDuration(lookup, "SQLANALYST_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return err
	}
	return applyList(lookup, "SQLANALYST_CORS_ORIGINS", &cfg.HTTP.CORSOrigins)
}

func loadWarehouse(lookup LookupFunc, cfg *Config) error {
	w := &cfg.Warehouse
	if err := applyString(lookup, "SQLANALYST_WAREHOUSE_DRIVER", &w.Driver); err != nil {
		return err
	}
	w.Driver = strings.ToLower(w.Driver)
	if err := applyString(lookup, "SQLANALYST_WAREHOUSE_DSN", &w.DSN); err != nil {
		return err
	}
	if err := applyInt(lookup, "SQLANALYST_WAREHOUSE_MAX_ROWS", &w.MaxRows); err != nil {
		return err
	}
	if err := applyInt(lookup, "SQLANALYST_WAREHOUSE_MAX_OPEN_CONNS", &w.MaxOpenConns); err != nil {
		return err
	}
	for key, dst := range map[string]*string{
		"SQLANALYST_SNOWFLAKE_ACCOUNT":       &w.Snowflake.Account,
		"SQLANALYST_SNOWFLAKE_USER":          &w.Snowflake.User,
		"SQLANALYST_SNOWFLAKE_TOKEN":         &w.Snowflake.Token,
		"SQLANALYST_SNOWFLAKE_AUTHENTICATOR": &w.Snowflake.Authenticator,
		"SQLANALYST_SNOWFLAKE_WAREHOUSE":     &w.Snowflake.Warehouse,
		"SQLANALYST_SNOWFLAKE_DATABASE":      &w.Snowflake.Database,
		"SQLANALYST_SNOWFLAKE_SCHEMA":        &w.Snowflake.Schema,
		"SQLANALYST_SNOWFLAKE_ROLE":          &w.Snowflake.Role,
		"SQLANALYST_SNOWFLAKE_QUERY_TAG":     &w.Snowflake.QueryTag,
	} {
		if err := applyString(lookup, key, dst); err != nil {
			return err
		}
	}
	return nil
}

func loadInference(lookup LookupFunc, cfg *Config) error {
	in := &cfg.Inference
	if err := applyString(lookup, "SQLANALYST_INFERENCE_PROVIDER", &in.Provider); err != nil {
		return err
	}
	in.Provider = strings.ToLower(in.Provider)
	if err := applyString(lookup, "SQLANALYST_INFERENCE_URL", &in.URL); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLANALYST_INFERENCE_API_TOKEN", &in.APIToken); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLANALYST_INFERENCE_WORKFLOW_ID", &in.WorkflowID); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLANALYST_INFERENCE_MODEL", &in.Model); err != nil {
		return err
	}
	if err := applyDuration(lookup, "SQLANALYST_INFERENCE_TIMEOUT", &in.Timeout); err != nil {
		return err
	}
	if err := applyFloat(lookup, "SQLANALYST_INFERENCE_TEMPERATURE", &in.Temperature); err != nil {
		return err
	}
	if err := applyInt(lookup, "SQLANALYST_INFERENCE_MAX_TOKENS", &in.MaxTokens); err != nil {
		return err
	}
	if err := applyInt(lookup, "SQLANALYST_INFERENCE_TOP_K", &in.TopK); err != nil {
		return err
	}
	return applyString(lookup, "SQLANALYST_INFERENCE_EFFORT", &in.Effort)
}

func loadAgent(lookup LookupFunc, cfg *Config) error {
	if err := applyInt(lookup, "SQLANALYST_AGENT_MAX_LOOPS", &cfg.Agent.MaxLoops); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLANALYST_AGENT_SYSTEM_PROMPT", &cfg.Agent.SystemPrompt); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLANALYST_AGENT_SYSTEM_PROMPT_FILE", &cfg.Agent.SystemPromptFile); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLANALYST_AGENT_SCHEMA_PREFIX", &cfg.Agent.SchemaPrefix); err != nil {
		return err
	}
	return applyString(lookup, "SQLANALYST_CONVERSATION_ID", &cfg.Agent.ConversationID)
}

func loadSession(lookup LookupFunc, cfg *Config) error {
	if err := applyString(lookup, "SQLANALYST_SESSION_STORE", &cfg.Session.Store); err != nil {
		return err
	}
	cfg.Session.Store = strings.ToLower(cfg.Session.Store)
	if err := applyString(lookup, "SQLANALYST_SESSION_DB_PATH", &cfg.Session.DBPath); err != nil {
		return err
	}
	if err := applyInt(lookup, "SQLANALYST_SESSION_MAX", &cfg.Session.MaxSessions); err != nil {
		return err
	}
	if err := applyDuration(lookup, "SQLANALYST_SESSION_IDLE_TTL", &cfg.Session.IdleTTL); err != nil {
		return err
	}
	if err := applyDuration(lookup, "SQLANALYST_SESSION_SWEEP_INTERVAL", &cfg.Session.SweepInterval); err != nil {
		return err
	}
	if err := applyDuration(lookup, "SQLANALYST_SESSION_TOKEN_RETENTION", &cfg.Session.TokenRetention); err != nil {
		return err
	}
	// Every open session pins one warehouse connection.
	if conns := cfg.Warehouse.MaxOpenConns; conns > 0 && cfg.Session.MaxSessions > conns {
		cfg.Session.MaxSessions = conns
	}
	return nil
}

func loadExport(lookup LookupFunc, cfg *Config) error {
	if err := applyBool(lookup, "SQLANALYST_EXPORT_ARCHIVE_ENABLED", &cfg.Export.ArchiveEnabled); err != nil {
		return err
	}
	o := &cfg.ObjectStore
	if err := applyString(lookup, "SQLANALYST_OBJECTSTORE_ENDPOINT", &o.Endpoint); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLANALYST_OBJECTSTORE_REGION", &o.Region); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLANALYST_OBJECTSTORE_BUCKET", &o.Bucket); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLANALYST_OBJECTSTORE_ACCESS_KEY", &o.AccessKeyID); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLANALYST_OBJECTSTORE_SECRET_KEY", &o.SecretAccessKey); err != nil {
		return err
	}
	if err := applyBool(lookup, "SQLANALYST_OBJECTSTORE_USE_SSL", &o.UseSSL); err != nil {
		return err
	}
	if err := applyString(lookup, "SQLANALYST_OBJECTSTORE_PREFIX", &o.Prefix); err != nil {
		return err
	}
	return applyBool(lookup, "SQLANALYST_OBJECTSTORE_AUTO_CREATE_BUCKET", &o.AutoCreateBucket)
}

func loadObservability(lookup LookupFunc, cfg *Config) error {
	if err := applyBool(lookup, "SQLANALYST_LOG_JSON", &cfg.Observability.LogJSON); err != nil {
		return err
	}
	if err := applyLogLevel(lookup, "SQLANALYST_LOG_LEVEL", &cfg.Observability.LogLevel); err != nil {
		return err
	}
	if err := applyBool(lookup, "SQLANALYST_AUTH_REQUIRED", &cfg.Auth.Required); err != nil {
		return err
	}
	return applyString(lookup, "SQLANALYST_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys)
}

func (cfg Config) validate() error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch cfg.Warehouse.Driver {
	case "snowflake", "duckdb", "postgres", "mysql":
	default:
		return fmt.Errorf("invalid SQLANALYST_WAREHOUSE_DRIVER: %q", cfg.Warehouse.Driver)
	}
	if cfg.Warehouse.MaxRows <= 0 {
		return fmt.Errorf("SQLANALYST_WAREHOUSE_MAX_ROWS must be positive")
	}
	switch cfg.Inference.Provider {
	case InferenceWorkflow, InferenceOpenAI:
	default:
		return fmt.Errorf("invalid SQLANALYST_INFERENCE_PROVIDER: %q", cfg.Inference.Provider)
	}
	if cfg.Agent.MaxLoops <= 0 {
		return fmt.Errorf("SQLANALYST_AGENT_MAX_LOOPS must be positive")
	}
	if cfg.Session.TokenRetention < 0 {
		return fmt.Errorf("SQLANALYST_SESSION_TOKEN_RETENTION must be >= 0")
	}
	switch cfg.Session.Store {
	case SessionStoreMemory:
	case SessionStoreSQLite:
		if cfg.Session.DBPath == "" {
			return fmt.Errorf("SQLANALYST_SESSION_DB_PATH is required for the sqlite session store")
		}
	default:
		return fmt.Errorf("invalid SQLANALYST_SESSION_STORE: %q", cfg.Session.Store)
	}
	if cfg.Export.ArchiveEnabled && cfg.ObjectStore.Bucket == "" {
		return fmt.Errorf("SQLANALYST_OBJECTSTORE_BUCKET is required when export archiving is enabled")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "sqlanalyst-api"},
		HTTP: HTTPConfig{
			Address:      ":8000",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Minute,
			IdleTimeout:  60 * time.Second,
			CORSOrigins:  []string{"http://localhost:3000"},
		},
		Warehouse: WarehouseConfig{
			Driver:       "duckdb",
			MaxRows:      50,
			MaxOpenConns: 40,
			Snowflake: SnowflakeConfig{
				Warehouse: "COMPUTE_WH",
				Database:  "ANALYTICS",
				Schema:    "GOLD",
				QueryTag:  "sqlanalyst",
			},
		},
		Inference: InferenceConfig{
			Provider:    InferenceWorkflow,
			Model:       "anthropic_direct.claude-v4-6-sonnet",
			Timeout:     120 * time.Second,
			Temperature: 0.1,
			MaxTokens:   64000,
			TopK:        250,
			Effort:      "high",
		},
		Agent: AgentConfig{
			MaxLoops:     5,
			SchemaPrefix: "ANALYTICS.GOLD",
		},
		Session: SessionConfig{
			Store:          SessionStoreMemory,
			DBPath:         ".sqlanalyst/sessions.db",
			MaxSessions:    32,
			IdleTTL:        30 * time.Minute,
			SweepInterval:  time.Minute,
			TokenRetention: 7 * 24 * time.Hour,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "sqlanalyst-exports",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18000"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Warehouse.Driver = "snowflake"
		cfg.Session.Store = SessionStoreSQLite
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

// applyList splits a comma separated value, dropping blanks.
func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
