// Package config provides configuration loading and management for the SCM server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/scmgo/scm-server/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable read by the server.
const EnvPrefix = "SCM_SERVER"

const (
	// StorageTypeFile persists entity collections as JSON files
	StorageTypeFile = "file"

	// StorageTypeDatabase persists entity collections in PostgreSQL
	StorageTypeDatabase = "database"

	// StorageTypeMemory keeps entity collections in process memory only
	StorageTypeMemory = "memory"
)

const (
	// AuthModeAnonymous disables authentication; every request acts as the anonymous caller
	AuthModeAnonymous = "anonymous"

	// AuthModeJWT requires HMAC signed bearer tokens
	AuthModeJWT = "jwt"
)

// Authorization actions granted to callers through scope mapping.
const (
	ActionRead  = "read"
	ActionWrite = "write"
	ActionAdmin = "admin"
)

// AnonymousSubject is the subject assigned to unauthenticated callers.
const AnonymousSubject = "anonymous"

const (
	defaultFileBaseDir      = "./data"
	defaultRepositoriesRoot = "./data/repositories"
	defaultCacheCapacity    = 1000
	maxCacheCapacity        = 1_000_000
	databasePasswordEnvVar  = EnvPrefix + "_DATABASE_PASSWORD"
	defaultDatabaseSSLMode  = "require"
	defaultConnMaxLifetime  = 5 * time.Minute
	defaultHookTokenHeader  = "X-SCM-Hook-Token"
	defaultAuthRealm        = "scm-server"
	awsRegionDetect         = "detect"
	minHMACSecretLength     = 32
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks, this also cleans the path.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Storage      StorageConfig      `yaml:"storage"`
	Database     *DatabaseConfig    `yaml:"database,omitempty"`
	Repositories RepositoriesConfig `yaml:"repositories"`
	Cache        CacheConfig        `yaml:"cache"`
	Auth         AuthConfig         `yaml:"auth"`
	Hooks        HooksConfig        `yaml:"hooks"`
	Telemetry    *telemetry.Config  `yaml:"telemetry,omitempty"`
}

// StorageConfig selects where entity collections are persisted
type StorageConfig struct {
	// Type is one of file, database or memory. Defaults to file.
	Type string `yaml:"type,omitempty"`

	// File holds settings for the file storage type
	File *FileStorageConfig `yaml:"file,omitempty"`
}

// FileStorageConfig defines the file storage settings
type FileStorageConfig struct {
	// BaseDir is the directory holding one JSON document per collection
	BaseDir string `yaml:"baseDir,omitempty"`
}

// RepositoriesConfig defines where backend repositories live on disk
type RepositoriesConfig struct {
	// Root is the directory containing one sub directory per repository
	Root string `yaml:"root,omitempty"`

	// SkipInit leaves creating storage for new repositories to an external provisioner
	SkipInit bool `yaml:"skipInit,omitempty"`
}

// CacheConfig bounds the command result caches
type CacheConfig struct {
	// DefaultCapacity is the maximum number of entries per cache
	DefaultCapacity int `yaml:"defaultCapacity,omitempty"`

	// Capacities overrides the capacity of individual caches by name
	Capacities map[string]int `yaml:"capacities,omitempty"`
}

// AuthConfig defines how callers are authenticated
type AuthConfig struct {
	// Mode is anonymous or jwt. Defaults to anonymous.
	Mode string `yaml:"mode,omitempty"`

	// Realm is advertised in WWW-Authenticate headers
	Realm string `yaml:"realm,omitempty"`

	// JWT holds token validation settings for the jwt mode
	JWT *JWTConfig `yaml:"jwt,omitempty"`

	// ScopeMapping maps token scopes to authorization actions
	ScopeMapping []ScopeMappingEntry `yaml:"scopeMapping,omitempty"`

	// AnonymousActions are granted to unauthenticated callers in anonymous mode
	AnonymousActions []string `yaml:"anonymousActions,omitempty"`
}

// JWTConfig defines HMAC bearer token validation
type JWTConfig struct {
	// SecretFile points to a file holding the HMAC secret
	SecretFile string `yaml:"secretFile"`

	// Issuer, when set, must match the iss claim
	Issuer string `yaml:"issuer,omitempty"`

	// Audience, when set, must be contained in the aud claim
	Audience string `yaml:"audience,omitempty"`
}

// ScopeMappingEntry grants actions to holders of a scope
type ScopeMappingEntry struct {
	Scope   string   `yaml:"scope"`
	Actions []string `yaml:"actions"`
}

// HooksConfig protects the hook notification endpoint
type HooksConfig struct {
	// TokenFile points to a file holding the shared hook token
	TokenFile string `yaml:"tokenFile,omitempty"`

	// Header is the request header carrying the token
	Header string `yaml:"header,omitempty"`

	// AllowUnauthenticated accepts hook calls when no token is configured
	AllowUnauthenticated bool `yaml:"allowUnauthenticated,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Database string `yaml:"database"`

	// PasswordFile is the path to a file containing the database password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// MigrationUser runs schema migrations when set; defaults to User
	MigrationUser string `yaml:"migrationUser,omitempty"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	MaxOpenConns    int32  `yaml:"maxOpenConns,omitempty"`
	MaxIdleConns    int32  `yaml:"maxIdleConns,omitempty"`
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`

	// DynamicAuth replaces static passwords with short-lived credentials
	DynamicAuth *DynamicAuthConfig `yaml:"dynamicAuth,omitempty"`
}

// DynamicAuthConfig selects a dynamic credential provider
type DynamicAuthConfig struct {
	AWSRDSIAM *AWSRDSIAMConfig `yaml:"awsRdsIam,omitempty"`
}

// AWSRDSIAMConfig configures AWS RDS IAM authentication
type AWSRDSIAMConfig struct {
	// Region is the AWS region, or "detect" to query instance metadata
	Region string `yaml:"region"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML configuration document
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetStorageType returns the storage type, defaulting to file
func (c *Config) GetStorageType() string {
	if c.Storage.Type == "" {
		return StorageTypeFile
	}
	return c.Storage.Type
}

// GetFileStorageBaseDir returns the directory used by file storage
func (c *Config) GetFileStorageBaseDir() string {
	if c.Storage.File == nil || c.Storage.File.BaseDir == "" {
		return defaultFileBaseDir
	}
	return c.Storage.File.BaseDir
}

// GetRepositoriesRoot returns the directory holding backend repositories
func (c *Config) GetRepositoriesRoot() string {
	if c.Repositories.Root == "" {
		return defaultRepositoriesRoot
	}
	return c.Repositories.Root
}

// CacheCapacity returns the capacity configured for the named cache
func (c *CacheConfig) CacheCapacity(name string) int {
	if n, ok := c.Capacities[name]; ok && n > 0 {
		return n
	}
	if c.DefaultCapacity > 0 {
		return c.DefaultCapacity
	}
	return defaultCacheCapacity
}

// GetMode returns the authentication mode, defaulting to anonymous
func (a *AuthConfig) GetMode() string {
	if a.Mode == "" {
		return AuthModeAnonymous
	}
	return a.Mode
}

// GetRealm returns the protection space advertised to clients
func (a *AuthConfig) GetRealm() string {
	if a.Realm == "" {
		return defaultAuthRealm
	}
	return a.Realm
}

// GetScopeMapping returns the configured scope mapping or the built-in default
func (a *AuthConfig) GetScopeMapping() []ScopeMappingEntry {
	if len(a.ScopeMapping) > 0 {
		return a.ScopeMapping
	}
	return []ScopeMappingEntry{
		{Scope: "scm:read", Actions: []string{ActionRead}},
		{Scope: "scm:write", Actions: []string{ActionRead, ActionWrite}},
		{Scope: "scm:admin", Actions: []string{ActionRead, ActionWrite, ActionAdmin}},
	}
}

// GetAnonymousActions returns the actions of unauthenticated callers. Without
// explicit configuration, anonymous mode grants every action and jwt mode none.
func (a *AuthConfig) GetAnonymousActions() []string {
	if len(a.AnonymousActions) > 0 {
		return a.AnonymousActions
	}
	if a.GetMode() == AuthModeAnonymous {
		return []string{ActionRead, ActionWrite, ActionAdmin}
	}
	return nil
}

// GetSecret reads the HMAC secret from SecretFile
func (j *JWTConfig) GetSecret() ([]byte, error) {
	data, err := os.ReadFile(filepath.Clean(j.SecretFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read jwt secret from file %s: %w", j.SecretFile, err)
	}
	secret := strings.TrimSpace(string(data))
	if len(secret) < minHMACSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minHMACSecretLength)
	}
	return []byte(secret), nil
}

// GetHeader returns the header carrying the hook token
func (h *HooksConfig) GetHeader() string {
	if h.Header == "" {
		return defaultHookTokenHeader
	}
	return h.Header
}

// GetToken reads the shared hook token. An empty string means no token is configured.
func (h *HooksConfig) GetToken() (string, error) {
	if h.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Clean(h.TokenFile))
	if err != nil {
		return "", fmt.Errorf("failed to read hook token from file %s: %w", h.TokenFile, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from the SCM_SERVER_DATABASE_PASSWORD environment variable
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(d.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(databasePasswordEnvVar); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s environment variable", databasePasswordEnvVar,
	)
}

// GetMigrationUser returns the user that runs migrations
func (d *DatabaseConfig) GetMigrationUser() string {
	if d.MigrationUser == "" {
		return d.User
	}
	return d.MigrationUser
}

// GetConnMaxLifetime returns the parsed connection lifetime
func (d *DatabaseConfig) GetConnMaxLifetime() time.Duration {
	if d.ConnMaxLifetime == "" {
		return defaultConnMaxLifetime
	}
	lifetime, err := time.ParseDuration(d.ConnMaxLifetime)
	if err != nil {
		return defaultConnMaxLifetime
	}
	return lifetime
}

// BuildConnectionString builds a PostgreSQL URL for user with an optional password.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) BuildConnectionString(user, password string) string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = defaultDatabaseSSLMode
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	if password != "" {
		u.User = url.UserPassword(user, password)
	} else {
		u.User = url.User(user)
	}
	return u.String()
}

// GetConnectionString builds the application connection string.
// With dynamic auth the password is supplied per connection and left out here.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	if d.DynamicAuth != nil {
		return d.BuildConnectionString(d.User, ""), nil
	}
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}
	return d.BuildConnectionString(d.User, password), nil
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	switch c.GetStorageType() {
	case StorageTypeFile, StorageTypeMemory:
	case StorageTypeDatabase:
		if err := c.Database.validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	default:
		return fmt.Errorf("storage.type must be one of %s, %s or %s, got %q",
			StorageTypeFile, StorageTypeDatabase, StorageTypeMemory, c.Storage.Type)
	}

	if err := c.Cache.validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if err := c.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

func (d *DatabaseConfig) validate() error {
	if d == nil {
		return fmt.Errorf("database configuration is required for %s storage", StorageTypeDatabase)
	}
	if d.Host == "" {
		return fmt.Errorf("host is required")
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if d.User == "" {
		return fmt.Errorf("user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if d.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(d.ConnMaxLifetime); err != nil {
			return fmt.Errorf("invalid connMaxLifetime: %w", err)
		}
	}
	if d.DynamicAuth != nil {
		if d.DynamicAuth.AWSRDSIAM == nil {
			return fmt.Errorf("dynamicAuth requires a provider (awsRdsIam)")
		}
		if d.DynamicAuth.AWSRDSIAM.Region == "" {
			return fmt.Errorf("dynamicAuth.awsRdsIam.region is required (use %q to query instance metadata)",
				awsRegionDetect)
		}
	}
	return nil
}

func (c *CacheConfig) validate() error {
	if c.DefaultCapacity < 0 || c.DefaultCapacity > maxCacheCapacity {
		return fmt.Errorf("defaultCapacity must be between 0 and %d", maxCacheCapacity)
	}
	for name, n := range c.Capacities {
		if n <= 0 || n > maxCacheCapacity {
			return fmt.Errorf("capacity of cache %q must be between 1 and %d", name, maxCacheCapacity)
		}
	}
	return nil
}

func (a *AuthConfig) validate() error {
	switch a.GetMode() {
	case AuthModeAnonymous:
	case AuthModeJWT:
		if a.JWT == nil || a.JWT.SecretFile == "" {
			return fmt.Errorf("jwt.secretFile is required in %s mode", AuthModeJWT)
		}
	default:
		return fmt.Errorf("mode must be %s or %s, got %q", AuthModeAnonymous, AuthModeJWT, a.Mode)
	}

	known := []string{ActionRead, ActionWrite, ActionAdmin}
	for i, entry := range a.ScopeMapping {
		if entry.Scope == "" {
			return fmt.Errorf("scopeMapping[%d]: scope is required", i)
		}
		for _, action := range entry.Actions {
			if !slices.Contains(known, action) {
				return fmt.Errorf("scopeMapping[%d]: unknown action %q", i, action)
			}
		}
	}
	for _, action := range a.AnonymousActions {
		if !slices.Contains(known, action) {
			return fmt.Errorf("anonymousActions: unknown action %q", action)
		}
	}
	return nil
}
