package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	appErrors "dynamo-lifecycle/internal/errors"
)

// Environment names recognized by the lifecycle subsystem
const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

// Config holds the full lifecycle subsystem configuration
type Config struct {
	Environment string       `mapstructure:"environment" yaml:"environment"`
	Store       StoreConfig  `mapstructure:"store" yaml:"store"`
	Blob        BlobConfig   `mapstructure:"blob" yaml:"blob"`
	Backup      BackupConfig `mapstructure:"backup" yaml:"backup"`
}

// StoreConfig defines the partitioned key-value store connection
type StoreConfig struct {
	Region string `mapstructure:"region" yaml:"region"`
	// Endpoint overrides the store endpoint. Empty targets the real service,
	// "memory" selects the in-process store, anything else is a local endpoint URL.
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`

	Tables TablesConfig `mapstructure:"tables" yaml:"tables"`

	// Readiness polling for table and index activation
	ReadinessInterval string `mapstructure:"readiness_interval" yaml:"readiness_interval"`
	ReadinessTimeout  string `mapstructure:"readiness_timeout" yaml:"readiness_timeout"`
}

// TablesConfig names the application tables by their logical alias
type TablesConfig struct {
	Primary string   `mapstructure:"primary" yaml:"primary"`
	Aux     []string `mapstructure:"aux" yaml:"aux"`
	// KeyAttributes are the attributes every primary table item must carry,
	// hash key first. Integrity checks look for them in backed up data.
	KeyAttributes []string `mapstructure:"key_attributes" yaml:"key_attributes"`
	// Indexes lists the secondary indexes on the primary table that setup
	// validation probes with a sampled key after migrations run
	Indexes []IndexProbe `mapstructure:"indexes" yaml:"indexes"`
}

// IndexProbe names a secondary index and the attribute it hashes on
type IndexProbe struct {
	Name          string `mapstructure:"name" yaml:"name"`
	HashAttribute string `mapstructure:"hash_attribute" yaml:"hash_attribute"`
}

// BlobConfig defines where backup artifacts are stored
type BlobConfig struct {
	Provider string       `mapstructure:"provider" yaml:"provider"`
	Bucket   string       `mapstructure:"bucket" yaml:"bucket"`
	Prefix   string       `mapstructure:"prefix" yaml:"prefix"`
	S3       *S3Config    `mapstructure:"s3,omitempty" yaml:"s3,omitempty"`
	GCS      *GCSConfig   `mapstructure:"gcs,omitempty" yaml:"gcs,omitempty"`
	Azure    *AzureConfig `mapstructure:"azure,omitempty" yaml:"azure,omitempty"`
	Local    *LocalConfig `mapstructure:"local,omitempty" yaml:"local,omitempty"`
}

// S3Config for S3-compatible object storage
type S3Config struct {
	Region    string `mapstructure:"region" yaml:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
}

// GCSConfig for Google Cloud Storage
type GCSConfig struct {
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path"`
	ProjectID       string `mapstructure:"project_id" yaml:"project_id"`
}

// AzureConfig for Azure Blob Storage
type AzureConfig struct {
	AccountName string `mapstructure:"account_name" yaml:"account_name"`
	AccountKey  string `mapstructure:"account_key" yaml:"account_key"`
}

// LocalConfig for local filesystem blob storage
type LocalConfig struct {
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

// BackupConfig holds backup engine configuration
type BackupConfig struct {
	Workers    int  `mapstructure:"workers" yaml:"workers"`
	ChunkSize  int  `mapstructure:"chunk_size" yaml:"chunk_size"`
	IncludeAux bool `mapstructure:"include_aux" yaml:"include_aux"`
	// ModifiedAttribute is the item attribute incremental backups filter on
	ModifiedAttribute string            `mapstructure:"modified_attribute" yaml:"modified_attribute"`
	Compression       CompressionConfig `mapstructure:"compression" yaml:"compression"`
	Encryption        EncryptionConfig  `mapstructure:"encryption" yaml:"encryption"`
	Retention         RetentionConfig   `mapstructure:"retention" yaml:"retention"`
}

// CompressionConfig defines chunk compression settings
type CompressionConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Codec   string `mapstructure:"codec" yaml:"codec"`
	Level   int    `mapstructure:"level" yaml:"level"`
}

// EncryptionConfig defines optional chunk encryption settings
type EncryptionConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Passphrase string `mapstructure:"passphrase" yaml:"passphrase"`
}

// RetentionConfig defines the pruning tiers
type RetentionConfig struct {
	RetentionDays int `mapstructure:"retention_days" yaml:"retention_days"`
	KeepWeekly    int `mapstructure:"keep_weekly" yaml:"keep_weekly"`
	KeepMonthly   int `mapstructure:"keep_monthly" yaml:"keep_monthly"`
}

// NewDefaultConfig returns the configuration used when nothing is specified
func NewDefaultConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills in default values for unset fields
func (c *Config) SetDefaults() {
	if c.Environment == "" {
		c.Environment = EnvDev
	}
	c.Store.SetDefaults()
	c.Blob.SetDefaults()
	c.Backup.SetDefaults()
}

// SetDefaults fills in store defaults
func (sc *StoreConfig) SetDefaults() {
	if sc.Region == "" {
		sc.Region = "us-east-1"
	}
	if sc.Tables.Primary == "" {
		sc.Tables.Primary = "recordings"
	}
	if sc.Tables.Aux == nil {
		sc.Tables.Aux = []string{"tokens"}
	}
	if sc.Tables.KeyAttributes == nil {
		sc.Tables.KeyAttributes = []string{"pk", "ts"}
	}
	if sc.Tables.Indexes == nil {
		sc.Tables.Indexes = []IndexProbe{{Name: "status-index", HashAttribute: "status"}}
	}
	if sc.ReadinessInterval == "" {
		sc.ReadinessInterval = "2s"
	}
	if sc.ReadinessTimeout == "" {
		sc.ReadinessTimeout = "5m"
	}
}

// SetDefaults fills in blob defaults
func (bc *BlobConfig) SetDefaults() {
	if bc.Provider == "" {
		bc.Provider = "s3"
	}
	if bc.Prefix == "" {
		bc.Prefix = "backups"
	}
}

// SetDefaults fills in backup defaults
func (bc *BackupConfig) SetDefaults() {
	if bc.Workers == 0 {
		bc.Workers = 4
	}
	if bc.ChunkSize == 0 {
		bc.ChunkSize = 1000
	}
	if bc.ModifiedAttribute == "" {
		bc.ModifiedAttribute = "updatedAt"
	}
	if bc.Compression.Codec == "" {
		bc.Compression.Enabled = true
		bc.Compression.Codec = "gzip"
	}
	if bc.Retention.RetentionDays == 0 {
		bc.Retention.RetentionDays = 7
	}
	if bc.Retention.KeepWeekly == 0 {
		bc.Retention.KeepWeekly = 4
	}
	if bc.Retention.KeepMonthly == 0 {
		bc.Retention.KeepMonthly = 6
	}
}

// Validate checks the configuration and reports every problem found
func (c *Config) Validate() error {
	var errs appErrors.ValidationErrors

	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		errs.Add("environment", "must be one of dev, staging, prod", c.Environment)
	}

	c.Store.validate(&errs)
	c.Blob.validate(&errs)
	c.Backup.validate(&errs)

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (sc *StoreConfig) validate(errs *appErrors.ValidationErrors) {
	if sc.Region == "" {
		errs.Add("store.region", "must not be empty", sc.Region)
	}
	if sc.Tables.Primary == "" {
		errs.Add("store.tables.primary", "must not be empty", sc.Tables.Primary)
	}
	if len(sc.Tables.KeyAttributes) == 0 {
		errs.Add("store.tables.key_attributes", "must name at least the hash key", nil)
	}
	for i, probe := range sc.Tables.Indexes {
		if probe.Name == "" || probe.HashAttribute == "" {
			errs.Add(fmt.Sprintf("store.tables.indexes[%d]", i),
				"must have a name and a hash_attribute", probe)
		}
	}
	if _, err := time.ParseDuration(sc.ReadinessInterval); err != nil {
		errs.Add("store.readiness_interval", "must be a valid duration", sc.ReadinessInterval)
	}
	if _, err := time.ParseDuration(sc.ReadinessTimeout); err != nil {
		errs.Add("store.readiness_timeout", "must be a valid duration", sc.ReadinessTimeout)
	}
}

func (bc *BlobConfig) validate(errs *appErrors.ValidationErrors) {
	switch bc.Provider {
	case "s3", "gcs", "azure":
		if bc.Bucket == "" {
			errs.Add("blob.bucket", "must not be empty for provider "+bc.Provider, bc.Bucket)
		}
	case "local":
		if bc.Local == nil || bc.Local.BasePath == "" {
			errs.Add("blob.local.base_path", "must not be empty for local provider", nil)
		}
	default:
		errs.Add("blob.provider", "must be one of s3, gcs, azure, local", bc.Provider)
	}
}

func (bc *BackupConfig) validate(errs *appErrors.ValidationErrors) {
	if bc.Workers <= 0 {
		errs.Add("backup.workers", "must be positive", bc.Workers)
	}
	if bc.ChunkSize <= 0 {
		errs.Add("backup.chunk_size", "must be positive", bc.ChunkSize)
	}
	if bc.ModifiedAttribute == "" {
		errs.Add("backup.modified_attribute", "must not be empty", nil)
	}
	if bc.Compression.Enabled {
		switch bc.Compression.Codec {
		case "gzip", "zstd", "lz4":
		default:
			errs.Add("backup.compression.codec", "must be one of gzip, zstd, lz4", bc.Compression.Codec)
		}
	}
	if bc.Encryption.Enabled && bc.Encryption.Passphrase == "" {
		errs.Add("backup.encryption.passphrase", "must be set when encryption is enabled", nil)
	}
	if bc.Retention.RetentionDays < 0 {
		errs.Add("backup.retention.retention_days", "must not be negative", bc.Retention.RetentionDays)
	}
	if bc.Retention.KeepWeekly < 0 {
		errs.Add("backup.retention.keep_weekly", "must not be negative", bc.Retention.KeepWeekly)
	}
	if bc.Retention.KeepMonthly < 0 {
		errs.Add("backup.retention.keep_monthly", "must not be negative", bc.Retention.KeepMonthly)
	}
}

// LoadFromEnvironment loads secrets that are handed over via environment variables
func (c *Config) LoadFromEnvironment() {
	if val := os.Getenv("DYNAMO_LIFECYCLE_STORE_ACCESS_KEY"); val != "" {
		c.Store.AccessKey = val
	}
	if val := os.Getenv("DYNAMO_LIFECYCLE_STORE_SECRET_KEY"); val != "" {
		c.Store.SecretKey = val
	}
	if val := os.Getenv("DYNAMO_LIFECYCLE_BACKUP_PASSPHRASE"); val != "" {
		c.Backup.Encryption.Enabled = true
		c.Backup.Encryption.Passphrase = val
	}
	if c.Blob.S3 != nil {
		if val := os.Getenv("DYNAMO_LIFECYCLE_BLOB_S3_ACCESS_KEY"); val != "" {
			c.Blob.S3.AccessKey = val
		}
		if val := os.Getenv("DYNAMO_LIFECYCLE_BLOB_S3_SECRET_KEY"); val != "" {
			c.Blob.S3.SecretKey = val
		}
	}
	if c.Blob.Azure != nil {
		if val := os.Getenv("DYNAMO_LIFECYCLE_BLOB_AZURE_ACCOUNT_KEY"); val != "" {
			c.Blob.Azure.AccountKey = val
		}
	}
}

// TableName resolves a logical table alias to its environment-specific name
func (c *Config) TableName(alias string) string {
	return fmt.Sprintf("%s-%s", alias, c.Environment)
}

// TableAlias strips the environment suffix from a physical table name.
// All known environments are tried so a manifest written in one
// environment resolves correctly when restored into another.
func (c *Config) TableAlias(tableName string) string {
	for _, env := range []string{EnvDev, EnvStaging, EnvProd} {
		if trimmed := strings.TrimSuffix(tableName, "-"+env); trimmed != tableName {
			return trimmed
		}
	}
	return tableName
}

// TrackingTableName returns the migration tracking table for this environment
func (c *Config) TrackingTableName() string {
	return fmt.Sprintf("schema-migrations-%s", c.Environment)
}

// AppTableNames returns the physical names of all application tables,
// primary first
func (c *Config) AppTableNames() []string {
	names := []string{c.TableName(c.Store.Tables.Primary)}
	for _, alias := range c.Store.Tables.Aux {
		names = append(names, c.TableName(alias))
	}
	return names
}

// ReadinessIntervalDuration returns the parsed readiness polling interval
func (sc *StoreConfig) ReadinessIntervalDuration() time.Duration {
	d, err := time.ParseDuration(sc.ReadinessInterval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// ReadinessTimeoutDuration returns the parsed ceiling for readiness polling
func (sc *StoreConfig) ReadinessTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(sc.ReadinessTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}
