package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "dynamo-lifecycle/internal/errors"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, EnvDev, cfg.Environment)
	assert.Equal(t, "us-east-1", cfg.Store.Region)
	assert.Equal(t, "recordings", cfg.Store.Tables.Primary)
	assert.Equal(t, []string{"tokens"}, cfg.Store.Tables.Aux)
	assert.Equal(t, "s3", cfg.Blob.Provider)
	assert.Equal(t, "backups", cfg.Blob.Prefix)
	assert.Equal(t, 4, cfg.Backup.Workers)
	assert.Equal(t, 1000, cfg.Backup.ChunkSize)
	assert.Equal(t, "updatedAt", cfg.Backup.ModifiedAttribute)
	assert.True(t, cfg.Backup.Compression.Enabled)
	assert.Equal(t, "gzip", cfg.Backup.Compression.Codec)
	assert.Equal(t, 7, cfg.Backup.Retention.RetentionDays)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
		wantField string
	}{
		{
			name:      "default s3 config without bucket fails",
			mutate:    func(c *Config) {},
			wantError: true,
			wantField: "blob.bucket",
		},
		{
			name: "valid s3 config",
			mutate: func(c *Config) {
				c.Blob.Bucket = "lifecycle-backups"
			},
			wantError: false,
		},
		{
			name: "valid local config",
			mutate: func(c *Config) {
				c.Blob.Provider = "local"
				c.Blob.Local = &LocalConfig{BasePath: "/var/backups"}
			},
			wantError: false,
		},
		{
			name: "unknown environment",
			mutate: func(c *Config) {
				c.Blob.Bucket = "lifecycle-backups"
				c.Environment = "sandbox"
			},
			wantError: true,
			wantField: "environment",
		},
		{
			name: "unknown blob provider",
			mutate: func(c *Config) {
				c.Blob.Provider = "ftp"
			},
			wantError: true,
			wantField: "blob.provider",
		},
		{
			name: "negative workers",
			mutate: func(c *Config) {
				c.Blob.Bucket = "lifecycle-backups"
				c.Backup.Workers = -1
			},
			wantError: true,
			wantField: "backup.workers",
		},
		{
			name: "bad compression codec",
			mutate: func(c *Config) {
				c.Blob.Bucket = "lifecycle-backups"
				c.Backup.Compression.Codec = "brotli"
			},
			wantError: true,
			wantField: "backup.compression.codec",
		},
		{
			name: "encryption enabled without passphrase",
			mutate: func(c *Config) {
				c.Blob.Bucket = "lifecycle-backups"
				c.Backup.Encryption.Enabled = true
			},
			wantError: true,
			wantField: "backup.encryption.passphrase",
		},
		{
			name: "bad readiness interval",
			mutate: func(c *Config) {
				c.Blob.Bucket = "lifecycle-backups"
				c.Store.ReadinessInterval = "soon"
			},
			wantError: true,
			wantField: "store.readiness_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if !tt.wantError {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			var errs appErrors.ValidationErrors
			require.ErrorAs(t, err, &errs)

			found := false
			for _, ve := range errs {
				if ve.Field == tt.wantField {
					found = true
				}
			}
			assert.True(t, found, "expected a validation error for field %s, got %v", tt.wantField, errs)
		})
	}
}

func TestTableNaming(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Environment = EnvStaging

	assert.Equal(t, "recordings-staging", cfg.TableName("recordings"))
	assert.Equal(t, "recordings", cfg.TableAlias("recordings-staging"))
	// Names written by another environment still resolve
	assert.Equal(t, "recordings", cfg.TableAlias("recordings-dev"))
	assert.Equal(t, "schema-migrations-staging", cfg.TrackingTableName())
	assert.Equal(t, []string{"recordings-staging", "tokens-staging"}, cfg.AppTableNames())
}

func TestReadinessDurations(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 2*time.Second, cfg.Store.ReadinessIntervalDuration())
	assert.Equal(t, 5*time.Minute, cfg.Store.ReadinessTimeoutDuration())

	cfg.Store.ReadinessInterval = "250ms"
	cfg.Store.ReadinessTimeout = "90s"
	assert.Equal(t, 250*time.Millisecond, cfg.Store.ReadinessIntervalDuration())
	assert.Equal(t, 90*time.Second, cfg.Store.ReadinessTimeoutDuration())

	// Unparseable values fall back to safe defaults
	cfg.Store.ReadinessInterval = "whenever"
	assert.Equal(t, 2*time.Second, cfg.Store.ReadinessIntervalDuration())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DYNAMO_LIFECYCLE_STORE_ACCESS_KEY", "AKIATEST")
	t.Setenv("DYNAMO_LIFECYCLE_STORE_SECRET_KEY", "secret")
	t.Setenv("DYNAMO_LIFECYCLE_BACKUP_PASSPHRASE", "hunter2")
	t.Setenv("DYNAMO_LIFECYCLE_BLOB_S3_ACCESS_KEY", "AKIABLOB")

	cfg := NewDefaultConfig()
	cfg.Blob.S3 = &S3Config{}
	cfg.LoadFromEnvironment()

	assert.Equal(t, "AKIATEST", cfg.Store.AccessKey)
	assert.Equal(t, "secret", cfg.Store.SecretKey)
	assert.True(t, cfg.Backup.Encryption.Enabled)
	assert.Equal(t, "hunter2", cfg.Backup.Encryption.Passphrase)
	assert.Equal(t, "AKIABLOB", cfg.Blob.S3.AccessKey)
}
