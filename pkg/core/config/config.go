// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/gardener/housekeeping/pkg/utils/period"
)

// ErrNoConfigVersion error is returned when the configuration does not specify
// config format version.
var ErrNoConfigVersion = errors.New("config format version not specified")

// ErrUnsupportedVersion is an error, which is returned when the config file
// uses an incompatible version format.
var ErrUnsupportedVersion = errors.New("unsupported config format version")

// ErrUnknownProvider is returned when the object store provider is not
// supported.
var ErrUnknownProvider = errors.New("unknown object store provider")

// ConfigFormatVersion represents the supported config format version.
const ConfigFormatVersion = "v1alpha1"

// DefaultQueueName is the name of the default queue, if none was configured.
const DefaultQueueName = "default"

const (
	// DefaultPageSize is the default number of records fetched per page
	// during cleanup.
	DefaultPageSize = 500

	// DefaultBatchSize is the default number of keys per batch delete
	// request.
	DefaultBatchSize = 1000

	// DefaultAuditRetention is the default retention of audit entries.
	DefaultAuditRetention = 30 * 24 * time.Hour

	// DefaultCleanupDelay is the default delay of intents scheduled from
	// the CLI.
	DefaultCleanupDelay = 3 * 24 * time.Hour

	// DefaultClientID is the client id of intents scheduled from the CLI.
	DefaultClientID = "housekeeping-cli"
)

// Supported object store providers.
const (
	ProviderS3  = "s3"
	ProviderGCS = "gcs"
)

// Config represents the Housekeeping configuration.
type Config struct {
	// Version is the version of the config file.
	Version string `yaml:"version"`

	// Debug configures debug mode, if set to true.
	Debug bool `yaml:"debug"`

	// Logging represents the logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Redis represents the Redis configuration
	Redis RedisConfig `yaml:"redis"`

	// Database represents the database configuration.
	Database DatabaseConfig `yaml:"database"`

	// Worker represents the worker configuration.
	Worker WorkerConfig `yaml:"worker"`

	// Scheduler represents the scheduler configuration.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Dashboard represents the dashboard configuration.
	Dashboard DashboardConfig `yaml:"dashboard"`

	// Cleanup represents the settings of the housekeeping engine.
	Cleanup CleanupConfig `yaml:"cleanup"`

	// ObjectStore represents the object store configuration.
	ObjectStore ObjectStoreConfig `yaml:"object_store"`

	// Catalog represents the catalog service configuration.
	Catalog CatalogConfig `yaml:"catalog"`
}

// LoggingConfig provides logging specific configuration settings.
type LoggingConfig struct {
	// Level is the log level, one of debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is the log format, either text or json.
	Format string `yaml:"format"`

	// AddSource adds the source code position to log events.
	AddSource bool `yaml:"add_source"`

	// Attributes are added to each log event.
	Attributes map[string]string `yaml:"attributes"`
}

// RedisConfig provides Redis specific configuration settings.
type RedisConfig struct {
	// Endpoint is the endpoint of the Redis service.
	Endpoint string `yaml:"endpoint"`
}

// DatabaseConfig provides database specific configuration settings.
type DatabaseConfig struct {
	// DSN is the Data Source Name to connect to.
	DSN string `yaml:"dsn"`

	// MigrationDirectory specifies an alternate location with migration
	// files.
	MigrationDirectory string `yaml:"migration_dir"`
}

// WorkerConfig provides worker specific configuration settings.
type WorkerConfig struct {
	// Concurrency specifies the concurrency level for workers.
	Concurrency int `yaml:"concurrency"`

	// Queues maps queue names to their priority.
	Queues map[string]int `yaml:"queues"`

	// StrictPriority processes queues in strict priority order.
	StrictPriority bool `yaml:"strict_priority"`

	// Metrics configures the metrics server of the worker.
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig provides settings for the metrics server.
type MetricsConfig struct {
	// Address is the address on which metrics are served.
	Address string `yaml:"address"`

	// Path is the HTTP path of the metrics handler.
	Path string `yaml:"path"`
}

// SchedulerConfig provides scheduler specific configuration settings.
type SchedulerConfig struct {
	// DefaultQueue is the queue of periodic jobs, which do not specify
	// one.
	DefaultQueue string `yaml:"default_queue"`

	// Jobs are additional periodic jobs.
	Jobs []*PeriodicJob `yaml:"jobs"`
}

// PeriodicJob is a task, which is enqueued periodically.
type PeriodicJob struct {
	// Name is the name of the task.
	Name string `yaml:"name"`

	// Spec is the cron spec of the job.
	Spec string `yaml:"spec"`

	// Desc is an optional description of the job.
	Desc string `yaml:"desc"`

	// Payload is an optional payload of the task.
	Payload string `yaml:"payload"`

	// Queue is an optional queue of the task.
	Queue string `yaml:"queue"`
}

// DashboardConfig provides dashboard specific configuration settings.
type DashboardConfig struct {
	// Address is the address on which the dashboard is served.
	Address string `yaml:"address"`

	// ReadOnly disables any actions from the dashboard.
	ReadOnly bool `yaml:"read_only"`

	// PrometheusEndpoint enables the metrics view of the dashboard.
	PrometheusEndpoint string `yaml:"prometheus_endpoint"`
}

// CleanupConfig provides the settings of the housekeeping engine.
type CleanupConfig struct {
	// PageSize is the number of records fetched per page.
	PageSize int `yaml:"page_size"`

	// BatchSize is the number of keys per batch delete request.
	BatchSize int `yaml:"batch_size"`

	// DryRun plans deletions without performing them.
	DryRun bool `yaml:"dry_run"`

	// AuditRetention is the retention of audit entries, either as an
	// ISO-8601 duration or as a Go duration.
	AuditRetention string `yaml:"audit_retention"`

	// DefaultDelay is the cleanup delay of intents scheduled from the
	// CLI, when none is given.
	DefaultDelay string `yaml:"default_delay"`

	// ClientID identifies intents scheduled from the CLI.
	ClientID string `yaml:"client_id"`

	// Schedules are the cron specs of the periodic housekeeping tasks.
	Schedules CleanupSchedules `yaml:"schedules"`
}

// CleanupSchedules provides the cron specs of the periodic housekeeping
// tasks. An empty spec disables the respective task.
type CleanupSchedules struct {
	Cleanup    string `yaml:"cleanup"`
	Disable    string `yaml:"disable"`
	PurgeAudit string `yaml:"purge_audit"`
}

// GetPageSize returns the configured page size or [DefaultPageSize].
func (c CleanupConfig) GetPageSize() int {
	if c.PageSize <= 0 {
		return DefaultPageSize
	}

	return c.PageSize
}

// GetBatchSize returns the configured batch size or [DefaultBatchSize].
func (c CleanupConfig) GetBatchSize() int {
	if c.BatchSize <= 0 {
		return DefaultBatchSize
	}

	return c.BatchSize
}

// GetAuditRetention returns the configured audit retention or
// [DefaultAuditRetention].
func (c CleanupConfig) GetAuditRetention() (time.Duration, error) {
	if c.AuditRetention == "" {
		return DefaultAuditRetention, nil
	}

	return period.Parse(c.AuditRetention)
}

// GetDefaultDelay returns the configured default delay or
// [DefaultCleanupDelay].
func (c CleanupConfig) GetDefaultDelay() (time.Duration, error) {
	if c.DefaultDelay == "" {
		return DefaultCleanupDelay, nil
	}

	return period.Parse(c.DefaultDelay)
}

// GetClientID returns the configured client id or [DefaultClientID].
func (c CleanupConfig) GetClientID() string {
	if c.ClientID == "" {
		return DefaultClientID
	}

	return c.ClientID
}

// ObjectStoreConfig provides the object store settings.
type ObjectStoreConfig struct {
	// Provider is either s3 or gcs.
	Provider string `yaml:"provider"`

	// S3 provides the settings of the S3 provider.
	S3 S3Config `yaml:"s3"`

	// GCS provides the settings of the GCS provider.
	GCS GCSConfig `yaml:"gcs"`
}

// S3Config provides settings for S3 and S3 compatible services.
type S3Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// GCSConfig provides settings for Google Cloud Storage.
type GCSConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	Endpoint        string `yaml:"endpoint"`
}

// CatalogConfig provides the settings of the catalog service.
type CatalogConfig struct {
	// Endpoint is the base URL of the catalog REST API. An empty endpoint
	// disables catalog access.
	Endpoint string `yaml:"endpoint"`

	// Prefix is an optional path prefix of the catalog API.
	Prefix string `yaml:"prefix"`

	// Token is an optional bearer token.
	Token string `yaml:"token"`

	// Timeout is the timeout of a single request, e.g. 30s.
	Timeout time.Duration `yaml:"timeout"`
}

// Parse parses the config from the given path.
func Parse(path string) (*Config, error) {
	var conf Config
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, &conf); err != nil {
		return nil, err
	}

	if conf.Version == "" {
		return nil, ErrNoConfigVersion
	}

	if conf.Version != ConfigFormatVersion {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, conf.Version)
	}

	switch conf.ObjectStore.Provider {
	case "", ProviderS3, ProviderGCS:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, conf.ObjectStore.Provider)
	}

	return &conf, nil
}

// MustParse parses the config from the given path, or panics in case of errors.
func MustParse(path string) *Config {
	config, err := Parse(path)
	if err != nil {
		panic(err)
	}

	return config
}
