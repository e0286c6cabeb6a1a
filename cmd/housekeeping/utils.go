// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/olekukonko/tablewriter"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"

	"github.com/gardener/housekeeping/internal/pkg/migrations"
	"github.com/gardener/housekeeping/pkg/clients/catalog"
	"github.com/gardener/housekeeping/pkg/clients/objectstore"
	"github.com/gardener/housekeeping/pkg/core/config"
	"github.com/gardener/housekeeping/pkg/housekeeping/audit"
	"github.com/gardener/housekeeping/pkg/housekeeping/cleanup"
	"github.com/gardener/housekeeping/pkg/housekeeping/pathcleanup"
	"github.com/gardener/housekeeping/pkg/housekeeping/schedule"
	"github.com/gardener/housekeeping/pkg/housekeeping/store"
	"github.com/gardener/housekeeping/pkg/housekeeping/tasks"
	"github.com/gardener/housekeeping/pkg/metrics"
	dbutils "github.com/gardener/housekeeping/pkg/utils/db"
)

// na is the string used when a value is not available.
const na = "N/A"

// errNoRedisEndpoint is returned when the Redis endpoint is not configured.
var errNoRedisEndpoint = errors.New("no redis endpoint specified")

// errNoDashboardAddress is returned when the dashboard address is not
// configured.
var errNoDashboardAddress = errors.New("no dashboard address specified")

// errNoObjectStore is returned when no object store provider is
// configured.
var errNoObjectStore = errors.New("no object store provider specified")

// configKey is the key used to store the parsed configuration in the
// context.
type configKey struct{}

// getConfig extracts and returns the [config.Config] from app's context.
func getConfig(ctx *cli.Context) *config.Config {
	conf, ok := ctx.Context.Value(configKey{}).(*config.Config)
	if !ok {
		slog.Error("failed to extract configuration from context")
		os.Exit(1)
	}

	return conf
}

// newTableWriter returns a new table, which renders to the given writer.
func newTableWriter(w io.Writer, headers []string) *tablewriter.Table {
	items := make([]any, 0, len(headers))
	for _, header := range headers {
		items = append(items, header)
	}

	table := tablewriter.NewTable(w)
	table.Header(items...)

	return table
}

// validateRedisConfig validates the Redis configuration settings.
func validateRedisConfig(conf *config.Config) error {
	if conf.Redis.Endpoint == "" {
		return errNoRedisEndpoint
	}

	return nil
}

// validateDBConfig validates the database configuration settings.
func validateDBConfig(conf *config.Config) error {
	if conf.Database.DSN == "" {
		return dbutils.ErrInvalidDSN
	}

	return nil
}

// validateDashboardConfig validates the dashboard configuration settings.
func validateDashboardConfig(conf *config.Config) error {
	if conf.Dashboard.Address == "" {
		return errNoDashboardAddress
	}

	return nil
}

// validateObjectStoreConfig validates the object store settings.
func validateObjectStoreConfig(conf *config.Config) error {
	if conf.ObjectStore.Provider == "" {
		return errNoObjectStore
	}

	return nil
}

// validateConfig runs the given validators against the config.
func validateConfig(conf *config.Config, validators ...func(c *config.Config) error) error {
	for _, validator := range validators {
		if err := validator(conf); err != nil {
			return err
		}
	}

	return nil
}

// newRedisClientOpt returns a new [asynq.RedisClientOpt] from the given
// config.
func newRedisClientOpt(conf *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr: conf.Redis.Endpoint,
	}
}

// newInspector returns a new [asynq.Inspector] from the given config.
func newInspector(conf *config.Config) *asynq.Inspector {
	return asynq.NewInspector(newRedisClientOpt(conf))
}

// newAsynqClient returns a new [asynq.Client] from the given config.
func newAsynqClient(conf *config.Config) *asynq.Client {
	return asynq.NewClient(newRedisClientOpt(conf))
}

// newScheduler returns a new [asynq.Scheduler] from the given config.
func newScheduler(conf *config.Config) *asynq.Scheduler {
	preEnqueueFunc := func(t *asynq.Task, opts []asynq.Option) {
		slog.Info("enqueueing task", "name", t.Type())
	}

	postEnqueueFunc := func(info *asynq.TaskInfo, err error) {
		switch {
		case errors.Is(err, asynq.ErrDuplicateTask):
			slog.Warn("previous tick is still running, skipping")

			return
		case err != nil:
			slog.Error("failed to enqueue task", "reason", err)

			return
		}
		slog.Info("task enqueued", "name", info.Type, "id", info.ID, "queue", info.Queue)
	}

	opts := &asynq.SchedulerOpts{
		PreEnqueueFunc:  preEnqueueFunc,
		PostEnqueueFunc: postEnqueueFunc,
	}

	return asynq.NewScheduler(newRedisClientOpt(conf), opts)
}

// newDB returns a new [bun.DB] from the given config.
func newDB(conf *config.Config) *bun.DB {
	db, err := dbutils.NewFromConfig(conf.Database, conf.Debug)
	if err != nil {
		slog.Error("cannot create database", "reason", err)
		os.Exit(1)
	}

	return db
}

// newMigrator returns a new [migrate.Migrator] from the given config. The
// bundled migrations are used, unless an alternate directory is configured.
func newMigrator(conf *config.Config, db *bun.DB) (*migrate.Migrator, error) {
	return migrations.NewMigrator(db, conf.Database.MigrationDirectory)
}

// newObjectStoreFactory returns a [objectstore.Factory] for the configured
// provider.
func newObjectStoreFactory(conf *config.Config) (objectstore.Factory, error) {
	switch conf.ObjectStore.Provider {
	case config.ProviderS3:
		s3conf := objectstore.S3Config{
			Region:          conf.ObjectStore.S3.Region,
			Endpoint:        conf.ObjectStore.S3.Endpoint,
			AccessKeyID:     conf.ObjectStore.S3.AccessKeyID,
			SecretAccessKey: conf.ObjectStore.S3.SecretAccessKey,
			UsePathStyle:    conf.ObjectStore.S3.UsePathStyle,
		}
		factory := func(ctx context.Context) (objectstore.Client, error) {
			return objectstore.NewS3Client(ctx, s3conf)
		}

		return factory, nil
	case config.ProviderGCS:
		gcsconf := objectstore.GCSConfig{
			CredentialsFile: conf.ObjectStore.GCS.CredentialsFile,
			Endpoint:        conf.ObjectStore.GCS.Endpoint,
			UserAgent:       "gardener-housekeeping",
		}
		factory := func(ctx context.Context) (objectstore.Client, error) {
			return objectstore.NewGCSClient(ctx, gcsconf)
		}

		return factory, nil
	case "":
		return nil, errNoObjectStore
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownProvider, conf.ObjectStore.Provider)
	}
}

// newCatalogFactory returns a [catalog.Factory] for the configured catalog
// service, or nil if no catalog is configured.
func newCatalogFactory(conf *config.Config) catalog.Factory {
	if conf.Catalog.Endpoint == "" {
		return nil
	}

	restConf := catalog.RestConfig{
		URI:     conf.Catalog.Endpoint,
		Prefix:  conf.Catalog.Prefix,
		Token:   conf.Catalog.Token,
		Timeout: conf.Catalog.Timeout,
	}

	factory := func(context.Context) (catalog.Client, error) {
		return catalog.NewRestClient(restConf)
	}

	return factory
}

// runtimeOptions tweak the runtime created by newRuntime.
type runtimeOptions struct {
	dryRun bool
}

// newRuntime wires the housekeeping components from the given config.
func newRuntime(conf *config.Config, db *bun.DB, opts runtimeOptions) (*tasks.Runtime, error) {
	objects, err := newObjectStoreFactory(conf)
	if err != nil {
		return nil, err
	}

	retention, err := conf.Cleanup.GetAuditRetention()
	if err != nil {
		return nil, fmt.Errorf("invalid audit retention: %w", err)
	}

	recorder := metrics.Recorder{}
	catalogFactory := newCatalogFactory(conf)
	s := store.New(db)
	cleaner := pathcleanup.New(
		pathcleanup.WithBatchSize(conf.Cleanup.GetBatchSize()),
		pathcleanup.WithRecorder(recorder),
	)

	handlers := []cleanup.Handler{
		cleanup.NewPathHandler(objects, cleaner),
	}
	if catalogFactory != nil {
		handlers = append(handlers, cleanup.NewMetadataHandler(catalogFactory, objects, cleaner))
	} else {
		slog.Warn("no catalog configured, metadata records will not be cleaned up")
	}

	engine := cleanup.NewEngine(s,
		cleanup.WithPageSize(conf.Cleanup.GetPageSize()),
		cleanup.WithDryRun(conf.Cleanup.DryRun || opts.dryRun),
		cleanup.WithRecorder(recorder),
		cleanup.WithCatalog(catalogFactory),
		cleanup.WithHandlers(handlers...),
	)

	scheduler := schedule.NewService(s,
		schedule.WithCatalog(catalogFactory),
		schedule.WithRecorder(recorder),
	)

	rt := &tasks.Runtime{
		Engine:         engine,
		Scheduler:      scheduler,
		Purger:         audit.NewPurger(s.Audit(), audit.WithRecorder(recorder)),
		AuditRetention: retention,
	}

	return rt, nil
}
