// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package catalog provides clients for the metadata catalog, which owns the
// housekept tables and partitions.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// PropertyManaged is the table property, which marks a table as
	// managed by expired-metadata housekeeping.
	PropertyManaged = "housekeeping.remove.expired.data"

	// PropertyRetentionPeriod is the table property, which overrides the
	// default cleanup delay of expired metadata.
	PropertyRetentionPeriod = "housekeeping.expired.data.retention.period"

	// PropertyTableType is the table property naming the table type.
	PropertyTableType = "table_type"

	// PropertyFormat is the table property naming the table format.
	PropertyFormat = "format"
)

var (
	// ErrTableNotFound is returned when a table does not exist.
	ErrTableNotFound = errors.New("table not found")

	// ErrPartitionNotFound is returned when a partition does not exist.
	ErrPartitionNotFound = errors.New("partition not found")

	// ErrUnavailable is returned when the catalog service cannot be
	// reached.
	ErrUnavailable = errors.New("catalog unavailable")
)

// Partition is a partition of a catalog table.
type Partition struct {
	// Name is the partition name, e.g. year=2025/month=01.
	Name string

	// Path is the storage location of the partition.
	Path string

	// CreatedAt is the creation time reported by the catalog, if known.
	CreatedAt *time.Time
}

// Client is the interface for catalog clients.
type Client interface {
	// TableExists returns true, if the table exists.
	TableExists(ctx context.Context, database, table string) (bool, error)

	// GetTableProperties returns the properties of the table. Returns
	// [ErrTableNotFound] if the table does not exist.
	GetTableProperties(ctx context.Context, database, table string) (map[string]string, error)

	// DropTable drops the table without purging its data.
	DropTable(ctx context.Context, database, table string) error

	// DropPartition drops the partition without purging its data.
	// Dropping a missing partition is not an error.
	DropPartition(ctx context.Context, database, table, partition string) error

	// ListPartitions returns the partitions of the table.
	ListPartitions(ctx context.Context, database, table string) ([]Partition, error)

	// Close releases the resources of the client.
	Close() error
}

// Factory creates new [Client] instances.
type Factory func(ctx context.Context) (Client, error)

// With creates a new [Client] using the factory and invokes fn with it. The
// client is closed when fn returns.
func With(ctx context.Context, factory Factory, fn func(client Client) error) (err error) {
	client, err := factory(ctx)
	if err != nil {
		return fmt.Errorf("cannot create catalog client: %w", err)
	}

	defer func() {
		err = errors.Join(err, client.Close())
	}()

	return fn(client)
}

// IsManaged returns true, if the properties mark the table as managed by
// expired-metadata housekeeping.
func IsManaged(props map[string]string) bool {
	return strings.EqualFold(strings.TrimSpace(props[PropertyManaged]), "true")
}

// IsIceberg returns true, if the properties describe an Iceberg table.
func IsIceberg(props map[string]string) bool {
	return strings.EqualFold(props[PropertyTableType], "iceberg") ||
		strings.EqualFold(props[PropertyFormat], "iceberg")
}
