// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// MemoryTable is a table of the [MemoryClient].
type MemoryTable struct {
	Properties map[string]string
	Partitions []Partition
}

// MemoryClient is an in-memory [Client], which is meant for tests.
type MemoryClient struct {
	mu     sync.Mutex
	tables map[string]*MemoryTable

	// Err, if set, is invoked before each call with the name of the
	// operation. A non-nil error fails the call.
	Err func(op, database, table string) error

	droppedTables     []string
	droppedPartitions []string
}

var _ Client = &MemoryClient{}

// NewMemoryClient creates a new empty [MemoryClient].
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		tables: make(map[string]*MemoryTable),
	}
}

func tableKey(database, table string) string {
	return database + "." + table
}

// AddTable adds or replaces a table.
func (c *MemoryClient) AddTable(database, table string, props map[string]string, partitions ...Partition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tables[tableKey(database, table)] = &MemoryTable{
		Properties: maps.Clone(props),
		Partitions: slices.Clone(partitions),
	}
}

// SetProperty sets a property of an existing table.
func (c *MemoryClient) SetProperty(database, table, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tables[tableKey(database, table)]; ok {
		if t.Properties == nil {
			t.Properties = make(map[string]string)
		}
		t.Properties[key] = value
	}
}

// DeleteProperty deletes a property of an existing table.
func (c *MemoryClient) DeleteProperty(database, table, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tables[tableKey(database, table)]; ok {
		delete(t.Properties, key)
	}
}

// DroppedTables returns the dropped tables as database.table.
func (c *MemoryClient) DroppedTables() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.droppedTables)
}

// DroppedPartitions returns the dropped partitions as
// database.table/partition.
func (c *MemoryClient) DroppedPartitions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Clone(c.droppedPartitions)
}

func (c *MemoryClient) check(op, database, table string) error {
	if c.Err != nil {
		return c.Err(op, database, table)
	}

	return nil
}

// TableExists implements the [Client] interface.
func (c *MemoryClient) TableExists(_ context.Context, database, table string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check("TableExists", database, table); err != nil {
		return false, err
	}
	_, ok := c.tables[tableKey(database, table)]

	return ok, nil
}

// GetTableProperties implements the [Client] interface.
func (c *MemoryClient) GetTableProperties(_ context.Context, database, table string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check("GetTableProperties", database, table); err != nil {
		return nil, err
	}
	t, ok := c.tables[tableKey(database, table)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, tableKey(database, table))
	}

	props := maps.Clone(t.Properties)
	if props == nil {
		props = make(map[string]string)
	}

	return props, nil
}

// DropTable implements the [Client] interface.
func (c *MemoryClient) DropTable(_ context.Context, database, table string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check("DropTable", database, table); err != nil {
		return err
	}
	key := tableKey(database, table)
	if _, ok := c.tables[key]; !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, key)
	}
	delete(c.tables, key)
	c.droppedTables = append(c.droppedTables, key)

	return nil
}

// DropPartition implements the [Client] interface.
func (c *MemoryClient) DropPartition(_ context.Context, database, table, partition string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check("DropPartition", database, table); err != nil {
		return err
	}
	key := tableKey(database, table)
	t, ok := c.tables[key]
	if !ok {
		return nil
	}

	t.Partitions = slices.DeleteFunc(t.Partitions, func(p Partition) bool {
		return p.Name == partition
	})
	c.droppedPartitions = append(c.droppedPartitions, key+"/"+partition)

	return nil
}

// ListPartitions implements the [Client] interface.
func (c *MemoryClient) ListPartitions(_ context.Context, database, table string) ([]Partition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.check("ListPartitions", database, table); err != nil {
		return nil, err
	}
	t, ok := c.tables[tableKey(database, table)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, tableKey(database, table))
	}

	return slices.Clone(t.Partitions), nil
}

// Close implements the [Client] interface.
func (c *MemoryClient) Close() error {
	return nil
}
