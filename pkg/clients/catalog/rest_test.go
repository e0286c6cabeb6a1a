// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardener/housekeeping/pkg/clients/catalog"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/hive/databases/db/tables/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}
		_, _ = w.Write([]byte(`{"name":"events","location":"s3://bucket/db/events","properties":{"housekeeping.remove.expired.data":"true"}}`))
	})
	mux.HandleFunc("GET /v1/hive/databases/db/tables/events/partitions", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"partitions":[{"name":"dt=2025-01-01","location":"s3://bucket/db/events/dt=2025-01-01","create_time":1735689600},{"name":"dt=2025-01-02","location":"s3://bucket/db/events/dt=2025-01-02"}]}`))
	})
	mux.HandleFunc("DELETE /v1/hive/databases/db/tables/events/partitions/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"partition does not exist","type":"NoSuchPartitionException"}}`))
	})
	mux.HandleFunc("GET /v1/hive/databases/db/tables/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"table does not exist","type":"NoSuchTableException"}}`))
	})
	mux.HandleFunc("DELETE /v1/hive/databases/db/tables/locked", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func TestRestClient(t *testing.T) {
	server := newTestServer(t)
	client, err := catalog.NewRestClient(catalog.RestConfig{
		URI:     server.URL,
		Prefix:  "/hive/",
		Token:   "secret",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	defer client.Close() // nolint: errcheck

	ctx := context.Background()

	props, err := client.GetTableProperties(ctx, "db", "events")
	require.NoError(t, err)
	assert.True(t, catalog.IsManaged(props))

	exists, err := client.TableExists(ctx, "db", "missing")
	require.NoError(t, err)
	assert.False(t, exists)

	partitions, err := client.ListPartitions(ctx, "db", "events")
	require.NoError(t, err)
	require.Len(t, partitions, 2)
	assert.Equal(t, "dt=2025-01-01", partitions[0].Name)
	require.NotNil(t, partitions[0].CreatedAt)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), *partitions[0].CreatedAt)
	assert.Nil(t, partitions[1].CreatedAt)

	assert.NoError(t, client.DropPartition(ctx, "db", "events", "dt=2025-01-01"))
	assert.ErrorIs(t, client.DropTable(ctx, "db", "locked"), catalog.ErrUnavailable)
}

func TestTableProperties(t *testing.T) {
	testCases := []struct {
		desc        string
		props       map[string]string
		wantManaged bool
		wantIceberg bool
	}{
		{"managed hive table", map[string]string{catalog.PropertyManaged: "TRUE"}, true, false},
		{"unmanaged table", map[string]string{catalog.PropertyManaged: "false"}, false, false},
		{"iceberg table type", map[string]string{catalog.PropertyTableType: "ICEBERG"}, false, true},
		{"iceberg format", map[string]string{catalog.PropertyFormat: "iceberg", catalog.PropertyManaged: "true"}, true, true},
		{"no properties", nil, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.wantManaged, catalog.IsManaged(tc.props))
			assert.Equal(t, tc.wantIceberg, catalog.IsIceberg(tc.props))
		})
	}
}

func TestRestClientKeepsSharedHTTPClient(t *testing.T) {
	server := newTestServer(t)
	shared := &http.Client{}

	client, err := catalog.NewRestClient(catalog.RestConfig{
		URI:        server.URL,
		Prefix:     "hive",
		Token:      "secret",
		Timeout:    time.Second,
		HTTPClient: shared,
	})
	require.NoError(t, err)
	defer client.Close() // nolint: errcheck

	assert.Zero(t, shared.Timeout)

	props, err := client.GetTableProperties(context.Background(), "db", "events")
	require.NoError(t, err)
	assert.True(t, catalog.IsManaged(props))
}
