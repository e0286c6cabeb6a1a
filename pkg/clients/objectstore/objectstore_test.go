// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package objectstore_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/gardener/housekeeping/pkg/clients/objectstore"
)

func TestParseLocation(t *testing.T) {
	testCases := []struct {
		path    string
		want    objectstore.Location
		wantErr bool
	}{
		{
			path: "s3://bucket/db/table/p=1/",
			want: objectstore.Location{Scheme: "s3", Bucket: "bucket", Key: "db/table/p=1"},
		},
		{
			path: "S3A://bucket/db",
			want: objectstore.Location{Scheme: "s3a", Bucket: "bucket", Key: "db"},
		},
		{
			path: "gs://bucket",
			want: objectstore.Location{Scheme: "gs", Bucket: "bucket", Key: ""},
		},
		{path: "/db/table", wantErr: true},
		{path: "s3:///db/table", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			got, err := objectstore.ParseLocation(tc.path)
			if tc.wantErr {
				if !errors.Is(err, objectstore.ErrInvalidLocation) {
					t.Fatalf("want %v got %v", objectstore.ErrInvalidLocation, err)
				}

				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if got != tc.want {
				t.Fatalf("want %+v got %+v", tc.want, got)
			}
		})
	}
}

func TestLocationParent(t *testing.T) {
	loc, err := objectstore.ParseLocation("s3://bucket/db/table/p=1")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	want := []string{"db/table", "db", ""}
	got := make([]string, 0)
	for {
		parent, ok := loc.Parent()
		if !ok {
			break
		}
		got = append(got, parent.Key)
		loc = parent
	}

	if !slices.Equal(want, got) {
		t.Fatalf("want %v got %v", want, got)
	}

	if want, got := "db/table/p=1_$folder$", (objectstore.Location{Key: "db/table/p=1"}).SentinelKey(); want != got {
		t.Fatalf("want %s got %s", want, got)
	}
}

func TestWithClosesClient(t *testing.T) {
	client := &closeTracker{MemoryClient: objectstore.NewMemoryClient()}
	factory := func(context.Context) (objectstore.Client, error) {
		return client, nil
	}

	boom := errors.New("boom")
	err := objectstore.With(context.Background(), factory, func(objectstore.Client) error {
		return boom
	})

	if !errors.Is(err, boom) {
		t.Fatalf("want %v got %v", boom, err)
	}
	if !client.closed {
		t.Fatal("client was not closed")
	}
}

func TestMemoryClientBatch(t *testing.T) {
	ctx := context.Background()
	client := objectstore.NewMemoryClient()
	client.Put("bucket", "a/1", 10)
	client.Put("bucket", "a/2", 20)
	client.Put("bucket", "b/1", 30)

	items, err := client.List(ctx, "bucket", "a/")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(items) != 2 {
		t.Fatalf("want 2 objects got %d", len(items))
	}

	deleted, err := client.DeleteBatch(ctx, "bucket", []string{"a/1", "a/2"})
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("want 2 deleted keys got %d", len(deleted))
	}
	if keys := client.Keys("bucket"); !slices.Equal(keys, []string{"b/1"}) {
		t.Fatalf("want [b/1] got %v", keys)
	}
}

type closeTracker struct {
	*objectstore.MemoryClient
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true

	return nil
}
