// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSConfig configures a [GCSClient].
type GCSConfig struct {
	// CredentialsFile is an optional path to a service account key file.
	// The application default credentials are used when it is empty.
	CredentialsFile string

	// Endpoint is an optional endpoint of the storage API.
	Endpoint string

	// UserAgent is the User-Agent header sent with each request.
	UserAgent string
}

// GCSClient is a [Client] for Google Cloud Storage.
type GCSClient struct {
	client *storage.Client
}

var _ Client = &GCSClient{}

// NewGCSClient creates a new [GCSClient] from the given config.
func NewGCSClient(ctx context.Context, conf GCSConfig) (*GCSClient, error) {
	opts := make([]option.ClientOption, 0)
	if conf.UserAgent != "" {
		opts = append(opts, option.WithUserAgent(conf.UserAgent))
	}
	if conf.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(conf.CredentialsFile))
	}
	if conf.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(conf.Endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot create gcs client: %w", err)
	}

	return &GCSClient{client: client}, nil
}

// Exists implements the [Client] interface.
func (c *GCSClient) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.Size(ctx, bucket, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Size implements the [Client] interface.
func (c *GCSClient) Size(ctx context.Context, bucket, key string) (int64, error) {
	if key == "" {
		return 0, ErrNotFound
	}

	attrs, err := c.client.Bucket(bucket).Object(key).Attrs(ctx)
	if err != nil {
		return 0, gcsError("attrs", bucket, key, err)
	}

	return attrs.Size, nil
}

// Delete implements the [Client] interface.
func (c *GCSClient) Delete(ctx context.Context, bucket, key string) error {
	err := c.client.Bucket(bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return gcsError("delete", bucket, key, err)
	}

	return nil
}

// List implements the [Client] interface.
func (c *GCSClient) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	items := make([]Object, 0)
	it := c.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, gcsError("list", bucket, prefix, err)
		}

		items = append(items, Object{Key: attrs.Name, Size: attrs.Size})
	}

	return items, nil
}

// DeleteBatch implements the [Client] interface. The storage API has no
// batch delete, so objects are deleted one by one and only failed keys are
// left out of the result.
func (c *GCSClient) DeleteBatch(ctx context.Context, bucket string, keys []string) ([]string, error) {
	if len(keys) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d keys exceeds limit of %d", len(keys), MaxBatchSize)
	}

	deleted := make([]string, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := c.Delete(ctx, bucket, key); err != nil {
			continue
		}
		deleted = append(deleted, key)
	}

	return deleted, nil
}

// Close implements the [Client] interface.
func (c *GCSClient) Close() error {
	return c.client.Close()
}

func gcsError(op, bucket, key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("%s gs://%s/%s: %w", op, bucket, key, ErrNotFound)
	}

	return fmt.Errorf("%s gs://%s/%s: %w", op, bucket, key, err)
}
