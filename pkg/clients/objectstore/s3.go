// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and Gardener contributors
//
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config configures a [S3Client].
type S3Config struct {
	// Region is the AWS region. Defaults to us-east-1.
	Region string

	// Endpoint is an optional endpoint of a S3 compatible service.
	Endpoint string

	// AccessKeyID and SecretAccessKey are optional static credentials. The
	// default credentials chain is used when they are empty.
	AccessKeyID     string
	SecretAccessKey string

	// UsePathStyle enables path-style addressing.
	UsePathStyle bool
}

// S3Client is a [Client] for AWS S3 and S3 compatible services.
type S3Client struct {
	client *s3.Client
}

var _ Client = &S3Client{}

// NewS3Client creates a new [S3Client] from the given config.
func NewS3Client(ctx context.Context, conf S3Config) (*S3Client, error) {
	region := conf.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	if conf.AccessKeyID != "" && conf.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AccessKeyID, conf.SecretAccessKey, ""),
		))
	}

	awsConf, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Endpoint)
		}
		o.UsePathStyle = conf.UsePathStyle
	})

	return &S3Client{client: client}, nil
}

// Exists implements the [Client] interface.
func (c *S3Client) Exists(ctx context.Context, bucket, key string) (bool, error) {
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
func (c *S3Client) Size(ctx context.Context, bucket, key string) (int64, error) {
	if key == "" {
		return 0, ErrNotFound
	}

	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, s3Error("HeadObject", bucket, key, err)
	}

	return aws.ToInt64(out.ContentLength), nil
}

// Delete implements the [Client] interface.
func (c *S3Client) Delete(ctx context.Context, bucket, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = s3Error("DeleteObject", bucket, key, err)
		if errors.Is(err, ErrNotFound) {
			return nil
		}

		return err
	}

	return nil
}

// List implements the [Client] interface.
func (c *S3Client) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	items := make([]Object, 0)
	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s3Error("ListObjectsV2", bucket, prefix, err)
		}

		for _, obj := range page.Contents {
			items = append(items, Object{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			})
		}
	}

	return items, nil
}

// DeleteBatch implements the [Client] interface.
func (c *S3Client) DeleteBatch(ctx context.Context, bucket string, keys []string) ([]string, error) {
	if len(keys) > MaxBatchSize {
		return nil, fmt.Errorf("batch of %d keys exceeds limit of %d", len(keys), MaxBatchSize)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
	}

	out, err := c.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{
			Objects: objects,
			Quiet:   aws.Bool(false),
		},
	})
	if err != nil {
		return nil, s3Error("DeleteObjects", bucket, "", err)
	}

	deleted := make([]string, 0, len(out.Deleted))
	for _, item := range out.Deleted {
		deleted = append(deleted, aws.ToString(item.Key))
	}

	return deleted, nil
}

// Close implements the [Client] interface.
func (c *S3Client) Close() error {
	return nil
}

func s3Error(op, bucket, key string, err error) error {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return fmt.Errorf("%s s3://%s/%s: %w", op, bucket, key, ErrNotFound)
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%s s3://%s/%s: %w", op, bucket, key, ErrNotFound)
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%s s3://%s/%s: %w", op, bucket, key, ErrNotFound)
	}

	return fmt.Errorf("%s s3://%s/%s: %w", op, bucket, key, err)
}
