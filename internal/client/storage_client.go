package client

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aiplaza/serving-client/internal/config"
)

// ObjectReader defines read access to an object store
type ObjectReader interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

// StorageClient implements ObjectReader for S3-compatible stores (MinIO, S3, R2)
type StorageClient struct {
	s3Client *s3.Client
}

// NewStorageClient creates a new object store client
func NewStorageClient(cfg *config.StorageConfig) (*StorageClient, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("storage configuration incomplete")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:               endpoint,
				HostnameImmutable: cfg.UsePathStyle,
			}, nil
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	opts = append(opts,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion(cfg.Region),
	)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &StorageClient{s3Client: s3Client}, nil
}

// Download reads a whole object into memory
func (c *StorageClient) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// ParseObjectURI splits an s3://bucket/key reference. ok is false for
// anything that is not an object store reference.
func ParseObjectURI(ref string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(ref, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
