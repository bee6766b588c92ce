package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"folio/internal/domain"
	"folio/internal/domain/services"
)

// HeadObjectAPI is the part of the S3 client the store uses
type HeadObjectAPI interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Store implements BlobStore over an S3 bucket
type S3Store struct {
	client HeadObjectAPI
	bucket string
}

// NewS3Store loads the default AWS config for region and returns a store for bucket
func NewS3Store(ctx context.Context, region, bucket string) (*S3Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3StoreWithClient(s3.NewFromConfig(cfg), bucket), nil
}

// NewS3StoreWithClient wraps an existing client
func NewS3StoreWithClient(client HeadObjectAPI, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

var _ services.BlobStore = (*S3Store)(nil)

// Stat returns object metadata, or NotFound when the key does not exist
func (s *S3Store) Stat(ctx context.Context, key string) (*services.BlobInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
			return nil, &domain.NotFoundError{Message: "blob not found: " + key}
		}
		return nil, fmt.Errorf("head object %s: %w", key, err)
	}

	info := &services.BlobInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}
