package source

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3API interface {
	manager.DownloadAPIClient
	s3.HeadObjectAPIClient
}

var _ Source = &S3Source{}

// S3Source reads archives from objects under Prefix in an S3 bucket. The
// archive path is used as the object key relative to Prefix.
type S3Source struct {
	bucket     string
	prefix     string
	client     s3API
	downloader *manager.Downloader
}

// NewS3Source loads the default AWS configuration and checks that the bucket
// is reachable before returning.
func NewS3Source(ctx context.Context, bucket, prefix string) (*S3Source, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(options *s3.Options) {
		options.DisableLogOutputChecksumValidationSkipped = true
	})
	// check access on startup
	_, err = client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  &bucket,
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access S3 bucket `%s`: %w", bucket, err)
	}
	return newS3Source(client, bucket, prefix), nil
}

func newS3Source(client s3API, bucket, prefix string) *S3Source {
	return &S3Source{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		client: client,
		downloader: manager.NewDownloader(client, func(d *manager.Downloader) {
			d.Concurrency = 4
		}),
	}
}

func (s *S3Source) ReadArchive(ctx context.Context, archivePath string) ([]byte, error) {
	key := s.objectKey(archivePath)
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var notFoundError *types.NotFound
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &notFoundError) || errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, key)
		}
		return nil, fmt.Errorf("failed to stat object: %w", err)
	}

	buf := manager.NewWriteAtBuffer(make([]byte, 0, aws.ToInt64(head.ContentLength)))
	if _, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}); err != nil {
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *S3Source) objectKey(archivePath string) string {
	clean := strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(archivePath, `\`, "/")), "/")
	if s.prefix == "" {
		return clean
	}
	return s.prefix + "/" + clean
}
