package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/samber/lo"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
)

// maximum accepted by the DeleteObjects API
const maxDeleteBatchSize = 1000

// S3API is the part of the s3 client S3Store uses.
type S3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// NewS3Client returns an s3 client for cfg. A non-empty endpoint points the
// client at an S3 compatible server (minio) with path style addressing.
func NewS3Client(cfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

type S3Store struct {
	client S3API
	logger logger.Logger

	config struct {
		timeout         time.Duration
		deleteBatchSize int
	}
}

func NewS3Store(conf *config.Config, log logger.Logger, client S3API) *S3Store {
	s := &S3Store{
		client: client,
		logger: log.Child("s3"),
	}
	s.config.timeout = conf.GetDuration("Storage.timeout", 120, time.Second)
	s.config.deleteBatchSize = min(conf.GetInt("Storage.deleteBatchSize", maxDeleteBatchSize), maxDeleteBatchSize)
	if s.config.deleteBatchSize <= 0 {
		s.config.deleteBatchSize = maxDeleteBatchSize
	}
	return s
}

func (s *S3Store) Put(ctx context.Context, bucket, key string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.timeout)
	defer cancel()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer func() { _ = out.Body.Close() }()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	return body, nil
}

func (s *S3Store) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.timeout)
	defer cancel()

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(dirPrefix(prefix)),
	})

	var objects []Object
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, item := range page.Contents {
			objects = append(objects, Object{
				Key:  aws.ToString(item.Key),
				Size: aws.ToInt64(item.Size),
			})
		}
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (s *S3Store) DeletePrefix(ctx context.Context, bucket, prefix string) (int, error) {
	objects, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return 0, err
	}

	var deleted int
	for _, batch := range lo.Chunk(objects, s.config.deleteBatchSize) {
		if err := s.deleteBatch(ctx, bucket, batch); err != nil {
			return deleted, err
		}
		deleted += len(batch)
	}

	s.logger.Debugn("Deleted objects",
		logger.NewStringField("bucket", bucket),
		logger.NewStringField("prefix", prefix),
		logger.NewIntField("count", int64(deleted)),
	)
	return deleted, nil
}

func (s *S3Store) deleteBatch(ctx context.Context, bucket string, batch []Object) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.timeout)
	defer cancel()

	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &types.Delete{
			Objects: lo.Map(batch, func(o Object, _ int) types.ObjectIdentifier {
				return types.ObjectIdentifier{Key: aws.String(o.Key)}
			}),
			Quiet: aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("delete objects in s3://%s: %w", bucket, err)
	}
	if len(out.Errors) > 0 {
		failed := lo.Map(out.Errors, func(e types.Error, _ int) string {
			return aws.ToString(e.Key) + ": " + aws.ToString(e.Message)
		})
		return fmt.Errorf("delete objects in s3://%s: %s", bucket, strings.Join(failed, ", "))
	}
	return nil
}
