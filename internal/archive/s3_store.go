package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// s3Store implements Store on AWS S3.
type s3Store struct {
	client *s3.Client
	bucket string
	logger zerolog.Logger
}

// NewS3Store creates a new S3-backed archive store.
func NewS3Store(ctx context.Context, bucket, region string, logger zerolog.Logger) (Store, error) {
	logger = logger.With().Str("component", "s3-archive-store").Logger()

	// Load AWS configuration
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		logger.Error().Err(err).Msg("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(cfg)

	logger.Info().
		Str("bucket", bucket).
		Str("region", region).
		Msg("S3 archive store initialised")

	return &s3Store{
		client: client,
		bucket: bucket,
		logger: logger,
	}, nil
}

// Put uploads body gzipped under key.
func (s *s3Store) Put(ctx context.Context, key string, body []byte) error {
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := gzipWriter.Write(body); err != nil {
		return fmt.Errorf("failed to compress archive object %s: %w", key, err)
	}
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to compress archive object %s: %w", key, err)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("bucket", s.bucket).
			Str("key", key).
			Msg("failed to put object to S3")
		return fmt.Errorf("failed to put object to S3 (bucket=%s, key=%s): %w", s.bucket, key, err)
	}

	return nil
}

// Get downloads and decompresses the object stored under key.
func (s *s3Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("bucket", s.bucket).
			Str("key", key).
			Msg("failed to get object from S3")
		return nil, fmt.Errorf("failed to get object from S3 (bucket=%s, key=%s): %w", s.bucket, key, err)
	}
	defer result.Body.Close()

	gzipReader, err := gzip.NewReader(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader for S3 object %s: %w", key, err)
	}
	defer gzipReader.Close()

	return io.ReadAll(gzipReader)
}

// fallbackStore writes to S3 first and falls back to the local file system.
type fallbackStore struct {
	s3Store   Store
	fileStore Store
	s3Prefix  string
	s3Enabled bool
	logger    zerolog.Logger
}

// NewFallbackStore creates a store that tries S3 first, then falls back to local file system.
// If s3Store is nil, it will only use the file store.
func NewFallbackStore(s3Store, fileStore Store, s3Prefix string, s3Enabled bool, logger zerolog.Logger) Store {
	return &fallbackStore{
		s3Store:   s3Store,
		fileStore: fileStore,
		s3Prefix:  s3Prefix,
		s3Enabled: s3Enabled,
		logger:    logger.With().Str("component", "fallback-archive-store").Logger(),
	}
}

// Put stores under s3Prefix+key in S3, or under key locally when S3 fails.
func (s *fallbackStore) Put(ctx context.Context, key string, body []byte) error {
	if s.s3Enabled && s.s3Store != nil {
		s3Key := s.s3Prefix + key

		err := s.s3Store.Put(ctx, s3Key, body)
		if err == nil {
			return nil
		}

		s.logger.Warn().
			Err(err).
			Str("s3_key", s3Key).
			Msg("failed to archive to S3, falling back to local file system")
	}

	return s.fileStore.Put(ctx, key, body)
}

// Get reads from S3 first and falls back to the local copy.
func (s *fallbackStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.s3Enabled && s.s3Store != nil {
		s3Key := s.s3Prefix + key

		body, err := s.s3Store.Get(ctx, s3Key)
		if err == nil {
			return body, nil
		}

		s.logger.Warn().
			Err(err).
			Str("s3_key", s3Key).
			Msg("failed to read archive from S3, falling back to local file system")
	}

	return s.fileStore.Get(ctx, key)
}
