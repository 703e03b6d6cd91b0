package artifact

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// PutObjectAPI is the part of the S3 client used by S3Store.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func newS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// S3Store publishes the records file as a single S3 object. PutObject replaces the object atomically.
type S3Store struct {
	logger zerolog.Logger
	client PutObjectAPI
	bucket string
	key    string
}

// NewS3Store creates an S3Store.
func NewS3Store(logger zerolog.Logger, client PutObjectAPI, bucket string, key string) *S3Store {
	return &S3Store{logger: logger, client: client, bucket: bucket, key: key}
}

// Location is the s3:// URL of the object.
func (s *S3Store) Location() string {
	return "s3://" + s.bucket + "/" + s.key
}

// Publish implements Store.
func (s *S3Store) Publish(ctx context.Context, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          f,
		ContentLength: aws.Int64(fi.Size()),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("uploading %v: %w", s.Location(), err)
	}

	s.logger.Debug().Str("location", s.Location()).Int64("bytes", fi.Size()).Msg("Published records file")
	return nil
}
