package report

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures an S3Sink.
type S3Config struct {
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// PutObjectAPI is the part of the S3 client the sink needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads reports as JSON objects under KeyPrefix/<run>.json.
type S3Sink struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3Sink creates a sink using client.
func NewS3Sink(client PutObjectAPI, bucket, keyPrefix string) (*S3Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &S3Sink{client: client, bucket: bucket, prefix: keyPrefix}, nil
}

// NewS3Client builds an S3 client from cfg. Static credentials are used
// when both keys are set, otherwise the default AWS credential chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("S3 report sink: region is required")
	}

	opts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	opts = append(opts, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// MinIO and Localstack need path-style addressing
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (s *S3Sink) Name() string { return "s3" }

// Key returns the object key r is stored under.
func (s *S3Sink) Key(r *Report) string {
	name := reportName(r, FormatJSON)
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *S3Sink) Write(ctx context.Context, r *Report) (Written, error) {
	if err := ctx.Err(); err != nil {
		return Written{}, err
	}

	data, err := Encode(r, FormatJSON)
	if err != nil {
		return Written{}, err
	}

	key := s.Key(r)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return Written{}, fmt.Errorf("failed to upload report to S3: %w", err)
	}

	return Written{Location: "s3://" + s.bucket + "/" + key, Bytes: len(data)}, nil
}
