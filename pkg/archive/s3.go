package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/tally/pkg/analytics"
	"github.com/platinummonkey/tally/pkg/period"
)

var tracer = otel.Tracer("github.com/platinummonkey/tally/archive")

// Config holds S3 connection settings
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	Prefix       string
	CreateBucket bool
}

// ObjectAPI is the subset of the S3 client the archiver needs
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Document is the archived form of one rollup run
type Document struct {
	Period      period.Granularity       `json:"period"`
	BucketStart time.Time                `json:"bucket_start"`
	ArchivedAt  time.Time                `json:"archived_at"`
	Rollups     []analytics.PeriodRollup `json:"rollups"`
}

// S3Archiver writes rollup runs to a bucket
type S3Archiver struct {
	client ObjectAPI
	bucket string
	prefix string
	now    func() time.Time
}

var _ analytics.RollupArchiver = (*S3Archiver)(nil)

// NewS3Client builds an S3 client from cfg. Static keys take precedence over the default credential chain.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// NewS3Archiver creates an archiver on client, creating the bucket first when cfg.CreateBucket is set
func NewS3Archiver(ctx context.Context, client ObjectAPI, cfg Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	if cfg.CreateBucket {
		if err := createBucketIfNotExists(ctx, client, cfg.Bucket); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
		}
	}
	return &S3Archiver{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		now:    time.Now,
	}, nil
}

// ObjectKey returns where the run for bucketStart is stored
func (a *S3Archiver) ObjectKey(g period.Granularity, bucketStart time.Time) string {
	return fmt.Sprintf("%srollups/%s/%s.json", a.prefix, g, bucketStart.UTC().Format("2006-01-02"))
}

// Archive uploads one run's rollups as a single JSON document
func (a *S3Archiver) Archive(ctx context.Context, g period.Granularity, bucketStart time.Time, rollups []analytics.PeriodRollup) error {
	key := a.ObjectKey(g, bucketStart)
	ctx, span := tracer.Start(ctx, "S3.ArchiveRollups",
		trace.WithAttributes(
			attribute.String("s3.bucket", a.bucket),
			attribute.String("s3.key", key),
			attribute.Int("tally.rollups", len(rollups)),
		),
	)
	defer span.End()

	data, err := json.Marshal(Document{
		Period:      g,
		BucketStart: bucketStart.UTC(),
		ArchivedAt:  a.now().UTC(),
		Rollups:     rollups,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode rollups")
		return fmt.Errorf("failed to encode rollups: %w", err)
	}

	hash := sha256.Sum256(data)
	span.SetAttributes(attribute.Int("content.size", len(data)))

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(hash[:]),
			"rollup-count":    fmt.Sprintf("%d", len(rollups)),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload to s3")
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	span.SetStatus(codes.Ok, "rollups archived")
	return nil
}

// HealthCheck verifies the bucket is reachable
func (a *S3Archiver) HealthCheck(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

func createBucketIfNotExists(ctx context.Context, client ObjectAPI, bucket string) error {
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
		return nil
	}

	_, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}

	// lost a race with another creator
	var owned *types.BucketAlreadyOwnedByYou
	var exists *types.BucketAlreadyExists
	if errors.As(err, &owned) || errors.As(err, &exists) {
		return nil
	}
	return fmt.Errorf("failed to create bucket: %w", err)
}
