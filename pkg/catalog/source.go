package catalog

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source fetches the raw bytes of a catalog document.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// LoadFrom fetches and loads a catalog.
func LoadFrom(ctx context.Context, src Source) (*Catalog, error) {
	data, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog from %s: %w", src, err)
	}
	c, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("load catalog from %s: %w", src, err)
	}
	return c, nil
}

// NewSource picks a source from a location: s3://bucket/key, gs://bucket/key
// or a local file path.
func NewSource(ctx context.Context, location string) (Source, error) {
	switch {
	case strings.HasPrefix(location, "s3://"):
		bucket, key, err := splitObjectURI(location, "s3://")
		if err != nil {
			return nil, err
		}
		region := os.Getenv("GATEKEEPER_S3_REGION")
		if region == "" {
			region = os.Getenv("AWS_REGION")
		}
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Source(ctx, S3SourceConfig{
			Bucket:   bucket,
			Key:      key,
			Region:   region,
			Endpoint: os.Getenv("GATEKEEPER_S3_ENDPOINT"),
		})
	case strings.HasPrefix(location, "gs://"):
		bucket, key, err := splitObjectURI(location, "gs://")
		if err != nil {
			return nil, err
		}
		return newGCSSource(ctx, bucket, key)
	case location == "":
		return nil, fmt.Errorf("catalog location is empty")
	}
	return FileSource{Path: location}, nil
}

func splitObjectURI(uri, scheme string) (string, string, error) {
	rest := strings.TrimPrefix(uri, scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid object location %q, want %sbucket/key", uri, scheme)
	}
	return bucket, key, nil
}

// FileSource reads a catalog from the local filesystem.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(s.Path)
}

func (s FileSource) String() string { return s.Path }

// S3GetObjectAPI is the part of the S3 client the source needs.
type S3GetObjectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3SourceConfig locates a catalog object in S3 or an S3-compatible store.
type S3SourceConfig struct {
	Bucket   string
	Key      string
	Region   string
	Endpoint string // MinIO, LocalStack
}

// S3Source reads a catalog object from S3.
type S3Source struct {
	client S3GetObjectAPI
	bucket string
	key    string
}

// NewS3Source builds a source with the default AWS credential chain.
func NewS3Source(ctx context.Context, cfg S3SourceConfig) (*S3Source, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3SourceWithClient(client, cfg.Bucket, cfg.Key), nil
}

// NewS3SourceWithClient builds a source around an existing client.
func NewS3SourceWithClient(client S3GetObjectAPI, bucket, key string) *S3Source {
	return &S3Source{client: client, bucket: bucket, key: key}
}

func (s *S3Source) Fetch(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	defer func() { _ = out.Body.Close() }()
	return io.ReadAll(out.Body)
}

func (s *S3Source) String() string { return "s3://" + s.bucket + "/" + s.key }
