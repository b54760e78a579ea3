// Package archive uploads rotated WAL files and checkpoint catalog
// snapshots to an S3-compatible bucket for off-box durability. It never
// sits on the hot path: a checkpoint or rotation is already durable
// locally before an Archiver is asked to do anything, so a failed or
// slow upload here is logged and never blocks recycling of local files.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrObjectNotFound is returned by Exists-style checks against a missing key.
var ErrObjectNotFound = errors.New("archive: object not found")

// Config configures the S3-compatible bucket an Archiver targets.
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	WALPrefix    string
	CatalogPrefix string
	MaxRetries   int
}

// Archiver best-effort-copies rotated WAL files and catalog snapshots to
// object storage, grounded on the teacher's S3Storage but narrowed to
// the two upload shapes the checkpoint coordinator and WAL registry
// actually need (single-part PutObject with retry backoff — neither a
// rotated WAL file nor a snappy-compressed catalog snapshot is large
// enough in practice to need the teacher's multipart path).
type Archiver struct {
	client     *s3.Client
	cfg        Config
	maxRetries int
}

// New builds an Archiver against a live AWS config, resolving custom
// endpoints (MinIO, LocalStack) the same way the teacher's S3Storage does.
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(cfg.Endpoint) })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}

	return &Archiver{
		client:     s3.NewFromConfig(awsCfg, s3Opts...),
		cfg:        cfg,
		maxRetries: retries,
	}, nil
}

// ArchiveWALFile uploads a sealed, rotated WAL file under the
// configured WAL prefix, keyed by its filename.
func (a *Archiver) ArchiveWALFile(ctx context.Context, localPath, filename string) error {
	return a.upload(ctx, localPath, a.cfg.WALPrefix+filename)
}

// ArchiveCatalogSnapshot uploads a checkpoint's catalog snapshot file
// under the configured catalog prefix, keyed by its filename.
func (a *Archiver) ArchiveCatalogSnapshot(ctx context.Context, localPath, filename string) error {
	return a.upload(ctx, localPath, a.cfg.CatalogPrefix+filename)
}

func (a *Archiver) upload(ctx context.Context, localPath, objectKey string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", localPath, err)
	}
	defer file.Close()

	return a.retryWithBackoff(ctx, func() error {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.cfg.Bucket),
			Key:    aws.String(objectKey),
			Body:   file,
		})
		return err
	})
}

// Exists checks whether objectKey is already archived, letting a
// recycling pass skip re-uploading a file it archived on a prior run.
func (a *Archiver) Exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *Archiver) retryWithBackoff(ctx context.Context, operation func() error) error {
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if attempt < a.maxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}
