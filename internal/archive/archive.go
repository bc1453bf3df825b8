// Package archive exports finished interviews to object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/example/interview-scheduler/internal/persistence"
)

// ErrNotConfigured is returned when no bucket is configured.
var ErrNotConfigured = errors.New("archive: bucket not configured")

// Record is the archived document for one interview.
type Record struct {
	Interview   persistence.Interview      `json:"interview"`
	Candidate   persistence.Candidate      `json:"candidate"`
	Interviewer persistence.Interviewer    `json:"interviewer"`
	Notes       []persistence.FeedbackNote `json:"feedback_notes"`
	ArchivedAt  time.Time                  `json:"archived_at"`
}

// Archiver stores a record and returns its object key.
type Archiver interface {
	Archive(ctx context.Context, rec Record) (string, error)
}

// ObjectPutter is the subset of the S3 client used here.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures the S3 archiver.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint selects an S3 compatible service such as MinIO.
	Endpoint string
	Prefix   string
}

// S3Archiver writes one JSON object per interview.
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3Archiver loads the default AWS credential chain.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, ErrNotConfigured
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3ArchiverWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3ArchiverWithClient uses an existing client.
func NewS3ArchiverWithClient(client ObjectPutter, bucket, prefix string) *S3Archiver {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix}
}

// Key returns the object key for an interview: prefix/yyyy/mm/<id>.json,
// bucketed by creation month.
func (a *S3Archiver) Key(iv persistence.Interview) string {
	created := iv.CreatedAt.UTC()
	return fmt.Sprintf("%s%04d/%02d/%s.json", a.prefix, created.Year(), int(created.Month()), iv.ID)
}

// Archive implements Archiver. Writing the same record twice overwrites the
// object with identical content.
func (a *S3Archiver) Archive(ctx context.Context, rec Record) (string, error) {
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode archive record: %w", err)
	}
	key := a.Key(rec.Interview)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return key, nil
}
