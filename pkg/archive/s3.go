// Package archive uploads finished workflow executions to S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dukex/convergence/pkg/eventbus"
	"github.com/dukex/convergence/pkg/events"
	"github.com/dukex/convergence/pkg/models"
)

const (
	DefaultRegion  = "us-east-1"
	DefaultPrefix  = "executions/"
	DefaultTimeout = 10 * time.Second
)

var ErrBucketRequired = errors.New("archive: bucket is required")

type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	Timeout         time.Duration
}

func (c *Config) applyDefaults() {
	if c.Region == "" {
		c.Region = DefaultRegion
	}

	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}

	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// ObjectPutter is the subset of the S3 client used by the sink.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds an S3 client from the default AWS configuration chain, with
// static credentials and a custom endpoint when configured (MinIO, LocalStack).
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	cfg.applyDefaults()

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}

		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// Sink writes one JSON object per archived execution.
type Sink struct {
	putter ObjectPutter
	cfg    Config
	logger *slog.Logger
}

func NewSink(putter ObjectPutter, cfg Config, logger *slog.Logger) (*Sink, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}

	cfg.applyDefaults()

	return &Sink{
		putter: putter,
		cfg:    cfg,
		logger: logger.With("module", "archive", "bucket", cfg.Bucket),
	}, nil
}

// Key is the object key of an execution: prefix, start date, then execution id.
func (s *Sink) Key(execution *models.WorkflowExecution) string {
	return strings.TrimSuffix(s.cfg.Prefix, "/") + "/" +
		execution.StartTime.UTC().Format("2006/01/02") + "/" +
		execution.ID + ".json"
}

func (s *Sink) Archive(ctx context.Context, execution *models.WorkflowExecution) error {
	body, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("archive: failed to encode execution %s: %w", execution.ID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	key := s.Key(execution)

	_, err = s.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"workflow-id": execution.WorkflowID,
			"status":      string(execution.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("archive: failed to upload %s: %w", key, err)
	}

	s.logger.DebugContext(ctx, "Execution archived", "execution_id", execution.ID, "key", key, "size", len(body))

	return nil
}

// Attach uploads every archived execution announced on the hub. Upload failures
// are logged; the execution is already gone from the active set.
func (s *Sink) Attach(hub *eventbus.Hub) func() {
	return hub.Handle(events.WorkflowArchivedEvent, func(ctx context.Context, n events.Notification) {
		archived, ok := n.(events.WorkflowArchived)
		if !ok || archived.Execution == nil {
			return
		}

		err := s.Archive(ctx, archived.Execution)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to archive execution",
				"execution_id", archived.Execution.ID,
				"error", err)
		}
	})
}
