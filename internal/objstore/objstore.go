// Package objstore writes published pages to S3 (or any S3-compatible store).
package objstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/keithlinneman/pagepush/internal/log"
	"github.com/keithlinneman/pagepush/internal/xerrors"
)

const ContentTypeHTML = "text/html"

// Object is a single write. Overwrites are last-writer-wins.
type Object struct {
	Bucket       string
	Key          string
	Body         []byte
	ContentType  string
	CacheControl string // optional
}

// Writer stores one object.
type Writer interface {
	Put(ctx context.Context, obj Object) error
}

// PutObjectAPI is the slice of *s3.Client the writer needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures how the S3 client is built.
type Options struct {
	// Endpoint overrides the S3 endpoint (MinIO, SeaweedFS, localstack)
	Endpoint string
	// UsePathStyle is required by most S3-compatible stores
	UsePathStyle bool
}

// NewS3Client builds an S3 client from an already loaded AWS config.
func NewS3Client(awsCfg aws.Config, opts Options) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
}

type S3Writer struct {
	client PutObjectAPI
	logger log.Logger
	// observe is called with the duration of every PutObject call
	observe func(time.Duration, error)
}

func NewS3Writer(client PutObjectAPI, logger log.Logger) *S3Writer {
	if logger == nil {
		logger = log.Nop()
	}
	return &S3Writer{client: client, logger: logger}
}

// WithObserver sets a callback for put latency, used for prometheus.
func (w *S3Writer) WithObserver(fn func(time.Duration, error)) *S3Writer {
	w.observe = fn
	return w
}

// Put writes obj with a SHA-256 checksum so S3 rejects a corrupted upload.
func (w *S3Writer) Put(ctx context.Context, obj Object) error {
	if obj.Bucket == "" {
		return xerrors.New("objstore: bucket is required")
	}
	if obj.Key == "" {
		return xerrors.New("objstore: key is required")
	}

	ctx, span := otel.Tracer("pagepush/objstore").Start(ctx, "objstore.put")
	defer span.End()
	span.SetAttributes(
		attribute.String("s3.bucket", obj.Bucket),
		attribute.String("s3.key", obj.Key),
		attribute.Int("s3.object.size", len(obj.Body)),
	)

	sum := sha256.Sum256(obj.Body)
	in := &s3.PutObjectInput{
		Bucket:         aws.String(obj.Bucket),
		Key:            aws.String(obj.Key),
		Body:           bytes.NewReader(obj.Body),
		ContentLength:  aws.Int64(int64(len(obj.Body))),
		ContentType:    aws.String(obj.ContentType),
		ChecksumSHA256: aws.String(base64.StdEncoding.EncodeToString(sum[:])),
	}
	if obj.CacheControl != "" {
		in.CacheControl = aws.String(obj.CacheControl)
	}

	start := time.Now()
	_, err := w.client.PutObject(ctx, in)
	if w.observe != nil {
		w.observe(time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "put object failed")
		return xerrors.Wrapf(err, "put s3://%s/%s", obj.Bucket, obj.Key)
	}

	w.logger.Debug(ctx, "stored object",
		"bucket", obj.Bucket,
		"key", obj.Key,
		"bytes", len(obj.Body),
		"duration_seconds", time.Since(start).Seconds(),
	)
	return nil
}
