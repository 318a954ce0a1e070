package objstore

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/pagepush/internal/xerrors"
)

// HeadBucketAPI is the slice of *s3.Client the readiness probe needs.
type HeadBucketAPI interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// BucketProbe is a health.Probe that passes while the target bucket is
// reachable with the current credentials.
type BucketProbe struct {
	client  HeadBucketAPI
	bucket  string
	timeout time.Duration
}

func NewBucketProbe(client HeadBucketAPI, bucket string) *BucketProbe {
	return &BucketProbe{client: client, bucket: bucket, timeout: 2 * time.Second}
}

func (p *BucketProbe) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if _, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)}); err != nil {
		return xerrors.Wrapf(err, "bucket %s unreachable", p.bucket)
	}
	return nil
}
