// Package cdn submits cache invalidations to CloudFront.
package cdn

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/keithlinneman/pagepush/internal/xerrors"
)

// Batch is one invalidation submission.
type Batch struct {
	DistributionID  string
	Paths           []string
	CallerReference string
}

// Invalidation is what CloudFront reports back for a created batch.
type Invalidation struct {
	ID     string
	Status string
}

// Invalidator submits a batch, exactly once, no retries.
type Invalidator interface {
	CreateInvalidation(ctx context.Context, b Batch) (Invalidation, error)
}

// CreateInvalidationAPI is the slice of *cloudfront.Client we need.
type CreateInvalidationAPI interface {
	CreateInvalidation(ctx context.Context, in *cloudfront.CreateInvalidationInput, optFns ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error)
}

type CloudFront struct {
	client CreateInvalidationAPI
}

func NewCloudFront(client CreateInvalidationAPI) *CloudFront {
	return &CloudFront{client: client}
}

// NewCloudFrontFromConfig builds the SDK client and wraps it.
func NewCloudFrontFromConfig(awsCfg aws.Config) *CloudFront {
	return NewCloudFront(cloudfront.NewFromConfig(awsCfg))
}

func (c *CloudFront) CreateInvalidation(ctx context.Context, b Batch) (Invalidation, error) {
	if b.DistributionID == "" {
		return Invalidation{}, xerrors.New("cdn: distribution id is required")
	}
	if len(b.Paths) == 0 {
		return Invalidation{}, xerrors.New("cdn: at least one path is required")
	}

	ctx, span := otel.Tracer("pagepush/cdn").Start(ctx, "cdn.create_invalidation")
	defer span.End()
	span.SetAttributes(
		attribute.String("cloudfront.distribution_id", b.DistributionID),
		attribute.Int("cloudfront.paths", len(b.Paths)),
		attribute.String("cloudfront.caller_reference", b.CallerReference),
	)

	out, err := c.client.CreateInvalidation(ctx, &cloudfront.CreateInvalidationInput{
		DistributionId: aws.String(b.DistributionID),
		InvalidationBatch: &types.InvalidationBatch{
			CallerReference: aws.String(b.CallerReference),
			Paths: &types.Paths{
				Quantity: aws.Int32(int32(len(b.Paths))),
				Items:    b.Paths,
			},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create invalidation failed")
		return Invalidation{}, xerrors.Wrapf(err, "create invalidation on %s", b.DistributionID)
	}
	if out == nil || out.Invalidation == nil {
		return Invalidation{}, xerrors.New("cdn: empty create invalidation response")
	}

	inv := Invalidation{
		ID:     aws.ToString(out.Invalidation.Id),
		Status: aws.ToString(out.Invalidation.Status),
	}
	span.SetAttributes(attribute.String("cloudfront.invalidation_id", inv.ID))
	return inv, nil
}
