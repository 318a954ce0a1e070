// Package invalidator turns storage change notifications into one CDN
// invalidation batch.
package invalidator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/keithlinneman/pagepush/internal/apiresp"
	"github.com/keithlinneman/pagepush/internal/cdn"
	"github.com/keithlinneman/pagepush/internal/distid"
	"github.com/keithlinneman/pagepush/internal/fault"
	"github.com/keithlinneman/pagepush/internal/log"
	"github.com/keithlinneman/pagepush/internal/xerrors"
)

// Recorder receives invalidation outcomes, used for prometheus counters.
type Recorder interface {
	InvalidationResult(kind fault.Kind, paths int)
}

type Options struct {
	Logger log.Logger

	CDN          cdn.Invalidator
	Distribution distid.Source

	// RootDocument is the key that also invalidates "/" (default index.html)
	RootDocument string

	// Now is used for the caller reference (default time.Now)
	Now func() time.Time

	Metrics Recorder // optional
}

type Invalidator struct {
	opts Options
}

func New(opts Options) (*Invalidator, error) {
	if opts.CDN == nil {
		return nil, xerrors.New("invalidator: CDN is required")
	}
	if opts.Distribution == nil {
		opts.Distribution = distid.Static("")
	}
	if opts.RootDocument == "" {
		opts.RootDocument = DefaultRootDocument
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Invalidator{opts: opts}, nil
}

// CallerReference is the uniqueness token CloudFront needs per submission.
// Two batches with the same path count in the same second collide, which
// CloudFront treats as a resubmission of the first.
func CallerReference(now time.Time, paths int) string {
	return fmt.Sprintf("s3-event-%d-%d", now.Unix(), paths)
}

type Success struct {
	Message        string   `json:"message"`
	InvalidationID string   `json:"invalidation_id,omitempty"`
	Paths          []string `json:"paths,omitempty"`
}

type Failure struct {
	Error string   `json:"error"`
	Paths []string `json:"paths,omitempty"`
}

// Invalidate processes one batch. Failures come back as 500 responses, never
// as errors.
func (iv *Invalidator) Invalidate(ctx context.Context, batch []Notification) apiresp.Response {
	ctx, span := otel.Tracer("pagepush/invalidator").Start(ctx, "invalidator.invalidate")
	defer span.End()
	span.SetAttributes(attribute.Int("invalidate.records", len(batch)))

	L := log.FromContextOr(ctx, iv.opts.Logger).With("component", "invalidator")

	distID, err := iv.opts.Distribution.DistributionID(ctx)
	if err != nil {
		L.Error(ctx, err, "distribution id unavailable")
		span.SetStatus(codes.Error, "config missing")
		iv.record(fault.ConfigMissing, 0)
		return apiresp.JSON(http.StatusInternalServerError, nil, Failure{Error: "CloudFront distribution ID not configured"})
	}

	var paths []string
	for _, n := range batch {
		key, ok := DecodeKey(n.Key)
		if !ok {
			L.Warn(ctx, "object key has invalid escapes, using it as-is", "key", n.Key)
		}
		derived := PathsFor(key, iv.opts.RootDocument)
		L.Info(ctx, "processing storage event",
			"event_name", n.EventName,
			"event_kind", n.Kind(),
			"bucket", n.Bucket,
			"key", key,
			"paths", derived,
		)
		paths = append(paths, derived...)
	}
	paths = Dedupe(paths)
	span.SetAttributes(attribute.Int("invalidate.paths", len(paths)))

	if len(paths) == 0 {
		L.Info(ctx, "no paths to invalidate")
		iv.record("", 0)
		return apiresp.JSON(http.StatusOK, nil, Success{Message: "No invalidation needed"})
	}

	ref := CallerReference(iv.opts.Now(), len(paths))
	inv, err := iv.opts.CDN.CreateInvalidation(ctx, cdn.Batch{
		DistributionID:  distID,
		Paths:           paths,
		CallerReference: ref,
	})
	if err != nil {
		fe := fault.Wrap(fault.CdnSubmissionFailed, "Failed to create CloudFront invalidation", err)
		L.Error(ctx, fe, "cloudfront invalidation failed", "paths", paths, "caller_reference", ref)
		span.RecordError(err)
		span.SetStatus(codes.Error, "cdn submission failed")
		iv.record(fault.CdnSubmissionFailed, len(paths))
		return apiresp.JSON(http.StatusInternalServerError, nil, Failure{
			Error: fe.Msg + ": " + err.Error(),
			Paths: paths,
		})
	}

	L.Info(ctx, "cloudfront invalidation created",
		"invalidation_id", inv.ID,
		"status", inv.Status,
		"distribution_id", distID,
		"paths", paths,
	)
	iv.record("", len(paths))
	return apiresp.JSON(http.StatusOK, nil, Success{
		Message:        "Invalidation created successfully",
		InvalidationID: inv.ID,
		Paths:          paths,
	})
}

func (iv *Invalidator) record(k fault.Kind, paths int) {
	if iv.opts.Metrics != nil {
		iv.opts.Metrics.InvalidationResult(k, paths)
	}
}
