// Command invalidator is the AWS Lambda entrypoint that turns S3 object
// notifications into CloudFront invalidations.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/keithlinneman/pagepush/internal/apiresp"
	"github.com/keithlinneman/pagepush/internal/awsevent"
	"github.com/keithlinneman/pagepush/internal/boot"
	"github.com/keithlinneman/pagepush/internal/invalidator"
	"github.com/keithlinneman/pagepush/internal/log"
	"github.com/keithlinneman/pagepush/internal/otelx"
)

func main() {
	ctx := context.Background()

	conf := boot.Config("invalidator", os.Args[1:])
	L := boot.MustLogger(conf, "invalidator")
	ctx = log.WithContext(ctx, L)

	_ = boot.Tracing(ctx, conf, "invalidator")

	awsCfg, err := boot.AWS(ctx)
	if err != nil {
		L.Error(ctx, err, "failed to load AWS config")
		os.Exit(1)
	}

	iv, err := boot.Invalidator(conf, awsCfg, L, nil)
	if err != nil {
		L.Error(ctx, err, "failed to create invalidator")
		os.Exit(1)
	}

	// a missing distribution id is reported per invocation, not at startup
	L.Info(ctx, "invalidator ready",
		"distribution_id", conf.DistributionID,
		"distribution_ssm_param", conf.DistributionSSMParam,
		"root_document", conf.RootDocument,
	)

	lambda.Start(handler(iv, L))
}

type batchInvalidator interface {
	Invalidate(ctx context.Context, batch []invalidator.Notification) apiresp.Response
}

func handler(iv batchInvalidator, base log.Logger) func(context.Context, events.S3Event) (apiresp.Response, error) {
	return func(ctx context.Context, ev events.S3Event) (apiresp.Response, error) {
		L := base
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			L = L.With("aws_request_id", lc.AwsRequestID)
		}
		ctx = log.WithContext(ctx, L)

		resp := iv.Invalidate(ctx, awsevent.Notifications(ev))

		if err := otelx.Flush(ctx); err != nil {
			L.Warn(ctx, "trace flush failed", "error", err)
		}
		return resp, nil
	}
}
