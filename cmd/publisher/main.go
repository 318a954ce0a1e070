// Command publisher is the AWS Lambda entrypoint for page publishing behind
// an API Gateway proxy integration.
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
	"github.com/keithlinneman/pagepush/internal/log"
	"github.com/keithlinneman/pagepush/internal/otelx"
	"github.com/keithlinneman/pagepush/internal/publisher"
)

func main() {
	ctx := context.Background()

	conf := boot.Config("publisher", os.Args[1:])
	L := boot.MustLogger(conf, "publisher")
	ctx = log.WithContext(ctx, L)

	// lambda freezes between invocations, spans are flushed per invocation
	// and the provider is never shut down
	_ = boot.Tracing(ctx, conf, "publisher")

	awsCfg, err := boot.AWS(ctx)
	if err != nil {
		L.Error(ctx, err, "failed to load AWS config")
		os.Exit(1)
	}

	// metrics are not scraped from lambda, no recorder
	pub, err := boot.Publisher(conf, boot.S3(conf, awsCfg), L, nil, nil)
	if err != nil {
		L.Error(ctx, err, "failed to create publisher")
		os.Exit(1)
	}

	L.Info(ctx, "publisher ready",
		"bucket", conf.Bucket,
		"key_prefix", conf.KeyPrefix,
		"site_domain", conf.SiteDomain,
		"s3_endpoint", conf.S3Endpoint,
	)

	lambda.Start(handler(pub, L))
}

type pagePublisher interface {
	Publish(ctx context.Context, req publisher.Request) apiresp.Response
}

// handler decodes the body raw so an object body from a direct invoke is
// answered like any other request instead of failing in the runtime.
func handler(pub pagePublisher, base log.Logger) func(context.Context, awsevent.ProxyRequest) (events.APIGatewayProxyResponse, error) {
	return func(ctx context.Context, ev awsevent.ProxyRequest) (events.APIGatewayProxyResponse, error) {
		L := base
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			L = L.With("aws_request_id", lc.AwsRequestID)
		}
		if id := ev.RequestContext.RequestID; id != "" {
			L = L.With("request_id", id)
		}
		ctx = log.WithContext(ctx, L)

		resp := awsevent.ProxyResponse(pub.Publish(ctx, awsevent.PublishRequest(ev.Event())))

		if err := otelx.Flush(ctx); err != nil {
			L.Warn(ctx, "trace flush failed", "error", err)
		}
		// failures are already in the response, the runtime never sees an error
		return resp, nil
	}
}
