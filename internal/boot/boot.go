// Package boot builds the logger, tracing, AWS clients and components from
// cfg.App. The lambda entrypoints and the self-hosted server share it so
// every binary wires the same stack the same way.
package boot

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/pagepush/internal/cdn"
	"github.com/keithlinneman/pagepush/internal/cfg"
	"github.com/keithlinneman/pagepush/internal/cors"
	"github.com/keithlinneman/pagepush/internal/distid"
	"github.com/keithlinneman/pagepush/internal/invalidator"
	"github.com/keithlinneman/pagepush/internal/log"
	"github.com/keithlinneman/pagepush/internal/objstore"
	"github.com/keithlinneman/pagepush/internal/otelx"
	"github.com/keithlinneman/pagepush/internal/publisher"
	"github.com/keithlinneman/pagepush/internal/version"
	"github.com/keithlinneman/pagepush/internal/xerrors"
)

// Config loads cfg.App for a binary, exiting with status 2 on bad config.
// Config warnings go to stderr since no logger exists yet.
func Config(name string, args []string) cfg.App {
	conf, err := cfg.Load(name, args, func(format string, a ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", a...)
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(2)
	}
	return conf
}

// Logger builds the process logger tagged with component and routes the
// standard library logger (used by the aws sdk and net/http) through it.
func Logger(conf cfg.App, component string) (log.Logger, error) {
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, xerrors.Wrapf(err, "log level %q", conf.LogLevel)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		return nil, xerrors.Wrapf(err, "stacktrace level %q", conf.StacktraceLevel)
	}
	vi := version.Get()
	lg, err := log.New(log.Options{
		App:               version.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Component:         component,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JSONFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
	if err != nil {
		return nil, err
	}
	log.RedirectStdLog(lg)
	return lg, nil
}

// MustLogger is Logger for main functions.
func MustLogger(conf cfg.App, component string) log.Logger {
	lg, err := Logger(conf, component)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	return lg
}

// Tracing initializes otel. A failed exporter is logged and tracing stays
// off; it never stops the process.
func Tracing(ctx context.Context, conf cfg.App, component string) func(context.Context) error {
	shutdown, err := otelx.Init(ctx, otelx.Options{
		Enabled: conf.EnableTracing,
		// collector runs as a local sidecar or lambda extension
		Insecure:  true,
		Endpoint:  conf.OTLPEndpoint,
		Sample:    conf.TraceSample,
		Service:   version.AppName,
		Component: component,
		Version:   version.Get().Version,
	})
	if err != nil {
		log.FromContext(ctx).Error(ctx, err, "otel init failed, tracing disabled", "otlp_endpoint", conf.OTLPEndpoint)
	}
	if shutdown == nil {
		shutdown = func(context.Context) error { return nil }
	}
	return shutdown
}

// AWS loads the default credential chain with a bounded timeout.
func AWS(ctx context.Context) (aws.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, xerrors.Wrap(err, "load aws config")
	}
	return awsCfg, nil
}

// S3 builds the client for the page bucket, honoring a custom endpoint.
func S3(conf cfg.App, awsCfg aws.Config) *s3.Client {
	return objstore.NewS3Client(awsCfg, objstore.Options{
		Endpoint:     conf.S3Endpoint,
		UsePathStyle: conf.S3PathStyle,
	})
}

// Publisher wires the page publisher onto client. rec and observe may be nil.
func Publisher(conf cfg.App, client objstore.PutObjectAPI, L log.Logger, rec publisher.Recorder, observe func(time.Duration, error)) (*publisher.Publisher, error) {
	w := objstore.NewS3Writer(client, L)
	if observe != nil {
		w = w.WithObserver(observe)
	}
	return publisher.New(publisher.Options{
		Logger:       L,
		Store:        w,
		Bucket:       conf.Bucket,
		KeyPrefix:    conf.KeyPrefix,
		CacheControl: conf.CacheControl,
		CORS:         cors.New(conf.SiteDomain),
		Metrics:      rec,
	})
}

// Distribution prefers the configured id and falls back to the SSM
// parameter when one is named.
func Distribution(conf cfg.App, awsCfg aws.Config) distid.Source {
	src := distid.FirstOf{distid.Static(conf.DistributionID)}
	if conf.DistributionSSMParam != "" {
		src = append(src, distid.NewSSM(ssm.NewFromConfig(awsCfg), conf.DistributionSSMParam))
	}
	return src
}

// Invalidator wires the cache invalidator onto CloudFront. rec may be nil.
func Invalidator(conf cfg.App, awsCfg aws.Config, L log.Logger, rec invalidator.Recorder) (*invalidator.Invalidator, error) {
	return invalidator.New(invalidator.Options{
		Logger:       L,
		CDN:          cdn.NewCloudFrontFromConfig(awsCfg),
		Distribution: Distribution(conf, awsCfg),
		RootDocument: conf.RootDocument,
		Metrics:      rec,
	})
}
