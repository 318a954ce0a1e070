// Command server is the self-hosted front door: page publishing and S3
// notification handling over HTTP, plus an ops listener for metrics, probes
// and pprof.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/pagepush/internal/boot"
	"github.com/keithlinneman/pagepush/internal/health"
	"github.com/keithlinneman/pagepush/internal/httpmw"
	"github.com/keithlinneman/pagepush/internal/httpserver"
	"github.com/keithlinneman/pagepush/internal/log"
	"github.com/keithlinneman/pagepush/internal/metrics"
	"github.com/keithlinneman/pagepush/internal/objstore"
	"github.com/keithlinneman/pagepush/internal/opshttp"
	"github.com/keithlinneman/pagepush/internal/pagehttp"
	"github.com/keithlinneman/pagepush/internal/prof"
	"github.com/keithlinneman/pagepush/internal/ratelimit"
	v "github.com/keithlinneman/pagepush/internal/version"
	"github.com/keithlinneman/pagepush/internal/xerrors"
)

func main() {
	vi := v.Get()

	if len(os.Args) > 1 && (os.Args[1] == "-V" || os.Args[1] == "--version") {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf := boot.Config("server", os.Args[1:])

	L := boot.MustLogger(conf, "server")
	// no-op for slog/stderr, kept so a buffered backend would flush on exit
	defer func() { _ = L.Sync() }()
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"site_domain", conf.SiteDomain,
		"bucket", conf.Bucket,
		"key_prefix", conf.KeyPrefix,
		"s3_endpoint", conf.S3Endpoint,
		"distribution_id", conf.DistributionID,
		"distribution_ssm_param", conf.DistributionSSMParam,
		"rate_limit_rps", conf.RateLimitRPS,
		"trusted_hops", conf.TrustedHops,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion("server", vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer stopProf()

	shutdownOTEL := boot.Tracing(ctx, conf, "server")
	defer func() { _ = shutdownOTEL(context.Background()) }()

	awsCfg, err := boot.AWS(ctx)
	if err != nil {
		L.Error(ctx, err, "failed to load AWS config")
		os.Exit(1)
	}
	s3Client := boot.S3(conf, awsCfg)

	pub, err := boot.Publisher(conf, s3Client, L, m, m.ObserveStoreWrite)
	if err != nil {
		L.Error(ctx, err, "failed to create publisher")
		os.Exit(1)
	}
	iv, err := boot.Invalidator(conf, awsCfg, L, m)
	if err != nil {
		L.Error(ctx, err, "failed to create invalidator")
		os.Exit(1)
	}

	// setup toggle for server shutdown
	var gate health.ShutdownGate

	// ready while not draining and the page bucket answers
	readiness := health.All(
		gate.Probe(),
		objstore.NewBucketProbe(s3Client, conf.Bucket),
	)

	var rateLimitMW func(http.Handler) http.Handler
	if conf.RateLimitRPS > 0 {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
			// preflights are free, browsers send one before every publish
			ratelimit.WithSkip(func(r *http.Request) bool { return r.Method == http.MethodOptions }),
			ratelimit.WithOnDenied(func(ip string) {
				m.IncRateLimitDenied()
			}),
			// only log the first time an ip is denied each time it is cleaned from the bucket
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "rate limit triggered", "ip", ip)
			}),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
			}),
		)
		rateLimitMW = limiter.Middleware
	}

	var eventsGuard func(http.Handler) http.Handler
	if conf.EventsPrivateOnly {
		eventsGuard = opshttp.RequireNonPublicNetwork
	}

	appHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Logger:       L,
		Port:         conf.HTTPPort,
		MaxBodyBytes: conf.MaxBodyBytes,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  rateLimitMW,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedHops},
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		Routes: pagehttp.Routes(pagehttp.Options{
			Publisher:   pub,
			Invalidator: iv,
			EventsGuard: eventsGuard,
		}),
	})
	if err != nil {
		L.Error(ctx, err, "failed to start app http listener")
		os.Exit(1)
	}
	defer func() { _ = appHTTPStop(context.Background()) }()

	// ops listener is never exposed publicly; pprof additionally rejects public peers
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Debug(ctx, "systemd readiness not sent", "reason", err.Error())
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()
	stop()

	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	// fail readiness so the load balancer stops sending new requests
	gate.Set("draining")
	L.Info(bg, "shutdown gate closed, draining", "drain", conf.ShutdownDrain.String())

	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(conf.ShutdownDrain):
		L.Info(bg, "drain period complete")
	case <-forceCh:
		L.Warn(bg, "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	shutdownCtx, cancel := context.WithTimeout(bg, 10*time.Second)
	defer cancel()

	if err := appHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "app http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}
	stopProf()

	L.Info(bg, "shutdown complete")
}

// errNoNotifySocket means the process was not started by systemd with
// Type=notify.
var errNoNotifySocket = xerrors.New("NOTIFY_SOCKET not set")

func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return errNoNotifySocket
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return xerrors.Wrap(err, "systemd notify: dial")
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return xerrors.Wrap(err, "systemd notify: write")
	}
	return nil
}
