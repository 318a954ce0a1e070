package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/pagepush/internal/log"
)

// EnvPrefix is prepended to flag names when reading env vars.
const EnvPrefix = "PAGEPUSH_"

type App struct {
	LogJSON           bool
	LogLevel          string
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int

	HTTPPort        int
	AdminPort       int
	EnablePprof     bool
	EnablePyroscope bool
	PyroServer      string
	PyroTenantID    string
	EnableTracing   bool
	OTLPEndpoint    string
	TraceSample     float64

	// publishing
	SiteDomain   string
	Bucket       string
	KeyPrefix    string
	CacheControl string
	S3Endpoint   string
	S3PathStyle  bool

	// invalidation
	RootDocument         string
	DistributionID       string
	DistributionSSMParam string

	// self-hosted transport
	MaxBodyBytes      int64
	RateLimitRPS      float64
	RateLimitBurst    int
	TrustedHops       int
	EventsPrivateOnly bool
	ShutdownDrain     time.Duration
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or colored text (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")

	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")

	fs.StringVar(&c.SiteDomain, "site-domain", "kingslanding.io", "registrable domain whose https origins may publish")
	fs.StringVar(&c.Bucket, "bucket", "kingslanding.io", "s3 bucket pages are written to")
	fs.StringVar(&c.KeyPrefix, "key-prefix", "pages/", "s3 key prefix for published pages")
	fs.StringVar(&c.CacheControl, "cache-control", "", "Cache-Control stored with each page (empty leaves it unset)")
	fs.StringVar(&c.S3Endpoint, "s3-endpoint", "", "custom s3 endpoint url (minio, localstack)")
	fs.BoolVar(&c.S3PathStyle, "s3-path-style", false, "use path-style s3 addressing")

	fs.StringVar(&c.RootDocument, "root-document", "index.html", "object key also served at /")
	fs.StringVar(&c.DistributionID, "cloudfront-distribution-id", os.Getenv("CLOUDFRONT_DISTRIBUTION_ID"), "CloudFront distribution to invalidate")
	fs.StringVar(&c.DistributionSSMParam, "distribution-ssm-param", "", "ssm parameter holding the distribution id, used when none is set directly")

	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", 5<<20, "max request body size for the self-hosted server")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 10, "per-client requests per second (0 disables)")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 20, "per-client burst size")
	fs.IntVar(&c.TrustedHops, "trusted-hops", 0, "number of trusted proxies in front of the server (0..10)")
	fs.DurationVar(&c.ShutdownDrain, "shutdown-drain", 60*time.Second, "time to fail readiness before closing listeners on shutdown")
	fs.BoolVar(&c.EventsPrivateOnly, "events-private-only", true, "only accept storage notifications from loopback or private peers")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			_ = fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Load registers, parses args, fills from PAGEPUSH_* env and validates.
// Lambda entrypoints pass no args and are configured by env alone.
func Load(name string, args []string, logf func(string, ...any)) (App, error) {
	var c App
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	Register(fs, &c)
	if err := fs.Parse(args); err != nil {
		return App{}, err
	}
	FillFromEnv(fs, EnvPrefix, logf)
	c.normalize()
	if err := Validate(c); err != nil {
		return App{}, err
	}
	return c, nil
}

func (c *App) normalize() {
	c.SiteDomain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.SiteDomain)), ".")
	c.Bucket = strings.TrimSpace(c.Bucket)
	c.DistributionID = strings.TrimSpace(c.DistributionID)
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
// A missing distribution id is not an error here; the invalidator reports it
// per invocation.
func Validate(c App) error {
	var errs []error

	// Ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	// Publishing
	if c.SiteDomain == "" {
		errs = append(errs, fmt.Errorf("SITE_DOMAIN is required"))
	} else if strings.Contains(c.SiteDomain, "://") || strings.ContainsAny(c.SiteDomain, "/: ") {
		errs = append(errs, fmt.Errorf("SITE_DOMAIN must be a bare host name (got %q)", c.SiteDomain))
	}
	if c.Bucket == "" {
		errs = append(errs, fmt.Errorf("BUCKET is required"))
	}
	if strings.HasPrefix(c.KeyPrefix, "/") {
		errs = append(errs, fmt.Errorf("KEY_PREFIX must not start with / (got %q)", c.KeyPrefix))
	}
	if c.S3Endpoint != "" {
		if u, err := url.Parse(c.S3Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("S3_ENDPOINT must be a URL (got %q)", c.S3Endpoint))
		}
	}

	// Invalidation
	if c.RootDocument == "" || strings.HasPrefix(c.RootDocument, "/") {
		errs = append(errs, fmt.Errorf("ROOT_DOCUMENT must be a non-empty key without a leading / (got %q)", c.RootDocument))
	}

	// Transport
	if c.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be positive (got %d)", c.MaxBodyBytes))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be >= 0 (got %g)", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be >= 1 when rate limiting (got %d)", c.RateLimitBurst))
	}
	if c.ShutdownDrain < 0 || c.ShutdownDrain > 10*time.Minute {
		errs = append(errs, fmt.Errorf("SHUTDOWN_DRAIN must be 0..10m (got %s)", c.ShutdownDrain))
	}
	if c.TrustedHops < 0 || c.TrustedHops > 10 {
		errs = append(errs, fmt.Errorf("TRUSTED_HOPS must be 0..10 (got %d)", c.TrustedHops))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
