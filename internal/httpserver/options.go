package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/pagepush/internal/health"
	"github.com/keithlinneman/pagepush/internal/httpmw"
	"github.com/keithlinneman/pagepush/internal/log"
)

// DefaultMaxBodyBytes bounds request bodies when Options leaves it unset.
// Pages are single HTML documents, 5 MiB is generous.
const DefaultMaxBodyBytes = 5 << 20

type Options struct {
	Logger       log.Logger
	Port         int
	MaxBodyBytes int64

	UseRecoverMW bool
	OnPanic      func() // e.g. ServerMetrics.IncHttpPanic

	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions

	Health    health.Probe
	Readiness health.Probe

	// Routes mounts the application endpoints on the router
	Routes func(chi.Router)
}
