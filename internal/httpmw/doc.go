// Package httpmw provides HTTP middleware for the self-hosted pagepush server.
//
// httpserver.NewHandler composes them outermost first: security headers,
// request ID, client IP extraction, rate limiting, OTEL tracing, metrics,
// structured logging, and the chi router.
//
// Caller-supplied data (bodies, user-agent, arbitrary headers) is kept out of
// logs. The request id header is only propagated when it is short printable
// ASCII.
package httpmw
