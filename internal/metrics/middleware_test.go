package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
)

// statusWriter

func TestStatusWriter_WriteHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}

	sw.WriteHeader(http.StatusNotFound)

	if sw.status != http.StatusNotFound || rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, underlying = %d, want 404", sw.status, rec.Code)
	}
}

func TestStatusWriter_Write_DefaultsTo200AndCounts(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder()}

	_, _ = sw.Write([]byte("aaa"))
	_, _ = sw.Write([]byte("bbbbb"))

	if sw.status != http.StatusOK {
		t.Fatalf("status = %d, want 200", sw.status)
	}
	if sw.n != 8 {
		t.Fatalf("bytes = %d, want 8", sw.n)
	}
}

// Middleware

// router mounts the middleware outside chi, as httpserver does
func router(m *ServerMetrics) http.Handler {
	r := chi.NewRouter()
	r.Put("/pages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})
	r.Post("/events/s3", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	r.Get("/silent", func(w http.ResponseWriter, r *http.Request) {})
	return m.Middleware(r)
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := New()
	h := router(m)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("PUT", "/pages", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("PUT", "/pages", nil))

	if got := counterValue(t, m, "http_requests_total", map[string]string{
		"method": "PUT", "route": "/pages", "status": "200",
	}); got != 2 {
		t.Fatalf("http_requests_total = %v, want 2", got)
	}

	f := gather(t, m, "http_response_size_bytes")
	if f == nil || f.GetMetric()[0].GetHistogram().GetSampleSum() != 32 {
		t.Fatalf("response size family = %v", f)
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	m := New()
	router(m).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/wp-login.php", nil))

	if got := counterValue(t, m, "http_requests_total", map[string]string{"route": "unmatched", "status": "404"}); got != 1 {
		t.Fatalf("unmatched = %v, want 1", got)
	}
	if got := counterValue(t, m, "http_requests_total", map[string]string{"route": "/wp-login.php"}); got != 0 {
		t.Fatal("raw path leaked into route label")
	}
}

func TestMiddleware_ServerErrorsCounted(t *testing.T) {
	m := New()
	h := router(m)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/events/s3", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("PUT", "/pages", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nope", nil))

	if got := counterValue(t, m, "http_errors_total", nil); got != 1 {
		t.Fatalf("http_errors_total = %v, want 1 (4xx must not count)", got)
	}
	if got := counterValue(t, m, "http_errors_total", map[string]string{"route": "/events/s3"}); got != 1 {
		t.Fatalf("route label missing on error counter")
	}
}

func TestMiddleware_NoWriteIs200(t *testing.T) {
	m := New()
	router(m).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/silent", nil))

	if got := counterValue(t, m, "http_requests_total", map[string]string{"route": "/silent", "status": "200"}); got != 1 {
		t.Fatalf("silent handler = %v, want 1", got)
	}
}

func TestMiddleware_InflightReturnsToZero(t *testing.T) {
	m := New()
	var during float64
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = gather(t, m, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue()
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if during != 1 {
		t.Fatalf("inflight during request = %v, want 1", during)
	}
	if after := gather(t, m, "http_inflight_requests").GetMetric()[0].GetGauge().GetValue(); after != 0 {
		t.Fatalf("inflight after request = %v, want 0", after)
	}
}

// exemplars

func sampledContext() context.Context {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02, 0x03},
		SpanID:     trace.SpanID{0x04},
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestTraceExemplar(t *testing.T) {
	if ex := traceExemplar(context.Background()); ex != nil {
		t.Fatalf("exemplar without span = %v", ex)
	}

	unsampled := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{0x01},
		SpanID:  trace.SpanID{0x01},
	}))
	if ex := traceExemplar(unsampled); ex != nil {
		t.Fatalf("exemplar for unsampled span = %v", ex)
	}

	ex := traceExemplar(sampledContext())
	if ex["trace_id"] != "01020300000000000000000000000000" {
		t.Fatalf("trace_id = %q", ex["trace_id"])
	}
}

func TestMiddleware_AttachesExemplar(t *testing.T) {
	m := New()
	h := router(m)

	req := httptest.NewRequest("PUT", "/pages", nil).WithContext(sampledContext())
	h.ServeHTTP(httptest.NewRecorder(), req)

	f := gather(t, m, "http_request_duration_seconds")
	if f == nil {
		t.Fatal("duration family missing")
	}
	var found bool
	for _, b := range f.GetMetric()[0].GetHistogram().GetBucket() {
		if ex := b.GetExemplar(); ex != nil {
			for _, lp := range ex.GetLabel() {
				if lp.GetName() == "trace_id" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatal("no trace_id exemplar recorded on duration histogram")
	}
}
