package httpmw

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/pagepush/internal/log"
)

// stack mirrors httpserver: client ip and logger outside the router,
// access log inside it.
func loggingStack(spy *spyLogger, routes func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.Use(AccessLog())
	routes(r)
	return Chain(r,
		RequestID(""),
		ClientIPWithOptions(ClientIPOptions{}),
		WithLogger(spy),
	)
}

func TestAccessLog_RecordsRequest(t *testing.T) {
	spy := newSpy()
	h := loggingStack(spy, func(r chi.Router) {
		r.Put("/pages", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("hello"))
		})
	})

	req := httptest.NewRequest("PUT", "/pages", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	h.ServeHTTP(httptest.NewRecorder(), req)

	logs := spy.all()
	if len(logs) != 1 {
		t.Fatalf("logs = %+v", logs)
	}
	e := logs[0]
	if e.level != "info" || e.msg != "http request" {
		t.Fatalf("entry = %+v", e)
	}
	checks := map[string]any{
		"http.response.status_code": http.StatusCreated,
		"http.response.body.size":   int64(5),
		"http.route":                "/pages",
		"client.address":            "203.0.113.5",
		"http.request.method":       "PUT",
		"url.scheme":                "http",
	}
	for k, want := range checks {
		if e.kv[k] != want {
			t.Errorf("%s = %#v, want %#v", k, e.kv[k], want)
		}
	}
	if id, _ := e.kv["request_id"].(string); id == "" {
		t.Error("request_id missing")
	}
}

func TestAccessLog_ServerErrorIsWarn(t *testing.T) {
	spy := newSpy()
	h := loggingStack(spy, func(r chi.Router) {
		r.Post("/events/s3", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
	})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/events/s3", nil))

	if logs := spy.all(); len(logs) != 1 || logs[0].level != "warn" {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestAccessLog_SkipsProbesAndLabelsUnmatched(t *testing.T) {
	spy := newSpy()
	h := loggingStack(spy, func(r chi.Router) {
		r.Get("/-/healthy", func(w http.ResponseWriter, r *http.Request) {})
	})

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/-/healthy", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/.env", nil))

	logs := spy.all()
	if len(logs) != 1 {
		t.Fatalf("logs = %+v, want only the unmatched request", logs)
	}
	if logs[0].kv["http.route"] != "unmatched" {
		t.Fatalf("http.route = %v", logs[0].kv["http.route"])
	}
	if logs[0].kv["http.response.status_code"] != http.StatusNotFound {
		t.Fatalf("status = %v", logs[0].kv["http.response.status_code"])
	}
}

func TestScope_TagsHandler(t *testing.T) {
	spy := newSpy()
	h := WithLogger(spy)(Scope("publish")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).Info(r.Context(), "inside")
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("PUT", "/pages", nil))

	logs := spy.all()
	if len(logs) != 1 || logs[0].kv["handler"] != "publish" {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestSchemeFromRequest(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{"plain", func(r *http.Request) {}, "http"},
		{"tls", func(r *http.Request) { r.TLS = &tls.ConnectionState{} }, "https"},
		{"forwarded https", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "HTTPS") }, "https"},
		{"forwarded list", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https, http") }, "https"},
		{"forwarded junk", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "javascript") }, "http"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			tt.setup(r)
			if got := schemeFromRequest(r); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
