// Package pagehttp serves the publisher and invalidator over plain HTTP for
// the self-hosted server. Requests are mapped onto the same inputs the
// Lambda front doors build, and component responses are written verbatim.
package pagehttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/pagepush/internal/apiresp"
	"github.com/keithlinneman/pagepush/internal/awsevent"
	"github.com/keithlinneman/pagepush/internal/httpmw"
	"github.com/keithlinneman/pagepush/internal/invalidator"
	"github.com/keithlinneman/pagepush/internal/log"
	"github.com/keithlinneman/pagepush/internal/publisher"
)

type Publisher interface {
	Publish(ctx context.Context, req publisher.Request) apiresp.Response
}

type Invalidator interface {
	Invalidate(ctx context.Context, batch []invalidator.Notification) apiresp.Response
}

type Options struct {
	Publisher   Publisher
	Invalidator Invalidator // nil leaves /events/s3 unmounted

	// EventsGuard wraps the notification endpoint, e.g.
	// opshttp.RequireNonPublicNetwork
	EventsGuard func(http.Handler) http.Handler
}

// Routes returns a mount function for httpserver.Options.Routes.
func Routes(opts Options) func(chi.Router) {
	return func(r chi.Router) {
		if opts.Publisher != nil {
			h := publishHandler(opts.Publisher)
			r.Group(func(r chi.Router) {
				r.Use(httpmw.Scope("publish"))
				r.Options("/pages", h)
				r.Put("/pages", h)
				r.Post("/pages", h)
			})
		}
		if opts.Invalidator != nil {
			r.Group(func(r chi.Router) {
				if opts.EventsGuard != nil {
					r.Use(opts.EventsGuard)
				}
				r.Use(httpmw.Scope("invalidate"))
				r.Post("/events/s3", eventsHandler(opts.Invalidator))
			})
		}
	}
}

func publishHandler(p Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		writeResponse(w, p.Publish(r.Context(), publisher.Request{
			HTTPMethod: r.Method,
			Headers:    flattenHeaders(r.Header),
			Body:       string(body),
		}))
	}
}

func eventsHandler(iv Invalidator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		var ev events.S3Event
		if err := json.Unmarshal(body, &ev); err != nil {
			log.FromContext(r.Context()).Warn(r.Context(), "undecodable storage notification", "error", err)
			writeResponse(w, apiresp.JSON(http.StatusBadRequest, nil, apiresp.ErrorBody{Error: "Invalid S3 event"}))
			return
		}
		writeResponse(w, iv.Invalidate(r.Context(), awsevent.Notifications(ev)))
	}
}

// readBody writes the error response itself when it returns false.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Body == nil {
		return nil, true
	}
	body, err := io.ReadAll(r.Body)
	if err == nil {
		return body, true
	}

	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeResponse(w, apiresp.JSON(http.StatusRequestEntityTooLarge, nil, apiresp.ErrorBody{Error: "Request body too large"}))
		return nil, false
	}
	log.FromContext(r.Context()).Warn(r.Context(), "reading request body failed", "error", err)
	writeResponse(w, apiresp.JSON(http.StatusBadRequest, nil, apiresp.ErrorBody{Error: "Could not read request body"}))
	return nil, false
}

// flattenHeaders keeps the first value of each header under its canonical
// name, the shape API Gateway delivers.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

func writeResponse(w http.ResponseWriter, resp apiresp.Response) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = io.WriteString(w, resp.Body)
	}
}
