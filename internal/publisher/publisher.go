// Package publisher accepts page content over an HTTP-shaped event, makes
// sure it carries the site footer, and writes it to the object store.
//
// Steps run in a fixed order: origin gate, preflight, body parse, field
// validation, footer enrichment, store write. Nothing after a failed step
// runs, so a rejected request never reaches the store.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/keithlinneman/pagepush/internal/apiresp"
	"github.com/keithlinneman/pagepush/internal/cors"
	"github.com/keithlinneman/pagepush/internal/fault"
	"github.com/keithlinneman/pagepush/internal/footer"
	"github.com/keithlinneman/pagepush/internal/log"
	"github.com/keithlinneman/pagepush/internal/objstore"
	"github.com/keithlinneman/pagepush/internal/xerrors"
)

const DefaultKeyPrefix = "pages/"

// Recorder receives publish outcomes, used for prometheus counters.
type Recorder interface {
	PagePublished(footerAdded bool)
	PublishRejected(kind fault.Kind)
}

type Options struct {
	Logger log.Logger

	// Store receives exactly one write per successful publish
	Store objstore.Writer

	Bucket       string
	KeyPrefix    string // defaults to DefaultKeyPrefix
	CacheControl string // optional Cache-Control on the stored page

	CORS   cors.Policy
	Footer footer.Enricher // defaults to footer.Default

	Metrics Recorder // optional
}

type Publisher struct {
	opts Options
}

func New(opts Options) (*Publisher, error) {
	if opts.Store == nil {
		return nil, xerrors.New("publisher: Store is required")
	}
	if opts.Bucket == "" {
		return nil, xerrors.New("publisher: Bucket is required")
	}
	if opts.CORS.SiteDomain == "" {
		return nil, xerrors.New("publisher: CORS site domain is required")
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	if opts.Footer == (footer.Enricher{}) {
		opts.Footer = footer.Default
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Publisher{opts: opts}, nil
}

// Key is the object key a filename is stored under.
func (p *Publisher) Key(filename string) string { return p.opts.KeyPrefix + filename }

// Success is the 200 body.
type Success struct {
	Message     string `json:"message"`
	Filename    string `json:"filename"`
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	FooterAdded bool   `json:"footer_added"`
}

// Failure is the body of every non-2xx response.
type Failure struct {
	Message string     `json:"message"`
	Error   fault.Kind `json:"error"`
	Missing []string   `json:"missing,omitempty"`
}

// Publish runs one request to completion. It never returns an error: every
// failure is already translated into the response.
func (p *Publisher) Publish(ctx context.Context, req Request) apiresp.Response {
	ctx, span := otel.Tracer("pagepush/publisher").Start(ctx, "publisher.publish")
	defer span.End()

	L := log.FromContextOr(ctx, p.opts.Logger).With("component", "publisher")

	origin := cors.OriginHeader(req.Headers)
	allowed, ok := p.opts.CORS.Allow(origin)
	if !ok {
		L.Warn(ctx, "origin rejected", "origin", origin)
		p.rejected(fault.OriginRejected)
		span.SetAttributes(attribute.Bool("publish.origin_allowed", false))
		// no CORS headers: the browser must not be able to read this
		return apiresp.JSON(http.StatusForbidden, nil, apiresp.Message{Message: "Forbidden: Origin not allowed"})
	}
	headers := cors.Headers(allowed)

	if strings.EqualFold(req.HTTPMethod, http.MethodOptions) {
		return apiresp.Empty(http.StatusNoContent, headers)
	}

	pr, err := parseBody(req.Body)
	if err != nil {
		return p.fail(ctx, L, headers, err)
	}
	span.SetAttributes(attribute.String("publish.filename", pr.Filename))

	html, decision := p.opts.Footer.Enrich(pr.HTML)
	switch decision {
	case footer.NoFooter:
		L.Info(ctx, "no footer found, adding standard footer", "filename", pr.Filename)
	case footer.Unbranded:
		L.Info(ctx, "last footer lacks marker, adding standard footer", "filename", pr.Filename)
	case footer.Branded:
		L.Info(ctx, "last footer already carries marker, skipping", "filename", pr.Filename)
	}
	added := decision.Added()
	span.SetAttributes(attribute.Bool("publish.footer_added", added))

	key := p.Key(pr.Filename)
	err = p.opts.Store.Put(ctx, objstore.Object{
		Bucket:       p.opts.Bucket,
		Key:          key,
		Body:         []byte(html),
		ContentType:  objstore.ContentTypeHTML,
		CacheControl: p.opts.CacheControl,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store write failed")
		return p.fail(ctx, L, headers, fault.Wrap(fault.StoreWriteFailed, "Upload failed", err))
	}

	if p.opts.Metrics != nil {
		p.opts.Metrics.PagePublished(added)
	}
	L.Info(ctx, "page published",
		"filename", pr.Filename,
		"bucket", p.opts.Bucket,
		"key", key,
		"footer_added", added,
		"bytes", len(html),
	)

	return apiresp.JSON(http.StatusOK, headers, Success{
		Message:     fmt.Sprintf("File '%s' uploaded successfully to bucket '%s' with key '%s'.", pr.Filename, p.opts.Bucket, key),
		Filename:    pr.Filename,
		Bucket:      p.opts.Bucket,
		Key:         key,
		FooterAdded: added,
	})
}

func (p *Publisher) fail(ctx context.Context, L log.Logger, headers map[string]string, err error) apiresp.Response {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		fe = fault.Wrap(fault.StoreWriteFailed, "Upload failed", err)
	}
	p.rejected(fe.Kind)

	body := Failure{Error: fe.Kind}
	switch fe.Kind {
	case fault.MissingField:
		body.Message = missingMessage(fe.Fields)
		body.Missing = fe.Fields
		L.Warn(ctx, "page request missing fields", "missing", fe.Fields)
	case fault.MalformedInput:
		body.Message = fe.Msg
		L.Warn(ctx, "malformed page request", "error", err)
	default:
		// surface the underlying fault text so the caller can act on it
		body.Message = fe.Msg
		if fe.Err != nil {
			body.Message += ": " + fe.Err.Error()
		}
		L.Error(ctx, err, "page publish failed")
	}
	return apiresp.JSON(fe.Status(), headers, body)
}

func (p *Publisher) rejected(k fault.Kind) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.PublishRejected(k)
	}
}
