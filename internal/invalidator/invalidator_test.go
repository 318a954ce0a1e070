package invalidator

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/keithlinneman/pagepush/internal/cdn"
	"github.com/keithlinneman/pagepush/internal/distid"
	"github.com/keithlinneman/pagepush/internal/fault"
)

type fakeCDN struct {
	batches []cdn.Batch
	id      string
	err     error
}

func (f *fakeCDN) CreateInvalidation(ctx context.Context, b cdn.Batch) (cdn.Invalidation, error) {
	f.batches = append(f.batches, b)
	if f.err != nil {
		return cdn.Invalidation{}, f.err
	}
	return cdn.Invalidation{ID: f.id, Status: "InProgress"}, nil
}

type spyRecorder struct {
	kinds []fault.Kind
	paths []int
}

func (s *spyRecorder) InvalidationResult(k fault.Kind, paths int) {
	s.kinds = append(s.kinds, k)
	s.paths = append(s.paths, paths)
}

var fixedNow = time.Unix(1700000000, 0)

func newTestInvalidator(t *testing.T, c *fakeCDN, dist distid.Source) (*Invalidator, *spyRecorder) {
	t.Helper()
	rec := &spyRecorder{}
	iv, err := New(Options{
		CDN:          c,
		Distribution: dist,
		Now:          func() time.Time { return fixedNow },
		Metrics:      rec,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return iv, rec
}

func created(keys ...string) []Notification {
	out := make([]Notification, len(keys))
	for i, k := range keys {
		out[i] = Notification{Bucket: "kingslanding.io", Key: k, EventName: "ObjectCreated:Put"}
	}
	return out
}

func TestNew_RequiresCDN(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without CDN")
	}
}

func TestInvalidate_DedupAndRootExpansion(t *testing.T) {
	c := &fakeCDN{id: "I1"}
	iv, rec := newTestInvalidator(t, c, distid.Static("E1"))

	r := iv.Invalidate(context.Background(), created("index.html", "index.html", "about.html"))

	if r.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", r.StatusCode, r.Body)
	}
	if len(c.batches) != 1 {
		t.Fatalf("submissions = %d, want 1", len(c.batches))
	}
	b := c.batches[0]
	want := []string{"/index.html", "/", "/about.html"}
	if strings.Join(b.Paths, ",") != strings.Join(want, ",") {
		t.Fatalf("paths = %v, want %v", b.Paths, want)
	}
	if b.DistributionID != "E1" {
		t.Fatalf("DistributionID = %q", b.DistributionID)
	}
	if b.CallerReference != "s3-event-1700000000-3" {
		t.Fatalf("CallerReference = %q", b.CallerReference)
	}

	var s Success
	if err := r.Decode(&s); err != nil {
		t.Fatal(err)
	}
	if s.InvalidationID != "I1" || s.Message != "Invalidation created successfully" || len(s.Paths) != 3 {
		t.Fatalf("success = %+v", s)
	}
	if rec.kinds[0] != "" || rec.paths[0] != 3 {
		t.Fatalf("recorder = %+v", rec)
	}
}

func TestInvalidate_DecodesKeys(t *testing.T) {
	c := &fakeCDN{id: "I1"}
	iv, _ := newTestInvalidator(t, c, distid.Static("E1"))

	iv.Invalidate(context.Background(), created("pages/my+page.html", "pages/caf%C3%A9.html", "pages/100%.html"))

	got := c.batches[0].Paths
	want := []string{"/pages/my page.html", "/pages/café.html", "/pages/100%.html"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("paths = %q, want %q", got, want)
	}
}

func TestInvalidate_NestedIndexIsNotRoot(t *testing.T) {
	c := &fakeCDN{id: "I1"}
	iv, _ := newTestInvalidator(t, c, distid.Static("E1"))

	iv.Invalidate(context.Background(), created("pages/index.html"))
	if got := c.batches[0].Paths; len(got) != 1 || got[0] != "/pages/index.html" {
		t.Fatalf("paths = %v", got)
	}
}

func TestInvalidate_EmptyBatch(t *testing.T) {
	c := &fakeCDN{}
	iv, _ := newTestInvalidator(t, c, distid.Static("E1"))

	for _, batch := range [][]Notification{nil, {}} {
		r := iv.Invalidate(context.Background(), batch)
		if r.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", r.StatusCode)
		}
		var s Success
		_ = r.Decode(&s)
		if s.Message != "No invalidation needed" {
			t.Fatalf("message = %q", s.Message)
		}
	}
	if len(c.batches) != 0 {
		t.Fatal("CDN contacted for empty batch")
	}
}

func TestInvalidate_MissingDistribution(t *testing.T) {
	c := &fakeCDN{}
	iv, rec := newTestInvalidator(t, c, nil)

	r := iv.Invalidate(context.Background(), created("index.html"))

	if r.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", r.StatusCode)
	}
	var f Failure
	_ = r.Decode(&f)
	if f.Error != "CloudFront distribution ID not configured" {
		t.Fatalf("error = %q", f.Error)
	}
	if len(c.batches) != 0 {
		t.Fatal("CDN contacted without distribution id")
	}
	if rec.kinds[0] != fault.ConfigMissing {
		t.Fatalf("recorded kind = %q", rec.kinds[0])
	}
}

func TestInvalidate_CDNFailure(t *testing.T) {
	c := &fakeCDN{err: errors.New("TooManyInvalidationsInProgress")}
	iv, rec := newTestInvalidator(t, c, distid.Static("E1"))

	r := iv.Invalidate(context.Background(), created("a.html", "b.html"))

	if r.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", r.StatusCode)
	}
	var f Failure
	if err := r.Decode(&f); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(f.Error, "Failed to create CloudFront invalidation: ") || !strings.Contains(f.Error, "TooManyInvalidationsInProgress") {
		t.Fatalf("error = %q", f.Error)
	}
	if strings.Join(f.Paths, ",") != "/a.html,/b.html" {
		t.Fatalf("paths = %v", f.Paths)
	}
	if len(c.batches) != 1 {
		t.Fatalf("submissions = %d, want exactly 1 (no retries)", len(c.batches))
	}
	if rec.kinds[0] != fault.CdnSubmissionFailed {
		t.Fatalf("recorded kind = %q", rec.kinds[0])
	}
}

func TestInvalidate_CustomRootDocument(t *testing.T) {
	c := &fakeCDN{id: "I"}
	iv, err := New(Options{CDN: c, Distribution: distid.Static("E1"), RootDocument: "home.html"})
	if err != nil {
		t.Fatal(err)
	}
	iv.Invalidate(context.Background(), created("home.html", "index.html"))
	want := "/home.html,/,/index.html"
	if got := strings.Join(c.batches[0].Paths, ","); got != want {
		t.Fatalf("paths = %s, want %s", got, want)
	}
}
