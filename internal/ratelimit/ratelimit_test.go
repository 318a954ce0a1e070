package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keithlinneman/pagepush/internal/httpmw"
)

// fakeClock lets tests move time for refill and eviction.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, opts ...Option) (*IPLimiter, *fakeClock) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	opts = append([]Option{WithTTL(time.Hour), func(l *IPLimiter) { l.now = clk.Now }}, opts...)
	return New(ctx, opts...), clk
}

func TestAllow_BurstThenRefill(t *testing.T) {
	l, clk := newTestLimiter(t, WithRate(1, 3))

	for i := 0; i < 3; i++ {
		if !l.allow("1.1.1.1") {
			t.Fatalf("request %d within burst denied", i)
		}
	}
	if l.allow("1.1.1.1") {
		t.Fatal("request past burst allowed")
	}
	if !l.allow("2.2.2.2") {
		t.Fatal("separate IPs must have separate buckets")
	}

	clk.Advance(time.Second)
	if !l.allow("1.1.1.1") {
		t.Fatal("token should refill after 1s")
	}
}

func TestDenialHooks(t *testing.T) {
	var first, every []string
	l, _ := newTestLimiter(t,
		WithRate(0.001, 1),
		WithOnFirstDenied(func(ip string) { first = append(first, ip) }),
		WithOnDenied(func(ip string) { every = append(every, ip) }),
	)

	for i := 0; i < 4; i++ {
		l.allow("a")
	}
	l.allow("b")
	l.allow("b")

	if len(first) != 2 || first[0] != "a" || first[1] != "b" {
		t.Fatalf("first-denied = %v, want once per IP", first)
	}
	if len(every) != 4 {
		t.Fatalf("denied = %v, want 4", every)
	}
}

func TestEvict(t *testing.T) {
	var firsts int
	l, clk := newTestLimiter(t, WithRate(0.001, 1), WithTTL(time.Minute),
		WithOnFirstDenied(func(string) { firsts++ }))

	l.allow("stale")
	l.allow("stale")
	clk.Advance(30 * time.Second)
	l.allow("fresh")

	clk.Advance(45 * time.Second)
	l.evict(clk.Now())

	l.mu.Lock()
	_, staleLeft := l.visitors["stale"]
	_, freshLeft := l.visitors["fresh"]
	l.mu.Unlock()
	if staleLeft || !freshLeft {
		t.Fatalf("stale kept=%v fresh kept=%v", staleLeft, freshLeft)
	}

	// an evicted visitor starts over with a full bucket and a fresh log
	if !l.allow("stale") {
		t.Fatal("evicted visitor should get a new bucket")
	}
	l.allow("stale")
	if firsts != 2 {
		t.Fatalf("first-denied calls = %d, want 2", firsts)
	}
}

func TestMaxVisitors(t *testing.T) {
	var capacity int
	l, clk := newTestLimiter(t, WithRate(100, 100), WithMaxVisitors(2), WithTTL(time.Minute),
		WithOnCapacity(func() { capacity++ }))

	if !l.allow("a") || !l.allow("b") {
		t.Fatal("IPs under the cap should be allowed")
	}
	if l.allow("c") || l.allow("d") {
		t.Fatal("new IPs at capacity should be denied")
	}
	if !l.allow("a") {
		t.Fatal("known IP should still be served at capacity")
	}
	if capacity != 1 {
		t.Fatalf("OnCapacity calls = %d, want 1", capacity)
	}

	clk.Advance(2 * time.Minute)
	l.evict(clk.Now())
	if !l.allow("c") {
		t.Fatal("eviction should free capacity")
	}
}

func TestMaxVisitors_ZeroDisablesCap(t *testing.T) {
	l, _ := newTestLimiter(t, WithMaxVisitors(0))
	for i := 0; i < 100; i++ {
		if !l.allow(string(rune('a'+i%26)) + string(rune('0'+i/26))) {
			t.Fatalf("visitor %d denied without a cap", i)
		}
	}
}

func serveFrom(h http.Handler, method, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/pages", http.NoBody)
	req = req.WithContext(httpmw.WithClientIP(req.Context(), ip))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	var reached atomic.Int32
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	l, _ := newTestLimiter(t, WithRate(0.001, 1),
		WithSkip(func(r *http.Request) bool { return r.Method == http.MethodOptions }))
	h := l.Middleware(next)

	if rec := serveFrom(h, http.MethodPut, "9.9.9.9"); rec.Code != http.StatusOK {
		t.Fatalf("first request = %d", rec.Code)
	}
	rec := serveFrom(h, http.MethodPut, "9.9.9.9")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "30" || rec.Body.String() != `{"error":"Too many requests"}` {
		t.Fatalf("429 response = %v %q", rec.Header(), rec.Body.String())
	}
	for i := 0; i < 5; i++ {
		if rec := serveFrom(h, http.MethodOptions, "9.9.9.9"); rec.Code != http.StatusOK {
			t.Fatalf("preflight %d = %d, want skipped", i, rec.Code)
		}
	}
	if got := reached.Load(); got != 6 {
		t.Fatalf("handler reached %d times, want 6", got)
	}
}

func TestConcurrentAllow(t *testing.T) {
	l, _ := newTestLimiter(t, WithRate(1000, 1000), WithMaxVisitors(10))
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.allow(string(rune('a' + i)))
			}
		}(i)
	}
	wg.Wait()
	l.mu.Lock()
	n := len(l.visitors)
	l.mu.Unlock()
	if n > 10 {
		t.Fatalf("visitors = %d, exceeds cap", n)
	}
}
