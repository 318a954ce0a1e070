package httpmw

import (
	"net/http"
	"runtime/debug"

	"github.com/keithlinneman/pagepush/internal/log"
	"github.com/keithlinneman/pagepush/internal/xerrors"
)

// Recover turns a handler panic into a JSON 500 and logs it with the stack.
// onPanic, if set, runs after logging (metrics counter).
func Recover(base log.Logger, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// let net/http abort the connection as usual
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				ctx := r.Context()
				err, ok := rec.(error)
				if !ok {
					err = xerrors.Newf("panic: %v", rec)
				} else {
					err = xerrors.Wrap(err, "panic")
				}

				L := log.FromContextOr(ctx, base).With(
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"request_id", RequestIDFromContext(ctx),
				)
				L.Error(ctx, err, "httpserver panic recovered", "panic_stack", string(debug.Stack()))

				if onPanic != nil {
					onPanic()
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"Internal server error"}`))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
