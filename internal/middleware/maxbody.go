package middleware

import "net/http"

// MaxBodySize rejects request bodies larger than n bytes. The handler's
// Decode fails once the limit is crossed; MaxBytesReader also closes the
// connection so an oversized upload can't be streamed to completion.
func MaxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
