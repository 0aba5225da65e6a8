package middleware

import (
	"net/http"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestLogger writes one structured access log line per request.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("remote", r.RemoteAddr),
				}
				if id := chiMiddleware.GetReqID(r.Context()); id != "" {
					fields = append(fields, zap.String("request_id", id))
				}

				switch {
				case status >= http.StatusInternalServerError:
					log.Error("request", fields...)
				case status >= http.StatusBadRequest:
					log.Warn("request", fields...)
				default:
					log.Info("request", fields...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
