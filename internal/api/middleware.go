package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/npezzotti/retro-board/internal/config"
	"go.uber.org/zap"
)

func (s *BoardApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Error("panic", zap.Error(panicError))
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// logRequests writes one access log line per request. The wrapped writer keeps
// http.Hijacker so websocket upgrades pass through.
func (s *BoardApp) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", m.Code),
			zap.Int64("bytes", m.Written),
			zap.Duration("duration", m.Duration),
		)
	})
}

// withTimeout bounds a query or mutation handler by cfg.QueryTimeout. It must
// not wrap the websocket endpoint since http.TimeoutHandler cannot hijack.
func (s *BoardApp) withTimeout(h http.Handler, cfg *config.Config) http.Handler {
	if cfg.QueryTimeout <= 0 {
		return h
	}

	errResp := NewServiceUnavailableError(nil)
	errResp.Message = "request timed out"
	body, _ := json.Marshal(errResp)
	return http.TimeoutHandler(h, cfg.QueryTimeout, string(body))
}
