package middleware

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// responseRecorder remembers what the handler sent so the access log can
// report it. It forwards Flush and Hijack so websocket upgrades still work.
type responseRecorder struct {
	http.ResponseWriter
	status   int
	bytes    int
	upgraded bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("responseRecorder: %T cannot be hijacked", r.ResponseWriter)
	}
	r.upgraded = true
	return h.Hijack()
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id the Logging middleware assigned to the request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type accessLog struct {
	Level      string  `json:"level"`
	Time       string  `json:"time"`
	RequestID  string  `json:"request_id"`
	Method     string  `json:"method"`
	URI        string  `json:"uri"`
	Status     int     `json:"status"`
	Bytes      int     `json:"bytes"`
	DurationMS float64 `json:"duration_ms"`
	ClientIP   string  `json:"client_ip"`
	UserAgent  string  `json:"user_agent,omitempty"`
	Upgraded   bool    `json:"upgraded,omitempty"`
}

func levelFor(status int) string {
	switch {
	case status >= 500:
		return "error"
	case status >= 400:
		return "warn"
	default:
		return "info"
	}
}

// Logging tags each request with an X-Request-ID (kept if the caller sent
// one) and writes a JSON access line once the handler returns.
func Logging() Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)
			r = r.WithContext(withRequestID(r.Context(), reqID))

			rec := &responseRecorder{ResponseWriter: w}
			next(rec, r)

			status := rec.status
			switch {
			case rec.upgraded:
				status = http.StatusSwitchingProtocols
			case status == 0:
				status = http.StatusOK
			}

			line, err := json.Marshal(accessLog{
				Level:      levelFor(status),
				Time:       start.UTC().Format(time.RFC3339),
				RequestID:  reqID,
				Method:     r.Method,
				URI:        r.URL.RequestURI(),
				Status:     status,
				Bytes:      rec.bytes,
				DurationMS: float64(time.Since(start).Microseconds()) / 1000,
				ClientIP:   ClientIP(r),
				UserAgent:  r.UserAgent(),
				Upgraded:   rec.upgraded,
			})
			if err != nil {
				log.Printf("[http] access log: %v", err)
				return
			}
			log.Println(string(line))
		}
	}
}
