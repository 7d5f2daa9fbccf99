package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"livechat-backend/internal/api/middleware"
	"livechat-backend/internal/queue"
)

type apiFunc func(http.ResponseWriter, *http.Request) error

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func defaultCORSConfig() middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "OPTIONS", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "X-Requested-With", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
	}
}

// MakeHTTPHandleFunc runs f on the request queue and turns its error into
// a JSON body. authMiddleware wraps f only, so preflight requests and the
// access log never need a token.
func (s *APIServer) MakeHTTPHandleFunc(f apiFunc, authMiddleware ...middleware.Middleware) http.HandlerFunc {
	baseHandler := func(w http.ResponseWriter, r *http.Request) {
		errc := make(chan error, 1)

		job := queue.Job{
			Fn: func() error {
				return f(w, r)
			},
			Errc: errc,
		}

		if err := s.requestQueueManager.EnqueueJob(job); err != nil {
			writeError(w, r, &HTTPError{
				StatusCode: http.StatusServiceUnavailable,
				Message:    "Server is shutting down",
				Code:       "unavailable",
				ErrorLog:   err,
			})
			return
		}

		if err := <-errc; err != nil {
			writeError(w, r, err)
		}
	}

	handler := http.HandlerFunc(baseHandler)
	for i := len(authMiddleware) - 1; i >= 0; i-- {
		handler = authMiddleware[i](handler)
	}

	finalHandler := func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler(w, r)
	}

	return middleware.Chain(finalHandler,
		middleware.CORS(s.cors),
		middleware.Logging(),
	)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.ErrorLog != nil {
			log.Printf("[api] %s %s: %v", r.Method, r.URL.Path, httpErr.ErrorLog)
		}
		WriteJSON(w, httpErr.StatusCode, ApiError{
			Error:   httpErr.Message,
			Code:    httpErr.Code,
			Reason:  httpErr.Reason,
			Session: httpErr.Session,
		})
		return
	}
	log.Printf("[api] %s %s: %v", r.Method, r.URL.Path, err)
	WriteJSON(w, http.StatusInternalServerError, ApiError{Error: "Internal server error", Code: "internal_error"})
}
