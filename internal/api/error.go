package api

// HTTPError is returned by endpoint handlers. ErrorLog is logged server
// side and never sent to the client; Session, when set, is echoed in the
// body next to the error.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
	Reason     string
	Session    any
	ErrorLog   error
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.ErrorLog
}

type ApiError struct {
	Error   string `json:"message"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Session any    `json:"session,omitempty"`
}
