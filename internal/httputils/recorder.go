// Package httputils holds small net/http helpers shared by the middleware.
package httputils

import "net/http"

// StatusRecorder remembers the status code and body size written through it.
// Optional interfaces such as http.Flusher and http.Hijacker are reached
// through Unwrap by http.ResponseController.
type StatusRecorder struct {
	http.ResponseWriter

	// Status is the code sent to the client, 200 until a header is written
	Status int

	// Bytes counts body bytes written
	Bytes int

	wroteHeader bool
}

// NewStatusRecorder wraps w
func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
}

// WriteHeader records the first status code and forwards it. Later calls are dropped.
func (rw *StatusRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.Status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *StatusRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.Bytes += n
	return n, err
}

// WroteHeader reports whether a status has been sent
func (rw *StatusRecorder) WroteHeader() bool {
	return rw.wroteHeader
}

// Unwrap returns the wrapped writer
func (rw *StatusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
