// Package responsewriter records what a handler wrote so the logging, metrics
// and tracing middleware can report it after the fact.
package responsewriter

import "net/http"

// Recorder wraps an http.ResponseWriter and remembers the status code and
// body size. The first WriteHeader wins; later calls are dropped.
type Recorder struct {
	http.ResponseWriter
	status  int
	size    int
	written bool
}

// Wrap returns a Recorder for w. When w already is a Recorder it is returned
// as is, so stacked middleware share one set of counters.
func Wrap(w http.ResponseWriter) *Recorder {
	if rec, ok := w.(*Recorder); ok {
		return rec
	}
	return &Recorder{ResponseWriter: w, status: http.StatusOK}
}

func (r *Recorder) WriteHeader(code int) {
	if r.written {
		return
	}
	r.status = code
	r.written = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *Recorder) Write(b []byte) (int, error) {
	if !r.written {
		r.WriteHeader(http.StatusOK)
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// Flush forwards to the underlying writer when it supports flushing.
func (r *Recorder) Flush() {
	if !r.written {
		r.WriteHeader(http.StatusOK)
	}
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Status is the response code, 200 if the handler never set one.
func (r *Recorder) Status() int { return r.status }

// Size is the number of body bytes written.
func (r *Recorder) Size() int { return r.size }

// Written reports whether the header has been sent.
func (r *Recorder) Written() bool { return r.written }

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *Recorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }
