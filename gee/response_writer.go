package gee

import "net/http"

// ResponseWriter 记下状态码和写出的字节数，access log 和 metrics 要用
type ResponseWriter struct {
	http.ResponseWriter
	status  int
	size    int
	written bool
}

func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader 只认第一次调用
func (w *ResponseWriter) WriteHeader(code int) {
	if w.written {
		return
	}
	w.status, w.written = code, true
	w.ResponseWriter.WriteHeader(code)
}

func (w *ResponseWriter) Write(p []byte) (int, error) {
	w.WriteHeader(http.StatusOK)
	n, err := w.ResponseWriter.Write(p)
	w.size += n
	return n, err
}

func (w *ResponseWriter) SetHeader(key, value string) { w.Header().Set(key, value) }

func (w *ResponseWriter) Status() int { return w.status }
func (w *ResponseWriter) Size() int { return w.size }
func (w *ResponseWriter) Written() bool { return w.written }

// Unwrap 给 http.ResponseController 用
func (w *ResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
