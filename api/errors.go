package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"appserver/metrics"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// defaultErrorMessage is sent for errors that are not HTTPErrors
const defaultErrorMessage = "Something went wrong"

// HTTPError is an error carrying the status code and client-facing message
type HTTPError struct {
	Status  int
	Message string
	// Err is the underlying cause; logged, never sent to clients
	Err error
}

// NewHTTPError creates an HTTPError
func NewHTTPError(status int, message string) *HTTPError {
	return &HTTPError{Status: status, Message: message}
}

// WrapHTTPError creates an HTTPError with an underlying cause
func WrapHTTPError(status int, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Message: message, Err: err}
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// PanicError wraps a value recovered from a panicking handler
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// ErrorHandler turns an error raised while serving r into an HTTP response
type ErrorHandler interface {
	HandleError(w http.ResponseWriter, r *http.Request, err error)
}

// ErrorHandlerFunc adapts a function to ErrorHandler
type ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)

// HandleError calls f(w, r, err)
func (f ErrorHandlerFunc) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	f(w, r, err)
}

// errorResponse is the body written by the default error handler
type errorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type jsonErrorHandler struct {
	logger *zap.SugaredLogger
}

// NewErrorHandler returns the default error handler. It writes
// {"status": N, "message": "..."}; only HTTPError messages reach the client.
func NewErrorHandler(logger *zap.SugaredLogger) ErrorHandler {
	return &jsonErrorHandler{logger: logger}
}

func (h *jsonErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := defaultErrorMessage

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Status >= 400 && httpErr.Status < 600 {
			status = httpErr.Status
		}
		if httpErr.Message != "" {
			message = httpErr.Message
		}
	}

	metrics.HTTPErrorsTotal.WithLabelValues(strconv.Itoa(status)).Inc()

	fields := []interface{}{
		"error", err.Error(),
		"status_code", status,
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", RequestID(r.Context()),
	}
	if start, ok := TraceStart(r.Context()); ok {
		fields = append(fields, "elapsed", time.Since(start))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("Request failed", fields...)
	} else {
		h.logger.Warnw("Request rejected", fields...)
	}

	writeJSON(w, status, errorResponse{Status: status, Message: message}, h.logger)
}

// HandlerFunc is a route handler that reports failure by returning an error.
// The error is passed to the App's terminal error handler.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ServeHTTP implements http.Handler
func (f HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := f(w, r); err != nil {
		Fail(w, r, err)
	}
}

// Fail hands err to the terminal error handler in scope for r. Outside an
// App it falls back to the default handler.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	h, ok := r.Context().Value(ContextKeyErrorHandler).(ErrorHandler)
	if !ok {
		h = NewErrorHandler(zap.NewNop().Sugar())
	}
	h.HandleError(w, r, err)
}

func withErrorHandler(ctx context.Context, h ErrorHandler) context.Context {
	return context.WithValue(ctx, ContextKeyErrorHandler, h)
}

// handleError routes errors raised by middleware to the terminal handler
func (a *App) handleError(w http.ResponseWriter, r *http.Request, err error) {
	a.errorHandler.HandleError(w, r, err)
}

// errorMiddleware is the terminal error scope: errors returned by routes and
// panics inside them end up in the App's error handler.
func (a *App) errorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(withErrorHandler(r.Context(), a.errorHandler))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				// Headers are gone; a JSON error would corrupt the partial body
				if ww.Status() != 0 || ww.BytesWritten() > 0 {
					a.logger.Errorw("Panic after response started, aborting connection",
						"panic", fmt.Sprint(rec),
						"status_code", ww.Status(),
						"method", r.Method,
						"path", r.URL.Path,
						"request_id", RequestID(r.Context()))
					panic(http.ErrAbortHandler)
				}
				err, ok := rec.(error)
				if !ok {
					err = &PanicError{Value: rec}
				}
				a.handleError(ww, r, err)
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

// writeJSON writes data as a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}, logger *zap.SugaredLogger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil && logger != nil {
		// Response already started, can't send error to client
		logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}

// WriteJSON writes data as a JSON response; for controllers
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, data, nil)
}
