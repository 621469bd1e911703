package web

// errors.go turns handler errors into responses.
//
// Every error is logged with its technical detail and the request id, then
// mapped through core.MapError so clients only see a message, an action and
// a support code. API routes get JSON; pages get a rendered error page.

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/addrnorm/internal/core"
	"github.com/JonMunkholm/addrnorm/internal/logging"
	"github.com/JonMunkholm/addrnorm/internal/table"
)

var (
	errNoFile          = errors.New("no file provided")
	errEnrichDisabled  = errors.New("enrichment disabled on this server")
	errRequestTooLarge = errors.New("request body too large")
)

// ErrorResponse is the JSON body of an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the user-facing form of it.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	log := logging.With(r.Context(), s.log)
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	if wantsJSON(r) {
		respondErrorJSON(w, userMsg, statusCode)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = errorPage(userMsg).Render(r.Context(), w)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor picks the HTTP status for an upload or batch error.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, errRequestTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrTooManyBatches):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client went away; nginx convention
		return 499
	case errors.Is(err, errNoFile),
		errors.Is(err, errEnrichDisabled),
		errors.Is(err, table.ErrEmptyFile),
		errors.Is(err, table.ErrUnsupportedFormat),
		isUserInputError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// isUserInputError matches the wrapped parse and validation errors whose
// sentinel lives in another package.
func isUserInputError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range []string{"invalid csv", "invalid xlsx", "unknown output mode", "invalid record", "decode request"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// wantsJSON reports whether the client should get a JSON error.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.Contains(r.Header.Get("Content-Type"), "application/json")
}
