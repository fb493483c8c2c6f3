package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aegis/internal/domain"
	"github.com/kailas-cloud/aegis/internal/logger"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest         = "bad_request"
	CodeUnauthorized       = "unauthorized"
	CodeValidationFailed   = "validation_failed"
	CodeBlockedContent     = "blocked_content"
	CodeAdapterUnavailable = "adapter_unavailable"
	CodeAdapterTimeout     = "adapter_timeout"
	CodeNotFound           = "not_found"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

var errorHandlers = []errorHandler{
	validationHandler,
	blockedHandler,
	timeoutHandler,
	unavailableHandler,
	sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
	sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
}

// handleDomainError maps the error taxonomy onto HTTP. Messages never carry
// adapter internals or scanned text.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	for _, h := range errorHandlers {
		if h(w, err) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
}

func validationHandler(w http.ResponseWriter, err error) bool {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Code:    CodeValidationFailed,
		Message: ve.Error(),
		Details: map[string]any{"field": ve.Field},
	})
	return true
}

// blockedHandler reports which data types triggered the block, never the text.
func blockedHandler(w http.ResponseWriter, err error) bool {
	var be *domain.BlockedContentError
	if !errors.As(err, &be) {
		return false
	}
	writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
		Code:    CodeBlockedContent,
		Message: "request blocked by data loss prevention policy",
		Details: map[string]any{"scan_id": be.ScanID, "data_types": be.DataTypes},
	})
	return true
}

func timeoutHandler(w http.ResponseWriter, err error) bool {
	var te *domain.AdapterTimeoutError
	if !errors.As(err, &te) {
		return false
	}
	writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{
		Code:    CodeAdapterTimeout,
		Message: te.Adapter + " timed out",
		Details: map[string]any{"adapter": te.Adapter, "elapsed_ms": te.Elapsed.Milliseconds()},
	})
	return true
}

func unavailableHandler(w http.ResponseWriter, err error) bool {
	var ue *domain.AdapterUnavailableError
	if !errors.As(err, &ue) {
		return false
	}
	writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
		Code:    CodeAdapterUnavailable,
		Message: ue.Adapter + " unavailable",
		Details: map[string]any{"adapter": ue.Adapter},
	})
	return true
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, sentinel.Error())
		return true
	}
}
