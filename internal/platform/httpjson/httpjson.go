// Package httpjson writes JSON responses and maps autherr kinds to HTTP statuses.
package httpjson

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"storefront/backend/internal/platform/autherr"
)

const maxBodyBytes = 1 << 20

// ErrorBody is the JSON envelope of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure. Fields is set for validation errors and LockedUntil for locked accounts.
type ErrorDetail struct {
	Code        string            `json:"code"`
	Message     string            `json:"message"`
	Fields      map[string]string `json:"fields,omitempty"`
	LockedUntil *time.Time        `json:"lockedUntil,omitempty"`
}

// Write encodes data as JSON with the given status.
func Write(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// Status returns the HTTP status for an error kind.
func Status(k autherr.Kind) int {
	switch k {
	case autherr.KindValidation, autherr.KindTokenInvalidOrExpired:
		return http.StatusBadRequest
	case autherr.KindDuplicateIdentity:
		return http.StatusConflict
	case autherr.KindInvalidCredentials, autherr.KindTokenInvalid, autherr.KindTokenExpired:
		return http.StatusUnauthorized
	case autherr.KindAccountLocked:
		return http.StatusLocked
	case autherr.KindAccountInactive:
		return http.StatusForbidden
	case autherr.KindAccountLinkError:
		return http.StatusBadGateway
	case autherr.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as an ErrorBody. Internal errors are logged and reported with a generic message.
func Error(w http.ResponseWriter, logger *zap.Logger, err error) {
	e := autherr.As(err)
	status := Status(e.Kind)
	detail := ErrorDetail{Code: e.Kind.String(), Message: e.Message, Fields: e.Fields}
	switch e.Kind {
	case autherr.KindInternal:
		detail.Message = autherr.ErrInternal.Message
		if logger != nil {
			logger.Error("request failed", zap.Error(err))
		}
	case autherr.KindAccountLocked:
		if e.LockedUntil != nil {
			detail.LockedUntil = e.LockedUntil
			secs := int(math.Ceil(time.Until(*e.LockedUntil).Seconds()))
			if secs > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
		}
	case autherr.KindAccountLinkError:
		if logger != nil && e.Err != nil {
			logger.Warn("account link failed", zap.Error(e.Err))
		}
	}
	Write(w, status, ErrorBody{Error: detail})
}

// Decode reads a JSON body into v. An empty body leaves v untouched; malformed JSON is a
// validation error.
func Decode(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return autherr.Validation(map[string]string{"body": "request body must be valid JSON"})
	}
	return nil
}
