// Package handlers implements the HTTP surface: health, auth token issuance,
// simple RAG query, agentic search, upload/ingest and the document listing.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BaSui01/ragflow/types"
)

// Response is the uniform JSON envelope.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo is the wire form of a failure.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a success envelope.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Success: true, Data: data})
}

// WriteError writes a failure envelope, deriving the HTTP status from the
// error's code when it is a *types.Error.
func WriteError(w http.ResponseWriter, err error) {
	code := types.ErrInternalError
	message := "internal error"

	var typed *types.Error
	if errors.As(err, &typed) {
		code = typed.Code
		message = typed.Message
	} else if err != nil {
		message = err.Error()
	}

	status := httpStatusFor(typed, code)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{
		Success: false,
		Error:   &ErrorInfo{Code: string(code), Message: message},
	})
}

func httpStatusFor(typed *types.Error, code types.ErrorCode) int {
	if typed != nil && typed.HTTPStatus != 0 {
		return typed.HTTPStatus
	}

	switch code {
	case types.ErrConfiguration, types.ErrValidation, types.ErrInvalidRequest:
		return http.StatusBadRequest
	case types.ErrAuthentication, types.ErrUnauthorized:
		return http.StatusUnauthorized
	case types.ErrForbidden:
		return http.StatusForbidden
	case types.ErrRateLimited, types.ErrQuotaExceeded:
		return http.StatusTooManyRequests
	case types.ErrUpstreamTimeout:
		return http.StatusGatewayTimeout
	case types.ErrServiceUnavailable, types.ErrProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON parses the request body into dst with strict field checking.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return types.NewError(types.ErrInvalidRequest, "malformed JSON body").WithCause(err)
	}
	return nil
}
