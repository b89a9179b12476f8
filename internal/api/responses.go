package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/realestate/server/internal/database"
	"github.com/realestate/server/internal/subdivision"
)

// maxBodyBytes bounds request bodies. A batch of lots with long rings fits
// comfortably.
const maxBodyBytes = 8 << 20

type errorResponse struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn("failed to encode response", zap.Error(err))
	}
}

// respondWithError sends an error response in JSON format.
func respondWithError(w http.ResponseWriter, log *zap.Logger, statusCode int, message string) {
	writeJSON(w, log, statusCode, errorResponse{Error: message, StatusCode: statusCode})
}

// statusFor maps a service error to the HTTP status and the message shown to
// the client.
func statusFor(err error) (int, string) {
	var validation *subdivision.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest, validation.Message
	}
	if errors.Is(err, database.ErrNotFound) {
		return http.StatusNotFound, "subdivision not found"
	}
	var storeErr *database.StoreError
	if errors.As(err, &storeErr) {
		code := storeErr.StatusCode
		if code < 400 || code > 599 || http.StatusText(code) == "" {
			code = http.StatusInternalServerError
		}
		if code >= 500 {
			return code, "internal server error"
		}
		return code, storeErr.Message
	}
	return http.StatusInternalServerError, "internal server error"
}

// respondWithServiceError writes err using statusFor. Server-side failures
// are logged with the full error chain.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status, message := statusFor(err)
	if status >= 500 {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	respondWithError(w, log, status, message)
}

// decodeJSON reads a bounded JSON body into target.
func decodeJSON(w http.ResponseWriter, r *http.Request, target interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(target)
}
