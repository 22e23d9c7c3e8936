// internal/server/handlers/response.go

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"adintel/internal/domain/brand"
	"adintel/internal/domain/serp"
)

// Helper for JSON responses
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Failed to marshal response"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// Helper for error responses
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, serp.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, serp.ErrInvalidWindow),
		errors.Is(err, serp.ErrInvalidDevice),
		errors.Is(err, brand.ErrInvalidStatus),
		errors.Is(err, brand.ErrInvalidAsset):
		return http.StatusBadRequest
	case errors.Is(err, serp.ErrSourceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondWithServiceError writes err with the status its type implies.
// Client errors echo the cause; server errors are logged and hidden.
func respondWithServiceError(w http.ResponseWriter, logger *zap.Logger, message string, err error) {
	code := statusFor(err)
	switch code {
	case http.StatusInternalServerError:
		logger.Error(message, zap.Error(err))
		respondWithError(w, code, message)
	case http.StatusServiceUnavailable:
		logger.Warn(message, zap.Error(err))
		respondWithError(w, code, err.Error())
	default:
		respondWithError(w, code, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
