package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

const (
	maxAuthBodySize    = 16 << 10
	maxProfileBodySize = 64 << 10
	maxOrderBodySize   = 256 << 10
)

// statusError is an error whose message is shown to API clients as is.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string { return e.message }

var (
	errUserNotFound    = &statusError{http.StatusNotFound, "User not found"}
	errProductNotFound = &statusError{http.StatusNotFound, "Product not found"}
	errStoreNotFound   = &statusError{http.StatusNotFound, "Store not found"}
	errUserExists      = &statusError{http.StatusBadRequest, "User already exists"}
	errOrderNotFound   = &statusError{http.StatusNotFound, "Order not found"}
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes the {"message": ...} body the storefront clients read.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageResponse{Message: msg})
}

// writeInternalError logs err and answers 500 without leaking it.
func writeInternalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func mapError(w http.ResponseWriter, err error) {
	var se *statusError
	if errors.As(err, &se) {
		writeError(w, se.status, se.message)
		return
	}
	writeInternalError(w, "Server Error", err)
}

// decodeJSON reads a JSON body of at most maxSize bytes into a T. On
// failure it writes a 400 or 413 and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, maxSize int64) (T, bool) {
	var v T
	body := http.MaxBytesReader(w, r.Body, maxSize)
	dec := json.NewDecoder(body)
	if err := dec.Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is required")
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %s", strings.TrimPrefix(err.Error(), "json: ")))
		}
		return v, false
	}
	return v, true
}
