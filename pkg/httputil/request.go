package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

var (
	// ErrEmptyBody is returned when a JSON body is required but absent
	ErrEmptyBody = errors.New("invalid JSON: request body is empty")

	// ErrBodyTooLarge is returned when the body exceeds the MaxBytesMiddleware limit
	ErrBodyTooLarge = errors.New("request body too large")
)

// ParseJSON decodes exactly one JSON value from the request body into dest
func ParseJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		return decodeError(err)
	}
	if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
		if err != nil {
			return decodeError(err)
		}
		return errors.New("invalid JSON: unexpected data after the request body")
	}
	return nil
}

func decodeError(err error) error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return ErrBodyTooLarge
	case errors.Is(err, io.EOF):
		return ErrEmptyBody
	}
	return fmt.Errorf("invalid JSON: %w", err)
}

// ParseJSONOrError decodes JSON and writes 400 (or 413 for oversized bodies) on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	err := ParseJSON(r, dest)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrBodyTooLarge):
		WriteErrorMessage(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		WriteBadRequest(w, err.Error())
	}
	return false
}

// PathParam returns a required mux path variable
func PathParam(r *http.Request, key string) (string, error) {
	if v := mux.Vars(r)[key]; v != "" {
		return v, nil
	}
	return "", fmt.Errorf("missing path parameter: %s", key)
}

// PathParamOrError is PathParam writing a 400 when the variable is missing
func PathParamOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v, err := PathParam(r, key)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return "", false
	}
	return v, true
}

// ParseQueryInt reads an integer query parameter; blank or absent yields defaultVal.
// Range checks are left to the caller.
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return v, nil
}

// ParseQueryString reads a trimmed query parameter, falling back to defaultVal
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	if v := strings.TrimSpace(r.URL.Query().Get(key)); v != "" {
		return v
	}
	return defaultVal
}
