package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid JSON", body: `{"name": "test"}`},
		{name: "trailing whitespace", body: "{\"name\": \"test\"}\n"},
		{name: "invalid JSON", body: `{invalid}`, wantErr: "invalid JSON"},
		{name: "empty body", body: ``, wantErr: "request body is empty"},
		{name: "two values", body: `{"name": "test"} {"name": "again"}`, wantErr: "unexpected data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))
			var dest map[string]string

			err := ParseJSON(req, &dest)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "test", dest["name"])
		})
	}
}

func TestParseJSON_NoBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	var dest []int

	assert.ErrorIs(t, ParseJSON(req, &dest), ErrEmptyBody)
}

func TestParseJSONOrError(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(`[1,`))
	var dest []int

	ok := ParseJSONOrError(w, req, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"message"`)
}

func TestParseJSONOrError_TooLarge(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`[`+strings.Repeat(`1,`, 64)+`1]`))
	req.Body = http.MaxBytesReader(w, req.Body, 16)
	var dest []int

	ok := ParseJSONOrError(w, req, &dest)

	assert.False(t, ok)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.JSONEq(t, `{"message":"request body too large"}`, w.Body.String())
}

func TestPathParam(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/analytics/generate/weekly", nil)
	req = mux.SetURLVars(req, map[string]string{"period": "weekly"})

	val, err := PathParam(req, "period")
	require.NoError(t, err)
	assert.Equal(t, "weekly", val)

	_, err = PathParam(req, "missing")
	assert.ErrorContains(t, err, "missing path parameter: missing")

	w := httptest.NewRecorder()
	_, ok := PathParamOrError(w, req, "missing")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQueryInt(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		defaultVal  int
		expected    int
		expectError bool
	}{
		{"absent uses default", "", 6, 6, false},
		{"blank uses default", "?timeframe=", 6, 6, false},
		{"present", "?timeframe=3", 6, 3, false},
		{"padded", "?timeframe=%203", 6, 3, false},
		{"negative parses", "?timeframe=-2", 6, -2, false},
		{"not a number", "?timeframe=abc", 6, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test"+tt.query, nil)

			val, err := ParseQueryInt(req, "timeframe", tt.defaultVal)

			if tt.expectError {
				assert.EqualError(t, err, `timeframe must be an integer, got "abc"`)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, val)
		})
	}
}

func TestParseQueryString(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test?period=weekly&blank=%20", nil)

	assert.Equal(t, "weekly", ParseQueryString(req, "period", "monthly"))
	assert.Equal(t, "monthly", ParseQueryString(req, "blank", "monthly"))
	assert.Equal(t, "daily", ParseQueryString(req, "absent", "daily"))
}
