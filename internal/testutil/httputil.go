package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// JSONRequest builds a handler request whose body is body encoded as JSON.
// A nil body sends an empty request body.
func JSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body), "encoding request body")
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithBearer sets the Authorization header the API middleware expects.
func WithBearer(req *http.Request, apiKey string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+apiKey)
	return req
}

// DecodeJSON decodes a recorded response body into v.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	body := rec.Body.String()
	require.NoError(t, json.Unmarshal([]byte(body), v), "decoding response: %s", body)
}
