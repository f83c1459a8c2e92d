package api

import (
	"encoding/json"
	"net/http"
)

const (
	maxJSONBodyBytes int64 = 2 * 1024 * 1024
	// file uploads carry base64, so allow for the 4/3 expansion
	maxFileBodyBytes int64 = 96 * 1024 * 1024
)

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeJSONBodyLimit(w, r, dst, maxJSONBodyBytes)
}

func decodeJSONBodyLimit(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}
