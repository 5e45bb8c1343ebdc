package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxBody caps request bodies read by this package. Log batches
// are the largest payload in the system and stay well under this.
const DefaultMaxBody int64 = 10 << 20

// DecodeJSON decodes the request body as JSON into the provided value.
// The body is capped at DefaultMaxBody; oversized bodies fail to
// decode. Returns an error if decoding fails.
func DecodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, DefaultMaxBody)).Decode(v)
}

// DecodeJSONStrict decodes the request body as JSON with strict
// validation. It disallows unknown fields and returns an error if any
// are present.
func DecodeJSONStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, DefaultMaxBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// ReadBody reads the entire request body up to maxBytes.
// Returns the body bytes or an error if reading fails.
func ReadBody(r *http.Request, maxBytes int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBytes))
}

// QueryParam returns the value of a query parameter, or defaultValue if not present.
func QueryParam(r *http.Request, key, defaultValue string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return defaultValue
}

// QueryParamInt returns the integer value of a query parameter, or defaultValue if not present or invalid.
func QueryParamInt(r *http.Request, key string, defaultValue int) int {
	if v := r.URL.Query().Get(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
