package httputil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		url     string
		want    string
	}{
		{
			name:    "x-api-key header",
			headers: map[string]string{"X-API-Key": "key-123"},
			url:     "http://example.com",
			want:    "key-123",
		},
		{
			name: "x-api-key wins over authorization",
			headers: map[string]string{
				"X-API-Key":     "key-123",
				"Authorization": "Bearer other",
			},
			url:  "http://example.com",
			want: "key-123",
		},
		{
			name:    "bearer scheme",
			headers: map[string]string{"Authorization": "Bearer key-456"},
			url:     "http://example.com",
			want:    "key-456",
		},
		{
			name:    "apikey scheme",
			headers: map[string]string{"Authorization": "ApiKey key-789"},
			url:     "http://example.com",
			want:    "key-789",
		},
		{
			name:    "bare authorization value",
			headers: map[string]string{"Authorization": "key-000"},
			url:     "http://example.com",
			want:    "key-000",
		},
		{
			name: "api_key query parameter",
			url:  "http://example.com?api_key=key-q1",
			want: "key-q1",
		},
		{
			name: "token query parameter",
			url:  "http://example.com?token=key-q2",
			want: "key-q2",
		},
		{
			name: "nothing present",
			url:  "http://example.com",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ExtractAPIKey(req); got != tt.want {
				t.Errorf("ExtractAPIKey() = %v, want %v", got, tt.want)
			}
		})
	}
}
