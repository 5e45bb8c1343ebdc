package compat

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/logfan/pkg/logging"
)

func TestMiddlewareLogsRequests(t *testing.T) {
	s, sink := newTestShim(t)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(Middleware(s.Child("http")))
	r.Get("/ok", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	})
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "exploded", http.StatusInternalServerError)
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	for _, path := range []string{"/ok", "/missing", "/boom"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
	}

	entries := sink.all()
	require.Len(t, entries, 3)

	ok := entries[0]
	assert.Equal(t, logging.LevelInfo, ok.Level)
	assert.Equal(t, "http", ok.Component)
	assert.Equal(t, "GET", ok.Data["method"])
	assert.Equal(t, "/ok", ok.Data["path"])
	assert.Equal(t, http.StatusOK, ok.Data["status"])
	assert.Equal(t, len("hello"), ok.Data["bytes"])
	assert.NotEmpty(t, ok.Data["request_id"])
	assert.NotEmpty(t, ok.Data["remote_addr"])

	assert.Equal(t, logging.LevelWarn, entries[1].Level, "4xx logs at warn")
	assert.Equal(t, http.StatusNotFound, entries[1].Data["status"])

	assert.Equal(t, logging.LevelWarn, entries[2].Level, "5xx logs at warn")
	assert.Equal(t, http.StatusInternalServerError, entries[2].Data["status"])
}

func TestMiddlewareDefaultsToOK(t *testing.T) {
	s, sink := newTestShim(t)

	h := Middleware(s)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		// Handler neither writes a body nor a header.
	}))

	req := httptest.NewRequest(http.MethodGet, "/silent", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	e := sink.last(t)
	assert.Equal(t, logging.LevelInfo, e.Level)
	assert.Equal(t, http.StatusOK, e.Data["status"])
	assert.Equal(t, 0, e.Data["bytes"])
}

func TestGetClientIP(t *testing.T) {
	cases := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{
			name:       "x-forwarded-for takes the first hop",
			forwarded:  "203.0.113.7, 10.0.0.1",
			remoteAddr: "10.0.0.2:4321",
			want:       "203.0.113.7",
		},
		{
			name:       "x-real-ip when no forwarded header",
			realIP:     "198.51.100.4",
			remoteAddr: "10.0.0.2:4321",
			want:       "198.51.100.4",
		},
		{
			name:       "remote addr host",
			remoteAddr: "192.0.2.9:5555",
			want:       "192.0.2.9",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.9",
			want:       "192.0.2.9",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			assert.Equal(t, tc.want, getClientIP(req))
		})
	}
}
