package cli

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{2048, "2.0 KB"},
		{10 << 20, "10.0 MB"},
		{3 << 30, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.bytes), "formatBytes(%d)", tt.bytes)
	}
}

func TestEnvDefault(t *testing.T) {
	t.Setenv("LOGFAN_TEST_VALUE", "from-env")
	assert.Equal(t, "from-env", envDefault("LOGFAN_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", envDefault("LOGFAN_TEST_MISSING", "fallback"))

	t.Setenv("LOGFAN_TEST_BLANK", "   ")
	assert.Equal(t, "fallback", envDefault("LOGFAN_TEST_BLANK", "fallback"))
}

func TestProbeCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/logs/cli-test.log", r.URL.Path)
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"level":"info","message":"older","context":{"probe":"other"}}`)
		fmt.Fprintln(w, `not even json`)
		fmt.Fprintln(w, `{"level":"info","message":"mine","context":{"probe":"marker-1","seq":0}}`)
		fmt.Fprintln(w, `{"level":"info","message":"mine","context":{"probe":"marker-1","seq":1}}`)
	}))
	defer srv.Close()

	oldServer := serverURL
	serverURL = srv.URL
	t.Cleanup(func() { serverURL = oldServer })

	found, err := probeCount("cli-test.log", "marker-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, found)

	found, err = probeCount("cli-test.log", "marker-2", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, found)
}

func TestProbeCountServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	oldServer := serverURL
	serverURL = srv.URL
	t.Cleanup(func() { serverURL = oldServer })

	_, err := probeCount("cli-test.log", "marker-1", 1)
	require.Error(t, err)
}
