package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestHandler(t *testing.T) {
	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/health", http.StatusOK, "OK"},
		{"/metrics", http.StatusOK, "go_goroutines"},
		{"/other", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	addr, done, err := Serve(ctx, "127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", strings.TrimSpace(string(body)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not shut down")
	}
}

func TestServe_InvalidAddress(t *testing.T) {
	_, _, err := Serve(context.Background(), "not-an-address")
	assert.Error(t, err)
}
