package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"rollcall-go/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embedServer(t *testing.T, vector []float64, faces int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		require.Equal(t, "/embed", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"embedding":      vector,
			"faces_detected": faces,
		})
	}))
}

func backendFor(url string) config.ExtractorBackend {
	return config.ExtractorBackend{Name: "test", URL: url, Timeout: 2}
}

func TestHTTPExtractorExtract(t *testing.T) {
	srv := embedServer(t, []float64{0.1, 0.2, 0.3}, 1)
	defer srv.Close()

	e := NewHTTPExtractor(backendFor(srv.URL))
	vec, err := e.Extract(context.Background(), []byte("fake-jpeg"))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)
}

func TestHTTPExtractorNoFace(t *testing.T) {
	srv := embedServer(t, nil, 0)
	defer srv.Close()

	e := NewHTTPExtractor(backendFor(srv.URL))
	_, err := e.Extract(context.Background(), []byte("fake-jpeg"))
	assert.ErrorIs(t, err, ErrNoFaceDetected)
}

func TestChainFallsBackOnTransportError(t *testing.T) {
	good := embedServer(t, []float64{1, 2}, 1)
	defer good.Close()

	// First backend is unreachable; the chain moves on.
	chain := NewChain(
		NewHTTPExtractor(backendFor("http://127.0.0.1:1")),
		NewHTTPExtractor(backendFor(good.URL)),
	)

	vec, err := chain.Extract(context.Background(), []byte("fake-jpeg"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, vec)
}

func TestChainPrefersNoFaceOverTransportError(t *testing.T) {
	noFace := embedServer(t, nil, 0)
	defer noFace.Close()

	// One backend saw the image and found no face; a later transport
	// failure must not mask that verdict.
	chain := NewChain(
		NewHTTPExtractor(backendFor(noFace.URL)),
		NewHTTPExtractor(backendFor("http://127.0.0.1:1")),
	)

	_, err := chain.Extract(context.Background(), []byte("fake-jpeg"))
	assert.ErrorIs(t, err, ErrNoFaceDetected)
}

func TestChainAllBackendsDown(t *testing.T) {
	chain := NewChain(
		NewHTTPExtractor(backendFor("http://127.0.0.1:1")),
		NewHTTPExtractor(backendFor("http://127.0.0.1:2")),
	)

	_, err := chain.Extract(context.Background(), []byte("fake-jpeg"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoFaceDetected)
}

func TestChainPing(t *testing.T) {
	up := embedServer(t, nil, 0)
	defer up.Close()

	chain := NewChain(
		NewHTTPExtractor(backendFor("http://127.0.0.1:1")),
		NewHTTPExtractor(backendFor(up.URL)),
	)
	assert.NoError(t, chain.Ping(context.Background()))

	down := NewChain(NewHTTPExtractor(backendFor("http://127.0.0.1:1")))
	assert.Error(t, down.Ping(context.Background()))
}
