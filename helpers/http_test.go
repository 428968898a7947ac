package helpers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	perrors "github.com/leader001a/ro-market-crawler-sub000/pkg/errors"
)

func TestFetchHTML(t *testing.T) {
	// Create a test server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check that headers are set
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("Accept-Language"))
		assert.NotEmpty(t, r.Header.Get("referer"))

		// Send a response
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>Hello, World!</body></html>"))
	}))
	defer server.Close()

	reader, err := FetchHTML(context.Background(), NewHTTPClient(5*time.Second), server.URL)
	assert.NoError(t, err)

	body, err := io.ReadAll(reader)
	assert.NoError(t, err)
	assert.Contains(t, string(body), "Hello, World!")
}

func TestFetchHTMLNonUTF8(t *testing.T) {
	// Create a test server that declares a non-UTF8 charset
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>Hello, World!</body></html>"))
	}))
	defer server.Close()

	reader, err := FetchHTML(context.Background(), NewHTTPClient(5*time.Second), server.URL)
	assert.NoError(t, err)

	body, err := io.ReadAll(reader)
	assert.NoError(t, err)
	assert.Contains(t, string(body), "Hello, World!")
}

func TestFetchHTMLError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := FetchHTML(context.Background(), NewHTTPClient(5*time.Second), server.URL)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 500")
	assert.False(t, perrors.IsRateLimit(err))
}

func TestFetchHTMLRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := FetchHTML(context.Background(), NewHTTPClient(5*time.Second), server.URL)
	assert.Error(t, err)
	assert.True(t, perrors.IsRateLimit(err))
	assert.Contains(t, err.Error(), "retry after 60")
}

func TestFetchHTMLInvalidURL(t *testing.T) {
	_, err := FetchHTML(context.Background(), NewHTTPClient(time.Second), "http://invalid.url.that.does.not.exist")
	assert.Error(t, err)
}
