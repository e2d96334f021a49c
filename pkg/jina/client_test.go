package jina

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	c := NewClient("my-key")
	hc := c.(*httpClient)
	assert.Equal(t, "my-key", hc.apiKey)
	assert.Equal(t, "https://s.jina.ai", hc.searchBaseURL)
	assert.Equal(t, 30*time.Second, hc.http.Timeout)
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()
	custom := &http.Client{Timeout: 5 * time.Second}
	c := NewClient("k", WithHTTPClient(custom))
	assert.Same(t, custom, c.(*httpClient).http)
}

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	want := SearchResponse{
		Code: 200,
		Data: []SearchResult{{
			Title:         "Burger chain opens 40 new locations",
			URL:           "https://news.example.com/burger-expansion",
			Content:       "The chain announced an expansion across the midwest.",
			Description:   "Expansion news",
			PublishedTime: "2026-03-01T10:00:00Z",
		}},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "/restaurant expansion", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(want) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", WithSearchBaseURL(srv.URL))
	got, err := client.Search(context.Background(), "restaurant expansion")

	require.NoError(t, err)
	require.Len(t, got.Data, 1)
	assert.Equal(t, want.Data[0], got.Data[0])
}

func TestSearch_WithSiteFilter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "nrn.com", r.URL.Query().Get("site"))
		json.NewEncoder(w).Encode(SearchResponse{Code: 200}) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", WithSearchBaseURL(srv.URL))
	got, err := client.Search(context.Background(), "menu", WithSiteFilter("nrn.com"))
	require.NoError(t, err)
	assert.Equal(t, 200, got.Code)
}

func TestSearch_NoKeyOmitsAuthorization(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(SearchResponse{Code: 200}) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient("", WithSearchBaseURL(srv.URL)).Search(context.Background(), "q")
	require.NoError(t, err)
}

func TestSearch_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(strings.Repeat("x", 1000))) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(context.Background(), "q")
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Len(t, se.Body, 256)
	assert.Contains(t, err.Error(), "429")
}

func TestSearch_NoResults422(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	got, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, got.Data)
}

func TestSearch_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestSearch_ContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(ctx, "q")
	require.Error(t, err)
}
