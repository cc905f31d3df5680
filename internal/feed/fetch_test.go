package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSendsBearerAndDecodes(t *testing.T) {
	var gotAuth, gotType, gotReqID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotReqID = r.Header.Get("X-Request-ID")
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"1","date":"2024-03-01","time":"09:05","type":"internal"}]`))
	}))
	defer srv.Close()

	meetings, err := NewFetcher(srv.URL+"/api/meetings").Fetch(context.Background(), "tok-123")
	require.NoError(t, err)
	require.Len(t, meetings, 1)

	assert.Equal(t, "1", meetings[0].ID)
	assert.Equal(t, "Bearer tok-123", gotAuth)
	assert.Equal(t, "application/json", gotType)
	assert.NotEmpty(t, gotReqID)
}

func TestFetchNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	meetings, err := NewFetcher(srv.URL).Fetch(context.Background(), "tok")
	assert.Nil(t, meetings)

	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusUnauthorized, fetchErr.StatusCode)
}

func TestFetchBadBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"an array"}`))
	}))
	defer srv.Close()

	meetings, err := NewFetcher(srv.URL).Fetch(context.Background(), "tok")
	assert.Nil(t, meetings)

	var fetchErr *FetchError
	assert.True(t, errors.As(err, &fetchErr))
}

func TestFetchNullBodyIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	}))
	defer srv.Close()

	meetings, err := NewFetcher(srv.URL).Fetch(context.Background(), "tok")
	require.NoError(t, err)
	assert.NotNil(t, meetings)
	assert.Empty(t, meetings)
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewFetcher(url, WithTimeout(time.Second)).Fetch(context.Background(), "tok")
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Zero(t, fetchErr.StatusCode)
}

func TestFetchHonorsCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFetcher(srv.URL).Fetch(ctx, "tok")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "http://localhost:5001/...(redacted)", redactURL("http://localhost:5001/api/meetings?k=v"))
	assert.Equal(t, "https://example.com", redactURL("https://example.com"))
	assert.Equal(t, "(redacted)", redactURL("::not a url"))
}
