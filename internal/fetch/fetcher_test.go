package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DeafMist/log-census/internal/fetch"
	"github.com/stretchr/testify/require"
)

func TestFetchReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte("INFO: hello\n"))
	}))
	defer srv.Close()

	f := fetch.New(srv.URL, time.Second, nil, nil)
	require.Equal(t, srv.URL, f.URL())
	body, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "INFO: hello\n", body)
}

func TestFetchNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := fetch.New(srv.URL, time.Second, nil, nil).Fetch(context.Background())
	require.Error(t, err)

	var netErr *fetch.NetworkError
	require.True(t, errors.As(err, &netErr))
	require.Equal(t, http.StatusNotFound, netErr.StatusCode)
	require.Equal(t, srv.URL, netErr.URL)
}

func TestFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := fetch.New(addr, time.Second, nil, nil).Fetch(context.Background())

	var netErr *fetch.NetworkError
	require.True(t, errors.As(err, &netErr))
	require.Zero(t, netErr.StatusCode)
	require.Error(t, netErr.Unwrap())
}

func TestFetchHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetch.New(srv.URL, time.Minute, nil, nil).Fetch(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
