package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetchRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("INFO\n", 5)))
	}))
	defer srv.Close()

	f := New(srv.URL, time.Second, nil, nil)
	f.maxBytes = 24

	_, err := f.Fetch(context.Background())
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	require.ErrorIs(t, err, ErrBodyTooLarge)

	f.maxBytes = 25
	body, err := f.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, body, 25)
}
