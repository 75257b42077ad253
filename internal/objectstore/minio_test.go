package objectstore_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/log-census/internal/config"
	"github.com/DeafMist/log-census/internal/objectstore"
)

func TestNewValidates(t *testing.T) {
	_, err := objectstore.New(config.ObjectStore{}, nil)
	require.Error(t, err)

	_, err = objectstore.New(config.ObjectStore{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "b"}, nil)
	require.Error(t, err)

	a, err := objectstore.New(config.ObjectStore{
		Endpoint:  "minio:9000",
		AccessKey: "a",
		SecretKey: "b",
		Bucket:    "log-census",
		Region:    "us-east-1",
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, a)
}

func TestArchivePutsObject(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotMethod, gotPath, gotBody = r.Method, r.URL.Path, string(body)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, err := objectstore.New(config.ObjectStore{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "log-census",
		Region:    "us-east-1",
	}, nil)
	require.NoError(t, err)

	require.NoError(t, a.Archive(context.Background(), "census_2024-01-02T15-04-05Z.txt", []byte("INFO a")))
	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "/log-census/census_2024-01-02T15-04-05Z.txt", gotPath)
	require.Contains(t, gotBody, "INFO a")
}
