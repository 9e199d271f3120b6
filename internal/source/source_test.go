package source_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timmy/textfleet/internal/source"
	"github.com/timmy/textfleet/internal/source/local"
	"github.com/timmy/textfleet/internal/source/web"
)

func TestWebAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.txt":
			_, _ = w.Write([]byte("The quick brown fox."))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := web.NewAdapter(web.Config{Timeout: 5 * time.Second})

	tests := []struct {
		name    string
		ref     string
		want    string
		wantErr bool
	}{
		{name: "ok", ref: srv.URL + "/ok.txt", want: "The quick brown fox."},
		{name: "not found", ref: srv.URL + "/missing.txt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := a.Fetch(context.Background(), tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "HTTP 404")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestLocalAdapter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	a := local.NewAdapter(dir)

	data, err := a.Fetch(context.Background(), "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	data, err = a.Fetch(context.Background(), "file://"+filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = a.Fetch(context.Background(), "missing.txt")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRouter(t *testing.T) {
	r := source.NewRouter(web.NewAdapter(web.Config{}), local.NewAdapter(""))

	tests := []struct {
		ref  string
		want bool
	}{
		{ref: "http://example.com/a.txt", want: true},
		{ref: "HTTPS://example.com/a.txt", want: true},
		{ref: "file:///tmp/a.txt", want: true},
		{ref: "relative/a.txt", want: true},
		{ref: "s3://bucket/key", want: false},
		{ref: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Supports(tt.ref))
		})
	}

	_, err := r.Fetch(context.Background(), "ftp://host/file")
	assert.ErrorIs(t, err, source.ErrUnsupported)
}
