package payslip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPLogoFetcher(t *testing.T) {
	logo := pngLogo(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/logo.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(logo)
		case "/slow.png":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fetcher := NewHTTPLogoFetcher(200 * time.Millisecond)

	data, err := fetcher.FetchLogo(context.Background(), srv.URL+"/logo.png")
	require.NoError(t, err)
	assert.Equal(t, logo, data)

	_, err = fetcher.FetchLogo(context.Background(), srv.URL+"/missing.png")
	assert.Error(t, err)

	_, err = fetcher.FetchLogo(context.Background(), srv.URL+"/slow.png")
	assert.Error(t, err)

	fetcher.MaxBytes = 8
	_, err = fetcher.FetchLogo(context.Background(), srv.URL+"/logo.png")
	assert.ErrorIs(t, err, ErrLogoTooLarge)
}

func TestLogoImageType(t *testing.T) {
	kind, err := logoImageType(pngLogo(t))
	require.NoError(t, err)
	assert.Equal(t, "PNG", kind)

	_, err = logoImageType([]byte("GIF? no"))
	assert.Error(t, err)
}
