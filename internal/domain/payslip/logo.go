package payslip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"
)

const defaultLogoMaxBytes = 2 << 20

var ErrLogoTooLarge = errors.New("logo exceeds size limit")

type LogoFetcher interface {
	FetchLogo(ctx context.Context, url string) ([]byte, error)
}

type HTTPLogoFetcher struct {
	Client   *http.Client
	Timeout  time.Duration
	MaxBytes int64
}

func NewHTTPLogoFetcher(timeout time.Duration) *HTTPLogoFetcher {
	return &HTTPLogoFetcher{Client: http.DefaultClient, Timeout: timeout, MaxBytes: defaultLogoMaxBytes}
}

func (f *HTTPLogoFetcher) FetchLogo(ctx context.Context, url string) ([]byte, error) {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("logo fetch: unexpected status %d", resp.StatusCode)
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = defaultLogoMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrLogoTooLarge
	}
	return data, nil
}

// logoImageType maps decoded image formats to gofpdf image types.
func logoImageType(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	switch format {
	case "png":
		return "PNG", nil
	case "jpeg":
		return "JPG", nil
	case "gif":
		return "GIF", nil
	}
	return "", fmt.Errorf("unsupported logo format %q", format)
}
