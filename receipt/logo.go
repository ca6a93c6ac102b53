package receipt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/webp"
)

const maxLogoBytes = 5 << 20

var errNoLogo = errors.New("no logo configured")

// LogoResolver turns the organization logo reference into PNG bytes that
// the PDF writer can embed. References are either http(s) URLs or paths
// relative to PublicDir (the site's public/ folder).
type LogoResolver struct {
	PublicDir string
	HTTP      *http.Client
}

// Resolve fetches and normalises the logo to PNG.
func (l LogoResolver) Resolve(ctx context.Context, ref string) ([]byte, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errNoLogo
	}
	var raw []byte
	var err error
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		raw, err = l.fetch(ctx, ref)
	} else {
		raw, err = l.readLocal(ref)
	}
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode logo %s: %w", ref, err)
	}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("encode logo: %w", err)
	}
	return out.Bytes(), nil
}

func (l LogoResolver) readLocal(ref string) ([]byte, error) {
	// Clean against "/" so a reference cannot climb out of PublicDir.
	path := filepath.Join(l.PublicDir, filepath.Clean("/"+filepath.FromSlash(ref)))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open logo: %w", err)
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxLogoBytes))
}

func (l LogoResolver) fetch(ctx context.Context, url string) ([]byte, error) {
	client := l.HTTP
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create logo request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch logo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch logo: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxLogoBytes))
}
