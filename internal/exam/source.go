// Package exam loads question sets and answer keys from local files or
// http(s) URLs.
package exam

import (
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medcode-cli/internal/resilience"
)

// maxSourceBytes caps what a single source may contain.
const maxSourceBytes = 32 << 20

var httpClient = &http.Client{Timeout: 60 * time.Second}

func isURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// ext returns the lower-cased extension of a path or URL path.
func ext(src string) string {
	if isURL(src) {
		if i := strings.IndexAny(src, "?#"); i >= 0 {
			src = src[:i]
		}
	}
	return strings.ToLower(path.Ext(src))
}

// readSource returns the full contents of a local file or URL. Downloads are
// retried on transient failures.
func readSource(ctx context.Context, src string) ([]byte, error) {
	if !isURL(src) {
		data, err := os.ReadFile(src)
		if err != nil {
			return nil, eris.Wrapf(err, "exam: read %s", src)
		}
		return data, nil
	}
	return resilience.Retry(ctx, resilience.DefaultRetryPolicy(), func(ctx context.Context) ([]byte, error) {
		return download(ctx, src)
	})
}

func download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "exam: create request")
	}
	req.Header.Set("User-Agent", "medcode-cli/1.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "exam: download %s", url), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("exam: download %s: status %d", url, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes+1))
	if err != nil {
		return nil, eris.Wrapf(err, "exam: read body of %s", url)
	}
	if len(data) > maxSourceBytes {
		return nil, eris.Errorf("exam: %s exceeds %d bytes", url, maxSourceBytes)
	}
	return data, nil
}
