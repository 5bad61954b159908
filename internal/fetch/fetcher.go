// Package fetch downloads remote files into the local mirror.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ralt/debmirror/internal/models"
	"github.com/ralt/debmirror/internal/utils"
	"github.com/sirupsen/logrus"
)

// DefaultUserAgent is sent when no user agent is configured
const DefaultUserAgent = "debmirror"

// Fetcher downloads a URL to a local destination
type Fetcher interface {
	// Fetch downloads url to dest and returns the number of bytes written
	Fetch(ctx context.Context, url, dest string) (int64, error)
}

// HTTPFetcher implements Fetcher over HTTP(S)
type HTTPFetcher struct {
	client           *http.Client
	userAgent        string
	progressInterval time.Duration
}

// NewHTTPFetcher creates a new HTTP fetcher. A nil client uses
// http.DefaultClient.
func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPFetcher{
		client:           client,
		userAgent:        userAgent,
		progressInterval: 2 * time.Second,
	}
}

// Fetch streams the response body into dest. The file only appears at dest
// once the whole body has been received.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &models.MirrorError{Type: models.ErrFetch, Package: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, &models.MirrorError{Type: models.ErrFetch, Package: url, Err: fmt.Errorf("download failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		errType := models.ErrFetch
		if resp.StatusCode == http.StatusNotFound {
			errType = models.ErrNotFound
		}
		return 0, &models.MirrorError{
			Type:    errType,
			Package: url,
			Err:     fmt.Errorf("download failed: %s %s", resp.Status, strings.TrimSpace(string(body))),
		}
	}

	progress := &progressReader{
		r:        resp.Body,
		url:      url,
		total:    resp.ContentLength,
		interval: f.progressInterval,
		last:     time.Now(),
	}

	n, err := utils.WriteFileAtomic(dest, progress, 0644)
	if err != nil {
		return n, &models.MirrorError{Type: models.ErrFetch, Package: url, Err: fmt.Errorf("write failed: %w", err)}
	}

	logrus.Debugf("Fetched %s (%d bytes)", url, n)
	return n, nil
}

// progressReader logs download progress at most once per interval
type progressReader struct {
	r        io.Reader
	url      string
	total    int64
	read     int64
	interval time.Duration
	last     time.Time
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	done := p.read

	if p.interval > 0 && time.Since(p.last) >= p.interval {
		p.last = time.Now()
		if p.total > 0 {
			logrus.Infof("-> downloading %s %d%% (%d/%d bytes)", p.url, done*100/p.total, done, p.total)
		} else {
			logrus.Infof("-> downloading %s %d bytes", p.url, done)
		}
	}
	return n, err
}
