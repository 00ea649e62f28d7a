package aidetect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"
)

// DownloadOpts configures an image download.
type DownloadOpts struct {
	MaxBytes  int64         // max response body size (default: MaxFileSize+1, so oversize still fails validation)
	MinBytes  int           // reject if smaller (default: 0)
	Timeout   time.Duration // per-request timeout (default: 10s)
	UserAgent string        // override config user agent
}

const defaultTimeout = 10 * time.Second

// Download failures, usable with errors.Is.
var (
	ErrNotImage          = errors.New("response is not an image")
	ErrUnsupportedScheme = errors.New("only http and https URLs are allowed")
	ErrBlockedAddress    = errors.New("address is not publicly routable")
)

const maxRedirects = 3

// DownloadResult holds downloaded image data.
type DownloadResult struct {
	Data     []byte
	MIMEType string
}

// Download fetches image bytes from url for analysis. Tries cfg.StealthClient
// first (if set), falls back to cfg.HTTPClient. The body is truncated to
// MaxBytes; the default keeps one byte beyond the configured MaxFileSize so
// an oversized image is still rejected by Validate rather than silently cut.
func (cfg *Config) Download(ctx context.Context, rawURL string, opts DownloadOpts) (*DownloadResult, error) {
	if err := checkScheme(rawURL); err != nil {
		return nil, err
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = cfg.heuristics().MaxFileSize + 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = cfg.userAgent()
	}

	// Try stealth client first.
	if cfg.StealthClient != nil {
		r, err := fetchImageData(ctx, cfg.StealthClient, rawURL, ua, opts)
		if err == nil {
			return r, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
	}

	// Fallback to regular client.
	return fetchImageData(ctx, cfg.httpClient(), rawURL, ua, opts)
}

func fetchImageData(ctx context.Context, client *http.Client, imageURL, ua string, opts DownloadOpts) (*DownloadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", ua)

	resp, err := client.Do(req) //nolint:gosec // G704: scheme checked in Download; the default client refuses private addresses
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	// Strip MIME parameters: "image/jpeg; charset=utf-8" → "image/jpeg"
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	if !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("%w: %q", ErrNotImage, ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) < opts.MinBytes {
		return nil, fmt.Errorf("image body too small: %d bytes", len(data))
	}

	return &DownloadResult{Data: data, MIMEType: ct}, nil
}

func checkScheme(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return nil
}

// NewPublicClient returns an HTTP client that only connects to publicly
// routable addresses and follows at most three redirects. The address is
// checked after DNS resolution, so hostnames pointing inside the network
// are refused too.
func NewPublicClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   defaultTimeout,
		KeepAlive: 30 * time.Second,
		Control:   refusePrivate,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{
		Timeout:       timeout,
		Transport:     transport,
		CheckRedirect: checkRedirect,
	}
}

func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("too many redirects")
	}
	return checkScheme(req.URL.String())
}

func refusePrivate(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	if !isPublic(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ap.Addr())
	}
	return nil
}

var sharedAddrSpace = netip.MustParsePrefix("100.64.0.0/10")

func isPublic(a netip.Addr) bool {
	a = a.Unmap()
	switch {
	case !a.IsValid(),
		a.IsUnspecified(),
		a.IsLoopback(),
		a.IsPrivate(),
		a.IsLinkLocalUnicast(),
		a.IsLinkLocalMulticast(),
		a.IsInterfaceLocalMulticast(),
		a.IsMulticast(),
		sharedAddrSpace.Contains(a):
		return false
	}
	return true
}
