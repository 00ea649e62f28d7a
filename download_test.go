package aidetect

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
)

// imageServer answers every request with body under the given Content-Type,
// or with status when it is not 200.
func imageServer(t *testing.T, contentType, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if status != http.StatusOK {
			http.Error(w, http.StatusText(status), status)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		opts        DownloadOpts
		wantMIME    string
		wantLen     int
		wantErr     string
		wantErrIs   error
	}{
		{
			name:        "jpeg",
			contentType: "image/jpeg",
			body:        "FAKEIMAGEDATA" + strings.Repeat("X", 1024),
			wantMIME:    "image/jpeg",
			wantLen:     13 + 1024,
		},
		{
			name:        "mime parameters stripped",
			contentType: "image/jpeg; charset=utf-8",
			body:        "FAKEIMAGEDATA",
			wantMIME:    "image/jpeg",
			wantLen:     13,
		},
		{
			name:        "body truncated to MaxBytes",
			contentType: "image/png",
			body:        strings.Repeat("X", 100),
			opts:        DownloadOpts{MaxBytes: 10},
			wantMIME:    "image/png",
			wantLen:     10,
		},
		{
			name:        "html page",
			contentType: "text/html",
			body:        "<html></html>",
			wantErrIs:   ErrNotImage,
		},
		{
			name:    "not found",
			status:  http.StatusNotFound,
			wantErr: "status 404",
		},
		{
			name:        "below MinBytes",
			contentType: "image/jpeg",
			body:        "tiny",
			opts:        DownloadOpts{MinBytes: 100},
			wantErr:     "too small",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			status := tc.status
			if status == 0 {
				status = http.StatusOK
			}
			srv := imageServer(t, tc.contentType, tc.body, status)

			cfg := &Config{HTTPClient: srv.Client()}
			res, err := cfg.Download(context.Background(), srv.URL+"/img", tc.opts)
			switch {
			case tc.wantErrIs != nil:
				if !errors.Is(err, tc.wantErrIs) {
					t.Fatalf("err = %v, want %v", err, tc.wantErrIs)
				}
			case tc.wantErr != "":
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v, want %q", err, tc.wantErr)
				}
			default:
				if err != nil {
					t.Fatalf("Download: %v", err)
				}
				if res.MIMEType != tc.wantMIME || len(res.Data) != tc.wantLen {
					t.Errorf("got (%q, %d bytes), want (%q, %d bytes)", res.MIMEType, len(res.Data), tc.wantMIME, tc.wantLen)
				}
				return
			}
			if res != nil {
				t.Errorf("result = %+v, want nil on error", res)
			}
		})
	}
}

func TestDownload_StealthClientFallback(t *testing.T) {
	t.Parallel()

	srv := imageServer(t, "image/gif", "GIF89a_FAKE_IMAGE_DATA", http.StatusOK)
	blocked := imageServer(t, "", "", http.StatusForbidden)

	stealthClient := blocked.Client()
	stealthClient.Transport = rewriteHost(blocked.URL)
	regularClient := srv.Client()
	regularClient.Transport = rewriteHost(srv.URL)

	cfg := &Config{StealthClient: stealthClient, HTTPClient: regularClient}
	res, err := cfg.Download(context.Background(), "http://example.com/image.gif", DownloadOpts{})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if res.MIMEType != "image/gif" {
		t.Errorf("MIMEType = %q, want image/gif from the fallback client", res.MIMEType)
	}
}

// rewriteHost sends every request to target regardless of the URL host.
type rewriteHost string

func (rt rewriteHost) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.URL.Scheme = "http"
	req2.URL.Host = strings.TrimPrefix(string(rt), "http://")
	return http.DefaultTransport.RoundTrip(req2)
}

func TestDownload_DefaultLimitKeepsOversizeDetectable(t *testing.T) {
	t.Parallel()

	const limit = 64
	srv := imageServer(t, "image/png", strings.Repeat("X", 4*limit), http.StatusOK)

	cfg := &Config{HTTPClient: srv.Client(), Heuristics: HeuristicConfig{MaxFileSize: limit}}
	res, err := cfg.Download(context.Background(), srv.URL+"/huge.png", DownloadOpts{})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(res.Data) != limit+1 {
		t.Fatalf("Data len = %d, want %d", len(res.Data), limit+1)
	}

	out := cfg.Analyze(context.Background(), res.Data)
	if out.OK() || out.Err.Kind != ErrorValidation {
		t.Errorf("truncated oversize body not rejected: %+v", out)
	}
}

func TestDownload_UserAgent(t *testing.T) {
	t.Parallel()

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("FAKEIMAGEDATA"))
	}))
	defer srv.Close()

	cfg := &Config{HTTPClient: srv.Client()}
	if _, err := cfg.Download(context.Background(), srv.URL, DownloadOpts{}); err != nil {
		t.Fatal(err)
	}
	if got != defaultUserAgent {
		t.Errorf("User-Agent = %q, want default", got)
	}

	cfg.UserAgent = "detector-test/1.0"
	if _, err := cfg.Download(context.Background(), srv.URL, DownloadOpts{}); err != nil {
		t.Fatal(err)
	}
	if got != "detector-test/1.0" {
		t.Errorf("User-Agent = %q, want configured", got)
	}
}

func TestDownload_DefaultClientRefusesLoopback(t *testing.T) {
	t.Parallel()

	srv := imageServer(t, "image/png", "FAKEIMAGEDATA", http.StatusOK)

	_, err := (&Config{}).Download(context.Background(), srv.URL+"/img.png", DownloadOpts{})
	if !errors.Is(err, ErrBlockedAddress) {
		t.Fatalf("err = %v, want ErrBlockedAddress", err)
	}
}

func TestDownload_RejectsScheme(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"file:///etc/passwd", "ftp://example.com/a.png", "gopher://example.com", "example.com/a.png"} {
		_, err := (&Config{}).Download(context.Background(), raw, DownloadOpts{})
		if !errors.Is(err, ErrUnsupportedScheme) {
			t.Errorf("Download(%q) err = %v, want ErrUnsupportedScheme", raw, err)
		}
	}
}

func TestDownload_RedirectPolicy(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/loop":
			http.Redirect(w, r, "/loop", http.StatusFound)
		case "/ftp":
			http.Redirect(w, r, "ftp://example.com/a.png", http.StatusFound)
		}
	}))
	defer srv.Close()

	client := srv.Client()
	client.CheckRedirect = checkRedirect
	cfg := &Config{HTTPClient: client}

	_, err := cfg.Download(context.Background(), srv.URL+"/loop", DownloadOpts{})
	if err == nil || !strings.Contains(err.Error(), "too many redirects") {
		t.Errorf("loop err = %v, want too many redirects", err)
	}
	_, err = cfg.Download(context.Background(), srv.URL+"/ftp", DownloadOpts{})
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("ftp redirect err = %v, want ErrUnsupportedScheme", err)
	}
}

func TestIsPublic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		addr string
		want bool
	}{
		{"8.8.8.8", true},
		{"2606:4700:4700::1111", true},
		{"127.0.0.1", false},
		{"::1", false},
		{"10.1.2.3", false},
		{"172.16.0.1", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"fe80::1", false},
		{"fd00::1", false},
		{"0.0.0.0", false},
		{"100.64.0.1", false},
		{"::ffff:127.0.0.1", false},
	}
	for _, tc := range tests {
		if got := isPublic(netip.MustParseAddr(tc.addr)); got != tc.want {
			t.Errorf("isPublic(%s) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}
