package storage

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// httptest servers listen on loopback.
var local = FetchPolicy{AllowPrivate: true}

func TestHTTPFetcher_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	b, err := NewHTTPFetcher(time.Second, 1024, local).Fetch(context.Background(), srv.URL+"/a.mp3")
	if err != nil || string(b) != "audio-bytes" {
		t.Fatalf("Fetch: b=%q err=%v", b, err)
	}
}

func TestHTTPFetcher_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/big":
			// no Content-Length: chunked
			w.(http.Flusher).Flush()
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case "/empty":
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, 16, local)
	ctx := context.Background()

	if _, err := f.Fetch(ctx, srv.URL+"/missing"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 error, got %v", err)
	}
	if _, err := f.Fetch(ctx, srv.URL+"/big"); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, err := f.Fetch(ctx, srv.URL+"/empty"); err == nil {
		t.Fatal("expected error for empty body")
	}
	for _, bad := range []string{"", "ftp://x/a", "not a url", "file:///etc/passwd"} {
		if _, err := f.Fetch(ctx, bad); err == nil {
			t.Fatalf("expected invalid url error for %q", bad)
		}
	}
}

func TestHTTPFetcher_ContentLengthOverLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	if _, err := NewHTTPFetcher(time.Second, 10, local).Fetch(context.Background(), srv.URL); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestHTTPFetcher_BlocksInternalAddresses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("secret"))
	}))
	defer srv.Close()
	u, _ := url.Parse(srv.URL)

	f := NewHTTPFetcher(time.Second, 1024, FetchPolicy{})
	for _, target := range []string{
		srv.URL + "/a.mp3",
		"http://169.254.169.254/latest/meta-data/iam/security-credentials/",
		"http://[::1]:" + u.Port() + "/a.mp3",
		"http://10.0.0.5/a.mp3",
		"http://0.0.0.0:" + u.Port() + "/a.mp3",
	} {
		if _, err := f.Fetch(context.Background(), target); !errors.Is(err, ErrBlockedURL) {
			t.Fatalf("%s: expected ErrBlockedURL, got %v", target, err)
		}
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("internal server was reached %d times", n)
	}
}

func TestHTTPFetcher_TrustedHostMayBePrivate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, 1024, FetchPolicy{TrustedHosts: []string{"127.0.0.1"}})
	if b, err := f.Fetch(context.Background(), srv.URL+"/a.mp3"); err != nil || string(b) != "audio-bytes" {
		t.Fatalf("Fetch: b=%q err=%v", b, err)
	}
}

func TestHTTPFetcher_AllowedHosts(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/redirect" {
			u, _ := url.Parse(srvURL)
			http.Redirect(w, r, "http://localhost:"+u.Port()+"/a.mp3", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()
	srvURL = srv.URL

	f := NewHTTPFetcher(time.Second, 1024, FetchPolicy{AllowPrivate: true, AllowedHosts: []string{"127.0.0.1"}})
	ctx := context.Background()

	if b, err := f.Fetch(ctx, srv.URL+"/a.mp3"); err != nil || string(b) != "audio-bytes" {
		t.Fatalf("Fetch: b=%q err=%v", b, err)
	}
	if _, err := f.Fetch(ctx, "https://attacker.example/a.mp3"); !errors.Is(err, ErrBlockedURL) {
		t.Fatalf("expected ErrBlockedURL for foreign host, got %v", err)
	}
	if _, err := f.Fetch(ctx, srv.URL+"/redirect"); !errors.Is(err, ErrBlockedURL) {
		t.Fatalf("expected redirect off the allowlist to fail, got %v", err)
	}
}

type staticResolver []netip.Addr

func (r staticResolver) LookupNetIP(context.Context, string, string) ([]netip.Addr, error) {
	return r, nil
}

func TestGuardedDialer_AnyInternalAnswerBlocks(t *testing.T) {
	d := &guardedDialer{
		dialer:   &net.Dialer{Timeout: time.Second},
		resolver: staticResolver{netip.MustParseAddr("93.184.216.34"), netip.MustParseAddr("::ffff:127.0.0.1")},
	}
	if _, err := d.DialContext(context.Background(), "tcp", "audio.example.com:443"); !errors.Is(err, ErrBlockedURL) {
		t.Fatalf("expected ErrBlockedURL, got %v", err)
	}
}

func Test_blockedAddr(t *testing.T) {
	cases := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"224.0.0.1", true},
		{"::1", true},
		{"fe80::1", true},
		{"fd00::1", true},
		{"::ffff:10.0.0.1", true},
		{"8.8.8.8", false},
		{"2606:4700:4700::1111", false},
	}
	for _, tc := range cases {
		if got := blockedAddr(netip.MustParseAddr(tc.ip)); got != tc.want {
			t.Errorf("blockedAddr(%s)=%v want %v", tc.ip, got, tc.want)
		}
	}
}

func Test_matchHost(t *testing.T) {
	patterns := []string{"minio", ".amazonaws.com"}
	cases := []struct {
		host string
		want bool
	}{
		{"minio", true},
		{"MINIO", true},
		{"bucket.s3.us-east-1.amazonaws.com", true},
		{"amazonaws.com", true},
		{"evilamazonaws.com", false},
		{"minio.evil.test", false},
	}
	for _, tc := range cases {
		if got := matchHost(patterns, tc.host); got != tc.want {
			t.Errorf("matchHost(%q)=%v want %v", tc.host, got, tc.want)
		}
	}
}

func TestFetchPolicy_WithUploadHost(t *testing.T) {
	unrestricted := FetchPolicy{}.WithUploadHost("minio")
	if len(unrestricted.AllowedHosts) != 0 || !matchHost(unrestricted.TrustedHosts, "minio") {
		t.Fatalf("unrestricted policy: %+v", unrestricted)
	}

	base := FetchPolicy{AllowedHosts: []string{"cdn.example.com"}}
	p := base.WithUploadHost("minio")
	if !p.allowsHost("minio") || !p.allowsHost("cdn.example.com") || p.allowsHost("other.example.com") {
		t.Fatalf("restricted policy: %+v", p)
	}
	if len(base.AllowedHosts) != 1 {
		t.Fatalf("base policy modified: %+v", base)
	}
	if same := base.WithUploadHost(""); len(same.TrustedHosts) != 0 || len(same.AllowedHosts) != 1 {
		t.Fatalf("empty host changed policy: %+v", same)
	}
}
