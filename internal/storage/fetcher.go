// Package storage holds the two sides of audio storage: putting uploads into
// S3-compatible object storage and fetching audio bytes back by URL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Fetcher downloads the audio behind a reference URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// ErrTooLarge is returned when the body exceeds the configured limit.
var ErrTooLarge = errors.New("storage: audio exceeds size limit")

// ErrBlockedURL is returned for URLs outside the fetch policy.
var ErrBlockedURL = errors.New("storage: audio url not allowed")

const maxRedirects = 10

// FetchPolicy limits where a fetcher may connect.
type FetchPolicy struct {
	// AllowedHosts, when non-empty, is the full set of hostnames that may be
	// fetched. A leading dot (".example.com") matches subdomains.
	AllowedHosts []string
	// TrustedHosts may resolve to private addresses, e.g. an in-cluster
	// S3 endpoint.
	TrustedHosts []string
	// AllowPrivate turns the private address check off.
	AllowPrivate bool
}

// WithUploadHost returns p extended so the upload bucket host is always
// fetchable, including when it sits on a private network.
func (p FetchPolicy) WithUploadHost(host string) FetchPolicy {
	if host == "" {
		return p
	}
	p.TrustedHosts = append(slices.Clone(p.TrustedHosts), host)
	if len(p.AllowedHosts) > 0 {
		p.AllowedHosts = append(slices.Clone(p.AllowedHosts), host)
	}
	return p
}

func (p FetchPolicy) allowsHost(host string) bool {
	if len(p.AllowedHosts) == 0 {
		return true
	}
	return matchHost(p.AllowedHosts, host)
}

func matchHost(patterns []string, host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "":
		case strings.HasPrefix(p, "."):
			if strings.HasSuffix(host, p) || host == p[1:] {
				return true
			}
		case host == p:
			return true
		}
	}
	return false
}

// HTTPFetcher fetches http(s) URLs with a size cap.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
	Policy   FetchPolicy
}

// NewHTTPFetcher returns a fetcher whose client enforces policy on every
// connection, redirects included.
func NewHTTPFetcher(timeout time.Duration, maxBytes int64, policy FetchPolicy) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	f := &HTTPFetcher{MaxBytes: maxBytes, Policy: policy}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	if !policy.AllowPrivate {
		// a proxy would hide the real destination from the dial check
		tr.Proxy = nil
		d := &guardedDialer{
			dialer:   &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second},
			resolver: net.DefaultResolver,
			trusted:  policy.TrustedHosts,
		}
		tr.DialContext = d.DialContext
	}
	f.Client = &http.Client{
		Timeout:   timeout,
		Transport: tr,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("storage: too many redirects")
			}
			_, err := f.checkURL(req.URL.String())
			return err
		},
	}
	return f
}

func (f *HTTPFetcher) checkURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, fmt.Errorf("storage: invalid audio url %q", rawURL)
	}
	if !f.Policy.allowsHost(u.Hostname()) {
		return nil, fmt.Errorf("%w: host %q", ErrBlockedURL, u.Hostname())
	}
	return u, nil
}

// Fetch GETs rawURL and returns the body.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := f.checkURL(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage: fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("storage: fetch audio: http %d", resp.StatusCode)
	}
	if f.MaxBytes > 0 && resp.ContentLength > f.MaxBytes {
		return nil, ErrTooLarge
	}

	var r io.Reader = resp.Body
	if f.MaxBytes > 0 {
		r = io.LimitReader(resp.Body, f.MaxBytes+1)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("storage: read audio: %w", err)
	}
	if f.MaxBytes > 0 && int64(len(b)) > f.MaxBytes {
		return nil, ErrTooLarge
	}
	if len(b) == 0 {
		return nil, errors.New("storage: empty audio body")
	}
	return b, nil
}

type ipResolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// guardedDialer resolves the host itself and dials only checked addresses,
// so a DNS answer cannot change between the check and the connect.
type guardedDialer struct {
	dialer   *net.Dialer
	resolver ipResolver
	trusted  []string
}

func (d *guardedDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	if matchHost(d.trusted, host) {
		return d.dialer.DialContext(ctx, network, addr)
	}
	ips, err := d.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("storage: no addresses for %q", host)
	}
	for _, ip := range ips {
		if blockedAddr(ip) {
			return nil, fmt.Errorf("%w: %s resolves to %s", ErrBlockedURL, host, ip.Unmap())
		}
	}
	var lastErr error
	for _, ip := range ips {
		c, err := d.dialer.DialContext(ctx, network, net.JoinHostPort(ip.Unmap().String(), port))
		if err == nil {
			return c, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"), // carrier-grade NAT
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("64:ff9b::/96"), // NAT64 can reach v4 internals
}

// blockedAddr reports addresses that are not reachable public unicast.
func blockedAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	if !ip.IsValid() || ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
