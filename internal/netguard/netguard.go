// Package netguard keeps user supplied URLs away from loopback, private and
// link-local networks.
package netguard

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"karpet/internal/domain"
)

const maxRedirects = 10

// cgnat is the shared address space (100.64.0.0/10) carriers and cloud
// VPCs use internally.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// Blocked reports whether ip must never be dialed on behalf of a caller.
func Blocked(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified() ||
		cgnat.Contains(ip)
}

// ValidateURL accepts absolute http(s) URLs whose host is not a blocked
// address literal or a localhost name. Hostnames are checked again at dial
// time by Control, after resolution.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid url: %v", domain.ErrInvalidArgument, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: only http and https urls are allowed", domain.ErrInvalidArgument)
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return nil, fmt.Errorf("%w: url has no host", domain.ErrInvalidArgument)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return nil, fmt.Errorf("%w: host %s is not allowed", domain.ErrInvalidArgument, host)
	}
	if ip := net.ParseIP(host); ip != nil && Blocked(ip) {
		return nil, fmt.Errorf("%w: address %s is not allowed", domain.ErrInvalidArgument, host)
	}
	return u, nil
}

// Control is a net.Dialer hook rejecting connections to blocked addresses.
// It sees the resolved IP, so DNS names pointing inward are caught too.
func Control(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: invalid dial address %q", domain.ErrInvalidArgument, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || Blocked(ip) {
		return fmt.Errorf("%w: dial to %s blocked", domain.ErrInvalidArgument, host)
	}
	return nil
}

// NewClient returns an HTTP client that only connects to public addresses
// and re-validates every redirect target.
func NewClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
		Control:   Control,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			if _, err := ValidateURL(req.URL.String()); err != nil {
				return fmt.Errorf("redirect blocked: %w", err)
			}
			return nil
		},
	}
}
