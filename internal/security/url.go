// Package security guards the references lesson authors can point a step at.
package security

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URLPolicy decides which http(s) URLs may be fetched.
// The zero value blocks internal networks.
type URLPolicy struct {
	// AllowPrivate permits loopback and private addresses. Tests that fetch
	// from httptest servers and local lesson servers set it.
	AllowPrivate bool

	// Resolver looks up hostnames so names pointing at internal
	// addresses are rejected too. Nil skips resolution.
	Resolver *net.Resolver
}

// ValidateHTTPURL checks rawURL with the default policy.
func ValidateHTTPURL(rawURL string) error {
	return URLPolicy{}.Check(context.Background(), rawURL)
}

// Check rejects non-http(s) URLs and, unless AllowPrivate is set, requests
// to localhost, private ranges, link-local addresses and cloud metadata
// endpoints.
func (p URLPolicy) Check(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a host")
	}

	if p.AllowPrivate {
		return nil
	}

	hostLower := strings.ToLower(host)
	if hostLower == "localhost" || hostLower == "localhost.localdomain" {
		return fmt.Errorf("requests to localhost are not allowed")
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}

	if p.Resolver == nil {
		return nil
	}
	addrs, err := p.Resolver.LookupIPAddr(ctx, host)
	if err != nil {
		// Unresolvable hosts fail at request time with a clearer error.
		return nil
	}
	for _, addr := range addrs {
		if err := checkIP(addr.IP); err != nil {
			return fmt.Errorf("%s resolves to a blocked address: %w", host, err)
		}
	}
	return nil
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("requests to loopback addresses are not allowed")
	case ip.IsPrivate():
		return fmt.Errorf("requests to private network addresses are not allowed")
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("requests to link-local addresses are not allowed")
	case ip.IsUnspecified():
		return fmt.Errorf("requests to unspecified addresses are not allowed")
	}
	return nil
}
