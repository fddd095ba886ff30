package entity

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// maxURLLength bounds source URLs accepted into the registry.
const maxURLLength = 2048

// ValidateURL checks that rawURL is an absolute http(s) URL with a host.
//
// When allowPrivate is false, hosts that are literal loopback, link-local or
// private addresses are rejected, as are names that resolve to one. DNS
// failures are not treated as validation errors: the fetcher re-checks the
// address at dial time.
func ValidateURL(rawURL string, allowPrivate bool) error {
	if strings.TrimSpace(rawURL) == "" {
		return &ValidationError{Field: "url", Message: "URL is required"}
	}
	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   "url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Field: "url", Message: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "URL must use http or https scheme"}
	}
	if u.Hostname() == "" {
		return &ValidationError{Field: "url", Message: "URL must have a valid host"}
	}
	if allowPrivate {
		return nil
	}

	host := u.Hostname()
	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIP(ip) {
			return &ValidationError{Field: "url", Message: "url cannot point to private network"}
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return &ValidationError{Field: "url", Message: "url cannot point to private network"}
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if IsPrivateIP(ip) {
			return &ValidationError{Field: "url", Message: "url cannot point to private network"}
		}
	}
	return nil
}

// IsPrivateIP reports whether ip is loopback, link-local (cloud metadata
// included), RFC 1918 / RFC 4193 private, or unspecified.
func IsPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() ||
		ip.IsUnspecified()
}
