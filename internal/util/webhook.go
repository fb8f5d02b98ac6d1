package util

import (
	"fmt"
	"net"
	neturl "net/url"
	"strings"
)

// ValidateWebhookURL parses an http(s) URL. Unless allowPrivate is set, the
// host must resolve only to public addresses (loopback names are allowed for
// local testing).
func ValidateWebhookURL(raw string, allowPrivate bool) (*neturl.URL, error) {
	u, err := neturl.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("missing host")
	}
	if allowPrivate || host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return u, nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	for _, ip := range ips {
		if IsPrivateIP(ip) {
			return nil, fmt.Errorf("disallowed host IP: %s", ip.String())
		}
	}
	return u, nil
}

// IsPrivateIP reports loopback, link-local, RFC1918 and IPv6 ULA addresses.
func IsPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 10:
			return true
		case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
			return true
		case ip4[0] == 192 && ip4[1] == 168:
			return true
		}
		return false
	}

	// IPv6 unique local addresses fc00::/7
	return strings.HasPrefix(strings.ToLower(ip.String()), "fc") || strings.HasPrefix(strings.ToLower(ip.String()), "fd")
}
