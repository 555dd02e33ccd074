package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ServiceURLOptions relaxes backend URL validation for development setups.
type ServiceURLOptions struct {
	AllowHTTP          bool
	AllowLocalNetworks bool
}

// ValidateServiceURL checks a backend base URL before any request is sent to
// it. Only http(s) URLs without query, fragment or credentials are accepted;
// plain http and local targets need to be allowed explicitly.
func ValidateServiceURL(rawURL string, opts ServiceURLOptions) error {
	if strings.TrimSpace(rawURL) == "" {
		return errors.New("URL is empty")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(err, "invalid URL")
	}

	switch parsed.Scheme {
	case "https":
	case "http":
		if !opts.AllowHTTP {
			return errors.New("http scheme is not allowed")
		}
	default:
		return errors.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}

	if parsed.User != nil {
		return errors.New("URL must not carry credentials")
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return errors.New("base URL must not carry a query or fragment")
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return errors.New("URL host is required")
	}
	if opts.AllowLocalNetworks {
		return nil
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return errors.Errorf("local hostname %q is not allowed", host)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.Zone() != "" {
			return errors.Errorf("zoned IP address %q is not allowed", host)
		}
		addr = addr.Unmap()
		if addr.IsUnspecified() || addr.IsMulticast() || addr.IsLoopback() || addr.IsPrivate() ||
			addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
			return errors.Errorf("local network IP %q is not allowed", host)
		}
	}
	return nil
}
