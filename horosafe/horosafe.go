// Package horosafe provides the input checks shared by the lazyload control
// surfaces and sinks: outbound URL validation (SSRF prevention), image
// identifier validation and bounded reads of remote response bodies.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
)

// MaxIdentifierLen bounds identifiers accepted from HTTP paths and MCP calls.
const MaxIdentifierLen = 128

var (
	// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
	ErrUnsafeScheme = errors.New("horosafe: only http and https schemes are allowed")
	// ErrSSRF is returned when a URL targets a private or loopback address.
	ErrSSRF = errors.New("horosafe: URL targets a private or loopback address")
	// ErrBadIdentifier is returned by ValidateIdentifier.
	ErrBadIdentifier = errors.New("horosafe: invalid identifier")
	// ErrUnsafeSource is returned by ValidateImageSource.
	ErrUnsafeSource = errors.New("horosafe: unsafe image source")
	// ErrTooLarge is returned by LimitedReadAll when the limit is exceeded.
	ErrTooLarge = errors.New("horosafe: body exceeds limit")
)

// ValidateURL checks that rawURL uses http/https and has a hostname. Unless
// allowPrivate is set, the host must not be (or resolve to) a private or
// loopback address.
func ValidateURL(rawURL string, allowPrivate bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("horosafe: URL has no host")
	}
	if allowPrivate {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return ErrSSRF
		}
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		// Unresolvable now; the sink reports the network error at send time.
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return ErrSSRF
		}
	}
	return nil
}

// ValidateIdentifier accepts tracked image IDs: alphanumerics, underscore,
// hyphen and dot, at most MaxIdentifierLen bytes.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrBadIdentifier)
	}
	if len(s) > MaxIdentifierLen {
		return fmt.Errorf("%w: longer than %d", ErrBadIdentifier, MaxIdentifierLen)
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("%w: character %q", ErrBadIdentifier, r)
		}
	}
	return nil
}

// ValidateImageSource accepts image URLs that are relative, http(s), blob
// or data:image. Script and other schemes are rejected.
func ValidateImageSource(src string) error {
	src = strings.TrimSpace(src)
	u, err := url.Parse(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsafeSource, err)
	}
	switch u.Scheme {
	case "", "http", "https", "blob":
		return nil
	case "data":
		if strings.HasPrefix(strings.ToLower(u.Opaque), "image/") {
			return nil
		}
	}
	return fmt.Errorf("%w: scheme %q", ErrUnsafeSource, u.Scheme)
}

// LimitedReadAll reads at most maxBytes from r.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return data[:maxBytes], ErrTooLarge
	}
	return data, nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}

var privateNets = func() []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7", "100.64.0.0/10"} {
		_, n, err := net.ParseCIDR(cidr)
		if err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}()

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
