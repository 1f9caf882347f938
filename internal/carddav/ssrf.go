package carddav

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"contact-sync/internal/common/errors"
)

// URLPolicy decides which CardDAV server addresses may be contacted.
type URLPolicy struct {
	// AllowInsecure permits http:// URLs.
	AllowInsecure bool
	// AllowPrivateHosts permits loopback, private and link-local targets.
	AllowPrivateHosts bool
	// Resolver overrides net.DefaultResolver.
	Resolver interface {
		LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	}
}

// ValidateServerURL parses raw and rejects anything the policy forbids:
// non-https schemes, embedded credentials and hosts that resolve to
// internal addresses.
func ValidateServerURL(ctx context.Context, raw string, policy URLPolicy) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.ValidationError("server URL is not a valid URL").WithCause(err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !policy.AllowInsecure {
			return nil, errors.ValidationError("server URL must use https")
		}
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unsupported URL scheme %q", u.Scheme))
	}
	if u.User != nil {
		return nil, errors.ValidationError("server URL must not embed credentials")
	}
	host := u.Hostname()
	if host == "" {
		return nil, errors.ValidationError("server URL has no host")
	}

	if policy.AllowPrivateHosts {
		return u, nil
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return nil, errors.ValidationError("server URL points to a local address")
	}

	ips, err := resolve(ctx, host, policy)
	if err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("cannot resolve host %q", host)).WithCause(err)
	}
	for _, ip := range ips {
		if err := CheckAddress(ip); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func resolve(ctx context.Context, host string, policy URLPolicy) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	resolver := policy.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	addrs, err := resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no addresses for %s", host)
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// CheckAddress rejects addresses that are not publicly routable. It also
// serves as the dial guard of the transport.
func CheckAddress(ip net.IP) error {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() || cgnat.Contains(ip) {
		return errors.ValidationError("server URL points to a private or local address").
			WithContext("address", ip.String())
	}
	return nil
}
