package monitor

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// NormalizeURL prefixes scheme to targets that do not carry one
func NormalizeURL(target, scheme string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	return scheme + "://" + target
}

// ParseHostPort extracts host and port from a bare host, host:port or URL target
func ParseHostPort(target, defaultPort string) (string, string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", "", fmt.Errorf("empty target")
	}

	if strings.Contains(target, "://") {
		u, err := url.Parse(target)
		if err != nil {
			return "", "", fmt.Errorf("invalid URL: %w", err)
		}
		host, port := u.Hostname(), u.Port()
		if host == "" {
			return "", "", fmt.Errorf("URL has no host")
		}
		if port == "" {
			port = defaultPort
		}
		return host, port, nil
	}

	// Drop any path left on a scheme-less target
	if i := strings.Index(target, "/"); i >= 0 {
		target = target[:i]
	}

	if host, port, err := net.SplitHostPort(target); err == nil {
		if host == "" {
			return "", "", fmt.Errorf("target has no host")
		}
		return host, port, nil
	}

	// Bare IPv6 literal or plain host
	return strings.Trim(target, "[]"), defaultPort, nil
}

// HostOnly returns the host portion of target, dropping any scheme, port or path
func HostOnly(target string) string {
	host, _, err := ParseHostPort(target, "")
	if err != nil {
		return ""
	}
	return host
}

// TargetGuard blocks probes to addresses operators do not want the engine to reach
type TargetGuard struct {
	allowPrivate bool
	resolver     *net.Resolver
}

// NewTargetGuard creates a guard. Cloud metadata endpoints are always blocked; private,
// loopback and link-local ranges are blocked unless allowPrivate is set.
func NewTargetGuard(allowPrivate bool) *TargetGuard {
	return &TargetGuard{allowPrivate: allowPrivate, resolver: net.DefaultResolver}
}

var metadataHosts = []string{
	"169.254.169.254",
	"metadata.google.internal",
	"169.254.170.2",
	"fd00:ec2::254",
}

// Check resolves target and returns an error when any address is not allowed
func (g *TargetGuard) Check(ctx context.Context, target string) error {
	host := strings.ToLower(HostOnly(target))
	if host == "" {
		return fmt.Errorf("target has no host")
	}

	for _, blocked := range metadataHosts {
		if host == blocked {
			return fmt.Errorf("access to metadata endpoint %s is not allowed", host)
		}
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		addrs, err := g.resolver.LookupIPAddr(ctx, host)
		if err != nil {
			// Resolution failures are reported by the checker itself
			return nil
		}
		for _, a := range addrs {
			ips = append(ips, a.IP)
		}
	}

	for _, ip := range ips {
		for _, blocked := range metadataHosts {
			if ip.String() == blocked {
				return fmt.Errorf("access to metadata endpoint %s is not allowed", ip)
			}
		}
		if g.allowPrivate {
			continue
		}
		if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
			ip.IsMulticast() || ip.IsUnspecified() {
			return fmt.Errorf("IP address %s is not allowed", ip)
		}
	}

	return nil
}
