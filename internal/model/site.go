package model

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

var ErrEmptyHost = errors.New("empty host")

// SiteHost normalizes a URL or hostname to its registrable domain.
// IP literals and single-label names such as localhost are returned as-is.
func SiteHost(raw string) (Host, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyHost
	}

	hostname := raw
	if net.ParseIP(raw) != nil {
		return Host(strings.ToLower(raw)), nil
	}
	if strings.Contains(raw, "://") || strings.ContainsAny(raw, "/:") {
		target := raw
		if !strings.Contains(raw, "://") {
			target = "//" + raw
		}
		u, err := url.Parse(target)
		if err != nil {
			return "", fmt.Errorf("parse host %q: %w", raw, err)
		}
		hostname = u.Hostname()
	}

	hostname = strings.TrimSuffix(strings.ToLower(hostname), ".")
	if hostname == "" {
		return "", ErrEmptyHost
	}
	if net.ParseIP(hostname) != nil || !strings.Contains(hostname, ".") {
		return Host(hostname), nil
	}

	site, err := publicsuffix.EffectiveTLDPlusOne(hostname)
	if err != nil {
		return "", fmt.Errorf("effective TLD+1 for %s: %w", hostname, err)
	}
	return Host(site), nil
}
