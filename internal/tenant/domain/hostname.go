package domain

import (
	"regexp"
	"strings"
)

// DNS label per RFC 1034/1035: letters, digits, hyphens; no leading or
// trailing hyphen. Underscores are the common mistake here (schema names leak
// into hostnames), so normalization maps them to hyphens.
var labelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ValidHostname reports whether host is an RFC-compliant hostname.
// A trailing :port (development localhost domains) is allowed and ignored.
func ValidHostname(host string) bool {
	host = stripPort(strings.ToLower(host))
	if host == "" || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if len(label) > 63 || !labelRe.MatchString(label) {
			return false
		}
	}
	return true
}

// NormalizeHostname lowercases host and replaces underscores with hyphens.
// Returns the normalized hostname and whether it differs from the input.
func NormalizeHostname(host string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(host))
	n = strings.ReplaceAll(n, "_", "-")
	return n, n != host
}

// SubdomainFor builds the canonical hostname for a tenant schema under base.
// Underscored schema names become hyphenated hosts. For localhost bases a dev
// port is appended when given (tenant-laura.localhost:8000).
func SubdomainFor(schema, base, devPort string) string {
	label, _ := NormalizeHostname(schema)
	host := label + "." + base
	if base == "localhost" && devPort != "" {
		host += ":" + devPort
	}
	return host
}

func stripPort(host string) string {
	if i := strings.LastIndex(host, ":"); i >= 0 {
		return host[:i]
	}
	return host
}
