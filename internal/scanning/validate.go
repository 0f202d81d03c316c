package scanning

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Resolver resolves hostnames to IP addresses. The production
// implementation queries DNS with a short timeout; tests inject a fake.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// metacharPattern matches shell metacharacters. Any occurrence rejects the
// whole spec before any interpretation happens.
var metacharPattern = regexp.MustCompile("[;&|`$(){}<>]")

// forbiddenPatterns are checked against the raw spec first and reject
// unconditionally.
var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`0\.0\.0\.0`),
	regexp.MustCompile(`255\.255\.255\.255`),
	regexp.MustCompile(`224\.\d+\.\d+\.\d+`),
	regexp.MustCompile(`169\.254\.\d+\.\d+`),
}

// hostnamePattern limits hostnames to letters, digits, dots, and hyphens.
var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)

// rangeShapePattern detects a dotted-quad followed by a hyphen, the only
// shape treated as a last-octet range rather than a hostname.
var rangeShapePattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}-`)

// privateRanges are the RFC 1918 ranges plus loopback. Targets outside
// these ranges are accepted with a warning.
var privateRanges = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
)

func mustParseCIDRs(specs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(specs))
	for _, s := range specs {
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

const (
	// maxNetworkSize caps CIDR targets to prevent accidental wide scans.
	maxNetworkSize = 1024

	// maxExampleIPs bounds the resolved address sample for display.
	maxExampleIPs = 3

	// maxHostnameLen and maxLabelLen follow DNS name limits.
	maxHostnameLen = 253
	maxLabelLen    = 63
)

// Validator checks raw target specifications before any process is spawned.
type Validator struct {
	resolver Resolver
}

// NewValidator creates a validator using the given hostname resolver.
func NewValidator(resolver Resolver) *Validator {
	return &Validator{resolver: resolver}
}

// Tokens splits a raw target spec on commas and whitespace.
func Tokens(raw string) []string {
	return strings.Fields(strings.ReplaceAll(strings.TrimSpace(raw), ",", " "))
}

// Validate checks the whole target spec. A single invalid token
// invalidates the entire request.
func (v *Validator) Validate(ctx context.Context, raw string) TargetValidationResult {
	raw = strings.TrimSpace(raw)
	result := TargetValidationResult{
		Target:      raw,
		ResolvedIPs: []string{},
		Warnings:    []string{},
	}

	if raw == "" {
		result.Message = "target cannot be empty"
		return result
	}

	if metacharPattern.MatchString(raw) {
		result.Message = "target contains forbidden characters"
		return result
	}

	for _, pattern := range forbiddenPatterns {
		if pattern.MatchString(raw) {
			result.Message = fmt.Sprintf("forbidden target pattern detected: %s", pattern.String())
			return result
		}
	}

	tokens := Tokens(raw)
	if len(tokens) == 0 {
		result.Message = "target cannot be empty"
		return result
	}

	for _, token := range tokens {
		if invalid := v.validateToken(ctx, token, &result); invalid != "" {
			result.Message = invalid
			result.ResolvedIPs = []string{}
			return result
		}
	}

	result.IsValid = true
	result.Message = "targets are valid"
	return result
}

// validateToken classifies one token and appends resolved addresses and
// warnings. A non-empty return is the rejection message.
func (v *Validator) validateToken(ctx context.Context, token string, result *TargetValidationResult) string {
	// Single IP literal
	if ip := net.ParseIP(token); ip != nil {
		if !isPrivateIP(ip) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("public IP address detected: %s", token))
		}
		result.ResolvedIPs = append(result.ResolvedIPs, ip.String())
		return ""
	}

	// CIDR network
	if strings.Contains(token, "/") {
		return v.validateCIDR(token, result)
	}

	// Hyphenated last-octet range
	if rangeShapePattern.MatchString(token) {
		if !validIPRange(token) {
			return fmt.Sprintf("invalid IP range format: %s", token)
		}
		result.Warnings = append(result.Warnings, fmt.Sprintf("IP range format: %s", token))
		return ""
	}

	// Hostname
	if validHostname(token) {
		v.resolveHostname(ctx, token, result)
		return ""
	}

	return fmt.Sprintf("unrecognized target format: %s", token)
}

func (v *Validator) validateCIDR(token string, result *TargetValidationResult) string {
	_, network, err := net.ParseCIDR(token)
	if err != nil {
		return fmt.Sprintf("invalid CIDR: %s", token)
	}

	ones, bits := network.Mask.Size()
	size := 1
	if bits-ones < 63 {
		size = 1 << (bits - ones)
	} else {
		size = maxNetworkSize + 1
	}
	if size > maxNetworkSize {
		return fmt.Sprintf("network too large: %s (%d addresses)", token, size)
	}

	for i, ip := 0, nextIP(network.IP); i < maxExampleIPs && network.Contains(ip); i++ {
		result.ResolvedIPs = append(result.ResolvedIPs, ip.String())
		ip = nextIP(ip)
	}
	return ""
}

func (v *Validator) resolveHostname(ctx context.Context, token string, result *TargetValidationResult) {
	if v.resolver == nil {
		return
	}
	addrs, err := v.resolver.LookupHost(ctx, token)
	if err != nil || len(addrs) == 0 {
		// DNS failure downgrades to a warning, not a rejection.
		result.Warnings = append(result.Warnings, fmt.Sprintf("could not resolve hostname: %s", token))
		return
	}
	result.ResolvedIPs = append(result.ResolvedIPs, addrs[0])
}

func isPrivateIP(ip net.IP) bool {
	for _, network := range privateRanges {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// validHostname applies DNS syntax limits: length, character set, and
// per-label rules.
func validHostname(hostname string) bool {
	if hostname == "" || len(hostname) > maxHostnameLen {
		return false
	}
	if !hostnamePattern.MatchString(hostname) {
		return false
	}
	if strings.HasPrefix(hostname, ".") || strings.HasSuffix(hostname, ".") {
		return false
	}
	if strings.HasPrefix(hostname, "-") || strings.HasSuffix(hostname, "-") {
		return false
	}
	for _, label := range strings.Split(hostname, ".") {
		if label == "" || len(label) > maxLabelLen {
			return false
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}
	return true
}

// validIPRange checks the a.b.c.d-e form: base must parse, the end octet
// must be a decimal <=255 strictly greater than the base's last octet,
// and the span must not exceed 254.
func validIPRange(token string) bool {
	if strings.Count(token, "-") != 1 {
		return false
	}

	baseIP, endPart, _ := strings.Cut(token, "-")
	ip := net.ParseIP(baseIP)
	if ip == nil || ip.To4() == nil {
		return false
	}

	end, err := strconv.Atoi(endPart)
	if err != nil || end > 255 {
		return false
	}

	octets := strings.Split(baseIP, ".")
	start, err := strconv.Atoi(octets[len(octets)-1])
	if err != nil {
		return false
	}

	if end <= start || end-start > 254 {
		return false
	}
	return true
}

// nextIP returns the address immediately after ip.
func nextIP(ip net.IP) net.IP {
	next := make(net.IP, len(ip))
	copy(next, ip)
	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			break
		}
	}
	return next
}

// defaultDNSTimeout bounds each hostname resolution.
const defaultDNSTimeout = 5 * time.Second
