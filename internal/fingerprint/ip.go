package fingerprint

import (
	"net"
	"strings"
)

// IPClass categorizes a request's source address.
type IPClass string

const (
	IPPrivate     IPClass = "private"
	IPDatacenter  IPClass = "datacenter"
	IPResidential IPClass = "residential"
)

// datacenterPrefixes is a small, illustrative table of CIDR blocks commonly
// announced by cloud/hosting providers. Production deployments would load
// this from a threat-feed fetcher rather than a static list.
var datacenterPrefixes = []string{
	"3.0.0.0/8",     // AWS
	"13.32.0.0/15",  // AWS CloudFront
	"20.0.0.0/8",    // Azure
	"34.0.0.0/8",    // GCP
	"35.184.0.0/13", // GCP
	"104.16.0.0/12", // Cloudflare
	"143.244.0.0/16",
	"157.245.0.0/16", // DigitalOcean
	"159.89.0.0/16",  // DigitalOcean
}

var datacenterNets = mustParseCIDRs(datacenterPrefixes)

func mustParseCIDRs(cidrs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}

// ClassifyIP classifies ip into private/datacenter/residential.
func ClassifyIP(ip string) IPClass {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return IPResidential
	}
	if parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsLinkLocalUnicast() {
		return IPPrivate
	}
	for _, n := range datacenterNets {
		if n.Contains(parsed) {
			return IPDatacenter
		}
	}
	return IPResidential
}

// IPPrefix3 returns the first three octets of an IPv4 address (or the
// first three hextets for IPv6), the granularity hashed into the
// fingerprint so that NAT/DHCP churn within a /24 doesn't change it.
func IPPrefix3(ip string) string {
	if strings.Contains(ip, ":") {
		parts := strings.Split(ip, ":")
		n := 3
		if len(parts) < n {
			n = len(parts)
		}
		return strings.Join(parts[:n], ":")
	}
	parts := strings.Split(ip, ".")
	if len(parts) < 3 {
		return ip
	}
	return strings.Join(parts[:3], ".")
}
