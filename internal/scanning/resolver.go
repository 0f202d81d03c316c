package scanning

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// DNSResolver resolves hostnames via the system's configured nameservers.
type DNSResolver struct {
	client  *dns.Client
	servers []string
}

// NewDNSResolver reads resolv.conf and builds a resolver with the given
// per-query timeout. A zero timeout uses a 5 second default.
func NewDNSResolver(timeout time.Duration) (*DNSResolver, error) {
	if timeout <= 0 {
		timeout = defaultDNSTimeout
	}

	cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil {
		return nil, fmt.Errorf("failed to read resolver configuration: %w", err)
	}

	servers := make([]string, 0, len(cfg.Servers))
	for _, server := range cfg.Servers {
		servers = append(servers, server+":"+cfg.Port)
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("no nameservers configured")
	}

	return &DNSResolver{
		client:  &dns.Client{Timeout: timeout},
		servers: servers,
	}, nil
}

// LookupHost queries A records for the hostname against each configured
// nameserver until one answers.
func (r *DNSResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		response, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		if response.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("dns query for %s returned rcode %d", host, response.Rcode)
			continue
		}

		var addrs []string
		for _, answer := range response.Answer {
			if a, ok := answer.(*dns.A); ok {
				addrs = append(addrs, a.A.String())
			}
		}
		if len(addrs) > 0 {
			return addrs, nil
		}
		lastErr = fmt.Errorf("no A records for %s", host)
	}
	return nil, lastErr
}
