package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"mtastsd/internal/log"
)

// ErrNotFound is returned when the queried name does not exist.
var ErrNotFound = errors.New("resolver: name does not exist")

// TXTResolver looks up DNS TXT records. Each element of the result is one resource record, with
// its character-strings concatenated.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// TXTResolverFunc adapts an ordinary function to the TXTResolver interface.
type TXTResolverFunc func(ctx context.Context, name string) ([]string, error)

// LookupTXT calls f.
func (f TXTResolverFunc) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return f(ctx, name)
}

// DNSResolver is a TXTResolver that queries recursive nameservers directly.
type DNSResolver struct {
	client    *dns.Client
	tcpClient *dns.Client
	servers   selector
	logger    log.Logger
}

// DNSResolverOpts formalizes DNS resolver configuration options.
type DNSResolverOpts struct {
	// Nameservers are the host:port addresses of the recursive nameservers to query. When empty,
	// the nameservers listed in ResolvConf are used.
	Nameservers []string
	// ResolvConf is the path of the resolv.conf file consulted when no nameservers are given.
	ResolvConf string
	// LoadBalancingPolicy determines the order in which nameservers are tried.
	LoadBalancingPolicy LoadBalancingPolicy
	// Net is the transport used for queries: udp or tcp. Truncated UDP responses are always
	// retried over TCP.
	Net string
	// Timeout bounds each exchange with a nameserver. Zero uses the DNS client defaults.
	Timeout time.Duration
}

// NewDNSResolver creates a resolver from the specified options. It returns an error if no
// nameserver can be determined.
func NewDNSResolver(opts DNSResolverOpts, logger log.Logger) (*DNSResolver, error) {
	servers := opts.Nameservers

	if len(servers) == 0 {
		path := opts.ResolvConf
		if path == "" {
			path = "/etc/resolv.conf"
		}

		conf, err := dns.ClientConfigFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("resolver: error reading resolver config: path=%s err=%v", path, err)
		}

		for _, server := range conf.Servers {
			servers = append(servers, net.JoinHostPort(server, conf.Port))
		}
	}

	if len(servers) == 0 {
		return nil, fmt.Errorf("resolver: no nameservers configured")
	}

	network := opts.Net
	if network == "" {
		network = "udp"
	}

	return &DNSResolver{
		client:    &dns.Client{Net: network, Timeout: opts.Timeout},
		tcpClient: &dns.Client{Net: "tcp", Timeout: opts.Timeout},
		servers:   newSelector(servers, opts.LoadBalancingPolicy),
		logger:    logger,
	}, nil
}

// LookupTXT queries the TXT records for name. Nameservers are tried in the order chosen by the
// load balancing policy until one of them answers; a negative answer from a nameserver is final.
func (r *DNSResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	query := new(dns.Msg)
	query.SetQuestion(dns.Fqdn(name), dns.TypeTXT)

	var lastErr error

	for _, server := range r.servers.order() {
		resp, err := r.exchange(ctx, query, server)
		if err != nil {
			r.logger.Debug("resolver: exchange failed: server=%s name=%s err=%v", server, name, err)
			lastErr = err
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return nil, fmt.Errorf("%w: name=%s", ErrNotFound, name)
		default:
			return nil, fmt.Errorf(
				"resolver: query failed: name=%s rcode=%s",
				name,
				dns.RcodeToString[resp.Rcode],
			)
		}

		var records []string
		for _, rr := range resp.Answer {
			if txt, ok := rr.(*dns.TXT); ok {
				records = append(records, strings.Join(txt.Txt, ""))
			}
		}

		r.logger.Deferred(log.Debug, func() string {
			return fmt.Sprintf("resolver: answered: server=%s name=%s records=%q", server, name, records)
		})

		return records, nil
	}

	return nil, fmt.Errorf("resolver: all nameservers failed: name=%s err=%w", name, lastErr)
}

// exchange performs a single query against server, retrying over TCP if the UDP answer was
// truncated.
func (r *DNSResolver) exchange(ctx context.Context, query *dns.Msg, server string) (*dns.Msg, error) {
	resp, _, err := r.client.ExchangeContext(ctx, query, server)
	if err != nil {
		return nil, err
	}

	if resp.Truncated && r.client.Net != "tcp" {
		resp, _, err = r.tcpClient.ExchangeContext(ctx, query, server)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}
