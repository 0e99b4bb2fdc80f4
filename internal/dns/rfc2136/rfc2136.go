// Package rfc2136 manages records on an authoritative server through DNS
// dynamic updates (RFC 2136), optionally signed with TSIG. Zone contents are
// read with AXFR.
package rfc2136

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	mdns "github.com/miekg/dns"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns"
)

func init() {
	dns.Register("rfc2136", func(log logr.Logger, settings map[string]string) (dns.Store, error) {
		return New(log, settings)
	})
}

var tsigAlgorithms = map[string]string{
	"hmac-sha1":   mdns.HmacSHA1,
	"hmac-sha224": mdns.HmacSHA224,
	"hmac-sha256": mdns.HmacSHA256,
	"hmac-sha384": mdns.HmacSHA384,
	"hmac-sha512": mdns.HmacSHA512,
}

// Store implements dns.Store against one primary server.
type Store struct {
	server     string
	network    string
	tsigName   string
	tsigSecret string
	tsigAlgo   string
	defaultTTL uint32
	timeout    time.Duration
	log        logr.Logger

	mu sync.Mutex
}

// New creates an RFC 2136 store.
// Required settings: server (host or host:port).
// Optional settings: tsig_name, tsig_secret (base64), tsig_algorithm
// (default hmac-sha256), default_ttl (default 3600), timeout (seconds,
// default 10), net ("udp" or "tcp", default "udp").
func New(log logr.Logger, settings map[string]string) (*Store, error) {
	server := settings["server"]
	if server == "" {
		return nil, fmt.Errorf("rfc2136: missing required setting 'server'")
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	s := &Store{
		server:     server,
		network:    "udp",
		defaultTTL: 3600,
		timeout:    10 * time.Second,
		log:        log,
	}

	if name := settings["tsig_name"]; name != "" {
		secret := settings["tsig_secret"]
		if secret == "" {
			return nil, fmt.Errorf("rfc2136: tsig_name set without tsig_secret")
		}
		algo := mdns.HmacSHA256
		if v := settings["tsig_algorithm"]; v != "" {
			a, ok := tsigAlgorithms[strings.ToLower(strings.TrimSuffix(v, "."))]
			if !ok {
				return nil, fmt.Errorf("rfc2136: unsupported tsig_algorithm %q", v)
			}
			algo = a
		}
		s.tsigName = mdns.Fqdn(name)
		s.tsigSecret = secret
		s.tsigAlgo = algo
	}

	if v := settings["default_ttl"]; v != "" {
		ttl, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("rfc2136: invalid default_ttl %q: %w", v, err)
		}
		s.defaultTTL = uint32(ttl)
	}
	switch v := settings["net"]; v {
	case "":
	case "udp", "tcp":
		s.network = v
	default:
		return nil, fmt.Errorf("rfc2136: unsupported net %q", v)
	}
	if v := settings["timeout"]; v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("rfc2136: invalid timeout %q: %w", v, err)
		}
		s.timeout = time.Duration(secs) * time.Second
	}
	return s, nil
}

func (s *Store) client(network string) *mdns.Client {
	c := &mdns.Client{Net: network, Timeout: s.timeout}
	if s.tsigName != "" {
		c.TsigSecret = map[string]string{s.tsigName: s.tsigSecret}
	}
	return c
}

func (s *Store) sign(m *mdns.Msg) {
	if s.tsigName != "" {
		m.SetTsig(s.tsigName, s.tsigAlgo, 300, time.Now().Unix())
	}
}

func (s *Store) toRR(record dns.Record) (mdns.RR, error) {
	rr, err := dns.ToRR(record, s.defaultTTL)
	if err != nil {
		return nil, fmt.Errorf("rfc2136: %w", err)
	}
	return rr, nil
}

// exchange sends m and maps failures: network errors and SERVFAIL are
// transient, any other non-success rcode is permanent.
func (s *Store) exchange(ctx context.Context, m *mdns.Msg, op string) (*mdns.Msg, error) {
	s.sign(m)
	resp, _, err := s.client(s.network).ExchangeContext(ctx, m, s.server)
	if err == nil && resp.Truncated && s.network != "tcp" {
		resp, _, err = s.client("tcp").ExchangeContext(ctx, m, s.server)
	}
	if err != nil {
		return nil, dns.Transient(fmt.Errorf("rfc2136: %s: %w", op, err))
	}
	switch resp.Rcode {
	case mdns.RcodeSuccess:
		return resp, nil
	case mdns.RcodeServerFailure:
		return nil, dns.Transient(fmt.Errorf("rfc2136: %s: %s", op, mdns.RcodeToString[resp.Rcode]))
	}
	return nil, fmt.Errorf("rfc2136: %s: %s", op, mdns.RcodeToString[resp.Rcode])
}

func (s *Store) List(ctx context.Context, zone string) ([]dns.Record, error) {
	zone = dns.NormalizeZone(zone)
	m := new(mdns.Msg)
	m.SetAxfr(mdns.Fqdn(zone))
	s.sign(m)

	t := &mdns.Transfer{DialTimeout: s.timeout, ReadTimeout: s.timeout}
	if s.tsigName != "" {
		t.TsigSecret = map[string]string{s.tsigName: s.tsigSecret}
	}
	ch, err := t.In(m, s.server)
	if err != nil {
		return nil, dns.Transient(fmt.Errorf("rfc2136: axfr %s: %w", zone, err))
	}

	var out []dns.Record
	seenSOA := false
	for env := range ch {
		if env.Error != nil {
			return nil, fmt.Errorf("rfc2136: axfr %s: %w", zone, env.Error)
		}
		for _, rr := range env.RR {
			if _, ok := rr.(*mdns.SOA); ok {
				// AXFR closes with a repeat of the opening SOA.
				if seenSOA {
					continue
				}
				seenSOA = true
			}
			out = append(out, dns.FromRR(zone, rr))
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// exists asks the server for the exact RR. Adding an RR that is already
// present is a no-op in RFC 2136, so the update itself stays idempotent even
// when two writers race past this check.
func (s *Store) exists(ctx context.Context, rr mdns.RR) (bool, error) {
	q := new(mdns.Msg)
	q.SetQuestion(rr.Header().Name, rr.Header().Rrtype)
	q.RecursionDesired = false
	resp, err := s.exchange(ctx, q, "query "+rr.Header().Name)
	if err != nil {
		return false, err
	}
	for _, ans := range resp.Answer {
		if mdns.IsDuplicate(ans, rr) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetOrCreate(ctx context.Context, record dns.Record) (bool, error) {
	rr, err := s.toRR(record)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	found, err := s.exists(ctx, rr)
	if err != nil {
		return false, err
	}
	if found {
		return false, nil
	}

	u := new(mdns.Msg)
	u.SetUpdate(mdns.Fqdn(dns.NormalizeZone(record.Zone)))
	u.Insert([]mdns.RR{rr})
	if _, err := s.exchange(ctx, u, "update "+record.FQDN()); err != nil {
		return false, err
	}
	s.log.V(1).Info("record added", "rr", rr.String(), "server", s.server)
	return true, nil
}

func (s *Store) Delete(ctx context.Context, record dns.Record) error {
	rr, err := s.toRR(record)
	if err != nil {
		return err
	}
	u := new(mdns.Msg)
	u.SetUpdate(mdns.Fqdn(dns.NormalizeZone(record.Zone)))
	u.Remove([]mdns.RR{rr})
	if _, err := s.exchange(ctx, u, "delete "+record.FQDN()); err != nil {
		return err
	}
	s.log.V(1).Info("record removed", "rr", rr.String(), "server", s.server)
	return nil
}
