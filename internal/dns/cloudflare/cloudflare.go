// Package cloudflare manages records in Cloudflare-hosted zones through the
// v4 API.
package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	cf "github.com/cloudflare/cloudflare-go"
	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns"
)

// codeRecordExists is returned by the API when an identical record is
// already present in the zone.
const codeRecordExists = 81058

func init() {
	dns.Register("cloudflare", func(log logr.Logger, settings map[string]string) (dns.Store, error) {
		return New(log, settings)
	})
}

// Store implements dns.Store for Cloudflare.
type Store struct {
	api     *cf.API
	ttl     int
	proxied bool
	log     logr.Logger

	mu      sync.Mutex
	zoneIDs map[string]string
	// serializes lookup-then-create per store
	writeMu sync.Mutex
}

// New creates a Cloudflare store.
// Required settings: api_token.
// Optional settings: zone_id (pins every zone to one id), ttl (default 1,
// meaning automatic), proxied (default false), rate_limit (requests per
// second), base_url.
func New(log logr.Logger, settings map[string]string) (*Store, error) {
	token := settings["api_token"]
	if token == "" {
		return nil, fmt.Errorf("cloudflare: missing required setting 'api_token'")
	}

	var opts []cf.Option
	if v := settings["base_url"]; v != "" {
		opts = append(opts, cf.BaseURL(v))
	}
	if v := settings["rate_limit"]; v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil || rps <= 0 {
			return nil, fmt.Errorf("cloudflare: invalid rate_limit %q", v)
		}
		opts = append(opts, cf.UsingRateLimit(rps))
	}
	api, err := cf.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("cloudflare: init client: %w", err)
	}

	s := &Store{api: api, ttl: 1, log: log, zoneIDs: map[string]string{}}
	if v := settings["ttl"]; v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("cloudflare: invalid ttl %q: %w", v, err)
		}
		s.ttl = ttl
	}
	if v := settings["proxied"]; v != "" {
		proxied, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("cloudflare: invalid proxied %q: %w", v, err)
		}
		s.proxied = proxied
	}
	if id := settings["zone_id"]; id != "" {
		s.zoneIDs[""] = id
	}
	return s, nil
}

func (s *Store) zoneID(zone string) (string, error) {
	zone = dns.NormalizeZone(zone)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.zoneIDs[""]; ok {
		return id, nil
	}
	if id, ok := s.zoneIDs[zone]; ok {
		return id, nil
	}
	id, err := s.api.ZoneIDByName(zone)
	if err != nil {
		return "", classify(fmt.Errorf("cloudflare: resolve zone %s: %w", zone, err))
	}
	s.zoneIDs[zone] = id
	return id, nil
}

// classify marks rate limits and server-side failures as transient.
func classify(err error) error {
	var rate *cf.RatelimitError
	var svc *cf.ServiceError
	if errors.As(err, &rate) || errors.As(err, &svc) {
		return dns.Transient(err)
	}
	return err
}

func (s *Store) List(ctx context.Context, zone string) ([]dns.Record, error) {
	id, err := s.zoneID(zone)
	if err != nil {
		return nil, err
	}
	rows, _, err := s.api.ListDNSRecords(ctx, cf.ZoneIdentifier(id), cf.ListDNSRecordsParams{})
	if err != nil {
		return nil, classify(fmt.Errorf("cloudflare: list %s: %w", zone, err))
	}
	out := make([]dns.Record, 0, len(rows))
	for _, row := range rows {
		name, ok := dns.RelativeName(row.Name, zone)
		if !ok {
			continue
		}
		out = append(out, dns.Record{
			Zone:  dns.NormalizeZone(zone),
			Name:  name,
			Type:  row.Type,
			Value: row.Content,
			TTL:   row.TTL,
			ID:    row.ID,
			Meta:  map[string]string{"description": row.Comment},
		})
	}
	return out, nil
}

func (s *Store) GetOrCreate(ctx context.Context, record dns.Record) (bool, error) {
	id, err := s.zoneID(record.Zone)
	if err != nil {
		return false, err
	}
	rc := cf.ZoneIdentifier(id)
	fqdn := record.FQDN()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, _, err := s.api.ListDNSRecords(ctx, rc, cf.ListDNSRecordsParams{
		Type:    record.Type,
		Name:    fqdn,
		Content: record.Value,
	})
	if err != nil {
		return false, classify(fmt.Errorf("cloudflare: lookup %s: %w", fqdn, err))
	}
	if len(existing) > 0 {
		return false, nil
	}

	ttl := s.ttl
	if record.TTL > 0 {
		ttl = record.TTL
	}
	proxied := s.proxied
	created, err := s.api.CreateDNSRecord(ctx, rc, cf.CreateDNSRecordParams{
		Type:    record.Type,
		Name:    fqdn,
		Content: record.Value,
		TTL:     ttl,
		Proxied: &proxied,
		Comment: record.Meta["description"],
	})
	if err != nil {
		var req *cf.RequestError
		if errors.As(err, &req) && req.InternalErrorCodeIs(codeRecordExists) {
			return false, nil
		}
		return false, classify(fmt.Errorf("cloudflare: create %s %s %s: %w", fqdn, record.Type, record.Value, err))
	}
	s.log.V(1).Info("record created", "name", fqdn, "type", record.Type, "value", record.Value, "id", created.ID)
	return true, nil
}

func (s *Store) Delete(ctx context.Context, record dns.Record) error {
	id, err := s.zoneID(record.Zone)
	if err != nil {
		return err
	}
	rc := cf.ZoneIdentifier(id)

	ids := []string{record.ID}
	if record.ID == "" {
		rows, _, err := s.api.ListDNSRecords(ctx, rc, cf.ListDNSRecordsParams{
			Type:    record.Type,
			Name:    record.FQDN(),
			Content: record.Value,
		})
		if err != nil {
			return classify(fmt.Errorf("cloudflare: lookup %s: %w", record.FQDN(), err))
		}
		ids = ids[:0]
		for _, row := range rows {
			if strings.EqualFold(row.Type, record.Type) {
				ids = append(ids, row.ID)
			}
		}
	}
	for _, recordID := range ids {
		if err := s.api.DeleteDNSRecord(ctx, rc, recordID); err != nil {
			var nf *cf.NotFoundError
			if errors.As(err, &nf) {
				continue
			}
			return classify(fmt.Errorf("cloudflare: delete %s: %w", record.FQDN(), err))
		}
		s.log.V(1).Info("record deleted", "name", record.FQDN(), "id", recordID)
	}
	return nil
}
