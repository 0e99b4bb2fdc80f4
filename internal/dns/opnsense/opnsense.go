// Package opnsense manages Unbound host overrides on an OPNsense firewall.
package opnsense

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns"
)

func init() {
	dns.Register("opnsense", func(log logr.Logger, settings map[string]string) (dns.Store, error) {
		return New(log, settings)
	})
}

// Store implements dns.Store for OPNsense Unbound DNS. Every override lives
// under one hostname label and a domain, so names with dots are split at the
// first label.
type Store struct {
	baseURL     string
	apiKey      string
	apiSecret   string
	description string
	client      *http.Client
	log         logr.Logger

	// serializes find-then-add; the API has no conditional create
	mu sync.Mutex
}

// New creates an OPNsense store from the given settings map.
// Required settings: base_url, api_key, api_secret.
// Optional settings: description (default "yk-ipam-dns"), skip_tls_verify
// (default false).
func New(log logr.Logger, settings map[string]string) (*Store, error) {
	for _, key := range []string{"base_url", "api_key", "api_secret"} {
		if settings[key] == "" {
			return nil, fmt.Errorf("opnsense: missing required setting '%s'", key)
		}
	}

	description := "yk-ipam-dns"
	if v, ok := settings["description"]; ok {
		description = v
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if v := settings["skip_tls_verify"]; v != "" {
		skip, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("opnsense: invalid skip_tls_verify %q: %w", v, err)
		}
		if skip {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
	}

	return &Store{
		baseURL:     strings.TrimRight(settings["base_url"], "/"),
		apiKey:      settings["api_key"],
		apiSecret:   settings["api_secret"],
		description: description,
		client:      &http.Client{Transport: transport},
		log:         log,
	}, nil
}

// call sends body (if any) to path and decodes the JSON answer into out.
// Transport errors and 5xx answers are transient.
func (s *Store) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("opnsense: marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/"+strings.TrimLeft(path, "/"), reader)
	if err != nil {
		return fmt.Errorf("opnsense: build request: %w", err)
	}
	req.SetBasicAuth(s.apiKey, s.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return dns.Transient(fmt.Errorf("opnsense: %s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		err := fmt.Errorf("opnsense: %s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= http.StatusInternalServerError {
			return dns.Transient(err)
		}
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("opnsense: decode %s response: %w", path, err)
	}
	return nil
}

// reconfigure tells OPNsense to apply DNS changes.
func (s *Store) reconfigure(ctx context.Context) error {
	var result struct {
		Status string `json:"status"`
	}
	if err := s.call(ctx, http.MethodPost, "unbound/service/reconfigure", struct{}{}, &result); err != nil {
		return err
	}
	s.log.V(1).Info("reconfigure completed", "status", result.Status)
	return nil
}

type hostRow struct {
	UUID        string `json:"uuid"`
	Enabled     string `json:"enabled"`
	Hostname    string `json:"hostname"`
	Domain      string `json:"domain"`
	RR          string `json:"rr"`
	Server      string `json:"server"`
	Description string `json:"description"`
}

func (r hostRow) fqdn() string { return dns.JoinName(r.Hostname, r.Domain) }

func (s *Store) search(ctx context.Context) ([]hostRow, error) {
	var sr struct {
		Rows []hostRow `json:"rows"`
	}
	if err := s.call(ctx, http.MethodGet, "unbound/settings/searchHostOverride", nil, &sr); err != nil {
		return nil, err
	}
	return sr.Rows, nil
}

// splitHost splits an FQDN into the override hostname and domain.
func splitHost(fqdn string) (host, domain string) {
	host, domain, _ = strings.Cut(fqdn, ".")
	return host, domain
}

func matches(row hostRow, record dns.Record) bool {
	return strings.EqualFold(row.fqdn(), record.FQDN()) &&
		strings.EqualFold(row.RR, record.Type) &&
		row.Server == record.Value
}

func (s *Store) List(ctx context.Context, zone string) ([]dns.Record, error) {
	rows, err := s.search(ctx)
	if err != nil {
		return nil, err
	}
	zone = dns.NormalizeZone(zone)
	var out []dns.Record
	for _, row := range rows {
		name, ok := dns.RelativeName(row.fqdn(), zone)
		if !ok {
			continue
		}
		out = append(out, dns.Record{
			Zone:  zone,
			Name:  name,
			Type:  strings.ToUpper(row.RR),
			Value: row.Server,
			ID:    row.UUID,
			Meta:  map[string]string{"description": row.Description},
		})
	}
	return out, nil
}

func (s *Store) GetOrCreate(ctx context.Context, record dns.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.search(ctx)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if matches(row, record) {
			return false, nil
		}
	}

	description := s.description
	if v := record.Meta["description"]; v != "" {
		description = v
	}
	host, domain := splitHost(record.FQDN())
	body := map[string]any{
		"host": map[string]string{
			"enabled":     "1",
			"hostname":    host,
			"domain":      domain,
			"rr":          record.Type,
			"server":      record.Value,
			"description": description,
			"mxprio":      "",
			"mx":          "",
		},
	}
	var result struct {
		Result string `json:"result"`
		UUID   string `json:"uuid"`
	}
	if err := s.call(ctx, http.MethodPost, "unbound/settings/addHostOverride", body, &result); err != nil {
		return false, err
	}
	if result.Result != "saved" {
		return false, fmt.Errorf("opnsense: addHostOverride unexpected result: %s", result.Result)
	}
	s.log.V(1).Info("host override added", "uuid", result.UUID, "name", record.FQDN(), "type", record.Type, "value", record.Value)
	return true, s.reconfigure(ctx)
}

func (s *Store) Delete(ctx context.Context, record dns.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.search(ctx)
	if err != nil {
		return err
	}
	uuid := ""
	for _, row := range rows {
		if (record.ID != "" && row.UUID == record.ID) || (record.ID == "" && matches(row, record)) {
			uuid = row.UUID
			break
		}
	}
	if uuid == "" {
		return nil
	}

	var result struct {
		Result string `json:"result"`
	}
	if err := s.call(ctx, http.MethodPost, "unbound/settings/delHostOverride/"+uuid, struct{}{}, &result); err != nil {
		return err
	}
	if result.Result != "deleted" {
		return fmt.Errorf("opnsense: delHostOverride unexpected result: %s", result.Result)
	}
	s.log.V(1).Info("host override deleted", "uuid", uuid, "name", record.FQDN())
	return s.reconfigure(ctx)
}
