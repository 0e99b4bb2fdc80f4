// Package zonefile keeps each zone as a BIND master file on disk. Files are
// parsed and written with miekg/dns; records the sync does not manage are
// carried through unchanged and the SOA serial is bumped on every write.
package zonefile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	mdns "github.com/miekg/dns"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns"
)

func init() {
	dns.Register("zonefile", func(log logr.Logger, settings map[string]string) (dns.Store, error) {
		return New(log, settings)
	})
}

// Store implements dns.Store over a directory of zone files.
type Store struct {
	dir        string
	suffix     string
	defaultTTL uint32
	log        logr.Logger

	mu sync.Mutex
}

// New creates a zone file store.
// Required settings: dir.
// Optional settings: suffix (default ".zone"), default_ttl (default 3600).
func New(log logr.Logger, settings map[string]string) (*Store, error) {
	dir := settings["dir"]
	if dir == "" {
		return nil, fmt.Errorf("zonefile: missing required setting 'dir'")
	}
	suffix := ".zone"
	if v, ok := settings["suffix"]; ok {
		suffix = v
	}
	defaultTTL := uint32(3600)
	if v := settings["default_ttl"]; v != "" {
		parsed, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("zonefile: invalid default_ttl %q: %w", v, err)
		}
		defaultTTL = uint32(parsed)
	}
	return &Store{dir: dir, suffix: suffix, defaultTTL: defaultTTL, log: log}, nil
}

// Path returns the file backing zone.
func (s *Store) Path(zone string) string {
	return filepath.Join(s.dir, dns.NormalizeZone(zone)+s.suffix)
}

func (s *Store) read(zone string) ([]mdns.RR, error) {
	path := s.Path(zone)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("zonefile: open %s: %w", path, err)
	}
	defer f.Close()

	var rrs []mdns.RR
	zp := mdns.NewZoneParser(f, mdns.Fqdn(zone), path)
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		rrs = append(rrs, rr)
	}
	if err := zp.Err(); err != nil {
		return nil, fmt.Errorf("zonefile: parse %s: %w", path, err)
	}
	return rrs, nil
}

func (s *Store) write(zone string, rrs []mdns.RR) error {
	for _, rr := range rrs {
		if soa, ok := rr.(*mdns.SOA); ok {
			soa.Serial++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "$ORIGIN %s\n", mdns.Fqdn(dns.NormalizeZone(zone)))
	for _, rr := range rrs {
		b.WriteString(rr.String())
		b.WriteByte('\n')
	}

	path := s.Path(zone)
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("zonefile: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(b.String()); err != nil {
		tmp.Close()
		return fmt.Errorf("zonefile: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("zonefile: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("zonefile: replace %s: %w", path, err)
	}
	return nil
}

func (s *Store) toRR(record dns.Record) (mdns.RR, error) {
	rr, err := dns.ToRR(record, s.defaultTTL)
	if err != nil {
		return nil, fmt.Errorf("zonefile: %w", err)
	}
	return rr, nil
}

func (s *Store) List(_ context.Context, zone string) ([]dns.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rrs, err := s.read(zone)
	if err != nil {
		return nil, err
	}
	out := make([]dns.Record, 0, len(rrs))
	for _, rr := range rrs {
		out = append(out, dns.FromRR(zone, rr))
	}
	return out, nil
}

func (s *Store) GetOrCreate(_ context.Context, record dns.Record) (bool, error) {
	rr, err := s.toRR(record)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rrs, err := s.read(record.Zone)
	if err != nil {
		return false, err
	}
	for _, existing := range rrs {
		if mdns.IsDuplicate(existing, rr) {
			return false, nil
		}
	}
	if err := s.write(record.Zone, append(rrs, rr)); err != nil {
		return false, err
	}
	s.log.V(1).Info("record written", "file", s.Path(record.Zone), "rr", rr.String())
	return true, nil
}

func (s *Store) Delete(_ context.Context, record dns.Record) error {
	rr, err := s.toRR(record)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rrs, err := s.read(record.Zone)
	if err != nil {
		return err
	}
	kept := rrs[:0]
	for _, existing := range rrs {
		if !mdns.IsDuplicate(existing, rr) {
			kept = append(kept, existing)
		}
	}
	if len(kept) == len(rrs) {
		return nil
	}
	return s.write(record.Zone, kept)
}
