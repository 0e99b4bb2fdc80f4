// Package memory is an in-process record store. It backs tests and dry
// experiments; nothing survives the process.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns"
)

func init() {
	dns.Register("memory", func(log logr.Logger, settings map[string]string) (dns.Store, error) {
		return New(log), nil
	})
}

// Store implements dns.Store over a map guarded by a mutex.
type Store struct {
	mu     sync.Mutex
	zones  map[string][]dns.Record
	nextID int
	log    logr.Logger
}

// New creates an empty store.
func New(log logr.Logger) *Store {
	return &Store{zones: make(map[string][]dns.Record), log: log}
}

// Add inserts records unconditionally, e.g. to seed non-address records.
func (s *Store) Add(records ...dns.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.insert(r)
	}
}

func (s *Store) insert(r dns.Record) dns.Record {
	s.nextID++
	r.ID = fmt.Sprintf("%d", s.nextID)
	r.Zone = dns.NormalizeZone(r.Zone)
	s.zones[r.Zone] = append(s.zones[r.Zone], r)
	return r
}

func (s *Store) List(_ context.Context, zone string) ([]dns.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.zones[dns.NormalizeZone(zone)]
	out := make([]dns.Record, len(records))
	copy(out, records)
	return out, nil
}

func (s *Store) GetOrCreate(_ context.Context, record dns.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.find(record); ok {
		return false, nil
	}
	created := s.insert(record)
	s.log.V(1).Info("record created", "id", created.ID, "name", created.Name, "type", created.Type, "value", created.Value)
	return true, nil
}

func (s *Store) Delete(_ context.Context, record dns.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.find(record)
	if !ok {
		return nil
	}
	zone := dns.NormalizeZone(record.Zone)
	s.zones[zone] = append(s.zones[zone][:i], s.zones[zone][i+1:]...)
	return nil
}

func (s *Store) find(record dns.Record) (int, bool) {
	for i, r := range s.zones[dns.NormalizeZone(record.Zone)] {
		if record.ID != "" && r.ID == record.ID {
			return i, true
		}
		if strings.EqualFold(r.Name, record.Name) && strings.EqualFold(r.Type, record.Type) && r.Value == record.Value {
			return i, true
		}
	}
	return -1, false
}
