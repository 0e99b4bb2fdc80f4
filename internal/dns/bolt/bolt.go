// Package bolt persists zone records in a bbolt database file. Each zone is a
// nested bucket under "zones"; keys are name/type/value so the existence
// check and the insert of GetOrCreate share one write transaction.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	bolt "go.etcd.io/bbolt"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns"
)

var bucketZones = []byte("zones")

func init() {
	dns.Register("bolt", func(log logr.Logger, settings map[string]string) (dns.Store, error) {
		return New(log, settings)
	})
}

// Store implements dns.Store on top of bbolt.
type Store struct {
	db  *bolt.DB
	log logr.Logger
}

// New opens (or creates) the database file.
// Required settings: path.
// Optional settings: timeout (seconds to wait for the file lock, default 5).
func New(log logr.Logger, settings map[string]string) (*Store, error) {
	path := settings["path"]
	if path == "" {
		return nil, fmt.Errorf("bolt: missing required setting 'path'")
	}
	timeout := 5 * time.Second
	if v := settings["timeout"]; v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("bolt: invalid timeout %q: %w", v, err)
		}
		timeout = time.Duration(secs) * time.Second
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketZones)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt: init buckets: %w", err)
	}
	log.V(1).Info("opened record database", "path", path)
	return &Store{db: db, log: log}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// storedRecord is the JSON value kept per key.
type storedRecord struct {
	Seq        uint64            `json:"seq"`
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Value      string            `json:"value"`
	TTL        int               `json:"ttl,omitempty"`
	Tenant     string            `json:"tenant,omitempty"`
	DisablePTR bool              `json:"disable_ptr,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

func recordKey(name, recordType, value string) []byte {
	return []byte(strings.ToLower(name) + "\x00" + strings.ToUpper(recordType) + "\x00" + value)
}

func (s *Store) List(_ context.Context, zone string) ([]dns.Record, error) {
	zone = dns.NormalizeZone(zone)
	var out []dns.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketZones).Bucket([]byte(zone))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var sr storedRecord
			if err := json.Unmarshal(v, &sr); err != nil {
				return fmt.Errorf("decode record %q: %w", k, err)
			}
			out = append(out, dns.Record{
				Zone:       zone,
				Name:       sr.Name,
				Type:       sr.Type,
				Value:      sr.Value,
				TTL:        sr.TTL,
				Tenant:     sr.Tenant,
				DisablePTR: sr.DisablePTR,
				ID:         strconv.FormatUint(sr.Seq, 10),
				Meta:       sr.Meta,
			})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: list %s: %w", zone, err)
	}
	return out, nil
}

func (s *Store) GetOrCreate(_ context.Context, record dns.Record) (bool, error) {
	zone := dns.NormalizeZone(record.Zone)
	key := recordKey(record.Name, record.Type, record.Value)
	created := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketZones).CreateBucketIfNotExists([]byte(zone))
		if err != nil {
			return err
		}
		if b.Get(key) != nil {
			return nil
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(storedRecord{
			Seq:        seq,
			Name:       record.Name,
			Type:       strings.ToUpper(record.Type),
			Value:      record.Value,
			TTL:        record.TTL,
			Tenant:     record.Tenant,
			DisablePTR: record.DisablePTR,
			Meta:       record.Meta,
			CreatedAt:  time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		created = true
		return b.Put(key, data)
	})
	if err != nil {
		return false, fmt.Errorf("bolt: create %s %s %s: %w", record.FQDN(), record.Type, record.Value, err)
	}
	if created {
		s.log.V(1).Info("record stored", "zone", zone, "name", record.Name, "type", record.Type, "value", record.Value)
	}
	return created, nil
}

func (s *Store) Delete(_ context.Context, record dns.Record) error {
	zone := dns.NormalizeZone(record.Zone)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketZones).Bucket([]byte(zone))
		if b == nil {
			return nil
		}
		return b.Delete(recordKey(record.Name, record.Type, record.Value))
	})
	if err != nil {
		return fmt.Errorf("bolt: delete %s %s %s: %w", record.FQDN(), record.Type, record.Value, err)
	}
	return nil
}
