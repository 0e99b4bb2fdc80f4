package dns

import (
	"context"
	"net/netip"
	"strings"
)

// Address record types managed by the sync.
const (
	TypeA    = "A"
	TypeAAAA = "AAAA"
)

// Record represents a DNS record in a zone.
type Record struct {
	Zone       string            // zone name without trailing dot, e.g. "example.com"
	Name       string            // relative to Zone, e.g. "web-1.dc1"
	Type       string            // "A", "AAAA", anything else is left alone
	Value      string            // IP address for address records, RDATA text otherwise
	TTL        int               // 0 = store default
	Tenant     string            // passed through to stores that keep ownership
	DisablePTR bool              // passed through; reverse records are generated downstream
	ID         string            // store-specific identifier, filled by List
	Meta       map[string]string // store-specific fields (e.g. "description")
}

// Key identifies a record within a zone for deduplication.
type Key struct {
	Name  string
	Value string
}

func (r Record) Key() Key { return Key{Name: strings.ToLower(r.Name), Value: r.Value} }

// FQDN returns the record name joined with its zone, without trailing dot.
func (r Record) FQDN() string { return JoinName(r.Name, r.Zone) }

// IsAddress reports whether the record is an A or AAAA record.
func (r Record) IsAddress() bool { return IsAddressType(r.Type) }

func IsAddressType(t string) bool {
	t = strings.ToUpper(t)
	return t == TypeA || t == TypeAAAA
}

// RecordType returns the address record type for addr.
func RecordType(addr netip.Addr) string {
	if addr.Unmap().Is4() {
		return TypeA
	}
	return TypeAAAA
}

// Store is the interface that record stores must implement.
type Store interface {
	// List returns every record of the zone, address records or not.
	List(ctx context.Context, zone string) ([]Record, error)
	// GetOrCreate creates the record unless one with the same zone, name, type
	// and value exists. The check and the create are atomic with respect to
	// other callers of the same store. It reports whether a record was created.
	GetOrCreate(ctx context.Context, record Record) (bool, error)
	// Delete removes the record. Deleting a record that no longer exists is
	// not an error.
	Delete(ctx context.Context, record Record) error
}
