package dns

import (
	"fmt"
	"strings"

	mdns "github.com/miekg/dns"
)

// FromRR converts a wire-format resource record of zone into a Record.
// Address values are kept as plain IP text; other types carry their RDATA in
// presentation format.
func FromRR(zone string, rr mdns.RR) Record {
	h := rr.Header()
	name, _ := RelativeName(h.Name, zone)
	value := strings.TrimPrefix(rr.String(), h.String())
	switch v := rr.(type) {
	case *mdns.A:
		value = v.A.String()
	case *mdns.AAAA:
		value = v.AAAA.String()
	}
	return Record{
		Zone:  NormalizeZone(zone),
		Name:  name,
		Type:  mdns.TypeToString[h.Rrtype],
		Value: value,
		TTL:   int(h.Ttl),
	}
}

// ToRR builds the resource record for record, using defaultTTL when the
// record has none.
func ToRR(record Record, defaultTTL uint32) (mdns.RR, error) {
	ttl := defaultTTL
	if record.TTL > 0 {
		ttl = uint32(record.TTL)
	}
	rr, err := mdns.NewRR(fmt.Sprintf("%s %d IN %s %s", mdns.Fqdn(record.FQDN()), ttl, strings.ToUpper(record.Type), record.Value))
	if err != nil {
		return nil, fmt.Errorf("build %s %s %s: %w", record.FQDN(), record.Type, record.Value, err)
	}
	return rr, nil
}
