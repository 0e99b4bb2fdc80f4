package zonefile

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	mdns "github.com/miekg/dns"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns/storetest"
)

const seedZone = `$ORIGIN example.com.
$TTL 3600
@	IN	SOA	ns1.example.com. hostmaster.example.com. 2024010101 7200 3600 1209600 3600
@	IN	NS	ns1.example.com.
@	IN	TXT	"v=spf1 -all"
ns1	IN	A	192.0.2.53
`

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(logr.Discard(), map[string]string{"dir": t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, "example.com", func(t *testing.T) dns.Store {
		return newStore(t)
	})
}

func TestNew_Settings(t *testing.T) {
	if _, err := New(logr.Discard(), map[string]string{}); err == nil {
		t.Error("expected error for missing dir")
	}
	if _, err := New(logr.Discard(), map[string]string{"dir": "/tmp", "default_ttl": "-1"}); err == nil {
		t.Error("expected error for invalid default_ttl")
	}
}

func TestGetOrCreate_KeepsForeignRecordsAndBumpsSerial(t *testing.T) {
	s := newStore(t)
	if err := os.WriteFile(s.Path("example.com"), []byte(seedZone), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	created, err := s.GetOrCreate(ctx, dns.Record{Zone: "example.com", Name: "web-1.dc1", Type: dns.TypeA, Value: "192.0.2.10"})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !created {
		t.Fatal("expected record to be created")
	}

	records, err := s.List(ctx, "example.com")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	types := map[string]int{}
	for _, r := range records {
		types[r.Type]++
	}
	if types["SOA"] != 1 || types["NS"] != 1 || types["TXT"] != 1 || types["A"] != 2 {
		t.Errorf("unexpected record mix after write: %v", types)
	}

	data, err := os.ReadFile(s.Path("example.com"))
	if err != nil {
		t.Fatal(err)
	}
	zp := mdns.NewZoneParser(strings.NewReader(string(data)), "example.com.", "")
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		if soa, isSOA := rr.(*mdns.SOA); isSOA && soa.Serial != 2024010102 {
			t.Errorf("expected serial 2024010102, got %d", soa.Serial)
		}
	}
	if err := zp.Err(); err != nil {
		t.Fatalf("written zone does not parse: %v", err)
	}
}

func TestDelete_MissingFile(t *testing.T) {
	s := newStore(t)
	err := s.Delete(context.Background(), dns.Record{Zone: "nowhere.test", Name: "x", Type: dns.TypeA, Value: "192.0.2.1"})
	if err != nil {
		t.Fatalf("expected delete on a missing zone file to succeed, got %v", err)
	}
	if _, err := os.Stat(s.Path("nowhere.test")); !os.IsNotExist(err) {
		t.Errorf("expected no file to be created, stat err=%v", err)
	}
}
