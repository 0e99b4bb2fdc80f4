package memory

import (
	"context"
	"testing"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, "example.com", func(t *testing.T) dns.Store {
		return New(logr.Discard())
	})
}

func TestAdd_KeepsOtherTypes(t *testing.T) {
	s := New(logr.Discard())
	s.Add(dns.Record{Zone: "Example.com.", Name: "@", Type: "TXT", Value: `"hello"`})

	records, err := s.List(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 || records[0].Type != "TXT" || records[0].ID == "" {
		t.Fatalf("expected one TXT record with an id, got %+v", records)
	}
}

func TestDelete_ByID(t *testing.T) {
	s := New(logr.Discard())
	s.Add(
		dns.Record{Zone: "example.com", Name: "a", Type: dns.TypeA, Value: "192.0.2.1"},
		dns.Record{Zone: "example.com", Name: "b", Type: dns.TypeA, Value: "192.0.2.2"},
	)
	records, _ := s.List(context.Background(), "example.com")
	if err := s.Delete(context.Background(), dns.Record{Zone: "example.com", ID: records[1].ID}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	records, _ = s.List(context.Background(), "example.com")
	if len(records) != 1 || records[0].Name != "a" {
		t.Fatalf("expected only a to remain, got %+v", records)
	}
}
