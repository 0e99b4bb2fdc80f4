// Package storetest holds behaviour checks shared by every dns.Store
// implementation.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns"
)

// Run exercises the dns.Store contract against a fresh store for zone.
func Run(t *testing.T, zone string, newStore func(t *testing.T) dns.Store) {
	t.Helper()

	t.Run("GetOrCreateIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		rec := dns.Record{Zone: zone, Name: "web-1.dc1", Type: dns.TypeA, Value: "192.0.2.10"}

		created, err := s.GetOrCreate(ctx, rec)
		if err != nil {
			t.Fatalf("first GetOrCreate: %v", err)
		}
		if !created {
			t.Fatal("expected first GetOrCreate to create")
		}
		created, err = s.GetOrCreate(ctx, rec)
		if err != nil {
			t.Fatalf("second GetOrCreate: %v", err)
		}
		if created {
			t.Fatal("expected second GetOrCreate to find the record")
		}
		if n := countAddress(t, s, zone); n != 1 {
			t.Fatalf("expected 1 address record, got %d", n)
		}
	})

	t.Run("SameNameDifferentValues", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, rec := range []dns.Record{
			{Zone: zone, Name: "multi", Type: dns.TypeA, Value: "192.0.2.1"},
			{Zone: zone, Name: "multi", Type: dns.TypeA, Value: "192.0.2.2"},
			{Zone: zone, Name: "multi", Type: dns.TypeAAAA, Value: "2001:db8::1"},
		} {
			if _, err := s.GetOrCreate(ctx, rec); err != nil {
				t.Fatalf("GetOrCreate %v: %v", rec, err)
			}
		}
		if n := countAddress(t, s, zone); n != 3 {
			t.Fatalf("expected 3 address records, got %d", n)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		keep := dns.Record{Zone: zone, Name: "keep", Type: dns.TypeA, Value: "192.0.2.1"}
		drop := dns.Record{Zone: zone, Name: "drop", Type: dns.TypeA, Value: "192.0.2.2"}
		for _, rec := range []dns.Record{keep, drop} {
			if _, err := s.GetOrCreate(ctx, rec); err != nil {
				t.Fatalf("GetOrCreate: %v", err)
			}
		}

		records, err := s.List(ctx, zone)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, r := range records {
			if r.Name == "drop" {
				if err := s.Delete(ctx, r); err != nil {
					t.Fatalf("Delete: %v", err)
				}
			}
		}
		if err := s.Delete(ctx, drop); err != nil {
			t.Fatalf("Delete of a missing record should succeed, got %v", err)
		}

		records, err = s.List(ctx, zone)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, r := range records {
			if r.Name == "drop" {
				t.Fatalf("expected drop to be deleted, still have %+v", r)
			}
		}
		if n := countAddress(t, s, zone); n != 1 {
			t.Fatalf("expected 1 address record left, got %d", n)
		}
	})

	t.Run("ConcurrentGetOrCreate", func(t *testing.T) {
		s := newStore(t)
		rec := dns.Record{Zone: zone, Name: "race", Type: dns.TypeA, Value: "192.0.2.99"}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			creates int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				created, err := s.GetOrCreate(context.Background(), rec)
				if err != nil {
					t.Errorf("GetOrCreate: %v", err)
					return
				}
				if created {
					mu.Lock()
					creates++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if creates != 1 {
			t.Fatalf("expected exactly one creator, got %d", creates)
		}
		if n := countAddress(t, s, zone); n != 1 {
			t.Fatalf("expected 1 address record, got %d", n)
		}
	})
}

func countAddress(t *testing.T, s dns.Store, zone string) int {
	t.Helper()
	records, err := s.List(context.Background(), zone)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	n := 0
	for _, r := range records {
		if r.IsAddress() {
			n++
		}
	}
	return n
}
