package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns/storetest"
)

func newStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := New(logr.Discard(), map[string]string{"path": path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, "example.com", func(t *testing.T) dns.Store {
		return newStore(t, filepath.Join(t.TempDir(), "records.db"))
	})
}

func TestNew_Settings(t *testing.T) {
	if _, err := New(logr.Discard(), map[string]string{}); err == nil {
		t.Error("expected error for missing path")
	}
	if _, err := New(logr.Discard(), map[string]string{"path": filepath.Join(t.TempDir(), "x.db"), "timeout": "soon"}); err == nil {
		t.Error("expected error for invalid timeout")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	ctx := context.Background()

	s, err := New(logr.Discard(), map[string]string{"path": path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := dns.Record{Zone: "example.com", Name: "web-1", Type: "a", Value: "192.0.2.10", Tenant: "acme", DisablePTR: true}
	if _, err := s.GetOrCreate(ctx, rec); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s = newStore(t, path)
	records, err := s.List(ctx, "EXAMPLE.com.")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after reopen, got %d", len(records))
	}
	got := records[0]
	if got.Type != dns.TypeA || got.Tenant != "acme" || !got.DisablePTR || got.ID != "1" {
		t.Errorf("unexpected record after reopen: %+v", got)
	}
	created, err := s.GetOrCreate(ctx, rec)
	if err != nil || created {
		t.Errorf("expected existing record to be found after reopen, created=%v err=%v", created, err)
	}
}
