package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	logrtesting "github.com/go-logr/logr/testing"
	"github.com/google/go-cmp/cmp"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/config"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/controller"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns/opnsense"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns/storetest"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/inventory"
)

// fakeOPNsense is a minimal in-memory OPNsense Unbound API for testing.
type fakeOPNsense struct {
	mu     sync.Mutex
	store  map[string]hostOverride
	nextID int
	calls  []string // tracks endpoint calls in order
}

type hostOverride struct {
	Enabled     string `json:"enabled"`
	Hostname    string `json:"hostname"`
	Domain      string `json:"domain"`
	RR          string `json:"rr"`
	Server      string `json:"server"`
	Description string `json:"description"`
	MXPrio      string `json:"mxprio"`
	MX          string `json:"mx"`
}

func newFakeOPNsense() *fakeOPNsense {
	return &fakeOPNsense{store: map[string]hostOverride{}}
}

func (f *fakeOPNsense) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if key, secret, ok := r.BasicAuth(); !ok || key != "test-key" || secret != "test-secret" {
		http.Error(w, `{"status":401}`, http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	f.mu.Unlock()

	switch {
	case r.URL.Path == "/api/unbound/settings/searchHostOverride":
		f.handleSearch(w, r)
	case r.URL.Path == "/api/unbound/settings/addHostOverride":
		f.handleAdd(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/unbound/settings/delHostOverride/"):
		f.handleDel(w, r)
	case r.URL.Path == "/api/unbound/service/reconfigure":
		f.handleReconfigure(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeOPNsense) handleSearch(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	type row struct {
		UUID string `json:"uuid"`
		hostOverride
	}
	rows := []row{}
	for id, h := range f.store {
		rows = append(rows, row{UUID: id, hostOverride: h})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UUID < rows[j].UUID })
	writeJSON(w, map[string]any{"rows": rows, "total": len(rows)})
}

func (f *fakeOPNsense) handleAdd(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Host hostOverride `json:"host"`
	}
	if err := readJSON(r, &payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("uuid-%03d", f.nextID)
	f.store[id] = payload.Host
	f.mu.Unlock()

	writeJSON(w, map[string]string{"result": "saved", "uuid": id})
}

func (f *fakeOPNsense) handleDel(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/unbound/settings/delHostOverride/")

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.store[id]; !ok {
		http.Error(w, `{"result":"not found"}`, http.StatusNotFound)
		return
	}
	delete(f.store, id)
	writeJSON(w, map[string]string{"result": "deleted"})
}

func (f *fakeOPNsense) handleReconfigure(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (f *fakeOPNsense) seed(h hostOverride) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.store[fmt.Sprintf("uuid-%03d", f.nextID)] = h
}

func (f *fakeOPNsense) overrides() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, h := range f.store {
		out = append(out, fmt.Sprintf("%s.%s %s %s", h.Hostname, h.Domain, h.RR, h.Server))
	}
	sort.Strings(out)
	return out
}

func (f *fakeOPNsense) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func newStore(t *testing.T, serverURL string) *opnsense.Store {
	t.Helper()
	s, err := opnsense.New(logrtesting.NewTestLogger(t), map[string]string{
		"base_url":   serverURL + "/api",
		"api_key":    "test-key",
		"api_secret": "test-secret",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, "example.com", func(t *testing.T) dns.Store {
		srv := httptest.NewServer(newFakeOPNsense())
		t.Cleanup(srv.Close)
		return newStore(t, srv.URL)
	})
}

func TestGetOrCreate_ReconfiguresOnlyOnChange(t *testing.T) {
	fake := newFakeOPNsense()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	s := newStore(t, srv.URL)
	ctx := context.Background()

	record := dns.Record{Zone: "example.com", Name: "web-1.dc1", Type: dns.TypeA, Value: "192.0.2.10"}
	created, err := s.GetOrCreate(ctx, record)
	if err != nil || !created {
		t.Fatalf("expected create, got created=%v err=%v", created, err)
	}
	created, err = s.GetOrCreate(ctx, record)
	if err != nil || created {
		t.Fatalf("expected existing record, got created=%v err=%v", created, err)
	}

	if diff := cmp.Diff([]string{"web-1.dc1.example.com A 192.0.2.10"}, fake.overrides()); diff != "" {
		t.Errorf("overrides mismatch (-want +got):\n%s", diff)
	}
	if n := fake.count("POST /api/unbound/service/reconfigure"); n != 1 {
		t.Errorf("expected one reconfigure, got %d", n)
	}
}

func TestList_OnlyZoneRecords(t *testing.T) {
	fake := newFakeOPNsense()
	fake.seed(hostOverride{Enabled: "1", Hostname: "web", Domain: "example.com", RR: "A", Server: "192.0.2.1", Description: "seeded"})
	fake.seed(hostOverride{Enabled: "1", Hostname: "web", Domain: "example.org", RR: "A", Server: "192.0.2.2"})
	fake.seed(hostOverride{Enabled: "1", Hostname: "db", Domain: "dc1.example.com", RR: "AAAA", Server: "2001:db8::1"})
	srv := httptest.NewServer(fake)
	defer srv.Close()

	records, err := newStore(t, srv.URL).List(context.Background(), "example.com.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []dns.Record{
		{Zone: "example.com", Name: "web", Type: "A", Value: "192.0.2.1", ID: "uuid-001", Meta: map[string]string{"description": "seeded"}},
		{Zone: "example.com", Name: "db.dc1", Type: "AAAA", Value: "2001:db8::1", ID: "uuid-003", Meta: map[string]string{"description": ""}},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestBadCredentials(t *testing.T) {
	srv := httptest.NewServer(newFakeOPNsense())
	defer srv.Close()
	s, err := opnsense.New(logrtesting.NewTestLogger(t), map[string]string{
		"base_url":   srv.URL + "/api",
		"api_key":    "wrong",
		"api_secret": "wrong",
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.List(context.Background(), "example.com")
	if err == nil {
		t.Fatal("expected an error for bad credentials")
	}
	if dns.IsTransient(err) {
		t.Errorf("expected 401 to be permanent, got %v", err)
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newStore(t, srv.URL).List(context.Background(), "example.com")
	if !dns.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

const syncConfig = `
store:
  provider: opnsense
  settings:
    base_url: ${OPNSENSE_URL}/api
    api_key: test-key
    api_secret: test-secret
inventory:
  path: inventory.yaml
defaults:
  delete_stale: true
nameservers:
  - name: ns1.example.com
    tenant: acme
    zone: example.com
    template_source: "{{ .IP | clear_dns }}.{{ .Device | or_filler }}.{{ .Site | or_filler }}"
  - name: ns2.example.com
    tenant: acme
    zone: null
`

const syncInventory = `
sites:
  - {id: 10, name: dc1, tenant: acme}
devices:
  - {id: 100, name: web-1, site: 10, tenant: acme, primary_ip4: 1000}
interfaces:
  - {id: 300, name: eth0, device: 100}
ip_addresses:
  - {id: 1000, address: 192.0.2.10/24, tenant: acme, assigned_object: {type: dcim.interface, id: 300}}
  - {id: 1001, address: "2001:db8::40/64", tenant: acme}
  - {id: 1002, address: 192.0.2.50/24, tenant: other}
`

func TestSync_EndToEnd(t *testing.T) {
	fake := newFakeOPNsense()
	fake.seed(hostOverride{Enabled: "1", Hostname: "stale", Domain: "example.com", RR: "A", Server: "192.0.2.99"})
	fake.seed(hostOverride{Enabled: "1", Hostname: "mail", Domain: "example.com", RR: "MX", Server: "mx.example.com"})
	srv := httptest.NewServer(fake)
	defer srv.Close()
	t.Setenv("OPNSENSE_URL", srv.URL)

	dir := t.TempDir()
	path := filepath.Join(dir, "sync.yaml")
	if err := os.WriteFile(path, []byte(syncConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "inventory.yaml"), []byte(syncInventory), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.LoadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	inv, err := inventory.Load(cfg.InventoryPath())
	if err != nil {
		t.Fatal(err)
	}
	log := logrtesting.NewTestLogger(t)
	store, err := dns.NewStore(cfg.Store.Provider, log, cfg.Store.Settings)
	if err != nil {
		t.Fatal(err)
	}

	syncer := &controller.Syncer{Store: store, Log: log, Workers: cfg.Workers}
	sum, err := syncer.Sync(context.Background(), cfg, inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Zones != 1 || sum.Skipped != 1 || sum.Created != 2 || sum.Deleted != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
	want := []string{
		"192-0-2-10.web-1.dc1.example.com A 192.0.2.10",
		"2001-db8--40.no-data.example.com AAAA 2001:db8::40",
		"mail.example.com MX mx.example.com",
	}
	if diff := cmp.Diff(want, fake.overrides()); diff != "" {
		t.Errorf("overrides mismatch (-want +got):\n%s", diff)
	}

	sum, err = syncer.Sync(context.Background(), cfg, inv)
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}
	if sum.Created != 0 || sum.Deleted != 0 || sum.Unchanged != 2 {
		t.Errorf("expected a no-op second run, got %+v", sum)
	}
}
