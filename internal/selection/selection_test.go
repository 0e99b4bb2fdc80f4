package selection

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/errdefs"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/inventory"
)

const snapshot = `
sites:
  - {id: 1, name: dc1}
devices:
  - {id: 10, name: web-1, site: 1, tenant: acme, primary_ip4: 100, primary_ip6: 101}
  - {id: 11, name: spare, site: 1, tenant: acme}
  - {id: 12, name: other, site: 1, tenant: other, primary_ip4: 104}
virtual_machines:
  - {id: 20, name: app-1, device: 10, tenant: acme, primary_ip4: 102}
services:
  - {id: 30, name: dns, virtual_machine: 20, ipaddresses: [102, 103]}
  - {id: 31, name: ntp, device: 12, ipaddresses: [104]}
ip_addresses:
  - {id: 100, address: 192.0.2.10/24, tenant: acme}
  - {id: 101, address: "2001:db8::10/64", tenant: acme}
  - {id: 102, address: 192.0.2.20/24, tenant: acme}
  - {id: 103, address: 192.0.2.21/24}
  - {id: 104, address: 198.51.100.1/24, tenant: other}
`

func load(t *testing.T) *inventory.Inventory {
	t.Helper()
	inv, err := inventory.Parse([]byte(snapshot))
	if err != nil {
		t.Fatal(err)
	}
	return inv
}

func addrs(targets []Target) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.IP.String())
	}
	return out
}

func TestSelect(t *testing.T) {
	inv := load(t)
	acme := "acme"

	tests := []struct {
		kind   Kind
		tenant *string
		want   []string
	}{
		{AllAddresses, &acme, []string{"192.0.2.10", "2001:db8::10", "192.0.2.20"}},
		{AllAddresses, nil, []string{"192.0.2.21"}},
		{PrimaryIPs, &acme, []string{"192.0.2.10", "2001:db8::10", "192.0.2.20"}},
		{ServiceIPs, &acme, []string{"192.0.2.20", "192.0.2.21"}},
		{ServiceIPs, nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+inventory.TenantName(tt.tenant), func(t *testing.T) {
			got, err := Select(inv, tt.kind, tt.tenant)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, addrs(got)); diff != "" {
				t.Errorf("Select(%s) mismatch (-want +got):\n%s", tt.kind, diff)
			}
		})
	}
}

func TestSelect_ServiceAttached(t *testing.T) {
	acme := "acme"
	got, err := Select(load(t), ServiceIPs, &acme)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, target := range got {
		if target.Service == nil || target.Service.Name != "dns" {
			t.Errorf("expected dns service on %s, got %v", target.IP, target.Service)
		}
	}
}

func TestSelect_UnknownKind(t *testing.T) {
	_, err := Select(load(t), Kind("everything"), nil)
	if !errors.Is(err, errdefs.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParseKind(%q): got %q, %v", k, got, err)
		}
	}
	if _, err := ParseKind("primary"); !errdefs.IsConfiguration(err) {
		t.Errorf("expected configuration error for unknown kind, got %v", err)
	}
}
