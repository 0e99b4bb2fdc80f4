package providers

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns"
)

func TestAllStoresRegistered(t *testing.T) {
	want := []string{"bolt", "cloudflare", "memory", "opnsense", "rfc2136", "zonefile"}
	if diff := cmp.Diff(want, dns.Registered()); diff != "" {
		t.Errorf("registered stores mismatch (-want +got):\n%s", diff)
	}
}
