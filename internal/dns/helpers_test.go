package dns

import "testing"

func TestNormalizeZone(t *testing.T) {
	if got := NormalizeZone("Example.COM."); got != "example.com" {
		t.Errorf("expected 'example.com', got %q", got)
	}
}

func TestJoinName(t *testing.T) {
	tests := []struct {
		name, zone, want string
	}{
		{"web-1.dc1", "example.com", "web-1.dc1.example.com"},
		{"@", "example.com.", "example.com"},
		{"", "example.com", "example.com"},
		{"host.", "example.com", "host.example.com"},
		{"host", "", "host"},
	}
	for _, tt := range tests {
		if got := JoinName(tt.name, tt.zone); got != tt.want {
			t.Errorf("JoinName(%q, %q) = %q, want %q", tt.name, tt.zone, got, tt.want)
		}
	}
}

func TestRelativeName(t *testing.T) {
	tests := []struct {
		fqdn, zone string
		want       string
		ok         bool
	}{
		{"web-1.dc1.example.com.", "example.com", "web-1.dc1", true},
		{"Example.com", "example.com.", "@", true},
		{"WEB.EXAMPLE.COM", "example.com", "WEB", true},
		{"web.example.org", "example.com", "web.example.org", false},
		{"badexample.com", "example.com", "badexample.com", false},
	}
	for _, tt := range tests {
		got, ok := RelativeName(tt.fqdn, tt.zone)
		if got != tt.want || ok != tt.ok {
			t.Errorf("RelativeName(%q, %q) = %q, %v; want %q, %v", tt.fqdn, tt.zone, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRecordKey(t *testing.T) {
	a := Record{Zone: "example.com", Name: "Web-1", Type: TypeA, Value: "192.0.2.10"}
	b := Record{Zone: "example.com", Name: "web-1", Type: TypeA, Value: "192.0.2.10", TTL: 60}
	if a.Key() != b.Key() {
		t.Errorf("expected keys to match ignoring name case and ttl: %v vs %v", a.Key(), b.Key())
	}
	if a.FQDN() != "Web-1.example.com" {
		t.Errorf("unexpected fqdn %q", a.FQDN())
	}
	if !a.IsAddress() || (Record{Type: "txt"}).IsAddress() {
		t.Error("IsAddress misclassified")
	}
}
