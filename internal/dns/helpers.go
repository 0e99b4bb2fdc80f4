package dns

import (
	"strings"
)

// NormalizeZone lowercases a zone name and strips the trailing dot.
func NormalizeZone(zone string) string {
	return strings.ToLower(strings.TrimSuffix(zone, "."))
}

// JoinName joins a zone-relative name with its zone. "@" and "" mean the apex.
func JoinName(name, zone string) string {
	zone = strings.TrimSuffix(zone, ".")
	name = strings.TrimSuffix(name, ".")
	if name == "" || name == "@" {
		return zone
	}
	if zone == "" {
		return name
	}
	return name + "." + zone
}

// RelativeName strips zone from fqdn. The apex is returned as "@"; names
// outside the zone are returned unchanged with ok=false.
func RelativeName(fqdn, zone string) (name string, ok bool) {
	fqdn = strings.TrimSuffix(fqdn, ".")
	zone = strings.TrimSuffix(zone, ".")
	if strings.EqualFold(fqdn, zone) {
		return "@", true
	}
	suffix := "." + zone
	if len(fqdn) > len(suffix) && strings.EqualFold(fqdn[len(fqdn)-len(suffix):], suffix) {
		return fqdn[:len(fqdn)-len(suffix)], true
	}
	return fqdn, false
}
