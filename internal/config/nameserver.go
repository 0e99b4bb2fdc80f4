package config

import (
	"fmt"

	"go.yaml.in/yaml/v3"
)

// ZoneMapping is the zone a nameserver publishes into. A nameserver without a
// zone key is misconfigured; one whose zone is explicitly null is skipped.
type ZoneMapping struct {
	Present bool
	Name    string
}

// IsNull reports whether the zone key is present but empty.
func (z ZoneMapping) IsNull() bool { return z.Present && z.Name == "" }

// Nameserver is one zone run: which tenant's addresses to publish into which
// zone, with optional overrides of the job defaults.
type Nameserver struct {
	Name           string      `yaml:"name"`
	Tenant         *string     `yaml:"tenant"`
	Zone           ZoneMapping `yaml:"-"`
	Strategy       string      `yaml:"strategy"`
	Template       string      `yaml:"template"`
	TemplateSource string      `yaml:"template_source"`
	TemplateFile   string      `yaml:"template_file"`
	Filler         *string     `yaml:"filler"`
	CollapseFiller *bool       `yaml:"collapse_filler"`
	MultiRecord    *bool       `yaml:"multi_record"`
	DeleteStale    *bool       `yaml:"delete_stale"`
	DisablePTR     *bool       `yaml:"disable_ptr"`
}

func (ns *Nameserver) UnmarshalYAML(value *yaml.Node) error {
	type plain Nameserver
	var raw struct {
		plain `yaml:",inline"`
		Zone  yaml.Node `yaml:"zone"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*ns = Nameserver(raw.plain)

	switch {
	case raw.Zone.Kind == 0:
		// key absent
	case raw.Zone.Kind == yaml.ScalarNode && raw.Zone.ShortTag() == "!!null":
		ns.Zone = ZoneMapping{Present: true}
	case raw.Zone.Kind == yaml.ScalarNode:
		ns.Zone = ZoneMapping{Present: true, Name: raw.Zone.Value}
	default:
		return fmt.Errorf("line %d: nameserver %q: zone must be a name or null", raw.Zone.Line, ns.Name)
	}
	return nil
}
