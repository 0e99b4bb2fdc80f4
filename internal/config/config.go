// Package config loads the sync configuration: the record store, the
// inventory snapshot, named templates, job defaults and the nameservers that
// each map a tenant to a zone.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/errdefs"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/naming"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/selection"
)

const (
	// DefaultPath is used when neither -config nor SYNC_CONFIG_PATH is set.
	DefaultPath = "configs/sync.yaml"
	// DefaultTemplateName is the template used when nothing else is selected.
	DefaultTemplateName = "default"
	// DefaultTemplate backs DefaultTemplateName unless the file redefines it.
	DefaultTemplate = `{{ .IP | clear_dns }}.{{ .Device | or_filler }}.{{ .Site | or_filler }}`
	DefaultFiller   = "no-data"
	DefaultWorkers  = 4
)

// Config is the top-level sync configuration.
type Config struct {
	Store           StoreConfig       `yaml:"store"`
	Inventory       InventoryConfig   `yaml:"inventory"`
	AllowNoneTenant bool              `yaml:"allow_none_tenant"`
	Workers         int               `yaml:"workers"`
	Templates       map[string]string `yaml:"templates"`
	Defaults        Defaults          `yaml:"defaults"`
	Nameservers     []Nameserver      `yaml:"nameservers"`

	// directory relative paths are resolved against
	baseDir string
}

type InventoryConfig struct {
	Path string `yaml:"path"`
}

// Defaults apply to every nameserver that does not override them.
type Defaults struct {
	Strategy       string `yaml:"strategy"`
	Template       string `yaml:"template"`
	Filler         string `yaml:"filler"`
	CollapseFiller *bool  `yaml:"collapse_filler"`
	MultiRecord    bool   `yaml:"multi_record"`
	DeleteStale    bool   `yaml:"delete_stale"`
	DisablePTR     bool   `yaml:"disable_ptr"`
}

// Job is a nameserver with every default applied and its template resolved.
type Job struct {
	Nameserver     string
	Tenant         *string
	Zone           ZoneMapping
	Strategy       selection.Kind
	Template       string
	Filler         string
	CollapseFiller bool
	MultiRecord    bool
	DeleteStale    bool
	DisablePTR     bool
}

// Load reads the configuration from the path in SYNC_CONFIG_PATH, defaulting
// to DefaultPath.
func Load() (*Config, error) {
	path := os.Getenv("SYNC_CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration file at path. Relative paths inside
// it are resolved against the file's directory.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sync config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.baseDir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes a configuration document and fills in defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing sync config file: %w", err)
	}
	if err := cfg.Store.validate(); err != nil {
		return nil, fmt.Errorf("sync config: %w", err)
	}
	cfg.Store.expand()
	cfg.Inventory.Path = os.ExpandEnv(cfg.Inventory.Path)

	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Templates == nil {
		cfg.Templates = map[string]string{}
	}
	if _, ok := cfg.Templates[DefaultTemplateName]; !ok {
		cfg.Templates[DefaultTemplateName] = DefaultTemplate
	}
	if cfg.Defaults.Strategy == "" {
		cfg.Defaults.Strategy = string(selection.AllAddresses)
	}
	if cfg.Defaults.Template == "" {
		cfg.Defaults.Template = DefaultTemplateName
	}
	if cfg.Defaults.Filler == "" {
		cfg.Defaults.Filler = DefaultFiller
	}
	if cfg.Defaults.CollapseFiller == nil {
		collapse := true
		cfg.Defaults.CollapseFiller = &collapse
	}
	return &cfg, nil
}

// Resolve returns path relative to the configuration file's directory unless
// it is absolute.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.baseDir == "" {
		return path
	}
	return filepath.Join(c.baseDir, path)
}

// InventoryPath is the resolved location of the inventory snapshot.
func (c *Config) InventoryPath() string {
	return c.Resolve(c.Inventory.Path)
}

// Job applies defaults to ns and resolves its template source. An inline
// template_source wins over template_file, which wins over a named template.
// The zone mapping is copied as is; whether it may run is the caller's call.
func (c *Config) Job(ns Nameserver) (Job, error) {
	strategy := c.Defaults.Strategy
	if ns.Strategy != "" {
		strategy = ns.Strategy
	}
	kind, err := selection.ParseKind(strategy)
	if err != nil {
		return Job{}, fmt.Errorf("nameserver %q: %w", ns.Name, err)
	}

	src, err := c.templateFor(ns)
	if err != nil {
		return Job{}, fmt.Errorf("nameserver %q: %w", ns.Name, err)
	}

	job := Job{
		Nameserver:     ns.Name,
		Tenant:         ns.Tenant,
		Zone:           ns.Zone,
		Strategy:       kind,
		Template:       src,
		Filler:         c.Defaults.Filler,
		CollapseFiller: *c.Defaults.CollapseFiller,
		MultiRecord:    c.Defaults.MultiRecord,
		DeleteStale:    c.Defaults.DeleteStale,
		DisablePTR:     c.Defaults.DisablePTR,
	}
	if ns.Filler != nil {
		job.Filler = *ns.Filler
	}
	override(&job.CollapseFiller, ns.CollapseFiller)
	override(&job.MultiRecord, ns.MultiRecord)
	override(&job.DeleteStale, ns.DeleteStale)
	override(&job.DisablePTR, ns.DisablePTR)
	return job, nil
}

func override(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func (c *Config) templateFor(ns Nameserver) (string, error) {
	if ns.TemplateSource != "" {
		return ns.TemplateSource, nil
	}
	if ns.TemplateFile != "" {
		data, err := os.ReadFile(c.Resolve(ns.TemplateFile))
		if err != nil {
			return "", errdefs.Configuration("reading template file: %v", err)
		}
		return string(data), nil
	}
	name := c.Defaults.Template
	if ns.Template != "" {
		name = ns.Template
	}
	src, ok := c.Templates[name]
	if !ok {
		return "", errdefs.Configuration("unknown template %q", name)
	}
	return src, nil
}

// Validate checks everything that can be checked without the inventory or
// the store: every nameserver has a zone key, a known strategy and a template
// that compiles. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.Inventory.Path == "" {
		errs = append(errs, errdefs.Configuration("inventory: missing required field 'path'"))
	}
	seen := make(map[string]bool, len(c.Nameservers))
	for _, ns := range c.Nameservers {
		if ns.Name == "" {
			errs = append(errs, errdefs.Configuration("nameserver without a name"))
			continue
		}
		if seen[ns.Name] {
			errs = append(errs, errdefs.Configuration("duplicate nameserver %q", ns.Name))
		}
		seen[ns.Name] = true

		if !ns.Zone.Present {
			errs = append(errs, errdefs.Configuration("nameserver %q: no zone mapping; set zone to a name, or to null to skip it", ns.Name))
		}
		job, err := c.Job(ns)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := naming.NewRenderer(job.Template, job.Filler); err != nil {
			errs = append(errs, fmt.Errorf("nameserver %q: %w", ns.Name, err))
		}
	}
	return utilerrors.NewAggregate(errs)
}
