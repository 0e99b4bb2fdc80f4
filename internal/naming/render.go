package naming

import (
	"strings"
	"text/template"

	sprig "github.com/go-task/slim-sprig/v3"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/errdefs"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/inventory"
)

var lineBreaks = strings.NewReplacer("\r\n", "", "\r", "", "\n", "")

// Renderer is a compiled name template bound to a filler value.
type Renderer struct {
	tmpl   *template.Template
	filler string
}

// NewRenderer compiles src. Line breaks are removed first, so templates may be
// written over several lines. Besides the sprig functions, templates get:
//
//	clear_dns, clean  Clean applied to any value; absent values give ""
//	filler            the cleaned filler
//	or_filler         the cleaned value, or the filler when that is empty
//	regions           cleaned region names joined with ".", or the filler
//
// The template is test-rendered against an empty and a fully populated
// context, so references to unknown fields or unguarded absent objects are
// reported here rather than per IP.
func NewRenderer(src, filler string) (*Renderer, error) {
	r := &Renderer{filler: Clean(filler)}

	funcs := sprig.TxtFuncMap()
	funcs["clear_dns"] = cleanValue
	funcs["clean"] = cleanValue
	funcs["filler"] = func() string { return r.filler }
	funcs["or_filler"] = r.orFiller
	funcs["regions"] = r.regions

	tmpl, err := template.New("label").
		Option("missingkey=error").
		Funcs(funcs).
		Parse(lineBreaks.Replace(src))
	if err != nil {
		return nil, errdefs.Configuration("parsing name template: %v", err)
	}
	r.tmpl = tmpl

	for _, probe := range probeContexts() {
		if _, err := r.Render(probe); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Render expands the template for one context.
func (r *Renderer) Render(ctx *Context) (string, error) {
	var b strings.Builder
	if err := r.tmpl.Execute(&b, ctx); err != nil {
		return "", errdefs.Configuration("rendering name template: %v", err)
	}
	return b.String(), nil
}

// Render compiles src and renders it once.
func Render(src string, ctx *Context, filler string) (string, error) {
	r, err := NewRenderer(src, filler)
	if err != nil {
		return "", err
	}
	return r.Render(ctx)
}

func (r *Renderer) orFiller(v any) string {
	if s := cleanValue(v); s != "" {
		return s
	}
	return r.filler
}

func (r *Renderer) regions(chain []*inventory.Region) string {
	if len(chain) == 0 {
		return r.filler
	}
	names := make([]string, 0, len(chain))
	for _, region := range chain {
		names = append(names, cleanValue(region))
	}
	return strings.Join(names, ".")
}

func probeContexts() []*Context {
	id := 1
	tenant := "probe"
	ip := IP{Address: "192.0.2.1", Prefix: 32, Family: 4}
	return []*Context{
		{IP: ip, IPID: id},
		{
			IP:        ip,
			IPID:      id,
			Interface: &inventory.Interface{ID: id, Name: "eth0", Device: &id},
			VM:        &inventory.VirtualMachine{ID: id, Name: "vm", Device: &id, Tenant: &tenant},
			Device:    &inventory.Device{ID: id, Name: "device", Site: id, Rack: &id, Tenant: &tenant},
			Rack:      &inventory.Rack{ID: id, Name: "rack", Site: id},
			Site:      &inventory.Site{ID: id, Name: "site", Region: &id, Tenant: &tenant},
			Region:    []*inventory.Region{{ID: id, Name: "region"}},
			Service:   &inventory.Service{ID: id, Name: "service", Device: &id, IPAddresses: []int{id}},
		},
	}
}
