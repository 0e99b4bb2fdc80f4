package naming

import (
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/errdefs"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/inventory"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/selection"
)

// IP is the address part of a naming context.
type IP struct {
	Address string
	Prefix  int
	Family  int
}

func (ip IP) String() string { return ip.Address }

// Context is the data a name template is rendered against. Optional fields
// are nil when the inventory has nothing for them; Region is ordered
// nearest-first.
type Context struct {
	IP        IP
	IPID      int
	Interface *inventory.Interface
	VM        *inventory.VirtualMachine
	Device    *inventory.Device
	Rack      *inventory.Rack
	Site      *inventory.Site
	Region    []*inventory.Region
	Service   *inventory.Service
}

// Resolver is the inventory surface the context builder walks.
type Resolver interface {
	Interface(ref *inventory.ObjectRef) (*inventory.Interface, bool)
	Device(id *int) (*inventory.Device, bool)
	VirtualMachine(id *int) (*inventory.VirtualMachine, bool)
	Rack(id *int) (*inventory.Rack, bool)
	Site(id *int) (*inventory.Site, bool)
	Region(id *int) (*inventory.Region, bool)
	ServiceForIP(id int) (*inventory.Service, bool)
}

// BuildContext follows the assignment chain of the target's IP:
// interface, device or VM (and the VM's host device), rack, site and the
// region ancestry of the site. A cycle in the region tree is a configuration
// error.
func BuildContext(r Resolver, t selection.Target) (*Context, error) {
	ip := t.IP
	ctx := &Context{
		IP: IP{
			Address: ip.String(),
			Prefix:  ip.Bits(),
			Family:  ip.Family(),
		},
		IPID:    ip.ID,
		Service: t.Service,
	}
	if ctx.Service == nil {
		if svc, ok := r.ServiceForIP(ip.ID); ok {
			ctx.Service = svc
		}
	}

	if iface, ok := r.Interface(ip.AssignedObject); ok {
		ctx.Interface = iface
		switch {
		case iface.Device != nil:
			if d, ok := r.Device(iface.Device); ok {
				ctx.Device = d
			}
		case iface.VirtualMachine != nil:
			if vm, ok := r.VirtualMachine(iface.VirtualMachine); ok {
				ctx.VM = vm
				if d, ok := r.Device(vm.Device); ok {
					ctx.Device = d
				}
			}
		}
	}

	if ctx.Device == nil {
		return ctx, nil
	}
	if rack, ok := r.Rack(ctx.Device.Rack); ok {
		ctx.Rack = rack
	}
	site, ok := r.Site(&ctx.Device.Site)
	if !ok {
		return ctx, nil
	}
	ctx.Site = site

	regions, err := regionChain(r, site.Region)
	if err != nil {
		return nil, err
	}
	ctx.Region = regions
	return ctx, nil
}

func regionChain(r Resolver, start *int) ([]*inventory.Region, error) {
	var chain []*inventory.Region
	seen := make(map[int]bool)
	for id := start; ; {
		region, ok := r.Region(id)
		if !ok {
			return chain, nil
		}
		if seen[region.ID] {
			return nil, errdefs.Configuration("region %q (id %d) is its own ancestor", region.Name, region.ID)
		}
		seen[region.ID] = true
		chain = append(chain, region)
		id = region.Parent
	}
}
