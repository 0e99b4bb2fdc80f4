// Package selection decides which IP-bearing objects a zone run processes.
package selection

import (
	"fmt"

	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/errdefs"
	"github.com/yuriy-kovalchuk/yk-ipam-dns/internal/inventory"
)

// Kind names an iteration strategy.
type Kind string

const (
	// AllAddresses yields every IP address scoped to the tenant.
	AllAddresses Kind = "all-addresses"
	// PrimaryIPs yields the primary IPv4 and IPv6 of every device and VM of the tenant.
	PrimaryIPs Kind = "primary-ips"
	// ServiceIPs yields one entry per IP bound to a service of a tenant's device or VM.
	ServiceIPs Kind = "service-ips"
)

// Kinds lists the supported strategies.
var Kinds = []Kind{AllAddresses, PrimaryIPs, ServiceIPs}

// ParseKind validates a strategy name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", errdefs.Configuration("unknown iteration strategy %q (supported: %v)", s, Kinds)
}

// Target is one IP to name. Service is set when the strategy selected the IP
// through a service binding.
type Target struct {
	IP      *inventory.IPAddress
	Service *inventory.Service
	// Owner describes where the IP came from, for logs.
	Owner string
}

// Source is the read-only inventory surface selection needs.
type Source interface {
	IPAddresses(tenant *string) []*inventory.IPAddress
	IPAddress(id *int) (*inventory.IPAddress, bool)
	Devices(tenant *string) []*inventory.Device
	VirtualMachines(tenant *string) []*inventory.VirtualMachine
	Device(id *int) (*inventory.Device, bool)
	VirtualMachine(id *int) (*inventory.VirtualMachine, bool)
	Services() []*inventory.Service
}

// Select returns the targets of the given strategy for tenant. A nil tenant
// selects objects without a tenant.
func Select(src Source, kind Kind, tenant *string) ([]Target, error) {
	switch kind {
	case AllAddresses:
		return allAddresses(src, tenant), nil
	case PrimaryIPs:
		return primaryIPs(src, tenant), nil
	case ServiceIPs:
		return serviceIPs(src, tenant), nil
	}
	return nil, errdefs.Configuration("unknown iteration strategy %q", kind)
}

func allAddresses(src Source, tenant *string) []Target {
	ips := src.IPAddresses(tenant)
	out := make([]Target, 0, len(ips))
	for _, ip := range ips {
		out = append(out, Target{IP: ip, Owner: fmt.Sprintf("ip %d", ip.ID)})
	}
	return out
}

func primaryIPs(src Source, tenant *string) []Target {
	var out []Target
	add := func(owner string, ids ...*int) {
		for _, id := range ids {
			if ip, ok := src.IPAddress(id); ok {
				out = append(out, Target{IP: ip, Owner: owner})
			}
		}
	}
	for _, d := range src.Devices(tenant) {
		add("device "+d.Name, d.PrimaryIP4, d.PrimaryIP6)
	}
	for _, vm := range src.VirtualMachines(tenant) {
		add("vm "+vm.Name, vm.PrimaryIP4, vm.PrimaryIP6)
	}
	return out
}

func serviceIPs(src Source, tenant *string) []Target {
	var out []Target
	for _, svc := range src.Services() {
		var owner string
		if d, ok := src.Device(svc.Device); ok && inventory.SameTenant(d.Tenant, tenant) {
			owner = "device " + d.Name
		} else if vm, ok := src.VirtualMachine(svc.VirtualMachine); ok && inventory.SameTenant(vm.Tenant, tenant) {
			owner = "vm " + vm.Name
		} else {
			continue
		}
		for _, id := range svc.IPAddresses {
			if ip, ok := src.IPAddress(&id); ok {
				out = append(out, Target{IP: ip, Service: svc, Owner: fmt.Sprintf("%s service %s", owner, svc.Name)})
			}
		}
	}
	return out
}
