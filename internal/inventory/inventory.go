// Package inventory holds a read-only snapshot of the IPAM data the sync reads:
// the DCIM hierarchy (regions, sites, racks, devices), virtual machines,
// interfaces, services and IP addresses.
package inventory

import (
	"fmt"
	"net/netip"
	"sort"
)

// Assigned object types, as NetBox names them.
const (
	ObjectInterface   = "dcim.interface"
	ObjectVMInterface = "virtualization.vminterface"
)

// Region is a node of the region tree.
type Region struct {
	ID     int    `yaml:"id"`
	Name   string `yaml:"name"`
	Slug   string `yaml:"slug"`
	Parent *int   `yaml:"parent"`
}

func (r *Region) String() string { return r.Name }

type Site struct {
	ID     int     `yaml:"id"`
	Name   string  `yaml:"name"`
	Slug   string  `yaml:"slug"`
	Region *int    `yaml:"region"`
	Tenant *string `yaml:"tenant"`
}

func (s *Site) String() string { return s.Name }

type Rack struct {
	ID   int    `yaml:"id"`
	Name string `yaml:"name"`
	Site int    `yaml:"site"`
}

func (r *Rack) String() string { return r.Name }

// Device is a physical device. PrimaryIP4/PrimaryIP6 reference IP address ids.
type Device struct {
	ID         int     `yaml:"id"`
	Name       string  `yaml:"name"`
	Role       string  `yaml:"role"`
	Serial     string  `yaml:"serial"`
	Site       int     `yaml:"site"`
	Rack       *int    `yaml:"rack"`
	Tenant     *string `yaml:"tenant"`
	PrimaryIP4 *int    `yaml:"primary_ip4"`
	PrimaryIP6 *int    `yaml:"primary_ip6"`
}

func (d *Device) String() string { return d.Name }

// VirtualMachine optionally runs on a host Device.
type VirtualMachine struct {
	ID         int     `yaml:"id"`
	Name       string  `yaml:"name"`
	Role       string  `yaml:"role"`
	Cluster    string  `yaml:"cluster"`
	Device     *int    `yaml:"device"`
	Tenant     *string `yaml:"tenant"`
	PrimaryIP4 *int    `yaml:"primary_ip4"`
	PrimaryIP6 *int    `yaml:"primary_ip6"`
}

func (vm *VirtualMachine) String() string { return vm.Name }

// Interface is either a device interface (Device set) or a VM interface
// (VirtualMachine set).
type Interface struct {
	ID             int    `yaml:"id"`
	Name           string `yaml:"name"`
	Device         *int   `yaml:"device"`
	VirtualMachine *int   `yaml:"virtual_machine"`
}

func (i *Interface) String() string { return i.Name }

// Service is bound to a device or a VM and lists the IP addresses it answers on.
type Service struct {
	ID             int    `yaml:"id"`
	Name           string `yaml:"name"`
	Protocol       string `yaml:"protocol"`
	Ports          []int  `yaml:"ports"`
	Device         *int   `yaml:"device"`
	VirtualMachine *int   `yaml:"virtual_machine"`
	IPAddresses    []int  `yaml:"ipaddresses"`
}

func (s *Service) String() string { return s.Name }

type ObjectRef struct {
	Type string `yaml:"type"`
	ID   int    `yaml:"id"`
}

// IPAddress is an address in CIDR notation, e.g. "192.0.2.10/24".
type IPAddress struct {
	ID             int        `yaml:"id"`
	Address        string     `yaml:"address"`
	DNSName        string     `yaml:"dns_name"`
	Tenant         *string    `yaml:"tenant"`
	AssignedObject *ObjectRef `yaml:"assigned_object"`

	prefix netip.Prefix
}

// Addr returns the host address without the prefix length.
func (ip *IPAddress) Addr() netip.Addr { return ip.prefix.Addr() }

// Bits returns the prefix length of the address.
func (ip *IPAddress) Bits() int { return ip.prefix.Bits() }

// Family returns 4 or 6.
func (ip *IPAddress) Family() int {
	if ip.prefix.Addr().Is4() {
		return 4
	}
	return 6
}

func (ip *IPAddress) String() string { return ip.prefix.Addr().String() }

// parse reads the address. IPv4-mapped IPv6 addresses are stored as plain
// IPv4 so the value, record type and family all agree.
func (ip *IPAddress) parse() error {
	if p, err := netip.ParsePrefix(ip.Address); err == nil {
		ip.prefix = unmap(p.Addr(), p.Bits())
		return nil
	}
	addr, err := netip.ParseAddr(ip.Address)
	if err != nil {
		return fmt.Errorf("ip address %d: invalid address %q: %w", ip.ID, ip.Address, err)
	}
	ip.prefix = unmap(addr, addr.BitLen())
	return nil
}

func unmap(addr netip.Addr, bits int) netip.Prefix {
	if addr.Is4In6() {
		return netip.PrefixFrom(addr.Unmap(), max(bits-96, 0))
	}
	return netip.PrefixFrom(addr, bits)
}

// Snapshot is the serialized form of the inventory.
type Snapshot struct {
	Regions         []*Region         `yaml:"regions"`
	Sites           []*Site           `yaml:"sites"`
	Racks           []*Rack           `yaml:"racks"`
	Devices         []*Device         `yaml:"devices"`
	VirtualMachines []*VirtualMachine `yaml:"virtual_machines"`
	Interfaces      []*Interface      `yaml:"interfaces"`
	VMInterfaces    []*Interface      `yaml:"vm_interfaces"`
	Services        []*Service        `yaml:"services"`
	IPAddresses     []*IPAddress      `yaml:"ip_addresses"`
}

// Inventory is an indexed, read-only view over a Snapshot.
type Inventory struct {
	regions      map[int]*Region
	sites        map[int]*Site
	racks        map[int]*Rack
	devices      map[int]*Device
	vms          map[int]*VirtualMachine
	interfaces   map[int]*Interface
	vmInterfaces map[int]*Interface
	services     map[int]*Service
	ips          map[int]*IPAddress
	ipServices   map[int]*Service
}

// New indexes a snapshot. Duplicate ids and unparsable addresses are rejected;
// dangling references are tolerated and resolve as absent.
func New(s *Snapshot) (*Inventory, error) {
	inv := &Inventory{
		regions:      make(map[int]*Region, len(s.Regions)),
		sites:        make(map[int]*Site, len(s.Sites)),
		racks:        make(map[int]*Rack, len(s.Racks)),
		devices:      make(map[int]*Device, len(s.Devices)),
		vms:          make(map[int]*VirtualMachine, len(s.VirtualMachines)),
		interfaces:   make(map[int]*Interface, len(s.Interfaces)),
		vmInterfaces: make(map[int]*Interface, len(s.VMInterfaces)),
		services:     make(map[int]*Service, len(s.Services)),
		ips:          make(map[int]*IPAddress, len(s.IPAddresses)),
		ipServices:   make(map[int]*Service),
	}
	if err := index(inv.regions, s.Regions, "region", func(r *Region) int { return r.ID }); err != nil {
		return nil, err
	}
	if err := index(inv.sites, s.Sites, "site", func(v *Site) int { return v.ID }); err != nil {
		return nil, err
	}
	if err := index(inv.racks, s.Racks, "rack", func(v *Rack) int { return v.ID }); err != nil {
		return nil, err
	}
	if err := index(inv.devices, s.Devices, "device", func(v *Device) int { return v.ID }); err != nil {
		return nil, err
	}
	if err := index(inv.vms, s.VirtualMachines, "virtual machine", func(v *VirtualMachine) int { return v.ID }); err != nil {
		return nil, err
	}
	if err := index(inv.interfaces, s.Interfaces, "interface", func(v *Interface) int { return v.ID }); err != nil {
		return nil, err
	}
	if err := index(inv.vmInterfaces, s.VMInterfaces, "vm interface", func(v *Interface) int { return v.ID }); err != nil {
		return nil, err
	}
	if err := index(inv.services, s.Services, "service", func(v *Service) int { return v.ID }); err != nil {
		return nil, err
	}
	for _, ip := range s.IPAddresses {
		if ip == nil {
			continue
		}
		if err := ip.parse(); err != nil {
			return nil, err
		}
	}
	if err := index(inv.ips, s.IPAddresses, "ip address", func(v *IPAddress) int { return v.ID }); err != nil {
		return nil, err
	}
	for _, svc := range sortedValues(inv.services) {
		for _, id := range svc.IPAddresses {
			if _, ok := inv.ipServices[id]; !ok {
				inv.ipServices[id] = svc
			}
		}
	}
	return inv, nil
}

func index[T any](dst map[int]*T, items []*T, kind string, id func(*T) int) error {
	for _, item := range items {
		if item == nil {
			continue
		}
		k := id(item)
		if _, dup := dst[k]; dup {
			return fmt.Errorf("duplicate %s id %d", kind, k)
		}
		dst[k] = item
	}
	return nil
}

func sortedValues[T any](m map[int]*T) []*T {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]*T, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func lookup[T any](m map[int]*T, id *int) (*T, bool) {
	if id == nil {
		return nil, false
	}
	v, ok := m[*id]
	return v, ok
}

func (inv *Inventory) Region(id *int) (*Region, bool) { return lookup(inv.regions, id) }
func (inv *Inventory) Site(id *int) (*Site, bool) { return lookup(inv.sites, id) }
func (inv *Inventory) Rack(id *int) (*Rack, bool) { return lookup(inv.racks, id) }
func (inv *Inventory) Device(id *int) (*Device, bool) { return lookup(inv.devices, id) }
func (inv *Inventory) IPAddress(id *int) (*IPAddress, bool) {
	return lookup(inv.ips, id)
}

func (inv *Inventory) VirtualMachine(id *int) (*VirtualMachine, bool) {
	return lookup(inv.vms, id)
}

// Interface resolves an assigned object reference to a device or VM interface.
func (inv *Inventory) Interface(ref *ObjectRef) (*Interface, bool) {
	if ref == nil {
		return nil, false
	}
	switch ref.Type {
	case ObjectInterface:
		return lookup(inv.interfaces, &ref.ID)
	case ObjectVMInterface:
		return lookup(inv.vmInterfaces, &ref.ID)
	}
	return nil, false
}

// ServiceForIP returns the lowest-id service bound to the given address.
func (inv *Inventory) ServiceForIP(id int) (*Service, bool) {
	svc, ok := inv.ipServices[id]
	return svc, ok
}

// IPAddresses returns every address scoped to tenant, ordered by id.
// A nil tenant selects addresses without a tenant.
func (inv *Inventory) IPAddresses(tenant *string) []*IPAddress {
	var out []*IPAddress
	for _, ip := range sortedValues(inv.ips) {
		if SameTenant(ip.Tenant, tenant) {
			out = append(out, ip)
		}
	}
	return out
}

// Devices returns the devices owned by tenant, ordered by id.
func (inv *Inventory) Devices(tenant *string) []*Device {
	var out []*Device
	for _, d := range sortedValues(inv.devices) {
		if SameTenant(d.Tenant, tenant) {
			out = append(out, d)
		}
	}
	return out
}

// VirtualMachines returns the VMs owned by tenant, ordered by id.
func (inv *Inventory) VirtualMachines(tenant *string) []*VirtualMachine {
	var out []*VirtualMachine
	for _, vm := range sortedValues(inv.vms) {
		if SameTenant(vm.Tenant, tenant) {
			out = append(out, vm)
		}
	}
	return out
}

// Services returns all services ordered by id.
func (inv *Inventory) Services() []*Service {
	return sortedValues(inv.services)
}

// SameTenant reports whether two optional tenant references are equal.
func SameTenant(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// TenantName renders an optional tenant for logs and record metadata.
func TenantName(t *string) string {
	if t == nil {
		return ""
	}
	return *t
}
