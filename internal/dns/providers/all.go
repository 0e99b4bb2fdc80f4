// Package providers imports all record store packages to trigger their init() registration.
package providers

import (
	_ "github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns/bolt"
	_ "github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns/cloudflare"
	_ "github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns/memory"
	_ "github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns/opnsense"
	_ "github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns/rfc2136"
	_ "github.com/yuriy-kovalchuk/yk-ipam-dns/internal/dns/zonefile"
)
