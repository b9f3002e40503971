package netio

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DenyList is a per-service CIDR deny list. Entries are comma-separated CIDR
// strings; a trailing single octet `a/bits` is auto-expanded to
// `a.0.0.0/bits` for compatibility with older dump1090 deny-list files.
type DenyList struct {
	nets []*net.IPNet
}

// ParseCIDRList builds a DenyList from a comma-separated spec string.
func ParseCIDRList(spec string) (*DenyList, error) {
	dl := &DenyList{}
	if strings.TrimSpace(spec) == "" {
		return dl, nil
	}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		entry = expandTrailingOctet(entry)
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("netio: bad deny-list entry %q: %w", entry, err)
		}
		dl.nets = append(dl.nets, ipNet)
	}
	return dl, nil
}

// expandTrailingOctet turns "10/8" into "10.0.0.0/8" for compatibility
// with older dump1090 deny-list files; CIDR entries that already have a
// full dotted address pass through unchanged.
func expandTrailingOctet(entry string) string {
	slash := strings.IndexByte(entry, '/')
	if slash < 0 {
		return entry
	}
	addr, bits := entry[:slash], entry[slash:]
	if strings.Count(addr, ".") != 0 {
		return entry
	}
	if _, err := strconv.Atoi(addr); err != nil {
		return entry
	}
	return addr + ".0.0.0" + bits
}

// Denied reports whether ip falls inside any configured CIDR block.
func (dl *DenyList) Denied(ip net.IP) bool {
	if dl == nil {
		return false
	}
	for _, n := range dl.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// UniqueIPSet is an append-only distinct-client tracker. It only ever
// grows; entries are never removed, since it exists only to report
// distinct client counts per service.
type UniqueIPSet struct {
	seen    map[string]bool
	entries []UniqueIPEntry
}

// UniqueIPEntry is one observed (address, service) first-seen record.
type UniqueIPEntry struct {
	Addr      string
	Service   string
	FirstSeen int64 // unix nanos; avoids importing time here for a single field
}

// NewUniqueIPSet builds an empty tracker.
func NewUniqueIPSet() *UniqueIPSet {
	return &UniqueIPSet{seen: make(map[string]bool)}
}

// Observe records ip for service if it hasn't been seen on that service
// before, returning true the first time. A map grows unboundedly in Go
// without the spec's "fixed increments" ceremony, so failure to grow
// doesn't apply here; the degrade-to-"assume unique" case never arises.
func (u *UniqueIPSet) Observe(ip, service string, nowUnixNano int64) bool {
	key := service + "|" + ip
	if u.seen[key] {
		return false
	}
	u.seen[key] = true
	u.entries = append(u.entries, UniqueIPEntry{Addr: ip, Service: service, FirstSeen: nowUnixNano})
	return true
}

// Count returns the number of distinct (address, service) pairs seen.
func (u *UniqueIPSet) Count() int { return len(u.entries) }
