package httpapi

import (
	"os"
	"path/filepath"
	"sort"
	"time"
)

// DiskFileSystem roots static serving at a directory.
type DiskFileSystem struct {
	Root string
}

// Open implements FileSystem by reading from disk, rejecting any path
// that would escape Root via "..".
func (d DiskFileSystem) Open(name string) ([]byte, time.Time, bool) {
	clean := filepath.Clean("/" + name)
	full := filepath.Join(d.Root, clean)

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, time.Time{}, false
	}
	info, err := os.Stat(full)
	if err != nil {
		return data, time.Time{}, true
	}
	return data, info.ModTime(), true
}

// packedEntry is one file in an in-memory packed filesystem.
type packedEntry struct {
	name    string
	data    []byte
	modTime time.Time
}

// PackedFileSystem is the in-memory "packed" alternative to
// DiskFileSystem: a sorted table searched in O(log N), with Unlist/Open/Spec
// entry points in place of the C original's unlist()/unpack()/spec().
type PackedFileSystem struct {
	entries []packedEntry
	spec    string
}

// NewPackedFileSystem builds a packed filesystem from a name->bytes
// map, sorting entries once so Open can binary-search.
func NewPackedFileSystem(spec string, files map[string][]byte, builtAt time.Time) *PackedFileSystem {
	pfs := &PackedFileSystem{spec: spec}
	for name, data := range files {
		pfs.entries = append(pfs.entries, packedEntry{name: name, data: data, modTime: builtAt})
	}
	sort.Slice(pfs.entries, func(i, j int) bool { return pfs.entries[i].name < pfs.entries[j].name })
	return pfs
}

// Spec identifies the build that generated this packed filesystem.
func (p *PackedFileSystem) Spec() string { return p.spec }

// Unlist enumerates entries by index.
func (p *PackedFileSystem) Unlist(i int) (name string, ok bool) {
	if i < 0 || i >= len(p.entries) {
		return "", false
	}
	return p.entries[i].name, true
}

// Open implements FileSystem with a binary search over the sorted table.
func (p *PackedFileSystem) Open(name string) ([]byte, time.Time, bool) {
	lo, hi := 0, len(p.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if p.entries[mid].name < name {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(p.entries) && p.entries[lo].name == name {
		return p.entries[lo].data, p.entries[lo].modTime, true
	}
	return nil, time.Time{}, false
}
