package hybrid

import "github.com/waypointdb/waypoint/sysmap"

// fakeSysMap backs regions with plain Go byte slices instead of real mmap
// calls, so hybrid's unit tests exercise allocator logic deterministically
// without depending on the host OS.
type fakeSysMap struct {
	pageBytes int
	next      uintptr
}

func newFakeSysMap(pageBytes int) *fakeSysMap {
	return &fakeSysMap{pageBytes: pageBytes, next: 0x1000}
}

func (f *fakeSysMap) PageBytes() int { return f.pageBytes }

func (f *fakeSysMap) Reserve(pages int) (*sysmap.Region, error) {
	base := f.next
	f.next += uintptr(pages*f.pageBytes) + uintptr(f.pageBytes) // leave a gap so regions never look adjacent
	return &sysmap.Region{Base: base, Bytes: make([]byte, pages*f.pageBytes), Node: -1}, nil
}

func (f *fakeSysMap) Release(r *sysmap.Region) error {
	r.Bytes = nil
	return nil
}

func (f *fakeSysMap) Protect(r *sysmap.Region, offsetPages, pages int, mode sysmap.Mode) error {
	return nil
}

func (f *fakeSysMap) Bind(r *sysmap.Region, offsetPages, pages int, node int) error {
	r.Node = node
	return nil
}
