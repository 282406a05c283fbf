// Package sysmap abstracts the OS page-mapping primitive that the hybrid
// allocator builds on: reserve N pages of zero-faulted virtual memory,
// release them, flip their protection between read-only and read/write, and
// give the OS a best-effort hint about which NUMA node should back them.
package sysmap

import "errors"

// Mode is the protection mode a region can be switched to.
type Mode int

const (
	// ReadWrite allows both loads and stores.
	ReadWrite Mode = iota
	// ReadOnly allows loads only; used while a chunk's backing pages are
	// being written out to disk without risking a concurrent mutation.
	ReadOnly
)

// ErrReserveFailed is returned when the OS refuses to hand back virtual
// memory. This is fatal in the allocation context; callers in
// this module never swallow it silently.
var ErrReserveFailed = errors.New("sysmap: page reservation failed")

// Region describes one contiguous mapping obtained from Reserve. Base is the
// address of the first byte for bookkeeping (chunk descriptors key off it);
// Bytes is the live mapping and must be used for all reads, writes,
// Protect, and Bind calls — the mapping is only valid as long as this slice
// header is not discarded.
type Region struct {
	Base  uintptr
	Bytes []byte
	Node  int
}

// SysMap is the abstract OS page-mapping primitive. Every method operates on
// whole pages; PageBytes is fixed for the lifetime of a SysMap instance.
type SysMap interface {
	// Reserve obtains a zero-faulted, zeroed mapping of pages*PageBytes
	// bytes. Failure is fatal to the caller (see ErrReserveFailed).
	Reserve(pages int) (*Region, error)

	// Release returns a previously reserved region to the OS. r must be
	// exactly what Reserve returned (or a region SysMap otherwise vouches
	// for); partial releases are not supported.
	Release(r *Region) error

	// Protect changes the protection of the pages
	// [offsetPages, offsetPages+pages) within r. A failure here is logged,
	// not fatal — the caller may observe a segfault later on that region.
	Protect(r *Region, offsetPages, pages int, mode Mode) error

	// Bind is a best-effort hint that the pages [offsetPages,
	// offsetPages+pages) within r should be backed by memory local to node.
	// It is a no-op wherever NUMA policy binding is unsupported, but it
	// always forces first-touch residency by touching one byte per page,
	// since that is required for the hint to have any effect at all.
	Bind(r *Region, offsetPages, pages int, node int) error

	// PageBytes returns the fixed page size this SysMap was built for.
	PageBytes() int
}
