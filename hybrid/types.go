package hybrid

import "github.com/waypointdb/waypoint/sysmap"

// Addr is a user-visible allocation handle: the virtual address of the
// first byte of an allocated chunk. It is opaque to callers beyond identity
// and pointer arithmetic performed internally by this package.
type Addr uintptr

// buddyChunk describes one block inside a node's buddy arena. size ==
// 1<<order and pageIndex%size == 0 always hold while the descriptor is
// reachable from live or a free list.
type buddyChunk struct {
	pageIndex int
	order     int
	used      bool
}

func (c *buddyChunk) size() int { return 1 << uint(c.order) }

// treeChunk describes one block inside a node's free-tree arena. prev/next
// form a doubly-linked list sorted by ascending base address across every
// chunk carved from the same region.
type treeChunk struct {
	region      *sysmap.Region
	offsetPages int
	size        int
	node        int
	used        bool
	prev        *treeChunk
	next        *treeChunk
}

func (c *treeChunk) addr(pageBytes int) Addr {
	return Addr(c.region.Base) + Addr(c.offsetPages*pageBytes)
}

// nodeArena groups the buddy and free-tree arenas that back one NUMA node,
// plus the region list backing both.
type nodeArena struct {
	node int

	buddyRegion *sysmap.Region
	buddyFree   [][]*buddyChunk // index by order, 0..MaxOrder
	buddyLive   map[int]*buddyChunk // keyed by pageIndex, only while allocated

	treeRegions  []*sysmap.Region
	treeHeads    []*treeChunk // one physically-ordered list head per region, index-aligned with treeRegions
	treeBySize   []*treeChunk // best-fit candidates, kept sorted ascending by size

	buddyPool *pool[buddyChunk]
	treePool  *pool[treeChunk]
}

func newNodeArena(node int) *nodeArena {
	return &nodeArena{
		node:      node,
		buddyLive: make(map[int]*buddyChunk),
		buddyPool: newPool(func() *buddyChunk { return &buddyChunk{} }),
		treePool:  newPool(func() *treeChunk { return &treeChunk{} }),
	}
}

// resolvedBuddy and resolvedTree let Free/Protect map a caller-visible Addr
// back to its owning node and descriptor without scanning every arena.
type resolvedBuddy struct {
	node  int
	chunk *buddyChunk
}

type resolvedTree struct {
	node  int
	chunk *treeChunk
}

// slabAllocator hands out fixed-size hash segments from a single
// allocator-wide pool, grounded on NumaMemoryAllocator's reserved_hash_segs
// (a LIFO free list of pre-mapped segments) and occupied_hash_segs (the
// in-use set), which the original declares on the allocator itself rather
// than per NUMA node.
type slabAllocator struct {
	sm            sysmap.SysMap
	hashSegPages  int
	reserved      []*sysmap.Region
	occupied      map[Addr]*sysmap.Region
	occupiedPages int
	reservedPages int
}
