// Package hybrid provides page-granular memory allocation combining a
// fixed-size slab for hash segments, a power-of-two buddy arena for small
// and medium requests, and a best-fit sized free tree with
// physical-neighbour coalescing for the remainder, dispatched per NUMA
// node through a single façade.
package hybrid

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/waypointdb/waypoint/sysmap"
)

// Allocator is the top-level dispatching façade. A single
// exclusive lock guards all allocator state; every exported method takes
// it for the duration of the call.
type Allocator struct {
	mu sync.Mutex

	cfg Config
	sm  sysmap.SysMap

	pageBytes int
	maxOrder  int

	nodes []*nodeArena
	slab  *slabAllocator

	ptrToBuddy map[Addr]resolvedBuddy
	ptrToTree  map[Addr]resolvedTree

	allocatedPages int
	freePages      int

	slabAllocatedPages int
}

// NewAllocator maps the initial per-node buddy and free-tree regions and
// returns a ready-to-use façade, wiring a fresh buddy arena and free tree
// for every configured NUMA node plus one slab allocator shared by all
// nodes.
func NewAllocator(cfg Config, sm sysmap.SysMap) (*Allocator, error) {
	if cfg.NumNodes < 1 {
		cfg.NumNodes = 1
	}
	a := &Allocator{
		cfg:        cfg,
		sm:         sm,
		pageBytes:  cfg.PageBytes(),
		maxOrder:   cfg.MaxOrder,
		slab:       newSlabAllocator(sm, cfg.HashSegPages()),
		ptrToBuddy: make(map[Addr]resolvedBuddy),
		ptrToTree:  make(map[Addr]resolvedTree),
	}

	for n := 0; n < cfg.NumNodes; n++ {
		na := newNodeArena(n)

		buddyRegion, err := sm.Reserve(cfg.BuddyHeapPages())
		if err != nil {
			return nil, errors.Wrapf(err, "hybrid: reserve buddy region for node %d", n)
		}
		if err := sm.Bind(buddyRegion, 0, cfg.BuddyHeapPages(), n); err != nil {
			warnf("bind buddy region to node %d failed: %v", n, err)
		}
		na.buddyRegion = buddyRegion
		buddyInit(na, cfg.MaxOrder)
		a.freePages += cfg.BuddyHeapPages()

		treeRegion, err := sm.Reserve(cfg.InitHeapPages)
		if err != nil {
			return nil, errors.Wrapf(err, "hybrid: reserve heap region for node %d", n)
		}
		if err := sm.Bind(treeRegion, 0, cfg.InitHeapPages, n); err != nil {
			warnf("bind heap region to node %d failed: %v", n, err)
		}
		treeInit(na, treeRegion, a.pageBytes)
		a.freePages += cfg.InitHeapPages

		a.nodes = append(a.nodes, na)
	}

	infof("allocator ready: %d node(s), %d free pages", cfg.NumNodes, a.freePages)
	return a, nil
}

// Alloc reserves pages contiguous pages on the given NUMA node. The
// distinguished hash-segment size always routes to the shared slab pool
// regardless of node, matching MmapAlloc's size dispatch; anything else
// splits a buddy block when pages fits within the buddy arena's range and
// falls back to the best-fit free tree otherwise. Per the cross-node
// fallback policy, only the free tree falls back across nodes; the buddy
// arena never does.
func (a *Allocator) Alloc(pages int, node int) (Addr, error) {
	if pages <= 0 {
		return 0, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if node < 0 || node >= len(a.nodes) {
		panic("hybrid: Alloc called with out-of-range node")
	}

	if pages == a.cfg.HashSegPages() {
		return a.allocHashSegmentLocked()
	}

	if orderOf(pages) <= a.maxOrder {
		na := a.nodes[node]
		if c, err := buddyAlloc(na, pages, a.maxOrder); err == nil {
			addr := Addr(na.buddyRegion.Base) + Addr(c.pageIndex*a.pageBytes)
			a.ptrToBuddy[addr] = resolvedBuddy{node: node, chunk: c}
			a.allocatedPages += c.size()
			a.freePages -= c.size()
			debugf("buddy alloc %d pages on node %d at %d", c.size(), node, addr)
			return addr, nil
		}
	}

	return a.allocFromTree(pages, node)
}

// allocFromTree tries the free tree on node, then every other node in
// round-robin order, then grows the heap on the requesting node as a last
// resort, mirroring NumaMemoryAllocator's grow-on-exhaustion behaviour.
func (a *Allocator) allocFromTree(pages int, node int) (Addr, error) {
	order := []int{node}
	for i := 1; i < len(a.nodes); i++ {
		order = append(order, (node+i)%len(a.nodes))
	}

	for _, n := range order {
		na := a.nodes[n]
		c, err := treeAlloc(na, pages)
		if err == nil {
			addr := c.addr(a.pageBytes)
			a.ptrToTree[addr] = resolvedTree{node: n, chunk: c}
			a.allocatedPages += c.size
			a.freePages -= c.size
			debugf("tree alloc %d pages on node %d at %d", c.size, n, addr)
			return addr, nil
		}
	}

	if err := a.growNode(node, pages); err != nil {
		return 0, err
	}
	na := a.nodes[node]
	c, err := treeAlloc(na, pages)
	if err != nil {
		return 0, err
	}
	addr := c.addr(a.pageBytes)
	a.ptrToTree[addr] = resolvedTree{node: node, chunk: c}
	a.allocatedPages += c.size
	a.freePages -= c.size
	return addr, nil
}

// growNode maps a fresh region onto node's free tree, sized to the larger
// of the configured growth increment and the page count that triggered the
// growth, grounded on NumaMemoryAllocator's HEAP_GROW_BY_SIZE behaviour.
func (a *Allocator) growNode(node int, minPages int) error {
	pages := a.cfg.HeapGrowPages
	if minPages > pages {
		pages = minPages
	}
	region, err := a.sm.Reserve(pages)
	if err != nil {
		return errors.Wrapf(err, "hybrid: grow node %d heap by %d pages", node, pages)
	}
	if err := a.sm.Bind(region, 0, pages, node); err != nil {
		warnf("bind grown region to node %d failed: %v", node, err)
	}
	treeInit(a.nodes[node], region, a.pageBytes)
	a.freePages += pages
	infof("grew node %d heap by %d pages", node, pages)
	return nil
}

// Free releases a chunk previously returned by Alloc. A null address is
// tolerated and simply logged, matching a no-op free(nullptr). Lookup order
// mirrors MmapFree's size-class dispatch: the occupied slab set first, then
// the buddy map, then the tree map; an address none of the three recognize
// is a programmer error and panics rather than returning an error.
func (a *Allocator) Free(addr Addr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if addr == 0 {
		warnf("hybrid: Free called with null address, ignoring")
		return
	}

	if a.slab.free(addr) {
		a.settleHashSegmentAccountingLocked(-1)
		debugf("slab free at %d", addr)
		return
	}
	if rb, ok := a.ptrToBuddy[addr]; ok {
		delete(a.ptrToBuddy, addr)
		size := rb.chunk.size()
		a.allocatedPages -= size
		a.freePages += size
		buddyRelease(a.nodes[rb.node], rb.chunk, a.maxOrder)
		debugf("buddy free %d pages on node %d at %d", size, rb.node, addr)
		return
	}
	if rt, ok := a.ptrToTree[addr]; ok {
		delete(a.ptrToTree, addr)
		size := rt.chunk.size
		a.allocatedPages -= size
		a.freePages += size
		treeRelease(a.nodes[rt.node], rt.chunk)
		debugf("tree free %d pages on node %d at %d", size, rt.node, addr)
		return
	}
	panic("hybrid: Free called with unknown address")
}

// AllocHashSegment hands out one fixed-size slab segment (the
// distinguished "hash segment" chunk class), backed by the shared
// allocator-wide slab pool rather than any single node's buddy or tree.
// Alloc also routes requests of exactly HashSegPages here.
func (a *Allocator) AllocHashSegment() (Addr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocHashSegmentLocked()
}

func (a *Allocator) allocHashSegmentLocked() (Addr, error) {
	addr, err := a.slab.alloc()
	if err != nil {
		return 0, err
	}
	a.settleHashSegmentAccountingLocked(1)
	return addr, nil
}

// FreeHashSegment returns a segment obtained from AllocHashSegment or from
// Alloc(HashSegPages, ...). Freeing an address that was never handed out by
// either panics.
func (a *Allocator) FreeHashSegment(addr Addr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.slab.free(addr) {
		panic("hybrid: FreeHashSegment called with unknown address")
	}
	a.settleHashSegmentAccountingLocked(-1)
}

// settleHashSegmentAccountingLocked applies one HashSegPages worth of
// accounting delta (sign +1 on alloc, -1 on free) to whichever counters
// AccountSlabPages selects.
func (a *Allocator) settleHashSegmentAccountingLocked(sign int) {
	delta := sign * a.cfg.HashSegPages()
	if a.cfg.AccountSlabPages {
		a.allocatedPages += delta
		a.freePages -= delta
	} else {
		a.slabAllocatedPages += delta
	}
}

// Protect changes the page protection of a live chunk. A null address is
// silently accepted; addr must otherwise be a live chunk base returned by
// Alloc or AllocHashSegment, and anything else is a programmer error.
// Lookup order matches Free: occupied slab set, buddy map, tree map.
func (a *Allocator) Protect(addr Addr, mode sysmap.Mode) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if addr == 0 {
		return nil
	}

	if region, ok := a.slab.occupied[addr]; ok {
		return a.sm.Protect(region, 0, a.slab.hashSegPages, mode)
	}
	if rb, ok := a.ptrToBuddy[addr]; ok {
		na := a.nodes[rb.node]
		return a.sm.Protect(na.buddyRegion, rb.chunk.pageIndex, rb.chunk.size(), mode)
	}
	if rt, ok := a.ptrToTree[addr]; ok {
		return a.sm.Protect(rt.chunk.region, rt.chunk.offsetPages, rt.chunk.size, mode)
	}
	panic("hybrid: Protect called with unknown address")
}

// AllocatedPages and FreePages report the accounting counters the
// testable property 1 checks against each other:
// AllocatedPages()+FreePages() equals the total page count mapped for the
// buddy and free-tree arenas (slab segment mappings are not included).
func (a *Allocator) AllocatedPages() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocatedPages
}

// FreePages reports the number of pages currently free across every node's
// buddy and free-tree arenas.
func (a *Allocator) FreePages() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freePages
}

// DebugInfo is a structured snapshot of allocator state, replacing the
// original NumaMemoryAllocator::Debugg() diagnostic dump (a
// supplemented feature).
type DebugInfo struct {
	AllocatedPages     int
	FreePages          int
	SlabAllocatedPages int
	SlabReservedPages  int
	Nodes              int
}

// DebugSnapshot returns a point-in-time view of allocator bookkeeping.
func (a *Allocator) DebugSnapshot() DebugInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return DebugInfo{
		AllocatedPages:     a.allocatedPages,
		FreePages:          a.freePages,
		SlabAllocatedPages: a.slabAllocatedPages,
		SlabReservedPages:  a.slab.reservedPages,
		Nodes:              len(a.nodes),
	}
}

// Close releases every mapped region back to the OS, aggregating any
// per-region failures instead of stopping at the first one.
func (a *Allocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var merr multiErrorAdder
	for _, na := range a.nodes {
		merr.add(a.sm.Release(na.buddyRegion))
		for _, r := range na.treeRegions {
			merr.add(a.sm.Release(r))
		}
	}
	merr.add(a.slab.close())
	return merr.errorOrNil()
}
