package hybrid

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/waypointdb/waypoint/sysmap"
)

func testConfig() Config {
	return Config{
		PageBytesExp:  12,
		MaxOrder:      2, // buddy arena tops out at 4 pages
		InitHeapPages: 8,
		HeapGrowPages: 8,
		HashSegBytes:  3 << 12, // distinct from every plain page count exercised below
		NumNodes:      2,
	}
}

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	a, err := NewAllocator(testConfig(), newFakeSysMap(4096))
	require.NoError(t, err)
	return a
}

func TestAllocatorBasicAllocFree(t *testing.T) {
	a := newTestAllocator(t)

	addr, err := a.Alloc(2, 0)
	require.NoError(t, err)
	require.NotZero(t, addr)

	a.Free(addr)
}

func TestAllocatorBuddyVsTreeDispatch(t *testing.T) {
	a := newTestAllocator(t)

	small, err := a.Alloc(2, 0) // within buddy range
	require.NoError(t, err)
	_, isBuddy := a.ptrToBuddy[small]
	require.True(t, isBuddy, "expected a small request to be served by the buddy arena")

	large, err := a.Alloc(32, 0) // exceeds buddy arena max
	require.NoError(t, err)
	_, isTree := a.ptrToTree[large]
	require.True(t, isTree, "expected an oversized request to be served by the free tree")

	a.Free(small)
	a.Free(large)
}

func TestAllocatorMultipleAllocations(t *testing.T) {
	a := newTestAllocator(t)

	var addrs []Addr
	for i := 0; i < 8; i++ {
		addr, err := a.Alloc(1, 0)
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}
	for _, addr := range addrs {
		a.Free(addr)
	}
}

func TestAllocatorInvalidFreePanics(t *testing.T) {
	a := newTestAllocator(t)
	require.Panics(t, func() { a.Free(Addr(0xdeadbeef)) })
}

func TestAllocatorZeroPageAllocReturnsNull(t *testing.T) {
	a := newTestAllocator(t)
	addr, err := a.Alloc(0, 0)
	require.NoError(t, err)
	require.Equal(t, Addr(0), addr)
}

func TestAllocatorFreeNullIsNoop(t *testing.T) {
	a := newTestAllocator(t)
	require.NotPanics(t, func() { a.Free(Addr(0)) })
}

func TestAllocatorProtectNullIsNoop(t *testing.T) {
	a := newTestAllocator(t)
	require.NoError(t, a.Protect(Addr(0), sysmap.ReadOnly))
}

func TestAllocatorPageAccountingInvariant(t *testing.T) {
	a := newTestAllocator(t)
	// mappedPages counts every page reserved for the buddy and free-tree
	// arenas, including regions added by heap growth (the 16-page request
	// below grows node 0).
	mappedPages := func() int {
		total := 0
		for _, na := range a.nodes {
			total += a.cfg.BuddyHeapPages()
			for _, r := range na.treeRegions {
				total += len(r.Bytes) / a.pageBytes
			}
		}
		return total
	}

	sizes := []int{1, 2, 4, 8, 16}
	var addrs []Addr
	for _, s := range sizes {
		addr, err := a.Alloc(s, 0)
		require.NoError(t, err)
		addrs = append(addrs, addr)
	}

	require.Equal(t, mappedPages(), a.AllocatedPages()+a.FreePages())

	for _, addr := range addrs {
		a.Free(addr)
	}
	require.Equal(t, mappedPages(), a.AllocatedPages()+a.FreePages())
	require.Zero(t, a.AllocatedPages())
}

func TestAllocatorBuddyCoalescesOnFree(t *testing.T) {
	a := newTestAllocator(t)
	na := a.nodes[0]

	a1, err := a.Alloc(1, 0)
	require.NoError(t, err)
	a2, err := a.Alloc(1, 0)
	require.NoError(t, err)
	a3, err := a.Alloc(1, 0)
	require.NoError(t, err)
	a4, err := a.Alloc(1, 0)
	require.NoError(t, err)

	a.Free(a1)
	a.Free(a2)
	a.Free(a3)
	a.Free(a4)

	require.Len(t, na.buddyFree[a.maxOrder], 1, "expected every split block to coalesce back into one root chunk")
}

func TestAllocatorCrossNodeTreeFallback(t *testing.T) {
	a := newTestAllocator(t)

	// Exhaust node 0's free tree and force a fallback onto node 1.
	_, err := a.Alloc(8, 0)
	require.NoError(t, err)

	addr, err := a.Alloc(6, 0)
	require.NoError(t, err)
	rt, ok := a.ptrToTree[addr]
	require.True(t, ok)
	require.Equal(t, 1, rt.node, "expected the second oversized request to fall back to node 1's free tree")

	a.Free(addr)
}

func TestAllocatorGrowsHeapWhenAllNodesExhausted(t *testing.T) {
	a := newTestAllocator(t)

	for n := 0; n < len(a.nodes); n++ {
		_, err := a.Alloc(8, n)
		require.NoError(t, err)
	}

	before := len(a.nodes[0].treeRegions)
	_, err := a.Alloc(6, 0)
	require.NoError(t, err)
	require.Greater(t, len(a.nodes[0].treeRegions), before, "expected node 0's heap to grow once both nodes were exhausted")
}

func TestAllocatorHashSegments(t *testing.T) {
	a := newTestAllocator(t)

	first, err := a.AllocHashSegment()
	require.NoError(t, err)
	a.FreeHashSegment(first)

	second, err := a.AllocHashSegment()
	require.NoError(t, err)
	require.Equal(t, first, second, "expected a freed segment to be reused before mapping a new one")

	a.FreeHashSegment(second)
	require.Panics(t, func() { a.FreeHashSegment(Addr(0xbad)) })
}

func TestAllocatorAllocRoutesHashSegSizeToSlab(t *testing.T) {
	a := newTestAllocator(t)
	require.Equal(t, 3, a.cfg.HashSegPages())

	viaAlloc, err := a.Alloc(a.cfg.HashSegPages(), 0)
	require.NoError(t, err)
	viaHashSeg, err := a.AllocHashSegment()
	require.NoError(t, err)
	require.NotEqual(t, viaAlloc, viaHashSeg)

	// Both addresses are slab-backed, so plain Free must recognize them
	// without panicking, and neither shows up in the buddy/tree maps.
	require.NotPanics(t, func() { a.Free(viaAlloc) })
	require.NotPanics(t, func() { a.Free(viaHashSeg) })
	require.NotContains(t, a.ptrToBuddy, viaAlloc)
	require.NotContains(t, a.ptrToTree, viaAlloc)
}

func TestAllocatorClose(t *testing.T) {
	a := newTestAllocator(t)
	_, err := a.Alloc(2, 0)
	require.NoError(t, err)
	require.NoError(t, a.Close())
}
