package hybrid

import "math/bits"

// orderOf returns the smallest k such that 1<<k >= pages, matching the
// original BuddyMemoryAllocator's order computation without a
// floating-point math.Log2 call.
func orderOf(pages int) int {
	if pages <= 1 {
		return 0
	}
	return bits.Len(uint(pages - 1))
}

// buddyInit seeds a node's buddy free lists with a single maximal chunk
// covering the whole buddy region, mirroring the constructor's maxBlock
// seeding in the original buddy allocator.
func buddyInit(na *nodeArena, maxOrder int) {
	na.buddyFree = make([][]*buddyChunk, maxOrder+1)
	root := na.buddyPool.get()
	*root = buddyChunk{pageIndex: 0, order: maxOrder}
	na.buddyFree[maxOrder] = append(na.buddyFree[maxOrder], root)
}

// buddyAlloc finds and splits a free block down to the requested order,
// grounded on BuddyRegion.allocate. It returns ErrSizeTooLarge if the
// order exceeds the arena's maximum, and ErrNoSpaceAvailable if every list
// at or above the order is empty.
func buddyAlloc(na *nodeArena, pages int, maxOrder int) (*buddyChunk, error) {
	order := orderOf(pages)
	if order > maxOrder {
		return nil, ErrSizeTooLarge
	}
	for i := order; i <= maxOrder; i++ {
		free := na.buddyFree[i]
		if len(free) == 0 {
			continue
		}
		c := free[len(free)-1]
		na.buddyFree[i] = free[:len(free)-1]

		for j := i - 1; j >= order; j-- {
			buddy := na.buddyPool.get()
			*buddy = buddyChunk{pageIndex: c.pageIndex + (1 << uint(j)), order: j}
			na.buddyFree[j] = append(na.buddyFree[j], buddy)
		}
		c.order = order
		c.used = true
		na.buddyLive[c.pageIndex] = c
		return c, nil
	}
	return nil, ErrNoSpaceAvailable
}

// buddyRelease returns a chunk to the free lists, coalescing with its
// buddy at each order in turn, grounded on BuddyRegion.mergeBlockLocked.
// This runs synchronously on the caller's goroutine under the allocator's
// single lock rather than via a background merge channel, since every
// allocator operation is already serialized by that lock.
func buddyRelease(na *nodeArena, c *buddyChunk, maxOrder int) {
	delete(na.buddyLive, c.pageIndex)
	c.used = false
	pageIndex := c.pageIndex
	order := c.order
	cur := c

	for order < maxOrder {
		buddyIndex := pageIndex ^ (1 << uint(order))
		free := na.buddyFree[order]
		pos := -1
		for i, b := range free {
			if b.pageIndex == buddyIndex {
				pos = i
				break
			}
		}
		if pos == -1 {
			break
		}
		buddy := free[pos]
		na.buddyFree[order] = append(free[:pos], free[pos+1:]...)
		if buddyIndex < pageIndex {
			pageIndex = buddyIndex
		}
		na.buddyPool.put(buddy)
		order++
	}
	cur.pageIndex = pageIndex
	cur.order = order
	na.buddyFree[order] = append(na.buddyFree[order], cur)
}
