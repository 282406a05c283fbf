package hybrid

import (
	"sort"

	"github.com/waypointdb/waypoint/sysmap"
)

// treeInit seeds a node's free tree with a single free chunk spanning the
// whole of region, grounded on BSTreeChunk's use as the sole occupant of a
// freshly-mapped NumaMemoryAllocator heap. Each region gets its own
// physically-ordered list head: a grown region's pages are not contiguous
// with any earlier region's, so its chunks must never be linked onto
// another region's list.
func treeInit(na *nodeArena, region *sysmap.Region, pageBytes int) {
	na.treeRegions = append(na.treeRegions, region)
	c := na.treePool.get()
	*c = treeChunk{region: region, offsetPages: 0, size: len(region.Bytes) / pageBytes, node: na.node}
	na.treeHeads = append(na.treeHeads, c)
	treeInsertBySize(na, c)
}

// treeAlloc finds the smallest free chunk that satisfies pages (best fit)
// via binary search over the size-sorted slice, then splits off any
// remainder as a new free chunk that stays physically linked between the
// allocated chunk and its old physical neighbours, grounded on
// BSTreeChunk::Split.
func treeAlloc(na *nodeArena, pages int) (*treeChunk, error) {
	idx := sort.Search(len(na.treeBySize), func(i int) bool { return na.treeBySize[i].size >= pages })
	if idx == len(na.treeBySize) {
		return nil, ErrNoSpaceAvailable
	}
	c := na.treeBySize[idx]
	treeRemoveBySize(na, idx)

	if c.size > pages {
		rem := na.treePool.get()
		*rem = treeChunk{
			region:      c.region,
			offsetPages: c.offsetPages + pages,
			size:        c.size - pages,
			node:        c.node,
			prev:        c,
			next:        c.next,
		}
		if c.next != nil {
			c.next.prev = rem
		}
		c.next = rem
		c.size = pages
		treeInsertBySize(na, rem)
	}
	c.used = true
	return c, nil
}

// treeRelease returns c to the free tree, coalescing with a physically
// adjacent free predecessor and/or successor, grounded on
// BSTreeChunk::CoalescePrev/CoalesceNext.
func treeRelease(na *nodeArena, c *treeChunk) {
	c.used = false

	if next := c.next; next != nil && !next.used && next.region == c.region {
		c.size += next.size
		c.next = next.next
		if next.next != nil {
			next.next.prev = c
		}
		treeRemoveBySizePtr(na, next)
		na.treePool.put(next)
	}
	if prev := c.prev; prev != nil && !prev.used && prev.region == c.region {
		treeRemoveBySizePtr(na, prev)
		prev.size += c.size
		prev.next = c.next
		if c.next != nil {
			c.next.prev = prev
		}
		na.treePool.put(c)
		c = prev
	}
	treeInsertBySize(na, c)
}

func treeInsertBySize(na *nodeArena, c *treeChunk) {
	idx := sort.Search(len(na.treeBySize), func(i int) bool { return na.treeBySize[i].size >= c.size })
	na.treeBySize = append(na.treeBySize, nil)
	copy(na.treeBySize[idx+1:], na.treeBySize[idx:])
	na.treeBySize[idx] = c
}

func treeRemoveBySize(na *nodeArena, idx int) {
	na.treeBySize = append(na.treeBySize[:idx], na.treeBySize[idx+1:]...)
}

func treeRemoveBySizePtr(na *nodeArena, c *treeChunk) {
	for i, v := range na.treeBySize {
		if v == c {
			treeRemoveBySize(na, i)
			return
		}
	}
}
