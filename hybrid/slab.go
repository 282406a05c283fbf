package hybrid

import "github.com/waypointdb/waypoint/sysmap"

func newSlabAllocator(sm sysmap.SysMap, hashSegPages int) *slabAllocator {
	return &slabAllocator{
		sm:           sm,
		hashSegPages: hashSegPages,
		occupied:     make(map[Addr]*sysmap.Region),
	}
}

// alloc hands out one hash segment, reusing a previously freed one when
// available, grounded on NumaMemoryAllocator's reserved_hash_segs LIFO. Both
// the reuse and fresh-map branches must leave the segment read/write before
// it's handed back, mirroring HashSegAlloc's SYS_MMAP_PROT call.
func (s *slabAllocator) alloc() (Addr, error) {
	var region *sysmap.Region
	if n := len(s.reserved); n > 0 {
		region = s.reserved[n-1]
		s.reserved = s.reserved[:n-1]
		s.reservedPages -= s.hashSegPages
		debugf("slab: reusing reserved segment at %d", region.Base)
	} else {
		var err error
		region, err = s.sm.Reserve(s.hashSegPages)
		if err != nil {
			errorf("slab: failed to map new segment: %v", err)
			return 0, err
		}
		debugf("slab: mapped new segment at %d", region.Base)
	}
	if err := s.sm.Protect(region, 0, s.hashSegPages, sysmap.ReadWrite); err != nil {
		errorf("slab: failed to set segment read/write: %v", err)
		return 0, err
	}
	addr := Addr(region.Base)
	s.occupied[addr] = region
	s.occupiedPages += s.hashSegPages
	return addr, nil
}

// free moves an occupied segment back onto the reserved free list rather
// than releasing its OS mapping, matching NumaMemoryAllocator's treatment
// of hash segments as a fixed pool that is never shrunk back to the OS.
func (s *slabAllocator) free(addr Addr) bool {
	region, ok := s.occupied[addr]
	if !ok {
		return false
	}
	delete(s.occupied, addr)
	s.occupiedPages -= s.hashSegPages
	s.reserved = append(s.reserved, region)
	s.reservedPages += s.hashSegPages
	return true
}

// close releases every mapped segment, reserved or occupied, back to the
// OS. Errors from individual releases are aggregated rather than
// abandoning the sweep partway through.
func (s *slabAllocator) close() error {
	var merr multiErrorAdder
	for _, r := range s.reserved {
		merr.add(s.sm.Release(r))
	}
	for _, r := range s.occupied {
		merr.add(s.sm.Release(r))
	}
	s.reserved = nil
	s.occupied = make(map[Addr]*sysmap.Region)
	return merr.errorOrNil()
}
