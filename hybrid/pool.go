package hybrid

// pool is a reusable free-list of descriptor objects, grounded on the
// original ChunkInfo::GetChunk/PutChunk static pool (avoids a heap
// allocation on every Alloc/Free by recycling descriptors instead of
// letting the garbage collector reclaim and re-create them).
type pool[T any] struct {
	free []*T
	new  func() *T
}

func newPool[T any](newFn func() *T) *pool[T] {
	return &pool[T]{new: newFn}
}

// get returns a descriptor from the free list, or allocates a fresh one if
// the list is empty.
func (p *pool[T]) get() *T {
	n := len(p.free)
	if n == 0 {
		return p.new()
	}
	v := p.free[n-1]
	p.free = p.free[:n-1]
	return v
}

// put returns a descriptor to the free list for reuse. Callers must not
// retain any reference to v afterward.
func (p *pool[T]) put(v *T) {
	p.free = append(p.free, v)
}
