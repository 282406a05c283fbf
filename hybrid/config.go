package hybrid

// Config holds the allocator's tunable constants, made runtime
// configurable and loadable from YAML by cmd/waypointd (see
// cmd/waypointd/config.go), instead of being baked in as C preprocessor macros the
// way the original NumaMemoryAllocator/BuddyMemoryAllocator sources did.
type Config struct {
	// PageBytesExp is log2 of the page size (typical 12 for 4KiB pages, 19
	// for large pages).
	PageBytesExp int `yaml:"page_bytes_exp"`
	// MaxOrder bounds the buddy arena: the largest block is 1<<MaxOrder
	// pages.
	MaxOrder int `yaml:"max_order"`
	// InitHeapPages is the initial free-tree region size, per NUMA node.
	InitHeapPages int `yaml:"init_heap_pages"`
	// HeapGrowPages is how many pages a free-tree growth request maps, if
	// larger than the pages actually needed to satisfy the request that
	// triggered the growth.
	HeapGrowPages int `yaml:"heap_grow_pages"`
	// HashSegBytes is the distinguished slab segment size; it is rounded up
	// to a whole number of pages to get HashSegPages.
	HashSegBytes int `yaml:"hash_seg_bytes"`
	// NumNodes is the number of NUMA-node arenas to create. 1 disables NUMA
	// entirely (fallback and Bind become no-ops beyond first-touch).
	NumNodes int `yaml:"num_nodes"`
	// AccountSlabPages selects the slab accounting policy:
	// when true, slab occupied/reserved segments are folded into
	// AllocatedPages/FreePages; when false (default, matching the source
	// revisions that comment this out) slab accounting is tracked
	// separately via SlabAllocatedPages and never touches the shared
	// counters, since a slab segment's OS mapping is never released.
	AccountSlabPages bool `yaml:"account_slab_pages"`
}

// DefaultConfig returns typical values for local development.
func DefaultConfig() Config {
	return Config{
		PageBytesExp:     12,
		MaxOrder:         10,
		InitHeapPages:    1024,
		HeapGrowPages:    4096,
		HashSegBytes:     16 << 12, // 16 pages worth at the default page size
		NumNodes:         1,
		AccountSlabPages: false,
	}
}

// PageBytes returns 1<<PageBytesExp.
func (c Config) PageBytes() int { return 1 << uint(c.PageBytesExp) }

// BuddyHeapPages returns 1<<MaxOrder, the largest single buddy allocation
// and the fixed size of each node's buddy base region.
func (c Config) BuddyHeapPages() int { return 1 << uint(c.MaxOrder) }

// HashSegPages rounds HashSegBytes up to a whole number of pages.
func (c Config) HashSegPages() int {
	pb := c.PageBytes()
	return (c.HashSegBytes + pb - 1) / pb
}

func bytesToPages(numBytes uint64, pageBytes int) int {
	pb := uint64(pageBytes)
	return int((numBytes + pb - 1) / pb)
}
