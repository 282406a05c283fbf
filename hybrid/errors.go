// Package hybrid implements the page-granular hybrid allocator: a fixed-size
// slab for hash segments, a power-of-two buddy arena for small/medium
// requests, and a best-fit sized free tree with physical-neighbour
// coalescing for the remainder.
package hybrid

import "errors"

// Error definitions. These are the documented, closed set of recoverable
// failure kinds; programmer-error categories (unknown pointer to free,
// unaligned pointer to protect, unsupported token type and the like) are
// raised as panics elsewhere, not returned, since they indicate a broken
// contract rather than a recoverable condition.
var (
	// ErrNoSpaceAvailable is returned when an arena cannot satisfy a
	// request and the caller is expected to try another arena or grow the
	// heap.
	ErrNoSpaceAvailable = errors.New("hybrid: no space available")
	// ErrSizeTooLarge is returned when a requested page count exceeds what
	// the buddy arena can ever represent (order > MaxOrder).
	ErrSizeTooLarge = errors.New("hybrid: requested size too large for buddy arena")
)
