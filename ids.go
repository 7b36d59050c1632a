package mstor

import (
	"fmt"
	"sync/atomic"
)

// idAllocator issues strictly increasing u64 ids via atomic fetch-and-add,
// the way the original allocator does on platforms with a 64-bit atomic.
// Reaching ceiling is treated as fatal: the caller aborts rather than risk
// handing out an id that collides with reserved sharding space.
type idAllocator struct {
	next    uint64
	ceiling uint64
	family  string
}

// newIDAllocator seeds an allocator so that its first Next() call returns
// start.
func newIDAllocator(family string, start, ceiling uint64) *idAllocator {
	return &idAllocator{next: start, ceiling: ceiling, family: family}
}

// Next returns the next id in the family, panicking if the family's
// ceiling has been reached. Panicking (rather than returning an error) is
// deliberate: id-space exhaustion is the one condition the core never
// tries to recover from.
func (a *idAllocator) Next() uint64 {
	id := atomic.AddUint64(&a.next, 1) - 1
	if id >= a.ceiling {
		panic(fmt.Sprintf("mstor: %s id space exhausted at %d", a.family, id))
	}
	return id
}

// Peek returns the id Next() would hand out without consuming it. Used
// only by tests and diagnostics.
func (a *idAllocator) Peek() uint64 {
	return atomic.LoadUint64(&a.next)
}
