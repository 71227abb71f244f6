package memory

import (
	"fmt"
	"math/bits"

	"github.com/CosmWasm/hostapi/types"
)

const (
	headerSize = 8
	// blocks come in power-of-two sizes from 8 bytes (order 0) to 32 MiB
	numOrders    = 23
	minBlockSize = 8
	// MaxAllocation is the largest size Allocate accepts.
	MaxAllocation = minBlockSize << (numOrders - 1)

	occupiedFlag = uint64(1) << 32
	nilLink      = uint32(0xFFFFFFFF)
)

// Allocator is a freeing-bump heap allocator over guest memory. Allocations
// are rounded up to a power of two, preceded by an 8-byte header and carved
// from the bump pointer unless a freed block of the same order is available.
// Memory grows on demand.
type Allocator struct {
	manager *Manager
	bumper  uint32
	heads   [numOrders]uint32
	// total bytes handed out, headers included
	used uint32
}

// NewAllocator creates an allocator whose heap starts at heapBase.
func NewAllocator(manager *Manager, heapBase uint32) *Allocator {
	a := &Allocator{
		manager: manager,
		bumper:  align8(heapBase),
	}
	for i := range a.heads {
		a.heads[i] = nilLink
	}
	return a
}

func align8(v uint32) uint32 {
	return (v + 7) &^ 7
}

func orderOf(size uint32) int {
	if size <= minBlockSize {
		return 0
	}
	return bits.Len32((size-1)/minBlockSize) // ceil(log2(size/8))
}

// Allocate reserves size bytes and returns the address of the first one.
func (a *Allocator) Allocate(size uint32) (uint32, error) {
	if size > MaxAllocation {
		return 0, fmt.Errorf("%w: requested %d bytes", types.ErrOutOfMemory, size)
	}
	order := orderOf(size)
	blockSize := uint32(minBlockSize) << order

	var header uint32
	if head := a.heads[order]; head != nilLink {
		link, err := a.manager.ReadUint64(head)
		if err != nil {
			return 0, err
		}
		a.heads[order] = uint32(link)
		header = head
	} else {
		header = a.bumper
		end := uint64(header) + headerSize + uint64(blockSize)
		if end > 0xFFFFFFFF {
			return 0, fmt.Errorf("%w: address space exhausted", types.ErrOutOfMemory)
		}
		if err := a.ensure(uint32(end)); err != nil {
			return 0, err
		}
		a.bumper = uint32(end)
	}

	if err := a.manager.WriteUint64(header, occupiedFlag|uint64(order)); err != nil {
		return 0, err
	}
	a.used += headerSize + blockSize
	return header + headerSize, nil
}

// ensure grows memory until end is addressable.
func (a *Allocator) ensure(end uint32) error {
	size := a.manager.Size()
	if end <= size {
		return nil
	}
	pages := (end - size + PageSize - 1) / PageSize
	if !a.manager.Grow(pages) {
		return fmt.Errorf("%w: cannot grow memory by %d pages", types.ErrOutOfMemory, pages)
	}
	return nil
}

// Deallocate returns the block at ptr to the free list of its order.
func (a *Allocator) Deallocate(ptr uint32) error {
	if ptr < headerSize {
		return fmt.Errorf("%w: free of %#x", types.ErrInvalidPointer, ptr)
	}
	header := ptr - headerSize
	v, err := a.manager.ReadUint64(header)
	if err != nil {
		return err
	}
	if v&occupiedFlag == 0 {
		return fmt.Errorf("%w: free of unallocated block %#x", types.ErrInvalidPointer, ptr)
	}
	order := int(uint32(v))
	if order >= numOrders {
		return fmt.Errorf("%w: corrupt header at %#x", types.ErrInvalidPointer, header)
	}
	if err := a.manager.WriteUint64(header, uint64(a.heads[order])); err != nil {
		return err
	}
	a.heads[order] = header
	a.used -= headerSize + minBlockSize<<order
	return nil
}

// Write allocates room for data and copies it into guest memory.
func (a *Allocator) Write(data []byte) (Span, error) {
	ptr, err := a.Allocate(uint32(len(data)))
	if err != nil {
		return Span{}, err
	}
	if err := a.manager.WriteBytes(ptr, data); err != nil {
		return Span{}, err
	}
	return Span{Ptr: ptr, Len: uint32(len(data))}, nil
}

// Used returns the number of heap bytes currently allocated.
func (a *Allocator) Used() uint32 {
	return a.used
}
