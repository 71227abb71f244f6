package memory

import (
	"fmt"

	"github.com/CosmWasm/hostapi/types"
)

var (
	// ErrInvalidMemoryAccess is returned when trying to access invalid memory regions
	ErrInvalidMemoryAccess = fmt.Errorf("%w: access out of bounds", types.ErrInvalidPointer)
	// ErrMemoryReadFailed is returned when memory read operation fails
	ErrMemoryReadFailed = fmt.Errorf("%w: memory read failed", types.ErrInvalidPointer)
	// ErrMemoryWriteFailed is returned when memory write operation fails
	ErrMemoryWriteFailed = fmt.Errorf("%w: memory write failed", types.ErrInvalidPointer)
)
