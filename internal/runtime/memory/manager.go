package memory

import (
	"encoding/binary"
	"sync"

	"github.com/tetratelabs/wazero/api"
)

// PageSize is the size of a wasm memory page.
const PageSize = 65536

// Manager handles bounds-checked access to the linear memory of one instance.
type Manager struct {
	mu     sync.RWMutex
	memory api.Memory
}

// New creates a new memory manager
func New(memory api.Memory) *Manager {
	return &Manager{
		memory: memory,
	}
}

// Size returns the current memory size in bytes.
func (m *Manager) Size() uint32 {
	return m.memory.Size()
}

// Grow adds pages to the memory. It reports false when the memory limit of
// the runtime does not allow it.
func (m *Manager) Grow(pages uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.memory.Grow(pages)
	return ok
}

// View returns length bytes at offset without copying them. The slice
// aliases guest memory and is invalidated by Grow.
func (m *Manager) View(offset uint32, length uint32) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if uint64(offset)+uint64(length) > uint64(m.memory.Size()) {
		return nil, ErrInvalidMemoryAccess
	}

	data, ok := m.memory.Read(offset, length)
	if !ok {
		return nil, ErrMemoryReadFailed
	}

	return data, nil
}

// ReadBytes copies length bytes out of Wasm memory
func (m *Manager) ReadBytes(offset uint32, length uint32) ([]byte, error) {
	data, err := m.View(offset, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteBytes writes a byte slice to Wasm memory
func (m *Manager) WriteBytes(offset uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if uint64(offset)+uint64(len(data)) > uint64(m.memory.Size()) {
		return ErrInvalidMemoryAccess
	}

	ok := m.memory.Write(offset, data)
	if !ok {
		return ErrMemoryWriteFailed
	}

	return nil
}

// ReadUint32 reads a uint32 from Wasm memory
func (m *Manager) ReadUint32(offset uint32) (uint32, error) {
	data, err := m.View(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// WriteUint32 writes a uint32 to Wasm memory
func (m *Manager) WriteUint32(offset uint32, value uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, value)
	return m.WriteBytes(offset, buf)
}

func (m *Manager) ReadUint64(offset uint32) (uint64, error) {
	data, err := m.View(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

func (m *Manager) WriteUint64(offset uint32, value uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, value)
	return m.WriteBytes(offset, buf)
}
