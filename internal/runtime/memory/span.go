package memory

// Span is a region of guest memory passed across the host boundary as a
// single i64: the pointer in the low 32 bits and the length in the high 32.
type Span struct {
	Ptr uint32
	Len uint32
}

// SpanFromUint64 unpacks a pointer-size value.
func SpanFromUint64(v uint64) Span {
	return Span{Ptr: uint32(v), Len: uint32(v >> 32)}
}

// Uint64 packs the span into a pointer-size value.
func (s Span) Uint64() uint64 {
	return uint64(s.Len)<<32 | uint64(s.Ptr)
}

// ReadSpan copies the bytes of s out of guest memory.
func (m *Manager) ReadSpan(s Span) ([]byte, error) {
	return m.ReadBytes(s.Ptr, s.Len)
}

// ViewSpan is ReadSpan without the copy.
func (m *Manager) ViewSpan(s Span) ([]byte, error) {
	return m.View(s.Ptr, s.Len)
}
