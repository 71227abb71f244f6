package changes

import "github.com/CosmWasm/hostapi/types"

// Record describes one put or remove. A nil OldValue means the key was
// absent before, a nil NewValue means the key was removed.
type Record struct {
	Seq       uint64
	Key       []byte
	OldValue  []byte
	NewValue  []byte
	Parent    types.Hash
	Block     uint32
	Extrinsic uint32
}

func (r Record) IsRemoval() bool {
	return r.NewValue == nil
}

// clone copies b keeping the distinction between nil and empty.
func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
