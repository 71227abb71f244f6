package host

import (
	"bytes"
	"fmt"

	"github.com/CosmWasm/hostapi/internal/trie"
	"github.com/CosmWasm/hostapi/types"
)

// Result codes of ext_storage_clear_prefix_version_2.
const (
	allRemoved    byte = 0
	someRemaining byte = 1
)

func (f *Factory) storageFunctions() []Function {
	p := f.deps.Provider
	return []Function{
		{
			Name:   "ext_storage_set_version_1",
			Params: []Param{Span, Span},
			Impl: func(_ *Context, args [][]byte) ([]byte, error) {
				return nil, p.Put(args[0], args[1])
			},
		},
		{
			Name:   "ext_storage_get_version_1",
			Params: []Param{Span},
			Result: SpanOut,
			Impl: func(_ *Context, args [][]byte) ([]byte, error) {
				v, ok, err := p.Get(args[0])
				if err != nil {
					return nil, err
				}
				return optionBytes(v, ok), nil
			},
		},
		{
			Name:   "ext_storage_read_version_1",
			Params: []Param{Span, Out, I32},
			Result: SpanOut,
			Impl: func(_ *Context, args [][]byte) ([]byte, error) {
				v, ok, err := p.Get(args[0])
				if err != nil {
					return nil, err
				}
				if !ok {
					return []byte{0}, nil
				}
				offset := uint64(argU32(args[2]))
				if offset > uint64(len(v)) {
					offset = uint64(len(v))
				}
				rest := v[offset:]
				copy(args[1], rest)
				return append([]byte{1}, u32Bytes(uint32(len(rest)))...), nil
			},
		},
		{
			Name:   "ext_storage_clear_version_1",
			Params: []Param{Span},
			Impl: func(_ *Context, args [][]byte) ([]byte, error) {
				return nil, p.Remove(args[0])
			},
		},
		{
			Name:   "ext_storage_exists_version_1",
			Params: []Param{Span},
			Result: I32Result,
			Impl: func(_ *Context, args [][]byte) ([]byte, error) {
				ok, err := p.Exists(args[0])
				if err != nil {
					return nil, err
				}
				return boolResult(ok), nil
			},
		},
		{
			Name:   "ext_storage_clear_prefix_version_1",
			Params: []Param{Span},
			Impl: func(_ *Context, args [][]byte) ([]byte, error) {
				_, _, err := p.ClearPrefix(args[0], -1)
				return nil, err
			},
		},
		{
			Name:   "ext_storage_clear_prefix_version_2",
			Params: []Param{Span, Span},
			Result: SpanOut,
			Impl: func(_ *Context, args [][]byte) ([]byte, error) {
				var limit *uint32
				if err := decodeArg("limit", args[1], &limit); err != nil {
					return nil, err
				}
				max := -1
				if limit != nil {
					max = int(*limit)
				}
				removed, all, err := p.ClearPrefix(args[0], max)
				if err != nil {
					return nil, err
				}
				code := someRemaining
				if all {
					code = allRemoved
				}
				return append([]byte{code}, u32Bytes(removed)...), nil
			},
		},
		{
			Name:   "ext_storage_append_version_1",
			Params: []Param{Span, Span},
			Impl: func(_ *Context, args [][]byte) ([]byte, error) {
				current, _, err := p.Get(args[0])
				if err != nil {
					return nil, err
				}
				return nil, p.Put(args[0], appendItem(current, args[1]))
			},
		},
		{
			Name:   "ext_storage_root_version_1",
			Result: SpanOut,
			Impl: func(_ *Context, _ [][]byte) ([]byte, error) {
				root, err := p.StateRoot()
				if err != nil {
					return nil, err
				}
				return root.Bytes(), nil
			},
		},
		{
			Name:   "ext_storage_changes_root_version_1",
			Params: []Param{Span},
			Result: SpanOut,
			Impl: func(_ *Context, args [][]byte) ([]byte, error) {
				parent, err := types.NewHash(args[0])
				if err != nil {
					return nil, fmt.Errorf("%w: parent: %w", types.ErrInvalidHostCallArguments, err)
				}
				root, ok, err := f.deps.Tracker.ConstructChangesTrie(parent)
				if err != nil {
					return nil, err
				}
				return optionBytes(root.Bytes(), ok), nil
			},
		},
		{
			Name:   "ext_storage_next_key_version_1",
			Params: []Param{Span},
			Result: SpanOut,
			Impl: func(_ *Context, args [][]byte) ([]byte, error) {
				next, ok, err := p.NextKey(args[0])
				if err != nil {
					return nil, err
				}
				return optionBytes(next, ok), nil
			},
		},
		{
			Name: "ext_storage_start_transaction_version_1",
			Impl: func(_ *Context, _ [][]byte) ([]byte, error) {
				return nil, p.StartTransaction()
			},
		},
		{
			Name: "ext_storage_rollback_transaction_version_1",
			Impl: func(_ *Context, _ [][]byte) ([]byte, error) {
				return nil, p.RollbackTransaction()
			},
		},
		{
			Name: "ext_storage_commit_transaction_version_1",
			Impl: func(_ *Context, _ [][]byte) ([]byte, error) {
				return nil, p.CommitTransaction()
			},
		},
	}
}

// appendItem appends an encoded item to a SCALE encoded vector. A value
// that is not a vector is replaced by a vector holding only item.
func appendItem(current, item []byte) []byte {
	var out bytes.Buffer
	if len(current) > 0 {
		if n, size, err := trie.ReadCompact(current); err == nil && n < 1<<32-1 {
			out.Write(trie.EncodeCompact(n + 1))
			out.Write(current[size:])
			out.Write(item)
			return out.Bytes()
		}
	}
	out.Write(trie.EncodeCompact(1))
	out.Write(item)
	return out.Bytes()
}
