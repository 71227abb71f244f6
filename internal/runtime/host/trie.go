package host

import (
	"github.com/CosmWasm/hostapi/internal/trie"
	"github.com/CosmWasm/hostapi/types"
)

type trieEntry struct {
	Key   []byte
	Value []byte
}

func trieRoot(name string, codec *trie.Codec) Function {
	return Function{
		Name:   name,
		Params: []Param{Span},
		Result: PtrOut(types.HashLen),
		Impl: func(_ *Context, args [][]byte) ([]byte, error) {
			var entries []trieEntry
			if err := decodeByteVecs("entries", args[0], 2, &entries); err != nil {
				return nil, err
			}
			t := trie.New(codec)
			for _, e := range entries {
				t = t.Put(e.Key, e.Value)
			}
			return t.RootHash().Bytes(), nil
		},
	}
}

// orderedTrieRoot keys each value by the compact encoding of its index.
func orderedTrieRoot(name string, codec *trie.Codec) Function {
	return Function{
		Name:   name,
		Params: []Param{Span},
		Result: PtrOut(types.HashLen),
		Impl: func(_ *Context, args [][]byte) ([]byte, error) {
			var values [][]byte
			if err := decodeByteVecs("values", args[0], 1, &values); err != nil {
				return nil, err
			}
			t := trie.New(codec)
			for i, v := range values {
				t = t.Put(trie.EncodeCompact(uint64(i)), v)
			}
			return t.RootHash().Bytes(), nil
		},
	}
}

func verifyProof(name string, codec *trie.Codec) Function {
	return Function{
		Name:   name,
		Params: []Param{Ptr(types.HashLen), Span, Span, Span},
		Result: I32Result,
		Impl: func(_ *Context, args [][]byte) ([]byte, error) {
			// a malformed proof is a failed verification, not a fatal error
			var proof [][]byte
			if err := decodeByteVecs("proof", args[1], 1, &proof); err != nil {
				return boolResult(false), nil
			}
			root, err := types.NewHash(args[0])
			if err != nil {
				return nil, err
			}
			ok, err := trie.VerifyProof(codec, root, proof, args[2], args[3])
			return boolResult(err == nil && ok), nil
		},
	}
}

func (f *Factory) trieFunctions() []Function {
	return []Function{
		trieRoot("ext_trie_blake2_256_root_version_1", f.blake2Codec),
		trieRoot("ext_trie_keccak_256_root_version_1", f.keccakCodec),
		orderedTrieRoot("ext_trie_blake2_256_ordered_root_version_1", f.blake2Codec),
		orderedTrieRoot("ext_trie_keccak_256_ordered_root_version_1", f.keccakCodec),
		verifyProof("ext_trie_blake2_256_verify_proof_version_1", f.blake2Codec),
		verifyProof("ext_trie_keccak_256_verify_proof_version_1", f.keccakCodec),
	}
}
