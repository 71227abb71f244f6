package host

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/CosmWasm/hostapi/internal/crypto"
	"github.com/CosmWasm/hostapi/internal/trie"
)

var (
	errBatchActive   = errors.New("batch verification already started")
	errBatchInactive = errors.New("batch verification not started")
)

// batchVerifier defers signature checks between start_batch_verify and
// finish_batch_verify.
type batchVerifier struct {
	checks []func() bool
}

func (b *batchVerifier) finish() bool {
	ok := true
	for _, check := range b.checks {
		ok = check() && ok
	}
	return ok
}

// verify runs check now, or defers it when a batch is open.
func (c *Context) verify(check func() bool) bool {
	if c.batch != nil {
		c.batch.checks = append(c.batch.checks, check)
		return true
	}
	return check()
}

func keyType(b []byte) crypto.KeyTypeID {
	var id crypto.KeyTypeID
	copy(id[:], b)
	return id
}

func (f *Factory) schemeFunctions(scheme crypto.Scheme) ([]Function, error) {
	keys := f.deps.Keys
	suite, err := keys.Suite(scheme)
	if err != nil {
		return nil, err
	}
	pubSize := uint32(suite.PublicKeySize())
	sigSize := uint32(suite.SignatureSize())
	prefix := "ext_crypto_" + string(scheme) + "_"

	verify := func(c *Context, args [][]byte) ([]byte, error) {
		sig, msg, pub := bytes.Clone(args[0]), bytes.Clone(args[1]), bytes.Clone(args[2])
		return boolResult(c.verify(func() bool {
			return keys.Verify(scheme, pub, msg, sig)
		})), nil
	}

	funcs := []Function{
		{
			Name:   prefix + "public_keys_version_1",
			Params: []Param{Ptr(4)},
			Result: SpanOut,
			Impl: func(_ *Context, args [][]byte) ([]byte, error) {
				pubs, err := keys.PublicKeys(scheme, keyType(args[0]))
				if err != nil {
					return nil, err
				}
				out := trie.EncodeCompact(uint64(len(pubs)))
				for _, pub := range pubs {
					out = append(out, pub...)
				}
				return out, nil
			},
		},
		{
			Name:   prefix + "generate_version_1",
			Params: []Param{Ptr(4), Span},
			Result: PtrOut(pubSize),
			Impl: func(_ *Context, args [][]byte) ([]byte, error) {
				seed, err := decodeOptionBytes("seed", args[1])
				if err != nil {
					return nil, err
				}
				var phrase *string
				if seed != nil {
					s := string(*seed)
					phrase = &s
				}
				kp, err := keys.Generate(scheme, keyType(args[0]), phrase)
				if err != nil {
					return nil, err
				}
				return kp.Public(), nil
			},
		},
		{
			Name:   prefix + "sign_version_1",
			Params: []Param{Ptr(4), Ptr(pubSize), Span},
			Result: SpanOut,
			Impl: func(_ *Context, args [][]byte) ([]byte, error) {
				sig, ok, err := keys.Sign(scheme, keyType(args[0]), args[1], args[2])
				if err != nil {
					return nil, err
				}
				if !ok {
					return []byte{0}, nil
				}
				return append([]byte{1}, sig...), nil
			},
		},
		{
			Name:   prefix + "verify_version_1",
			Params: []Param{Ptr(sigSize), Span, Ptr(pubSize)},
			Result: I32Result,
			Impl:   verify,
		},
	}
	if scheme == crypto.Sr25519 {
		funcs = append(funcs, Function{
			Name:   prefix + "verify_version_2",
			Params: []Param{Ptr(sigSize), Span, Ptr(pubSize)},
			Result: I32Result,
			Impl:   verify,
		})
	}
	return funcs, nil
}

func recoverFunction(name string, recoverKey func(sig, digest []byte) ([]byte, error)) Function {
	return Function{
		Name:   name,
		Params: []Param{Ptr(65), Ptr(32)},
		Result: SpanOut,
		Impl: func(_ *Context, args [][]byte) ([]byte, error) {
			pub, err := recoverKey(args[0], args[1])
			if err != nil {
				return []byte{1, crypto.RecoverErrorCode(err)}, nil
			}
			return append([]byte{0}, pub...), nil
		},
	}
}

func (f *Factory) cryptoFunctions() ([]Function, error) {
	var funcs []Function
	for _, scheme := range []crypto.Scheme{crypto.Ed25519, crypto.Sr25519, crypto.Ecdsa} {
		schemeFuncs, err := f.schemeFunctions(scheme)
		if err != nil {
			return nil, fmt.Errorf("%s functions: %w", scheme, err)
		}
		funcs = append(funcs, schemeFuncs...)
	}
	return append(funcs,
		recoverFunction("ext_crypto_secp256k1_ecdsa_recover_version_1", crypto.RecoverSecp256k1),
		recoverFunction("ext_crypto_secp256k1_ecdsa_recover_compressed_version_1", crypto.RecoverSecp256k1Compressed),
		Function{
			Name: "ext_crypto_start_batch_verify_version_1",
			Impl: func(c *Context, _ [][]byte) ([]byte, error) {
				if c.batch != nil {
					return nil, errBatchActive
				}
				c.batch = &batchVerifier{}
				return nil, nil
			},
		},
		Function{
			Name:   "ext_crypto_finish_batch_verify_version_1",
			Result: I32Result,
			Impl: func(c *Context, _ [][]byte) ([]byte, error) {
				if c.batch == nil {
					return nil, errBatchInactive
				}
				ok := c.batch.finish()
				c.batch = nil
				return boolResult(ok), nil
			},
		},
	), nil
}
