package host

func hashFunction(name string, size uint32, hash func([]byte) []byte) Function {
	return Function{
		Name:   name,
		Params: []Param{Span},
		Result: PtrOut(size),
		Impl: func(_ *Context, args [][]byte) ([]byte, error) {
			return hash(args[0]), nil
		},
	}
}

func (f *Factory) hashingFunctions() []Function {
	h := f.deps.Hasher
	return []Function{
		hashFunction("ext_hashing_keccak_256_version_1", 32, h.Keccak256),
		hashFunction("ext_hashing_keccak_512_version_1", 64, h.Keccak512),
		hashFunction("ext_hashing_sha2_256_version_1", 32, h.Sha2_256),
		hashFunction("ext_hashing_blake2_128_version_1", 16, h.Blake2b128),
		hashFunction("ext_hashing_blake2_256_version_1", 32, h.Blake2b256),
		hashFunction("ext_hashing_twox_64_version_1", 8, h.Twox64),
		hashFunction("ext_hashing_twox_128_version_1", 16, h.Twox128),
		hashFunction("ext_hashing_twox_256_version_1", 32, h.Twox256),
	}
}
