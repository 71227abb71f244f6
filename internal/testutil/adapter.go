package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ChainSafe/gossamer/pkg/scale"
	"github.com/stretchr/testify/require"
)

const (
	// HeapBase is the __heap_base exported by the adapter.
	HeapBase = 1024
	// version blob location; below HeapBase so the allocator never touches it
	versionOffset = 512
)

// TrapExport is exported by the adapter and always traps.
const TrapExport = "rtm_trap"

// RuntimeVersion is the value returned by the adapter's Core_version export.
type RuntimeVersion struct {
	SpecName           string
	ImplName           string
	AuthoringVersion   uint32
	SpecVersion        uint32
	ImplVersion        uint32
	Apis               []RuntimeAPI
	TransactionVersion uint32
}

type RuntimeAPI struct {
	ID      [8]byte
	Version uint32
}

// AdapterVersion is the version reported by the adapter.
var AdapterVersion = RuntimeVersion{
	SpecName:         "hostapi-adapter",
	ImplName:         "wasmgen",
	AuthoringVersion: 1,
	SpecVersion:      1,
	ImplVersion:      1,
	Apis: []RuntimeAPI{
		{ID: [8]byte{0xdf, 0x6a, 0xcb, 0x68, 0x99, 0x07, 0x60, 0x9b}, Version: 3},
	},
	TransactionVersion: 1,
}

var (
	spanArgs   = FuncType{Params: []ValType{I32, I32}, Results: []ValType{I64}}
	voidToVoid = FuncType{}
)

// spanOf pushes the i64 pointer-size of (ptr local or expression, len local).
func spanOf(ptr []byte, length []byte) []byte {
	var b []byte
	b = append(b, ptr...)
	b = append(b, I64ExtendI32U...)
	b = append(b, length...)
	b = append(b, I64ExtendI32U...)
	b = append(b, I64Const(32)...)
	b = append(b, I64Shl...)
	return append(b, I64Or...)
}

// compactLen pushes the length of the single-byte compact prefix at the
// address produced by addr.
func compactLen(addr []byte) []byte {
	var b []byte
	b = append(b, addr...)
	b = append(b, I32Load8U(0)...)
	b = append(b, I32Const(2)...)
	return append(b, I32ShrU...)
}

// AdapterModule builds a minimal adapter exposing the rtm_ext_* entry points
// used by the environment. Arguments are SCALE byte vectors shorter than 64
// bytes, so their compact length fits in one byte.
func AdapterModule() []byte {
	m := NewModule()
	set := m.ImportFunc("env", "ext_storage_set_version_1",
		FuncType{Params: []ValType{I64, I64}})
	get := m.ImportFunc("env", "ext_storage_get_version_1",
		FuncType{Params: []ValType{I64}, Results: []ValType{I64}})
	start := m.ImportFunc("env", "ext_storage_start_transaction_version_1", voidToVoid)
	commit := m.ImportFunc("env", "ext_storage_commit_transaction_version_1", voidToVoid)

	m.Memory(2, "memory")
	m.GlobalI32("__heap_base", HeapBase)
	version, err := scale.Marshal(AdapterVersion)
	if err != nil {
		panic(err)
	}
	m.Data(versionOffset, version)

	// locals: 0 ptr, 1 len, 2 key len, 3 value prefix address, 4 value len
	keyData := bytesJoin(LocalGet(0), I32Const(1), I32Add)
	m.Func("rtm_ext_storage_set_version_1", spanArgs, []ValType{I32, I32, I32},
		compactLen(LocalGet(0)), LocalSet(2),
		keyData, LocalGet(2), I32Add, LocalSet(3),
		compactLen(LocalGet(3)), LocalSet(4),
		spanOf(keyData, LocalGet(2)),
		spanOf(bytesJoin(LocalGet(3), I32Const(1), I32Add), LocalGet(4)),
		Call(set),
		I64Const(0),
	)

	m.Func("rtm_ext_storage_get_version_1", spanArgs, []ValType{I32},
		compactLen(LocalGet(0)), LocalSet(2),
		spanOf(keyData, LocalGet(2)),
		Call(get),
	)

	m.Func("rtm_ext_storage_start_transaction_version_1", spanArgs, nil,
		Call(start), I64Const(0))
	m.Func("rtm_ext_storage_commit_transaction_version_1", spanArgs, nil,
		Call(commit), I64Const(0))

	m.Func("Core_version", spanArgs, nil,
		I64Const(int64(len(version))<<32|versionOffset))

	m.Func(TrapExport, spanArgs, nil, Unreachable)

	return m.Bytes()
}

// MemoryModule builds a module that only exports one page of memory.
func MemoryModule() []byte {
	m := NewModule()
	m.Memory(1, "memory")
	return m.Bytes()
}

// ImportedMemoryModule builds a module that imports its memory.
func ImportedMemoryModule() []byte {
	m := NewModule()
	m.ImportMemory("env", "memory", 1)
	m.GlobalI32("__heap_base", HeapBase)
	m.Func("Core_version", spanArgs, nil, I64Const(0))
	return m.Bytes()
}

// WriteAdapter writes the adapter module into a temporary directory and
// returns its path.
func WriteAdapter(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hostapi_runtime.compact.wasm")
	require.NoError(t, os.WriteFile(path, AdapterModule(), 0o600))
	return path
}

func bytesJoin(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
