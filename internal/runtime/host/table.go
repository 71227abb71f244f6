package host

import (
	"fmt"
	"sort"

	"github.com/CosmWasm/hostapi/types"
)

// Kind describes how a host function argument crosses the wasm boundary.
type Kind uint8

const (
	// KindSpan is an i64 pointer-size; the argument is the bytes it covers.
	KindSpan Kind = iota
	// KindPointer is an i32 pointer to a value of fixed size.
	KindPointer
	// KindI32 is an i32 value, passed as 4 little-endian bytes.
	KindI32
	// KindI64 is an i64 value, passed as 8 little-endian bytes.
	KindI64
	// KindOut is an i64 pointer-size the host writes into. The argument
	// aliases guest memory and must be written before anything is allocated.
	KindOut
)

// Param is the shape of one argument.
type Param struct {
	Kind Kind
	Size uint32
}

var (
	Span = Param{Kind: KindSpan}
	I32  = Param{Kind: KindI32, Size: 4}
	I64  = Param{Kind: KindI64, Size: 8}
	Out  = Param{Kind: KindOut}
)

// Ptr is a pointer argument to size bytes.
func Ptr(size uint32) Param {
	return Param{Kind: KindPointer, Size: size}
}

// ResultKind describes how a result is handed back to the guest.
type ResultKind uint8

const (
	ResultNone ResultKind = iota
	// ResultSpan is copied into a fresh allocation and returned as i64
	// pointer-size.
	ResultSpan
	// ResultPointer is copied into a fresh allocation and returned as an i32
	// pointer. Its size is fixed.
	ResultPointer
	// ResultI32 is returned as an i32 value.
	ResultI32
)

// Result is the shape of a function's result.
type Result struct {
	Kind ResultKind
	Size uint32
}

var (
	None      = Result{Kind: ResultNone}
	SpanOut   = Result{Kind: ResultSpan}
	I32Result = Result{Kind: ResultI32, Size: 4}
)

// PtrOut is a pointer result to size bytes.
func PtrOut(size uint32) Result {
	return Result{Kind: ResultPointer, Size: size}
}

// Impl implements a host function. args match the function's params; the
// returned buffer must match its result shape.
type Impl func(c *Context, args [][]byte) ([]byte, error)

// Function is one entry of the host function table.
type Function struct {
	Name   string
	Params []Param
	Result Result
	Impl   Impl
}

func (f Function) checkArgs(args [][]byte) error {
	if len(args) != len(f.Params) {
		return fmt.Errorf("%w: %s takes %d arguments, got %d",
			types.ErrInvalidHostCallArguments, f.Name, len(f.Params), len(args))
	}
	for i, p := range f.Params {
		if p.Size > 0 && uint32(len(args[i])) != p.Size {
			return fmt.Errorf("%w: %s argument %d must be %d bytes, got %d",
				types.ErrInvalidHostCallArguments, f.Name, i, p.Size, len(args[i]))
		}
	}
	return nil
}

func (f Function) checkResult(out []byte) error {
	switch f.Result.Kind {
	case ResultNone:
		if out != nil {
			return fmt.Errorf("%s returned a value but is void", f.Name)
		}
	case ResultPointer, ResultI32:
		if uint32(len(out)) != f.Result.Size {
			return fmt.Errorf("%s returned %d bytes, want %d", f.Name, len(out), f.Result.Size)
		}
	}
	return nil
}

// Table maps host function names to implementations. It is immutable once
// built.
type Table struct {
	funcs map[string]Function
}

// NewTable builds a table from funcs. Names must be unique.
func NewTable(funcs ...Function) (*Table, error) {
	t := &Table{funcs: make(map[string]Function, len(funcs))}
	for _, f := range funcs {
		if _, ok := t.funcs[f.Name]; ok {
			return nil, fmt.Errorf("duplicate host function %s", f.Name)
		}
		t.funcs[f.Name] = f
	}
	return t, nil
}

func (t *Table) Lookup(name string) (Function, bool) {
	f, ok := t.funcs[name]
	return f, ok
}

// Names returns the registered names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.funcs))
	for name := range t.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Table) Len() int {
	return len(t.funcs)
}

// Call runs the function registered under name with args.
func (t *Table) Call(c *Context, name string, args ...[]byte) ([]byte, error) {
	f, ok := t.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrHostFunctionNotFound, name)
	}
	return f.Call(c, args)
}

// Call validates args against the function's params and runs it.
func (f Function) Call(c *Context, args [][]byte) ([]byte, error) {
	if err := f.checkArgs(args); err != nil {
		return nil, err
	}
	out, err := f.Impl(c, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name, err)
	}
	if err := f.checkResult(out); err != nil {
		return nil, err
	}
	return out, nil
}
