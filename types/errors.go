package types

import "errors"

// Error categories. Every concrete error below matches exactly one of these
// through errors.Is, so callers can branch on the category without knowing
// the specific failure.
var (
	ErrStartup  = errors.New("startup error")
	ErrSession  = errors.New("session error")
	ErrStorage  = errors.New("storage error")
	ErrTracking = errors.New("tracking error")
	ErrHostCall = errors.New("host call error")
)

var (
	ErrAdapterModuleNotFound = newKind(ErrStartup, "adapter module not found")
	ErrBackendInit           = newKind(ErrStartup, "storage backend initialization failed")
	ErrUnsupportedModule     = newKind(ErrStartup, "unsupported wasm module")

	ErrSessionAlreadyActive = newKind(ErrSession, "session already active")
	ErrNoActiveSession      = newKind(ErrSession, "no active session")
	ErrNoActiveTransaction  = newKind(ErrSession, "no active storage transaction")

	ErrInvalidNode    = newKind(ErrStorage, "invalid trie node")
	ErrNodeNotFound   = newKind(ErrStorage, "trie node not found")
	ErrHeaderNotFound = newKind(ErrStorage, "block header not found")

	ErrChangesTrieWrite = newKind(ErrTracking, "changes trie write failed")

	ErrHostFunctionNotFound     = newKind(ErrHostCall, "host function not found")
	ErrInvalidHostCallArguments = newKind(ErrHostCall, "invalid host call arguments")
	ErrExecutionTrap            = newKind(ErrHostCall, "execution trapped")
	ErrOutOfMemory              = newKind(ErrHostCall, "guest allocator out of memory")
	ErrInvalidPointer           = newKind(ErrHostCall, "invalid guest pointer")
)

type kindError struct {
	category error
	msg      string
}

func newKind(category error, msg string) error {
	return &kindError{category: category, msg: msg}
}

func (e *kindError) Error() string {
	return e.msg
}

func (e *kindError) Is(target error) bool {
	return target == e.category
}

// Category returns the category sentinel err belongs to, or nil.
func Category(err error) error {
	for _, c := range []error{ErrStartup, ErrSession, ErrStorage, ErrTracking, ErrHostCall} {
		if errors.Is(err, c) {
			return c
		}
	}
	return nil
}
