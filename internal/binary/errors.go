package binary

import (
	"errors"
	"fmt"
)

// ErrorKind classifies decode failures
type ErrorKind int

const (
	BadMagic       ErrorKind = iota + 1 // Wrong file, entry or bitmap signature
	TruncatedInput                      // Read past the end of the source
	OutOfBounds                         // Seek before the start or past the end
	BadEncoding                         // Invalid text in a length-prefixed string
	CorruptChain                        // Entity chain pointer or traversal fault
)

func (k ErrorKind) String() string {
	switch k {
	case BadMagic:
		return "bad magic"
	case TruncatedInput:
		return "truncated input"
	case OutOfBounds:
		return "out of bounds"
	case BadEncoding:
		return "bad encoding"
	case CorruptChain:
		return "corrupt chain"
	default:
		return fmt.Sprintf("error kind %d", int(k))
	}
}

// Sentinels for errors.Is
var (
	ErrBadMagic       = errors.New("bad magic")
	ErrTruncatedInput = errors.New("truncated input")
	ErrOutOfBounds    = errors.New("out of bounds")
	ErrBadEncoding    = errors.New("bad encoding")
	ErrCorruptChain   = errors.New("corrupt chain")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case BadMagic:
		return ErrBadMagic
	case TruncatedInput:
		return ErrTruncatedInput
	case OutOfBounds:
		return ErrOutOfBounds
	case BadEncoding:
		return ErrBadEncoding
	case CorruptChain:
		return ErrCorruptChain
	}
	return nil
}

// DecodeError describes a decode failure at a byte offset.
// Expected and Found are only meaningful for BadMagic.
type DecodeError struct {
	Kind     ErrorKind
	Offset   int64
	Expected uint64
	Found    uint64
	Err      error // Underlying cause, if any
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("%s at 0x%x", e.Kind, e.Offset)
	if e.Kind == BadMagic {
		msg = fmt.Sprintf("%s at 0x%x: expected %#x, found %#x", e.Kind, e.Offset, e.Expected, e.Found)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel of this error's kind
func (e *DecodeError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOfError returns the kind of the outermost DecodeError in err's chain
func KindOfError(err error) (ErrorKind, bool) {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

func badMagic(offset int64, expected, found uint64) error {
	return &DecodeError{Kind: BadMagic, Offset: offset, Expected: expected, Found: found}
}

// corruptChain wraps a traversal fault
func corruptChain(offset int64, cause error) error {
	return &DecodeError{Kind: CorruptChain, Offset: offset, Err: cause}
}
