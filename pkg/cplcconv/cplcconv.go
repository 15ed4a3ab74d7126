// Package cplcconv provides functions for reading KKND2 mission files
// (CPLC entity chains) and the creature libraries that name their units.
//
// This package can be used as a library to decode both formats and render
// the same report the cplcconv command prints.
//
// Example usage:
//
//	lib, err := cplcconv.ParseLibraryFile("Creature.klb")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	chain, err := cplcconv.ParseCPLCFile("M01.cpl")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cplcconv.WriteReport(os.Stdout, chain, lib)
package cplcconv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	kbin "github.com/dyuri/cplcconv/internal/binary"
	"github.com/dyuri/cplcconv/internal/model"
	"github.com/dyuri/cplcconv/internal/text"
	"github.com/rs/zerolog"
)

// Decoded types, so callers need not import internal packages
type (
	EntityChain = model.EntityChain
	Entity      = model.Entity
	Library     = model.Library
	Creature    = model.Creature
)

// Option configures a decoder
type Option func(*options)

type options struct {
	log      zerolog.Logger
	codePage int
}

func newOptions(opts []Option) options {
	o := options{log: zerolog.Nop(), codePage: kbin.CodePageUTF8}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger used for per-record debug output
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithCodePage selects the code page of library names (65001, 1252, 1250
// or 437). Mission files carry no text and ignore it.
func WithCodePage(codePage int) Option {
	return func(o *options) { o.codePage = codePage }
}

// ParseLibrary reads a creature library.
//
// The reader must support ReadAt for random access. The size parameter
// should be the total file size in bytes.
//
// Example:
//
//	f, _ := os.Open("Creature.klb")
//	defer f.Close()
//	stat, _ := f.Stat()
//	lib, err := ParseLibrary(f, stat.Size())
func ParseLibrary(r io.ReaderAt, size int64, opts ...Option) (*model.Library, error) {
	o := newOptions(opts)

	reader := kbin.NewLibraryReader(r, size)
	reader.SetLogger(o.log)
	if err := reader.SetCodePage(o.codePage); err != nil {
		return nil, err
	}

	lib, err := reader.Parse()
	if err != nil {
		return nil, invalidFormat("invalid creature library", err)
	}
	return lib, nil
}

// ParseCPLC reads a mission file and follows its entity chain.
//
// Example:
//
//	f, _ := os.Open("M01.cpl")
//	defer f.Close()
//	stat, _ := f.Stat()
//	chain, err := ParseCPLC(f, stat.Size())
func ParseCPLC(r io.ReaderAt, size int64, opts ...Option) (*model.EntityChain, error) {
	o := newOptions(opts)

	reader := kbin.NewCPLCReader(r, size)
	reader.SetLogger(o.log)

	chain, err := reader.Parse()
	if err != nil {
		return nil, invalidFormat("invalid mission file", err)
	}
	return chain, nil
}

// ParseLibraryFile opens and decodes the creature library at path
func ParseLibraryFile(path string, opts ...Option) (*model.Library, error) {
	var lib *model.Library
	err := withFile(path, func(f *os.File, size int64) error {
		var err error
		lib, err = ParseLibrary(f, size, opts...)
		return err
	})
	return lib, err
}

// ParseCPLCFile opens and decodes the mission file at path
func ParseCPLCFile(path string, opts ...Option) (*model.EntityChain, error) {
	var chain *model.EntityChain
	err := withFile(path, func(f *os.File, size int64) error {
		var err error
		chain, err = ParseCPLC(f, size, opts...)
		return err
	})
	return chain, err
}

func withFile(path string, fn func(f *os.File, size int64) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat input file: %w", err)
	}
	return fn(f, stat.Size())
}

// WriteReport writes one tree block per entity, naming units through lib.
// lib may be nil, in which case every name is "Unknown entry".
//
// Example:
//
//	err := WriteReport(os.Stdout, chain, lib)
func WriteReport(w io.Writer, chain *model.EntityChain, lib *model.Library) error {
	return text.NewWriter(w).WriteChain(chain, lib)
}

// Format identifies a file by its leading magic
type Format int

const (
	FormatUnknown Format = iota
	FormatCPLC
	FormatLibrary
)

func (f Format) String() string {
	switch f {
	case FormatCPLC:
		return "CPLC mission"
	case FormatLibrary:
		return "creature library"
	default:
		return "unknown"
	}
}

// DetectFormat reads the first four bytes of r and reports which decoder
// applies
func DetectFormat(r io.ReaderAt) (Format, error) {
	var buf [4]byte
	if _, err := r.ReadAt(buf[:], 0); err != nil {
		if errors.Is(err, io.EOF) {
			return FormatUnknown, nil
		}
		return FormatUnknown, fmt.Errorf("read magic: %w", err)
	}

	switch binary.LittleEndian.Uint32(buf[:]) {
	case kbin.CPLCMagic:
		return FormatCPLC, nil
	case kbin.LibraryMagic:
		return FormatLibrary, nil
	default:
		return FormatUnknown, nil
	}
}

// Decode error kinds, usable with errors.Is on any error returned by the
// Parse functions
var (
	ErrBadMagic       = kbin.ErrBadMagic
	ErrTruncatedInput = kbin.ErrTruncatedInput
	ErrOutOfBounds    = kbin.ErrOutOfBounds
	ErrBadEncoding    = kbin.ErrBadEncoding
	ErrCorruptChain   = kbin.ErrCorruptChain
)

// ErrorKind classifies decode failures
type ErrorKind = kbin.ErrorKind

const (
	BadMagic       = kbin.BadMagic
	TruncatedInput = kbin.TruncatedInput
	OutOfBounds    = kbin.OutOfBounds
	BadEncoding    = kbin.BadEncoding
	CorruptChain   = kbin.CorruptChain
)

// IsKind reports whether err carries a decode failure of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var de *kbin.DecodeError
	for e := err; errors.As(e, &de); e = de.Err {
		if de.Kind == kind {
			return true
		}
	}
	return false
}

// ErrorOffset returns the byte offset of the outermost decode failure
func ErrorOffset(err error) (int64, bool) {
	var de *kbin.DecodeError
	if errors.As(err, &de) {
		return de.Offset, true
	}
	return 0, false
}

// Common errors
var (
	ErrInvalidFormat = &Error{Code: "invalid_format", Message: "invalid file format"}
)

// Error represents a cplcconv error
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func invalidFormat(msg string, cause error) error {
	return &Error{Code: ErrInvalidFormat.Code, Message: msg, Cause: cause}
}
