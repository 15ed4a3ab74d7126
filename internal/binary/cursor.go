package binary

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Cursor gives sequential little-endian reads and seeks over a random
// access byte source of known size.
type Cursor struct {
	r      io.ReaderAt
	size   int64
	pos    int64
	endian binary.ByteOrder // Both formats are little-endian
	buf    [4]byte
}

// NewCursor creates a cursor positioned at the start of r
func NewCursor(r io.ReaderAt, size int64) *Cursor {
	return &Cursor{
		r:      r,
		size:   size,
		endian: binary.LittleEndian,
	}
}

// Pos returns the current absolute position
func (c *Cursor) Pos() int64 {
	return c.pos
}

// Size returns the size of the underlying source
func (c *Cursor) Size() int64 {
	return c.size
}

// Remaining returns the number of bytes left after the current position
func (c *Cursor) Remaining() int64 {
	return c.size - c.pos
}

func (c *Cursor) fill(p []byte) error {
	if int64(len(p)) > c.Remaining() {
		return &DecodeError{
			Kind:   TruncatedInput,
			Offset: c.pos,
			Err:    fmt.Errorf("need %d bytes, have %d", len(p), c.Remaining()),
		}
	}
	// The source may hold fewer bytes than the declared size
	n, err := c.r.ReadAt(p, c.pos)
	if n < len(p) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return &DecodeError{
			Kind:   TruncatedInput,
			Offset: c.pos,
			Err:    fmt.Errorf("read %d of %d bytes: %w", n, len(p), err),
		}
	}
	if err != nil && err != io.EOF {
		return &DecodeError{Kind: TruncatedInput, Offset: c.pos, Err: err}
	}
	c.pos += int64(len(p))
	return nil
}

// U8 reads one byte
func (c *Cursor) U8() (uint8, error) {
	if err := c.fill(c.buf[:1]); err != nil {
		return 0, err
	}
	return c.buf[0], nil
}

// U16 reads a little-endian uint16
func (c *Cursor) U16() (uint16, error) {
	if err := c.fill(c.buf[:2]); err != nil {
		return 0, err
	}
	return c.endian.Uint16(c.buf[:2]), nil
}

// U32 reads a little-endian uint32
func (c *Cursor) U32() (uint32, error) {
	if err := c.fill(c.buf[:4]); err != nil {
		return 0, err
	}
	return c.endian.Uint32(c.buf[:4]), nil
}

// U16s fills dst with consecutive little-endian uint16 values
func (c *Cursor) U16s(dst []uint16) error {
	for i := range dst {
		v, err := c.U16()
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

// Bytes reads n raw bytes
func (c *Cursor) Bytes(n int) ([]byte, error) {
	p := make([]byte, n)
	if err := c.fill(p); err != nil {
		return nil, err
	}
	return p, nil
}

// SeekAbsolute moves to offset. Seeking to exactly Size is allowed.
func (c *Cursor) SeekAbsolute(offset int64) error {
	if offset < 0 || offset > c.size {
		return &DecodeError{
			Kind:   OutOfBounds,
			Offset: c.pos,
			Err:    fmt.Errorf("seek to 0x%x outside [0, 0x%x]", offset, c.size),
		}
	}
	c.pos = offset
	return nil
}

// SeekRelative moves by delta bytes from the current position
func (c *Cursor) SeekRelative(delta int64) error {
	target := c.pos + delta
	if target < 0 || target > c.size {
		return &DecodeError{
			Kind:   OutOfBounds,
			Offset: c.pos,
			Err:    fmt.Errorf("seek by %d to 0x%x outside [0, 0x%x]", delta, target, c.size),
		}
	}
	c.pos = target
	return nil
}

// Skip advances over n unmodelled bytes
func (c *Cursor) Skip(n int64) error {
	return c.SeekRelative(n)
}
