package binary

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/dyuri/cplcconv/internal/model"
	"github.com/rs/zerolog"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Creature library (.klb) signatures
const (
	LibraryMagic = 0x4c43324b // "K2CL"
	EntryMagic   = 0x5243324b // "K2CR"
	BitmapMagic  = 0x4d42     // "BM"
)

// Fixed widths of unmodelled regions in a library entry
const (
	bitmapHeaderSize    = 14 // magic, size, 2 reserved, pixel data offset
	metadataTrailerSkip = 6  // follows the metadata block, skipped with it
	scalarPropertySkip  = 14 // value block of a non-array property
	arrayListSkip       = 12 // preamble of an array property before its count
	sizeHintBase        = 32
)

// Property kinds that carry an array list
const (
	PropertyArray1 = 0x01
	PropertyArray2 = 0x02
	PropertyArray3 = 0x03
)

// CodePageUTF8 is the default code page: names must be valid UTF-8
const CodePageUTF8 = 65001

// LibraryReader decodes a creature library file
type LibraryReader struct {
	c       *Cursor
	decoder *encoding.Decoder // nil means strict UTF-8
	log     zerolog.Logger
}

// NewLibraryReader creates a new creature library reader
func NewLibraryReader(r io.ReaderAt, size int64) *LibraryReader {
	return &LibraryReader{
		c:   NewCursor(r, size),
		log: zerolog.Nop(),
	}
}

// SetLogger sets the logger used for per-entry debug output
func (r *LibraryReader) SetLogger(log zerolog.Logger) {
	r.log = log
}

// SetCodePage selects the text encoding for names
func (r *LibraryReader) SetCodePage(codePage int) error {
	switch codePage {
	case CodePageUTF8:
		r.decoder = nil
	case 1252: // Windows-1252 (Western European)
		r.decoder = charmap.Windows1252.NewDecoder()
	case 1250: // Windows-1250 (Central European)
		r.decoder = charmap.Windows1250.NewDecoder()
	case 437:
		r.decoder = charmap.CodePage437.NewDecoder()
	default:
		return fmt.Errorf("unsupported code page: %d", codePage)
	}
	return nil
}

// Parse reads the whole library. Any structural error aborts the parse
// and no partial library is returned.
func (r *LibraryReader) Parse() (*model.Library, error) {
	magic, err := r.c.U32()
	if err != nil {
		return nil, fmt.Errorf("read file magic: %w", err)
	}
	if magic != LibraryMagic {
		return nil, badMagic(0, LibraryMagic, uint64(magic))
	}

	total, err := r.c.U16()
	if err != nil {
		return nil, fmt.Errorf("read entry count: %w", err)
	}
	r.log.Debug().Uint16("entries", total).Msg("creature library header")

	lib := model.NewLibrary()

	// Duplicate ids overwrite, so keep reading until the distinct count is reached
	for lib.Len() < int(total) {
		start := r.c.Pos()
		creature, err := r.readEntry()
		if err != nil {
			return nil, fmt.Errorf("read entry at 0x%x: %w", start, err)
		}
		if _, dup := lib.Lookup(creature.ID); dup {
			r.log.Warn().Uint16("id", creature.ID).Msg("duplicate creature id, replacing")
		}
		lib.Put(creature)

		r.log.Debug().
			Uint16("id", creature.ID).
			Str("name", creature.Name).
			Int64("offset", start).
			Msg("creature")
	}

	return lib, nil
}

// readEntry reads one creature record starting at its entry magic
func (r *LibraryReader) readEntry() (model.Creature, error) {
	start := r.c.Pos()
	magic, err := r.c.U32()
	if err != nil {
		return model.Creature{}, err
	}
	if magic != EntryMagic {
		return model.Creature{}, badMagic(start, EntryMagic, uint64(magic))
	}

	id, err := r.c.U16()
	if err != nil {
		return model.Creature{}, err
	}

	name, err := r.readPascalString()
	if err != nil {
		return model.Creature{}, fmt.Errorf("read name: %w", err)
	}

	metadataLength, err := r.c.U16()
	if err != nil {
		return model.Creature{}, err
	}
	if err := r.c.Skip(int64(metadataLength) + metadataTrailerSkip); err != nil {
		return model.Creature{}, fmt.Errorf("skip metadata: %w", err)
	}

	propertyCount, err := r.c.U16()
	if err != nil {
		return model.Creature{}, err
	}

	properties := make([]model.Property, 0, propertyCount)
	for i := 0; i < int(propertyCount); i++ {
		prop, err := r.readProperty()
		if err != nil {
			return model.Creature{}, fmt.Errorf("read property %d: %w", i, err)
		}
		properties = append(properties, prop)
	}

	// Marker byte in front of the icon
	if _, err := r.c.U8(); err != nil {
		return model.Creature{}, err
	}

	icon, err := r.readBitmap()
	if err != nil {
		return model.Creature{}, fmt.Errorf("read icon: %w", err)
	}

	return model.Creature{
		ID:         id,
		Name:       name,
		SizeHint:   sizeHintBase + int(metadataLength),
		Properties: properties,
		Icon:       icon,
	}, nil
}

// IsArrayKind reports whether a property kind is followed by an array list
func IsArrayKind(kind uint8) bool {
	return kind == PropertyArray1 || kind == PropertyArray2 || kind == PropertyArray3
}

func (r *LibraryReader) readProperty() (model.Property, error) {
	name, err := r.readPascalString()
	if err != nil {
		return model.Property{}, err
	}
	kind, err := r.c.U8()
	if err != nil {
		return model.Property{}, err
	}

	prop := model.Property{Name: name, Kind: kind}

	if !IsArrayKind(kind) {
		r.log.Trace().Str("property", name).Uint8("kind", kind).Msg("skip scalar property")
		if err := r.c.Skip(scalarPropertySkip); err != nil {
			return model.Property{}, err
		}
		return prop, nil
	}

	values, err := r.readArrayList()
	if err != nil {
		return model.Property{}, fmt.Errorf("read array %q: %w", name, err)
	}
	prop.Values = values
	return prop, nil
}

func (r *LibraryReader) readArrayList() ([]model.ArrayItem, error) {
	if err := r.c.Skip(arrayListSkip); err != nil {
		return nil, err
	}
	count, err := r.c.U16()
	if err != nil {
		return nil, err
	}

	items := make([]model.ArrayItem, 0, count)
	for i := 0; i < int(count); i++ {
		name, err := r.readPascalString()
		if err != nil {
			return nil, err
		}
		value, err := r.c.U32()
		if err != nil {
			return nil, err
		}
		items = append(items, model.ArrayItem{Name: name, Value: value})
	}
	return items, nil
}

// readBitmap reads the icon header and skips the pixel payload
func (r *LibraryReader) readBitmap() (model.BitmapHeader, error) {
	start := r.c.Pos()
	var hdr model.BitmapHeader
	var err error

	if hdr.Magic, err = r.c.U16(); err != nil {
		return hdr, err
	}
	if hdr.Magic != BitmapMagic {
		return hdr, badMagic(start, BitmapMagic, uint64(hdr.Magic))
	}
	if hdr.SizeInBytes, err = r.c.U32(); err != nil {
		return hdr, err
	}
	if hdr.Reserved1, err = r.c.U16(); err != nil {
		return hdr, err
	}
	if hdr.Reserved2, err = r.c.U16(); err != nil {
		return hdr, err
	}
	if hdr.PixelDataOffset, err = r.c.U32(); err != nil {
		return hdr, err
	}

	if hdr.SizeInBytes < bitmapHeaderSize {
		return hdr, &DecodeError{
			Kind:   OutOfBounds,
			Offset: start,
			Err:    fmt.Errorf("bitmap size %d smaller than its header", hdr.SizeInBytes),
		}
	}
	if err := r.c.Skip(int64(hdr.SizeInBytes) - bitmapHeaderSize); err != nil {
		return hdr, fmt.Errorf("skip pixel data: %w", err)
	}
	return hdr, nil
}

// readPascalString reads a 1-byte length followed by that many bytes of text
func (r *LibraryReader) readPascalString() (string, error) {
	n, err := r.c.U8()
	if err != nil {
		return "", err
	}
	start := r.c.Pos()
	data, err := r.c.Bytes(int(n))
	if err != nil {
		return "", err
	}
	s, err := r.decodeString(data)
	if err != nil {
		return "", &DecodeError{Kind: BadEncoding, Offset: start, Err: err}
	}
	return s, nil
}

// decodeString decodes a byte slice using the configured code page
func (r *LibraryReader) decodeString(data []byte) (string, error) {
	if r.decoder == nil {
		if !utf8.Valid(data) {
			return "", fmt.Errorf("invalid UTF-8 in %q", data)
		}
		return string(data), nil
	}
	decoded, err := r.decoder.Bytes(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
