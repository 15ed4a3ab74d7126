package binary

import (
	"errors"
	"testing"

	"github.com/dyuri/cplcconv/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseLibrary(t *testing.T, f *fixture) (*model.Library, error) {
	t.Helper()
	r, size := f.reader()
	return NewLibraryReader(r, size).Parse()
}

func TestParseLibrarySingleCreature(t *testing.T) {
	f := buildLibrary(1, creatureSpec{id: 7, name: "Raider", pixels: 4})

	lib, err := parseLibrary(t, f)
	require.NoError(t, err)
	require.Equal(t, 1, lib.Len())

	c, ok := lib.Lookup(7)
	require.True(t, ok)
	assert.Equal(t, uint16(7), c.ID)
	assert.Equal(t, "Raider", c.Name)
	assert.Equal(t, 32, c.SizeHint)
	assert.Empty(t, c.Properties)
	assert.Equal(t, uint16(BitmapMagic), c.Icon.Magic)
	assert.Equal(t, uint32(18), c.Icon.SizeInBytes)
	assert.Equal(t, uint32(54), c.Icon.PixelDataOffset)
}

func TestParseLibraryProperties(t *testing.T) {
	f := buildLibrary(2,
		creatureSpec{
			id:       0x20,
			name:     "Mammoth Tank",
			metadata: 10,
			props: []propSpec{
				{name: "armour", kind: 0x05},
				{name: "weapons", kind: PropertyArray2, items: []model.ArrayItem{
					{Name: "cannon", Value: 120},
					{Name: "mg", Value: 15},
				}},
				{name: "empty", kind: PropertyArray3},
			},
			pixels: 32,
		},
		creatureSpec{id: 0x21, name: "Grunt", pixels: 0},
	)

	lib, err := parseLibrary(t, f)
	require.NoError(t, err)
	require.Equal(t, 2, lib.Len())
	assert.Equal(t, []uint16{0x20, 0x21}, lib.IDs())

	tank, ok := lib.Lookup(0x20)
	require.True(t, ok)
	assert.Equal(t, "Mammoth Tank", tank.Name)
	assert.Equal(t, 42, tank.SizeHint)
	require.Len(t, tank.Properties, 3)

	assert.Equal(t, "armour", tank.Properties[0].Name)
	assert.Equal(t, uint8(0x05), tank.Properties[0].Kind)
	assert.Nil(t, tank.Properties[0].Values)

	assert.Equal(t, []model.ArrayItem{{Name: "cannon", Value: 120}, {Name: "mg", Value: 15}}, tank.Properties[1].Values)
	assert.Empty(t, tank.Properties[2].Values)

	assert.Equal(t, "Grunt", lib.NameOf(0x21))
	assert.Equal(t, model.UnknownCreatureName, lib.NameOf(0x99))
}

func TestParseLibraryEmpty(t *testing.T) {
	lib, err := parseLibrary(t, buildLibrary(0))
	require.NoError(t, err)
	assert.Equal(t, 0, lib.Len())
}

func TestParseLibraryDuplicateIDs(t *testing.T) {
	f := buildLibrary(2,
		creatureSpec{id: 1, name: "First"},
		creatureSpec{id: 1, name: "Second"},
		creatureSpec{id: 2, name: "Third"},
	)

	lib, err := parseLibrary(t, f)
	require.NoError(t, err)
	assert.Equal(t, 2, lib.Len())
	assert.Equal(t, "Second", lib.NameOf(1))
	assert.Equal(t, "Third", lib.NameOf(2))
}

func TestParseLibraryStopsAtDeclaredCount(t *testing.T) {
	// Trailing garbage after the declared entries is never read
	f := buildLibrary(1, creatureSpec{id: 3, name: "Only"})
	f.u32(0xffffffff)

	lib, err := parseLibrary(t, f)
	require.NoError(t, err)
	assert.Equal(t, 1, lib.Len())
}

func TestParseLibraryBadFileMagic(t *testing.T) {
	f := &fixture{}
	f.u32(0x12345678).u16(1)

	lib, err := parseLibrary(t, f)
	assert.Nil(t, lib)
	require.True(t, errors.Is(err, ErrBadMagic))

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, uint64(LibraryMagic), de.Expected)
	assert.Equal(t, uint64(0x12345678), de.Found)
	assert.Equal(t, int64(0), de.Offset)
}

func TestParseLibraryBadEntryMagic(t *testing.T) {
	f := buildLibrary(2, creatureSpec{id: 1, name: "Good"})
	second := f.pos()
	f.u32(0x5243324c).u16(2).pascal("Bad")

	lib, err := parseLibrary(t, f)
	assert.Nil(t, lib, "no partial library")
	require.True(t, errors.Is(err, ErrBadMagic))

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, int64(second), de.Offset)
	assert.Equal(t, uint64(EntryMagic), de.Expected)
}

func TestParseLibraryBadBitmapMagic(t *testing.T) {
	f := buildLibrary(1)
	f.u32(EntryMagic).u16(9).pascal("Icons").u16(0).zeros(metadataTrailerSkip).u16(0).u8(0)
	f.u16(0x5a4d).u32(14).u16(0, 0).u32(0)

	_, err := parseLibrary(t, f)
	require.True(t, errors.Is(err, ErrBadMagic))

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, uint64(BitmapMagic), de.Expected)
	assert.Equal(t, uint64(0x5a4d), de.Found)
}

func TestParseLibraryBitmapSmallerThanHeader(t *testing.T) {
	f := buildLibrary(1)
	f.u32(EntryMagic).u16(9).pascal("Tiny").u16(0).zeros(metadataTrailerSkip).u16(0).u8(0)
	f.u16(BitmapMagic).u32(4).u16(0, 0).u32(0)

	_, err := parseLibrary(t, f)
	assert.True(t, errors.Is(err, ErrOutOfBounds))
}

func TestParseLibraryTruncated(t *testing.T) {
	full := buildLibrary(2, creatureSpec{id: 1, name: "A", pixels: 8}, creatureSpec{id: 2, name: "B", pixels: 8})

	// Entry count promises more than the file holds
	short := buildLibrary(3, creatureSpec{id: 1, name: "A", pixels: 8})
	_, err := parseLibrary(t, short)
	assert.True(t, errors.Is(err, ErrTruncatedInput), "got %v", err)

	// Cut inside the second entry
	cut := &fixture{b: full.b[:len(full.b)-30]}
	_, err = parseLibrary(t, cut)
	assert.Error(t, err)
	kind, ok := KindOfError(err)
	require.True(t, ok)
	assert.Contains(t, []ErrorKind{TruncatedInput, OutOfBounds}, kind)
}

func TestParseLibrarySourceShorterThanSize(t *testing.T) {
	f := buildLibrary(2, creatureSpec{id: 1, name: "A", pixels: 8})
	r, size := f.reader()

	_, err := NewLibraryReader(r, size+64).Parse()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTruncatedInput), "got %v", err)
}

func TestParseLibraryMetadataSkipPastEnd(t *testing.T) {
	f := buildLibrary(1)
	f.u32(EntryMagic).u16(1).pascal("Big").u16(0xffff)

	_, err := parseLibrary(t, f)
	assert.True(t, errors.Is(err, ErrOutOfBounds))
}

func TestParseLibraryBadEncoding(t *testing.T) {
	f := buildLibrary(1)
	f.u32(EntryMagic).u16(1)
	f.u8(3, 'A', 0xff, 'B')

	_, err := parseLibrary(t, f)
	assert.True(t, errors.Is(err, ErrBadEncoding))
}

func TestParseLibraryCodePage(t *testing.T) {
	f := buildLibrary(1)
	f.u32(EntryMagic).u16(5)
	f.u8(4, 'K', 0xe9, 'p', 'i') // "Képi" in Windows-1252
	f.u16(0).zeros(metadataTrailerSkip).u16(0).u8(0)
	writeBitmap(f, 0)

	r, size := f.reader()
	reader := NewLibraryReader(r, size)
	require.NoError(t, reader.SetCodePage(1252))

	lib, err := reader.Parse()
	require.NoError(t, err)
	assert.Equal(t, "Képi", lib.NameOf(5))

	assert.Error(t, reader.SetCodePage(9999))
}
