package model

import "sort"

// Library is the creature definition table decoded from a .klb file,
// keyed by creature id. It is read-only once built.
type Library struct {
	creatures map[uint16]Creature
}

// Creature represents one creature library entry
type Creature struct {
	ID         uint16
	Name       string       // Display name (at most 255 bytes on disk)
	SizeHint   int          // 32 + metadata length, informational only
	Properties []Property   // Typed properties in file order
	Icon       BitmapHeader // Header of the embedded icon bitmap
}

// Property is a named, typed property of a creature. Values is only
// populated for the array kinds.
type Property struct {
	Name   string
	Kind   uint8
	Values []ArrayItem
}

// ArrayItem is one named value of an array property
type ArrayItem struct {
	Name  string
	Value uint32
}

// BitmapHeader is the 14-byte header of the embedded icon
type BitmapHeader struct {
	Magic           uint16
	SizeInBytes     uint32
	Reserved1       uint16
	Reserved2       uint16
	PixelDataOffset uint32
}

// UnknownCreatureName is displayed for ids missing from the library
const UnknownCreatureName = "Unknown entry"

// NewLibrary creates a new empty library
func NewLibrary() *Library {
	return &Library{
		creatures: make(map[uint16]Creature),
	}
}

// Put stores a creature, replacing any previous entry with the same id
func (l *Library) Put(c Creature) {
	l.creatures[c.ID] = c
}

// Lookup returns the creature with the given id
func (l *Library) Lookup(id uint16) (Creature, bool) {
	if l == nil {
		return Creature{}, false
	}
	c, ok := l.creatures[id]
	return c, ok
}

// NameOf returns the display name for id, or UnknownCreatureName
func (l *Library) NameOf(id uint16) string {
	if c, ok := l.Lookup(id); ok {
		return c.Name
	}
	return UnknownCreatureName
}

// Len returns the number of distinct creatures
func (l *Library) Len() int {
	if l == nil {
		return 0
	}
	return len(l.creatures)
}

// IDs returns all creature ids in ascending order
func (l *Library) IDs() []uint16 {
	if l == nil {
		return nil
	}
	ids := make([]uint16, 0, len(l.creatures))
	for id := range l.creatures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
