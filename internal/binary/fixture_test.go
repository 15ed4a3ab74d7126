package binary

import (
	"bytes"
	"encoding/binary"

	"github.com/dyuri/cplcconv/internal/model"
)

// fixture builds little-endian test files
type fixture struct {
	b []byte
}

func (f *fixture) u8(vs ...uint8) *fixture {
	f.b = append(f.b, vs...)
	return f
}

func (f *fixture) u16(vs ...uint16) *fixture {
	for _, v := range vs {
		f.b = binary.LittleEndian.AppendUint16(f.b, v)
	}
	return f
}

func (f *fixture) u32(vs ...uint32) *fixture {
	for _, v := range vs {
		f.b = binary.LittleEndian.AppendUint32(f.b, v)
	}
	return f
}

func (f *fixture) zeros(n int) *fixture {
	f.b = append(f.b, make([]byte, n)...)
	return f
}

func (f *fixture) pascal(s string) *fixture {
	f.b = append(f.b, byte(len(s)))
	f.b = append(f.b, s...)
	return f
}

func (f *fixture) pos() int {
	return len(f.b)
}

func (f *fixture) patchU32(offset int, v uint32) {
	binary.LittleEndian.PutUint32(f.b[offset:], v)
}

func (f *fixture) reader() (*bytes.Reader, int64) {
	return bytes.NewReader(f.b), int64(len(f.b))
}

// CPLC fixtures

const testBias = 0x00410000

// headerSize is magic + bias + file_size + list_1..list_4
const headerSize = 28

// list1Field is the offset of list_1 inside a record, counted from the tag
const list1Field = 1 + placementLeadSkip + 8 + placementMidSkip

func pointerTo(offset int) uint32 {
	return uint32(offset) - pointerPreamble + testBias
}

type entitySpec struct {
	tag  uint8
	x, y uint32
	body func(f *fixture)
}

func unitBody(team, flags, unknown, timer uint16) func(f *fixture) {
	return func(f *fixture) {
		f.zeros(unitSkip).u16(team, flags, unknown, timer)
	}
}

func cpuBody(p model.CpuPlayerInformation) func(f *fixture) {
	return func(f *fixture) {
		f.zeros(cpuPlayerSkip).
			u32(p.AllyMode).
			u16(p.CostModifier, p.TimeModifier, p.Confidence).
			u16(p.DefaultUnits[:]...)
	}
}

func mapBody(m model.MapConfiguration) func(f *fixture) {
	return func(f *fixture) {
		f.zeros(mapConfigSkip).
			u16(m.TeamColours[:]...).
			u16(m.LocalTeam, m.LocalRace).
			u32(m.Counter).
			u16(m.BuildRestrictions[:]...).
			u16(m.AllyFunds, m.EnemyFunds, m.PlayerFunds).
			u16(m.MissionLoseCondition, m.MissionWinCondition, m.MaxTechLevel).
			zeros(mapConfigTailSkip).
			u16(m.CounterFunction, m.MatrixSet, m.ParTime)
	}
}

// writeRecord appends one record and returns the offset of its tag and of
// its list_1 field
func writeRecord(f *fixture, e entitySpec) (int, int) {
	start := f.pos()
	f.u8(e.tag).
		zeros(placementLeadSkip).
		u32(e.x, e.y).
		zeros(placementMidSkip).
		u32(0, 0xaaaa, 0xbbbb, 0xcccc)
	if e.body != nil {
		e.body(f)
	}
	return start, start + list1Field
}

// buildCPLC lays records out back to back and links them in order
func buildCPLC(entities ...entitySpec) *fixture {
	f := &fixture{}
	f.u32(CPLCMagic, testBias)
	f.u32(0, 0, 0, 0, 0)

	prevLink := 4 + 4 + 4 // header list_1
	for _, e := range entities {
		start, link := writeRecord(f, e)
		f.patchU32(prevLink, pointerTo(start))
		prevLink = link
	}
	f.patchU32(8, uint32(f.pos()))
	return f
}

// Library fixtures

type propSpec struct {
	name  string
	kind  uint8
	items []model.ArrayItem
}

type creatureSpec struct {
	id       uint16
	name     string
	metadata int
	props    []propSpec
	pixels   int
}

func writeBitmap(f *fixture, pixels int) {
	f.u16(BitmapMagic).
		u32(uint32(bitmapHeaderSize+pixels)).
		u16(0, 0).
		u32(54).
		zeros(pixels)
}

func writeCreature(f *fixture, c creatureSpec) {
	f.u32(EntryMagic).u16(c.id).pascal(c.name)
	f.u16(uint16(c.metadata)).zeros(c.metadata + metadataTrailerSkip)
	f.u16(uint16(len(c.props)))
	for _, p := range c.props {
		f.pascal(p.name).u8(p.kind)
		if !IsArrayKind(p.kind) {
			f.zeros(scalarPropertySkip)
			continue
		}
		f.zeros(arrayListSkip).u16(uint16(len(p.items)))
		for _, it := range p.items {
			f.pascal(it.Name).u32(it.Value)
		}
	}
	f.u8(0xff)
	writeBitmap(f, c.pixels)
}

func buildLibrary(total uint16, creatures ...creatureSpec) *fixture {
	f := &fixture{}
	f.u32(LibraryMagic).u16(total)
	for _, c := range creatures {
		writeCreature(f, c)
	}
	return f
}
