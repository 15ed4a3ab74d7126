package binary

import (
	"fmt"
	"io"

	"github.com/dyuri/cplcconv/internal/model"
	"github.com/rs/zerolog"
)

// CPLCMagic is the signature of a CPLC mission file
const CPLCMagic = 0xdeadc0de

// Entity tag bytes with a dedicated layout. Every other tag is a unit.
const (
	TagCPUPlayer        = 0x01
	TagMapConfiguration = 0x04
	TagScrollStart      = 0x09
	TagRipple           = 0xa9
)

// Fixed widths of unmodelled regions in an entity record
const (
	placementLeadSkip   = 4  // before x
	placementMidSkip    = 3  // between y and list_1
	unitSkip            = 24 // after the placement, before team
	cpuPlayerSkip       = 20 // after the placement, before ally_mode
	mapConfigSkip       = 20 // after the placement, before team colours
	mapConfigTailSkip   = 4  // after max_tech_level, before counter_function
	headerPointerFields = 5  // file_size, list_1..list_4
)

// EntityKind selects the record layout for a tag byte
type EntityKind int

const (
	EntityUnit EntityKind = iota
	EntityCPUPlayer
	EntityMapConfiguration
	EntityScrollStart
	EntityRipple
)

func (k EntityKind) String() string {
	switch k {
	case EntityCPUPlayer:
		return "CpuPlayerInformation"
	case EntityMapConfiguration:
		return "MapConfiguration"
	case EntityScrollStart:
		return "ScrollStart"
	case EntityRipple:
		return "Ripple"
	default:
		return "Unit"
	}
}

// KindOf maps a tag byte to its layout. Unmatched tags are units whose
// creature id is the tag itself.
func KindOf(tag uint8) EntityKind {
	switch tag {
	case TagCPUPlayer:
		return EntityCPUPlayer
	case TagMapConfiguration:
		return EntityMapConfiguration
	case TagScrollStart:
		return EntityScrollStart
	case TagRipple:
		return EntityRipple
	default:
		return EntityUnit
	}
}

// CPLCReader decodes a CPLC mission file
type CPLCReader struct {
	c   *Cursor
	log zerolog.Logger
}

// NewCPLCReader creates a new CPLC reader
func NewCPLCReader(r io.ReaderAt, size int64) *CPLCReader {
	return &CPLCReader{
		c:   NewCursor(r, size),
		log: zerolog.Nop(),
	}
}

// SetLogger sets the logger used for per-entity debug output
func (r *CPLCReader) SetLogger(log zerolog.Logger) {
	r.log = log
}

// ReadHeader reads and verifies the magic, the pointer bias and the header
func (r *CPLCReader) ReadHeader() (model.Header, error) {
	var h model.Header

	if err := r.c.SeekAbsolute(0); err != nil {
		return h, err
	}
	magic, err := r.c.U32()
	if err != nil {
		return h, fmt.Errorf("read magic: %w", err)
	}
	if magic != CPLCMagic {
		return h, badMagic(0, CPLCMagic, uint64(magic))
	}

	if h.FileOffsetBias, err = r.c.U32(); err != nil {
		return h, fmt.Errorf("read pointer bias: %w", err)
	}

	var fields [headerPointerFields]uint32
	for i := range fields {
		if fields[i], err = r.c.U32(); err != nil {
			return h, fmt.Errorf("read header: %w", err)
		}
	}
	h.FileSize = fields[0]
	h.List1 = fields[1]
	h.List2 = fields[2]
	h.List3 = fields[3]
	h.List4 = fields[4]

	return h, nil
}

// Parse follows the entity chain from the header's list_1 pointer until a
// zero pointer. A wrong magic is BadMagic; every other fault, header
// included, aborts with CorruptChain wrapping its cause. No partial chain
// is returned.
func (r *CPLCReader) Parse() (*model.EntityChain, error) {
	header, err := r.ReadHeader()
	if err != nil {
		if kind, _ := KindOfError(err); kind == BadMagic {
			return nil, err
		}
		return nil, corruptChain(0, err)
	}
	r.log.Debug().
		Uint32("bias", header.FileOffsetBias).
		Uint32("fileSize", header.FileSize).
		Msg("cplc header")

	chain := model.NewEntityChain()
	chain.Header = header

	visited := make(map[uint64]struct{})
	next := Translate(header.FileOffsetBias, header.List1)

	for next != 0 {
		if next >= uint64(r.c.Size()) {
			return nil, corruptChain(r.c.Pos(),
				fmt.Errorf("entity pointer resolves to 0x%x, file is 0x%x bytes", next, r.c.Size()))
		}
		if _, seen := visited[next]; seen {
			return nil, corruptChain(int64(next), fmt.Errorf("cycle: entity at 0x%x already visited", next))
		}
		visited[next] = struct{}{}

		entity, err := r.readEntity(int64(next))
		if err != nil {
			return nil, corruptChain(int64(next), err)
		}
		chain.Entities = append(chain.Entities, entity)

		r.log.Debug().
			Int("index", len(chain.Entities)-1).
			Str("kind", fmt.Sprintf("0x%02x", entity.Kind)).
			Str("variant", entity.Payload.Variant()).
			Int64("offset", entity.Offset).
			Msg("entity")

		next = Translate(header.FileOffsetBias, entity.Placement.List1)
	}

	return chain, nil
}

// readEntity decodes the record whose tag byte is at offset
func (r *CPLCReader) readEntity(offset int64) (model.Entity, error) {
	if err := r.c.SeekAbsolute(offset); err != nil {
		return model.Entity{}, err
	}
	tag, err := r.c.U8()
	if err != nil {
		return model.Entity{}, err
	}

	placement, err := r.readPlacement()
	if err != nil {
		return model.Entity{}, fmt.Errorf("read placement: %w", err)
	}

	var payload model.Payload
	switch KindOf(tag) {
	case EntityCPUPlayer:
		payload, err = r.readCPUPlayer()
	case EntityMapConfiguration:
		payload, err = r.readMapConfiguration()
	case EntityScrollStart:
		payload = model.ScrollStart{}
	case EntityRipple:
		payload = model.Ripple{}
	default:
		payload, err = r.readUnit()
	}
	if err != nil {
		return model.Entity{}, fmt.Errorf("read %s: %w", KindOf(tag), err)
	}

	return model.Entity{
		Kind:      tag,
		Offset:    offset,
		Placement: placement,
		Payload:   payload,
	}, nil
}

// readPlacement reads the prologue shared by every record
func (r *CPLCReader) readPlacement() (model.Placement, error) {
	var p model.Placement
	var err error

	if err = r.c.Skip(placementLeadSkip); err != nil {
		return p, err
	}
	if p.X, err = r.c.U32(); err != nil {
		return p, err
	}
	if p.Y, err = r.c.U32(); err != nil {
		return p, err
	}
	if err = r.c.Skip(placementMidSkip); err != nil {
		return p, err
	}
	if p.List1, err = r.c.U32(); err != nil {
		return p, err
	}
	if p.List2, err = r.c.U32(); err != nil {
		return p, err
	}
	if p.List3, err = r.c.U32(); err != nil {
		return p, err
	}
	if p.List4, err = r.c.U32(); err != nil {
		return p, err
	}
	return p, nil
}

func (r *CPLCReader) readUnit() (model.Unit, error) {
	var u model.Unit
	if err := r.c.Skip(unitSkip); err != nil {
		return u, err
	}

	var fields [4]uint16
	if err := r.c.U16s(fields[:]); err != nil {
		return u, err
	}
	u.Team = fields[0]
	u.Flags = fields[1]
	u.Unknown = fields[2]
	u.ActivationTimer = fields[3]
	return u, nil
}

func (r *CPLCReader) readCPUPlayer() (model.CpuPlayerInformation, error) {
	var p model.CpuPlayerInformation
	var err error

	if err = r.c.Skip(cpuPlayerSkip); err != nil {
		return p, err
	}
	if p.AllyMode, err = r.c.U32(); err != nil {
		return p, err
	}
	if p.CostModifier, err = r.c.U16(); err != nil {
		return p, err
	}
	if p.TimeModifier, err = r.c.U16(); err != nil {
		return p, err
	}
	if p.Confidence, err = r.c.U16(); err != nil {
		return p, err
	}
	if err = r.c.U16s(p.DefaultUnits[:]); err != nil {
		return p, err
	}
	return p, nil
}

func (r *CPLCReader) readMapConfiguration() (model.MapConfiguration, error) {
	var m model.MapConfiguration
	var err error

	if err = r.c.Skip(mapConfigSkip); err != nil {
		return m, err
	}
	if err = r.c.U16s(m.TeamColours[:]); err != nil {
		return m, err
	}
	if m.LocalTeam, err = r.c.U16(); err != nil {
		return m, err
	}
	if m.LocalRace, err = r.c.U16(); err != nil {
		return m, err
	}
	if m.Counter, err = r.c.U32(); err != nil {
		return m, err
	}
	if err = r.c.U16s(m.BuildRestrictions[:]); err != nil {
		return m, err
	}

	// Funds, conditions and tech level are contiguous u16 fields
	scalars := []*uint16{
		&m.AllyFunds,
		&m.EnemyFunds,
		&m.PlayerFunds,
		&m.MissionLoseCondition,
		&m.MissionWinCondition,
		&m.MaxTechLevel,
	}
	for _, dst := range scalars {
		if *dst, err = r.c.U16(); err != nil {
			return m, err
		}
	}

	if err = r.c.Skip(mapConfigTailSkip); err != nil {
		return m, err
	}
	if m.CounterFunction, err = r.c.U16(); err != nil {
		return m, err
	}
	if m.MatrixSet, err = r.c.U16(); err != nil {
		return m, err
	}
	if m.ParTime, err = r.c.U16(); err != nil {
		return m, err
	}
	return m, nil
}
