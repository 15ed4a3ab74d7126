package model

// EntityChain represents a decoded CPLC mission file: the header and every
// entity reachable by following the list_1 pointers, in traversal order.
type EntityChain struct {
	Header   Header
	Entities []Entity
}

// Header contains the CPLC file preamble and header
type Header struct {
	FileOffsetBias uint32 // Load address bias used to translate in-file pointers
	FileSize       uint32 // Declared file size (informational)
	List1          uint32 // Pointer to the first entity
	List2          uint32
	List3          uint32
	List4          uint32
}

// Placement is the geometry prologue shared by every entity record
type Placement struct {
	X     uint32
	Y     uint32
	List1 uint32 // Pointer to the next entity, 0 terminates the chain
	List2 uint32 // Unused
	List3 uint32 // Unused
	List4 uint32 // Unused
}

// Entity is one record of the chain. Kind is the raw tag byte; for units it
// doubles as the creature id in the library.
type Entity struct {
	Kind      uint8
	Offset    int64 // Absolute file offset of the tag byte
	Placement Placement
	Payload   Payload
}

// Payload is the variant-specific part of an entity. The set of
// implementations is closed: Unit, CpuPlayerInformation, MapConfiguration,
// ScrollStart and Ripple.
type Payload interface {
	// Variant returns a short name of the payload type
	Variant() string
	payload()
}

// Unit is a placed creature or building
type Unit struct {
	Team            uint16
	Flags           uint16
	Unknown         uint16
	ActivationTimer uint16
}

// CpuPlayerInformation configures a computer-controlled player
type CpuPlayerInformation struct {
	AllyMode     uint32
	CostModifier uint16
	TimeModifier uint16
	Confidence   uint16
	DefaultUnits [3]uint16
}

// MapConfiguration holds mission-wide settings
type MapConfiguration struct {
	AllyFunds            uint16
	EnemyFunds           uint16
	PlayerFunds          uint16
	BuildRestrictions    [4]uint16
	ParTime              uint16
	MatrixSet            uint16
	Counter              uint32
	CounterFunction      uint16
	MissionWinCondition  uint16
	MissionLoseCondition uint16
	MaxTechLevel         uint16
	LocalTeam            uint16
	LocalRace            uint16
	TeamColours          [9]uint16
}

// ScrollStart marks the initial camera position
type ScrollStart struct{}

// Ripple is a scripted water ripple trigger
type Ripple struct{}

func (Unit) Variant() string                 { return "Unit" }
func (CpuPlayerInformation) Variant() string { return "CpuPlayerInformation" }
func (MapConfiguration) Variant() string     { return "MapConfiguration" }
func (ScrollStart) Variant() string          { return "ScrollStart" }
func (Ripple) Variant() string               { return "Ripple" }

func (Unit) payload()                 {}
func (CpuPlayerInformation) payload() {}
func (MapConfiguration) payload()     {}
func (ScrollStart) payload()          {}
func (Ripple) payload()               {}

// NewEntityChain creates a new empty chain
func NewEntityChain() *EntityChain {
	return &EntityChain{
		Entities: make([]Entity, 0),
	}
}
