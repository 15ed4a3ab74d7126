// Package store persists decoded missions and creature libraries to a
// SQLite database through GORM.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dyuri/cplcconv/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Import is one exported mission file
type Import struct {
	ID             uuid.UUID `gorm:"type:text;primaryKey"`
	Source         string    `gorm:"index"`
	CreatedAt      time.Time
	FileOffsetBias uint32
	FileSize       uint32
	EntityCount    int
	CreatureCount  int
}

// CreatureRow is a creature library entry referenced by an import
type CreatureRow struct {
	ImportID   uuid.UUID `gorm:"type:text;primaryKey"`
	CreatureID uint16    `gorm:"primaryKey;autoIncrement:false"`
	Name       string
	SizeHint   int
	Properties datatypes.JSON
}

// EntityRow is one entity of the chain, in traversal order
type EntityRow struct {
	ImportID uuid.UUID `gorm:"type:text;primaryKey"`
	Sequence int       `gorm:"primaryKey;autoIncrement:false"`
	Kind     uint8     `gorm:"index"`
	Variant  string
	Name     string
	X        uint32
	Y        uint32
	Offset   int64
	Payload  datatypes.JSON
}

// Models lists every table of the schema
var Models = []interface{}{
	&Import{},
	&CreatureRow{},
	&EntityRow{},
}

// Store wraps a GORM SQLite connection
type Store struct {
	DB  *gorm.DB
	log zerolog.Logger
}

// Open opens (or creates) the SQLite database at path and migrates the
// schema. An empty path gives an in-memory database.
func Open(path string, log zerolog.Logger) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}

	if path == "" {
		// Each pooled connection would get its own empty in-memory database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("access sql interface: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	log.Debug().Str("path", dsn).Msg("opened export database")
	return &Store{DB: db, log: log}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Export writes a decoded mission and the library used to name its
// entities in one transaction. lib may be nil.
func (s *Store) Export(source string, chain *model.EntityChain, lib *model.Library) (uuid.UUID, error) {
	id := uuid.New()

	imp := Import{
		ID:             id,
		Source:         source,
		FileOffsetBias: chain.Header.FileOffsetBias,
		FileSize:       chain.Header.FileSize,
		EntityCount:    len(chain.Entities),
		CreatureCount:  lib.Len(),
	}

	entities := make([]EntityRow, 0, len(chain.Entities))
	for i, e := range chain.Entities {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return uuid.Nil, fmt.Errorf("encode entity %d payload: %w", i, err)
		}
		entities = append(entities, EntityRow{
			ImportID: id,
			Sequence: i,
			Kind:     e.Kind,
			Variant:  e.Payload.Variant(),
			Name:     lib.NameOf(uint16(e.Kind)),
			X:        e.Placement.X,
			Y:        e.Placement.Y,
			Offset:   e.Offset,
			Payload:  datatypes.JSON(payload),
		})
	}

	creatures := make([]CreatureRow, 0, lib.Len())
	for _, cid := range lib.IDs() {
		c, _ := lib.Lookup(cid)
		props, err := json.Marshal(c.Properties)
		if err != nil {
			return uuid.Nil, fmt.Errorf("encode creature %d properties: %w", cid, err)
		}
		creatures = append(creatures, CreatureRow{
			ImportID:   id,
			CreatureID: c.ID,
			Name:       c.Name,
			SizeHint:   c.SizeHint,
			Properties: datatypes.JSON(props),
		})
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&imp).Error; err != nil {
			return fmt.Errorf("insert import: %w", err)
		}
		if len(entities) > 0 {
			if err := tx.CreateInBatches(entities, 500).Error; err != nil {
				return fmt.Errorf("insert entities: %w", err)
			}
		}
		if len(creatures) > 0 {
			if err := tx.CreateInBatches(creatures, 500).Error; err != nil {
				return fmt.Errorf("insert creatures: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.log.Info().
		Str("import", id.String()).
		Str("source", source).
		Int("entities", len(entities)).
		Int("creatures", len(creatures)).
		Msg("exported mission")

	return id, nil
}

// Entities returns the stored entities of an import in traversal order
func (s *Store) Entities(importID uuid.UUID) ([]EntityRow, error) {
	var rows []EntityRow
	err := s.DB.Where("import_id = ?", importID).Order("sequence").Find(&rows).Error
	return rows, err
}
