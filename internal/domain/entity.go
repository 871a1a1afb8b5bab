package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entity is a per-document mention aggregate: one row per distinct
// (document, text, label) with a running mention count.
type Entity struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index:idx_entity_doc_text_label,unique,priority:1" json:"document_id"`

	Text  string `gorm:"type:text;not null;index:idx_entity_doc_text_label,unique,priority:2" json:"text"`
	Label string `gorm:"type:text;not null;index:idx_entity_doc_text_label,unique,priority:3;index" json:"label"`
	Count int    `gorm:"not null;default:0" json:"count"`

	CanonicalEntityID *uuid.UUID `gorm:"type:uuid;index" json:"canonical_entity_id,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Entity) TableName() string { return "entity" }

// CanonicalEntity is the cross-document identity one or more per-document
// mentions resolve to. Aliases keep insertion order and never repeat.
// (canonical_name, label) is unique: two workers inserting the same identity
// at once resolve to one row, never two.
type CanonicalEntity struct {
	ID uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`

	CanonicalName string         `gorm:"type:text;not null;index:idx_canonical_name_label,unique,priority:1" json:"canonical_name"`
	Label         string         `gorm:"type:text;not null;index:idx_canonical_name_label,unique,priority:2;index" json:"label"`
	Aliases       datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"aliases"`
	TotalMentions int            `gorm:"not null;default:0" json:"total_mentions"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (CanonicalEntity) TableName() string { return "canonical_entity" }

// ChunkEntityContribution records that a chunk's mention counts for a given
// (text, label) have been applied to the entity and canonical tallies. The
// unique key makes re-processing a chunk a no-op instead of a double count.
type ChunkEntityContribution struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ChunkID    uuid.UUID `gorm:"type:uuid;not null;index:idx_contribution_chunk_text_label,unique,priority:1" json:"chunk_id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`

	Text  string `gorm:"type:text;not null;index:idx_contribution_chunk_text_label,unique,priority:2" json:"text"`
	Label string `gorm:"type:text;not null;index:idx_contribution_chunk_text_label,unique,priority:3" json:"label"`
	Count int    `gorm:"not null;default:0" json:"count"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ChunkEntityContribution) TableName() string { return "chunk_entity_contribution" }

// relationshipIDNamespace seeds deterministic edge ids so two rebuilds over
// the same corpus write byte-identical rows.
var relationshipIDNamespace = uuid.MustParse("3e8b5c21-9d4f-4a76-8b02-c57a1f6e9d30")

// RelationshipID derives the stable id for a co-occurrence edge from its
// ordered entity pair and document.
func RelationshipID(entity1ID, entity2ID, documentID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(relationshipIDNamespace,
		[]byte(entity1ID.String()+":"+entity2ID.String()+":"+documentID.String()))
}

// EntityRelationship is one co-occurrence edge of the relationship graph.
// The builder fully recomputes the table (delete-then-insert), so rows carry
// no lifecycle of their own. Entity1ID < Entity2ID by construction.
type EntityRelationship struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Entity1ID  uuid.UUID `gorm:"type:uuid;not null;index:idx_relationship_pair_doc,unique,priority:1" json:"entity1_id"`
	Entity2ID  uuid.UUID `gorm:"type:uuid;not null;index:idx_relationship_pair_doc,unique,priority:2" json:"entity2_id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index:idx_relationship_pair_doc,unique,priority:3;index" json:"document_id"`

	Strength int `gorm:"not null;default:0" json:"strength"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (EntityRelationship) TableName() string { return "entity_relationship" }
