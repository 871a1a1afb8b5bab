package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Per-chunk auxiliary findings. All three are best-effort products of the
// parser/embedder extractors and never block the pipeline.

// Anomaly is a deterministic keyword-weighted score over a chunk's text.
// Rows exist only for chunks that scored above zero.
type Anomaly struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ChunkID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"chunk_id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`

	Score    float64        `gorm:"not null" json:"score"`
	Matched  datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"matched"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Anomaly) TableName() string { return "anomaly" }

// SensitiveDataMatch records a pattern hit (SSN-like, card-like, etc).
// Matched text is stored masked; only the last characters survive.
type SensitiveDataMatch struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ChunkID    uuid.UUID `gorm:"type:uuid;not null;index:idx_sensitive_chunk_pattern,unique,priority:1" json:"chunk_id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`

	Pattern string `gorm:"type:text;not null;index:idx_sensitive_chunk_pattern,unique,priority:2" json:"pattern"`
	Masked  string `gorm:"type:text;not null;default:''" json:"masked"`
	Count   int    `gorm:"not null;default:0" json:"count"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (SensitiveDataMatch) TableName() string { return "sensitive_data_match" }

// DateMention is a parsed date reference inside a chunk, feeding timeline
// views downstream.
type DateMention struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ChunkID    uuid.UUID `gorm:"type:uuid;not null;index" json:"chunk_id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`

	Raw    string     `gorm:"type:text;not null" json:"raw"`
	Parsed *time.Time `gorm:"index" json:"parsed,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (DateMention) TableName() string { return "date_mention" }
