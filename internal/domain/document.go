package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document lifecycle statuses. Transitions are strictly forward:
// uploaded -> processing -> complete | failed. Every transition is a
// conditional UPDATE so concurrent workers cannot regress a document.
const (
	DocumentStatusUploaded   = "uploaded"
	DocumentStatusProcessing = "processing"
	DocumentStatusComplete   = "complete"
	DocumentStatusFailed     = "failed"
)

// Document is one ingested file, keyed by content hash. The pipeline never
// deletes documents; duplicate ingests of the same bytes are archived without
// creating a second row.
type Document struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ProjectID *uuid.UUID `gorm:"type:uuid;index" json:"project_id,omitempty"`

	FileHash     string `gorm:"type:text;not null;uniqueIndex" json:"file_hash"`
	OriginalName string `gorm:"type:text;not null" json:"original_name"`
	StorageKey   string `gorm:"type:text;not null" json:"storage_key"`
	DocType      string `gorm:"type:text;not null;default:'pdf';index" json:"doc_type"`

	Status   string `gorm:"type:text;not null;default:'uploaded';index" json:"status"`
	NumPages int    `gorm:"not null;default:0" json:"num_pages"`

	// Opportunistic PDF metadata (author/creator/producer/dates/encryption).
	// Best effort: extraction failures leave this empty, never fail the doc.
	Metadata datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }
