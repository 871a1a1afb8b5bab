package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OCRErrorMarker prefixes the text of placeholder page records written when
// an engine call fails. The placeholder keeps the MiniDoc fan-in counter
// moving: the pipeline trades OCR quality for liveness, never the reverse.
const OCRErrorMarker = "[OCR-ERROR]"

// PageRecord is the OCR output for a single page, upserted idempotently on
// (document_id, page_num). A row exists for every page the engine was asked
// about, success or not.
type PageRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index:idx_page_record_doc_page,unique,priority:1" json:"document_id"`
	PageNum    int       `gorm:"not null;index:idx_page_record_doc_page,unique,priority:2" json:"page_num"`

	Text   string `gorm:"type:text;not null;default:''" json:"text"`
	Engine string `gorm:"type:text;not null;default:''" json:"engine"`

	// Confidence and Lines are only populated by the bitmap engine; the VLM
	// transcription mode returns whole-page text with no boxes.
	Confidence *float64       `gorm:"column:confidence" json:"confidence,omitempty"`
	Lines      datatypes.JSON `gorm:"type:jsonb" json:"lines,omitempty"`

	Error string `gorm:"type:text;not null;default:''" json:"error,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (PageRecord) TableName() string { return "page_record" }
