package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MiniDoc statuses. pending_ocr -> ocr_done -> parsed, forward only.
// The pending_ocr -> ocr_done hop is the one transition in the system that
// requires true mutual exclusion: it is a compare-and-swap UPDATE so that of
// two pages finishing at the same instant, exactly one worker enqueues the
// parse job.
const (
	MiniDocStatusPendingOCR = "pending_ocr"
	MiniDocStatusOCRDone    = "ocr_done"
	MiniDocStatusParsed     = "parsed"
)

// miniDocIDNamespace seeds deterministic MiniDoc ids so re-running a split
// job after a crash upserts instead of duplicating windows.
var miniDocIDNamespace = uuid.MustParse("7c2f4a9e-52d1-4b08-9f3a-6e1d2b8c0a44")

// MiniDoc is a fixed-size contiguous page window of a Document and the unit
// of OCR fan-in. Page ranges partition [1, num_pages] without gaps or
// overlaps; the last window may be shorter.
type MiniDoc struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	Part      int    `gorm:"not null" json:"part"` // zero-based window number
	PageStart int    `gorm:"not null" json:"page_start"`
	PageEnd   int    `gorm:"not null" json:"page_end"`
	Status    string `gorm:"type:text;not null;default:'pending_ocr';index" json:"status"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (MiniDoc) TableName() string { return "mini_doc" }

// MiniDocID derives the stable id for a document window from the file hash
// and the window's part number.
func MiniDocID(fileHash string, part int) uuid.UUID {
	return uuid.NewSHA1(miniDocIDNamespace, []byte(fileHash+":"+strconv.Itoa(part)))
}
