package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChunkIndexStride spaces chunk indexes of consecutive MiniDocs apart:
// chunk_index = local_offset + page_start * ChunkIndexStride. The key is
// approximately monotonic within a document, not a strict total order, and
// changes meaning if the window size changes between runs. Readers must not
// assume more than "approximately increasing".
const ChunkIndexStride = int64(1) << 24

var chunkIDNamespace = uuid.MustParse("9b0e6d3c-1f7a-4c55-8e21-d4a90b5f7e10")

// Chunk is an overlapping text window over a MiniDoc's stitched pages.
// Created once by the parser and never mutated afterwards.
type Chunk struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	MiniDocID  uuid.UUID `gorm:"type:uuid;not null;index" json:"mini_doc_id"`

	ChunkIndex int64  `gorm:"not null;index" json:"chunk_index"`
	Text       string `gorm:"type:text;not null" json:"text"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Chunk) TableName() string { return "chunk" }

// ChunkID derives the stable id for a chunk from its MiniDoc and the local
// character offset, so re-running a parse job cannot duplicate chunks.
func ChunkID(miniDocID uuid.UUID, localOffset int) uuid.UUID {
	return uuid.NewSHA1(chunkIDNamespace, []byte(miniDocID.String()+":"+strconv.Itoa(localOffset)))
}
