package ocr_page

import (
	"gorm.io/gorm"

	"github.com/caselight/caselight-backend/internal/data/repos"
	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/jobs/queue"
	"github.com/caselight/caselight-backend/internal/ocr"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	pages    repos.PageRecordRepo
	minidocs repos.MiniDocRepo
	queue    queue.Service
	engines  map[string]ocr.Engine
}

// New wires the page OCR handler. Engines are keyed by mode; a job asking
// for a mode with no engine gets a placeholder record, not a retry loop.
func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	pages repos.PageRecordRepo,
	minidocs repos.MiniDocRepo,
	q queue.Service,
	engines map[string]ocr.Engine,
) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", types.JobTypeOCRPage),
		pages:    pages,
		minidocs: minidocs,
		queue:    q,
		engines:  engines,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeOCRPage }
