package parse_minidoc

import (
	"gorm.io/gorm"

	"github.com/caselight/caselight-backend/internal/config"
	"github.com/caselight/caselight-backend/internal/data/repos"
	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/jobs/queue"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	cfg      config.Pipeline
	minidocs repos.MiniDocRepo
	pages    repos.PageRecordRepo
	chunks   repos.ChunkRepo
	findings repos.FindingRepo
	queue    queue.Service
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg config.Pipeline,
	minidocs repos.MiniDocRepo,
	pages repos.PageRecordRepo,
	chunks repos.ChunkRepo,
	findings repos.FindingRepo,
	q queue.Service,
) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", types.JobTypeParseMiniDoc),
		cfg:      cfg,
		minidocs: minidocs,
		pages:    pages,
		chunks:   chunks,
		findings: findings,
		queue:    q,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeParseMiniDoc }
