package split

import (
	"gorm.io/gorm"

	"github.com/caselight/caselight-backend/internal/config"
	"github.com/caselight/caselight-backend/internal/data/repos"
	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/jobs/queue"
	"github.com/caselight/caselight-backend/internal/platform/localmedia"
	"github.com/caselight/caselight-backend/internal/platform/logger"
)

type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	cfg      config.Pipeline
	docs     repos.DocumentRepo
	minidocs repos.MiniDocRepo
	queue    queue.Service
	tools    localmedia.Tools
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg config.Pipeline,
	docs repos.DocumentRepo,
	minidocs repos.MiniDocRepo,
	q queue.Service,
	tools localmedia.Tools,
) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", types.JobTypeSplit),
		cfg:      cfg,
		docs:     docs,
		minidocs: minidocs,
		queue:    q,
		tools:    tools,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeSplit }
