package embed_chunk

import (
	"gorm.io/gorm"

	"github.com/caselight/caselight-backend/internal/canon"
	"github.com/caselight/caselight-backend/internal/config"
	"github.com/caselight/caselight-backend/internal/data/repos"
	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/jobs/queue"
	"github.com/caselight/caselight-backend/internal/platform/logger"
	"github.com/caselight/caselight-backend/internal/platform/openai"
	"github.com/caselight/caselight-backend/internal/platform/qdrant"
	"github.com/caselight/caselight-backend/internal/realtime/bus"
)

type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	cfg      config.Pipeline
	chunks   repos.ChunkRepo
	docs     repos.DocumentRepo
	minidocs repos.MiniDocRepo
	findings repos.FindingRepo
	queue    queue.Service
	ai       openai.Client
	vec      qdrant.Store
	canon    *canon.Canonicalizer
	events   *bus.JobNotifier
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg config.Pipeline,
	chunks repos.ChunkRepo,
	docs repos.DocumentRepo,
	minidocs repos.MiniDocRepo,
	findings repos.FindingRepo,
	q queue.Service,
	ai openai.Client,
	vec qdrant.Store,
	canonicalizer *canon.Canonicalizer,
	events *bus.JobNotifier,
) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("job", types.JobTypeEmbedChunk),
		cfg:      cfg,
		chunks:   chunks,
		docs:     docs,
		minidocs: minidocs,
		findings: findings,
		queue:    q,
		ai:       ai,
		vec:      vec,
		canon:    canonicalizer,
		events:   events,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeEmbedChunk }
