package relationship_build

import (
	"gorm.io/gorm"

	"github.com/caselight/caselight-backend/internal/data/repos"
	types "github.com/caselight/caselight-backend/internal/domain"
	"github.com/caselight/caselight-backend/internal/platform/logger"
	"github.com/caselight/caselight-backend/internal/platform/neo4jdb"
)

type Pipeline struct {
	db     *gorm.DB
	log    *logger.Logger
	canon  repos.CanonicalEntityRepo
	chunks repos.ChunkRepo
	rels   repos.RelationshipRepo
	graph  *neo4jdb.Client
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	canonRepo repos.CanonicalEntityRepo,
	chunks repos.ChunkRepo,
	rels repos.RelationshipRepo,
	graph *neo4jdb.Client,
) *Pipeline {
	return &Pipeline{
		db:     db,
		log:    baseLog.With("job", types.JobTypeRelationshipBuild),
		canon:  canonRepo,
		chunks: chunks,
		rels:   rels,
		graph:  graph,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeRelationshipBuild }
