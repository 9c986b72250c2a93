package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/constants"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/logger"
	"go.uber.org/zap"
)

// Executor runs a single auto-commit statement
type Executor interface {
	Exec(ctx context.Context, query string, params map[string]any) error
}

// Statement is one idempotent schema step
type Statement struct {
	Name  string
	Query string
}

// BootstrapReport summarizes one Bootstrap run
type BootstrapReport struct {
	Applied   int
	Existing  int
	Failed    int
	Platforms int
}

// Schema declares the constraints, indexes and seed data of the graph
type Schema struct {
	exec             Executor
	platforms        []string
	vectorDimensions int
	logger           *zap.Logger
}

// NewSchema creates a schema bootstrapper. A nil platform list seeds the defaults.
func NewSchema(exec Executor, platforms []string, vectorDimensions int) *Schema {
	if platforms == nil {
		platforms = constants.DefaultPlatforms
	}
	if vectorDimensions <= 0 {
		vectorDimensions = constants.DefaultVectorDimensions
	}
	return &Schema{
		exec:             exec,
		platforms:        platforms,
		vectorDimensions: vectorDimensions,
		logger:           logger.Component(nil, "graph.schema"),
	}
}

// Statements returns every constraint and index statement, in execution order
func (s *Schema) Statements() []Statement {
	return []Statement{
		// Uniqueness constraints
		{"post_id", "CREATE CONSTRAINT post_id IF NOT EXISTS FOR (p:Post) REQUIRE p.id IS UNIQUE"},
		{"platform_name", "CREATE CONSTRAINT platform_name IF NOT EXISTS FOR (p:Platform) REQUIRE p.name IS UNIQUE"},
		{"account_id", "CREATE CONSTRAINT account_id IF NOT EXISTS FOR (a:Account) REQUIRE a.id IS UNIQUE"},
		{"entity_id", "CREATE CONSTRAINT entity_id IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE"},
		{"chunk_id", "CREATE CONSTRAINT chunk_id IF NOT EXISTS FOR (c:Chunk) REQUIRE c.id IS UNIQUE"},
		{"topic_id", "CREATE CONSTRAINT topic_id IF NOT EXISTS FOR (t:Topic) REQUIRE t.id IS UNIQUE"},
		{"source_doc_id", "CREATE CONSTRAINT source_doc_id IF NOT EXISTS FOR (s:SourceDoc) REQUIRE s.id IS UNIQUE"},
		{"claim_id", "CREATE CONSTRAINT claim_id IF NOT EXISTS FOR (c:Claim) REQUIRE c.id IS UNIQUE"},
		{"frame_id", "CREATE CONSTRAINT frame_id IF NOT EXISTS FOR (f:Frame) REQUIRE f.id IS UNIQUE"},
		{"event_id", "CREATE CONSTRAINT event_id IF NOT EXISTS FOR (e:Event) REQUIRE e.id IS UNIQUE"},

		// Lookup indexes
		{"post_topic", "CREATE INDEX post_topic IF NOT EXISTS FOR (p:Post) ON (p.topic)"},
		{"post_channel", "CREATE INDEX post_channel IF NOT EXISTS FOR (p:Post) ON (p.channel)"},
		{"post_published_at", "CREATE INDEX post_published_at IF NOT EXISTS FOR (p:Post) ON (p.published_at)"},
		{"chunk_post_id", "CREATE INDEX chunk_post_id IF NOT EXISTS FOR (c:Chunk) ON (c.post_id)"},
		{"entity_name", "CREATE INDEX entity_name IF NOT EXISTS FOR (e:Entity) ON (e.name)"},
		{"entity_type", "CREATE INDEX entity_type IF NOT EXISTS FOR (e:Entity) ON (e.type)"},
		{"topic_project", "CREATE INDEX topic_project IF NOT EXISTS FOR (t:Topic) ON (t.project)"},
		{"topic_level", "CREATE INDEX topic_level IF NOT EXISTS FOR (t:Topic) ON (t.level)"},

		// Retrieval indexes
		{"chunk_embedding", fmt.Sprintf(`CREATE VECTOR INDEX chunk_embedding IF NOT EXISTS
FOR (c:Chunk) ON (c.embedding)
OPTIONS {indexConfig: {`+"`vector.dimensions`"+`: %d, `+"`vector.similarity_function`"+`: 'cosine'}}`, s.vectorDimensions)},
		{"post_fulltext", "CREATE FULLTEXT INDEX post_fulltext IF NOT EXISTS FOR (p:Post) ON EACH [p.title, p.contents]"},
	}
}

// Bootstrap applies every statement and seeds Platform nodes.
//
// Statements are independent: an "already exists" failure is ignored and any
// other failure is logged before moving on. Only an unreachable or
// unconfigured backend aborts the run.
func (s *Schema) Bootstrap(ctx context.Context) (BootstrapReport, error) {
	var report BootstrapReport

	for _, stmt := range s.Statements() {
		err := s.exec.Exec(ctx, stmt.Query, nil)
		switch {
		case err == nil:
			report.Applied++
		case apperrors.IsSchemaConflict(err):
			report.Existing++
		case fatalBootstrapError(err):
			return report, err
		default:
			report.Failed++
			s.logger.Warn("Schema statement failed",
				zap.String("statement", stmt.Name),
				zap.Error(err),
			)
		}
	}

	for _, name := range s.platforms {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		err := s.exec.Exec(ctx,
			"MERGE (p:Platform {name: $name}) SET p.name = $name",
			map[string]any{"name": name},
		)
		if err != nil {
			if fatalBootstrapError(err) {
				return report, err
			}
			s.logger.Warn("Seed platform failed", zap.String("platform", name), zap.Error(err))
			continue
		}
		report.Platforms++
	}

	s.logger.Info("Schema bootstrap completed",
		zap.Int("applied", report.Applied),
		zap.Int("existing", report.Existing),
		zap.Int("failed", report.Failed),
		zap.Int("platforms", report.Platforms),
	)
	return report, nil
}

func fatalBootstrapError(err error) bool {
	var conn *apperrors.ErrGraphConnectionFailed
	return apperrors.IsConfigMissing(err) || errors.As(err, &conn)
}
