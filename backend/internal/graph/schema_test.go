package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecutor struct {
	queries []string
	params  []map[string]any
	failOn  map[string]error
}

func (e *recordingExecutor) Exec(_ context.Context, query string, params map[string]any) error {
	e.queries = append(e.queries, query)
	e.params = append(e.params, params)
	for fragment, err := range e.failOn {
		if strings.Contains(query, fragment) {
			return err
		}
	}
	return nil
}

func TestSchema_StatementsCoverEveryNodeType(t *testing.T) {
	schema := NewSchema(&recordingExecutor{}, nil, 768)
	var all []string
	for _, stmt := range schema.Statements() {
		all = append(all, stmt.Query)
		assert.Contains(t, stmt.Query, "IF NOT EXISTS", stmt.Name)
	}
	joined := strings.Join(all, "\n")

	for _, label := range []string{"Post", "Platform", "Account", "Entity", "Chunk", "Topic", "SourceDoc", "Claim", "Frame", "Event"} {
		assert.Contains(t, joined, ":"+label+") REQUIRE", label)
	}
	assert.Contains(t, joined, "VECTOR INDEX chunk_embedding")
	assert.Contains(t, joined, "`vector.dimensions`: 768")
	assert.Contains(t, joined, "'cosine'")
	assert.Contains(t, joined, "FULLTEXT INDEX post_fulltext")
}

func TestSchema_BootstrapSeedsDefaultPlatforms(t *testing.T) {
	exec := &recordingExecutor{}
	report, err := NewSchema(exec, nil, 0).Bootstrap(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 8, report.Platforms)
	assert.Equal(t, len(NewSchema(exec, nil, 0).Statements()), report.Applied)
}

func TestSchema_BootstrapSwallowsConflictsAndContinues(t *testing.T) {
	exec := &recordingExecutor{failOn: map[string]error{
		"CONSTRAINT post_id": errors.New("Neo.ClientError.Schema.EquivalentSchemaRuleAlreadyExists"),
		"chunk_embedding":    errors.New("vector indexes are not supported"),
	}}
	schema := NewSchema(exec, []string{"News", " ", "Forum"}, 0)

	report, err := schema.Bootstrap(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Existing)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, len(schema.Statements())-2, report.Applied)
	assert.Equal(t, 2, report.Platforms, "blank platform names are skipped")
	// every statement was attempted plus two seeds
	assert.Len(t, exec.queries, len(schema.Statements())+2)
}

func TestSchema_BootstrapAbortsWhenBackendUnreachable(t *testing.T) {
	exec := &recordingExecutor{failOn: map[string]error{
		"CREATE": apperrors.NewGraphConnectionFailed("bolt://x", errors.New("refused")),
	}}
	_, err := NewSchema(exec, nil, 0).Bootstrap(context.Background())
	require.Error(t, err)
	assert.Len(t, exec.queries, 1)
}

func TestParseRelation_ClosedSet(t *testing.T) {
	rel, err := ParseRelation("SUPPORTED_BY")
	require.NoError(t, err)
	assert.Equal(t, SupportedBy, rel)

	rel, err = ParseRelation("RefutedBy")
	require.NoError(t, err)
	assert.Equal(t, "REFUTED_BY", rel.Type())

	_, err = ParseRelation("Foo")
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}
