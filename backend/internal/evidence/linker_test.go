package evidence

import (
	"context"
	"testing"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/constants"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graph"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graph/graphtest"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/identity"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedClaimAndDoc(t *testing.T, g *graphtest.Graph) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, g.UpsertClaim(ctx, "", graph.Claim{ID: "c1", Content: "vaccines work"}))
	require.NoError(t, g.UpsertSourceDoc(ctx, graph.SourceDoc{ID: "d1", Title: "report"}))
}

func TestLink_SupportedAndRefuted(t *testing.T) {
	g := graphtest.New()
	seedClaimAndDoc(t, g)
	l := NewLinker(g)

	linked, err := l.Link(context.Background(), "c1", "d1", "SUPPORTED_BY")
	require.NoError(t, err)
	assert.True(t, linked)

	linked, err = l.Link(context.Background(), "c1", "d1", "RefutedBy")
	require.NoError(t, err)
	assert.True(t, linked)

	assert.True(t, g.HasEdge(constants.RelSupportedBy, constants.LabelClaim, "c1", constants.LabelSourceDoc, "d1"))
	assert.True(t, g.HasEdge(constants.RelRefutedBy, constants.LabelClaim, "c1", constants.LabelSourceDoc, "d1"))
}

func TestLink_RejectsUnknownKind(t *testing.T) {
	g := graphtest.New()
	seedClaimAndDoc(t, g)
	writesBefore := g.WriteCount()

	linked, err := NewLinker(g).Link(context.Background(), "c1", "d1", "Foo")
	require.Error(t, err)
	assert.False(t, linked)

	var invalid *apperrors.ErrInvalidRelation
	assert.ErrorAs(t, err, &invalid)
	assert.Equal(t, writesBefore, g.WriteCount(), "no write may happen for an invalid kind")
	assert.Zero(t, g.CountEdges(constants.RelSupportedBy))
}

func TestLink_MissingEndpoint(t *testing.T) {
	g := graphtest.New()
	seedClaimAndDoc(t, g)

	linked, err := NewLinker(g).Link(context.Background(), "c1", "missing", "SUPPORTED_BY")
	require.NoError(t, err)
	assert.False(t, linked)
	assert.Equal(t, 1, g.CountNodes(constants.LabelSourceDoc), "the missing document is never created")
}

func TestUpsertSourceDoc_RequiresID(t *testing.T) {
	err := NewLinker(graphtest.New()).UpsertSourceDoc(context.Background(), graph.SourceDoc{ID: "  "})
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}

func TestAssert_WritesClaimEvidenceAndEdges(t *testing.T) {
	ctx := context.Background()
	g := graphtest.New()
	_, err := g.UpsertPosts(ctx, []graph.PostRecord{{ID: "X_News_1", AccountID: "X_a", Topic: "X", Channel: "News"}})
	require.NoError(t, err)
	l := NewLinker(g)

	a := Assertion{Content: " prices rose ", Evidence: "CPI +3%", Source: "stats bureau", Relation: "REFUTED_BY"}
	for i := 0; i < 2; i++ {
		claimID, err := l.Assert(ctx, "X_News_1", "X", a)
		require.NoError(t, err)
		assert.Equal(t, identity.ClaimID("prices rose"), claimID)
	}

	assert.Equal(t, 1, g.CountNodes(constants.LabelClaim))
	assert.Equal(t, 1, g.CountNodes(constants.LabelSourceDoc))
	assert.Equal(t, 1, g.CountEdges(constants.RelAsserts))
	assert.Equal(t, 1, g.CountEdges(constants.RelRefutedBy))
}

func TestAssert_InvalidKindWritesNothing(t *testing.T) {
	g := graphtest.New()
	_, err := NewLinker(g).Assert(context.Background(), "X_News_1", "X", Assertion{Content: "c", Evidence: "e", Relation: "Foo"})
	require.Error(t, err)
	assert.Zero(t, g.CountNodes(constants.LabelClaim))
}

func TestAssert_BlankRelationDefaultsToSupported(t *testing.T) {
	g := graphtest.New()
	_, err := NewLinker(g).Assert(context.Background(), "", "X", Assertion{Content: "c", Source: "s"})
	require.NoError(t, err)
	assert.Equal(t, 1, g.CountEdges(constants.RelSupportedBy))
}
