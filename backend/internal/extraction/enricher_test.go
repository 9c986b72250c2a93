package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/constants"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/evidence"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graph"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graph/graphtest"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/identity"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type claimingExtractor struct {
	entities []Entity
	claims   []evidence.Assertion
}

func (c claimingExtractor) Extract(context.Context, string) ([]Entity, error) {
	return c.entities, nil
}

func (c claimingExtractor) ExtractClaims(context.Context, string) ([]evidence.Assertion, error) {
	return c.claims, nil
}

type taggingExtractor struct {
	frames []string
	events []string
}

func (taggingExtractor) Extract(context.Context, string) ([]Entity, error) {
	return nil, nil
}

func (x taggingExtractor) ExtractFrames(context.Context, string) ([]string, error) {
	return x.frames, nil
}

func (x taggingExtractor) ExtractEvents(context.Context, string) ([]string, error) {
	return x.events, nil
}

func seedPost(t *testing.T, g *graphtest.Graph, classification string) graph.PostRecord {
	t.Helper()
	post := graph.PostRecord{
		ID:             "X_News_1",
		AccountID:      "X_alice",
		Topic:          "X",
		Channel:        "News",
		Contents:       "Alice met Bob in Beijing",
		Classification: classification,
	}
	_, err := g.UpsertPosts(context.Background(), []graph.PostRecord{post})
	require.NoError(t, err)
	return post
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]Entity{
		{Name: "Alice", Type: "Person"},
		{Name: " Alice ", Type: "Person"},
		{Name: "Alice", Type: "Location"},
		{Name: "", Type: "Person"},
		{Name: "Beijing"},
	})
	assert.Equal(t, []Entity{
		{Name: "Alice", Type: "Person"},
		{Name: "Alice", Type: "Location"},
		{Name: "Beijing", Type: constants.DefaultEntityType},
	}, got)
}

func TestEnrich_MentionsAreDeduplicatedAcrossRuns(t *testing.T) {
	ctx := context.Background()
	g := graphtest.New()
	post := seedPost(t, g, "")

	extractor := ExtractorFunc(func(context.Context, string) ([]Entity, error) {
		return []Entity{{Name: "Alice", Type: "Person"}, {Name: "Alice", Type: "Person"}, {Name: "Beijing", Type: "Location"}}, nil
	})
	e := NewEnricher(extractor, g, nil)

	for i := 0; i < 2; i++ {
		res, err := e.Enrich(ctx, post)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Mentions)
	}

	assert.Equal(t, 2, g.CountNodes(constants.LabelEntity))
	assert.Equal(t, 2, g.CountEdges(constants.RelMentions))
	assert.NotNil(t, g.Node(constants.LabelEntity, "X_Alice_Person"))
}

func TestEnrich_ClassificationTopicDefaultsToUnknown(t *testing.T) {
	g := graphtest.New()
	post := seedPost(t, g, "  ")

	_, err := NewEnricher(nil, g, nil).Enrich(context.Background(), post)
	require.NoError(t, err)

	topicID := identity.ClassificationTopicID("X", "")
	topic := g.Node(constants.LabelTopic, topicID)
	require.NotNil(t, topic)
	assert.True(t, topic.Labels[constants.LabelClassificationTopic])
	assert.Equal(t, constants.UnknownClassification, topic.Props["name"])
	assert.True(t, g.HasEdge(constants.RelAboutTopic, constants.LabelPost, "X_News_1", constants.LabelTopic, topicID))
	assert.Zero(t, g.CountNodes(constants.LabelEntity), "the default extractor finds nothing")
}

func TestEnrich_ExtractorFailure(t *testing.T) {
	g := graphtest.New()
	post := seedPost(t, g, "politics")

	failing := ExtractorFunc(func(context.Context, string) ([]Entity, error) {
		return nil, errors.New("ner unavailable")
	})
	_, err := NewEnricher(failing, g, nil).Enrich(context.Background(), post)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeEnrichment))
}

func TestEnrich_ClaimsWithInvalidRelationAreOmitted(t *testing.T) {
	g := graphtest.New()
	post := seedPost(t, g, "politics")

	extractor := claimingExtractor{claims: []evidence.Assertion{
		{Content: "prices rose", Evidence: "CPI", Relation: "SUPPORTED_BY"},
		{Content: "prices fell", Evidence: "rumor", Relation: "Foo"},
	}}
	res, err := NewEnricher(extractor, g, evidence.NewLinker(g)).Enrich(context.Background(), post)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Claims)
	assert.Equal(t, 1, res.Omitted)
	assert.Equal(t, 1, g.CountNodes(constants.LabelClaim))
	assert.Equal(t, 1, g.CountEdges(constants.RelAsserts))
	assert.Equal(t, 1, g.CountEdges(constants.RelSupportedBy))
}

func TestEnrich_FramesAndEvents(t *testing.T) {
	ctx := context.Background()
	g := graphtest.New()
	post := seedPost(t, g, "politics")

	extractor := taggingExtractor{
		frames: []string{"economic loss", " economic loss ", "", "blame"},
		events: []string{"flood", "flood"},
	}
	e := NewEnricher(extractor, g, nil)

	for i := 0; i < 2; i++ {
		res, err := e.Enrich(ctx, post)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Frames)
		assert.Equal(t, 1, res.Events)
	}

	assert.Equal(t, 2, g.CountNodes(constants.LabelFrame))
	assert.Equal(t, 2, g.CountEdges(constants.RelHasFrame))
	assert.True(t, g.HasEdge(constants.RelHasFrame, constants.LabelPost, post.ID, constants.LabelFrame, "frame_economic loss"))

	eventID := identity.EventID("X", "flood")
	require.NotNil(t, g.Node(constants.LabelEvent, eventID))
	assert.Equal(t, "X", g.Node(constants.LabelEvent, eventID).Props["topic"])
	assert.Equal(t, 1, g.CountEdges(constants.RelPartOfEvent))
}

func TestEnrich_TagsNeedAnExistingPost(t *testing.T) {
	g := graphtest.New()
	post := graph.PostRecord{ID: "X_News_404", Topic: "X"}

	res, err := NewEnricher(taggingExtractor{frames: []string{"blame"}}, g, nil).Enrich(context.Background(), post)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Frames)
	assert.Zero(t, g.CountEdges(constants.RelHasFrame))
}

func TestEnrich_FrameWriteFailure(t *testing.T) {
	g := graphtest.New()
	post := seedPost(t, g, "politics")
	g.Errors["UpsertFrames"] = errors.New("write failed")

	_, err := NewEnricher(taggingExtractor{frames: []string{"blame"}}, g, nil).Enrich(context.Background(), post)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeEnrichment))
}

func TestUniqueNames(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, UniqueNames([]string{" a", "", "b", "a ", "  "}))
	assert.Empty(t, UniqueNames(nil))
}
