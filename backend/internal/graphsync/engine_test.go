package graphsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/chunking"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/constants"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/extraction"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graph"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graph/graphtest"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/outcome"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/source"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/config"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDate = "2024-01-01"

func testConfig(batchSize int) *config.Config {
	return &config.Config{
		Neo4jURI:               "bolt://graph.test:7687",
		SyncBatchSize:          batchSize,
		EnableEntityExtraction: true,
		EnableChunkEmbedding:   true,
		InitSchema:             true,
		ChunkSize:              8,
		ChunkOverlap:           2,
		VectorDimensions:       1024,
		EnrichmentWorkers:      2,
	}
}

// writeChannel writes a JSONL channel table under the filter bucket
func writeChannel(t *testing.T, root, topic, channel string, lines ...string) {
	t.Helper()
	dir := filepath.Join(root, "filter", topic, testDate)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, channel+".jsonl"), []byte(strings.Join(lines, "\n")), 0o644))
}

var dupExtractor = extraction.ExtractorFunc(func(_ context.Context, text string) ([]extraction.Entity, error) {
	if text == "" {
		return nil, nil
	}
	return []extraction.Entity{{Name: "Beijing", Type: "Location"}, {Name: "Beijing", Type: "Location"}}, nil
})

func newTestEngine(t *testing.T, cfg *config.Config, g *graphtest.Graph, provider Provider) *Engine {
	t.Helper()
	chunker, err := chunking.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	require.NoError(t, err)
	return NewEngine(cfg, Dependencies{
		Graph:     g,
		Schema:    graph.NewSchema(g, nil, cfg.VectorDimensions),
		Provider:  provider,
		Chunks:    chunking.NewEnricher(chunker, g),
		Extractor: extraction.NewEnricher(dupExtractor, g, nil),
	})
}

func TestSync_BatchBoundaries(t *testing.T) {
	root := t.TempDir()
	writeChannel(t, root, "X", "News",
		`{"id": 1, "author": "alice", "contents": "first post body"}`,
		`{"id": 2, "author": "bob", "contents": "second"}`,
		`{"id": 3, "author": "alice", "contents": ""}`,
	)
	g := graphtest.New()
	e := newTestEngine(t, testConfig(2), g, &source.Resolver{DataRoot: root})

	res := e.Sync(context.Background(), Request{Topic: "X", Date: testDate})
	require.Equal(t, outcome.StatusOK, res.Status, res.Message)

	assert.Equal(t, []int{2, 1}, g.PostBatches)
	assert.Equal(t, 3, res.Count(outcome.Posts))
	assert.Equal(t, 3, g.CountNodes(constants.LabelPost))
	for _, id := range []string{"X_News_1", "X_News_2", "X_News_3"} {
		assert.NotNil(t, g.Node(constants.LabelPost, id), id)
	}
	assert.Equal(t, 1, g.CountNodes(constants.LabelPlatform))
	assert.NotNil(t, g.Node(constants.LabelPlatform, "News"))
	assert.Equal(t, 2, g.CountNodes(constants.LabelAccount))
	assert.Equal(t, 3, g.CountEdges(constants.RelPosted))
	assert.Equal(t, 3, g.CountEdges(constants.RelInPlatform))
	assert.NotEmpty(t, g.Queries, "schema bootstrap ran")
}

func TestSync_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeChannel(t, root, "X", "News",
		`{"id": 1, "author": "alice", "contents": "a fairly long body of text", "classification": "politics"}`,
		`{"id": 2, "contents": "another body"}`,
	)
	writeChannel(t, root, "X", "Weibo", `{"id": 1, "author": "carol", "contents": "weibo"}`)

	g := graphtest.New()
	e := newTestEngine(t, testConfig(1000), g, &source.Resolver{DataRoot: root})

	type snapshot map[string]int
	take := func() snapshot {
		s := snapshot{}
		for _, l := range []string{constants.LabelPost, constants.LabelAccount, constants.LabelPlatform, constants.LabelChunk, constants.LabelEntity, constants.LabelTopic} {
			s[l] = g.CountNodes(l)
		}
		for _, r := range []string{constants.RelPosted, constants.RelInPlatform, constants.RelHasChunk, constants.RelMentions, constants.RelAboutTopic} {
			s[r] = g.CountEdges(r)
		}
		return s
	}

	first := e.Sync(context.Background(), Request{Topic: "X", Date: testDate})
	require.True(t, first.IsOK(), first.Message)
	after1 := take()
	second := e.Sync(context.Background(), Request{Topic: "X", Date: testDate})
	require.True(t, second.IsOK(), second.Message)

	assert.Equal(t, after1, take())
	assert.Equal(t, first.Counters, second.Counters)
	assert.Equal(t, 3, after1[constants.LabelPost])
	assert.Equal(t, 2, after1[constants.LabelPlatform])
	assert.Equal(t, 2, after1[constants.LabelTopic], "politics and unknown classification topics")
	assert.Equal(t, 3, after1[constants.RelMentions], "one mention per post despite duplicate extraction")
}

func TestSync_BlankAuthorUsesSentinel(t *testing.T) {
	root := t.TempDir()
	writeChannel(t, root, "X", "News",
		`{"id": 1, "author": ""}`,
		`{"id": 2}`,
		`{"id": 3, "author": "   "}`,
	)
	g := graphtest.New()
	res := newTestEngine(t, testConfig(10), g, &source.Resolver{DataRoot: root}).Sync(context.Background(), Request{Topic: "X", Date: testDate})
	require.True(t, res.IsOK(), res.Message)

	assert.Equal(t, 1, g.CountNodes(constants.LabelAccount))
	account := g.Node(constants.LabelAccount, "X_"+constants.UnknownAuthor)
	require.NotNil(t, account)
	assert.Equal(t, constants.UnknownAuthor, account.Props["author"])
}

func TestSync_UnconfiguredSkipsWithoutBackendContact(t *testing.T) {
	cfg := testConfig(10)
	cfg.Neo4jURI = ""
	g := graphtest.New()
	provider := &stubProvider{}

	res := newTestEngine(t, cfg, g, provider).Sync(context.Background(), Request{Topic: "X", Date: testDate})

	assert.Equal(t, outcome.StatusSkipped, res.Status)
	assert.Zero(t, g.WriteCount())
	assert.Zero(t, g.Connects)
	assert.Zero(t, provider.discovers, "not even the source is touched")
}

func TestSync_NoTablesIsError(t *testing.T) {
	g := graphtest.New()
	res := newTestEngine(t, testConfig(10), g, &source.Resolver{DataRoot: t.TempDir()}).Sync(context.Background(), Request{Topic: "X", Date: testDate})

	assert.Equal(t, outcome.StatusError, res.Status)
	assert.True(t, apperrors.IsErrorType(res.Err, apperrors.ErrorTypeArtifact))
	assert.Zero(t, g.WriteCount())
}

func TestSync_SourceConnectionFailure(t *testing.T) {
	provider := &stubProvider{
		plan:    source.Plan{Tables: []string{"News"}, Database: "X"},
		openErr: apperrors.NewSourceConnectionFailed("X", errors.New("refused")),
	}
	res := newTestEngine(t, testConfig(10), graphtest.New(), provider).Sync(context.Background(), Request{Topic: "X", Date: testDate})
	assert.Equal(t, outcome.StatusError, res.Status)
}

func TestSync_GraphConnectionFailure(t *testing.T) {
	root := t.TempDir()
	writeChannel(t, root, "X", "News", `{"id": 1}`)
	g := graphtest.New()
	g.ConnectErr = apperrors.NewGraphConnectionFailed("bolt://graph.test:7687", errors.New("refused"))

	res := newTestEngine(t, testConfig(10), g, &source.Resolver{DataRoot: root}).Sync(context.Background(), Request{Topic: "X", Date: testDate})
	assert.Equal(t, outcome.StatusError, res.Status)
	assert.Zero(t, g.CountNodes(constants.LabelPost))
}

func TestSync_BlankIDRowIsSkipped(t *testing.T) {
	root := t.TempDir()
	writeChannel(t, root, "X", "News",
		`{"id": 1}`,
		`{"id": "  ", "title": "no id"}`,
		`{"title": "absent id"}`,
		`{"id": 4}`,
	)
	g := graphtest.New()
	res := newTestEngine(t, testConfig(10), g, &source.Resolver{DataRoot: root}).Sync(context.Background(), Request{Topic: "X", Date: testDate})
	require.True(t, res.IsOK(), res.Message)

	assert.Equal(t, 2, res.Count(outcome.Posts))
	assert.Equal(t, 2, res.Count(outcome.SkippedRows))
	assert.Equal(t, 2, g.CountNodes(constants.LabelPost))
}

func TestSync_EnrichmentFailureIsCountedNotFatal(t *testing.T) {
	root := t.TempDir()
	writeChannel(t, root, "X", "News",
		`{"id": 1, "contents": "some text"}`,
		`{"id": 2, "contents": "more text"}`,
	)
	g := graphtest.New()
	g.Errors["UpsertChunks"] = errors.New("chunk write rejected")

	res := newTestEngine(t, testConfig(10), g, &source.Resolver{DataRoot: root}).Sync(context.Background(), Request{Topic: "X", Date: testDate})
	require.True(t, res.IsOK(), res.Message)

	assert.Equal(t, 2, res.Count(outcome.Posts))
	assert.Equal(t, 2, res.Count(outcome.Omitted))
	assert.Zero(t, res.Count(outcome.Chunks))
	assert.Equal(t, 2, res.Count(outcome.Mentions), "extraction still runs after a chunk failure")
	assert.Equal(t, 2, g.CountNodes(constants.LabelPost))
}

func TestSync_FailedRowOnlyLosesItself(t *testing.T) {
	root := t.TempDir()
	writeChannel(t, root, "X", "News", `{"id": 1}`, `{"id": 2}`, `{"id": 3}`)
	g := graphtest.New()
	g.FailPosts["X_News_2"] = true

	res := newTestEngine(t, testConfig(10), g, &source.Resolver{DataRoot: root}).Sync(context.Background(), Request{Topic: "X", Date: testDate})
	require.True(t, res.IsOK(), res.Message)

	assert.Equal(t, 2, res.Count(outcome.Posts))
	assert.Equal(t, 1, res.Count(outcome.FailedRows))
	assert.Nil(t, g.Node(constants.LabelPost, "X_News_2"))
	assert.NotNil(t, g.Node(constants.LabelPost, "X_News_3"))
}

func TestSync_FailedTableDoesNotAbortRun(t *testing.T) {
	dir := t.TempDir()
	writeChannel(t, dir, "X", "News", `{"id": 1}`)
	tableDir := filepath.Join(dir, "filter", "X", testDate)

	provider := &stubProvider{plan: source.Plan{
		Tables:     []string{"Ghost", "News"},
		Dir:        tableDir,
		FileSource: true,
	}}
	g := graphtest.New()
	res := newTestEngine(t, testConfig(10), g, provider).Sync(context.Background(), Request{Topic: "X", Date: testDate})
	require.True(t, res.IsOK(), res.Message)

	assert.Equal(t, 1, res.Count(outcome.FailedTables))
	assert.Equal(t, 1, res.Count(outcome.Tables))
	assert.Equal(t, 1, g.CountNodes(constants.LabelPost))
}

func TestSync_EnrichmentDisabled(t *testing.T) {
	root := t.TempDir()
	writeChannel(t, root, "X", "News", `{"id": 1, "contents": "text to chunk"}`)
	cfg := testConfig(10)
	cfg.EnableChunkEmbedding = false
	cfg.EnableEntityExtraction = false
	cfg.InitSchema = false
	g := graphtest.New()

	res := newTestEngine(t, cfg, g, &source.Resolver{DataRoot: root}).Sync(context.Background(), Request{Topic: "X", Date: testDate})
	require.True(t, res.IsOK(), res.Message)

	assert.Zero(t, g.CountNodes(constants.LabelChunk))
	assert.Zero(t, g.CountNodes(constants.LabelTopic))
	assert.Empty(t, g.Queries)
}

func TestSync_ManyRowsWithWorkers(t *testing.T) {
	root := t.TempDir()
	lines := make([]string, 0, 50)
	for i := 1; i <= 50; i++ {
		lines = append(lines, fmt.Sprintf(`{"id": %d, "author": "user%d", "contents": "body number %d"}`, i, i%7, i))
	}
	writeChannel(t, root, "X", "News", lines...)
	cfg := testConfig(16)
	cfg.EnrichmentWorkers = 4
	g := graphtest.New()

	res := newTestEngine(t, cfg, g, &source.Resolver{DataRoot: root}).Sync(context.Background(), Request{Topic: "X", Date: testDate})
	require.True(t, res.IsOK(), res.Message)

	assert.Equal(t, []int{16, 16, 16, 2}, g.PostBatches)
	assert.Equal(t, 50, g.CountNodes(constants.LabelPost))
	assert.Equal(t, 7, g.CountNodes(constants.LabelAccount))
	assert.Equal(t, 50, res.Count(outcome.Mentions))
	assert.Equal(t, g.CountNodes(constants.LabelChunk), res.Count(outcome.Chunks))
	for i := 1; i <= 50; i++ {
		postID := fmt.Sprintf("X_News_%d", i)
		assert.True(t, g.HasEdge(constants.RelHasChunk, constants.LabelPost, postID, constants.LabelChunk, postID+"_chunk_1"), postID)
	}
}

func TestBuildPost(t *testing.T) {
	p := BuildPost("X", "News", source.Row{ID: "7", Author: "", Classification: " "})
	assert.Equal(t, "X_News_7", p.ID)
	assert.Equal(t, "X___unknown__", p.AccountID)
	assert.Equal(t, "News", p.Platform)
	assert.Equal(t, constants.UnknownClassification, p.Classification)
}

type stubProvider struct {
	plan      source.Plan
	openErr   error
	discovers int
}

func (s *stubProvider) Discover(string, string, string) (source.Plan, error) {
	s.discovers++
	return s.plan, nil
}

func (s *stubProvider) Open(context.Context, source.Plan) (source.Source, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return source.NewJSONLSource(s.plan.Dir), nil
}
