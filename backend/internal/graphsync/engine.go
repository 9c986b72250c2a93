// Package graphsync projects channel tables into the graph: Post, Account and
// Platform for every row, followed by the optional chunk and extraction
// enrichment of each written post.
package graphsync

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/constants"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/extraction"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graph"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/identity"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/outcome"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/source"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/config"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Graph is the core write surface of the engine
type Graph interface {
	Connect(ctx context.Context) error
	UpsertPosts(ctx context.Context, posts []graph.PostRecord) (int, error)
}

// SchemaBootstrapper ensures constraints and indexes exist
type SchemaBootstrapper interface {
	Bootstrap(ctx context.Context) (graph.BootstrapReport, error)
}

// Provider locates channel tables and opens the source they are read from
type Provider interface {
	Discover(topic, date, dataset string) (source.Plan, error)
	Open(ctx context.Context, plan source.Plan) (source.Source, error)
}

// ChunkEnricher writes the chunks of one post
type ChunkEnricher interface {
	Enrich(ctx context.Context, postID, text string) (int, error)
}

// PostEnricher writes the extraction results of one post
type PostEnricher interface {
	Enrich(ctx context.Context, post graph.PostRecord) (extraction.Result, error)
}

// Dependencies are the collaborators of an Engine. Chunks and Extractor may
// be nil, which disables that enrichment regardless of configuration.
type Dependencies struct {
	Graph     Graph
	Schema    SchemaBootstrapper
	Provider  Provider
	Chunks    ChunkEnricher
	Extractor PostEnricher
	Logger    *zap.Logger
}

// Request selects what to sync
type Request struct {
	Topic   string `json:"topic" binding:"required"`
	Date    string `json:"date" binding:"required"`
	Dataset string `json:"dataset,omitempty"`
}

// Engine is the relational-to-graph sync orchestrator
type Engine struct {
	cfg  *config.Config
	deps Dependencies
	log  *zap.Logger
}

// NewEngine creates an engine
func NewEngine(cfg *config.Config, deps Dependencies) *Engine {
	return &Engine{
		cfg:  cfg,
		deps: deps,
		log:  logger.Component(deps.Logger, "graphsync"),
	}
}

// tally aggregates counters across tables and enrichment workers
type tally struct {
	mu       sync.Mutex
	counters map[string]int
}

func newTally() *tally {
	return &tally{counters: map[string]int{
		outcome.Posts:    0,
		outcome.Chunks:   0,
		outcome.Mentions: 0,
		outcome.Omitted:  0,
	}}
}

func (t *tally) add(key string, n int) {
	t.mu.Lock()
	t.counters[key] += n
	t.mu.Unlock()
}

func (t *tally) snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.counters))
	for k, v := range t.counters {
		out[k] = v
	}
	return out
}

// Sync runs one synchronization and reports it as a tagged outcome
func (e *Engine) Sync(ctx context.Context, req Request) outcome.Outcome {
	if err := e.cfg.RequireGraph(); err != nil {
		e.log.Info("Graph backend not configured, skipping sync", zap.String("topic", req.Topic))
		return outcome.FromError(err)
	}
	if strings.TrimSpace(req.Topic) == "" {
		return outcome.Failed(apperrors.NewBaseError(apperrors.ErrorTypeValidation, "topic is required", nil))
	}

	log := e.log.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("topic", req.Topic),
		zap.String("date", req.Date),
	)

	plan, err := e.deps.Provider.Discover(req.Topic, req.Date, req.Dataset)
	if err != nil {
		log.Error("No channel tables found", zap.Error(err))
		return outcome.FromError(err)
	}

	src, err := e.deps.Provider.Open(ctx, plan)
	if err != nil {
		log.Error("Failed to open source", zap.String("database", plan.Database), zap.Error(err))
		return outcome.FromError(err)
	}
	defer src.Close()

	if err := e.deps.Graph.Connect(ctx); err != nil {
		log.Error("Failed to connect to graph", zap.Error(err))
		return outcome.FromError(err)
	}

	if e.cfg.InitSchema && e.deps.Schema != nil {
		report, err := e.deps.Schema.Bootstrap(ctx)
		if err != nil {
			log.Error("Schema bootstrap failed", zap.Error(err))
			return outcome.FromError(err)
		}
		log.Debug("Schema ensured",
			zap.Int("applied", report.Applied),
			zap.Int("existing", report.Existing),
			zap.Int("failed", report.Failed),
		)
	}

	log.Info("Starting graph sync",
		zap.String("bucket", plan.Bucket),
		zap.Bool("file_source", plan.FileSource),
		zap.Strings("tables", plan.Tables),
	)

	t := newTally()
	for _, table := range plan.Tables {
		if err := ctx.Err(); err != nil {
			return outcome.Failed(err)
		}
		if err := e.syncTable(ctx, log, src, req.Topic, table, t); err != nil {
			if ctx.Err() != nil {
				return outcome.Failed(ctx.Err())
			}
			log.Error("Table sync failed, continuing with next table",
				zap.String("table", table),
				zap.Error(err),
			)
			t.add(outcome.FailedTables, 1)
			continue
		}
		t.add(outcome.Tables, 1)
	}

	counters := t.snapshot()
	log.Info("Graph sync completed",
		zap.Int("posts", counters[outcome.Posts]),
		zap.Int("chunks", counters[outcome.Chunks]),
		zap.Int("mentions", counters[outcome.Mentions]),
		zap.Int("omitted", counters[outcome.Omitted]),
	)
	return outcome.OK(fmt.Sprintf("synced %d posts from %d tables", counters[outcome.Posts], len(plan.Tables)), counters)
}

func (e *Engine) syncTable(ctx context.Context, log *zap.Logger, src source.Source, topic, table string, t *tally) error {
	batches := 0
	rows := 0
	err := src.ReadTable(ctx, table, e.cfg.SyncBatchSize, func(batch []source.Row) error {
		batches++
		rows += len(batch)
		if err := e.syncBatch(ctx, log, topic, table, batch, t); err != nil {
			return err
		}
		if batches%constants.ProgressLogEvery == 0 {
			log.Info("Table progress",
				zap.String("table", table),
				zap.Int("batches", batches),
				zap.Int("rows", rows),
			)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if rows == 0 {
		log.Info("Table is empty, skipped", zap.String("table", table))
		return nil
	}
	log.Info("Table synced",
		zap.String("table", table),
		zap.Int("batches", batches),
		zap.Int("rows", rows),
	)
	return nil
}

// syncBatch writes the core graph of one batch in a single write group, then
// enriches the posts that were written. Enrichment starts only after the
// batch write returned, so every enrichment edge finds its Post.
func (e *Engine) syncBatch(ctx context.Context, log *zap.Logger, topic, channel string, rows []source.Row, t *tally) error {
	records := make([]graph.PostRecord, 0, len(rows))
	for _, r := range rows {
		if r.ID == "" {
			t.add(outcome.SkippedRows, 1)
			continue
		}
		records = append(records, BuildPost(topic, channel, r))
	}
	if len(records) == 0 {
		return nil
	}

	written := e.writePosts(ctx, log, channel, records, t)
	if err := ctx.Err(); err != nil {
		return err
	}
	e.enrich(ctx, log, written, t)
	return nil
}

// writePosts upserts the batch. When the batch write fails each row is
// retried alone, so one bad row only loses itself. Returns the written posts.
func (e *Engine) writePosts(ctx context.Context, log *zap.Logger, channel string, records []graph.PostRecord, t *tally) []graph.PostRecord {
	_, err := e.deps.Graph.UpsertPosts(ctx, records)
	if err == nil {
		t.add(outcome.Posts, len(records))
		return records
	}
	log.Warn("Batch write failed, retrying rows individually",
		zap.String("table", channel),
		zap.Int("rows", len(records)),
		zap.Error(err),
	)

	written := make([]graph.PostRecord, 0, len(records))
	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		if _, err := e.deps.Graph.UpsertPosts(ctx, []graph.PostRecord{rec}); err != nil {
			log.Error("Post write failed",
				zap.String("post_id", rec.ID),
				zap.Error(err),
			)
			t.add(outcome.FailedRows, 1)
			continue
		}
		written = append(written, rec)
	}
	t.add(outcome.Posts, len(written))
	return written
}

func (e *Engine) enrich(ctx context.Context, log *zap.Logger, posts []graph.PostRecord, t *tally) {
	chunks := e.cfg.EnableChunkEmbedding && e.deps.Chunks != nil
	entities := e.cfg.EnableEntityExtraction && e.deps.Extractor != nil
	if !chunks && !entities {
		return
	}

	workers := e.cfg.EnrichmentWorkers
	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for _, post := range posts {
		post := post
		g.Go(func() error {
			if chunks {
				n, err := e.deps.Chunks.Enrich(ctx, post.ID, post.Contents)
				if err != nil {
					log.Warn("Chunk enrichment failed", zap.String("post_id", post.ID), zap.Error(err))
					t.add(outcome.Omitted, 1)
				}
				t.add(outcome.Chunks, n)
			}
			if entities {
				res, err := e.deps.Extractor.Enrich(ctx, post)
				if err != nil {
					log.Warn("Entity enrichment failed", zap.String("post_id", post.ID), zap.Error(err))
					t.add(outcome.Omitted, 1)
				}
				t.add(outcome.Mentions, res.Mentions)
				t.add(outcome.Claims, res.Claims)
				t.add(outcome.Frames, res.Frames)
				t.add(outcome.Events, res.Events)
				t.add(outcome.Omitted, res.Omitted)
			}
			// enrichment failures are counted, never propagated
			return nil
		})
	}
	_ = g.Wait()
}

// BuildPost derives the graph record of one row
func BuildPost(topic, channel string, r source.Row) graph.PostRecord {
	author := identity.NormalizeAuthor(r.Author)
	platform := r.Platform
	if platform == "" {
		platform = channel
	}
	return graph.PostRecord{
		ID:             identity.PostID(topic, channel, r.ID),
		AccountID:      identity.AccountID(topic, author),
		Topic:          topic,
		Channel:        channel,
		Title:          r.Title,
		Contents:       r.Contents,
		Platform:       platform,
		Author:         author,
		PublishedAt:    r.PublishedAt,
		URL:            r.URL,
		Region:         r.Region,
		HitWords:       r.HitWords,
		Polarity:       r.Polarity,
		Classification: identity.NormalizeClassification(r.Classification),
	}
}
