package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/izukuuuu/opinion-system-sub001/backend/internal/chunking"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/evidence"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/extraction"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graph"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/graphsync"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/outcome"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/source"
	"github.com/izukuuuu/opinion-system-sub001/backend/internal/topics"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/config"
	apperrors "github.com/izukuuuu/opinion-system-sub001/backend/pkg/errors"
	"github.com/izukuuuu/opinion-system-sub001/backend/pkg/logger"
	"go.uber.org/zap"
)

// ErrSyncInProgress is returned when an overlapping sync or rebuild is already running
var ErrSyncInProgress = errors.New("an overlapping sync for this topic is already running")

// Store is every graph write the services perform
type Store interface {
	graphsync.Graph
	chunking.Writer
	extraction.Writer
	evidence.Store
	topics.Store
	ClearTopicScope(ctx context.Context, topic string) (int, error)
}

// Options override the collaborators built from config. A nil Store builds a
// Neo4j client and repository; Executor must then be nil as well.
type Options struct {
	Store     Store
	Executor  graph.Executor
	Extractor extraction.TextExtractor
	Logger    *zap.Logger
}

// ServiceManager owns the graph connection and every sync component built on it
type ServiceManager struct {
	logger *zap.Logger
	cfg    *config.Config

	client *graph.Client
	store  Store
	schema *graph.Schema

	resolver *source.Resolver
	chunks   *chunking.Enricher
	extract  *extraction.Enricher
	linker   *evidence.Linker
	topics   *topics.Syncer

	mu         sync.Mutex
	syncing    map[string]bool
	rebuilding map[string]bool
	active     map[string]int
}

// NewServiceManager wires all components from cfg
func NewServiceManager(cfg *config.Config, opts Options) (*ServiceManager, error) {
	chunker, err := chunking.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	sm := &ServiceManager{
		logger:     logger.Component(opts.Logger, "services"),
		cfg:        cfg,
		store:      opts.Store,
		syncing:    make(map[string]bool),
		rebuilding: make(map[string]bool),
		active:     make(map[string]int),
	}

	exec := opts.Executor
	if sm.store == nil {
		sm.client = graph.NewClient(graph.SettingsFromConfig(cfg))
		sm.store = graph.NewRepository(sm.client)
		exec = sm.client
	}
	if exec == nil {
		return nil, fmt.Errorf("schema executor is required with a custom store")
	}

	sm.schema = graph.NewSchema(exec, cfg.Platforms, cfg.VectorDimensions)
	sm.resolver = &source.Resolver{DataRoot: cfg.DataRoot, Bucket: cfg.SourceBucket, DBURL: cfg.DBURL}
	sm.linker = evidence.NewLinker(sm.store)
	sm.chunks = chunking.NewEnricher(chunker, sm.store)
	sm.extract = extraction.NewEnricher(opts.Extractor, sm.store, sm.linker)
	sm.topics = topics.NewSyncer(cfg, sm.store)
	return sm, nil
}

// Config returns the configuration the manager was built from
func (sm *ServiceManager) Config() *config.Config {
	return sm.cfg
}

func (sm *ServiceManager) engine(cfg *config.Config, bucket string) *graphsync.Engine {
	resolver := sm.resolver
	if bucket != "" && bucket != resolver.Bucket {
		resolver = &source.Resolver{DataRoot: resolver.DataRoot, Bucket: bucket, DBURL: resolver.DBURL}
	}
	return graphsync.NewEngine(cfg, graphsync.Dependencies{
		Graph:     sm.store,
		Schema:    sm.schema,
		Provider:  resolver,
		Chunks:    sm.chunks,
		Extractor: sm.extract,
		Logger:    sm.logger,
	})
}

func syncScope(topic, date string) string {
	return topic + "\x00" + date
}

// acquireSync marks one (topic, date) sync as running. Syncs of other dates
// for the same topic run concurrently; a rebuild of the topic blocks them.
func (sm *ServiceManager) acquireSync(topic, date string) (func(), error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	scope := syncScope(topic, date)
	if sm.rebuilding[topic] || sm.syncing[scope] {
		return nil, ErrSyncInProgress
	}
	sm.syncing[scope] = true
	sm.active[topic]++
	return func() {
		sm.mu.Lock()
		delete(sm.syncing, scope)
		sm.active[topic]--
		if sm.active[topic] <= 0 {
			delete(sm.active, topic)
		}
		sm.mu.Unlock()
	}, nil
}

// acquireRebuild claims the whole topic. It fails while any sync or rebuild
// of the topic is running, since a rebuild may clear the topic scope.
func (sm *ServiceManager) acquireRebuild(topic string) (func(), error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.rebuilding[topic] || sm.active[topic] > 0 {
		return nil, ErrSyncInProgress
	}
	sm.rebuilding[topic] = true
	return func() {
		sm.mu.Lock()
		delete(sm.rebuilding, topic)
		sm.mu.Unlock()
	}, nil
}

// IsRunning reports whether a sync or rebuild for topic is in progress
func (sm *ServiceManager) IsRunning(topic string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.rebuilding[topic] || sm.active[topic] > 0
}

// Sync runs the relational-to-graph sync with the configured flags
func (sm *ServiceManager) Sync(ctx context.Context, req graphsync.Request) outcome.Outcome {
	release, err := sm.acquireSync(req.Topic, req.Date)
	if err != nil {
		return outcome.Failed(err)
	}
	defer release()
	return sm.engine(sm.cfg, "").Sync(ctx, req)
}

// SyncTopics runs the topic hierarchy sync
func (sm *ServiceManager) SyncTopics(ctx context.Context, req topics.Request) outcome.Outcome {
	return sm.topics.Sync(ctx, req)
}

// BootstrapSchema ensures constraints, indexes and seed platforms exist
func (sm *ServiceManager) BootstrapSchema(ctx context.Context) outcome.Outcome {
	if err := sm.cfg.RequireGraph(); err != nil {
		return outcome.FromError(err)
	}
	if err := sm.store.Connect(ctx); err != nil {
		return outcome.FromError(err)
	}
	report, err := sm.schema.Bootstrap(ctx)
	if err != nil {
		return outcome.FromError(err)
	}
	return outcome.OK("schema ensured", map[string]int{
		outcome.Applied:   report.Applied,
		outcome.Existing:  report.Existing,
		outcome.Rejected:  report.Failed,
		outcome.Platforms: report.Platforms,
	})
}

// UpsertSourceDoc writes an evidence document
func (sm *ServiceManager) UpsertSourceDoc(ctx context.Context, doc graph.SourceDoc) error {
	if err := sm.cfg.RequireGraph(); err != nil {
		return err
	}
	return sm.linker.UpsertSourceDoc(ctx, doc)
}

// LinkClaim links an existing claim to an existing document
func (sm *ServiceManager) LinkClaim(ctx context.Context, claimID, docID, kind string) (bool, error) {
	if err := sm.cfg.RequireGraph(); err != nil {
		return false, err
	}
	return sm.linker.Link(ctx, claimID, docID, kind)
}

// AssertClaim writes a claim made by postID with its optional evidence
func (sm *ServiceManager) AssertClaim(ctx context.Context, postID, topic string, a evidence.Assertion) (string, error) {
	if err := sm.cfg.RequireGraph(); err != nil {
		return "", err
	}
	return sm.linker.Assert(ctx, postID, topic, a)
}

// RebuildRequest drives a full rebuild of one topic scope
type RebuildRequest struct {
	Topic   string `json:"topic" binding:"required"`
	Date    string `json:"date" binding:"required"`
	Dataset string `json:"dataset,omitempty"`

	// Bucket overrides the configured source bucket
	Bucket string `json:"bucket,omitempty"`
	// ClearGraph removes the topic's nodes before syncing
	ClearGraph bool `json:"clear_graph"`
}

// RebuildResult reports every step of a rebuild. Topics is nil when no
// clustering output exists for the date.
type RebuildResult struct {
	Cleared int              `json:"cleared"`
	Base    outcome.Outcome  `json:"base"`
	Topics  *outcome.Outcome `json:"topics,omitempty"`
}

// Status is the overall status: the base sync decides, a failed topic step downgrades ok to error
func (r RebuildResult) Status() outcome.Status {
	if r.Base.Status != outcome.StatusOK {
		return r.Base.Status
	}
	if r.Topics != nil && r.Topics.Status == outcome.StatusError {
		return outcome.StatusError
	}
	return outcome.StatusOK
}

// Rebuild clears the topic scope when asked, runs the base sync with schema
// bootstrap and both enrichments forced on, then syncs the clustering
// hierarchy when its artifact directory exists. Topic nodes are always
// replaced on rebuild.
func (sm *ServiceManager) Rebuild(ctx context.Context, req RebuildRequest) RebuildResult {
	var res RebuildResult

	if err := sm.cfg.RequireGraph(); err != nil {
		res.Base = outcome.FromError(err)
		return res
	}
	if strings.TrimSpace(req.Topic) == "" {
		res.Base = outcome.Failed(apperrors.NewBaseError(apperrors.ErrorTypeValidation, "topic is required", nil))
		return res
	}

	release, err := sm.acquireRebuild(req.Topic)
	if err != nil {
		res.Base = outcome.Failed(err)
		return res
	}
	defer release()

	log := sm.logger.With(zap.String("topic", req.Topic), zap.String("date", req.Date))

	if req.ClearGraph {
		if err := sm.store.Connect(ctx); err != nil {
			res.Base = outcome.FromError(err)
			return res
		}
		n, err := sm.store.ClearTopicScope(ctx, req.Topic)
		if err != nil {
			res.Base = outcome.FromError(err)
			return res
		}
		m, err := sm.store.ClearProjectTopics(ctx, req.Topic)
		if err != nil {
			res.Base = outcome.FromError(err)
			return res
		}
		res.Cleared = n + m
		log.Info("Cleared topic scope", zap.Int("nodes", res.Cleared))
	}

	forced := *sm.cfg
	forced.InitSchema = true
	forced.EnableChunkEmbedding = true
	forced.EnableEntityExtraction = true

	res.Base = sm.engine(&forced, req.Bucket).Sync(ctx, graphsync.Request{
		Topic:   req.Topic,
		Date:    req.Date,
		Dataset: req.Dataset,
	})
	if !res.Base.IsOK() {
		log.Error("Base sync did not complete, skipping topic sync", zap.String("status", string(res.Base.Status)))
		return res
	}

	dir := topics.ArtifactDir(sm.cfg.DataRoot, req.Topic, req.Date)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		log.Info("No clustering output for date, topic sync skipped", zap.String("dir", dir))
		return res
	}
	topicRes := sm.topics.Sync(ctx, topics.Request{Project: req.Topic, Date: req.Date, Dir: dir, ClearExisting: true})
	res.Topics = &topicRes
	return res
}

// Close releases the graph connection
func (sm *ServiceManager) Close(ctx context.Context) error {
	if sm.client == nil {
		return nil
	}
	if err := sm.client.Close(ctx); err != nil {
		sm.logger.Warn("Failed to close graph client", zap.Error(err))
		return err
	}
	sm.logger.Info("Graph client closed")
	return nil
}
